package database

import "errors"

var (
	// ErrShortCodeExists is returned when an attempt is made to create
	// a new link with a short code that already exists.
	ErrShortCodeExists = errors.New("short code exists")
	// ErrDigestExists is returned when an attempt is made to index a new
	// link under a content digest that is already assigned to another link.
	ErrDigestExists = errors.New("digest exists")
	// ErrLinkNotFound is returned when an attempt is made to retrieve
	// a link using a short code or digest that doesn't exist.
	ErrLinkNotFound = errors.New("link not found")
)

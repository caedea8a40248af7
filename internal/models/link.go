// Package models defines the domain models shared across the application layers.
package models

import "time"

// Link represents a shortened URL and its associated metadata.
type Link struct {
	// ShortCode is the unique token appearing in the shortened URL's path.
	// It is either chosen by the user (alias) or generated by the service.
	ShortCode string
	// OriginalURL is the original, full-length URL that the short code points to.
	OriginalURL string
	// ClickCount tracks the number of times the shortened URL has been followed.
	ClickCount int64
	// CreatedAt is the timestamp indicating when the link was created.
	CreatedAt time.Time
	// ExpiresAt is the instant after which the link is subject to removal.
	// A nil value means the link never expires.
	ExpiresAt *time.Time
}

// Visit represents a single redirect through a shortened URL.
// Visits are append-only and may outlive the link they reference.
type Visit struct {
	// ID is the unique identifier of the visit record.
	ID int64
	// ShortCode is the short code that was followed.
	ShortCode string
	// IPAddress is the visitor's source address. It may be empty.
	IPAddress string
	// CreatedAt is the timestamp indicating when the visit occurred.
	CreatedAt time.Time
}

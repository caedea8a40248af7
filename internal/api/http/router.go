// Package http exposes the URL shortener over HTTP: shortening, redirects,
// link info, analytics and deletion.
package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"

	"github.com/ilyakochetov/shortly/internal/models"
)

// LinkService defines the interface for the core link shortening business logic.
type LinkService interface {
	// Shorten creates a short code for the original URL or returns the existing
	// one when the same content was already shortened without an alias.
	// The bool reports whether a new link was created.
	Shorten(ctx context.Context, originalURL, alias string, expiresAt *time.Time) (*models.Link, bool, error)

	// Resolve retrieves the link for a short code, counting the click and
	// recording the visit. It returns an error if the link is not found.
	Resolve(ctx context.Context, shortCode, ipAddress string) (*models.Link, error)

	// GetInfo retrieves the link for a short code without mutating it.
	GetInfo(ctx context.Context, shortCode string) (*models.Link, error)

	// GetAnalytics retrieves the link together with its most recent visits,
	// newest first.
	GetAnalytics(ctx context.Context, shortCode string) (*models.Link, []models.Visit, error)

	// Remove deletes the link associated with the short code.
	Remove(ctx context.Context, shortCode string) error
}

// getValidate initializes a new validator instance for validating incoming request payloads.
// It customizes tag name extraction from struct fields to match JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// NewRouter initializes and returns a new HTTP router with all routes and middleware configured.
// Redirect routes live at the root of the path space, so the fixed routes are
// registered before the short code wildcard.
func NewRouter(logger *httplog.Logger, linkSvc LinkService) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	validate := getValidate()

	r.Get("/ping", handlePing)
	r.Post("/shorten", handleShorten(linkSvc, validate))
	r.Get("/info/{shortCode}", handleGetInfo(linkSvc))
	r.Get("/analytics/{shortCode}", handleGetAnalytics(linkSvc))
	r.Delete("/delete/{shortCode}", handleRemove(linkSvc))
	r.Get("/{shortCode}", handleRedirect(linkSvc))

	return r
}

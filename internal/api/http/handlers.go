package http

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/ilyakochetov/shortly/internal/database"
	"github.com/ilyakochetov/shortly/internal/models"
	"github.com/ilyakochetov/shortly/internal/service"
	"github.com/ilyakochetov/shortly/pkg/response"
)

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// shortenRequest represents the request payload for shortening a URL.
type shortenRequest struct {
	OriginalURL string     `json:"originalUrl" validate:"required"`
	Alias       string     `json:"alias" validate:"omitempty,max=19"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

// infoResponse represents the response payload for link info requests.
type infoResponse struct {
	OriginalURL string    `json:"originalUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	ClickCount  int64     `json:"clickCount"`
}

// analyticsResponse represents the response payload for link analytics requests.
type analyticsResponse struct {
	ClickCount  int64    `json:"clickCount"`
	IPAddresses []string `json:"ipAddresses"`
}

func toAnalyticsResponse(link *models.Link, visits []models.Visit) analyticsResponse {
	resp := analyticsResponse{
		ClickCount:  link.ClickCount,
		IPAddresses: make([]string, 0, len(visits)),
	}

	for _, visit := range visits {
		resp.IPAddresses = append(resp.IPAddresses, visit.IPAddress)
	}

	return resp
}

// sourceAddress extracts the visitor's address from the request. RealIP
// middleware has already resolved forwarding headers into RemoteAddr.
func sourceAddress(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}

	return r.RemoteAddr
}

// handleShorten handles POST requests to shorten a URL.
//
// The request must contain an original URL and may carry a custom alias and an
// expiration instant. The short code is returned as plain text: a newly
// created link answers 201, a content-deduplicated hit answers 200 with the
// existing code.
func handleShorten(svc LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleShorten"

	return func(w http.ResponseWriter, r *http.Request) {
		var req shortenRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		link, created, err := svc.Shorten(r.Context(), req.OriginalURL, req.Alias, req.ExpiresAt)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrAliasTaken):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.AliasTakenResponse)
			case errors.Is(err, service.ErrAliasTooLong), errors.Is(err, service.ErrOriginalURLRequired):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.BadRequestResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		if created {
			render.Status(r, http.StatusCreated)
		} else {
			render.Status(r, http.StatusOK)
		}
		render.PlainText(w, r, link.ShortCode)
	}
}

// handleRedirect handles GET requests on a short code and redirects the
// visitor to the original URL.
//
// Each successful redirect counts a click and records the visit. The response
// carries Cache-Control: no-store so browsers don't skip the server on repeat
// visits.
func handleRedirect(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		link, err := svc.Resolve(r.Context(), shortCode, sourceAddress(r))
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, link.OriginalURL, http.StatusPermanentRedirect)
	}
}

// handleGetInfo handles GET requests for link metadata.
//
// The handler returns the original URL, the creation instant and the click
// count, or a 404 error if the short code is unknown.
func handleGetInfo(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleGetInfo"

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		link, err := svc.GetInfo(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, infoResponse{
			OriginalURL: link.OriginalURL,
			CreatedAt:   link.CreatedAt,
			ClickCount:  link.ClickCount,
		})
	}
}

// handleGetAnalytics handles GET requests for link usage analytics.
//
// The handler returns the click count and the source addresses of the most
// recent visits, newest first, or a 404 error if the short code is unknown.
func handleGetAnalytics(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleGetAnalytics"

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		link, visits, err := svc.GetAnalytics(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, toAnalyticsResponse(link, visits))
	}
}

// handleRemove handles DELETE requests to remove a shortened link.
//
// The handler answers 200 with an empty body on success or a 404 error if the
// short code is unknown.
func handleRemove(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleRemove"

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		if err := svc.Remove(r.Context(), shortCode); err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

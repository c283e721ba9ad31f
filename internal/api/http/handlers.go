package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/shortlink/internal/service"
	"github.com/vadimbarashkov/shortlink/pkg/response"
)

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// linkRequest represents the request payload for creating a short link.
type linkRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// linkResponse represents the response payload for a short link operation.
type linkResponse struct {
	ShortID   string `json:"short_id"`
	TargetURL string `json:"target_url"`
}

// cleanupResponse represents the response payload for a pruning run.
type cleanupResponse struct {
	DeletedCount int      `json:"deleted_count"`
	ShortIDs     []string `json:"short_ids,omitempty"`
}

// handleCreateLink handles POST requests to create a short link.
//
// The request must contain a valid URL. The handler validates the input,
// calls the link service and returns the generated short identifier.
func handleCreateLink(svc LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleCreateLink"
	const successMsg = "The short link has been created successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req linkRequest

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

		shortID, err := svc.CreateShortLink(r.Context(), req.URL)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			if errors.Is(err, service.ErrIDSpaceExhausted) {
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, response.IDSpaceExhaustedResponse)
				return
			}

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, linkResponse{
			ShortID:   shortID,
			TargetURL: req.URL,
		}))
	}
}

// handleResolveLink handles GET requests to resolve a short identifier into
// the target URL without redirecting.
func handleResolveLink(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleResolveLink"
	const successMsg = "The short link was successfully resolved."

	return func(w http.ResponseWriter, r *http.Request) {
		shortID := chi.URLParam(r, "shortID")

		targetURL, ok, err := svc.GetTargetURL(r.Context(), shortID)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		if !ok {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ResourceNotFoundResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, linkResponse{
			ShortID:   shortID,
			TargetURL: targetURL,
		}))
	}
}

// handleRedirect handles GET requests on the bare short identifier path and
// redirects to the target URL.
func handleRedirect(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		shortID := chi.URLParam(r, "shortID")

		targetURL, ok, err := svc.GetTargetURL(r.Context(), shortID)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		if !ok {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ResourceNotFoundResponse)
			return
		}

		http.Redirect(w, r, targetURL, http.StatusMovedPermanently)
	}
}

// handleTouchLink handles POST requests that bump a link's last access time
// without resolving it, keeping the link from being pruned.
func handleTouchLink(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleTouchLink"
	const successMsg = "The short link access time was successfully updated."

	return func(w http.ResponseWriter, r *http.Request) {
		shortID := chi.URLParam(r, "shortID")

		if err := svc.UpdateLastAccessTime(r.Context(), shortID); err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}

// handleCleanUnusedLinks handles DELETE requests that prune links not
// accessed within max_age_days days.
func handleCleanUnusedLinks(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleCleanUnusedLinks"
	const successMsg = "Unused short links were successfully removed."

	return func(w http.ResponseWriter, r *http.Request) {
		maxAgeDays, err := strconv.Atoi(r.URL.Query().Get("max_age_days"))
		if err != nil || maxAgeDays < 1 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		deleted, err := svc.CleanUnusedLinks(r.Context(), maxAgeDays)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, cleanupResponse{
			DeletedCount: len(deleted),
			ShortIDs:     deleted,
		}))
	}
}

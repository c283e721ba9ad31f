package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
)

// LinkService defines the core short link business logic consumed by the
// HTTP handlers.
type LinkService interface {
	// CreateShortLink generates a free short identifier for targetURL and
	// persists the mapping.
	CreateShortLink(ctx context.Context, targetURL string) (string, error)

	// GetTargetURL resolves a short identifier. A missing link is reported
	// through the boolean, not as an error.
	GetTargetURL(ctx context.Context, shortID string) (string, bool, error)

	// UpdateLastAccessTime keeps a link alive without a full read.
	UpdateLastAccessTime(ctx context.Context, shortID string) error

	// CleanUnusedLinks prunes links not accessed within maxAgeDays days
	// and returns the pruned identifiers.
	CleanUnusedLinks(ctx context.Context, maxAgeDays int) ([]string, error)
}

// getValidate initializes a validator that reports field names from JSON tags.
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

// NewRouter initializes the HTTP router with all routes and middleware
// configured. The bare /{shortID} route serves redirects; everything else
// lives under /api/v1.
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

	r.Route("/api/v1", func(r chi.Router) {
		validate := getValidate()

		r.Get("/ping", handlePing)

		r.Route("/links", func(r chi.Router) {
			r.Post("/", handleCreateLink(linkSvc, validate))
			r.Delete("/unused", handleCleanUnusedLinks(linkSvc))

			r.Route("/{shortID}", func(r chi.Router) {
				r.Get("/", handleResolveLink(linkSvc))
				r.Post("/touch", handleTouchLink(linkSvc))
			})
		})
	})

	r.Get("/{shortID}", handleRedirect(linkSvc))

	return r
}

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/familiar-chat/mediagate/internal/api/handlers"
	"github.com/familiar-chat/mediagate/internal/api/middleware"
	"github.com/familiar-chat/mediagate/internal/auth"
	"github.com/familiar-chat/mediagate/internal/media"
	"github.com/familiar-chat/mediagate/internal/objectstore"
	"github.com/familiar-chat/mediagate/internal/presence"
	"github.com/familiar-chat/mediagate/pkg/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// storageProbePath is looked up, never written, by the storage health check.
const storageProbePath = ".health/probe"

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *slog.Logger
	Authorizer     *auth.Authorizer
	Media          *media.Service
	Store          objectstore.Store // checked by /health when set
	Presence       *presence.Store   // nil disables the internal ingest routes
	IngestToken    string
	AllowedOrigins []string // CORS allowed origins
	CORSMaxAge     int      // preflight cache in seconds
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
	MaxMemoryBytes int64    // multipart bytes held in memory before spilling to disk
	MaxBodyBytes   int64
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Metrics)

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "Retry-After"},
		MaxAge:         cfg.CORSMaxAge,
	}))

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	if cfg.Store != nil {
		healthHandler.WithCheck("storage", func(ctx context.Context) error {
			_, err := cfg.Store.Exists(ctx, storageProbePath)
			return err
		})
	}
	mediaHandler := handlers.NewMediaHandler(cfg.Authorizer, cfg.Media, cfg.Logger, cfg.MaxMemoryBytes, cfg.MaxBodyBytes)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/organizations/{organizationId}", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Authorizer))
		if cfg.RateLimitReqs > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
		}

		r.Post("/sites/{siteId}/image", mediaHandler.UploadSiteImage)
		r.Post("/users/{userId}/image", mediaHandler.UploadUserImage)

		r.Route("/visitors/{visitorId}", func(r chi.Router) {
			r.Post("/messages/image", mediaHandler.UploadVisitorMessageImage)
			r.Delete("/messages/image/{name}", mediaHandler.DeleteVisitorMessageImage)
			r.Post("/received_messages/image", mediaHandler.UploadReceivedMessageImage)
			r.Delete("/received_messages/image/{name}", mediaHandler.DeleteReceivedMessageImage)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Post("/image", mediaHandler.UploadDocumentImage)
			r.Delete("/image/{name}", mediaHandler.DeleteDocumentImage)
			r.Post("/video", mediaHandler.UploadDocumentVideo)
			r.Delete("/video/{name}", mediaHandler.DeleteDocumentVideo)
		})
	})

	// Internal connection ingest for the real-time transport.
	if cfg.Presence != nil && cfg.IngestToken != "" {
		presenceHandler := handlers.NewPresenceHandler(cfg.Presence, cfg.Logger)
		r.Route("/internal/organizations/{organizationId}/visitors/{visitorId}", func(r chi.Router) {
			r.Use(middleware.ServiceToken(cfg.IngestToken))
			r.Post("/connections", presenceHandler.Open)
			r.Put("/connections/{connectionId}", presenceHandler.Set)
			r.Delete("/connections/{connectionId}", presenceHandler.Remove)
			r.Get("/connected_count", presenceHandler.Count)
		})
	}

	return &Router{r}
}

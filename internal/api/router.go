package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/oleg-messenger/oleg/internal/api/middleware"
	"github.com/oleg-messenger/oleg/internal/guild"
	"github.com/oleg-messenger/oleg/internal/handlers"
)

// Body limits per route group.
const (
	jsonBodyLimit   = 64 << 10
	uploadBodyLimit = 11 << 20
	importBodyLimit = 65 << 20
)

// Options wires the router.
type Options struct {
	Handler *handlers.Handler
	Auth    middleware.Authenticator
	Limiter *middleware.RateLimiter
	Origins []string // empty allows any origin
	HSTS    bool
	Logger  zerolog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(opts Options) *chi.Mux {
	r := chi.NewRouter()
	h := opts.Handler

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders(middleware.SecurityConfig{HSTS: opts.HSTS}))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(opts.Logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	if opts.Limiter != nil {
		r.Use(opts.Limiter.Middleware)
	}

	origins := opts.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	auth := middleware.NewAuthMiddleware(opts.Auth)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.Error(w, http.StatusNotFound, "not found")
	})

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/files/{name}", h.File)
	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodySize(jsonBodyLimit))
		r.Post("/api/register", h.Register)
		r.Post("/api/login", h.Login)
	})

	// Authenticated routes (require a session token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/ws", h.WebSocket)
		r.Get("/api/stats", h.Stats)

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodySize(jsonBodyLimit))

			r.Post("/api/logout", h.Logout)
			r.Get("/api/profile", h.Profile)
			r.Post("/api/profile", h.UpdateProfile)
			r.Post("/api/account/delete", h.DeleteAccount)

			r.Get("/api/users", h.Users)
			r.Get("/api/user_search", h.SearchUsers)
			r.Get("/api/friends/status", h.FriendStatus)
			r.Post("/api/friends/{action}", h.FriendAction)
			r.Get("/api/notes", h.Notes)
			r.Post("/api/notes", h.SetNote)

			r.Get("/api/guilds", h.Guilds)
			r.Post("/api/guilds", h.CreateGuild)
			r.Post("/api/invites/join", h.JoinInvite)
			r.Get("/api/rooms/{room}/messages", h.Messages)
			r.Get("/api/admin/export", h.Export)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodySize(uploadBodyLimit))

			r.Post("/api/upload", h.Upload)
			r.Post("/api/upload_avatar", h.UploadAvatar)
		})

		r.Route("/api/guilds/{gid}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.MaxBodySize(jsonBodyLimit))

				r.Get("/", h.GetGuild)
				r.Delete("/", h.DeleteGuild)
				r.Get("/members", h.Members)
				r.Get("/channels", h.Channels)
				r.Post("/channels", h.CreateChannel)
				r.Post("/channels/{cid}/read_only", h.SetReadOnly)
				r.Get("/channels/{cid}/threads", h.Threads)
				r.Post("/invites", h.CreateInvite)
				r.Get("/roles", h.Roles)
				r.Post("/roles", h.CreateRole)
				r.Get("/categories", h.Categories)
				r.Post("/categories", h.CreateCategory)
				r.Get("/emojis", h.Assets(guild.Emoji))
				r.Delete("/emojis/{aid}", h.DeleteAsset(guild.Emoji))
				r.Get("/stickers", h.Assets(guild.Sticker))
				r.Delete("/stickers/{aid}", h.DeleteAsset(guild.Sticker))
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.MaxBodySize(uploadBodyLimit))

				r.Post("/emojis", h.AddAsset(guild.Emoji))
				r.Post("/stickers", h.AddAsset(guild.Sticker))
			})
		})

		r.With(middleware.MaxBodySize(importBodyLimit)).Post("/api/admin/import", h.Import)
	})

	return r
}

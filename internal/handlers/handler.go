package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/oleg-messenger/oleg/internal/api/middleware"
	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/blob"
	"github.com/oleg-messenger/oleg/internal/engine"
	"github.com/oleg-messenger/oleg/internal/store"
	"github.com/oleg-messenger/oleg/internal/ws"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	engine   *engine.Engine
	mirror   *store.Queue
	redis    *redis.Client // nil when running without Redis
	blobs    *blob.Store   // nil disables file serving
	hub      *ws.Hub
	upgrader *websocket.Upgrader
	logger   zerolog.Logger
	started  time.Time
}

// Deps wires a Handler.
type Deps struct {
	Engine  *engine.Engine
	Mirror  *store.Queue
	Redis   *redis.Client
	Blobs   *blob.Store
	Hub     *ws.Hub
	Origins []string
	Logger  zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	mirror := d.Mirror
	if mirror == nil {
		mirror = store.NewQueue(nil, "", d.Logger)
	}
	return &Handler{
		engine:   d.Engine,
		mirror:   mirror,
		redis:    d.Redis,
		blobs:    d.Blobs,
		hub:      d.Hub,
		upgrader: ws.Upgrader(d.Origins),
		logger:   d.Logger.With().Str("component", "http").Logger(),
		started:  time.Now(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// Fail maps an engine error to its status and reason code. Internal errors
// are logged and hidden from the client.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		h.Error(w, status, "internal error")
		return
	}
	h.JSON(w, status, map[string]string{
		"error":  err.Error(),
		"reason": apperr.ReasonOf(err),
	})
}

// decode reads a JSON body into v, answering 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// user returns the authenticated username.
func user(r *http.Request) string {
	return middleware.GetUserFromContext(r.Context())
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}

	return name
}

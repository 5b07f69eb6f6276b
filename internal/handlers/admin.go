package handlers

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxImportSize caps an uploaded snapshot.
const maxImportSize = 64 << 20

// Export downloads the whole state as a snapshot document. Admin only.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	doc, err := h.engine.Export(r.Context(), user(r))
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	name := fmt.Sprintf("oleg-%s.json", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	h.JSON(w, http.StatusOK, doc)
}

// Import replaces the whole state with the uploaded snapshot. Admin only.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize+1))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(data) > maxImportSize {
		h.Error(w, http.StatusRequestEntityTooLarge, "snapshot too large")
		return
	}

	if err := h.engine.Import(r.Context(), user(r), data); err != nil {
		h.Fail(w, r, err)
		return
	}

	h.logger.Info().Str("user", user(r)).Int("bytes", len(data)).Msg("state imported")
	h.JSON(w, http.StatusOK, h.engine.Stats())
}

// WebSocket upgrades an authenticated request to the push channel.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(h.engine, h.upgrader, w, r, user(r))
}

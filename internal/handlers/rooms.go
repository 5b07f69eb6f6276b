package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Messages returns one page of a room's history, newest page first.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	room, err := url.PathUnescape(chi.URLParam(r, "room"))
	if err != nil || room == "" {
		h.Error(w, http.StatusBadRequest, "invalid room")
		return
	}

	// Out of range values are normalized by the engine.
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	p, err := h.engine.Messages(r.Context(), user(r), room, page, limit)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, p)
}

// Upload stores the multipart "file" field and returns its attachment, which
// the client then sends along with a message.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	up, ok := h.readFile(w, r)
	if !ok {
		return
	}

	a, err := h.engine.Upload(r.Context(), user(r), up.name, up.contentType, up.data)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, a)
}

// File serves a stored upload.
func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		h.Error(w, http.StatusNotFound, "not found")
		return
	}
	p, err := h.blobs.Path(chi.URLParam(r, "name"))
	if err != nil {
		h.Error(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, p)
}

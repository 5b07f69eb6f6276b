package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// FriendRequest names the other side of a friendship action.
type FriendRequest struct {
	Username string `json:"username"`
}

// Users lists every account.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, h.engine.ListUsers())
}

// SearchUsers matches usernames containing ?q=.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		h.Error(w, http.StatusBadRequest, "q is required")
		return
	}
	if len(q) > 100 {
		h.Error(w, http.StatusBadRequest, "query too long (max 100 characters)")
		return
	}
	h.JSON(w, http.StatusOK, h.engine.SearchUsers(q))
}

// FriendStatus returns the caller's friends and pending requests.
func (h *Handler) FriendStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.FriendStatus(user(r))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, st)
}

// FriendAction handles /api/friends/{action}.
func (h *Handler) FriendAction(w http.ResponseWriter, r *http.Request) {
	var req FriendRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, self, other := r.Context(), user(r), strings.TrimSpace(req.Username)
	var err error
	switch chi.URLParam(r, "action") {
	case "request":
		err = h.engine.RequestFriend(ctx, self, other)
	case "cancel":
		err = h.engine.CancelFriendRequest(ctx, self, other)
	case "accept":
		err = h.engine.AcceptFriend(ctx, self, other)
	case "decline":
		err = h.engine.DeclineFriend(ctx, self, other)
	case "remove":
		err = h.engine.RemoveFriend(ctx, self, other)
	default:
		h.Error(w, http.StatusNotFound, "unknown friend action")
		return
	}
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	st, err := h.engine.FriendStatus(self)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, st)
}

// NoteRequest sets or clears the caller's private note about a user.
type NoteRequest struct {
	Target string `json:"target"`
	Note   string `json:"note"`
}

// Notes returns the caller's private notes keyed by username.
func (h *Handler) Notes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.engine.Notes(user(r))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, notes)
}

// SetNote stores a private note. An empty note removes it.
func (h *Handler) SetNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	self := user(r)
	if err := h.engine.SetNote(r.Context(), self, strings.TrimSpace(req.Target), req.Note); err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Notes(w, r)
}

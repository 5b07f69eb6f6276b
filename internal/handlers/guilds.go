package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/oleg-messenger/oleg/internal/engine"
	"github.com/oleg-messenger/oleg/internal/guild"
)

// NameRequest is the body of guild, channel and category creation.
type NameRequest struct {
	Name string `json:"name"`
}

// RoleRequest is the body of role creation.
type RoleRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// ReadOnlyRequest toggles a channel's read-only flag.
type ReadOnlyRequest struct {
	ReadOnly bool `json:"read_only"`
}

// JoinRequest redeems an invite code.
type JoinRequest struct {
	Code string `json:"code"`
}

// InviteResponse carries a fresh invite code.
type InviteResponse struct {
	Code string `json:"code"`
}

// Guilds lists the caller's guilds.
func (h *Handler) Guilds(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, h.engine.ListGuilds(user(r)))
}

// CreateGuild creates a guild owned by the caller.
func (h *Handler) CreateGuild(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if !h.decode(w, r, &req) {
		return
	}

	g, err := h.engine.CreateGuild(r.Context(), user(r), sanitizeName(req.Name))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, g)
}

// GetGuild returns one guild the caller belongs to.
func (h *Handler) GetGuild(w http.ResponseWriter, r *http.Request) {
	g, err := h.engine.Guild(user(r), chi.URLParam(r, "gid"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, g)
}

// DeleteGuild removes a guild. Owner only.
func (h *Handler) DeleteGuild(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteGuild(r.Context(), user(r), chi.URLParam(r, "gid")); err != nil {
		h.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Members lists a guild's members.
func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.engine.Members(user(r), chi.URLParam(r, "gid"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, members)
}

// Channels lists a guild's channels.
func (h *Handler) Channels(w http.ResponseWriter, r *http.Request) {
	chans, err := h.engine.ListChannels(user(r), chi.URLParam(r, "gid"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, chans)
}

// CreateChannel adds a channel to a guild.
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if !h.decode(w, r, &req) {
		return
	}

	ch, err := h.engine.CreateChannel(r.Context(), user(r), chi.URLParam(r, "gid"), sanitizeName(req.Name))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, ch)
}

// SetReadOnly toggles whether members may post in a channel.
func (h *Handler) SetReadOnly(w http.ResponseWriter, r *http.Request) {
	var req ReadOnlyRequest
	if !h.decode(w, r, &req) {
		return
	}

	ch, err := h.engine.SetChannelReadOnly(r.Context(), user(r), chi.URLParam(r, "gid"), chi.URLParam(r, "cid"), req.ReadOnly)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, ch)
}

// Threads lists the threads of a channel.
func (h *Handler) Threads(w http.ResponseWriter, r *http.Request) {
	threads, err := h.engine.ListThreads(user(r), chi.URLParam(r, "gid"), chi.URLParam(r, "cid"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, threads)
}

// CreateInvite issues an invite code for a guild.
func (h *Handler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	code, err := h.engine.CreateInvite(r.Context(), user(r), chi.URLParam(r, "gid"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, InviteResponse{Code: code})
}

// JoinInvite adds the caller to the guild behind an invite code.
func (h *Handler) JoinInvite(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if !h.decode(w, r, &req) {
		return
	}

	g, err := h.engine.JoinInvite(r.Context(), user(r), req.Code)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, g)
}

// Roles lists a guild's roles.
func (h *Handler) Roles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.engine.Roles(user(r), chi.URLParam(r, "gid"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, roles)
}

// CreateRole adds a role. Owner only.
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if !h.decode(w, r, &req) {
		return
	}

	role, err := h.engine.CreateRole(r.Context(), user(r), chi.URLParam(r, "gid"), sanitizeName(req.Name), req.Color)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, role)
}

// Categories lists a guild's channel categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.engine.Categories(user(r), chi.URLParam(r, "gid"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, cats)
}

// CreateCategory adds a channel category. Owner only.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if !h.decode(w, r, &req) {
		return
	}

	cat, err := h.engine.CreateCategory(r.Context(), user(r), chi.URLParam(r, "gid"), sanitizeName(req.Name))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, cat)
}

// Assets lists a guild's emojis or stickers.
func (h *Handler) Assets(kind guild.AssetKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assets, err := h.engine.Assets(kind, user(r), chi.URLParam(r, "gid"))
		if err != nil {
			h.Fail(w, r, err)
			return
		}
		h.JSON(w, http.StatusOK, assets)
	}
}

// AddAsset uploads an emoji or sticker. The image is the multipart "file"
// field; "name", "animated" and "description" are form values.
func (h *Handler) AddAsset(kind guild.AssetKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		up, ok := h.readFile(w, r)
		if !ok {
			return
		}
		animated, _ := strconv.ParseBool(up.form("animated"))

		a, err := h.engine.AddAsset(r.Context(), kind, user(r), chi.URLParam(r, "gid"), engine.AssetUpload{
			Name:        sanitizeName(up.form("name")),
			FileName:    up.name,
			ContentType: up.contentType,
			Data:        up.data,
			Animated:    animated,
			Description: up.form("description"),
		})
		if err != nil {
			h.Fail(w, r, err)
			return
		}
		h.JSON(w, http.StatusCreated, a)
	}
}

// DeleteAsset removes an emoji or sticker. Owner only.
func (h *Handler) DeleteAsset(kind guild.AssetKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.engine.DeleteAsset(r.Context(), kind, user(r), chi.URLParam(r, "gid"), chi.URLParam(r, "aid")); err != nil {
			h.Fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

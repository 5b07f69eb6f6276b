package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/oleg-messenger/oleg/internal/api/middleware"
	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/models"
)

// maxUploadSize caps a single multipart file.
const maxUploadSize = 10 << 20

// CredentialsRequest is the body of register, login and account deletion.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries a session token.
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Register handles account creation.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	u, err := h.engine.Register(r.Context(), sanitizeName(req.Username), req.Password)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, u)
}

// Login exchanges credentials for a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, err := h.engine.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, apperr.ErrBadCredentials) {
		h.Error(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, LoginResponse{Token: token, Username: req.Username})
}

// Logout revokes the presented session token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.engine.Logout(r.Context(), middleware.TokenFromRequest(r))
	w.WriteHeader(http.StatusNoContent)
}

// Profile returns the caller's profile, or another user's with ?username=.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("username")
	if name == "" {
		name = user(r)
	}
	u, err := h.engine.Profile(name)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, u)
}

// UpdateProfile applies the fields present in the body.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd models.ProfileUpdate
	if !h.decode(w, r, &upd) {
		return
	}

	u, err := h.engine.UpdateProfile(r.Context(), user(r), upd)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, u)
}

// UploadAvatar stores the multipart "file" field as the caller's avatar.
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	up, ok := h.readFile(w, r)
	if !ok {
		return
	}

	u, err := h.engine.UploadAvatar(r.Context(), user(r), up.name, up.contentType, up.data)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, u)
}

// DeleteAccount removes the caller after re-checking the password.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.engine.DeleteAccount(r.Context(), user(r), req.Password); err != nil {
		h.Fail(w, r, err)
		return
	}
	h.engine.Logout(r.Context(), middleware.TokenFromRequest(r))
	h.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type upload struct {
	name        string
	contentType string
	data        []byte
	form        func(string) string
}

// readFile parses a multipart body and returns its "file" part.
func (h *Handler) readFile(w http.ResponseWriter, r *http.Request) (upload, bool) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid multipart body")
		return upload{}, false
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "file is required")
		return upload{}, false
	}
	defer f.Close()

	if hdr.Size > maxUploadSize {
		h.Error(w, http.StatusRequestEntityTooLarge, "file too large")
		return upload{}, false
	}
	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize+1))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "failed to read file")
		return upload{}, false
	}
	if len(data) > maxUploadSize {
		h.Error(w, http.StatusRequestEntityTooLarge, "file too large")
		return upload{}, false
	}

	return upload{
		name:        hdr.Filename,
		contentType: hdr.Header.Get("Content-Type"),
		data:        data,
		form:        r.FormValue,
	}, true
}

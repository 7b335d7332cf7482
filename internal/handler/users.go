package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"flareddns/internal/auth"
	"flareddns/internal/model"
)

// UserStore manages DDNS credentials kept in the database.
type UserStore interface {
	auth.UserStore
	ListDDNSUsers(ctx context.Context) ([]model.DDNSUser, error)
	CreateDDNSUser(ctx context.Context, username, passHash string) error
	UpdateDDNSUser(ctx context.Context, username, passHash string, active bool) (bool, error)
	DeleteDDNSUser(ctx context.Context, username string) (bool, error)
}

type userEntry struct {
	model.DDNSUser
	Source string `json:"source"`
}

// ListUsers returns configured users, which are read-only here, followed by
// users stored in the database.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	stored, err := h.store.ListDDNSUsers(r.Context())
	if err != nil {
		h.internalError(w, "list users", err)
		return
	}

	out := make([]userEntry, 0, len(h.users)+len(stored))
	for _, name := range h.users {
		out = append(out, userEntry{DDNSUser: model.DDNSUser{Username: name, Active: true}, Source: "config"})
	}
	for _, u := range stored {
		out = append(out, userEntry{DDNSUser: u, Source: "database"})
	}
	writeJSON(w, http.StatusOK, out)
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createUserResponse struct {
	Username string `json:"username"`
	// Password is only echoed when it was generated.
	Password string `json:"password,omitempty"`
}

func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || strings.ContainsAny(req.Username, ": \t") {
		writeError(w, http.StatusBadRequest, "username must be non-empty and contain no colon or whitespace")
		return
	}
	if slices.Contains(h.users, req.Username) {
		writeError(w, http.StatusConflict, "user is defined in configuration")
		return
	}
	existing, err := h.store.GetDDNSUser(r.Context(), req.Username)
	if err != nil {
		h.internalError(w, "load user", err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "user already exists")
		return
	}

	resp := createUserResponse{Username: req.Username}
	password := req.Password
	if password == "" {
		if password, err = auth.GeneratePassword(); err != nil {
			h.internalError(w, "generate password", err)
			return
		}
		resp.Password = password
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CreateDDNSUser(r.Context(), req.Username, hash); err != nil {
		h.internalError(w, "create user", err)
		return
	}
	h.log.Info("ddns user created", slog.String("username", req.Username))
	writeJSON(w, http.StatusCreated, resp)
}

type patchUserRequest struct {
	Password *string `json:"password"`
	Active   *bool   `json:"active"`
}

func (h *APIHandler) PatchUser(w http.ResponseWriter, r *http.Request) {
	var req patchUserRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	username := r.PathValue("username")
	u, err := h.store.GetDDNSUser(r.Context(), username)
	if err != nil {
		h.internalError(w, "load user", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		u.PassHash = hash
	}
	if req.Active != nil {
		u.Active = *req.Active
	}

	if _, err := h.store.UpdateDDNSUser(r.Context(), username, u.PassHash, u.Active); err != nil {
		h.internalError(w, "update user", err)
		return
	}
	h.log.Info("ddns user updated", slog.String("username", username), slog.Bool("active", u.Active))
	writeJSON(w, http.StatusOK, u)
}

func (h *APIHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	deleted, err := h.store.DeleteDDNSUser(r.Context(), username)
	if err != nil {
		h.internalError(w, "delete user", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	h.log.Info("ddns user deleted", slog.String("username", username))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

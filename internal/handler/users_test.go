package handler_test

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flareddns/internal/auth"
)

type userRow struct {
	Username string `json:"username"`
	Active   bool   `json:"active"`
	Source   string `json:"source"`
}

func TestAPIUsersLifecycle(t *testing.T) {
	h := newAPI(t, "token")
	ctx := context.Background()
	stored := auth.NewStored(h.store, slog.New(slog.DiscardHandler))

	rec := h.do(t, http.MethodPost, "/api/users", map[string]any{"username": "nas", "password": "hunter2"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]string](t, rec)
	assert.Empty(t, created["password"], "supplied passwords are not echoed")
	assert.True(t, stored.Authenticate(ctx, "nas", "hunter2"))

	rec = h.do(t, http.MethodPost, "/api/users", map[string]any{"username": "camera"})
	require.Equal(t, http.StatusCreated, rec.Code)
	generated := decode[map[string]string](t, rec)["password"]
	require.Len(t, generated, 32)
	assert.True(t, stored.Authenticate(ctx, "camera", generated))

	users := decode[[]userRow](t, h.do(t, http.MethodGet, "/api/users", nil))
	assert.Equal(t, []userRow{
		{Username: "router", Active: true, Source: "config"},
		{Username: "camera", Active: true, Source: "database"},
		{Username: "nas", Active: true, Source: "database"},
	}, users)

	rec = h.do(t, http.MethodPatch, "/api/users/nas", map[string]any{"active": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, stored.Authenticate(ctx, "nas", "hunter2"))

	rec = h.do(t, http.MethodPatch, "/api/users/nas", map[string]any{"active": true, "password": "new-pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, stored.Authenticate(ctx, "nas", "new-pw"))
	assert.False(t, stored.Authenticate(ctx, "nas", "hunter2"))

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodDelete, "/api/users/nas", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, "/api/users/nas", nil).Code)
	assert.False(t, stored.Authenticate(ctx, "nas", "new-pw"))
}

func TestAPICreateUserRejects(t *testing.T) {
	h := newAPI(t, "token")

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/users", map[string]any{"username": "a:b"}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/users", map[string]any{"username": " "}).Code)
	assert.Equal(t, http.StatusConflict, h.do(t, http.MethodPost, "/api/users", map[string]any{"username": "router"}).Code)

	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/users", map[string]any{"username": "nas"}).Code)
	assert.Equal(t, http.StatusConflict, h.do(t, http.MethodPost, "/api/users", map[string]any{"username": "nas"}).Code)

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPatch, "/api/users/ghost", map[string]any{"active": true}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPatch, "/api/users/nas", map[string]any{"password": " "}).Code)
}

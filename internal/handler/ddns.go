package handler

import (
	"context"
	"net/http"
	"net/netip"

	"flareddns/internal/model"
	"flareddns/internal/service"
	"flareddns/internal/util"
)

// Updater is the part of service.Updater the protocol endpoint needs.
type Updater interface {
	Update(ctx context.Context, req service.UpdateRequest) []model.Status
}

// DDNSHandler serves the dyndns2 update endpoints.
type DDNSHandler struct {
	updater Updater
	trusted []netip.Prefix
}

func NewDDNSHandler(updater Updater, trusted []netip.Prefix) *DDNSHandler {
	return &DDNSHandler{updater: updater, trusted: trusted}
}

// Update answers every request with HTTP 200 and the status tokens in the
// body, as dyndns2 clients expect.
func (h *DDNSHandler) Update(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	q := r.URL.Query()

	statuses := h.updater.Update(r.Context(), service.UpdateRequest{
		Username:       username,
		Password:       password,
		HasCredentials: ok,
		Hostnames:      q.Get("hostname"),
		MyIP:           q.Get("myip"),
		ClientIP:       util.ClientIP(r, h.trusted),
	})

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="dyndns"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(model.JoinStatuses(statuses)))
}

package handler_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flareddns/internal/auth"
	"flareddns/internal/config"
	"flareddns/internal/fake"
	"flareddns/internal/handler"
	"flareddns/internal/model"
	"flareddns/internal/ratelimit"
	"flareddns/internal/service"
)

type recordingUpdater struct {
	got service.UpdateRequest
	out []model.Status
}

func (u *recordingUpdater) Update(_ context.Context, req service.UpdateRequest) []model.Status {
	u.got = req
	return u.out
}

func TestDDNSHandlerDecodesRequest(t *testing.T) {
	up := &recordingUpdater{out: []model.Status{model.Good("1.2.3.4"), model.NoHost}}
	h := handler.NewDDNSHandler(up, []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")})

	req := httptest.NewRequest(http.MethodGet, "/nic/update?hostname=home.example.com,x.example.net&myip=1.2.3.4", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	req.SetBasicAuth("router", "pa:ss")
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "good 1.2.3.4\nnohost", rec.Body.String())

	assert.Equal(t, service.UpdateRequest{
		Username:       "router",
		Password:       "pa:ss",
		HasCredentials: true,
		Hostnames:      "home.example.com,x.example.net",
		MyIP:           "1.2.3.4",
		ClientIP:       "198.51.100.7",
	}, up.got)
}

func TestDDNSHandlerMissingCredentials(t *testing.T) {
	up := &recordingUpdater{out: []model.Status{model.BadAuth}}
	h := handler.NewDDNSHandler(up, nil)

	req := httptest.NewRequest(http.MethodGet, "/nic/update?hostname=home.example.com", nil)
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "badauth", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	assert.False(t, up.got.HasCredentials)
}

// newEndToEnd wires the real updater over in-memory storage and provider.
func newEndToEnd(t *testing.T, token string) (http.Handler, *fake.Store, *fake.Provider) {
	t.Helper()
	store := fake.NewStore(model.Zone{ID: "zone1", Name: "example.com", Status: "active"})
	provider := fake.NewProvider()
	log := slog.New(slog.DiscardHandler)

	updater := service.NewUpdater(service.UpdaterDeps{
		Auth:       auth.NewStatic([]config.DDNSUser{{Username: "router", Password: "secret"}}),
		Limiter:    ratelimit.New(ratelimit.Config{Window: time.Minute, MaxRequests: 2}),
		Zones:      store,
		Tokens:     service.NewTokenSource(store, token),
		Providers:  service.NewProviderCache("fake", provider.Factory()),
		Reconciler: service.NewReconciler(store, log),
		Audit:      service.NewAuditLogger(store, log),
		Log:        log,
	})

	mux := http.NewServeMux()
	h := handler.NewDDNSHandler(updater, nil)
	mux.HandleFunc("GET /nic/update", h.Update)
	mux.HandleFunc("GET /v3/update", h.Update)
	return mux, store, provider
}

func get(t *testing.T, h http.Handler, target string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "203.0.113.9:4000"
	if authed {
		req.SetBasicAuth("router", "secret")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec
}

func TestDDNSEndToEnd(t *testing.T) {
	h, store, provider := newEndToEnd(t, "token")

	assert.Equal(t, "badauth", get(t, h, "/nic/update?hostname=home.example.com", false).Body.String())
	assert.Equal(t, "notfqdn", get(t, h, "/nic/update?hostname=", true).Body.String())
	assert.Equal(t, "nohost", get(t, h, "/nic/update?hostname=home.example.net&myip=1.2.3.4", true).Body.String())

	assert.Equal(t, "good 1.2.3.4", get(t, h, "/nic/update?hostname=home.example.com&myip=1.2.3.4", true).Body.String())
	cached, err := store.GetRecord(context.Background(), "home.example.com", model.RecordTypeA)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "1.2.3.4", cached.Content)

	assert.Equal(t, "nochg 1.2.3.4", get(t, h, "/v3/update?hostname=home.example.com&myip=1.2.3.4", true).Body.String())
	assert.Equal(t, 1, provider.Writes())

	assert.Equal(t, "abuse", get(t, h, "/nic/update?hostname=home.example.com&myip=1.2.3.4", true).Body.String())
}

func TestDDNSEndToEndClientAddress(t *testing.T) {
	h, _, _ := newEndToEnd(t, "token")
	assert.Equal(t, "good 203.0.113.9", get(t, h, "/nic/update?hostname=home.example.com", true).Body.String())
}

func TestDDNSEndToEndNoToken(t *testing.T) {
	h, _, _ := newEndToEnd(t, "")
	assert.Equal(t, "911", get(t, h, "/nic/update?hostname=home.example.com&myip=1.2.3.4", true).Body.String())
}

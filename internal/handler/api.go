package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"flareddns/internal/auth"
	"flareddns/internal/model"
	"flareddns/internal/ratelimit"
	"flareddns/internal/service"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 100
	maxLogPage      = 1_000_000
)

// APIStore is the storage the admin API reads and writes.
type APIStore interface {
	service.ZoneStore
	service.SettingsStore
	UserStore
	ListRecords(ctx context.Context) ([]model.ManagedRecord, error)
	GetRecordByID(ctx context.Context, id string) (*model.ManagedRecord, error)
	UpsertRecord(ctx context.Context, rec model.ManagedRecord) error
	DeleteRecord(ctx context.Context, id string) error
	ListUpdateLog(ctx context.Context, f model.UpdateLogFilter) ([]model.UpdateLogEntry, int, error)
	UpdateStats(ctx context.Context, since time.Time) (model.UpdateStats, error)
}

type APIDeps struct {
	Store      APIStore
	Zones      *service.ZoneService
	Tokens     *service.TokenSource
	Providers  *service.ProviderCache
	Limiter    *ratelimit.Limiter
	Users      []string
	AdminToken string
	Log        *slog.Logger
}

// APIHandler is the JSON management API. Every route requires the admin
// bearer token.
type APIHandler struct {
	store      APIStore
	zones      *service.ZoneService
	tokens     *service.TokenSource
	providers  *service.ProviderCache
	limiter    *ratelimit.Limiter
	users      []string
	adminToken string
	log        *slog.Logger
	now        func() time.Time
}

func NewAPIHandler(deps APIDeps) *APIHandler {
	return &APIHandler{
		store:      deps.Store,
		zones:      deps.Zones,
		tokens:     deps.Tokens,
		providers:  deps.Providers,
		limiter:    deps.Limiter,
		users:      deps.Users,
		adminToken: deps.AdminToken,
		log:        deps.Log,
		now:        time.Now,
	}
}

// Register mounts the API routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/dashboard", h.RequireToken(h.Dashboard))
	mux.HandleFunc("GET /api/zones", h.RequireToken(h.ListZones))
	mux.HandleFunc("POST /api/zones/import", h.RequireToken(h.ImportZones))
	mux.HandleFunc("POST /api/zones/sync", h.RequireToken(h.SyncZones))
	mux.HandleFunc("GET /api/records", h.RequireToken(h.ListRecords))
	mux.HandleFunc("POST /api/records", h.RequireToken(h.CreateRecord))
	mux.HandleFunc("PATCH /api/records/{id}", h.RequireToken(h.PatchRecord))
	mux.HandleFunc("DELETE /api/records/{id}", h.RequireToken(h.DeleteRecord))
	mux.HandleFunc("GET /api/logs", h.RequireToken(h.Logs))
	mux.HandleFunc("GET /api/users", h.RequireToken(h.ListUsers))
	mux.HandleFunc("POST /api/users", h.RequireToken(h.CreateUser))
	mux.HandleFunc("PATCH /api/users/{username}", h.RequireToken(h.PatchUser))
	mux.HandleFunc("DELETE /api/users/{username}", h.RequireToken(h.DeleteUser))
	mux.HandleFunc("GET /api/settings", h.RequireToken(h.Settings))
	mux.HandleFunc("PUT /api/settings", h.RequireToken(h.UpdateSettings))
}

func (h *APIHandler) RequireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || h.adminToken == "" || !auth.ConstantTimeEqual(strings.TrimSpace(token), h.adminToken) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

type dashboardResponse struct {
	Records []model.ManagedRecord `json:"records"`
	Stats   model.UpdateStats     `json:"stats"`
}

func (h *APIHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListRecords(r.Context())
	if err != nil {
		h.internalError(w, "list records", err)
		return
	}

	now := h.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	stats, err := h.store.UpdateStats(r.Context(), midnight)
	if err != nil {
		h.internalError(w, "update stats", err)
		return
	}

	writeJSON(w, http.StatusOK, dashboardResponse{Records: nonNil(records), Stats: stats})
}

func (h *APIHandler) ListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.store.ListZones(r.Context())
	if err != nil {
		h.internalError(w, "list zones", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(zones))
}

type importRequest struct {
	ZoneIDs []string `json:"zoneIds"`
}

func (h *APIHandler) ImportZones(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.ZoneIDs) == 0 {
		writeError(w, http.StatusBadRequest, "zoneIds is required")
		return
	}

	zones, err := h.zones.Import(r.Context(), req.ZoneIDs)
	if err != nil {
		h.providerError(w, "import zones", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(zones))
}

func (h *APIHandler) SyncZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.zones.Sync(r.Context())
	if err != nil {
		h.providerError(w, "sync zones", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(zones))
}

func (h *APIHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListRecords(r.Context())
	if err != nil {
		h.internalError(w, "list records", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(records))
}

type createRecordRequest struct {
	ZoneID  string           `json:"zoneId"`
	Name    string           `json:"name"`
	Type    model.RecordType `json:"type"`
	Content string           `json:"content"`
	Proxied bool             `json:"proxied"`
	TTL     int              `json:"ttl"`
}

func (req *createRecordRequest) validate() error {
	req.Name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(req.Name)), ".")
	if req.Type == "" {
		req.Type = model.RecordTypeA
	}
	if req.TTL == 0 {
		req.TTL = service.AutoTTL
	}
	if req.ZoneID == "" {
		return errors.New("zoneId is required")
	}
	if !service.ValidHostname(req.Name) {
		return fmt.Errorf("invalid hostname %q", req.Name)
	}
	addr, err := netip.ParseAddr(req.Content)
	if err != nil {
		return fmt.Errorf("invalid address %q", req.Content)
	}
	switch {
	case req.Type == model.RecordTypeA && addr.Unmap().Is4():
		req.Content = addr.Unmap().String()
	case req.Type == model.RecordTypeAAAA && addr.Is6() && !addr.Is4In6():
		req.Content = addr.String()
	default:
		return fmt.Errorf("address %s does not fit record type %q", req.Content, req.Type)
	}
	return nil
}

func (h *APIHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	zone, err := h.storedZone(r.Context(), req.ZoneID)
	if err != nil {
		h.internalError(w, "list zones", err)
		return
	}
	if zone == nil {
		writeError(w, http.StatusNotFound, "Zone not found")
		return
	}
	if _, ok := service.ResolveZone(req.Name, []model.Zone{*zone}); !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s is not inside zone %s", req.Name, zone.Name))
		return
	}

	provider, err := h.provider(r.Context())
	if err != nil {
		h.providerError(w, "create record", err)
		return
	}
	created, err := provider.CreateRecord(r.Context(), zone.ID, model.RecordFields{
		Name:    req.Name,
		Type:    req.Type,
		Content: req.Content,
		Proxied: req.Proxied,
		TTL:     req.TTL,
	})
	if err != nil {
		h.providerError(w, "create record", err)
		return
	}

	rec := model.ManagedRecord{
		ID:          created.ID,
		ZoneID:      zone.ID,
		ZoneName:    zone.Name,
		Name:        created.Name,
		Type:        created.Type,
		Content:     created.Content,
		Proxied:     created.Proxied,
		TTL:         created.TTL,
		LastUpdated: h.now().UTC(),
	}
	if err := h.store.UpsertRecord(r.Context(), rec); err != nil {
		h.internalError(w, "cache record", err)
		return
	}
	h.log.Info("record created", slog.String("hostname", rec.Name), slog.String("type", string(rec.Type)))
	writeJSON(w, http.StatusCreated, rec)
}

type patchRecordRequest struct {
	Proxied *bool `json:"proxied"`
	TTL     *int  `json:"ttl"`
}

func (h *APIHandler) PatchRecord(w http.ResponseWriter, r *http.Request) {
	var req patchRecordRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TTL != nil && *req.TTL < service.AutoTTL {
		writeError(w, http.StatusBadRequest, "ttl must be positive")
		return
	}

	rec, ok := h.cachedRecord(w, r)
	if !ok {
		return
	}
	if req.Proxied != nil {
		rec.Proxied = *req.Proxied
	}
	if req.TTL != nil {
		rec.TTL = *req.TTL
	}

	provider, err := h.provider(r.Context())
	if err != nil {
		h.providerError(w, "update record", err)
		return
	}
	updated, err := provider.UpdateRecord(r.Context(), rec.ZoneID, rec.ID, model.RecordFields{
		Name:    rec.Name,
		Type:    rec.Type,
		Content: rec.Content,
		Proxied: rec.Proxied,
		TTL:     rec.TTL,
	})
	if err != nil {
		h.providerError(w, "update record", err)
		return
	}

	rec.Proxied = updated.Proxied
	rec.TTL = updated.TTL
	rec.LastUpdated = h.now().UTC()
	if err := h.store.UpsertRecord(r.Context(), *rec); err != nil {
		h.internalError(w, "cache record", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteRecord removes the record upstream and from the cache. A record the
// provider no longer knows is still dropped locally.
func (h *APIHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.cachedRecord(w, r)
	if !ok {
		return
	}

	provider, err := h.provider(r.Context())
	if err != nil {
		h.providerError(w, "delete record", err)
		return
	}
	err = provider.DeleteRecord(r.Context(), rec.ZoneID, rec.ID)
	if err != nil && !errors.Is(err, service.ErrRecordNotFound) {
		h.providerError(w, "delete record", err)
		return
	}

	if err := h.store.DeleteRecord(r.Context(), rec.ID); err != nil {
		h.internalError(w, "delete cached record", err)
		return
	}
	h.log.Info("record deleted", slog.String("hostname", rec.Name), slog.String("type", string(rec.Type)))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type logsResponse struct {
	Logs       []model.UpdateLogEntry `json:"logs"`
	Total      int                    `json:"total"`
	Page       int                    `json:"page"`
	TotalPages int                    `json:"totalPages"`
}

func (h *APIHandler) Logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := min(maxLogPage, max(1, atoiDefault(q.Get("page"), 1)))
	limit := min(maxLogLimit, max(1, atoiDefault(q.Get("limit"), defaultLogLimit)))

	entries, total, err := h.store.ListUpdateLog(r.Context(), model.UpdateLogFilter{
		Hostname: q.Get("hostname"),
		Response: q.Get("response"),
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		h.internalError(w, "list update log", err)
		return
	}

	writeJSON(w, http.StatusOK, logsResponse{
		Logs:       nonNil(entries),
		Total:      total,
		Page:       page,
		TotalPages: (total + limit - 1) / limit,
	})
}

type userView struct {
	Username string `json:"username"`
}

type settingsResponse struct {
	APIToken        string     `json:"apiToken"`
	HasToken        bool       `json:"hasToken"`
	TokenSource     string     `json:"tokenSource"`
	Provider        string     `json:"provider"`
	RateLimitWindow int64      `json:"rateLimitWindow"`
	RateLimitMax    int        `json:"rateLimitMax"`
	DDNSUsers       []userView `json:"ddnsUsers"`
}

func (h *APIHandler) Settings(w http.ResponseWriter, r *http.Request) {
	stored, err := h.store.GetSetting(r.Context(), service.SettingAPIToken)
	if err != nil {
		h.internalError(w, "read settings", err)
		return
	}

	resp := settingsResponse{
		Provider:  h.providers.Name(),
		DDNSUsers: make([]userView, 0, len(h.users)),
	}
	switch {
	case stored != "":
		resp.TokenSource = "settings"
	default:
		if _, err := h.tokens.ActiveToken(r.Context()); err == nil {
			resp.TokenSource = "config"
		}
	}
	if resp.TokenSource != "" {
		resp.HasToken = true
		resp.APIToken = "********"
	}

	cfg := h.limiter.Config()
	resp.RateLimitWindow = cfg.Window.Milliseconds()
	resp.RateLimitMax = cfg.MaxRequests
	for _, u := range h.users {
		resp.DDNSUsers = append(resp.DDNSUsers, userView{Username: u})
	}
	writeJSON(w, http.StatusOK, resp)
}

type settingsRequest struct {
	APIToken        string `json:"apiToken"`
	RateLimitWindow *int64 `json:"rateLimitWindow"`
	RateLimitMax    *int   `json:"rateLimitMax"`
}

func (h *APIHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RateLimitWindow != nil && *req.RateLimitWindow <= 0 {
		writeError(w, http.StatusBadRequest, "rateLimitWindow must be positive")
		return
	}
	if req.RateLimitMax != nil && *req.RateLimitMax <= 0 {
		writeError(w, http.StatusBadRequest, "rateLimitMax must be positive")
		return
	}

	if token := strings.TrimSpace(req.APIToken); token != "" {
		if err := h.tokens.Store(r.Context(), h.providers, token); err != nil {
			if errors.Is(err, service.ErrInvalidToken) {
				writeError(w, http.StatusBadRequest, "Invalid token")
				return
			}
			h.log.Error("token validation failed", slog.Any("error", err))
			writeError(w, http.StatusBadGateway, "Failed to validate token")
			return
		}
		h.log.Info("provider api token updated", slog.String("provider", h.providers.Name()))
	}

	if req.RateLimitWindow != nil || req.RateLimitMax != nil {
		cfg := h.limiter.Config()
		if req.RateLimitWindow != nil {
			cfg.Window = time.Duration(*req.RateLimitWindow) * time.Millisecond
		}
		if req.RateLimitMax != nil {
			cfg.MaxRequests = *req.RateLimitMax
		}
		if err := service.SaveRateLimit(r.Context(), h.store, cfg); err != nil {
			h.internalError(w, "store rate limit", err)
			return
		}
		h.limiter.Configure(cfg)
		h.log.Info("rate limit updated",
			slog.Duration("window", cfg.Window),
			slog.Int("max_requests", cfg.MaxRequests),
		)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *APIHandler) provider(ctx context.Context) (service.Provider, error) {
	token, err := h.tokens.ActiveToken(ctx)
	if err != nil {
		return nil, err
	}
	return h.providers.Get(ctx, token)
}

func (h *APIHandler) storedZone(ctx context.Context, id string) (*model.Zone, error) {
	zones, err := h.store.ListZones(ctx)
	if err != nil {
		return nil, err
	}
	for _, z := range zones {
		if z.ID == id {
			return &z, nil
		}
	}
	return nil, nil
}

// cachedRecord loads the record named by the {id} path value, writing the
// error response itself when it cannot.
func (h *APIHandler) cachedRecord(w http.ResponseWriter, r *http.Request) (*model.ManagedRecord, bool) {
	rec, err := h.store.GetRecordByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.internalError(w, "load record", err)
		return nil, false
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Record not found")
		return nil, false
	}
	return rec, true
}

func (h *APIHandler) providerError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrNoToken):
		writeError(w, http.StatusBadRequest, "No token configured")
	case errors.Is(err, service.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "Invalid token")
	case errors.Is(err, service.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "Record not found")
	case errors.Is(err, service.ErrZoneNotVisible):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error(op+" failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (h *APIHandler) internalError(w http.ResponseWriter, op string, err error) {
	h.log.Error(op+" failed", slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// Pinger is anything with a liveness check, normally the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports 200 while p answers within two seconds.
func Health(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r io.Reader, out any) error {
	dec := json.NewDecoder(io.LimitReader(r, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"flareddns/internal/metrics"
	"flareddns/internal/model"
	"flareddns/internal/ratelimit"
)

const DefaultHostnameTimeout = 30 * time.Second

// Authenticator checks DDNS client credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) bool
}

// UpdateRequest is a decoded dyndns2 update call.
type UpdateRequest struct {
	Username       string
	Password       string
	HasCredentials bool
	Hostnames      string
	MyIP           string
	ClientIP       string
}

type UpdaterDeps struct {
	Auth            Authenticator
	Limiter         *ratelimit.Limiter
	Zones           ZoneStore
	Tokens          *TokenSource
	Providers       *ProviderCache
	Reconciler      *Reconciler
	Audit           *AuditLogger
	Log             *slog.Logger
	HostnameTimeout time.Duration
}

// Updater runs the dyndns2 update flow: authenticate, parse, admit,
// resolve and reconcile, one status per hostname/IP pair.
type Updater struct {
	auth            Authenticator
	limiter         *ratelimit.Limiter
	zones           ZoneStore
	tokens          *TokenSource
	providers       *ProviderCache
	reconciler      *Reconciler
	audit           *AuditLogger
	log             *slog.Logger
	hostnameTimeout time.Duration
}

func NewUpdater(deps UpdaterDeps) *Updater {
	timeout := deps.HostnameTimeout
	if timeout <= 0 {
		timeout = DefaultHostnameTimeout
	}
	return &Updater{
		auth:            deps.Auth,
		limiter:         deps.Limiter,
		zones:           deps.Zones,
		tokens:          deps.Tokens,
		providers:       deps.Providers,
		reconciler:      deps.Reconciler,
		audit:           deps.Audit,
		log:             deps.Log,
		hostnameTimeout: timeout,
	}
}

// Update processes one request. The result is never empty.
func (u *Updater) Update(ctx context.Context, req UpdateRequest) []model.Status {
	hostnames := splitList(req.Hostnames, true)

	if !req.HasCredentials || !u.auth.Authenticate(ctx, req.Username, req.Password) {
		u.log.Warn("ddns authentication failed",
			slog.String("username", req.Username),
			slog.String("source_ip", req.ClientIP),
		)
		if len(hostnames) == 0 {
			u.audit.Record(ctx, "", "", req.ClientIP, req.Username, model.BadAuth)
			return []model.Status{model.BadAuth}
		}
		statuses := make([]model.Status, len(hostnames))
		for i, h := range hostnames {
			u.audit.Record(ctx, h, "", req.ClientIP, req.Username, model.BadAuth)
			statuses[i] = model.BadAuth
		}
		return statuses
	}

	if len(hostnames) == 0 {
		u.audit.Record(ctx, "", "", req.ClientIP, req.Username, model.NotFqdn)
		return []model.Status{model.NotFqdn}
	}

	assigned := assignIPs(hostnames, splitList(req.MyIP, false), req.ClientIP)

	zones, provider, err := u.prepare(ctx)
	if err != nil {
		u.log.Error("update unavailable", slog.Any("error", err))
		var statuses []model.Status
		for i, h := range hostnames {
			for _, ip := range assigned[i] {
				u.audit.Record(ctx, h, ip, req.ClientIP, req.Username, model.ServiceUnavailable)
				statuses = append(statuses, model.ServiceUnavailable)
			}
		}
		return statuses
	}

	results := make([][]model.Status, len(hostnames))
	p := pool.New()
	for i, h := range hostnames {
		p.Go(func() {
			results[i] = u.updateHostname(ctx, req, provider, zones, h, assigned[i])
		})
	}
	p.Wait()
	metrics.RateLimitKeys.Set(float64(u.limiter.Len()))

	var statuses []model.Status
	for _, r := range results {
		statuses = append(statuses, r...)
	}
	return statuses
}

func (u *Updater) prepare(ctx context.Context) ([]model.Zone, Provider, error) {
	token, err := u.tokens.ActiveToken(ctx)
	if err != nil {
		return nil, nil, err
	}
	provider, err := u.providers.Get(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	zones, err := u.zones.ListZones(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list zones: %w", err)
	}
	return zones, provider, nil
}

// updateHostname never panics; a panic turns every pending IP into dnserr.
func (u *Updater) updateHostname(ctx context.Context, req UpdateRequest, provider Provider, zones []model.Zone, hostname string, ips []string) (statuses []model.Status) {
	ctx, cancel := context.WithTimeout(ctx, u.hostnameTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			u.log.Error("panic while updating hostname",
				slog.String("hostname", hostname),
				slog.Any("panic", r),
			)
			for i := len(statuses); i < len(ips); i++ {
				u.audit.Record(ctx, hostname, ips[i], req.ClientIP, req.Username, model.DNSError)
				statuses = append(statuses, model.DNSError)
			}
		}
	}()

	if !ValidHostname(hostname) {
		u.audit.Record(ctx, hostname, ips[0], req.ClientIP, req.Username, model.NotFqdn)
		return []model.Status{model.NotFqdn}
	}

	if !u.limiter.Allow(hostname) {
		u.log.Warn("rate limit exceeded", slog.String("hostname", hostname))
		u.audit.Record(ctx, hostname, ips[0], req.ClientIP, req.Username, model.Abuse)
		return []model.Status{model.Abuse}
	}

	zone, ok := ResolveZone(hostname, zones)
	if !ok {
		u.audit.Record(ctx, hostname, ips[0], req.ClientIP, req.Username, model.NoHost)
		return []model.Status{model.NoHost}
	}

	for _, raw := range ips {
		var status model.Status
		ip, kind, ok := classifyIP(raw)
		if !ok {
			u.log.Warn("invalid ip in update", slog.String("hostname", hostname), slog.String("ip", raw))
			status = model.DNSError
			ip = raw
		} else {
			status = u.reconciler.Reconcile(ctx, provider, zone, hostname, ip, kind)
		}
		u.audit.Record(ctx, hostname, ip, req.ClientIP, req.Username, status)
		statuses = append(statuses, status)
	}
	return statuses
}

// assignIPs pairs hostnames with addresses. Without myip every hostname gets
// the client address. With myip, hostname i takes ips[i]; hostnames past the
// end of the list fall back to the client address, and addresses past the
// last hostname all go to that hostname.
func assignIPs(hostnames, ips []string, clientIP string) [][]string {
	out := make([][]string, len(hostnames))
	for i := range hostnames {
		switch {
		case len(ips) == 0 || i >= len(ips):
			out[i] = []string{clientIP}
		case i == len(hostnames)-1:
			out[i] = ips[i:]
		default:
			out[i] = []string{ips[i]}
		}
	}
	return out
}

func classifyIP(raw string) (string, model.RecordType, bool) {
	addr, err := netip.ParseAddr(raw)
	if err != nil || addr.Zone() != "" {
		return "", "", false
	}
	addr = addr.Unmap()
	if addr.Is4() {
		return addr.String(), model.RecordTypeA, true
	}
	return addr.String(), model.RecordTypeAAAA, true
}

func splitList(raw string, lower bool) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lower {
			part = strings.TrimSuffix(strings.ToLower(part), ".")
		}
		out = append(out, part)
	}
	return out
}

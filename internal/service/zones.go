package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/miekg/dns"

	"flareddns/internal/model"
)

var ErrZoneNotVisible = errors.New("zone is not visible to the configured token")

// ResolveZone returns the zone owning hostname: the longest zone name that
// equals hostname or is a whole-label suffix of it.
func ResolveZone(hostname string, zones []model.Zone) (model.Zone, bool) {
	host := dns.Fqdn(hostname)

	var best model.Zone
	bestLabels := -1
	for _, z := range zones {
		if z.Name == "" {
			continue
		}
		name := dns.Fqdn(z.Name)
		if !dns.IsSubDomain(name, host) {
			continue
		}
		if labels := dns.CountLabel(name); labels > bestLabels {
			best, bestLabels = z, labels
		}
	}
	return best, bestLabels >= 0
}

// ValidHostname reports whether h is a syntactically valid name with at
// least two labels.
func ValidHostname(h string) bool {
	if h == "" || strings.ContainsAny(h, " \t/\\@") {
		return false
	}
	labels, ok := dns.IsDomainName(h)
	return ok && labels >= 2
}

// ZoneService keeps the local zone table in step with the provider.
type ZoneService struct {
	store     ZoneStore
	tokens    *TokenSource
	providers *ProviderCache
	log       *slog.Logger
}

func NewZoneService(store ZoneStore, tokens *TokenSource, providers *ProviderCache, log *slog.Logger) *ZoneService {
	return &ZoneService{store: store, tokens: tokens, providers: providers, log: log}
}

func (s *ZoneService) provider(ctx context.Context) (Provider, error) {
	token, err := s.tokens.ActiveToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.providers.Get(ctx, token)
}

// Available lists the zones visible to the active token.
func (s *ZoneService) Available(ctx context.Context) ([]model.Zone, error) {
	p, err := s.provider(ctx)
	if err != nil {
		return nil, err
	}
	return p.ListZones(ctx)
}

// Import stores the provider zones whose ids are listed. Unknown ids are an
// error and nothing is written.
func (s *ZoneService) Import(ctx context.Context, ids []string) ([]model.Zone, error) {
	remote, err := s.Available(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.Zone, len(remote))
	for _, z := range remote {
		byID[z.ID] = z
	}

	selected := make([]model.Zone, 0, len(ids))
	for _, id := range ids {
		z, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("zone %s: %w", id, ErrZoneNotVisible)
		}
		selected = append(selected, z)
	}

	for _, z := range selected {
		if err := s.store.UpsertZone(ctx, z); err != nil {
			return nil, fmt.Errorf("store zone %s: %w", z.Name, err)
		}
		s.log.Info("zone imported", slog.String("zone", z.Name), slog.String("id", z.ID))
	}
	return s.store.ListZones(ctx)
}

// Sync refreshes name and status of zones already stored locally. Zones the
// provider no longer reports are left untouched.
func (s *ZoneService) Sync(ctx context.Context) ([]model.Zone, error) {
	remote, err := s.Available(ctx)
	if err != nil {
		return nil, err
	}
	local, err := s.store.ListZones(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(local))
	for _, z := range local {
		known[z.ID] = true
	}
	for _, z := range remote {
		if !known[z.ID] {
			continue
		}
		if err := s.store.UpsertZone(ctx, z); err != nil {
			return nil, fmt.Errorf("store zone %s: %w", z.Name, err)
		}
	}
	return s.store.ListZones(ctx)
}

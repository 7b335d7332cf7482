package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"flareddns/internal/metrics"
	"flareddns/internal/model"
)

var (
	// ErrRecordNotFound is returned by a Provider when the record id it was
	// asked to change no longer exists upstream.
	ErrRecordNotFound = errors.New("record not found")
	ErrNoToken        = errors.New("no provider api token configured")
	ErrInvalidToken   = errors.New("provider api token is not valid")
)

// Provider is the authoritative DNS API.
type Provider interface {
	VerifyToken(ctx context.Context) error
	ListZones(ctx context.Context) ([]model.Zone, error)
	ListRecords(ctx context.Context, zoneID string, kind model.RecordType) ([]model.RemoteRecord, error)
	CreateRecord(ctx context.Context, zoneID string, fields model.RecordFields) (model.RemoteRecord, error)
	UpdateRecord(ctx context.Context, zoneID, recordID string, fields model.RecordFields) (model.RemoteRecord, error)
	DeleteRecord(ctx context.Context, zoneID, recordID string) error
}

// ProviderFactory builds a Provider authenticated with token.
type ProviderFactory func(ctx context.Context, token string) (Provider, error)

// ProviderCache keeps the client for the most recently used token so that
// updates do not rebuild it on every request.
type ProviderCache struct {
	mu      sync.Mutex
	name    string
	factory ProviderFactory
	token   string
	current Provider
}

func NewProviderCache(name string, factory ProviderFactory) *ProviderCache {
	return &ProviderCache{name: name, factory: factory}
}

func (c *ProviderCache) Name() string {
	return c.name
}

func (c *ProviderCache) Get(ctx context.Context, token string) (Provider, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.token == token {
		return c.current, nil
	}
	p, err := c.factory(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", c.name, err)
	}
	c.token = token
	c.current = &instrumented{Provider: p, name: c.name}
	return c.current, nil
}

type instrumented struct {
	Provider
	name string
}

func (p *instrumented) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ProviderRequests.WithLabelValues(p.name, op, result).Inc()
}

func (p *instrumented) VerifyToken(ctx context.Context) error {
	err := p.Provider.VerifyToken(ctx)
	p.observe("verify_token", err)
	return err
}

func (p *instrumented) ListZones(ctx context.Context) ([]model.Zone, error) {
	zones, err := p.Provider.ListZones(ctx)
	p.observe("list_zones", err)
	return zones, err
}

func (p *instrumented) ListRecords(ctx context.Context, zoneID string, kind model.RecordType) ([]model.RemoteRecord, error) {
	records, err := p.Provider.ListRecords(ctx, zoneID, kind)
	p.observe("list_records", err)
	return records, err
}

func (p *instrumented) CreateRecord(ctx context.Context, zoneID string, fields model.RecordFields) (model.RemoteRecord, error) {
	rec, err := p.Provider.CreateRecord(ctx, zoneID, fields)
	p.observe("create_record", err)
	return rec, err
}

func (p *instrumented) UpdateRecord(ctx context.Context, zoneID, recordID string, fields model.RecordFields) (model.RemoteRecord, error) {
	rec, err := p.Provider.UpdateRecord(ctx, zoneID, recordID, fields)
	p.observe("update_record", err)
	return rec, err
}

func (p *instrumented) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	err := p.Provider.DeleteRecord(ctx, zoneID, recordID)
	p.observe("delete_record", err)
	return err
}

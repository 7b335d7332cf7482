package fake

import (
	"context"
	"fmt"
	"sync"

	"flareddns/internal/model"
	"flareddns/internal/service"
)

// Provider is an in-memory DNS provider that counts calls.
type Provider struct {
	mu      sync.Mutex
	zones   []model.Zone
	records map[string]map[string]model.RemoteRecord
	nextID  int
	calls   map[string]int

	// Fail makes the named operation return an error, e.g. "update".
	Fail map[string]error
	// Valid is the result of VerifyToken.
	Valid bool
	// OnUpdate, when set, runs before every UpdateRecord.
	OnUpdate func(zoneID, recordID string)
	// OnList, when set, runs before every ListRecords outside the lock. A
	// non-nil error is returned to the caller, which lets a test hold the
	// call until ctx is done.
	OnList func(ctx context.Context, zoneID string) error
}

func NewProvider(zones ...model.Zone) *Provider {
	return &Provider{
		zones:   zones,
		records: make(map[string]map[string]model.RemoteRecord),
		calls:   make(map[string]int),
		Fail:    make(map[string]error),
		Valid:   true,
	}
}

// Factory returns a ProviderFactory that always hands out p.
func (p *Provider) Factory() service.ProviderFactory {
	return func(context.Context, string) (service.Provider, error) {
		return p, nil
	}
}

// Seed stores a record as if it had been created out of band.
func (p *Provider) Seed(zoneID string, rec model.RemoteRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.records[zoneID] == nil {
		p.records[zoneID] = make(map[string]model.RemoteRecord)
	}
	p.records[zoneID][rec.ID] = rec
}

func (p *Provider) Record(zoneID, id string) (model.RemoteRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.records[zoneID][id]
	return r, ok
}

// Remove deletes a record without counting a call.
func (p *Provider) Remove(zoneID, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.records[zoneID], id)
}

func (p *Provider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// Writes is the number of create and update calls.
func (p *Provider) Writes() int {
	return p.Calls("create") + p.Calls("update")
}

func (p *Provider) begin(op string) error {
	p.calls[op]++
	return p.Fail[op]
}

func (p *Provider) VerifyToken(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("verify"); err != nil {
		return err
	}
	if !p.Valid {
		return service.ErrInvalidToken
	}
	return nil
}

func (p *Provider) ListZones(context.Context) ([]model.Zone, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("zones"); err != nil {
		return nil, err
	}
	return append([]model.Zone(nil), p.zones...), nil
}

func (p *Provider) ListRecords(ctx context.Context, zoneID string, kind model.RecordType) ([]model.RemoteRecord, error) {
	if p.OnList != nil {
		if err := p.OnList(ctx, zoneID); err != nil {
			return nil, err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("list"); err != nil {
		return nil, err
	}
	var out []model.RemoteRecord
	for _, r := range p.records[zoneID] {
		if r.Type == kind {
			out = append(out, r)
		}
	}
	return out, nil
}

func (p *Provider) CreateRecord(_ context.Context, zoneID string, f model.RecordFields) (model.RemoteRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("create"); err != nil {
		return model.RemoteRecord{}, err
	}
	p.nextID++
	rec := model.RemoteRecord{
		ID:      fmt.Sprintf("rec%d", p.nextID),
		Name:    f.Name,
		Type:    f.Type,
		Content: f.Content,
		Proxied: f.Proxied,
		TTL:     f.TTL,
	}
	if p.records[zoneID] == nil {
		p.records[zoneID] = make(map[string]model.RemoteRecord)
	}
	p.records[zoneID][rec.ID] = rec
	return rec, nil
}

func (p *Provider) UpdateRecord(_ context.Context, zoneID, recordID string, f model.RecordFields) (model.RemoteRecord, error) {
	if p.OnUpdate != nil {
		p.OnUpdate(zoneID, recordID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("update"); err != nil {
		return model.RemoteRecord{}, err
	}
	if _, ok := p.records[zoneID][recordID]; !ok {
		return model.RemoteRecord{}, fmt.Errorf("update %s: %w", recordID, service.ErrRecordNotFound)
	}
	rec := model.RemoteRecord{
		ID:      recordID,
		Name:    f.Name,
		Type:    f.Type,
		Content: f.Content,
		Proxied: f.Proxied,
		TTL:     f.TTL,
	}
	p.records[zoneID][recordID] = rec
	return rec, nil
}

func (p *Provider) DeleteRecord(_ context.Context, zoneID, recordID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("delete"); err != nil {
		return err
	}
	if _, ok := p.records[zoneID][recordID]; !ok {
		return fmt.Errorf("delete %s: %w", recordID, service.ErrRecordNotFound)
	}
	delete(p.records[zoneID], recordID)
	return nil
}

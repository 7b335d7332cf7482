package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"flareddns/internal/model"
)

// AutoTTL asks the provider for its default TTL.
const AutoTTL = 1

// Reconciler brings one provider record in line with a requested address,
// using the local cache as a fast path only.
type Reconciler struct {
	records RecordStore
	log     *slog.Logger
	locks   *keyedMutex
	now     func() time.Time
}

func NewReconciler(records RecordStore, log *slog.Logger) *Reconciler {
	return &Reconciler{
		records: records,
		log:     log,
		locks:   newKeyedMutex(),
		now:     time.Now,
	}
}

// Reconcile returns Good, NoChange or DNSError. The cache is only written
// after the provider accepted the change.
func (r *Reconciler) Reconcile(ctx context.Context, p Provider, zone model.Zone, hostname, ip string, kind model.RecordType) model.Status {
	unlock := r.locks.Lock(hostname + "/" + string(kind))
	defer unlock()

	log := r.log.With(slog.String("hostname", hostname), slog.String("type", string(kind)), slog.String("ip", ip))

	cached, err := r.records.GetRecord(ctx, hostname, kind)
	if err != nil {
		log.Warn("record cache lookup failed", slog.Any("error", err))
		cached = nil
	}

	if cached != nil {
		if cached.Content == ip {
			return model.NoChange(ip)
		}

		_, err := p.UpdateRecord(ctx, zone.ID, cached.ID, model.RecordFields{
			Name:    hostname,
			Type:    kind,
			Content: ip,
			Proxied: cached.Proxied,
			TTL:     cached.TTL,
		})
		switch {
		case err == nil:
			rec := *cached
			rec.ZoneID = zone.ID
			rec.Content = ip
			rec.LastUpdated = r.now()
			r.store(ctx, log, rec)
			log.Info("record updated")
			return model.Good(ip)
		case errors.Is(err, ErrRecordNotFound):
			log.Warn("cached record missing upstream", slog.String("record_id", cached.ID))
			if err := r.records.DeleteRecord(ctx, cached.ID); err != nil {
				log.Warn("failed to drop stale cache row", slog.Any("error", err))
			}
		default:
			log.Error("provider update failed", slog.Any("error", err))
			return model.DNSError
		}
	}

	remote, err := p.ListRecords(ctx, zone.ID, kind)
	if err != nil {
		log.Error("provider list failed", slog.Any("error", err))
		return model.DNSError
	}

	for _, existing := range remote {
		if existing.Name != hostname || existing.Type != kind {
			continue
		}

		if existing.Content != ip {
			if _, err := p.UpdateRecord(ctx, zone.ID, existing.ID, model.RecordFields{
				Name:    hostname,
				Type:    kind,
				Content: ip,
				Proxied: existing.Proxied,
				TTL:     existing.TTL,
			}); err != nil {
				log.Error("provider update failed", slog.Any("error", err))
				return model.DNSError
			}
		}

		r.store(ctx, log, model.ManagedRecord{
			ID:          existing.ID,
			ZoneID:      zone.ID,
			Name:        hostname,
			Type:        kind,
			Content:     ip,
			Proxied:     existing.Proxied,
			TTL:         existing.TTL,
			LastUpdated: r.now(),
		})
		if existing.Content == ip {
			return model.NoChange(ip)
		}
		log.Info("record updated")
		return model.Good(ip)
	}

	created, err := p.CreateRecord(ctx, zone.ID, model.RecordFields{
		Name:    hostname,
		Type:    kind,
		Content: ip,
		Proxied: false,
		TTL:     AutoTTL,
	})
	if err != nil {
		log.Error("provider create failed", slog.Any("error", err))
		return model.DNSError
	}

	r.store(ctx, log, model.ManagedRecord{
		ID:          created.ID,
		ZoneID:      zone.ID,
		Name:        hostname,
		Type:        kind,
		Content:     ip,
		Proxied:     false,
		TTL:         AutoTTL,
		LastUpdated: r.now(),
	})
	log.Info("record created", slog.String("record_id", created.ID))
	return model.Good(ip)
}

// store writes through to the cache. The provider already holds the new
// state, so a failure here only costs a remote lookup next time.
func (r *Reconciler) store(ctx context.Context, log *slog.Logger, rec model.ManagedRecord) {
	if err := r.records.UpsertRecord(ctx, rec); err != nil {
		log.Warn("record cache write failed", slog.Any("error", err))
	}
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

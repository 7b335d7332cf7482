// Package fake provides in-memory stand-ins for the database and the DNS
// provider, for tests.
package fake

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"flareddns/internal/model"
)

type Store struct {
	mu       sync.Mutex
	zones    map[string]model.Zone
	records  map[string]model.ManagedRecord
	logs     []model.UpdateLogEntry
	settings map[string]string
	users    map[string]model.DDNSUser

	// Err, when set, is returned by every method.
	Err error
	// LogErr, when set, is returned by LogUpdate only.
	LogErr error
	// WriteErr, when set, is returned by UpsertRecord only.
	WriteErr error
}

func NewStore(zones ...model.Zone) *Store {
	s := &Store{
		zones:    make(map[string]model.Zone),
		records:  make(map[string]model.ManagedRecord),
		settings: make(map[string]string),
		users:    make(map[string]model.DDNSUser),
	}
	for _, z := range zones {
		s.zones[z.ID] = z
	}
	return s
}

func (s *Store) ListZones(_ context.Context) ([]model.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	zones := make([]model.Zone, 0, len(s.zones))
	for _, z := range s.zones {
		zones = append(zones, z)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].Name < zones[j].Name })
	return zones, nil
}

func (s *Store) UpsertZone(_ context.Context, zone model.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.zones[zone.ID] = zone
	return nil
}

func (s *Store) GetRecord(_ context.Context, name string, kind model.RecordType) (*model.ManagedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, r := range s.records {
		if r.Name == name && r.Type == kind {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *Store) GetRecordByID(_ context.Context, id string) (*model.ManagedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *Store) UpsertRecord(_ context.Context, rec model.ManagedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.WriteErr != nil {
		return s.WriteErr
	}
	for id, r := range s.records {
		if id != rec.ID && r.Name == rec.Name && r.Type == rec.Type {
			delete(s.records, id)
		}
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *Store) DeleteRecord(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.records, id)
	return nil
}

func (s *Store) ListRecords(_ context.Context) ([]model.ManagedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]model.ManagedRecord, 0, len(s.records))
	for _, r := range s.records {
		if z, ok := s.zones[r.ZoneID]; ok {
			r.ZoneName = z.Name
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Records returns a snapshot of the cached records keyed by id.
func (s *Store) Records() map[string]model.ManagedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.ManagedRecord, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

func (s *Store) LogUpdate(_ context.Context, entry model.UpdateLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LogErr != nil {
		return s.LogErr
	}
	entry.ID = int64(len(s.logs) + 1)
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.logs = append(s.logs, entry)
	return nil
}

func (s *Store) Logs() []model.UpdateLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.UpdateLogEntry(nil), s.logs...)
}

// ListUpdateLog mirrors the database filter: hostname substring, response
// prefix, newest first.
func (s *Store) ListUpdateLog(_ context.Context, f model.UpdateLogFilter) ([]model.UpdateLogEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, 0, s.Err
	}
	var matched []model.UpdateLogEntry
	for i := len(s.logs) - 1; i >= 0; i-- {
		e := s.logs[i]
		if f.Hostname != "" && !strings.Contains(e.Hostname, f.Hostname) {
			continue
		}
		if f.Response != "" && !strings.HasPrefix(e.Response, f.Response) {
			continue
		}
		matched = append(matched, e)
	}
	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (s *Store) UpdateStats(_ context.Context, since time.Time) (model.UpdateStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats model.UpdateStats
	if s.Err != nil {
		return stats, s.Err
	}
	for _, e := range s.logs {
		if stats.LastUpdate == nil || e.Timestamp.After(*stats.LastUpdate) {
			ts := e.Timestamp
			stats.LastUpdate = &ts
		}
		if e.Timestamp.Before(since) {
			continue
		}
		stats.TotalToday++
		if strings.HasPrefix(e.Response, "good") {
			stats.SuccessfulToday++
		}
	}
	stats.ActiveHostnames = len(s.records)
	return stats, nil
}

func (s *Store) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	return s.settings[key], nil
}

func (s *Store) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.settings[key] = value
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Err
}

func (s *Store) GetDDNSUser(_ context.Context, username string) (*model.DDNSUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) ListDDNSUsers(_ context.Context) ([]model.DDNSUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]model.DDNSUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) CreateDDNSUser(_ context.Context, username, passHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.users[username]; ok {
		return errors.New("fake: duplicate user " + username)
	}
	now := time.Now().UTC()
	s.users[username] = model.DDNSUser{Username: username, PassHash: passHash, Active: true, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (s *Store) UpdateDDNSUser(_ context.Context, username, passHash string, active bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	u, ok := s.users[username]
	if !ok {
		return false, nil
	}
	u.PassHash, u.Active, u.UpdatedAt = passHash, active, time.Now().UTC()
	s.users[username] = u
	return true, nil
}

func (s *Store) DeleteDDNSUser(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	_, ok := s.users[username]
	delete(s.users, username)
	return ok, nil
}

var ErrUnavailable = errors.New("fake: unavailable")

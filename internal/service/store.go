package service

import (
	"context"

	"flareddns/internal/model"
)

type ZoneStore interface {
	ListZones(ctx context.Context) ([]model.Zone, error)
	UpsertZone(ctx context.Context, zone model.Zone) error
}

// RecordStore is the local record cache. GetRecord returns (nil, nil) when
// nothing is cached for the pair.
type RecordStore interface {
	GetRecord(ctx context.Context, name string, kind model.RecordType) (*model.ManagedRecord, error)
	UpsertRecord(ctx context.Context, rec model.ManagedRecord) error
	DeleteRecord(ctx context.Context, id string) error
}

type UpdateLogStore interface {
	LogUpdate(ctx context.Context, entry model.UpdateLogEntry) error
}

type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

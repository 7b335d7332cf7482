package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"flareddns/internal/model"
)

func (db *DB) ListZones(ctx context.Context) ([]model.Zone, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT id, name, status FROM zones ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []model.Zone
	for rows.Next() {
		var z model.Zone
		if err := rows.Scan(&z.ID, &z.Name, &z.Status); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

func (db *DB) UpsertZone(ctx context.Context, zone model.Zone) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO zones (id, name, status) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status`,
		zone.ID, zone.Name, zone.Status,
	)
	return err
}

const recordColumns = `r.id, r.zone_id, z.name, r.name, r.type, r.content, r.proxied, r.ttl, r.last_updated`

func scanRecord(row interface{ Scan(...any) error }) (model.ManagedRecord, error) {
	var rec model.ManagedRecord
	var zoneName sql.NullString
	var kind string
	err := row.Scan(&rec.ID, &rec.ZoneID, &zoneName, &rec.Name, &kind, &rec.Content, &rec.Proxied, &rec.TTL, &rec.LastUpdated)
	rec.ZoneName = zoneName.String
	rec.Type = model.RecordType(kind)
	return rec, err
}

// GetRecord returns (nil, nil) when nothing is cached for (name, kind).
func (db *DB) GetRecord(ctx context.Context, name string, kind model.RecordType) (*model.ManagedRecord, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM dns_records r LEFT JOIN zones z ON r.zone_id = z.id
		 WHERE r.name = $1 AND r.type = $2`, name, string(kind))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (db *DB) GetRecordByID(ctx context.Context, id string) (*model.ManagedRecord, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM dns_records r LEFT JOIN zones z ON r.zone_id = z.id
		 WHERE r.id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (db *DB) ListRecords(ctx context.Context) ([]model.ManagedRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM dns_records r LEFT JOIN zones z ON r.zone_id = z.id
		 ORDER BY r.name, r.type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.ManagedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpsertRecord stores rec, replacing any row with the same id or the same
// (name, type). The provider may hand out a new id for a record we already
// know under another one.
func (db *DB) UpsertRecord(ctx context.Context, rec model.ManagedRecord) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM dns_records WHERE name = $1 AND type = $2 AND id <> $3",
		rec.Name, string(rec.Type), rec.ID,
	); err != nil {
		return fmt.Errorf("drop conflicting record: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dns_records (id, zone_id, name, type, content, proxied, ttl, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   zone_id = EXCLUDED.zone_id,
		   name = EXCLUDED.name,
		   type = EXCLUDED.type,
		   content = EXCLUDED.content,
		   proxied = EXCLUDED.proxied,
		   ttl = EXCLUDED.ttl,
		   last_updated = EXCLUDED.last_updated`,
		rec.ID, rec.ZoneID, rec.Name, string(rec.Type), rec.Content, rec.Proxied, rec.TTL, rec.LastUpdated,
	); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}

	return tx.Commit()
}

func (db *DB) DeleteRecord(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM dns_records WHERE id = $1", id)
	return err
}

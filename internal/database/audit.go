package database

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"flareddns/internal/model"
)

func (db *DB) LogUpdate(ctx context.Context, entry model.UpdateLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO update_log (timestamp, hostname, ip, source_ip, response, username)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.Timestamp, entry.Hostname, entry.IP, entry.SourceIP, entry.Response, entry.Username,
	)
	return err
}

// ListUpdateLog returns a page of log rows, newest first, and the total row
// count matching the filter. Hostname matches as a substring, response as a
// prefix.
func (db *DB) ListUpdateLog(ctx context.Context, f model.UpdateLogFilter) ([]model.UpdateLogEntry, int, error) {
	var where []string
	var args []any
	if f.Hostname != "" {
		args = append(args, "%"+escapeLike(f.Hostname)+"%")
		where = append(where, "hostname LIKE $"+strconv.Itoa(len(args)))
	}
	if f.Response != "" {
		args = append(args, escapeLike(f.Response)+"%")
		where = append(where, "response LIKE $"+strconv.Itoa(len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM update_log"+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, timestamp, hostname, ip, source_ip, response, username FROM update_log`+clause+
			` ORDER BY id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []model.UpdateLogEntry
	for rows.Next() {
		var e model.UpdateLogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Hostname, &e.IP, &e.SourceIP, &e.Response, &e.Username); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// UpdateStats summarises activity since the given instant, normally the
// start of the current day.
func (db *DB) UpdateStats(ctx context.Context, since time.Time) (model.UpdateStats, error) {
	var stats model.UpdateStats
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE response LIKE 'good%')
		 FROM update_log WHERE timestamp >= $1`, since,
	).Scan(&stats.TotalToday, &stats.SuccessfulToday)
	if err != nil {
		return stats, err
	}

	var last sql.NullTime
	if err := db.conn.QueryRowContext(ctx, "SELECT MAX(timestamp) FROM update_log").Scan(&last); err != nil {
		return stats, err
	}
	if last.Valid {
		stats.LastUpdate = &last.Time
	}

	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM dns_records").Scan(&stats.ActiveHostnames); err != nil {
		return stats, err
	}
	return stats, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

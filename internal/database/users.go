package database

import (
	"context"
	"database/sql"
	"errors"

	"flareddns/internal/model"
)

const userColumns = "username, pass_hash, active, created_at, updated_at"

func (db *DB) GetDDNSUser(ctx context.Context, username string) (*model.DDNSUser, error) {
	u := &model.DDNSUser{}
	err := db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM ddns_users WHERE username = $1", username,
	).Scan(&u.Username, &u.PassHash, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (db *DB) ListDDNSUsers(ctx context.Context) ([]model.DDNSUser, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT "+userColumns+" FROM ddns_users ORDER BY username")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.DDNSUser
	for rows.Next() {
		var u model.DDNSUser
		if err := rows.Scan(&u.Username, &u.PassHash, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateDDNSUser stores a new user. passHash must already be a bcrypt hash.
func (db *DB) CreateDDNSUser(ctx context.Context, username, passHash string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO ddns_users (username, pass_hash) VALUES ($1, $2)",
		username, passHash,
	)
	return err
}

// UpdateDDNSUser changes the hash and active flag. It reports false when the
// user does not exist.
func (db *DB) UpdateDDNSUser(ctx context.Context, username, passHash string, active bool) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE ddns_users SET pass_hash = $1, active = $2, updated_at = NOW() WHERE username = $3",
		passHash, active, username,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *DB) DeleteDDNSUser(ctx context.Context, username string) (bool, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM ddns_users WHERE username = $1", username)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

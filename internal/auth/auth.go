package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"flareddns/internal/model"
)

// UserStore looks up credentials managed at runtime.
type UserStore interface {
	GetDDNSUser(ctx context.Context, username string) (*model.DDNSUser, error)
}

// Stored checks DDNS clients against the ddns_users table. Inactive users
// are rejected.
type Stored struct {
	store UserStore
	log   *slog.Logger
}

func NewStored(store UserStore, log *slog.Logger) *Stored {
	return &Stored{store: store, log: log}
}

func (s *Stored) Authenticate(ctx context.Context, username, password string) bool {
	u, err := s.store.GetDDNSUser(ctx, username)
	if err != nil {
		s.log.Warn("ddns user lookup failed", slog.String("username", username), slog.Any("error", err))
		return false
	}
	if u == nil || !u.Active {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PassHash), []byte(password)) == nil
}

// GeneratePassword returns 32 hex characters from crypto/rand.
func GeneratePassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

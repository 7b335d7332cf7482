package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"flareddns/internal/config"
)

// Static checks DDNS clients against the configured credential list.
// Passwords may be stored in plain text or as bcrypt hashes.
type Static struct {
	users map[string]config.DDNSUser
}

func NewStatic(users []config.DDNSUser) *Static {
	m := make(map[string]config.DDNSUser, len(users))
	for _, u := range users {
		m[u.Username] = u
	}
	return &Static{users: m}
}

// dummyHash keeps the cost of a miss close to the cost of a hit.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("flareddns"), bcrypt.MinCost)

func (s *Static) Authenticate(_ context.Context, username, password string) bool {
	u, ok := s.users[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	if u.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
	}
	return ConstantTimeEqual(u.Password, password)
}

// Usernames lists the configured users in sorted order.
func (s *Static) Usernames() []string {
	return slices.Sorted(maps.Keys(s.users))
}

// ConstantTimeEqual compares secrets without leaking their common prefix.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Authenticator is satisfied by every credential backend.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) bool
}

// Chain accepts a client if any backend does, trying them in order.
type Chain []Authenticator

func (c Chain) Authenticate(ctx context.Context, username, password string) bool {
	if username == "" || password == "" {
		return false
	}
	for _, a := range c {
		if a.Authenticate(ctx, username, password) {
			return true
		}
	}
	return false
}

// HashPassword produces a value for ddns.users[].password_hash.
func HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// FromConfig builds the credential chain: configured users first, then
// users stored in the database, then LDAP when enabled. users may be nil.
func FromConfig(cfg *config.Config, users UserStore, log *slog.Logger) Chain {
	chain := Chain{NewStatic(cfg.DDNS.Users)}
	if users != nil {
		chain = append(chain, NewStored(users, log))
	}
	if cfg.LDAP.Enabled {
		chain = append(chain, NewLDAPAuthenticator(cfg.LDAP, log))
	}
	return chain
}

package auth

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"flareddns/internal/config"
)

// LDAPAuthenticator lets directory accounts act as DDNS clients. When
// RequiredGroup is set the account must be a member of it.
type LDAPAuthenticator struct {
	cfg  config.LDAPConfig
	log  *slog.Logger
	dial func() (ldapConn, func(), error)
}

type ldapConn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
}

func NewLDAPAuthenticator(cfg config.LDAPConfig, log *slog.Logger) *LDAPAuthenticator {
	a := &LDAPAuthenticator{cfg: cfg, log: log}
	a.dial = func() (ldapConn, func(), error) {
		conn, err := a.connect()
		if err != nil {
			return nil, nil, err
		}
		return conn, func() { conn.Close() }, nil
	}
	return a
}

func (a *LDAPAuthenticator) Authenticate(_ context.Context, username, password string) bool {
	if username == "" || password == "" {
		return false
	}
	if err := a.verify(username, password); err != nil {
		a.log.Info("ldap authentication rejected", slog.String("username", username), slog.Any("error", err))
		return false
	}
	return true
}

// verify performs a two-step bind: the service account finds the user, then
// the user's own DN and password are bound to check the credentials.
func (a *LDAPAuthenticator) verify(username, password string) error {
	conn, closeConn, err := a.dial()
	if err != nil {
		return fmt.Errorf("ldap connect: %w", err)
	}
	defer closeConn()

	if err := conn.Bind(a.cfg.BindDN, a.cfg.BindPassword); err != nil {
		return fmt.Errorf("ldap service bind: %w", err)
	}

	filter := fmt.Sprintf(a.cfg.UserFilter, ldap.EscapeFilter(username))
	searchReq := ldap.NewSearchRequest(
		a.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases, 0, 30, false,
		filter,
		[]string{"dn", a.cfg.UsernameAttr, "memberOf"},
		nil,
	)

	result, err := conn.Search(searchReq)
	if err != nil {
		return fmt.Errorf("ldap search: %w", err)
	}
	if len(result.Entries) != 1 {
		return fmt.Errorf("user not found or ambiguous: %d results", len(result.Entries))
	}

	entry := result.Entries[0]
	userDN := entry.DN

	if err := conn.Bind(userDN, password); err != nil {
		return fmt.Errorf("ldap user bind: %w", err)
	}

	if a.cfg.RequiredGroup == "" {
		return nil
	}

	groups := entry.GetAttributeValues("memberOf")
	if len(groups) == 0 {
		// Directories without memberOf: search for groups listing the user.
		// %s is the user DN, %u the login name.
		filterTmpl := a.cfg.GroupFilter
		if filterTmpl == "" {
			filterTmpl = "(|(member=%s)(uniqueMember=%s))"
		}
		groupFilter := strings.ReplaceAll(filterTmpl, "%s", ldap.EscapeFilter(userDN))
		groupFilter = strings.ReplaceAll(groupFilter, "%u", ldap.EscapeFilter(entry.GetAttributeValue(a.cfg.UsernameAttr)))

		groupSearch := ldap.NewSearchRequest(
			a.cfg.BaseDN,
			ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
			groupFilter,
			[]string{"dn"},
			nil,
		)
		if groupResult, err := conn.Search(groupSearch); err == nil {
			for _, ge := range groupResult.Entries {
				groups = append(groups, ge.DN)
			}
		}
	}

	for _, g := range groups {
		if strings.EqualFold(g, a.cfg.RequiredGroup) {
			return nil
		}
	}
	return fmt.Errorf("user is not a member of %s", a.cfg.RequiredGroup)
}

func (a *LDAPAuthenticator) connect() (*ldap.Conn, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: a.cfg.SkipVerify}

	if strings.HasPrefix(a.cfg.URL, "ldaps://") {
		return ldap.DialURL(a.cfg.URL, ldap.DialWithTLSConfig(tlsCfg))
	}

	conn, err := ldap.DialURL(a.cfg.URL)
	if err != nil {
		return nil, err
	}

	if a.cfg.StartTLS {
		if err := conn.StartTLS(tlsCfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}

	return conn, nil
}

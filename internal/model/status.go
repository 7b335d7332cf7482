package model

import "strings"

type StatusKind int

const (
	StatusGood StatusKind = iota
	StatusNoChange
	StatusBadAuth
	StatusNotFqdn
	StatusNoHost
	StatusAbuse
	StatusDNSError
	StatusServiceUnavailable
)

// Status is the outcome of one hostname/IP update. Only Good and NoChange
// carry an address.
type Status struct {
	Kind StatusKind
	IP   string
}

func Good(ip string) Status     { return Status{Kind: StatusGood, IP: ip} }
func NoChange(ip string) Status { return Status{Kind: StatusNoChange, IP: ip} }

var (
	BadAuth            = Status{Kind: StatusBadAuth}
	NotFqdn            = Status{Kind: StatusNotFqdn}
	NoHost             = Status{Kind: StatusNoHost}
	Abuse              = Status{Kind: StatusAbuse}
	DNSError           = Status{Kind: StatusDNSError}
	ServiceUnavailable = Status{Kind: StatusServiceUnavailable}
)

// String returns the dyndns2 wire token.
func (s Status) String() string {
	switch s.Kind {
	case StatusGood:
		return "good " + s.IP
	case StatusNoChange:
		return "nochg " + s.IP
	case StatusBadAuth:
		return "badauth"
	case StatusNotFqdn:
		return "notfqdn"
	case StatusNoHost:
		return "nohost"
	case StatusAbuse:
		return "abuse"
	case StatusDNSError:
		return "dnserr"
	default:
		return "911"
	}
}

// Label is the token without the address, suitable as a metric label.
func (s Status) Label() string {
	token := s.String()
	if i := strings.IndexByte(token, ' '); i >= 0 {
		return token[:i]
	}
	return token
}

// JoinStatuses renders a response body, one token per line.
func JoinStatuses(statuses []Status) string {
	tokens := make([]string, len(statuses))
	for i, s := range statuses {
		tokens[i] = s.String()
	}
	return strings.Join(tokens, "\n")
}

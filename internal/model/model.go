package model

import "time"

type RecordType string

const (
	RecordTypeA    RecordType = "A"
	RecordTypeAAAA RecordType = "AAAA"
)

type Zone struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ManagedRecord is the local copy of a provider record. It is never
// authoritative; the provider wins whenever the two disagree.
type ManagedRecord struct {
	ID          string     `json:"id"`
	ZoneID      string     `json:"zone_id"`
	ZoneName    string     `json:"zone_name,omitempty"`
	Name        string     `json:"name"`
	Type        RecordType `json:"type"`
	Content     string     `json:"content"`
	Proxied     bool       `json:"proxied"`
	TTL         int        `json:"ttl"`
	LastUpdated time.Time  `json:"last_updated"`
}

type RemoteRecord struct {
	ID      string
	Name    string
	Type    RecordType
	Content string
	Proxied bool
	TTL     int
}

type RecordFields struct {
	Name    string
	Type    RecordType
	Content string
	Proxied bool
	TTL     int
}

type UpdateLogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Hostname  string    `json:"hostname"`
	IP        string    `json:"ip"`
	SourceIP  string    `json:"source_ip"`
	Username  string    `json:"username"`
	Response  string    `json:"response"`
}

type UpdateLogFilter struct {
	Hostname string
	Response string
	Limit    int
	Offset   int
}

type UpdateStats struct {
	TotalToday      int        `json:"totalToday"`
	SuccessfulToday int        `json:"successfulToday"`
	ActiveHostnames int        `json:"activeHostnames"`
	LastUpdate      *time.Time `json:"lastUpdate"`
}

// DDNSUser is a client credential managed through the admin API.
type DDNSUser struct {
	Username  string    `json:"username"`
	PassHash  string    `json:"-"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

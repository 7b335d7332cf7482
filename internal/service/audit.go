package service

import (
	"context"
	"log/slog"
	"time"

	"flareddns/internal/metrics"
	"flareddns/internal/model"
)

// AuditLogger appends one update_log row per outcome. Storage errors are
// logged and dropped.
type AuditLogger struct {
	store UpdateLogStore
	log   *slog.Logger
	now   func() time.Time
}

func NewAuditLogger(store UpdateLogStore, log *slog.Logger) *AuditLogger {
	return &AuditLogger{store: store, log: log, now: time.Now}
}

func (a *AuditLogger) Record(ctx context.Context, hostname, ip, sourceIP, username string, status model.Status) {
	metrics.UpdatesTotal.WithLabelValues(status.Label()).Inc()

	entry := model.UpdateLogEntry{
		Timestamp: a.now().UTC(),
		Hostname:  hostname,
		IP:        ip,
		SourceIP:  sourceIP,
		Username:  username,
		Response:  status.String(),
	}
	// The row must land even when the hostname deadline has passed.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := a.store.LogUpdate(ctx, entry); err != nil {
		a.log.Error("failed to write update log",
			slog.String("hostname", hostname),
			slog.String("response", entry.Response),
			slog.Any("error", err),
		)
	}
}

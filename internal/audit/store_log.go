package audit

import (
	"context"
	"log/slog"
)

// LogStore writes events as structured log records.
type LogStore struct {
	logger *slog.Logger
}

func NewLogStore(logger *slog.Logger) *LogStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogStore{logger: logger.With("component", "audit")}
}

func (s *LogStore) Append(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, "audit event",
		"event_id", event.ID,
		"action", event.Action,
		"subject", event.Subject,
		"origin", event.Origin,
		"reason", event.Reason,
		"at", event.Timestamp,
	)
	return nil
}

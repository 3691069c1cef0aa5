package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/jobAuth/store"
)

// StoreSink persists events through an AuditRepository. Write failures are logged and
// never reach the emitting operation.
type StoreSink struct {
	repo    store.AuditRepository
	log     zerolog.Logger
	timeout time.Duration
}

// NewStoreSink returns a sink over repo. Each write gets its own timeout so a slow
// store cannot stall the dispatcher indefinitely.
func NewStoreSink(repo store.AuditRepository, log zerolog.Logger) *StoreSink {
	return &StoreSink{repo: repo, log: log, timeout: 5 * time.Second}
}

func (s *StoreSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	entry := &store.AuditEntry{
		ID:        uuid.NewString(),
		EventType: event.EventType,
		UserID:    event.UserID,
		ActorID:   event.ActorID,
		SessionID: event.SessionID,
		IP:        event.IP,
		Success:   event.Success,
		Error:     event.Error,
		Metadata:  event.Metadata,
		CreatedAt: event.Timestamp,
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("event_type", event.EventType).
			Str("user_id", event.UserID).
			Msg("audit: persist event")
	}
}

// LogSink writes each event as one structured log line.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) LogSink {
	return LogSink{log: log.With().Str("component", "audit").Logger()}
}

func (s LogSink) Emit(_ context.Context, event Event) {
	ev := s.log.Info()
	if !event.Success {
		ev = s.log.Warn()
	}
	ev = ev.Time("at", event.Timestamp).
		Str("event_type", event.EventType).
		Bool("success", event.Success)
	if event.UserID != "" {
		ev = ev.Str("user_id", event.UserID)
	}
	if event.ActorID != "" {
		ev = ev.Str("actor_id", event.ActorID)
	}
	if event.SessionID != "" {
		ev = ev.Str("session_id", event.SessionID)
	}
	if event.IP != "" {
		ev = ev.Str("ip", event.IP)
	}
	if event.Error != "" {
		ev = ev.Str("error", event.Error)
	}
	if len(event.Metadata) > 0 {
		d := zerolog.Dict()
		for k, v := range event.Metadata {
			d = d.Str(k, v)
		}
		ev = ev.Dict("metadata", d)
	}
	ev.Msg("audit event")
}

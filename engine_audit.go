package jobAuth

import (
	"context"

	"github.com/MrEthical07/jobAuth/internal/audit"
)

// emitAudit stamps the client IP and hands the event to the dispatcher. Call it only
// after the transaction the event describes has committed.
func (e *Engine) emitAudit(ctx context.Context, event audit.Event) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

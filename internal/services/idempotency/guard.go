package idempotency

import (
	"context"
	"time"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"github.com/kevin07696/purchase-service/pkg/observability"
)

const (
	keyPrefix        = "purchase-status:"
	statusProcessing = "processing"

	// endTimeout bounds marker removal after the command context is gone
	endTimeout = 2 * time.Second
)

// Guard allows one in-flight command per purchase session.
// The marker is advisory: when the store is unreachable the command proceeds
// and the aggregate state machine remains the authority on terminal states.
type Guard struct {
	store  ports.IdempotencyStore
	logger ports.Logger
	ttl    time.Duration
}

// NewGuard creates a guard. ttl bounds how long a marker survives a crashed worker.
func NewGuard(store ports.IdempotencyStore, ttl time.Duration, logger ports.Logger) *Guard {
	return &Guard{
		store:  store,
		logger: logger,
		ttl:    ttl,
	}
}

// Key returns the store key of a session's marker
func Key(sessionID string) string {
	return keyPrefix + sessionID
}

// Begin writes the processing marker for the session.
// Returns domain.ErrDuplicateRequest if another command holds it.
func (g *Guard) Begin(ctx context.Context, sessionID string) error {
	acquired, err := g.store.Acquire(ctx, Key(sessionID), statusProcessing, g.ttl)
	if err != nil {
		observability.RecordDegradedCall("idempotency_store")
		g.logger.Warn("idempotency store unavailable, continuing without marker",
			ports.String("session_id", sessionID),
			ports.Err(err))
		return nil
	}
	if !acquired {
		observability.RecordDuplicateRequest()
		g.logger.Info("purchase attempt already in progress",
			ports.String("session_id", sessionID))
		return domain.ErrDuplicateRequest.WithDetail("session_id", sessionID)
	}
	return nil
}

// End removes the session marker. Only the command that got a nil error from
// Begin may call it.
func (g *Guard) End(ctx context.Context, sessionID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), endTimeout)
	defer cancel()

	if err := g.store.Delete(ctx, Key(sessionID)); err != nil {
		observability.RecordDegradedCall("idempotency_store")
		g.logger.Warn("failed to clear idempotency marker",
			ports.String("session_id", sessionID),
			ports.Err(err))
	}
}

// InFlight reports whether a command currently holds the session marker.
// Store failures report false.
func (g *Guard) InFlight(ctx context.Context, sessionID string) bool {
	value, ok, err := g.store.Get(ctx, Key(sessionID))
	if err != nil {
		g.logger.Warn("idempotency store unavailable",
			ports.String("session_id", sessionID),
			ports.Err(err))
		return false
	}
	return ok && value == statusProcessing
}

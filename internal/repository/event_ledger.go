package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
)

type eventLedger struct {
	pool *pgxpool.Pool
}

// NewEventLedger creates a webhook event ledger backed by PostgreSQL.
func NewEventLedger(pool *pgxpool.Pool) EventLedger {
	return &eventLedger{pool: pool}
}

// Claim inserts the event id or takes over a stale, unfinished claim.
func (l *eventLedger) Claim(ctx context.Context, eventID, eventType string, at time.Time, lease time.Duration) (bool, error) {
	query := `
		INSERT INTO webhook_events (event_id, event_type, claimed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO UPDATE SET claimed_at = EXCLUDED.claimed_at
		WHERE webhook_events.completed_at IS NULL
			AND webhook_events.claimed_at <= $4`

	tag, err := l.pool.Exec(ctx, query, eventID, eventType, at, at.Add(-lease))
	if err != nil {
		return false, apierrors.NewStorageError("claim webhook event", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Complete turns the claim into a permanent marker.
func (l *eventLedger) Complete(ctx context.Context, eventID string, at time.Time) error {
	if _, err := l.pool.Exec(ctx, `UPDATE webhook_events SET completed_at = $2 WHERE event_id = $1`, eventID, at); err != nil {
		return apierrors.NewStorageError("complete webhook event", err)
	}
	return nil
}

// Release deletes a claim.
func (l *eventLedger) Release(ctx context.Context, eventID string) error {
	if _, err := l.pool.Exec(ctx, `DELETE FROM webhook_events WHERE event_id = $1`, eventID); err != nil {
		return apierrors.NewStorageError("release webhook event", err)
	}
	return nil
}

// Prune removes claims older than retention. Used for retention policy enforcement.
func (l *eventLedger) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := l.pool.Exec(ctx, `DELETE FROM webhook_events WHERE claimed_at < $1`, time.Now().Add(-retention))
	if err != nil {
		return 0, apierrors.NewStorageError("prune webhook events", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time check to ensure eventLedger implements EventLedger.
var _ EventLedger = (*eventLedger)(nil)

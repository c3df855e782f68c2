package sqlite

import (
	"context"
	"database/sql"
	"time"

	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository"
)

type eventLedger struct {
	db *sql.DB
}

// NewEventLedger creates a webhook event ledger on db.
func NewEventLedger(db *sql.DB) repository.EventLedger {
	return &eventLedger{db: db}
}

func (l *eventLedger) Claim(ctx context.Context, eventID, eventType string, at time.Time, lease time.Duration) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, claimed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (event_id) DO UPDATE SET claimed_at = excluded.claimed_at
		WHERE webhook_events.completed_at IS NULL
			AND webhook_events.claimed_at <= ?`,
		eventID, eventType, at.UTC().Unix(), at.Add(-lease).UTC().Unix())
	if err != nil {
		return false, apierrors.NewStorageError("claim webhook event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apierrors.NewStorageError("claim webhook event", err)
	}
	return n == 1, nil
}

func (l *eventLedger) Complete(ctx context.Context, eventID string, at time.Time) error {
	_, err := l.db.ExecContext(ctx, `UPDATE webhook_events SET completed_at = ? WHERE event_id = ?`,
		at.UTC().Unix(), eventID)
	if err != nil {
		return apierrors.NewStorageError("complete webhook event", err)
	}
	return nil
}

func (l *eventLedger) Release(ctx context.Context, eventID string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE event_id = ?`, eventID); err != nil {
		return apierrors.NewStorageError("release webhook event", err)
	}
	return nil
}

func (l *eventLedger) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Unix()
	res, err := l.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE claimed_at < ?`, cutoff)
	if err != nil {
		return 0, apierrors.NewStorageError("prune webhook events", err)
	}
	return res.RowsAffected()
}

var _ repository.EventLedger = (*eventLedger)(nil)

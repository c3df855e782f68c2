// Package redisstore implements the usage counter and webhook ledger
// repositories on Redis. Counters use INCRBY inside MULTI/EXEC; ledger
// claims use SET NX with the claim lease as TTL. Counters and completed
// markers expire after a configured retention.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/michelrosettaa/FlowAi-sub000/internal/database"
	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository"
)

const (
	usagePrefix  = "usage"
	ledgerPrefix = "webhook:event"

	claimPrefix     = "claimed:"
	completedMarker = "completed"
)

func usageKey(customerID string, feature models.Feature, periodKey string) string {
	return fmt.Sprintf("%s:%s:%s:%s", usagePrefix, customerID, feature, periodKey)
}

func ledgerKey(eventID string) string {
	return ledgerPrefix + ":" + eventID
}

type usageStore struct {
	redis     *database.Redis
	retention time.Duration
}

// NewUsageRepository creates a usage repository. Counters expire after
// retention; zero keeps them forever.
func NewUsageRepository(r *database.Redis, retention time.Duration) repository.UsageRepository {
	return &usageStore{redis: r, retention: retention}
}

func (s *usageStore) Get(ctx context.Context, customerID string, feature models.Feature, periodKey string) (int64, error) {
	val, err := s.redis.Get(ctx, usageKey(customerID, feature, periodKey))
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, apierrors.NewStorageError("get usage", err)
	}
	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, apierrors.NewStorageError("parse usage", err)
	}
	return count, nil
}

func (s *usageStore) Increment(ctx context.Context, customerID string, feature models.Feature, periodKey string, amount int64) (int64, error) {
	if err := repository.ValidateIncrement(amount); err != nil {
		return 0, err
	}
	count, err := s.redis.IncrByWithExpire(ctx, usageKey(customerID, feature, periodKey), amount, s.retention)
	if err != nil {
		return 0, apierrors.NewStorageError("increment usage", err)
	}
	return count, nil
}

func (s *usageStore) ListForPeriod(ctx context.Context, customerID, periodKey string) (map[models.Feature]int64, error) {
	keys := make([]string, len(models.AllFeatures))
	for i, f := range models.AllFeatures {
		keys[i] = usageKey(customerID, f, periodKey)
	}

	vals, err := s.redis.Client().MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apierrors.NewStorageError("list usage", err)
	}

	usage := make(map[models.Feature]int64)
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		count, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, apierrors.NewStorageError("parse usage", err)
		}
		usage[models.AllFeatures[i]] = count
	}
	return usage, nil
}

type eventLedger struct {
	redis     *database.Redis
	retention time.Duration
}

// NewEventLedger creates a ledger whose completed markers expire after
// retention. In-flight claims expire after their lease.
func NewEventLedger(r *database.Redis, retention time.Duration) repository.EventLedger {
	return &eventLedger{redis: r, retention: retention}
}

func (l *eventLedger) Claim(ctx context.Context, eventID, eventType string, _ time.Time, lease time.Duration) (bool, error) {
	if lease <= 0 {
		lease = l.retention
	}
	ok, err := l.redis.SetNX(ctx, ledgerKey(eventID), claimPrefix+eventType, lease)
	if err != nil {
		return false, apierrors.NewStorageError("claim webhook event", err)
	}
	return ok, nil
}

func (l *eventLedger) Complete(ctx context.Context, eventID string, _ time.Time) error {
	if err := l.redis.Client().Set(ctx, ledgerKey(eventID), completedMarker, l.retention).Err(); err != nil {
		return apierrors.NewStorageError("complete webhook event", err)
	}
	return nil
}

func (l *eventLedger) Release(ctx context.Context, eventID string) error {
	if err := l.redis.Delete(ctx, ledgerKey(eventID)); err != nil {
		return apierrors.NewStorageError("release webhook event", err)
	}
	return nil
}

// Prune is a no-op: claims carry their own TTL.
func (l *eventLedger) Prune(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

var (
	_ repository.UsageRepository = (*usageStore)(nil)
	_ repository.EventLedger     = (*eventLedger)(nil)
)

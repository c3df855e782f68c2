// Package notify delivers billing notices to the messaging collaborator.
// Templating and delivery to end users happen elsewhere; this package only
// emits the notice.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/michelrosettaa/FlowAi-sub000/internal/database"
)

// Notice kinds.
const (
	KindPaymentFailed = "payment_failed"
	KindTrialEnding   = "trial_ending"
)

// Notice is a single billing notification.
type Notice struct {
	Kind                   string     `json:"kind"`
	CustomerID             string     `json:"customer_id"`
	PlanSlug               string     `json:"plan,omitempty"`
	ProviderSubscriptionID string     `json:"provider_subscription_id,omitempty"`
	InvoiceID              string     `json:"invoice_id,omitempty"`
	TrialEnd               *time.Time `json:"trial_end,omitempty"`
	EventID                string     `json:"event_id"`
}

// Notifier receives billing notices from the webhook reconciler.
type Notifier interface {
	PaymentFailed(ctx context.Context, n Notice) error
	TrialEnding(ctx context.Context, n Notice) error
}

// LogNotifier writes notices to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) PaymentFailed(ctx context.Context, notice Notice) error {
	notice.Kind = KindPaymentFailed
	n.log(ctx, notice)
	return nil
}

func (n *LogNotifier) TrialEnding(ctx context.Context, notice Notice) error {
	notice.Kind = KindTrialEnding
	n.log(ctx, notice)
	return nil
}

func (n *LogNotifier) log(ctx context.Context, notice Notice) {
	attrs := []any{
		slog.String("kind", notice.Kind),
		slog.String("customer_id", notice.CustomerID),
		slog.String("event_id", notice.EventID),
	}
	if notice.PlanSlug != "" {
		attrs = append(attrs, slog.String("plan", notice.PlanSlug))
	}
	if notice.InvoiceID != "" {
		attrs = append(attrs, slog.String("invoice_id", notice.InvoiceID))
	}
	if notice.TrialEnd != nil {
		attrs = append(attrs, slog.Time("trial_end", *notice.TrialEnd))
	}
	n.logger.InfoContext(ctx, "billing notification", attrs...)
}

// RedisNotifier publishes notices as JSON on a pub/sub channel.
type RedisNotifier struct {
	redis   *database.Redis
	channel string
}

// NewRedisNotifier creates a notifier publishing on channel.
func NewRedisNotifier(r *database.Redis, channel string) *RedisNotifier {
	return &RedisNotifier{redis: r, channel: channel}
}

func (n *RedisNotifier) PaymentFailed(ctx context.Context, notice Notice) error {
	notice.Kind = KindPaymentFailed
	return n.publish(ctx, notice)
}

func (n *RedisNotifier) TrialEnding(ctx context.Context, notice Notice) error {
	notice.Kind = KindTrialEnding
	return n.publish(ctx, notice)
}

func (n *RedisNotifier) publish(ctx context.Context, notice Notice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	if err := n.redis.Publish(ctx, n.channel, payload); err != nil {
		return fmt.Errorf("publish notice: %w", err)
	}
	return nil
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*RedisNotifier)(nil)
)

package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront/internal/observability"
)

const (
	componentRelay       = "outbox_relay"
	DefaultRelayBatch    = 100
	DefaultRelayInterval = time.Second
)

type RelayConfig struct {
	Batch    int
	Interval time.Duration
}

// Relay moves committed outbox messages to the configured sinks and marks
// them done. A message is retried until every sink accepts it.
type Relay struct {
	store    domoutbox.Store
	sinks    []domoutbox.Publisher
	batch    int
	interval time.Duration

	log     observability.Logger
	relayed observability.Counter // outbox_relayed_total{event,outcome}
}

func NewRelay(store domoutbox.Store, cfg RelayConfig, tel observability.Observability, sinks ...domoutbox.Publisher) *Relay {
	if tel == nil {
		tel = observability.Nop()
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultRelayBatch
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRelayInterval
	}
	return &Relay{
		store:    store,
		sinks:    sinks,
		batch:    cfg.Batch,
		interval: cfg.Interval,
		log:      tel.Logger().With(observability.F("component", componentRelay)),
		relayed:  tel.Metrics().Counter(observability.MOutboxRelayed),
	}
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// another poll.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info("outbox_relay_started",
		observability.F("batch", r.batch),
		observability.F("interval", r.interval.String()),
		observability.F("sinks", len(r.sinks)),
	)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox_relay_stopped")
			return nil
		case <-timer.C:
		}

		n, err := r.Once(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warn("outbox_relay_failed", observability.Err(err))
		}
		wait := r.interval
		if err == nil && n == r.batch {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// Once relays a single batch and returns how many messages were marked done.
// Delivery stops at the first failure so later messages never overtake it.
func (r *Relay) Once(ctx context.Context) (int, error) {
	msgs, err := r.store.Pending(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("outbox: load pending: %w", err)
	}

	done := make([]int64, 0, len(msgs))
	var pubErr error
	for _, m := range msgs {
		if pubErr = r.deliver(ctx, m); pubErr != nil {
			r.relayed.Add(1, observability.L("event", m.Name), observability.L("outcome", "error"))
			r.log.Warn("outbox_publish_failed",
				observability.F("message_id", m.ID),
				observability.F("event", m.Name),
				observability.Err(pubErr),
			)
			pubErr = fmt.Errorf("outbox: publish message %d: %w", m.ID, pubErr)
			break
		}
		done = append(done, m.ID)
		r.relayed.Add(1, observability.L("event", m.Name), observability.L("outcome", "published"))
	}

	if len(done) > 0 {
		if err := r.store.MarkDone(ctx, done); err != nil {
			return 0, errors.Join(pubErr, fmt.Errorf("outbox: mark done: %w", err))
		}
		r.log.Debug("outbox_relayed", observability.F("count", len(done)))
	}
	return len(done), pubErr
}

func (r *Relay) deliver(ctx context.Context, m domoutbox.Message) error {
	for _, s := range r.sinks {
		if err := s.Publish(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

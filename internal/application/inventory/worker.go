package inventory

import (
	"context"
	"fmt"
	"time"

	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront/internal/observability"
	"github.com/Zhima-Mochi/storefront/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	workerService        = "inventory_worker"
	useCaseLowStock      = "inventory.worker.low_stock"
	spanPrefix           = "UC."
	DefaultLowStockLevel = 10
	publishTimeout       = 300 * time.Millisecond
)

// LowStockWorker watches placed orders and flags variants that fell below the threshold.
type LowStockWorker struct {
	subscriber domoutbox.Subscriber
	publisher  domoutbox.Publisher
	threshold  int
	tel        observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	lowStock     observability.Counter   // inventory_low_stock_total
}

func NewLowStockWorker(
	subscriber domoutbox.Subscriber,
	publisher domoutbox.Publisher,
	threshold int,
	tel observability.Observability,
) *LowStockWorker {
	if tel == nil {
		tel = observability.Nop()
	}
	if threshold <= 0 {
		threshold = DefaultLowStockLevel
	}
	m := tel.Metrics()
	return &LowStockWorker{
		subscriber:   subscriber,
		publisher:    publisher,
		threshold:    threshold,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		lowStock:     m.Counter(observability.MInventoryLowStock),
	}
}

func (w *LowStockWorker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(domorder.OrderPlacedEvent{}.EventName(), w.Handle)
}

// Handle accepts either the typed event or its outbox message form.
func (w *LowStockWorker) Handle(ctx context.Context, e domoutbox.Event) (err error) {
	var evt domorder.OrderPlacedEvent
	switch v := e.(type) {
	case domorder.OrderPlacedEvent:
		evt = v
	case domoutbox.Message:
		if err := v.Decode(&evt); err != nil {
			w.observe("ignored", 0)
			return err
		}
	default:
		w.observe("ignored", 0)
		return nil
	}

	ctx, span := w.tel.Tracer().Start(ctx, spanPrefix+"LowStockCheck",
		attribute.String("use_case", useCaseLowStock),
		attribute.String("event", e.EventName()),
		attribute.Int64("order.id", evt.OrderID),
	)
	start := time.Now()
	outcome, status := "success", "OK"
	flagged := 0

	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCaseLowStock),
		observability.F("order_id", evt.OrderID),
	)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}

	defer func() {
		lat := time.Since(start).Seconds()
		w.observe(outcome, lat)
		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
			observability.F("flagged", flagged),
		}
		if err != nil {
			fields = append(fields, observability.Err(err))
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		logger.Info("use_case_done", fields...)
		span.End()
	}()

	seen := make(map[int64]bool, len(evt.Items))
	for _, it := range evt.Items {
		if seen[it.VariantID] || it.RemainingStock >= w.threshold {
			continue
		}
		seen[it.VariantID] = true
		flagged++
		w.lowStock.Add(1)
		logger.Warn("inventory_low_stock",
			observability.F("variant_id", it.VariantID),
			observability.F("stock", it.RemainingStock),
			observability.F("threshold", w.threshold),
		)
		if w.publisher == nil {
			continue
		}
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		pubErr := w.publisher.Publish(pubCtx, dominv.NewLowStockEvent(it.VariantID, it.RemainingStock, w.threshold, evt.OrderID))
		cancel()
		if pubErr != nil {
			outcome, status = "error", "EVENT_PUBLISH_FAILED"
			err = fmt.Errorf("inventory: publish low stock for variant %d: %w", it.VariantID, pubErr)
		}
	}
	return err
}

func (w *LowStockWorker) observe(outcome string, latencySeconds float64) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCaseLowStock),
		observability.L("outcome", outcome),
	)
	if latencySeconds > 0 {
		w.durHistogram.Observe(latencySeconds,
			observability.L("use_case", useCaseLowStock),
		)
	}
}

package webhook

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/brunov7/formerr-hooks/internal/logging"
	"github.com/brunov7/formerr-hooks/internal/metrics"
	"github.com/brunov7/formerr-hooks/internal/tracing"
)

// DefaultMaxInFlight bounds concurrent outbound connections per trigger call.
const DefaultMaxInFlight = 20

// Dispatcher fans one event out to every matching subscription. Delivery
// attempts are independent: one subscriber timing out or rejecting must not
// abort, delay, or alter delivery to any other subscriber, and a total
// dispatch failure never propagates to the caller as an error.
type Dispatcher struct {
	registry    Registry
	client      *Client
	logger      *logging.Logger
	maxInFlight int
}

// NewDispatcher wires a dispatcher from its collaborators. There are no
// package-level singletons; callers construct and pass instances explicitly.
func NewDispatcher(reg Registry, client *Client, logger *logging.Logger) *Dispatcher {
	if client == nil {
		client = NewClient()
	}
	if logger == nil {
		logger = logging.New("formerr-dispatcher")
	}
	return &Dispatcher{
		registry:    reg,
		client:      client,
		logger:      logger,
		maxInFlight: DefaultMaxInFlight,
	}
}

// SetMaxInFlight overrides the per-trigger concurrency bound. Values < 1
// serialize deliveries.
func (d *Dispatcher) SetMaxInFlight(n int) {
	if n < 1 {
		n = 1
	}
	d.maxInFlight = n
}

// Trigger resolves the active subscriptions for (formID, eventType), mints a
// subscriber-specific envelope for each, delivers concurrently, records every
// outcome on the subscription's health counters, and returns the full result
// list. It never returns an error: delivery failures are data in the results,
// and registry bookkeeping failures are logged and swallowed so that the
// domain action that produced the event is never rolled back by webhooks.
func (d *Dispatcher) Trigger(ctx context.Context, eventType EventType, formID string, data map[string]any) []DeliveryResult {
	ctx, span := tracing.StartSpan(ctx, "dispatcher.Trigger",
		attribute.String("event_type", string(eventType)),
		attribute.String("form_id", formID),
	)
	defer span.End()

	subs, err := d.registry.FindActive(ctx, formID, eventType)
	if err != nil {
		// Lookup failed; nothing was attempted. Surface it in logs only.
		tracing.SetSpanError(ctx, err)
		d.logger.WithContext(ctx).WithForm(formID).WithError(err).Error("subscription lookup failed")
		metrics.RecordTriggered(string(eventType), "lookup_error")
		return []DeliveryResult{}
	}
	span.SetAttributes(attribute.Int("subscribers_count", len(subs)))
	if len(subs) == 0 {
		// Common case: no subscribers, no network I/O.
		return []DeliveryResult{}
	}

	results := make([]DeliveryResult, len(subs))
	sem := make(chan struct{}, d.maxInFlight)
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub Subscription) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = d.deliverOne(ctx, sub, BuildEnvelope(eventType, formID, data))
		}(i, sub)
	}
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	span.SetAttributes(attribute.Int("fanout_count", len(results)), attribute.Int("succeeded", succeeded))
	metrics.RecordTriggered(string(eventType), triggerStatus(succeeded, len(results)))
	return results
}

// TestDelivery performs the manual diagnostic: one delivery of the canned
// test envelope to the identified subscription, with stats recorded. Unknown
// ids return ErrSubscriptionNotFound; the caller surfaces that as a structured
// failure rather than a dispatch result.
func (d *Dispatcher) TestDelivery(ctx context.Context, webhookID string) (DeliveryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dispatcher.TestDelivery",
		attribute.String("webhook_id", webhookID),
	)
	defer span.End()

	sub, err := d.registry.Get(ctx, webhookID)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return DeliveryResult{}, err
	}
	return d.deliverOne(ctx, *sub, BuildTestEnvelope(sub.FormID)), nil
}

// deliverOne performs one attempt and its bookkeeping. A bookkeeping
// persistence failure must never surface as a delivery failure.
func (d *Dispatcher) deliverOne(ctx context.Context, sub Subscription, env Envelope) DeliveryResult {
	ctx, span := tracing.StartSpan(ctx, "dispatcher.deliver",
		attribute.String("webhook_id", sub.ID),
		attribute.String("delivery_id", env.DeliveryID),
		attribute.String("event_type", string(env.Event)),
	)
	defer span.End()

	res := d.client.Deliver(ctx, sub, env)

	span.SetAttributes(
		attribute.Bool("success", res.Success),
		attribute.Int("http.status_code", res.StatusCode),
		attribute.Int64("http.latency_ms", res.ElapsedMS),
	)
	metrics.RecordDelivery(deliveryOutcome(res), res.Elapsed)

	if !res.Success {
		d.logger.WithContext(ctx).WithWebhook(sub.ID).WithDelivery(env.DeliveryID).WithFields(map[string]any{
			"url":    sub.URL,
			"status": res.StatusCode,
			"error":  string(res.ErrorKind),
		}).Warn("webhook delivery failed")
	}

	if err := d.registry.RecordAttempt(ctx, sub.ID, res.Success, time.Now().UTC()); err != nil {
		tracing.SetSpanError(ctx, err)
		metrics.RecordBookkeepingError()
		d.logger.WithContext(ctx).WithWebhook(sub.ID).WithError(err).Error("failed to persist delivery outcome")
	}
	return res
}

func deliveryOutcome(res DeliveryResult) string {
	if res.Success {
		return "delivered"
	}
	if res.ErrorKind == ErrorNone {
		return string(ErrorUnknown)
	}
	return string(res.ErrorKind)
}

func triggerStatus(succeeded, total int) string {
	switch succeeded {
	case total:
		return "delivered"
	case 0:
		return "failed"
	default:
		return "partial"
	}
}

package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrSubscriptionNotFound is returned by Registry lookups for ids that do not
// exist (or are not visible to the caller).
var ErrSubscriptionNotFound = errors.New("webhook subscription not found")

// Health buckets derived from the consecutive-failure counter. Reaching
// suspected-dead does not deactivate a subscription; deliveries continue until
// an owner turns it off.
const SuspectedDeadThreshold = 10

type Health string

const (
	HealthHealthy       Health = "healthy"
	HealthDegraded      Health = "degraded"
	HealthSuspectedDead Health = "suspected_dead"
)

// Subscription is a registered interest in events for one form. The dispatcher
// mutates LastTriggered and FailureCount after every attempt; everything else
// is owner-controlled.
type Subscription struct {
	ID            string
	FormID        string
	URL           string
	Events        EventSet
	Secret        string
	Active        bool
	FailureCount  int
	CreatedAt     time.Time
	LastTriggered *time.Time
}

// Health maps the failure counter onto the health state machine.
func (s *Subscription) Health() Health {
	switch {
	case s.FailureCount == 0:
		return HealthHealthy
	case s.FailureCount < SuspectedDeadThreshold:
		return HealthDegraded
	default:
		return HealthSuspectedDead
	}
}

// WantsEvent reports whether a delivery should be attempted for the given
// event type: the subscription must be active and subscribed to that type.
func (s *Subscription) WantsEvent(t EventType) bool {
	return s.Active && s.Events.Contains(t)
}

// NewSubscriptionID generates a unique, sortable-ish webhook id of the form
// webhook_<YYYYMMDD_HHMMSS>_<uuid8>.
func NewSubscriptionID() string {
	ts := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("webhook_%s_%s", ts, uuid.New().String()[:8])
}

// NewSecret generates a signing secret with the recognizable whsec_ prefix
// followed by 32 hex characters. Externally supplied secrets are accepted as
// opaque strings and never rewritten.
func NewSecret() string {
	return "whsec_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// ValidateURL checks that a target is an absolute http or https URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url must be absolute")
	}
	return nil
}

// Registry resolves and maintains subscriptions. The production implementation
// lives in internal/store; tests substitute in-memory fakes.
type Registry interface {
	// FindActive returns the subscriptions that should receive the given event
	// type for a form. An empty slice (not an error) means dispatch is a no-op.
	FindActive(ctx context.Context, formID string, eventType EventType) ([]Subscription, error)

	// Get returns a single subscription by id, ErrSubscriptionNotFound if absent.
	Get(ctx context.Context, id string) (*Subscription, error)

	// RecordAttempt updates a subscription's health counters after a delivery
	// attempt: success resets the failure counter, failure increments it, and
	// last_triggered is set either way. The update must not race with
	// concurrent attempts against the same subscription.
	RecordAttempt(ctx context.Context, id string, success bool, at time.Time) error
}

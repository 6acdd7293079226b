package webhook

import (
	"time"

	"github.com/google/uuid"
)

// Source identifier strings stamped into every envelope. Receivers use them to
// distinguish production deliveries from manual test deliveries.
const (
	Source     = "formerr_brunov7_beast_mode"
	TestSource = "formerr_test_brunov7"
)

// Envelope is the wire payload sent to a subscriber for one event/subscriber
// pair. Field order matters only insofar as the serialized bytes are signed
// exactly once; the JSON shape itself is the external contract.
type Envelope struct {
	Event      EventType      `json:"event"`
	Timestamp  string         `json:"timestamp"` // RFC3339, UTC
	FormID     string         `json:"form_id"`
	Data       map[string]any `json:"data"`
	DeliveryID string         `json:"delivery_id"`
	Source     string         `json:"source"`
}

// BuildEnvelope mints a delivery envelope for one subscriber. It is called
// once per subscriber, not once per event: each receiver gets a distinct
// delivery id so it can deduplicate on its side, and timestamps may differ by
// milliseconds across subscribers of the same event.
func BuildEnvelope(eventType EventType, formID string, data map[string]any) Envelope {
	return Envelope{
		Event:      eventType,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		FormID:     formID,
		Data:       data,
		DeliveryID: uuid.New().String(),
		Source:     Source,
	}
}

// BuildTestEnvelope mints the canned payload used by the manual test-webhook
// action.
func BuildTestEnvelope(formID string) Envelope {
	env := BuildEnvelope(EventWebhookTest, formID, map[string]any{
		"test":    true,
		"message": "This is a test webhook from Formerr",
	})
	env.Source = TestSource
	return env
}

package webhook

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBuildEnvelope(t *testing.T) {
	data := map[string]any{"submission_id": "sub_123"}
	env := BuildEnvelope(EventSubmissionCreated, "form_42", data)

	if env.Event != EventSubmissionCreated {
		t.Errorf("Event = %q", env.Event)
	}
	if env.FormID != "form_42" {
		t.Errorf("FormID = %q", env.FormID)
	}
	if env.Source != Source {
		t.Errorf("Source = %q, want %q", env.Source, Source)
	}
	if env.DeliveryID == "" {
		t.Error("DeliveryID must be set")
	}
	ts, err := time.Parse(time.RFC3339, env.Timestamp)
	if err != nil {
		t.Fatalf("Timestamp %q not RFC3339: %v", env.Timestamp, err)
	}
	if d := time.Since(ts); d < 0 || d > time.Minute {
		t.Errorf("Timestamp %q not recent (delta %v)", env.Timestamp, d)
	}
}

func TestBuildEnvelopeDistinctDeliveryIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		env := BuildEnvelope(EventFormUpdated, "form_1", nil)
		if seen[env.DeliveryID] {
			t.Fatalf("duplicate delivery id %q", env.DeliveryID)
		}
		seen[env.DeliveryID] = true
	}
}

func TestBuildTestEnvelope(t *testing.T) {
	env := BuildTestEnvelope("form_7")

	if env.Event != EventWebhookTest {
		t.Errorf("Event = %q, want %q", env.Event, EventWebhookTest)
	}
	if env.Source != TestSource {
		t.Errorf("Source = %q, want %q", env.Source, TestSource)
	}
	if env.Data["test"] != true {
		t.Errorf("Data[test] = %v", env.Data["test"])
	}
	if env.Data["message"] == "" {
		t.Error("Data[message] must be set")
	}
}

func TestEnvelopeJSONShape(t *testing.T) {
	env := Envelope{
		Event:      EventFormDeleted,
		Timestamp:  "2026-01-02T15:04:05Z",
		FormID:     "form_9",
		Data:       map[string]any{"k": "v"},
		DeliveryID: "d-1",
		Source:     Source,
	}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"event", "timestamp", "form_id", "data", "delivery_id", "source"} {
		if _, ok := m[key]; !ok {
			t.Errorf("marshaled envelope missing %q key", key)
		}
	}
	if len(m) != 6 {
		t.Errorf("marshaled envelope has %d keys, want 6", len(m))
	}
	if m["event"] != "form.deleted" {
		t.Errorf("event = %v", m["event"])
	}
}

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brunov7/formerr-hooks/internal/logging"
)

// fakeRegistry is an in-memory Registry tracking counter mutations, safe for
// the dispatcher's concurrent bookkeeping.
type fakeRegistry struct {
	mu      sync.Mutex
	subs    map[string]*Subscription
	active  []Subscription
	findErr error
	recErr  error

	attempts []attempt
}

type attempt struct {
	id      string
	success bool
}

func newFakeRegistry(subs ...Subscription) *fakeRegistry {
	r := &fakeRegistry{subs: make(map[string]*Subscription)}
	for i := range subs {
		s := subs[i]
		r.subs[s.ID] = &s
		r.active = append(r.active, s)
	}
	return r
}

func (r *fakeRegistry) FindActive(ctx context.Context, formID string, eventType EventType) ([]Subscription, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []Subscription
	for _, s := range r.active {
		if s.FormID == formID && s.WantsEvent(eventType) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeRegistry) Get(ctx context.Context, id string) (*Subscription, error) {
	s, ok := r.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return s, nil
}

func (r *fakeRegistry) RecordAttempt(ctx context.Context, id string, success bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recErr != nil {
		return r.recErr
	}
	s, ok := r.subs[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if success {
		s.FailureCount = 0
	} else {
		s.FailureCount++
	}
	t := at
	s.LastTriggered = &t
	r.attempts = append(r.attempts, attempt{id: id, success: success})
	return nil
}

func quietDispatcher(reg Registry) *Dispatcher {
	logger := logging.NewWithWriter("test", io.Discard)
	return NewDispatcher(reg, NewClientWithHTTP(&http.Client{Timeout: 2 * time.Second}), logger)
}

func TestTriggerNoSubscribers(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer srv.Close()

	// Subscriber exists but for a different event type.
	sub := testSubscription(srv.URL, "whsec_abc")
	reg := newFakeRegistry(sub)
	disp := quietDispatcher(reg)

	results := disp.Trigger(context.Background(), EventFormDeleted, sub.FormID, nil)

	if results == nil {
		t.Fatal("Trigger must return an empty slice, not nil")
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
	if n := atomic.LoadInt32(&requests); n != 0 {
		t.Errorf("no-subscriber trigger performed %d network requests", n)
	}
	if len(reg.attempts) != 0 {
		t.Errorf("no-subscriber trigger recorded %d attempts", len(reg.attempts))
	}
}

func TestTriggerLookupErrorSwallowed(t *testing.T) {
	reg := newFakeRegistry()
	reg.findErr = errors.New("db unreachable")
	disp := quietDispatcher(reg)

	results := disp.Trigger(context.Background(), EventSubmissionCreated, "form_42", nil)
	if len(results) != 0 {
		t.Fatalf("lookup failure must yield empty results, got %d", len(results))
	}
}

func TestTriggerFanOutDistinctDeliveryIDs(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]string) // delivery id -> receiving path

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			t.Errorf("bad envelope: %v", err)
		}
		mu.Lock()
		seen[env.DeliveryID] = r.URL.Path
		mu.Unlock()
	}))
	defer srv.Close()

	const n = 5
	subs := make([]Subscription, n)
	for i := range subs {
		subs[i] = Subscription{
			ID:     fmt.Sprintf("webhook_20260101_000000_%08d", i),
			FormID: "form_42",
			URL:    fmt.Sprintf("%s/receiver/%d", srv.URL, i),
			Active: true,
			Events: NewEventSet(EventSubmissionCreated),
		}
	}
	reg := newFakeRegistry(subs...)
	disp := quietDispatcher(reg)

	results := disp.Trigger(context.Background(), EventSubmissionCreated, "form_42", map[string]any{"submission_id": "sub_1"})

	if len(results) != n {
		t.Fatalf("got %d results, want %d", len(results), n)
	}
	ids := make(map[string]bool)
	for _, r := range results {
		if !r.Success {
			t.Errorf("delivery to %s failed: %+v", r.URL, r)
		}
		if ids[r.DeliveryID] {
			t.Errorf("delivery id %q reused across subscribers", r.DeliveryID)
		}
		ids[r.DeliveryID] = true
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != n {
		t.Errorf("receivers saw %d distinct delivery ids, want %d", len(seen), n)
	}
}

func TestTriggerFailureIsolation(t *testing.T) {
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okSrv.Close()
	slowSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer slowSrv.Close()

	slow := Subscription{ID: "webhook_slow", FormID: "form_42", URL: slowSrv.URL, Active: true, Events: NewEventSet(EventSubmissionCreated)}
	fast := Subscription{ID: "webhook_fast", FormID: "form_42", URL: okSrv.URL, Active: true, Events: NewEventSet(EventSubmissionCreated)}
	reg := newFakeRegistry(slow, fast)

	disp := NewDispatcher(reg, NewClientWithHTTP(&http.Client{Timeout: 50 * time.Millisecond}), logging.NewWithWriter("test", io.Discard))
	results := disp.Trigger(context.Background(), EventSubmissionCreated, "form_42", nil)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	byID := make(map[string]DeliveryResult)
	for _, r := range results {
		byID[r.WebhookID] = r
	}
	if r := byID["webhook_slow"]; r.Success || r.ErrorKind != ErrorTimeout {
		t.Errorf("slow subscriber: %+v, want timeout failure", r)
	}
	if r := byID["webhook_fast"]; !r.Success {
		t.Errorf("fast subscriber failed despite isolation: %+v", r)
	}

	// Both counters must have been recorded independently.
	if got := reg.subs["webhook_slow"].FailureCount; got != 1 {
		t.Errorf("slow FailureCount = %d, want 1", got)
	}
	if got := reg.subs["webhook_fast"].FailureCount; got != 0 {
		t.Errorf("fast FailureCount = %d, want 0", got)
	}
}

func TestTriggerCounterSemantics(t *testing.T) {
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okSrv.Close()
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer badSrv.Close()

	// Success resets an accumulated counter.
	recovering := Subscription{ID: "webhook_a", FormID: "form_42", URL: okSrv.URL, Active: true, FailureCount: 3, Events: NewEventSet(EventFormUpdated)}
	// Failure increments from zero.
	failing := Subscription{ID: "webhook_b", FormID: "form_42", URL: badSrv.URL, Active: true, Events: NewEventSet(EventFormUpdated)}
	reg := newFakeRegistry(recovering, failing)
	disp := quietDispatcher(reg)

	disp.Trigger(context.Background(), EventFormUpdated, "form_42", nil)

	if got := reg.subs["webhook_a"].FailureCount; got != 0 {
		t.Errorf("recovering FailureCount = %d, want 0 after success", got)
	}
	if got := reg.subs["webhook_b"].FailureCount; got != 1 {
		t.Errorf("failing FailureCount = %d, want 1", got)
	}
	if reg.subs["webhook_a"].LastTriggered == nil || reg.subs["webhook_b"].LastTriggered == nil {
		t.Error("LastTriggered must be stamped for both outcomes")
	}
}

func TestTriggerBookkeepingErrorSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := testSubscription(srv.URL, "")
	reg := newFakeRegistry(sub)
	reg.recErr = errors.New("db write failed")
	disp := quietDispatcher(reg)

	results := disp.Trigger(context.Background(), EventSubmissionCreated, sub.FormID, nil)

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if !results[0].Success {
		t.Errorf("bookkeeping failure must not taint delivery result: %+v", results[0])
	}
}

func TestTriggerEndToEndSignature(t *testing.T) {
	const secret = "whsec_abc"
	verified := make(chan bool, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		verified <- Verify(body, secret, r.Header.Get(HeaderSignature))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := testSubscription(srv.URL, secret)
	reg := newFakeRegistry(sub)
	disp := quietDispatcher(reg)

	results := disp.Trigger(context.Background(), EventSubmissionCreated, sub.FormID, map[string]any{"submission_id": "sub_1"})
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("trigger results: %+v", results)
	}
	if !<-verified {
		t.Error("receiver could not verify the signature over the received body")
	}
}

func TestTriggerBoundedConcurrency(t *testing.T) {
	var inFlight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}))
	defer srv.Close()

	const n = 12
	subs := make([]Subscription, n)
	for i := range subs {
		subs[i] = Subscription{
			ID:     fmt.Sprintf("webhook_c%02d", i),
			FormID: "form_42",
			URL:    srv.URL,
			Active: true,
			Events: NewEventSet(EventFormCreated),
		}
	}
	reg := newFakeRegistry(subs...)
	disp := quietDispatcher(reg)
	disp.SetMaxInFlight(3)

	results := disp.Trigger(context.Background(), EventFormCreated, "form_42", nil)

	if len(results) != n {
		t.Fatalf("got %d results, want %d", len(results), n)
	}
	if p := atomic.LoadInt32(&peak); p > 3 {
		t.Errorf("peak concurrency %d exceeded bound 3", p)
	}
}

func TestTestDelivery(t *testing.T) {
	var gotEvent string
	var gotSource string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env Envelope
		_ = json.Unmarshal(body, &env)
		gotEvent = string(env.Event)
		gotSource = env.Source
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := testSubscription(srv.URL, "whsec_abc")
	reg := newFakeRegistry(sub)
	disp := quietDispatcher(reg)

	res, err := disp.TestDelivery(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("TestDelivery error: %v", err)
	}
	if !res.Success {
		t.Fatalf("test delivery failed: %+v", res)
	}
	if gotEvent != string(EventWebhookTest) {
		t.Errorf("test envelope event = %q, want %q", gotEvent, EventWebhookTest)
	}
	if gotSource != TestSource {
		t.Errorf("test envelope source = %q, want %q", gotSource, TestSource)
	}
}

func TestTestDeliveryUnknownID(t *testing.T) {
	disp := quietDispatcher(newFakeRegistry())
	_, err := disp.TestDelivery(context.Background(), "webhook_missing")
	if !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("err = %v, want ErrSubscriptionNotFound", err)
	}
}

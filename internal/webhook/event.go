package webhook

import (
	"fmt"
	"sort"
)

// EventType is the tag carried by every dispatched event. The values are part
// of the wire protocol: receivers match on them byte-for-byte.
type EventType string

const (
	EventSubmissionCreated EventType = "submission.created"
	EventSubmissionUpdated EventType = "submission.updated"
	EventFormCreated       EventType = "form.created"
	EventFormUpdated       EventType = "form.updated"
	EventFormDeleted       EventType = "form.deleted"
	EventUserRegistered    EventType = "user.registered"

	// EventWebhookTest is reserved for the manual test-delivery path and is not
	// accepted in subscription event lists.
	EventWebhookTest EventType = "webhook.test"
)

// KnownEventTypes lists the event types a subscription may register for, in
// catalog order.
var KnownEventTypes = []EventType{
	EventSubmissionCreated,
	EventSubmissionUpdated,
	EventFormCreated,
	EventFormUpdated,
	EventFormDeleted,
	EventUserRegistered,
}

// ParseEventType validates a raw tag against the subscription catalog.
func ParseEventType(s string) (EventType, error) {
	for _, et := range KnownEventTypes {
		if string(et) == s {
			return et, nil
		}
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// EventSet is the set of event types a subscription listens for. Membership is
// O(1); the zero value is an empty set.
type EventSet map[EventType]struct{}

// NewEventSet builds a set from the given types, dropping duplicates.
func NewEventSet(types ...EventType) EventSet {
	s := make(EventSet, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

// ParseEventSet validates and collects raw tags into a set. At least one tag
// is required.
func ParseEventSet(raw []string) (EventSet, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one event type is required")
	}
	s := make(EventSet, len(raw))
	for _, r := range raw {
		et, err := ParseEventType(r)
		if err != nil {
			return nil, err
		}
		s[et] = struct{}{}
	}
	return s, nil
}

// Contains reports whether t is in the set.
func (s EventSet) Contains(t EventType) bool {
	_, ok := s[t]
	return ok
}

// Slice returns the members in sorted order, for stable persistence and JSON
// output.
func (s EventSet) Slice() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

// Event is an instantaneous fact to broadcast. Events are never persisted;
// one is constructed and consumed within a single dispatch call.
type Event struct {
	Type   EventType      `json:"event_type"`
	FormID string         `json:"form_id"`
	Data   map[string]any `json:"data"`
}

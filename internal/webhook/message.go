package webhook

// EventMessage is the NSQ envelope domain producers publish to the events
// topic. dispatchd consumes these and feeds them into the Dispatcher; the
// queue carries events into dispatch, never delivery retries.
type EventMessage struct {
	EventType    string            `json:"event_type"`
	FormID       string            `json:"form_id"`
	Data         map[string]any    `json:"data"`
	PublishedAt  string            `json:"published_at"`            // RFC3339
	TraceHeaders map[string]string `json:"trace_headers,omitempty"` // OTel trace propagation headers
}

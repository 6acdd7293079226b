package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"
)

// Wire protocol constants. Header names and the User-Agent string are part of
// the external contract; consumers match on them verbatim.
const (
	HeaderEvent     = "X-Formerr-Event"
	HeaderDelivery  = "X-Formerr-Delivery"
	HeaderTimestamp = "X-Formerr-Timestamp"
	HeaderSignature = "X-Formerr-Signature"

	UserAgent = "Formerr-Webhooks/1.0 (BrunoV7)"

	// DeliveryTimeout bounds one delivery attempt end to end.
	DeliveryTimeout = 30 * time.Second
)

// ErrorKind classifies a failed delivery attempt.
type ErrorKind string

const (
	ErrorNone     ErrorKind = ""
	ErrorTimeout  ErrorKind = "timeout"
	ErrorNetwork  ErrorKind = "network"
	ErrorRejected ErrorKind = "rejected" // endpoint reachable, responded >= 400
	ErrorUnknown  ErrorKind = "unknown"
)

// DeliveryResult is the outcome of a single attempt against one subscriber.
// Results are returned transiently to the caller; only the subscription's
// counters persist.
type DeliveryResult struct {
	WebhookID  string        `json:"webhook_id"`
	URL        string        `json:"url"`
	DeliveryID string        `json:"delivery_id"`
	Success    bool          `json:"success"`
	StatusCode int           `json:"status_code,omitempty"`
	Elapsed    time.Duration `json:"-"`
	ElapsedMS  int64         `json:"response_time_ms"`
	ErrorKind  ErrorKind     `json:"error,omitempty"`
	ErrorText  string        `json:"error_detail,omitempty"`
}

// Client performs a single authenticated HTTP POST to one endpoint. It never
// retries; retry policy, if any, belongs above it.
type Client struct {
	http *http.Client
}

// NewClient returns a delivery client with the fixed per-attempt timeout.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: DeliveryTimeout}}
}

// NewClientWithHTTP lets tests substitute their own transport/timeout.
func NewClientWithHTTP(h *http.Client) *Client {
	return &Client{http: h}
}

// Deliver serializes the envelope exactly once, signs those bytes with the
// subscription's secret (omitting the signature header entirely when there is
// no secret), POSTs, and classifies the outcome. Transport and HTTP failures
// are data in the result, never returned as errors.
func (c *Client) Deliver(ctx context.Context, sub Subscription, env Envelope) DeliveryResult {
	res := DeliveryResult{
		WebhookID:  sub.ID,
		URL:        sub.URL,
		DeliveryID: env.DeliveryID,
	}

	body, err := json.Marshal(env)
	if err != nil {
		res.ErrorKind = ErrorUnknown
		res.ErrorText = err.Error()
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		res.ErrorKind = ErrorUnknown
		res.ErrorText = err.Error()
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(HeaderEvent, string(env.Event))
	req.Header.Set(HeaderDelivery, env.DeliveryID)
	req.Header.Set(HeaderTimestamp, env.Timestamp)
	if sub.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(body, sub.Secret))
	}

	start := time.Now()
	resp, doErr := c.http.Do(req)
	res.Elapsed = time.Since(start)
	res.ElapsedMS = res.Elapsed.Milliseconds()

	if doErr != nil {
		res.ErrorKind = classify(doErr)
		res.ErrorText = doErr.Error()
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	if resp.StatusCode < 400 {
		res.Success = true
		return res
	}
	res.ErrorKind = ErrorRejected
	res.ErrorText = resp.Status
	return res
}

// classify maps a transport-level error onto the delivery error taxonomy.
// DNS failures, refused connections, and TLS faults all land in network.
func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrorTimeout
	}
	return ErrorNetwork
}

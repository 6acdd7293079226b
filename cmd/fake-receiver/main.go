package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/brunov7/formerr-hooks/internal/config"
	"github.com/brunov7/formerr-hooks/internal/webhook"
)

// fake-receiver is a local subscriber endpoint for exercising the dispatch
// pipeline: it verifies Formerr signatures over the received body bytes,
// optionally rejects stale timestamps, and can simulate flaky endpoints.

var (
	cfg      config.FakeReceiver
	reqCount = 0
)

func main() {
	cfg = config.FromEnv().FakeReceiver

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", handleHook)

	log.Printf("fake-receiver listening on %s", cfg.Port)
	log.Fatal(http.ListenAndServe(cfg.Port, mux))
}

func handleHook(w http.ResponseWriter, r *http.Request) {
	reqCount++
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if cfg.ResponseDelayMS > 0 {
		time.Sleep(time.Duration(cfg.ResponseDelayMS) * time.Millisecond)
	}

	if cfg.EndpointSecret != "" {
		sig := r.Header.Get(webhook.HeaderSignature)
		if sig == "" {
			http.Error(w, "missing signature", http.StatusUnauthorized)
			return
		}
		if !webhook.Verify(b, cfg.EndpointSecret, sig) {
			log.Printf("fake-receiver signature mismatch for delivery %s", r.Header.Get(webhook.HeaderDelivery))
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
		if cfg.MaxSkew > 0 {
			if ok, msg := timestampFresh(r.Header.Get(webhook.HeaderTimestamp), cfg.MaxSkew); !ok {
				http.Error(w, msg, http.StatusUnauthorized)
				return
			}
		}
	}

	// Simulate flakiness: first N requests get a 500
	if reqCount <= cfg.FailFirstN {
		log.Printf("FAILING (%d/%d) event=%s body=%s", reqCount, cfg.FailFirstN,
			r.Header.Get(webhook.HeaderEvent), truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK event=%s delivery=%s body=%q",
		r.Header.Get(webhook.HeaderEvent), r.Header.Get(webhook.HeaderDelivery), truncate(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

// timestampFresh checks the RFC3339 delivery timestamp against the allowed skew.
func timestampFresh(ts string, skew time.Duration) (bool, string) {
	if ts == "" {
		return false, "missing timestamp header"
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return false, "invalid timestamp"
	}
	d := time.Since(t)
	if d < 0 {
		d = -d
	}
	if d > skew {
		return false, "timestamp too far from now (outside leeway)"
	}
	return true, ""
}

// truncate limits a string to n bytes, appending an ellipsis when cut
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}

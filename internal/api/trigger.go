package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brunov7/formerr-hooks/internal/logging"
	"github.com/brunov7/formerr-hooks/internal/tracing"
	"github.com/brunov7/formerr-hooks/internal/webhook"
)

// EventPublisher is the slice of *nsq.Producer the trigger path needs;
// narrowed to an interface so tests can fake it.
type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type triggerRequest struct {
	EventType string         `json:"event_type" binding:"required"`
	Data      map[string]any `json:"data"`
}

// RegisterTriggerRoutes wires the producer-facing event intake. Dispatch is
// fire-and-forget relative to the caller: the response never depends on
// delivery outcomes, so a producer's own write transaction cannot be failed
// by webhooks. With a publisher configured, events ride the queue to
// dispatchd; otherwise dispatch runs in-process on a detached context.
// ?sync=true waits and returns the result list, for diagnostics.
func RegisterTriggerRoutes(r gin.IRoutes, disp *webhook.Dispatcher, pub EventPublisher, topic string, logger *logging.Logger) {
	r.POST("/forms/:form_id/events", func(c *gin.Context) {
		formID := c.Param("form_id")

		var req triggerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
		eventType, err := webhook.ParseEventType(req.EventType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if c.Query("sync") == "true" {
			results := disp.Trigger(c.Request.Context(), eventType, formID, req.Data)
			c.JSON(http.StatusOK, gin.H{"fanout_count": len(results), "results": results})
			return
		}

		if pub != nil {
			msg := webhook.EventMessage{
				EventType:    string(eventType),
				FormID:       formID,
				Data:         req.Data,
				PublishedAt:  time.Now().UTC().Format(time.RFC3339),
				TraceHeaders: tracing.PropagateTraceToNSQ(c.Request.Context()),
			}
			body, _ := json.Marshal(msg)
			if err := pub.Publish(topic, body); err != nil {
				// Queue down: fall back to in-process dispatch rather than
				// dropping the event or failing the producer.
				logger.WithContext(c.Request.Context()).WithForm(formID).WithError(err).Error("event publish failed, dispatching in-process")
				go disp.Trigger(context.Background(), eventType, formID, req.Data)
			}
		} else {
			go disp.Trigger(context.Background(), eventType, formID, req.Data)
		}

		c.JSON(http.StatusAccepted, gin.H{"accepted": true, "event_type": string(eventType), "form_id": formID})
	})
}

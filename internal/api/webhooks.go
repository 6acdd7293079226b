package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brunov7/formerr-hooks/internal/store"
	"github.com/brunov7/formerr-hooks/internal/webhook"
)

// SubscriptionStore is the owner-facing slice of the registry the API needs.
// *store.PostgresRegistry implements it; tests substitute fakes.
type SubscriptionStore interface {
	Create(ctx context.Context, ownerID, formID, url string, events webhook.EventSet, secret string, active bool) (*webhook.Subscription, error)
	List(ctx context.Context, ownerID, formID string) ([]webhook.Subscription, error)
	Update(ctx context.Context, ownerID, id string, upd store.SubscriptionUpdate) (*webhook.Subscription, error)
	Delete(ctx context.Context, ownerID, id string) error
	GetOwned(ctx context.Context, ownerID, id string) (*webhook.Subscription, error)
}

type createWebhookRequest struct {
	URL    string   `json:"url" binding:"required"`
	Events []string `json:"events" binding:"required"`
	Secret string   `json:"secret"`
	Active *bool    `json:"active"`
}

type updateWebhookRequest struct {
	URL    *string  `json:"url"`
	Events []string `json:"events"`
	Secret *string  `json:"secret"`
	Active *bool    `json:"active"`
}

type webhookResponse struct {
	ID            string   `json:"id"`
	FormID        string   `json:"form_id"`
	URL           string   `json:"url"`
	Events        []string `json:"events"`
	Active        bool     `json:"active"`
	CreatedAt     string   `json:"created_at"`
	LastTriggered *string  `json:"last_triggered"`
	FailureCount  int      `json:"failure_count"`
	Health        string   `json:"health"`
}

func toWebhookResponse(s *webhook.Subscription) webhookResponse {
	var last *string
	if s.LastTriggered != nil {
		v := s.LastTriggered.UTC().Format(time.RFC3339)
		last = &v
	}
	return webhookResponse{
		ID:            s.ID,
		FormID:        s.FormID,
		URL:           s.URL,
		Events:        s.Events.Slice(),
		Active:        s.Active,
		CreatedAt:     s.CreatedAt.UTC().Format(time.RFC3339),
		LastTriggered: last,
		FailureCount:  s.FailureCount,
		Health:        string(s.Health()),
	}
}

// RegisterWebhookRoutes wires the owner-facing subscription CRUD and the
// manual test-delivery action.
func RegisterWebhookRoutes(r gin.IRoutes, reg SubscriptionStore, disp *webhook.Dispatcher) {
	r.POST("/forms/:form_id/webhooks", func(c *gin.Context) {
		var req createWebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
		events, err := webhook.ParseEventSet(req.Events)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		active := true
		if req.Active != nil {
			active = *req.Active
		}

		sub, err := reg.Create(c.Request.Context(), OwnerID(c), c.Param("form_id"), req.URL, events, req.Secret, active)
		if errors.Is(err, webhook.ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "form not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, toWebhookResponse(sub))
	})

	r.GET("/forms/:form_id/webhooks", func(c *gin.Context) {
		subs, err := reg.List(c.Request.Context(), OwnerID(c), c.Param("form_id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
			return
		}
		out := make([]webhookResponse, 0, len(subs))
		for i := range subs {
			out = append(out, toWebhookResponse(&subs[i]))
		}
		c.JSON(http.StatusOK, out)
	})

	r.PATCH("/webhooks/:id", func(c *gin.Context) {
		var req updateWebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
		upd := store.SubscriptionUpdate{URL: req.URL, Secret: req.Secret, Active: req.Active}
		if req.Events != nil {
			events, err := webhook.ParseEventSet(req.Events)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			upd.Events = events
		}

		sub, err := reg.Update(c.Request.Context(), OwnerID(c), c.Param("id"), upd)
		if errors.Is(err, webhook.ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "webhook not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, toWebhookResponse(sub))
	})

	r.DELETE("/webhooks/:id", func(c *gin.Context) {
		err := reg.Delete(c.Request.Context(), OwnerID(c), c.Param("id"))
		if errors.Is(err, webhook.ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "webhook not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	// The manual diagnostic surfaces the single DeliveryResult directly,
	// including failures, since the caller explicitly asked for an attempt.
	r.POST("/webhooks/:id/test", func(c *gin.Context) {
		id := c.Param("id")
		if _, err := reg.GetOwned(c.Request.Context(), OwnerID(c), id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "webhook not found"})
			return
		}
		res, err := disp.TestDelivery(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "webhook not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":          res.Success,
			"webhook_id":       res.WebhookID,
			"delivery_id":      res.DeliveryID,
			"status_code":      res.StatusCode,
			"response_time_ms": res.ElapsedMS,
			"error":            string(res.ErrorKind),
			"error_detail":     res.ErrorText,
		})
	})

	r.GET("/webhooks/events", func(c *gin.Context) {
		events := make([]gin.H, 0, len(webhook.KnownEventTypes))
		for _, et := range webhook.KnownEventTypes {
			events = append(events, gin.H{"name": string(et)})
		}
		c.JSON(http.StatusOK, gin.H{
			"events": events,
			"webhook_guide": gin.H{
				"signature_header": webhook.HeaderSignature,
				"event_header":     webhook.HeaderEvent,
				"delivery_header":  webhook.HeaderDelivery,
				"timestamp_header": webhook.HeaderTimestamp,
				"user_agent":       webhook.UserAgent,
			},
			"example_payload": webhook.Envelope{
				Event:      webhook.EventSubmissionCreated,
				Timestamp:  "2025-06-18T03:44:14Z",
				FormID:     "form_20250618_034414_abc123",
				Data:       map[string]any{"submission_id": "sub_20250618_034414_xyz789"},
				DeliveryID: "2b1f6f60-7c51-4f9e-9f5e-2f1a58a1f000",
				Source:     webhook.Source,
			},
		})
	})
}

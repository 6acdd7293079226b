package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brunov7/formerr-hooks/internal/webhook"
)

// schemaSQL is embedded so the service can self-bootstrap its tables.
//
//go:embed schema.sql
var schemaSQL string

// PostgresRegistry is the durable subscription registry backing the
// dispatcher. It satisfies webhook.Registry and additionally carries the
// owner-facing CRUD used by the API layer.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

var _ webhook.Registry = (*PostgresRegistry)(nil)

func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

// Pool exposes the underlying connection pool for health checks.
func (r *PostgresRegistry) Pool() *pgxpool.Pool {
	return r.pool
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (r *PostgresRegistry) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schemaSQL)
	return err
}

const subscriptionColumns = `id, form_id, url, events, secret, active, failure_count, created_at, last_triggered`

func scanSubscription(row pgx.Row) (*webhook.Subscription, error) {
	var (
		s      webhook.Subscription
		events []string
		last   *time.Time
	)
	if err := row.Scan(&s.ID, &s.FormID, &s.URL, &events, &s.Secret, &s.Active, &s.FailureCount, &s.CreatedAt, &last); err != nil {
		return nil, err
	}
	set := make(webhook.EventSet, len(events))
	for _, e := range events {
		set[webhook.EventType(e)] = struct{}{}
	}
	s.Events = set
	s.LastTriggered = last
	return &s, nil
}

// FindActive returns the subscriptions that should receive eventType for a
// form. Filtering happens in SQL: active flag plus array membership on the
// subscribed event tags. No match is an empty slice, not an error.
func (r *PostgresRegistry) FindActive(ctx context.Context, formID string, eventType webhook.EventType) ([]webhook.Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM webhooks
		WHERE form_id = $1 AND active AND $2 = ANY(events)`,
		formID, string(eventType),
	)
	if err != nil {
		return nil, fmt.Errorf("find active webhooks: %w", err)
	}
	defer rows.Close()

	var subs []webhook.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// Get returns one subscription by id.
func (r *PostgresRegistry) Get(ctx context.Context, id string) (*webhook.Subscription, error) {
	s, err := scanSubscription(r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM webhooks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, webhook.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return s, nil
}

// RecordAttempt applies the health-counter discipline in one atomic UPDATE:
// success resets the failure counter, failure increments it, last_triggered is
// stamped either way. Row-level update semantics keep concurrent attempts
// against the same subscription from losing increments.
func (r *PostgresRegistry) RecordAttempt(ctx context.Context, id string, success bool, at time.Time) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE webhooks
		SET failure_count = CASE WHEN $2 THEN 0 ELSE failure_count + 1 END,
		    last_triggered = $3
		WHERE id = $1`,
		id, success, at,
	)
	if err != nil {
		return fmt.Errorf("record delivery outcome: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return webhook.ErrSubscriptionNotFound
	}
	return nil
}

// Create registers a new subscription after verifying the form exists and
// belongs to ownerID. A missing secret gets a generated whsec_ one.
func (r *PostgresRegistry) Create(ctx context.Context, ownerID, formID, url string, events webhook.EventSet, secret string, active bool) (*webhook.Subscription, error) {
	if err := webhook.ValidateURL(url); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("at least one event type is required")
	}

	owned, err := r.formOwned(ctx, formID, ownerID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, webhook.ErrSubscriptionNotFound
	}

	if secret == "" {
		secret = webhook.NewSecret()
	}
	id := webhook.NewSubscriptionID()

	s, err := scanSubscription(r.pool.QueryRow(ctx, `
		INSERT INTO webhooks (id, form_id, url, events, secret, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+subscriptionColumns,
		id, formID, url, events.Slice(), secret, active,
	))
	if err != nil {
		return nil, fmt.Errorf("insert webhook: %w", err)
	}
	return s, nil
}

// List returns all subscriptions for a form owned by ownerID, newest first.
func (r *PostgresRegistry) List(ctx context.Context, ownerID, formID string) ([]webhook.Subscription, error) {
	owned, err := r.formOwned(ctx, formID, ownerID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM webhooks WHERE form_id = $1
		ORDER BY created_at DESC`,
		formID,
	)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var subs []webhook.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// SubscriptionUpdate carries the owner-mutable fields; nil means unchanged.
type SubscriptionUpdate struct {
	URL    *string
	Events webhook.EventSet
	Secret *string
	Active *bool
}

// Update applies a partial update to an owned subscription and returns the
// new row.
func (r *PostgresRegistry) Update(ctx context.Context, ownerID, id string, upd SubscriptionUpdate) (*webhook.Subscription, error) {
	if upd.URL != nil {
		if err := webhook.ValidateURL(*upd.URL); err != nil {
			return nil, err
		}
	}
	var events []string
	if upd.Events != nil {
		events = upd.Events.Slice()
	}

	s, err := scanSubscription(r.pool.QueryRow(ctx, `
		UPDATE webhooks w
		SET url    = COALESCE($3::text, w.url),
		    events = COALESCE($4::text[], w.events),
		    secret = COALESCE($5::text, w.secret),
		    active = COALESCE($6::boolean, w.active)
		FROM forms f
		WHERE w.id = $1 AND f.id = w.form_id AND f.owner_id = $2
		RETURNING w.id, w.form_id, w.url, w.events, w.secret, w.active, w.failure_count, w.created_at, w.last_triggered`,
		id, ownerID, upd.URL, events, upd.Secret, upd.Active,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, webhook.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update webhook: %w", err)
	}
	return s, nil
}

// Delete removes an owned subscription.
func (r *PostgresRegistry) Delete(ctx context.Context, ownerID, id string) error {
	ct, err := r.pool.Exec(ctx, `
		DELETE FROM webhooks w
		USING forms f
		WHERE w.id = $1 AND f.id = w.form_id AND f.owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return webhook.ErrSubscriptionNotFound
	}
	return nil
}

// GetOwned is Get plus an ownership check, for the manual test path.
func (r *PostgresRegistry) GetOwned(ctx context.Context, ownerID, id string) (*webhook.Subscription, error) {
	s, err := scanSubscription(r.pool.QueryRow(ctx, `
		SELECT w.id, w.form_id, w.url, w.events, w.secret, w.active, w.failure_count, w.created_at, w.last_triggered
		FROM webhooks w
		JOIN forms f ON f.id = w.form_id
		WHERE w.id = $1 AND f.owner_id = $2`,
		id, ownerID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, webhook.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return s, nil
}

func (r *PostgresRegistry) formOwned(ctx context.Context, formID, ownerID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM forms WHERE id = $1 AND owner_id = $2)`,
		formID, ownerID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check form ownership: %w", err)
	}
	return exists, nil
}

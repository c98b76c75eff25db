package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"

	audit "onboarding/pkg/platform/audit"
	txcontext "onboarding/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// Store implements audit.Store on the journey_audit_events table. Appends
// join the caller's transaction when one is carried in ctx.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the audit table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	// Always derive category from action; eventCategories is the source of truth.
	category := audit.AuditEvent(event.Action).Category()

	query := `
		INSERT INTO journey_audit_events (
			id, category, timestamp, user_id, subject, action,
			persona, decision, reason, label, request_id, actor_id, device, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		string(category),
		event.Timestamp,
		event.UserID,
		event.Subject,
		event.Action,
		event.Persona,
		event.Decision,
		event.Reason,
		event.Label,
		event.RequestID,
		event.ActorID,
		event.Device,
		event.Version,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByUser returns events for a specific user, oldest first.
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, user_id, subject, action,
			   persona, decision, reason, label, request_id, actor_id, device, version
		FROM journey_audit_events
		WHERE user_id = $1
		ORDER BY timestamp ASC, version ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		var category string
		if err := rows.Scan(
			&category, &e.Timestamp, &e.UserID, &e.Subject, &e.Action,
			&e.Persona, &e.Decision, &e.Reason, &e.Label, &e.RequestID, &e.ActorID, &e.Device, &e.Version,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"onboarding/internal/journey/models"
	txcontext "onboarding/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// PostgresStore persists journeys in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed journey store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the journeys table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate journeys: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const journeyColumns = `user_id, persona, status, state_value, context, admin_decision,
	previous_decisions, cycle, version, created_at, submitted_at, last_touched_at`

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, j *models.Journey) (*models.Journey, bool, error) {
	var created bool
	var out *models.Journey
	err := txcontext.Run(ctx, s.db, func(ctx context.Context, _ *sql.Tx) error {
		args, err := journeyArgs(j)
		if err != nil {
			return err
		}
		res, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO journeys (`+journeyColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (user_id) DO NOTHING`, args...)
		if err != nil {
			return fmt.Errorf("insert journey: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert journey rows: %w", err)
		}
		created = n == 1
		out, err = s.FindByUser(ctx, j.UserID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func (s *PostgresStore) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Journey, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+journeyColumns+` FROM journeys WHERE user_id = $1`, userID)
	j, err := scanJourney(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find journey: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) Update(ctx context.Context, j *models.Journey, expectedVersion int64) error {
	args, err := journeyArgs(j)
	if err != nil {
		return err
	}
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE journeys SET
			persona = $2, status = $3, state_value = $4, context = $5, admin_decision = $6,
			previous_decisions = $7, cycle = $8, version = $9, created_at = $10,
			submitted_at = $11, last_touched_at = $12
		WHERE user_id = $1 AND version = $13`, append(args, expectedVersion)...)
	if err != nil {
		return fmt.Errorf("update journey: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update journey rows: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.FindByUser(ctx, j.UserID); err != nil {
		return err
	}
	return ErrConflict
}

func journeyArgs(j *models.Journey) ([]any, error) {
	contextJSON, err := json.Marshal(j.Context)
	if err != nil {
		return nil, fmt.Errorf("marshal journey context: %w", err)
	}
	var decisionJSON []byte
	if j.Decision != nil {
		if decisionJSON, err = json.Marshal(j.Decision); err != nil {
			return nil, fmt.Errorf("marshal admin decision: %w", err)
		}
	}
	history := j.History
	if history == nil {
		history = []models.AdminDecision{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("marshal decision history: %w", err)
	}
	var submittedAt sql.NullTime
	if j.SubmittedAt != nil {
		submittedAt = sql.NullTime{Time: *j.SubmittedAt, Valid: true}
	}
	return []any{
		j.UserID,
		string(j.Persona),
		string(j.Status),
		j.StateValue,
		contextJSON,
		decisionJSON,
		historyJSON,
		j.Cycle,
		j.Version,
		j.CreatedAt,
		submittedAt,
		j.LastTouchedAt,
	}, nil
}

func scanJourney(row *sql.Row) (*models.Journey, error) {
	var (
		j            models.Journey
		persona      string
		status       string
		contextJSON  []byte
		decisionJSON []byte
		historyJSON  []byte
		submittedAt  sql.NullTime
		createdAt    time.Time
		touchedAt    time.Time
	)
	if err := row.Scan(&j.UserID, &persona, &status, &j.StateValue, &contextJSON, &decisionJSON,
		&historyJSON, &j.Cycle, &j.Version, &createdAt, &submittedAt, &touchedAt); err != nil {
		return nil, err
	}
	j.Persona = models.Persona(persona)
	j.Status = models.Status(status)
	j.CreatedAt = createdAt.UTC()
	j.LastTouchedAt = touchedAt.UTC()
	if submittedAt.Valid {
		t := submittedAt.Time.UTC()
		j.SubmittedAt = &t
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &j.Context); err != nil {
			return nil, fmt.Errorf("unmarshal journey context: %w", err)
		}
	}
	if len(decisionJSON) > 0 {
		var d models.AdminDecision
		if err := json.Unmarshal(decisionJSON, &d); err != nil {
			return nil, fmt.Errorf("unmarshal admin decision: %w", err)
		}
		j.Decision = &d
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &j.History); err != nil {
			return nil, fmt.Errorf("unmarshal decision history: %w", err)
		}
		if len(j.History) == 0 {
			j.History = nil
		}
	}
	return &j, nil
}

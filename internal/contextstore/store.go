package contextstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/talentcomp/comprec/internal/metrics"
	"github.com/talentcomp/comprec/internal/models"
)

// Store persists candidate contexts as whole JSONB documents with an
// append-only audit trail. Writes are read-modify-write without row locking:
// concurrent turns for the same candidate resolve last-write-wins.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
	now    func() time.Time
}

func New(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

const schema = `
CREATE TABLE IF NOT EXISTS candidate_contexts (
    candidate_id TEXT PRIMARY KEY,
    doc          JSONB NOT NULL,
    state        TEXT NOT NULL DEFAULT 'active',
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS context_audit (
    id           BIGSERIAL PRIMARY KEY,
    candidate_id TEXT NOT NULL,
    actor        TEXT NOT NULL,
    field        TEXT NOT NULL,
    old_value    TEXT NOT NULL DEFAULT '',
    new_value    TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_context_audit_candidate ON context_audit (candidate_id, created_at);
CREATE INDEX IF NOT EXISTS idx_candidate_contexts_state ON candidate_contexts (state);
`

// EnsureSchema creates tables on startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure context schema: %w", err)
	}
	return nil
}

// Get loads one candidate context. Returns (nil, nil) when the candidate is
// unknown.
func (s *Store) Get(ctx context.Context, candidateID string) (*models.CandidateContext, error) {
	var raw []byte
	err := s.db.QueryRowxContext(ctx,
		`SELECT doc FROM candidate_contexts WHERE candidate_id = $1`, candidateID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load context %s: %w", candidateID, err)
	}

	var c models.CandidateContext
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode context %s: %w", candidateID, err)
	}
	return &c, nil
}

// SaveMerge applies a merge-semantics update and audits every changed field.
// Unknown candidates are created.
func (s *Store) SaveMerge(ctx context.Context, candidateID string, upd models.ContextUpdate, actor string) (*models.CandidateContext, error) {
	return s.save(ctx, candidateID, upd, actor, false)
}

// SaveReplace overwrites core fields wholesale. When the replacing actor
// differs from the original creator a replacement event is audited and
// ownership transfers.
func (s *Store) SaveReplace(ctx context.Context, candidateID string, upd models.ContextUpdate, actor string) (*models.CandidateContext, error) {
	return s.save(ctx, candidateID, upd, actor, true)
}

func (s *Store) save(ctx context.Context, candidateID string, upd models.ContextUpdate, actor string, replace bool) (*models.CandidateContext, error) {
	mode := "merge"
	if replace {
		mode = "replace"
	}

	out, err := s.saveInner(ctx, candidateID, upd, actor, replace)
	if err != nil {
		metrics.ContextSaves.WithLabelValues(mode, "error").Inc()
		return nil, err
	}
	metrics.ContextSaves.WithLabelValues(mode, "ok").Inc()
	return out, nil
}

func (s *Store) saveInner(ctx context.Context, candidateID string, upd models.ContextUpdate, actor string, replace bool) (*models.CandidateContext, error) {
	now := s.now().UTC()
	existing, err := s.Get(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	isNew := existing == nil
	if isNew {
		existing = &models.CandidateContext{
			CandidateID: candidateID,
			State:       models.CandidateActive,
			CreatedAt:   now,
			CreatedBy:   actor,
		}
	}

	var updated *models.CandidateContext
	var replacementEvent bool
	if replace && !isNew {
		updated = applyReplace(existing, upd, actor, now)
		if existing.CreatedBy != "" && existing.CreatedBy != actor {
			replacementEvent = true
			updated.CreatedBy = actor
		}
	} else {
		updated = applyMerge(existing, upd, actor, now)
	}

	changes := diffFields(existing, updated, replacementEvent)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	doc, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("encode context %s: %w", candidateID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO candidate_contexts (candidate_id, doc, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (candidate_id)
		DO UPDATE SET doc = EXCLUDED.doc, state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		candidateID, doc, string(updated.State), updated.CreatedAt, updated.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("save context %s: %w", candidateID, err)
	}

	if replacementEvent {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO context_audit (candidate_id, actor, field, old_value, new_value, created_at)
			VALUES ($1, $2, 'context_replacement', $3, $4, $5)`,
			candidateID, actor,
			fmt.Sprintf("Context created by %s", existing.CreatedBy),
			fmt.Sprintf("Context replaced by %s", actor),
			now)
		if err != nil {
			return nil, fmt.Errorf("audit replacement %s: %w", candidateID, err)
		}
		metrics.AuditEntriesWritten.Inc()
	}

	for _, ch := range changes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO context_audit (candidate_id, actor, field, old_value, new_value, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			candidateID, actorOrSystem(actor), ch.Field, ch.OldValue, ch.NewValue, now)
		if err != nil {
			return nil, fmt.Errorf("audit change %s.%s: %w", candidateID, ch.Field, err)
		}
		metrics.AuditEntriesWritten.Inc()
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save %s: %w", candidateID, err)
	}

	s.logger.Debug("context saved",
		zap.String("candidate_id", candidateID),
		zap.Bool("new", isNew),
		zap.Bool("replace", replace),
		zap.Int("changed_fields", len(changes)),
	)
	return updated, nil
}

// Reset deletes a candidate context and audits the deletion. Returns false
// when the candidate was unknown.
func (s *Store) Reset(ctx context.Context, candidateID, actor string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM candidate_contexts WHERE candidate_id = $1`, candidateID)
	if err != nil {
		return false, fmt.Errorf("reset context %s: %w", candidateID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO context_audit (candidate_id, actor, field, old_value, new_value, created_at)
		VALUES ($1, $2, 'reset', 'exists', 'deleted', $3)`,
		candidateID, actor, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("audit reset %s: %w", candidateID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit reset %s: %w", candidateID, err)
	}
	metrics.AuditEntriesWritten.Inc()
	return true, nil
}

// AuditLog returns all audit entries for a candidate, oldest first.
func (s *Store) AuditLog(ctx context.Context, candidateID string) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT candidate_id, actor, field, old_value, new_value, created_at
		FROM context_audit WHERE candidate_id = $1 ORDER BY created_at, id`, candidateID)
	if err != nil {
		return nil, fmt.Errorf("load audit log %s: %w", candidateID, err)
	}
	return entries, nil
}

// ListByState returns contexts in the given lifecycle state.
func (s *Store) ListByState(ctx context.Context, state models.CandidateState) ([]models.CandidateContext, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT doc FROM candidate_contexts WHERE state = $1 ORDER BY updated_at DESC`, string(state))
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	defer rows.Close()

	var out []models.CandidateContext
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		var c models.CandidateContext
		if err := json.Unmarshal(raw, &c); err != nil {
			s.logger.Warn("skipping undecodable context", zap.Error(err))
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}

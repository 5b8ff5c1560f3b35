package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/talentcomp/comprec/internal/models"
)

// Store persists the per-user chat transcript and response feedback.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
	now    func() time.Time
}

func New(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id           BIGSERIAL PRIMARY KEY,
    user_email   TEXT NOT NULL,
    message      TEXT NOT NULL,
    response     TEXT NOT NULL,
    session_id   TEXT NOT NULL DEFAULT '',
    request_id   TEXT NOT NULL DEFAULT '',
    candidate_id TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback (
    id            BIGSERIAL PRIMARY KEY,
    user_email    TEXT NOT NULL,
    response_id   TEXT NOT NULL,
    feedback_type TEXT NOT NULL,
    comment       TEXT NOT NULL DEFAULT '',
    candidate_id  TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_user ON messages (user_email, created_at DESC);
`

// EnsureSchema creates tables on startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure messages schema: %w", err)
	}
	return nil
}

// Append records one completed turn.
func (s *Store) Append(ctx context.Context, rec models.MessageRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (user_email, message, response, session_id, request_id, candidate_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.UserEmail, rec.Message, rec.Response, rec.SessionID, rec.RequestID, rec.CandidateID, ts)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Recent returns the newest messages for a user, oldest first so they can be
// rendered into a prompt in conversation order. candidateID "" means all
// candidates.
func (s *Store) Recent(ctx context.Context, userEmail string, limit int, candidateID string) ([]models.MessageRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT user_email, message, response, session_id, request_id, candidate_id, created_at
		FROM messages WHERE user_email = $1`
	args := []interface{}{userEmail}
	if candidateID != "" {
		query += ` AND candidate_id = $2`
		args = append(args, candidateID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit)

	var out []models.MessageRecord
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}
	// reverse into chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// MostRecentCandidateID returns the candidate referenced by the user's
// newest message that carried one, "" when none exists.
func (s *Store) MostRecentCandidateID(ctx context.Context, userEmail string) (string, error) {
	var id string
	err := s.db.QueryRowxContext(ctx, `
		SELECT candidate_id FROM messages
		WHERE user_email = $1 AND candidate_id <> ''
		ORDER BY created_at DESC, id DESC LIMIT 1`, userEmail).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load recent candidate: %w", err)
	}
	return id, nil
}

// All returns the full transcript for a user, oldest first.
func (s *Store) All(ctx context.Context, userEmail string) ([]models.MessageRecord, error) {
	var out []models.MessageRecord
	err := s.db.SelectContext(ctx, &out, `
		SELECT user_email, message, response, session_id, request_id, candidate_id, created_at
		FROM messages WHERE user_email = $1 ORDER BY created_at, id`, userEmail)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return out, nil
}

// SaveFeedback records a thumbs-down or error report on a response.
func (s *Store) SaveFeedback(ctx context.Context, rec models.FeedbackRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (user_email, response_id, feedback_type, comment, candidate_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.UserEmail, rec.ResponseID, rec.FeedbackType, rec.Comment, rec.CandidateID, ts)
	if err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	s.logger.Info("feedback recorded",
		zap.String("user", rec.UserEmail),
		zap.String("type", rec.FeedbackType),
		zap.String("candidate_id", rec.CandidateID),
	)
	return nil
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/talentcomp/comprec/internal/metrics"
	"github.com/talentcomp/comprec/internal/models"
)

const keyPrefix = "comprec:session:"

// Store keeps the per-user session pointer (the candidate the conversation
// is currently about) in Redis. Keys have no TTL: the pointer survives until
// explicitly cleared or replaced.
type Store struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(client *redis.Client, logger *zap.Logger) *Store {
	return &Store{client: client, logger: logger, now: time.Now}
}

// Get returns the user's session, creating an empty one in memory (not in
// Redis) when none is stored.
func (s *Store) Get(ctx context.Context, userEmail string) (*models.UserSession, error) {
	raw, err := s.client.Get(ctx, keyPrefix+userEmail).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.SessionUpdates.WithLabelValues("get", "miss").Inc()
		now := s.now().UTC()
		return &models.UserSession{UserEmail: userEmail, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		metrics.SessionUpdates.WithLabelValues("get", "error").Inc()
		return nil, fmt.Errorf("load session %s: %w", userEmail, err)
	}

	var sess models.UserSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", userEmail, err)
	}
	metrics.SessionUpdates.WithLabelValues("get", "ok").Inc()
	return &sess, nil
}

// CurrentCandidate returns the pointer, "" when unset.
func (s *Store) CurrentCandidate(ctx context.Context, userEmail string) (string, error) {
	sess, err := s.Get(ctx, userEmail)
	if err != nil {
		return "", err
	}
	return sess.CurrentCandidateID, nil
}

// SetCurrentCandidate points the user's conversation at a candidate.
func (s *Store) SetCurrentCandidate(ctx context.Context, userEmail, candidateID string) error {
	sess, err := s.Get(ctx, userEmail)
	if err != nil {
		return err
	}
	sess.CurrentCandidateID = candidateID
	sess.UpdatedAt = s.now().UTC()
	return s.put(ctx, sess)
}

// ClearCurrentCandidate drops the pointer, keeping the session record.
func (s *Store) ClearCurrentCandidate(ctx context.Context, userEmail string) error {
	sess, err := s.Get(ctx, userEmail)
	if err != nil {
		return err
	}
	if sess.CurrentCandidateID == "" {
		return nil
	}
	sess.CurrentCandidateID = ""
	sess.UpdatedAt = s.now().UTC()
	return s.put(ctx, sess)
}

func (s *Store) put(ctx context.Context, sess *models.UserSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.UserEmail, err)
	}
	if err := s.client.Set(ctx, keyPrefix+sess.UserEmail, raw, 0).Err(); err != nil {
		metrics.SessionUpdates.WithLabelValues("set", "error").Inc()
		return fmt.Errorf("save session %s: %w", sess.UserEmail, err)
	}
	metrics.SessionUpdates.WithLabelValues("set", "ok").Inc()
	s.logger.Debug("session updated",
		zap.String("user", sess.UserEmail),
		zap.String("current_candidate", sess.CurrentCandidateID),
	)
	return nil
}

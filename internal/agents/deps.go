package agents

import (
	"context"

	"github.com/talentcomp/comprec/internal/compdata"
	"github.com/talentcomp/comprec/internal/models"
	"github.com/talentcomp/comprec/internal/streaming"
)

// ContextStore is the slice of candidate-context persistence the pipeline
// needs.
type ContextStore interface {
	Get(ctx context.Context, candidateID string) (*models.CandidateContext, error)
	SaveMerge(ctx context.Context, candidateID string, upd models.ContextUpdate, actor string) (*models.CandidateContext, error)
}

// SessionStore tracks which candidate each user's conversation is about.
type SessionStore interface {
	CurrentCandidate(ctx context.Context, userEmail string) (string, error)
	SetCurrentCandidate(ctx context.Context, userEmail, candidateID string) error
	ClearCurrentCandidate(ctx context.Context, userEmail string) error
}

// MessageStore supplies conversation history for prompts and identifier
// fallback.
type MessageStore interface {
	Recent(ctx context.Context, userEmail string, limit int, candidateID string) ([]models.MessageRecord, error)
	MostRecentCandidateID(ctx context.Context, userEmail string) (string, error)
}

// DataSource serves market-range and internal-parity lookups.
type DataSource interface {
	MarketCompensation(jobTitle, location string) *models.MarketCompensation
	InternalParity(jobTitle, location string) *models.InternalParity
	Metadata() *compdata.Metadata
}

// Emitter receives per-step progress events for streaming to the client.
// *streaming.Manager satisfies it.
type Emitter interface {
	Publish(requestID string, evt streaming.Event)
}

// nopEmitter is used when no stream is attached to a turn.
type nopEmitter struct{}

func (nopEmitter) Publish(string, streaming.Event) {}

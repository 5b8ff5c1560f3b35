package contextstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentcomp/comprec/internal/models"
)

func baseContext() *models.CandidateContext {
	return &models.CandidateContext{
		CandidateID: "CAND-001",
		State:       models.CandidateActive,
		JobTitle:    "Senior Software Engineer",
		JobLevel:    "P4",
		Location:    "SEA",
		CreatedBy:   "alice@corp.com",
		AdditionalData: map[string]interface{}{
			"competing_offer": "280000",
		},
	}
}

func TestMergeEmptyFieldsLeaveExistingValues(t *testing.T) {
	now := time.Now()
	out := applyMerge(baseContext(), models.ContextUpdate{Location: "LAX"}, "bob@corp.com", now)

	assert.Equal(t, "Senior Software Engineer", out.JobTitle)
	assert.Equal(t, "P4", out.JobLevel)
	assert.Equal(t, "LAX", out.Location)
	assert.Equal(t, "bob@corp.com", out.UpdatedBy)
}

func TestMergeAdditionalDataIsUnion(t *testing.T) {
	out := applyMerge(baseContext(), models.ContextUpdate{
		AdditionalData: map[string]interface{}{"visa_status": "H1B"},
	}, "alice@corp.com", time.Now())

	assert.Equal(t, "280000", out.AdditionalData["competing_offer"])
	assert.Equal(t, "H1B", out.AdditionalData["visa_status"])
}

func TestMergeAdditionalDataNewValueWins(t *testing.T) {
	out := applyMerge(baseContext(), models.ContextUpdate{
		AdditionalData: map[string]interface{}{"competing_offer": "300000"},
	}, "alice@corp.com", time.Now())

	assert.Equal(t, "300000", out.AdditionalData["competing_offer"])
}

func TestMergeHistoryIsAppendOnly(t *testing.T) {
	existing := baseContext()
	existing.RecommendationHistory = []models.RecommendationHistoryItem{
		{Recommendation: models.Recommendation{Status: models.StatusApproved}},
	}

	out := applyMerge(existing, models.ContextUpdate{
		HistoryAppend: []models.RecommendationHistoryItem{
			{Recommendation: models.Recommendation{Status: models.StatusNeedsReview}},
		},
	}, "alice@corp.com", time.Now())

	require.Len(t, out.RecommendationHistory, 2)
	assert.Equal(t, models.StatusApproved, out.RecommendationHistory[0].Recommendation.Status)
	assert.Equal(t, models.StatusNeedsReview, out.RecommendationHistory[1].Recommendation.Status)
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	existing := baseContext()
	_ = applyMerge(existing, models.ContextUpdate{
		JobTitle:       "Staff Engineer",
		AdditionalData: map[string]interface{}{"k": "v"},
	}, "alice@corp.com", time.Now())

	assert.Equal(t, "Senior Software Engineer", existing.JobTitle)
	assert.NotContains(t, existing.AdditionalData, "k")
}

func TestMergeCloseSetsClosedAt(t *testing.T) {
	now := time.Now()
	out := applyMerge(baseContext(), models.ContextUpdate{State: models.CandidateClosed}, "alice@corp.com", now)

	assert.Equal(t, models.CandidateClosed, out.State)
	require.NotNil(t, out.ClosedAt)
	assert.Equal(t, now, *out.ClosedAt)
}

func TestReplaceOverwritesCoreFieldsIncludingEmpty(t *testing.T) {
	out := applyReplace(baseContext(), models.ContextUpdate{
		JobTitle: "Engineering Manager",
		JobLevel: "P5",
	}, "bob@corp.com", time.Now())

	assert.Equal(t, "Engineering Manager", out.JobTitle)
	assert.Equal(t, "P5", out.JobLevel)
	assert.Empty(t, out.Location)
	// additional data still merges through replacement
	assert.Equal(t, "280000", out.AdditionalData["competing_offer"])
}

func TestDiffFields(t *testing.T) {
	oldCtx := baseContext()
	newCtx := applyMerge(oldCtx, models.ContextUpdate{
		JobLevel:          "P5",
		InterviewFeedback: "Must Hire",
	}, "alice@corp.com", time.Now())

	changes := diffFields(oldCtx, newCtx, false)
	fields := make([]string, 0, len(changes))
	for _, ch := range changes {
		fields = append(fields, ch.Field)
	}
	assert.ElementsMatch(t, []string{"job_level", "interview_feedback"}, fields)
}

func TestDiffFieldsReplacementSkipsCreatedBy(t *testing.T) {
	oldCtx := baseContext()
	newCtx := cloneContext(oldCtx)
	newCtx.CreatedBy = "bob@corp.com"

	assert.Empty(t, diffFields(oldCtx, newCtx, true))
	changes := diffFields(oldCtx, newCtx, false)
	require.Len(t, changes, 1)
	assert.Equal(t, "created_by", changes[0].Field)
}

func TestDiffFieldsHistoryGrowth(t *testing.T) {
	oldCtx := baseContext()
	newCtx := applyMerge(oldCtx, models.ContextUpdate{
		HistoryAppend: []models.RecommendationHistoryItem{{}},
	}, "alice@corp.com", time.Now())

	changes := diffFields(oldCtx, newCtx, false)
	require.Len(t, changes, 1)
	assert.Equal(t, "recommendation_history", changes[0].Field)
	assert.Equal(t, "0 entries", changes[0].OldValue)
	assert.Equal(t, "1 entries", changes[0].NewValue)
}

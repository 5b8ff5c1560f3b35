package contextstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/talentcomp/comprec/internal/models"
)

// fieldChange is one audited difference between context versions.
type fieldChange struct {
	Field    string
	OldValue string
	NewValue string
}

// applyMerge folds an update into an existing context. Core fields change
// only when the update carries a non-empty value; additional_data keys are
// unioned; recommendation history is appended, never truncated.
func applyMerge(existing *models.CandidateContext, upd models.ContextUpdate, actor string, now time.Time) *models.CandidateContext {
	out := cloneContext(existing)
	out.UpdatedAt = now
	out.UpdatedBy = actor

	if upd.JobTitle != "" {
		out.JobTitle = upd.JobTitle
	}
	if upd.JobLevel != "" {
		out.JobLevel = upd.JobLevel
	}
	if upd.Location != "" {
		out.Location = upd.Location
	}
	if upd.JobFamily != "" {
		out.JobFamily = upd.JobFamily
	}
	if upd.InterviewFeedback != "" {
		out.InterviewFeedback = upd.InterviewFeedback
	}
	applyShared(out, upd, now)
	return out
}

// applyReplace overwrites all core fields from the update, empty values
// included. Additional data and recommendation history still merge; they
// survive replacement.
func applyReplace(existing *models.CandidateContext, upd models.ContextUpdate, actor string, now time.Time) *models.CandidateContext {
	out := cloneContext(existing)
	out.UpdatedAt = now
	out.UpdatedBy = actor

	out.JobTitle = upd.JobTitle
	out.JobLevel = upd.JobLevel
	out.Location = upd.Location
	out.JobFamily = upd.JobFamily
	out.InterviewFeedback = upd.InterviewFeedback
	applyShared(out, upd, now)
	return out
}

func applyShared(out *models.CandidateContext, upd models.ContextUpdate, now time.Time) {
	if len(upd.AdditionalData) > 0 {
		if out.AdditionalData == nil {
			out.AdditionalData = make(map[string]interface{}, len(upd.AdditionalData))
		}
		for k, v := range upd.AdditionalData {
			out.AdditionalData[k] = v
		}
	}
	if upd.Recommendation != nil {
		out.Recommendation = upd.Recommendation
	}
	if len(upd.HistoryAppend) > 0 {
		out.RecommendationHistory = append(out.RecommendationHistory, upd.HistoryAppend...)
	}
	if upd.State != "" && upd.State != out.State {
		out.State = upd.State
		if upd.State == models.CandidateClosed {
			t := now
			out.ClosedAt = &t
		} else {
			out.ClosedAt = nil
		}
	}
}

func cloneContext(c *models.CandidateContext) *models.CandidateContext {
	out := *c
	if c.AdditionalData != nil {
		out.AdditionalData = make(map[string]interface{}, len(c.AdditionalData))
		for k, v := range c.AdditionalData {
			out.AdditionalData[k] = v
		}
	}
	out.RecommendationHistory = append([]models.RecommendationHistoryItem(nil), c.RecommendationHistory...)
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		out.ClosedAt = &t
	}
	return &out
}

// diffFields lists audited differences between two context versions.
// Timestamps and candidate_id are never audited; created_by is skipped
// during replacement because the replacement event covers it.
func diffFields(oldCtx, newCtx *models.CandidateContext, isReplacement bool) []fieldChange {
	var changes []fieldChange
	add := func(field, oldV, newV string) {
		if oldV != newV {
			changes = append(changes, fieldChange{Field: field, OldValue: oldV, NewValue: newV})
		}
	}

	add("job_title", oldCtx.JobTitle, newCtx.JobTitle)
	add("job_level", oldCtx.JobLevel, newCtx.JobLevel)
	add("location", oldCtx.Location, newCtx.Location)
	add("job_family", oldCtx.JobFamily, newCtx.JobFamily)
	add("interview_feedback", oldCtx.InterviewFeedback, newCtx.InterviewFeedback)
	add("state", string(oldCtx.State), string(newCtx.State))
	if !isReplacement {
		add("created_by", oldCtx.CreatedBy, newCtx.CreatedBy)
	}
	add("additional_data", jsonString(oldCtx.AdditionalData), jsonString(newCtx.AdditionalData))
	add("recommendation", recSummary(oldCtx.Recommendation), recSummary(newCtx.Recommendation))
	if len(oldCtx.RecommendationHistory) != len(newCtx.RecommendationHistory) {
		changes = append(changes, fieldChange{
			Field:    "recommendation_history",
			OldValue: fmt.Sprintf("%d entries", len(oldCtx.RecommendationHistory)),
			NewValue: fmt.Sprintf("%d entries", len(newCtx.RecommendationHistory)),
		})
	}
	return changes
}

func jsonString(v map[string]interface{}) string {
	if len(v) == 0 {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func recSummary(r *models.Recommendation) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%s base=%.2f total=%.2f", r.Status, r.BaseSalary, r.TotalCompensation)
}

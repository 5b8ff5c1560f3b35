package agents

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/talentcomp/comprec/internal/llm"
	"github.com/talentcomp/comprec/internal/metrics"
	"github.com/talentcomp/comprec/internal/models"
	"github.com/talentcomp/comprec/internal/streaming"
)

// researchStep collects data if needed, drafts a recommendation with the
// LLM, then recomputes every number deterministically before persisting.
func (w *Workflow) researchStep(ctx context.Context, st *turnState) Step {
	jobTitle := st.context.JobTitle
	location := st.context.Location
	if jobTitle == "" || location == "" {
		st.response = "Missing job title or location."
		return StepRespond
	}

	if !st.research.Fresh(jobTitle, location) {
		w.emit(st, streaming.EventStatus, "collector", "Collecting market data...", nil)
		st.research = w.collectData(jobTitle, location)
	}
	w.emit(st, streaming.EventStatus, "research", "Data collected, generating recommendation...", nil)

	// No market match: report it, recommend nothing. The record is still
	// kept so the next turn skips recollection.
	if !st.research.MarketData.Available {
		st.rec = &models.Recommendation{
			Status:     models.StatusNoData,
			DataStatus: "NO_MATCH_IN_DATA",
		}
		metrics.RecommendationsGenerated.WithLabelValues(models.StatusNoData).Inc()
		st.response = fmt.Sprintf("No market data found for %s in %s. Please verify the job title and location.", jobTitle, location)
		return StepRespond
	}

	responseText, err := w.researchLLM.Complete(ctx, "", buildResearchPrompt(st))
	if err != nil {
		st.response = fmt.Sprintf("Research error: %v", err)
		return StepRespond
	}

	draft := decodeJSONMap(llm.ExtractJSONObject(responseText))
	if draft == nil {
		st.response = "Could not parse recommendation."
		return StepRespond
	}

	st.rec = finalizeRecommendation(draft, st.context, st.research)
	metrics.RecommendationsGenerated.WithLabelValues(st.rec.Status).Inc()
	st.response = st.rec.ResponseText

	// Persist the recommendation and an immutable history entry. The turn
	// answers from memory even when persistence fails.
	if st.candidateID != "" {
		item := models.RecommendationHistoryItem{
			Timestamp:       w.now().UTC(),
			ContextSnapshot: st.context.Snapshot(),
			Recommendation:  *st.rec,
		}
		saved, err := w.contexts.SaveMerge(ctx, st.candidateID, models.ContextUpdate{
			Recommendation: st.rec,
			HistoryAppend:  []models.RecommendationHistoryItem{item},
		}, st.input.UserEmail)
		if err != nil {
			w.logger.Warn("saving recommendation failed",
				zap.String("candidate_id", st.candidateID), zap.Error(err))
		} else {
			st.context = saved
		}
	}

	if w.cfg.EnableJudge {
		return StepJudge
	}
	return StepRespond
}

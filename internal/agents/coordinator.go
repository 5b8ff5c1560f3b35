package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/talentcomp/comprec/internal/llm"
	"github.com/talentcomp/comprec/internal/models"
	"github.com/talentcomp/comprec/internal/streaming"
)

var actionResearchRe = regexp.MustCompile(`(?i)ACTION\s*:\s*RESEARCH`)

// Keywords that signal the user wants a recommendation even without the
// explicit marker from the model.
var researchKeywords = []string{"recommendation", "compensation", "offer", "salary"}

const recruiterRestrictionMsg = "I can only help you with candidates that have existing recommendations from the Compensation Team."

// coordinate resolves the candidate, extracts fields from the message via
// the LLM, merges them into the stored context, and decides whether the turn
// proceeds to research or answers directly.
func (w *Workflow) coordinate(ctx context.Context, st *turnState) Step {
	w.emit(st, streaming.EventStatus, "coordinator", "Analyzing your message...", nil)

	userEmail := st.input.UserEmail
	message := strings.TrimSpace(st.message)

	// Identifier resolution: message mention wins, then the session pointer,
	// then the newest transcript entry that referenced a candidate.
	extractedID := ExtractCandidateID(message)
	currentID, err := w.sessions.CurrentCandidate(ctx, userEmail)
	if err != nil {
		w.logger.Warn("session lookup failed", zap.String("user", userEmail), zap.Error(err))
	}
	candidateID := extractedID
	if candidateID == "" {
		candidateID = currentID
	}
	if candidateID == "" {
		if id, err := w.messages.MostRecentCandidateID(ctx, userEmail); err == nil {
			candidateID = id
		}
	}

	// Load context; closed candidates are never conversation context.
	if candidateID != "" {
		stored, err := w.contexts.Get(ctx, candidateID)
		if err != nil {
			w.logger.Warn("context load failed", zap.String("candidate_id", candidateID), zap.Error(err))
		}
		if stored != nil && stored.State == models.CandidateClosed {
			if err := w.sessions.ClearCurrentCandidate(ctx, userEmail); err != nil {
				w.logger.Warn("clearing session pointer failed", zap.Error(err))
			}
			candidateID = ""
		} else {
			if stored != nil {
				st.context = stored
			}
			if candidateID != currentID {
				if err := w.sessions.SetCurrentCandidate(ctx, userEmail, candidateID); err != nil {
					w.logger.Warn("setting session pointer failed", zap.Error(err))
				}
			}
		}
	}
	st.candidateID = candidateID

	// Recruitment team may only discuss candidates that already carry a
	// recommendation from the comp team.
	if st.input.UserType == models.UserTypeRecruitmentTeam && candidateID != "" {
		existing, err := w.contexts.Get(ctx, candidateID)
		if err != nil || existing == nil || len(existing.RecommendationHistory) == 0 {
			st.response = recruiterRestrictionMsg
			return StepRespond
		}
	}

	if history, err := w.messages.Recent(ctx, userEmail, w.cfg.HistoryLimit, candidateID); err == nil {
		st.history = history
	} else {
		w.logger.Warn("history load failed", zap.String("user", userEmail), zap.Error(err))
	}

	meta := w.data.Metadata()
	prompt := buildCoordinatorPrompt(st, promptMetadata{
		Locations:   meta.Locations,
		JobFamilies: meta.JobFamilies,
	})

	responseText, err := w.coordinatorLLM.Complete(ctx, "", prompt)
	if err != nil {
		st.response = fmt.Sprintf("Error: %v", err)
		return StepRespond
	}

	hasAction := actionResearchRe.MatchString(responseText)
	userResponse := strings.TrimSpace(actionResearchRe.ReplaceAllString(llm.StripJSONBlock(responseText), ""))

	upd, extractedID, extractedAny := parseExtraction(llm.ExtractJSONObject(responseText))
	if extractedAny {
		applyExtraction(st.context, upd)
	}

	if st.candidateID == "" && extractedID != "" {
		st.candidateID = extractedID
		if err := w.sessions.SetCurrentCandidate(ctx, userEmail, extractedID); err != nil {
			w.logger.Warn("setting session pointer failed", zap.Error(err))
		}
	}
	if st.context.CandidateID == "" {
		st.context.CandidateID = st.candidateID
	}

	st.missing = st.context.MissingFields()

	// Persist what this turn learned. Failures are logged, not surfaced;
	// the conversation continues from in-memory state.
	if st.candidateID != "" && extractedAny {
		if saved, err := w.contexts.SaveMerge(ctx, st.candidateID, upd, userEmail); err != nil {
			w.logger.Warn("context save failed", zap.String("candidate_id", st.candidateID), zap.Error(err))
		} else {
			st.context = saved
			st.missing = saved.MissingFields()
		}
	}

	// No candidate: greeting or off-topic, answer with the model's text.
	if st.candidateID == "" {
		st.response = userResponse
		if st.response == "" {
			st.response = "Hi! How can I help you with compensation today?"
		}
		return StepRespond
	}

	if len(st.missing) > 0 {
		st.response = userResponse
		if st.response == "" {
			friendly := make([]string, len(st.missing))
			for i, f := range st.missing {
				friendly[i] = models.FieldDisplayNames[f]
			}
			st.response = fmt.Sprintf("I still need: %s. Could you provide these?", strings.Join(friendly, ", "))
		}
		return StepRespond
	}

	if level := st.context.JobLevel; level != "" {
		if _, ok := models.ValidJobLevels[level]; !ok {
			st.response = fmt.Sprintf("Invalid job level '%s'. Must be one of: %s. Please provide a valid job level.",
				level, strings.Join(sortedLevels(), ", "))
			return StepRespond
		}
	}

	if hasAction || containsAnyKeyword(message, researchKeywords) {
		st.response = ""
		return StepResearch
	}

	st.response = userResponse
	if st.response == "" {
		st.response = "Got it! Let me know when you're ready for a compensation recommendation."
	}
	return StepRespond
}

// parseExtraction turns the model's JSON block into a context update plus
// any candidate ID the model surfaced. Values "null", "none" and "" are
// treated as absent.
func parseExtraction(jsonBlock string) (models.ContextUpdate, string, bool) {
	var upd models.ContextUpdate
	raw := decodeJSONMap(jsonBlock)
	if raw == nil {
		return upd, "", false
	}

	extractedID := ExtractCandidateID(cleanString(raw["candidate_id"]))
	upd.JobTitle = cleanString(raw["job_title"])
	upd.JobLevel = strings.ToUpper(cleanString(raw["job_level"]))
	upd.Location = strings.ToUpper(cleanString(raw["location"]))
	upd.JobFamily = cleanString(raw["job_family"])
	upd.InterviewFeedback = NormalizeFeedback(cleanString(raw["interview_feedback"]))

	if extra, ok := raw["additional_context"].(map[string]interface{}); ok && len(extra) > 0 {
		upd.AdditionalData = extra
	}
	return upd, extractedID, true
}

func decodeJSONMap(jsonBlock string) map[string]interface{} {
	if jsonBlock == "" {
		return nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(jsonBlock), &raw); err != nil {
		return nil
	}
	return raw
}

// applyExtraction mirrors the merge the store performs, so routing decisions
// in this turn see the same context a reload would.
func applyExtraction(c *models.CandidateContext, upd models.ContextUpdate) {
	if upd.JobTitle != "" {
		c.JobTitle = upd.JobTitle
	}
	if upd.JobLevel != "" {
		c.JobLevel = upd.JobLevel
	}
	if upd.Location != "" {
		c.Location = upd.Location
	}
	if upd.JobFamily != "" {
		c.JobFamily = upd.JobFamily
	}
	if upd.InterviewFeedback != "" {
		c.InterviewFeedback = upd.InterviewFeedback
	}
	if len(upd.AdditionalData) > 0 {
		if c.AdditionalData == nil {
			c.AdditionalData = make(map[string]interface{}, len(upd.AdditionalData))
		}
		for k, v := range upd.AdditionalData {
			c.AdditionalData[k] = v
		}
	}
}

func cleanString(v interface{}) string {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "none":
		return ""
	}
	return s
}

func containsAnyKeyword(message string, keywords []string) bool {
	lower := strings.ToLower(message)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func sortedLevels() []string {
	out := make([]string, 0, len(models.ValidJobLevels))
	for l := range models.ValidJobLevels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

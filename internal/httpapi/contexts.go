package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/talentcomp/comprec/internal/auth"
	"github.com/talentcomp/comprec/internal/models"
)

// handleContextGet returns the stored context for a candidate. Recruitment
// team users only see candidates that already carry a recommendation.
func (s *Server) handleContextGet(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	candidateID := strings.ToUpper(r.PathValue("id"))

	c, err := s.contexts.Get(r.Context(), candidateID)
	if err != nil {
		s.logger.Error("context load failed", zap.String("candidate_id", candidateID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "candidate not found")
		return
	}
	if identity.UserType == models.UserTypeRecruitmentTeam && len(c.RecommendationHistory) == 0 {
		writeError(w, http.StatusForbidden, "candidate has no recommendation yet")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type replaceRequest struct {
	JobTitle          string                 `json:"job_title"`
	JobLevel          string                 `json:"job_level"`
	Location          string                 `json:"location"`
	JobFamily         string                 `json:"job_family"`
	InterviewFeedback string                 `json:"interview_feedback"`
	State             string                 `json:"state"`
	AdditionalData    map[string]interface{} `json:"additional_data"`
}

// handleContextReplace overwrites the core fields of a candidate context.
// Replacement is a comp-team operation; additional data and recommendation
// history survive it.
func (s *Server) handleContextReplace(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity.UserType != models.UserTypeCompTeam {
		writeError(w, http.StatusForbidden, "comp team only")
		return
	}
	candidateID := strings.ToUpper(r.PathValue("id"))

	var req replaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if level := strings.ToUpper(strings.TrimSpace(req.JobLevel)); level != "" {
		if _, ok := models.ValidJobLevels[level]; !ok {
			writeError(w, http.StatusBadRequest, "invalid job level")
			return
		}
		req.JobLevel = level
	}
	state := models.CandidateState(req.State)
	switch state {
	case "", models.CandidateActive, models.CandidateClosed:
	default:
		writeError(w, http.StatusBadRequest, "invalid state")
		return
	}

	saved, err := s.contexts.SaveReplace(r.Context(), candidateID, models.ContextUpdate{
		JobTitle:          req.JobTitle,
		JobLevel:          req.JobLevel,
		Location:          strings.ToUpper(req.Location),
		JobFamily:         req.JobFamily,
		InterviewFeedback: req.InterviewFeedback,
		State:             state,
		AdditionalData:    req.AdditionalData,
	}, identity.Email)
	if err != nil {
		s.logger.Error("context replace failed", zap.String("candidate_id", candidateID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleContextReset deletes a candidate context entirely, leaving only the
// audit trail. Comp team only.
func (s *Server) handleContextReset(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity.UserType != models.UserTypeCompTeam {
		writeError(w, http.StatusForbidden, "comp team only")
		return
	}
	candidateID := strings.ToUpper(r.PathValue("id"))

	existed, err := s.contexts.Reset(r.Context(), candidateID, identity.Email)
	if err != nil {
		s.logger.Error("context reset failed", zap.String("candidate_id", candidateID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "candidate not found")
		return
	}

	// Drop the caller's pointer if it referenced the deleted candidate.
	if current, _ := s.sessions.CurrentCandidate(r.Context(), identity.Email); current == candidateID {
		if err := s.sessions.ClearCurrentCandidate(r.Context(), identity.Email); err != nil {
			s.logger.Warn("clearing session pointer failed", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"candidate_id": candidateID,
		"reset":        true,
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	candidateID := strings.ToUpper(r.PathValue("id"))

	entries, err := s.contexts.AuditLog(r.Context(), candidateID)
	if err != nil {
		s.logger.Error("audit load failed", zap.String("candidate_id", candidateID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"candidate_id": candidateID,
		"entries":      entries,
	})
}

// handleCurrentCandidate reports which candidate the caller's conversation is
// about. A pointer to a closed candidate is cleared, not returned.
func (s *Server) handleCurrentCandidate(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	candidateID, err := s.sessions.CurrentCandidate(r.Context(), identity.Email)
	if err != nil {
		s.logger.Error("session lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if candidateID == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"candidate_id": nil})
		return
	}

	c, err := s.contexts.Get(r.Context(), candidateID)
	if err == nil && c != nil && c.State == models.CandidateClosed {
		if err := s.sessions.ClearCurrentCandidate(r.Context(), identity.Email); err != nil {
			s.logger.Warn("clearing session pointer failed", zap.Error(err))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"candidate_id": nil})
		return
	}

	resp := map[string]interface{}{"candidate_id": candidateID}
	if c != nil {
		resp["context"] = c
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCandidates lists candidates by lifecycle state, active by default.
func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	state := models.CandidateState(r.URL.Query().Get("state"))
	if state == "" {
		state = models.CandidateActive
	}
	if state != models.CandidateActive && state != models.CandidateClosed {
		writeError(w, http.StatusBadRequest, "invalid state")
		return
	}

	contexts, err := s.contexts.ListByState(r.Context(), state)
	if err != nil {
		s.logger.Error("candidate list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]map[string]interface{}, 0, len(contexts))
	for _, c := range contexts {
		out = append(out, map[string]interface{}{
			"candidate_id":       c.CandidateID,
			"state":              c.State,
			"job_title":          c.JobTitle,
			"job_level":          c.JobLevel,
			"location":           c.Location,
			"updated_at":         c.UpdatedAt,
			"has_recommendation": len(c.RecommendationHistory) > 0,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":      state,
		"candidates": out,
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	candidateID := strings.ToUpper(r.URL.Query().Get("candidate_id"))

	msgs, err := s.messages.Recent(r.Context(), identity.Email, limit, candidateID)
	if err != nil {
		s.logger.Error("message load failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) handleMessagesAll(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	msgs, err := s.messages.All(r.Context(), identity.Email)
	if err != nil {
		s.logger.Error("message load failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

type feedbackRequest struct {
	ResponseID   string `json:"response_id"`
	FeedbackType string `json:"feedback_type"`
	Comment      string `json:"comment"`
	CandidateID  string `json:"candidate_id"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.FeedbackType == "" {
		writeError(w, http.StatusBadRequest, "feedback_type required")
		return
	}

	if err := s.messages.SaveFeedback(r.Context(), models.FeedbackRecord{
		UserEmail:    identity.Email,
		ResponseID:   req.ResponseID,
		FeedbackType: req.FeedbackType,
		Comment:      req.Comment,
		CandidateID:  strings.ToUpper(req.CandidateID),
	}); err != nil {
		s.logger.Error("feedback save failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

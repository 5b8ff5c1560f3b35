package models

import (
	"strings"
	"time"
)

// UserType distinguishes the two operator roles.
type UserType string

const (
	UserTypeCompTeam        UserType = "Comp Team"
	UserTypeRecruitmentTeam UserType = "Recruitment Team"
)

// CandidateState is the lifecycle state of a candidate context.
type CandidateState string

const (
	CandidateActive CandidateState = "active"
	CandidateClosed CandidateState = "closed"
)

// Job levels accepted for the job_level field.
var ValidJobLevels = map[string]struct{}{
	"P1": {}, "P2": {}, "P3": {}, "P4": {}, "P5": {},
}

// RequiredFields lists the mandatory context fields in declaration order.
// candidate_id is checked separately by the coordinator.
var RequiredFields = []string{
	"candidate_id",
	"job_title",
	"job_level",
	"location",
	"job_family",
	"interview_feedback",
}

// FieldDisplayNames maps internal field names to user-facing labels.
var FieldDisplayNames = map[string]string{
	"candidate_id":       "Candidate ID",
	"job_title":          "Job Title",
	"job_level":          "Job Level (P1-P5)",
	"location":           "Location",
	"job_family":         "Job Family",
	"interview_feedback": "Interview Panel Feedback (Must Hire/Strong Hire/Hire)",
}

// CandidateContext is the durable per-candidate record accumulated across
// conversation turns. Core fields, once set, are only overwritten by an
// explicit new extraction; AdditionalData is merged key-wise and
// RecommendationHistory is append-only.
type CandidateContext struct {
	CandidateID           string                      `json:"candidate_id"`
	State                 CandidateState              `json:"state"`
	JobTitle              string                      `json:"job_title,omitempty"`
	JobLevel              string                      `json:"job_level,omitempty"`
	Location              string                      `json:"location,omitempty"`
	JobFamily             string                      `json:"job_family,omitempty"`
	InterviewFeedback     string                      `json:"interview_feedback,omitempty"`
	CreatedAt             time.Time                   `json:"created_at"`
	UpdatedAt             time.Time                   `json:"updated_at"`
	ClosedAt              *time.Time                  `json:"closed_at,omitempty"`
	CreatedBy             string                      `json:"created_by,omitempty"`
	UpdatedBy             string                      `json:"updated_by,omitempty"`
	AdditionalData        map[string]interface{}      `json:"additional_data,omitempty"`
	Recommendation        *Recommendation             `json:"recommendation,omitempty"`
	RecommendationHistory []RecommendationHistoryItem `json:"recommendation_history,omitempty"`
}

// FieldValue returns the value of a core field by its internal name.
func (c *CandidateContext) FieldValue(name string) string {
	switch name {
	case "candidate_id":
		return c.CandidateID
	case "job_title":
		return c.JobTitle
	case "job_level":
		return c.JobLevel
	case "location":
		return c.Location
	case "job_family":
		return c.JobFamily
	case "interview_feedback":
		return c.InterviewFeedback
	}
	return ""
}

// MissingFields returns required fields that are still unset, in declaration
// order, excluding candidate_id.
func (c *CandidateContext) MissingFields() []string {
	var missing []string
	for _, f := range RequiredFields {
		if f == "candidate_id" {
			continue
		}
		if strings.TrimSpace(c.FieldValue(f)) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Snapshot captures the core fields at recommendation time.
func (c *CandidateContext) Snapshot() ContextSnapshot {
	return ContextSnapshot{
		JobTitle:          c.JobTitle,
		JobLevel:          c.JobLevel,
		Location:          c.Location,
		JobFamily:         c.JobFamily,
		InterviewFeedback: c.InterviewFeedback,
	}
}

// ContextSnapshot is the frozen copy of core fields stored with each
// recommendation history entry.
type ContextSnapshot struct {
	JobTitle          string `json:"job_title,omitempty"`
	JobLevel          string `json:"job_level,omitempty"`
	Location          string `json:"location,omitempty"`
	JobFamily         string `json:"job_family,omitempty"`
	InterviewFeedback string `json:"interview_feedback,omitempty"`
}

// RecommendationHistoryItem is one append-only history entry.
type RecommendationHistoryItem struct {
	Timestamp       time.Time       `json:"timestamp"`
	ContextSnapshot ContextSnapshot `json:"context_snapshot"`
	Recommendation  Recommendation  `json:"recommendation"`
}

// ContextUpdate is a partial update applied to a candidate context. Empty
// core-field strings mean "leave unchanged"; AdditionalData keys are unioned
// into the stored mapping; HistoryAppend entries are appended, never
// replacing earlier ones.
type ContextUpdate struct {
	JobTitle          string
	JobLevel          string
	Location          string
	JobFamily         string
	InterviewFeedback string
	State             CandidateState
	AdditionalData    map[string]interface{}
	Recommendation    *Recommendation
	HistoryAppend     []RecommendationHistoryItem
}

// AuditEntry records one field change on a candidate context.
type AuditEntry struct {
	Timestamp   time.Time `json:"timestamp" db:"created_at"`
	CandidateID string    `json:"candidate_id" db:"candidate_id"`
	Actor       string    `json:"user" db:"actor"`
	Field       string    `json:"field" db:"field"`
	OldValue    string    `json:"old_value" db:"old_value"`
	NewValue    string    `json:"new_value" db:"new_value"`
}

// UserSession holds the single "current candidate" pointer a user's
// conversation is implicitly about.
type UserSession struct {
	UserEmail          string    `json:"user_email"`
	CurrentCandidateID string    `json:"current_candidate_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// MessageRecord is one transcript entry: a user message and the assistant
// response produced for it.
type MessageRecord struct {
	Timestamp   time.Time `json:"timestamp" db:"created_at"`
	UserEmail   string    `json:"user_email" db:"user_email"`
	Message     string    `json:"message" db:"message"`
	Response    string    `json:"response" db:"response"`
	SessionID   string    `json:"session_id" db:"session_id"`
	RequestID   string    `json:"request_id" db:"request_id"`
	CandidateID string    `json:"candidate_id,omitempty" db:"candidate_id"`
}

// FeedbackRecord is a user's thumbs-down / error report on a response.
type FeedbackRecord struct {
	Timestamp    time.Time `json:"timestamp" db:"created_at"`
	UserEmail    string    `json:"user_email" db:"user_email"`
	ResponseID   string    `json:"response_id" db:"response_id"`
	FeedbackType string    `json:"feedback_type" db:"feedback_type"`
	Comment      string    `json:"comment,omitempty" db:"comment"`
	CandidateID  string    `json:"candidate_id,omitempty" db:"candidate_id"`
}

package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/talentcomp/comprec/internal/models"
)

const coordinatorPromptTemplate = `You are a compensation recommendation assistant. You ONLY handle compensation-related requests.

MESSAGE HANDLING RULES:
1. GREETINGS (hi, hello, hey, etc.) -> Respond warmly and naturally, ask how you can help with compensation
2. OFF-TOPIC (weather, jokes, coding help, anything not about compensation) -> Politely say: "I can only help with compensation recommendations for candidates. Is there a candidate you'd like me to help with?"
3. COMPENSATION REQUESTS -> Collect required info and provide recommendations

REQUIRED FIELDS (must have all 6 before generating recommendation):
- candidate_id (CAND-XXX format)
- job_title
- job_level (P1-P5)
- location (%s)
- job_family (%s)
- interview_feedback (Must Hire, Strong Hire, Hire)

ADDITIONAL CONTEXT - Extract ANY relevant compensation info mentioned in the message:
Examples of what to extract (not limited to these):
- Competing/counter offers and amounts
- Candidate's salary expectations
- Current compensation
- Signing bonus requests
- Equity preferences
- Relocation needs or costs
- Start date urgency
- Retention risk concerns
- Special skills or certifications
- Years of experience
- Any other relevant details

IMPORTANT: Every new piece of information should be captured in additional_context.

LOCATION MAPPING: LA/Los Angeles->LAX, Seattle->SEA, St. Louis->STL, Dublin->DUB, Shanghai->SHA, Sydney->SYD, Singapore->SIN

CURRENT CONTEXT:
%s

EXISTING ADDITIONAL CONTEXT (accumulated from previous messages):
%s

CONVERSATION HISTORY:
%s

USER MESSAGE: %s

INSTRUCTIONS:
1. Determine if this is a greeting, off-topic, or compensation-related
2. For GREETINGS -> Friendly response asking how you can help
3. For OFF-TOPIC -> Politely decline and redirect
4. For COMPENSATION -> Extract ALL relevant info
5. Merge any new additional context with existing additional_context (don't lose previous info)
6. If all 6 required fields are complete AND user wants recommendation -> output ACTION: RESEARCH

RESPONSE FORMAT - Output a JSON block with:
{
  "candidate_id": "CAND-XXX" or null,
  "job_title": "..." or null,
  "job_level": "P1-P5" or null,
  "location": "LAX/SEA/etc" or null,
  "job_family": "..." or null,
  "interview_feedback": "Must Hire/Strong Hire/Hire" or null,
  "additional_context": {}
}

Then write your conversational response.
If ready for research, add "ACTION: RESEARCH" at the end.`

func buildCoordinatorPrompt(st *turnState, meta promptMetadata) string {
	core := map[string]interface{}{
		"candidate_id":       nullable(coalesce(st.context.CandidateID, st.candidateID)),
		"job_title":          nullable(st.context.JobTitle),
		"job_level":          nullable(st.context.JobLevel),
		"location":           nullable(st.context.Location),
		"job_family":         nullable(st.context.JobFamily),
		"interview_feedback": nullable(st.context.InterviewFeedback),
	}
	contextJSON, _ := json.MarshalIndent(core, "", "  ")

	additionalJSON := "{}"
	if len(st.context.AdditionalData) > 0 {
		if b, err := json.MarshalIndent(st.context.AdditionalData, "", "  "); err == nil {
			additionalJSON = string(b)
		}
	}

	history := renderHistory(st.history, 5)
	if history == "" {
		history = "None"
	}

	return fmt.Sprintf(coordinatorPromptTemplate,
		strings.Join(meta.Locations, ", "),
		strings.Join(meta.JobFamilies, ", "),
		string(contextJSON),
		additionalJSON,
		history,
		st.message,
	)
}

const researchPromptTemplate = `You are a compensation research agent. ONLY use data provided - NO hallucination.

CONTEXT (includes additional_context with all accumulated information):
%s

DATA:
%s

RULES:
1. If market_data.available is false -> return status "no_data" with NO compensation numbers
2. Base salary MUST be within market min/max range from CompRanges.csv
3. Calculate percentile: ((base_salary - min) / (max - min)) * 100
4. Interview feedback affects percentile target: Must Hire->75-90th, Strong Hire->50-75th, Hire->25-50th
5. Job level affects bonus/equity: P5->20%% bonus/$100k equity, P4->15%%/$60k, P3->10%%/$30k, P2->8%%/$20k, P1->5%%/$10k
6. ALWAYS cite exact values from data sources in reasoning

ADDITIONAL CONTEXT RULES - Check additional_context and factor in:
- counter_offer: Try to meet/exceed if within market range; if it exceeds max, use max plus enhanced equity
- current_salary: Ensure a meaningful increase (typically 10-20%% minimum)
- urgency: Note in the response if time-sensitive
- Any other relevant context provided

OUTPUT (JSON only, no other text):
{
  "status": "approved"|"needs_review"|"no_data",
  "data_status": "OK"|"NO_MATCH_IN_DATA",
  "recommendation": {
    "base_salary": number,
    "base_salary_percentile": number,
    "bonus_percentage": number,
    "equity_amount": number,
    "total_compensation": number,
    "reasoning": {
      "market_data_citation": "CompRanges.csv: [Job Title] in [Location] range $X - $Y",
      "internal_parity_citation": "EmployeeRoster.csv: N employees, range $X - $Y" or "No internal parity data",
      "percentile_justification": "...",
      "bonus_justification": "...",
      "equity_justification": "..."
    }
  }
}`

func buildResearchPrompt(st *turnState) string {
	contextJSON, _ := json.MarshalIndent(st.context, "", "  ")
	dataJSON, _ := json.MarshalIndent(st.research, "", "  ")
	return fmt.Sprintf(researchPromptTemplate, string(contextJSON), string(dataJSON))
}

const judgePromptTemplate = `Validate this compensation recommendation against the data.

DATA: %s

RECOMMENDATION: %s

CHECK:
1. Base salary within market min/max?
2. Reasoning cites actual data sources?
3. No hallucinated numbers?

OUTPUT (JSON only):
{"approved": true|false, "issues": [], "feedback": "..."}`

func buildJudgePrompt(research *models.ResearchRecord, rec *models.Recommendation) string {
	data := map[string]interface{}{
		"market": research.MarketData,
		"parity": research.InternalParity,
	}
	dataJSON, _ := json.MarshalIndent(data, "", "  ")
	recJSON, _ := json.MarshalIndent(rec, "", "  ")
	return fmt.Sprintf(judgePromptTemplate, string(dataJSON), string(recJSON))
}

// promptMetadata is the catalog slice prompts need.
type promptMetadata struct {
	Locations   []string
	JobFamilies []string
}

func renderHistory(history []models.MessageRecord, limit int) string {
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	var b strings.Builder
	for _, m := range history {
		if m.Message != "" {
			fmt.Fprintf(&b, "User: %s\n", m.Message)
		}
		if m.Response != "" {
			fmt.Fprintf(&b, "Assistant: %s\n", m.Response)
		}
	}
	return b.String()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

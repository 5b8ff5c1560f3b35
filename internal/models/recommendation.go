package models

import (
	"strings"
	"time"
)

// Recommendation statuses.
const (
	StatusApproved    = "approved"
	StatusNeedsReview = "needs_review"
	StatusNoData      = "no_data"
)

// MarketCompensation is one market-range row for a (job title, location)
// pair.
type MarketCompensation struct {
	Currency string  `json:"currency"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Range    string  `json:"range,omitempty"`
}

// InternalParity aggregates compensation of existing employees matching a
// (job title, location) pair.
type InternalParity struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// MarketResult is the market-lookup half of a research record. Available is
// false when no row matched; callers must never fabricate numbers in that
// case.
type MarketResult struct {
	Source    string              `json:"source"`
	Available bool                `json:"available"`
	Data      *MarketCompensation `json:"data,omitempty"`
}

// ParityResult is the internal-parity half of a research record.
type ParityResult struct {
	Source    string          `json:"source"`
	Available bool            `json:"available"`
	Data      *InternalParity `json:"data,omitempty"`
}

// ResearchRecord holds the data gathered for one (job title, location)
// request. It is transient: it lives in turn state and inside
// recommendation payloads, never standalone.
type ResearchRecord struct {
	JobTitle       string       `json:"job_title"`
	Location       string       `json:"location"`
	CollectedAt    time.Time    `json:"collected_at"`
	Collected      bool         `json:"collected"`
	MarketData     MarketResult `json:"market_data"`
	InternalParity ParityResult `json:"internal_parity"`
}

// Fresh reports whether this record can be reused for the given pair
// without recollection: the stored pair must match case-insensitively and a
// collection attempt (successful or not) must already have run.
func (r *ResearchRecord) Fresh(jobTitle, location string) bool {
	if r == nil || !r.Collected {
		return false
	}
	if r.JobTitle == "" || r.Location == "" {
		return false
	}
	return strings.EqualFold(r.JobTitle, jobTitle) && strings.EqualFold(r.Location, location)
}

// MarketCitation references the market-range source used for a
// recommendation.
type MarketCitation struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Source string  `json:"source"`
}

// ParityCitation references the roster source used for a recommendation.
type ParityCitation struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
	Source string  `json:"source"`
}

// JudgeVerdict is the validation outcome attached by the judge step.
type JudgeVerdict struct {
	Approved bool     `json:"approved"`
	Issues   []string `json:"issues,omitempty"`
	Feedback string   `json:"feedback,omitempty"`
}

// Recommendation is the derived compensation package for a candidate. It is
// produced by the calculator and never hand-edited. With status no_data all
// numeric fields are zero and omitted from JSON.
type Recommendation struct {
	Status     string `json:"status"`
	DataStatus string `json:"data_status,omitempty"`

	BaseSalary           float64 `json:"base_salary,omitempty"`
	BaseSalaryPercentile float64 `json:"base_salary_percentile,omitempty"`
	BonusPercentage      float64 `json:"bonus_percentage,omitempty"`
	BonusAmount          float64 `json:"bonus_amount,omitempty"`
	EquityAmount         float64 `json:"equity_amount,omitempty"`
	TotalCompensation    float64 `json:"total_compensation,omitempty"`

	CounterOffer     float64 `json:"counter_offer,omitempty"`
	CounterOfferNote string  `json:"counter_offer_note,omitempty"`

	MarketRange    *MarketCitation        `json:"market_range,omitempty"`
	InternalParity *ParityCitation        `json:"internal_parity,omitempty"`
	Reasoning      map[string]string      `json:"reasoning,omitempty"`
	AppliedContext map[string]interface{} `json:"additional_context_applied,omitempty"`
	JudgeVerdict   *JudgeVerdict          `json:"judge_validation,omitempty"`

	ResponseText string `json:"response_text,omitempty"`
}

// HasNumbers reports whether any numeric compensation field is populated.
func (r *Recommendation) HasNumbers() bool {
	return r.BaseSalary != 0 || r.BonusAmount != 0 || r.EquityAmount != 0 || r.TotalCompensation != 0
}

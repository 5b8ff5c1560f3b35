package agents

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/talentcomp/comprec/internal/models"
)

// Compensation defaults by job level.
var (
	bonusByLevel  = map[string]float64{"P5": 20, "P4": 15, "P3": 10, "P2": 8, "P1": 5}
	equityByLevel = map[string]float64{"P5": 100000, "P4": 60000, "P3": 30000, "P2": 20000, "P1": 10000}
)

const (
	defaultBonusPct = 10.0
	defaultEquity   = 30000.0
	maxEquityBoost  = 50000.0
)

// finalizeRecommendation derives the authoritative numbers from market data
// and context, using the model's draft only for reasoning text and as a base
// salary suggestion. All arithmetic is recomputed here; model math is never
// trusted.
func finalizeRecommendation(draft map[string]interface{}, ctx *models.CandidateContext, research *models.ResearchRecord) *models.Recommendation {
	rec := &models.Recommendation{
		Status:     "approved",
		DataStatus: "OK",
	}
	if s := cleanString(draft["status"]); s != "" {
		rec.Status = s
	}
	if s := cleanString(draft["data_status"]); s != "" {
		rec.DataStatus = s
	}

	draftRec, _ := draft["recommendation"].(map[string]interface{})
	rec.Reasoning = reasoningStrings(draftRec)

	level := ctx.JobLevel
	bonusPct, ok := bonusByLevel[level]
	if !ok {
		bonusPct = defaultBonusPct
	}
	if v, ok := floatFromAny(draftRec["bonus_percentage"]); ok && v > 0 {
		bonusPct = v
	}
	equity, ok := moneyFromAny(draftRec["equity_amount"])
	if !ok {
		if equity, ok = equityByLevel[level]; !ok {
			equity = defaultEquity
		}
	}

	var marketMin, marketMax float64
	if research.MarketData.Data != nil {
		marketMin = research.MarketData.Data.Min
		marketMax = research.MarketData.Data.Max
	}

	base, _ := moneyFromAny(draftRec["base_salary"])

	// Model gave no usable base: place it at the tier percentile the
	// interview feedback implies.
	if base == 0 && marketMax > 0 {
		base = math.Round(marketMin + (marketMax-marketMin)*tierFraction(ctx.InterviewFeedback))
	}

	// Counter-offer reconciliation. Solve for the base that makes the total
	// match the counter; cap at market max with an equity boost when it
	// cannot be met.
	if counter, ok := moneyFromAny(additionalValue(ctx, "counter_offer")); ok && base > 0 {
		rec.CounterOffer = counter
		targetBase := (counter - equity) / (1 + bonusPct/100)
		if targetBase <= marketMax {
			base = math.Round(math.Max(marketMin, targetBase))
			rec.Status = models.StatusApproved
		} else {
			base = marketMax
			maxTotal := marketMax*(1+bonusPct/100) + equity
			gap := counter - maxTotal
			var boost float64
			if gap > 0 {
				boost = math.Min(gap, maxEquityBoost)
				equity += boost
			}
			remaining := gap - boost
			rec.Status = models.StatusNeedsReview
			if boost > 0 {
				rec.CounterOfferNote = fmt.Sprintf(
					"Counter offer of %s exceeds market max. Added %s extra equity. Remaining gap: %s",
					dollars(counter), dollars(boost), dollars(remaining))
			} else {
				rec.CounterOfferNote = fmt.Sprintf(
					"Counter offer of %s exceeds our maximum offer. Gap: %s",
					dollars(counter), dollars(gap))
			}
		}
	}

	rec.BaseSalary = base
	rec.BonusPercentage = bonusPct
	rec.EquityAmount = equity

	if base > 0 && marketMax > marketMin {
		pct := (base - marketMin) / (marketMax - marketMin) * 100
		rec.BaseSalaryPercentile = round1(math.Max(0, math.Min(100, pct)))
	} else {
		rec.BaseSalaryPercentile = 50
	}

	if base > 0 {
		bonusAmount := base * bonusPct / 100
		rec.BonusAmount = round2(bonusAmount)
		rec.TotalCompensation = round2(base + bonusAmount + equity)
	}

	rec.MarketRange = &models.MarketCitation{Min: marketMin, Max: marketMax, Source: marketSource}
	if research.InternalParity.Available && research.InternalParity.Data != nil {
		p := research.InternalParity.Data
		rec.InternalParity = &models.ParityCitation{Min: p.Min, Max: p.Max, Count: p.Count, Source: paritySource}
	}

	if len(ctx.AdditionalData) > 0 {
		rec.AppliedContext = ctx.AdditionalData
	}

	rec.ResponseText = buildResponseText(rec, ctx, marketMin, marketMax)
	return rec
}

// tierFraction maps interview feedback to a position inside the market
// range.
func tierFraction(feedback string) float64 {
	lower := strings.ToLower(feedback)
	switch {
	case strings.Contains(lower, "must"):
		return 0.85
	case strings.Contains(lower, "strong"):
		return 0.75
	default:
		return 0.50
	}
}

// buildResponseText renders the package summary from the recomputed numbers.
func buildResponseText(rec *models.Recommendation, ctx *models.CandidateContext, marketMin, marketMax float64) string {
	candidate := ctx.CandidateID
	if candidate == "" {
		candidate = "this candidate"
	}
	feedback := ctx.InterviewFeedback
	if feedback == "" {
		feedback = "Hire"
	}
	level := ctx.JobLevel

	var counterText string
	if rec.CounterOffer > 0 {
		if rec.Status == models.StatusNeedsReview || rec.CounterOfferNote != "" {
			gap := rec.CounterOffer - rec.TotalCompensation
			counterText = fmt.Sprintf(
				"\n\nCounter Offer Analysis: The candidate's counter offer of %s exceeds our maximum market-based offer of %s (gap: %s). "+
					"Our offer is at the top of the approved market range. "+
					"Recommendation: This requires VP/executive approval to exceed market guidelines, "+
					"or consider non-monetary benefits (signing bonus, additional PTO, remote work flexibility, "+
					"accelerated review timeline) to bridge the gap.",
				dollars(rec.CounterOffer), dollars(rec.TotalCompensation), dollars(gap))
		} else {
			counterText = fmt.Sprintf(" This revised recommendation addresses the counter offer of %s.", dollars(rec.CounterOffer))
		}
	}

	return fmt.Sprintf(
		"For %s, I recommend a total compensation of %s consisting of: "+
			"Base Salary: %s (%dth percentile of market range %s-%s per %s), "+
			"Bonus: %s (%.0f%% for %s level), "+
			"Equity: %s. "+
			"This reflects the %s interview feedback.%s",
		candidate,
		dollars(rec.TotalCompensation),
		dollars(rec.BaseSalary),
		int(math.Round(rec.BaseSalaryPercentile)),
		dollars(marketMin), dollars(marketMax), marketSource,
		dollars(rec.BonusAmount),
		rec.BonusPercentage, level,
		dollars(rec.EquityAmount),
		feedback,
		counterText,
	)
}

func additionalValue(ctx *models.CandidateContext, key string) interface{} {
	if ctx.AdditionalData == nil {
		return nil
	}
	return ctx.AdditionalData[key]
}

func reasoningStrings(draftRec map[string]interface{}) map[string]string {
	raw, _ := draftRec["reasoning"].(map[string]interface{})
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func floatFromAny(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// dollars renders an amount with thousands separators, e.g. $329,100.
func dollars(v float64) string {
	neg := v < 0
	n := int64(math.Round(math.Abs(v)))
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
		if len(s) > lead {
			b.WriteByte(',')
		}
	}
	for i := lead; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	out := "$" + b.String()
	if neg {
		out = "-" + out
	}
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }

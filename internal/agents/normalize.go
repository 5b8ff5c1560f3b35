package agents

import (
	"regexp"
	"strconv"
	"strings"
)

var candidateIDRe = regexp.MustCompile(`(?i)CAND-([A-Za-z0-9_-]+)`)

// ExtractCandidateID finds the first CAND-XXX identifier in text, uppercased,
// or "" when none is present.
func ExtractCandidateID(text string) string {
	m := candidateIDRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return "CAND-" + strings.ToUpper(m[1])
}

// NormalizeFeedback maps free-text interview feedback onto the three
// canonical ratings. Negative phrasings return "" so a "no hire" never
// reaches the calculator. The trailing " hire" match is deliberately loose;
// anything it misclassifies still lands on the lowest tier.
func NormalizeFeedback(value string) string {
	if value == "" {
		return ""
	}
	lower := strings.ToLower(value)
	lower = strings.ReplaceAll(lower, "-", " ")
	lower = strings.ReplaceAll(lower, "_", " ")
	lower = strings.TrimSpace(lower)

	for _, neg := range []string{"no hire", "do not hire", "don't hire", "not hire"} {
		if strings.Contains(lower, neg) {
			return ""
		}
	}
	if strings.Contains(lower, "must hire") {
		return "Must Hire"
	}
	if strings.Contains(lower, "strong hire") {
		return "Strong Hire"
	}
	if lower == "hire" || strings.HasSuffix(lower, " hire") {
		return "Hire"
	}
	return ""
}

// ParseMoney parses "$150k", "150,000", "1.5m" into a dollar amount.
// Returns (0, false) for empty, unparseable, zero or negative input.
func ParseMoney(s string) (float64, bool) {
	t := strings.ToLower(strings.TrimSpace(s))
	t = strings.ReplaceAll(t, ",", "")
	t = strings.ReplaceAll(t, "$", "")
	t = strings.TrimSpace(t)
	if t == "" {
		return 0, false
	}

	mult := 1.0
	switch {
	case strings.HasSuffix(t, "k"):
		mult = 1_000
		t = strings.TrimSuffix(t, "k")
	case strings.HasSuffix(t, "m"):
		mult = 1_000_000
		t = strings.TrimSuffix(t, "m")
	}

	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, false
	}
	v *= mult
	if v <= 0 {
		return 0, false
	}
	return v, true
}

// moneyFromAny accepts the mixed types JSON decoding produces for amounts.
func moneyFromAny(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		if x <= 0 {
			return 0, false
		}
		return x, true
	case int:
		if x <= 0 {
			return 0, false
		}
		return float64(x), true
	case string:
		return ParseMoney(x)
	default:
		return 0, false
	}
}

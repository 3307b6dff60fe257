package company

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// healthWeights scores the normalized metrics the portfolio team
// tracks. Debt carries a negative weight.
var healthWeights = map[string]float64{
	"revenue":       0.3,
	"profit_margin": 0.25,
	"cash_flow":     0.25,
	"debt_ratio":    -0.2,
}

// HealthScore computes a 0-100 weighted health score from a company's
// normalized metrics. Metric names outside the weighted set are
// ignored; when no weighted metric is present the score is 0.
func HealthScore(metrics map[string]float64) float64 {
	if len(metrics) == 0 {
		return 0
	}

	var score, totalWeight float64
	for metric, value := range metrics {
		w, ok := healthWeights[metric]
		if !ok {
			continue
		}
		score += value * w
		totalWeight += math.Abs(w)
	}
	if totalWeight == 0 {
		return 0
	}

	return math.Max(0, math.Min(100, score/totalWeight*100))
}

// ScoreSeverity maps a health score onto an alert severity band.
func ScoreSeverity(score float64) Severity {
	switch {
	case score >= 80:
		return SeverityLow
	case score >= 60:
		return SeverityMedium
	case score >= 40:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// Validate checks field-level requirements for a company record and
// returns the problems found, empty when the record is acceptable.
func (c *Company) Validate() []string {
	var errs []string

	if c.ID == "" {
		errs = append(errs, "missing required field: company_id")
	}
	if c.Name == "" {
		errs = append(errs, "missing required field: name")
	}
	if c.ContactEmail == "" {
		errs = append(errs, "missing required field: contact_email")
	}
	if c.Status == "" {
		errs = append(errs, "missing required field: status")
	} else if !ValidStatus(string(c.Status)) {
		errs = append(errs, fmt.Sprintf("invalid status: %s", c.Status))
	}

	return errs
}

// FormatCurrency renders an amount as dollars with thousands grouping,
// e.g. -12345.6 → "$-12,345.60".
func FormatCurrency(amount float64) string {
	s := strconv.FormatFloat(amount, 'f', 2, 64)

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	dot := strings.IndexByte(s, '.')
	intPart, frac := s[:dot], s[dot:]

	var b strings.Builder
	for i := 0; i < len(intPart); i++ {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(intPart[i])
	}

	out := b.String() + frac
	if neg {
		out = "-" + out
	}
	return "$" + out
}

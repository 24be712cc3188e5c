package scoring

import (
	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/domain"
)

// categoryBaseScores anchor the weighted priority score. The fraud_suspected
// and other endpoints come from the SLA contract; the rest interpolate by
// operational urgency.
var categoryBaseScores = map[domain.DisputeCategory]float64{
	domain.CategoryFraudSuspected:          70,
	domain.CategoryUnauthorizedTransaction: 65,
	domain.CategoryDuplicateCharge:         50,
	domain.CategoryWrongAmount:             45,
	domain.CategoryTransactionFailed:       40,
	domain.CategoryServiceNotReceived:      35,
	domain.CategoryTechnicalError:          30,
	domain.CategoryOther:                   20,
}

// PriorityInput feeds the weighted priority score. AmountMinor is zero when
// the stored amount does not parse; the fraud score already penalizes that.
type PriorityInput struct {
	Category        domain.DisputeCategory
	FraudScore      float64
	AmountMinor     int64
	AgeHours        float64
	EscalationLevel int
}

// PriorityScore computes the weighted score in [0, 100]. Deterministic:
// identical inputs always produce identical output.
func PriorityScore(in PriorityInput) float64 {
	score, ok := categoryBaseScores[in.Category]
	if !ok {
		score = categoryBaseScores[domain.CategoryOther]
	}

	switch {
	case in.FraudScore >= 95:
		score += 30
	case in.FraudScore >= 80:
		score += 20
	case in.FraudScore >= 50:
		score += 10
	}

	major := in.AmountMinor / 100
	switch {
	case major >= 1_000_000:
		score += 15
	case major >= 250_000:
		score += 8
	case major >= 50_000:
		score += 4
	}

	switch {
	case in.AgeHours >= 72:
		score += 10
	case in.AgeHours >= 24:
		score += 5
	}

	escalation := float64(in.EscalationLevel) * 10
	if escalation > 20 {
		escalation = 20
	}
	score += escalation

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// ClassifyPriority maps a weighted score to a priority level using the
// configured thresholds.
func ClassifyPriority(score float64, th config.ScoringConfig) domain.DisputePriority {
	switch {
	case score >= th.PriorityCritical:
		return domain.PriorityCritical
	case score >= th.PriorityHigh:
		return domain.PriorityHigh
	case score >= th.PriorityMedium:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

// TriagePriority is the provisional amount/tier rule applied at creation,
// before fraud context exists. SUBMIT immediately recomputes with the
// weighted score, which is canonical.
func TriagePriority(amountMinor int64, userTier int, th config.ScoringConfig) domain.DisputePriority {
	major := amountMinor / 100
	switch {
	case major > th.TriageCriticalAmountMajor || userTier >= th.TriageCriticalTier:
		return domain.PriorityCritical
	case major > th.TriageHighAmountMajor:
		return domain.PriorityHigh
	default:
		return domain.PriorityMedium
	}
}

// Package resolution decides whether a dispute can be closed without human
// review. Evaluate is a pure decision function; the caller applies the
// decision transactionally.
package resolution

import (
	"strings"

	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/domain"
	"github.com/spec-kit/dispute-service/internal/money"
)

// Decision reasons surfaced to callers and recorded on the timeline.
const (
	ReasonHighFraudScore       = "high_fraud_score"
	ReasonInvalidAmountFormat  = "invalid_amount_format"
	ReasonRequiresManualReview = "requires_manual_review"
	ReasonDuplicateConfirmed   = "duplicate_charge_confirmed"
	ReasonTechnicalConfirmed   = "technical_error_confirmed"
	ReasonUnauthorizedLowRisk  = "unauthorized_low_risk"
	ReasonAmountMismatch       = "amount_mismatch_documented"
	ReasonLowRisk              = "low_risk_auto_approval"
)

// Decision is the evaluator's output. RefundAmountMinor is meaningful only
// when Eligible is true.
type Decision struct {
	Eligible          bool
	Outcome           domain.DisputeOutcome
	Details           string
	RefundAmountMinor int64
	Reason            string
}

// Evidence language patterns, matched case-insensitively against OCR text.
var (
	duplicatePatterns = []string{
		"charged twice", "double charge", "duplicate charge", "billed twice",
		"charged 2 times", "two identical charges",
	}
	technicalPatterns = []string{
		"system error", "internal error", "timeout", "failed to process",
		"service unavailable", "technical issue", "outage",
	}
	unauthorizedPatterns = []string{
		"did not authorize", "unauthorized", "not me", "never made",
		"account compromised", "card stolen", "stolen card",
	}
)

// Evaluate applies the rule chain in order; the first applicable rule wins:
//
//  1. high fraud score blocks auto-resolution outright;
//  2. category-specific evidence rules (an invalid claimed amount inside a
//     category rule is terminal and routes to manual review, never to zero);
//  3. generic low-risk fallback;
//  4. manual review.
//
// Evaluate has no side effects and never mutates the dispute.
func Evaluate(d *domain.Dispute, evidence []domain.Evidence, cfg config.AutoResolutionConfig) Decision {
	if d.FraudScore > cfg.MaxFraudScore {
		return Decision{Eligible: false, Reason: ReasonHighFraudScore}
	}

	if decision := categoryRule(d, evidence, cfg); decision != nil {
		return *decision
	}

	amountMinor, err := money.ParseMinorUnits(d.Amount)
	if err != nil {
		return Decision{Eligible: false, Reason: ReasonInvalidAmountFormat}
	}
	if amountMinor <= cfg.SmallAmountCeilingMinor && d.FraudScore < cfg.LowFraudScore {
		return Decision{
			Eligible:          true,
			Outcome:           domain.OutcomeUserFavor,
			Details:           "low-risk dispute under the auto-approval ceiling",
			RefundAmountMinor: amountMinor,
			Reason:            ReasonLowRisk,
		}
	}

	return Decision{Eligible: false, Reason: ReasonRequiresManualReview}
}

// categoryRule returns nil when no category-specific rule applies, letting
// the generic fallback take over.
func categoryRule(d *domain.Dispute, evidence []domain.Evidence, cfg config.AutoResolutionConfig) *Decision {
	switch d.Category {
	case domain.CategoryDuplicateCharge:
		if !evidenceMatches(evidence, duplicatePatterns) {
			return nil
		}
		return fullRefund(d, "evidence confirms a duplicate charge", ReasonDuplicateConfirmed)

	case domain.CategoryTechnicalError:
		if !evidenceMatches(evidence, technicalPatterns) {
			return nil
		}
		return fullRefund(d, "evidence confirms a system failure during processing", ReasonTechnicalConfirmed)

	case domain.CategoryUnauthorizedTransaction:
		if !evidenceMatches(evidence, unauthorizedPatterns) {
			return nil
		}
		amountMinor, err := money.ParseMinorUnits(d.Amount)
		if err != nil {
			return &Decision{Eligible: false, Reason: ReasonInvalidAmountFormat}
		}
		if amountMinor > cfg.SmallAmountCeilingMinor || d.FraudScore >= cfg.StrictFraudScore {
			return &Decision{Eligible: false, Reason: ReasonRequiresManualReview}
		}
		return &Decision{
			Eligible:          true,
			Outcome:           domain.OutcomeUserFavor,
			Details:           "small unauthorized charge with supporting statement and low risk",
			RefundAmountMinor: amountMinor,
			Reason:            ReasonUnauthorizedLowRisk,
		}

	case domain.CategoryWrongAmount:
		return wrongAmountRule(d, evidence)
	}
	return nil
}

// fullRefund builds a user-favor decision refunding the whole claimed amount,
// validating the claim parses first.
func fullRefund(d *domain.Dispute, details, reason string) *Decision {
	amountMinor, err := money.ParseMinorUnits(d.Amount)
	if err != nil {
		return &Decision{Eligible: false, Reason: ReasonInvalidAmountFormat}
	}
	return &Decision{
		Eligible:          true,
		Outcome:           domain.OutcomeUserFavor,
		Details:           details,
		RefundAmountMinor: amountMinor,
		Reason:            reason,
	}
}

// wrongAmountRule compares the claimed amount against amounts OCR pulled out
// of the evidence. A documented amount differing by more than a cent supports
// the claim; the refund is the overcharge.
func wrongAmountRule(d *domain.Dispute, evidence []domain.Evidence) *Decision {
	claimedMinor, err := money.ParseMinorUnits(d.Amount)
	if err != nil {
		return &Decision{Eligible: false, Reason: ReasonInvalidAmountFormat}
	}
	for i := range evidence {
		if evidence[i].UploadStatus != domain.UploadCompleted || evidence[i].StructuredData == nil {
			continue
		}
		for _, raw := range evidence[i].StructuredData.Amounts {
			documentedMinor, err := money.ParseMinorUnits(normalizeAmount(raw))
			if err != nil {
				continue
			}
			if money.AbsDiff(claimedMinor, documentedMinor) <= 1 {
				continue
			}
			if claimedMinor > documentedMinor {
				return &Decision{
					Eligible:          true,
					Outcome:           domain.OutcomeUserFavor,
					Details:           "documents show a lower amount than charged",
					RefundAmountMinor: claimedMinor - documentedMinor,
					Reason:            ReasonAmountMismatch,
				}
			}
			// Documented amount exceeds the claim; a human should look.
			return &Decision{Eligible: false, Reason: ReasonRequiresManualReview}
		}
	}
	return nil
}

// evidenceMatches scans completed evidence text for any of the patterns.
func evidenceMatches(evidence []domain.Evidence, patterns []string) bool {
	for i := range evidence {
		if evidence[i].UploadStatus != domain.UploadCompleted || evidence[i].ExtractedText == nil {
			continue
		}
		text := strings.ToLower(*evidence[i].ExtractedText)
		for _, p := range patterns {
			if strings.Contains(text, p) {
				return true
			}
		}
	}
	return false
}

func normalizeAmount(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	return strings.ReplaceAll(s, ",", "")
}

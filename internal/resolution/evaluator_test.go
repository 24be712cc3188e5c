package resolution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/domain"
)

func evalConfig() config.AutoResolutionConfig {
	return config.AutoResolutionConfig{
		MaxFraudScore:           80,
		StrictFraudScore:        30,
		LowFraudScore:           40,
		SmallAmountCeilingMinor: 10000, // 100.00
	}
}

func completedEvidence(text string) domain.Evidence {
	return domain.Evidence{
		UploadStatus:  domain.UploadCompleted,
		ExtractedText: &text,
	}
}

func dispute(category domain.DisputeCategory, amount string, fraudScore float64) *domain.Dispute {
	return &domain.Dispute{
		Category:   category,
		Amount:     amount,
		FraudScore: fraudScore,
	}
}

func TestEvaluate_HighFraudScoreAlwaysBlocks(t *testing.T) {
	// Regardless of category or how good the evidence looks.
	for _, category := range domain.Categories {
		d := dispute(category, "25.00", 81)
		got := Evaluate(d, []domain.Evidence{completedEvidence("charged twice system error unauthorized")}, evalConfig())
		assert.False(t, got.Eligible, "category %s", category)
		assert.Equal(t, ReasonHighFraudScore, got.Reason, "category %s", category)
	}
}

func TestEvaluate_DuplicateChargeWithMatchingEvidence(t *testing.T) {
	d := dispute(domain.CategoryDuplicateCharge, "49.90", 10)
	got := Evaluate(d, []domain.Evidence{completedEvidence("I was charged twice for this order")}, evalConfig())

	require.True(t, got.Eligible)
	assert.Equal(t, domain.OutcomeUserFavor, got.Outcome)
	assert.Equal(t, int64(4990), got.RefundAmountMinor)
	assert.Equal(t, ReasonDuplicateConfirmed, got.Reason)
}

func TestEvaluate_DuplicateChargeInvalidAmount(t *testing.T) {
	d := dispute(domain.CategoryDuplicateCharge, "abc", 10)
	got := Evaluate(d, []domain.Evidence{completedEvidence("charged twice")}, evalConfig())

	assert.False(t, got.Eligible)
	assert.Equal(t, ReasonInvalidAmountFormat, got.Reason)
	assert.Zero(t, got.RefundAmountMinor)
}

func TestEvaluate_PendingEvidenceIgnored(t *testing.T) {
	text := "charged twice"
	pending := domain.Evidence{UploadStatus: domain.UploadPending, ExtractedText: &text}
	d := dispute(domain.CategoryDuplicateCharge, "500.00", 10)
	got := Evaluate(d, []domain.Evidence{pending}, evalConfig())

	// No completed evidence, so the category rule does not apply and the
	// amount is above the generic ceiling.
	assert.False(t, got.Eligible)
	assert.Equal(t, ReasonRequiresManualReview, got.Reason)
}

func TestEvaluate_TechnicalErrorPattern(t *testing.T) {
	d := dispute(domain.CategoryTechnicalError, "12.50", 5)
	got := Evaluate(d, []domain.Evidence{completedEvidence("payment failed to process due to a timeout")}, evalConfig())

	require.True(t, got.Eligible)
	assert.Equal(t, ReasonTechnicalConfirmed, got.Reason)
	assert.Equal(t, int64(1250), got.RefundAmountMinor)
}

func TestEvaluate_UnauthorizedRequiresAllThreeConditions(t *testing.T) {
	evidence := []domain.Evidence{completedEvidence("I did not authorize this charge")}

	small := dispute(domain.CategoryUnauthorizedTransaction, "50.00", 10)
	got := Evaluate(small, evidence, evalConfig())
	require.True(t, got.Eligible)
	assert.Equal(t, ReasonUnauthorizedLowRisk, got.Reason)

	large := dispute(domain.CategoryUnauthorizedTransaction, "5000.00", 10)
	got = Evaluate(large, evidence, evalConfig())
	assert.False(t, got.Eligible)
	assert.Equal(t, ReasonRequiresManualReview, got.Reason)

	risky := dispute(domain.CategoryUnauthorizedTransaction, "50.00", 35)
	got = Evaluate(risky, evidence, evalConfig())
	assert.False(t, got.Eligible)
	assert.Equal(t, ReasonRequiresManualReview, got.Reason)
}

func TestEvaluate_WrongAmountRefundsTheDifference(t *testing.T) {
	ev := completedEvidence("receipt")
	ev.StructuredData = &domain.ExtractedFields{Amounts: []string{"$80.00"}}

	d := dispute(domain.CategoryWrongAmount, "100.00", 10)
	got := Evaluate(d, []domain.Evidence{ev}, evalConfig())

	require.True(t, got.Eligible)
	assert.Equal(t, ReasonAmountMismatch, got.Reason)
	assert.Equal(t, int64(2000), got.RefundAmountMinor)
}

func TestEvaluate_WrongAmountWithinACentFallsThrough(t *testing.T) {
	ev := completedEvidence("receipt")
	ev.StructuredData = &domain.ExtractedFields{Amounts: []string{"100.01"}}

	d := dispute(domain.CategoryWrongAmount, "100.00", 10)
	got := Evaluate(d, []domain.Evidence{ev}, evalConfig())

	// Difference of one cent does not support the claim; the amount is under
	// the ceiling and risk is low, so the generic fallback approves.
	require.True(t, got.Eligible)
	assert.Equal(t, ReasonLowRisk, got.Reason)
	assert.Equal(t, int64(10000), got.RefundAmountMinor)
}

func TestEvaluate_WrongAmountDocumentedHigherGoesToReview(t *testing.T) {
	ev := completedEvidence("receipt")
	ev.StructuredData = &domain.ExtractedFields{Amounts: []string{"250.00"}}

	d := dispute(domain.CategoryWrongAmount, "100.00", 10)
	got := Evaluate(d, []domain.Evidence{ev}, evalConfig())

	assert.False(t, got.Eligible)
	assert.Equal(t, ReasonRequiresManualReview, got.Reason)
}

func TestEvaluate_GenericFallback(t *testing.T) {
	low := dispute(domain.CategoryServiceNotReceived, "20.00", 10)
	got := Evaluate(low, nil, evalConfig())
	require.True(t, got.Eligible)
	assert.Equal(t, ReasonLowRisk, got.Reason)
	assert.Equal(t, int64(2000), got.RefundAmountMinor)

	big := dispute(domain.CategoryServiceNotReceived, "5000.00", 10)
	got = Evaluate(big, nil, evalConfig())
	assert.False(t, got.Eligible)
	assert.Equal(t, ReasonRequiresManualReview, got.Reason)

	risky := dispute(domain.CategoryServiceNotReceived, "20.00", 55)
	got = Evaluate(risky, nil, evalConfig())
	assert.False(t, got.Eligible)
	assert.Equal(t, ReasonRequiresManualReview, got.Reason)
}

func TestEvaluate_NeverMutatesDispute(t *testing.T) {
	d := dispute(domain.CategoryDuplicateCharge, "49.90", 10)
	before := *d
	_ = Evaluate(d, []domain.Evidence{completedEvidence("charged twice")}, evalConfig())
	assert.Equal(t, before, *d)
}

package domain

// RiskLevel buckets a fraud score using configured thresholds.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// FraudFactorType names an individual scoring signal.
type FraudFactorType string

const (
	FactorHistoryRecentRate     FraudFactorType = "history_recent_rate"
	FactorHistoryVolume         FraudFactorType = "history_volume"
	FactorHistoryFavorableRate  FraudFactorType = "history_favorable_rate"
	FactorHistoryRapidFiling    FraudFactorType = "history_rapid_filing"
	FactorPatternOffHours       FraudFactorType = "pattern_off_hours"
	FactorPatternRoundAmount    FraudFactorType = "pattern_round_amount"
	FactorPatternBurst          FraudFactorType = "pattern_burst"
	FactorAmountUnparseable     FraudFactorType = "amount_unparseable"
	FactorAmountSuspicious      FraudFactorType = "amount_suspicious_threshold"
	FactorAmountVeryLarge       FraudFactorType = "amount_very_large"
	FactorAmountVerySmall       FraudFactorType = "amount_very_small"
	FactorTimingImmediate       FraudFactorType = "timing_immediate"
	FactorTimingDelayed         FraudFactorType = "timing_delayed"
	FactorTimingWeekend         FraudFactorType = "timing_weekend"
	FactorDuplicateTransaction  FraudFactorType = "duplicate_transaction"
	FactorDuplicateCategory     FraudFactorType = "duplicate_category"
)

// FraudFactor is a transient scoring contribution; only the aggregate score
// is persisted.
type FraudFactor struct {
	Type        FraudFactorType
	Description string
	Score       float64
}

// FraudAssessment is the scorer's full output.
type FraudAssessment struct {
	Score           float64
	Level           RiskLevel
	Factors         []FraudFactor
	Recommendations []string
}

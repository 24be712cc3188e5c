// Package scoring implements the fraud/risk scorer and the priority
// classifier. Both are pure: they read their inputs and return values, all
// persistence happens in the calling service.
//
// Fraud scoring sums independent factor groups. Each group is capped on its
// own and the total is clamped to [0, 100].
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/domain"
	"github.com/spec-kit/dispute-service/internal/money"
)

// Per-group score caps.
const (
	capHistory   = 30.0
	capPattern   = 25.0
	capAmount    = 30.0
	capTiming    = 15.0
	capDuplicate = 30.0
)

// BurstWindow bounds how far from the disputed transaction another
// transaction may sit and still count toward a burst. Callers fetching
// NearbyTransactionTimes use the same window.
const BurstWindow = 5 * time.Minute

// Amounts (major units) that frequently show up in structuring attempts,
// matched within epsilon.
var suspiciousAmounts = []float64{500, 999.99, 4999.99, 9999.99, 49999.99}

const suspiciousEpsilon = 0.01

// UserHistory summarizes the filer's past dispute behavior.
type UserHistory struct {
	TotalDisputes      int
	DisputesLast30Days int
	FiledLast24Hours   int
	ResolvedDisputes   int
	FavorableOutcomes  int
}

// FavorableRate returns the share of resolved disputes that went the user's way.
func (h UserHistory) FavorableRate() float64 {
	if h.ResolvedDisputes == 0 {
		return 0
	}
	return float64(h.FavorableOutcomes) / float64(h.ResolvedDisputes)
}

// FraudInput bundles everything the scorer looks at.
type FraudInput struct {
	Category      domain.DisputeCategory
	Amount        string
	FiledAt       time.Time
	TransactionAt time.Time

	History UserHistory

	// Timestamps of the same user's transactions around the disputed one,
	// used for burst detection.
	NearbyTransactionTimes []time.Time

	// Set when another dispute already exists for the same transaction.
	ExistingDisputeOnTransaction bool

	// Same-category disputes by this user within the last 7 days.
	SameCategoryLast7Days int
}

// Assess computes the aggregate fraud score, risk level, contributing
// factors, and routing recommendations.
func Assess(in FraudInput, th config.ScoringConfig) domain.FraudAssessment {
	var factors []domain.FraudFactor

	factors = append(factors, historyFactors(in.History)...)
	factors = append(factors, patternFactors(in)...)
	factors = append(factors, amountFactors(in.Amount)...)
	factors = append(factors, timingFactors(in)...)
	factors = append(factors, duplicateFactors(in)...)

	total := 0.0
	for _, f := range factors {
		total += f.Score
	}
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}

	level := domain.RiskLow
	switch {
	case total >= th.FraudHighRisk:
		level = domain.RiskHigh
	case total >= th.FraudMediumRisk:
		level = domain.RiskMedium
	}

	return domain.FraudAssessment{
		Score:           total,
		Level:           level,
		Factors:         factors,
		Recommendations: recommendations(factors),
	}
}

func historyFactors(h UserHistory) []domain.FraudFactor {
	var out []domain.FraudFactor
	remaining := capHistory

	if h.TotalDisputes > 0 {
		rate := float64(h.DisputesLast30Days) / float64(h.TotalDisputes)
		if h.DisputesLast30Days >= 3 && rate > 0.5 {
			out = appendCapped(out, &remaining, domain.FraudFactor{
				Type:        domain.FactorHistoryRecentRate,
				Description: fmt.Sprintf("%d of %d disputes filed in the last 30 days", h.DisputesLast30Days, h.TotalDisputes),
				Score:       15,
			})
		}
	}
	if h.TotalDisputes >= 10 {
		out = appendCapped(out, &remaining, domain.FraudFactor{
			Type:        domain.FactorHistoryVolume,
			Description: fmt.Sprintf("user has filed %d disputes in total", h.TotalDisputes),
			Score:       10,
		})
	}
	if h.FiledLast24Hours >= 3 {
		out = appendCapped(out, &remaining, domain.FraudFactor{
			Type:        domain.FactorHistoryRapidFiling,
			Description: fmt.Sprintf("%d disputes filed in the last 24 hours", h.FiledLast24Hours),
			Score:       12,
		})
	}
	if h.ResolvedDisputes >= 3 && h.FavorableRate() > 0.8 {
		out = appendCapped(out, &remaining, domain.FraudFactor{
			Type:        domain.FactorHistoryFavorableRate,
			Description: fmt.Sprintf("%.0f%% of past disputes resolved in user's favor", h.FavorableRate()*100),
			Score:       10,
		})
	}
	return out
}

func patternFactors(in FraudInput) []domain.FraudFactor {
	var out []domain.FraudFactor
	remaining := capPattern

	hour := in.TransactionAt.Hour()
	if hour >= 1 && hour < 5 {
		out = appendCapped(out, &remaining, domain.FraudFactor{
			Type:        domain.FactorPatternOffHours,
			Description: fmt.Sprintf("disputed transaction occurred at %02d:00", hour),
			Score:       8,
		})
	}

	if minor, err := money.ParseMinorUnits(in.Amount); err == nil {
		if minor%100 == 0 && money.MajorUnits(minor)%100 == 0 {
			out = appendCapped(out, &remaining, domain.FraudFactor{
				Type:        domain.FactorPatternRoundAmount,
				Description: "disputed amount is a round figure",
				Score:       5,
			})
		}
	}

	burst := 0
	for _, ts := range in.NearbyTransactionTimes {
		if absDuration(ts.Sub(in.TransactionAt)) <= BurstWindow {
			burst++
		}
	}
	if burst >= 3 {
		out = appendCapped(out, &remaining, domain.FraudFactor{
			Type:        domain.FactorPatternBurst,
			Description: fmt.Sprintf("%d transactions by the same user within 5 minutes", burst),
			Score:       12,
		})
	}
	return out
}

func amountFactors(amount string) []domain.FraudFactor {
	var out []domain.FraudFactor
	remaining := capAmount

	minor, err := money.ParseMinorUnits(amount)
	if err != nil {
		return appendCapped(out, &remaining, domain.FraudFactor{
			Type:        domain.FactorAmountUnparseable,
			Description: fmt.Sprintf("amount %q does not parse", amount),
			Score:       20,
		})
	}

	major := float64(minor) / 100
	for _, s := range suspiciousAmounts {
		if math.Abs(major-s) <= suspiciousEpsilon {
			out = appendCapped(out, &remaining, domain.FraudFactor{
				Type:        domain.FactorAmountSuspicious,
				Description: fmt.Sprintf("amount %.2f matches known suspicious threshold %.2f", major, s),
				Score:       15,
			})
			break
		}
	}
	if major > 500000 {
		out = appendCapped(out, &remaining, domain.FraudFactor{
			Type:        domain.FactorAmountVeryLarge,
			Description: fmt.Sprintf("amount %.2f is unusually large", major),
			Score:       12,
		})
	}
	if major < 100 {
		out = appendCapped(out, &remaining, domain.FraudFactor{
			Type:        domain.FactorAmountVerySmall,
			Description: fmt.Sprintf("amount %.2f is unusually small", major),
			Score:       5,
		})
	}
	return out
}

func timingFactors(in FraudInput) []domain.FraudFactor {
	var out []domain.FraudFactor
	remaining := capTiming

	if !in.TransactionAt.IsZero() {
		delay := in.FiledAt.Sub(in.TransactionAt)
		if delay >= 0 && delay < time.Hour {
			out = appendCapped(out, &remaining, domain.FraudFactor{
				Type:        domain.FactorTimingImmediate,
				Description: "dispute filed less than an hour after the transaction",
				Score:       8,
			})
		} else if delay > 72*time.Hour {
			out = appendCapped(out, &remaining, domain.FraudFactor{
				Type:        domain.FactorTimingDelayed,
				Description: "dispute filed more than 72 hours after the transaction",
				Score:       5,
			})
		}
	}
	switch in.FiledAt.Weekday() {
	case time.Saturday, time.Sunday:
		out = appendCapped(out, &remaining, domain.FraudFactor{
			Type:        domain.FactorTimingWeekend,
			Description: "dispute filed on a weekend",
			Score:       4,
		})
	}
	return out
}

func duplicateFactors(in FraudInput) []domain.FraudFactor {
	var out []domain.FraudFactor
	remaining := capDuplicate

	if in.ExistingDisputeOnTransaction {
		out = appendCapped(out, &remaining, domain.FraudFactor{
			Type:        domain.FactorDuplicateTransaction,
			Description: "another dispute already exists for this transaction",
			Score:       25,
		})
	}
	if in.SameCategoryLast7Days > 2 {
		out = appendCapped(out, &remaining, domain.FraudFactor{
			Type:        domain.FactorDuplicateCategory,
			Description: fmt.Sprintf("%d %s disputes by this user within 7 days", in.SameCategoryLast7Days, in.Category),
			Score:       15,
		})
	}
	return out
}

// appendCapped adds a factor, shrinking its score so the group never exceeds
// its cap.
func appendCapped(factors []domain.FraudFactor, remaining *float64, f domain.FraudFactor) []domain.FraudFactor {
	if *remaining <= 0 {
		return factors
	}
	if f.Score > *remaining {
		f.Score = *remaining
	}
	*remaining -= f.Score
	return append(factors, f)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

var recommendationText = map[domain.FraudFactorType]string{
	domain.FactorHistoryRecentRate:    "review the user's recent dispute burst before refunding",
	domain.FactorHistoryVolume:        "check the user's full dispute history",
	domain.FactorHistoryFavorableRate: "past outcomes skew heavily to the user; verify evidence independently",
	domain.FactorHistoryRapidFiling:   "the user is filing disputes in rapid succession; hold for review",
	domain.FactorPatternBurst:         "inspect the surrounding transaction burst for card testing",
	domain.FactorAmountUnparseable:    "route to manual review: claimed amount is malformed",
	domain.FactorAmountSuspicious:     "amount sits at a known structuring threshold; escalate to senior review",
	domain.FactorAmountVeryLarge:      "high-value dispute; require documentary evidence",
	domain.FactorDuplicateTransaction: "verify this is not a duplicate filing before processing",
	domain.FactorDuplicateCategory:    "user repeats the same category; compare against prior cases",
}

// recommendations maps fired factor types to routing hints for agents. They
// never drive automatic decisions.
func recommendations(factors []domain.FraudFactor) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, f := range factors {
		text, ok := recommendationText[f.Type]
		if !ok {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		out = append(out, text)
	}
	return out
}

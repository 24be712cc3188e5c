// Package extraction pattern-matches structured fields out of OCR text:
// currency amounts, dates, reference numbers, phone numbers and account
// numbers. The OCR algorithm itself lives behind the external.OCRClient
// contract; this package only post-processes its text output.
package extraction

import (
	"regexp"
	"strings"

	"github.com/spec-kit/dispute-service/internal/domain"
)

var (
	amountPattern    = regexp.MustCompile(`\$?\b\d{1,3}(?:,\d{3})*(?:\.\d{2})\b|\$\d+(?:\.\d{2})?`)
	datePattern      = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
	referencePattern = regexp.MustCompile(`(?i)\b(?:ref(?:erence)?|txn|transaction)[\s#:]*([A-Z0-9-]{6,24})\b`)
	phonePattern     = regexp.MustCompile(`\+?\d{1,3}[-.\s]?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}`)
	accountPattern   = regexp.MustCompile(`(?i)\b(?:acct|account)[\s#:]*(\d{6,18})\b`)
)

const maxPerField = 20

// Fields extracts structured values from OCR text. Duplicates are dropped
// and each field is bounded so a pathological document cannot bloat the row.
func Fields(text string) *domain.ExtractedFields {
	if strings.TrimSpace(text) == "" {
		return &domain.ExtractedFields{}
	}
	return &domain.ExtractedFields{
		Amounts:    dedupe(normalizeAmounts(amountPattern.FindAllString(text, -1))),
		Dates:      dedupe(datePattern.FindAllString(text, -1)),
		References: dedupe(captures(referencePattern, text)),
		Phones:     dedupe(trimAll(phonePattern.FindAllString(text, -1))),
		Accounts:   dedupe(captures(accountPattern, text)),
	}
}

func captures(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if len(m) > 1 {
			out = append(out, m[1])
		}
	}
	return out
}

func normalizeAmounts(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		a = strings.TrimPrefix(strings.TrimSpace(a), "$")
		a = strings.ReplaceAll(a, ",", "")
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func trimAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) == maxPerField {
			break
		}
	}
	return out
}

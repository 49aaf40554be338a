package detectors

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
)

// companyEmailDomain marks a company email address.
const companyEmailDomain = "@company.com"

var (
	// One capitalized word; adjacent pairs form "Firstname Lastname" candidates.
	capitalizedWordPattern = regexp.MustCompile(`\b[A-Z][a-z]+\b`)

	// Digits with optional thousands separators or decimals, optional $ and trailing k.
	salaryValuePattern = regexp.MustCompile(`(?i)\$?\d+(?:[,.]\d+)*k?`)

	salaryKeywords = []string{"salary", "compensation", "pay"}
)

// InternalDataDetector flags queries exposing internal employee data:
// company emails, verified employee names, or salary figures.
type InternalDataDetector struct {
	names engine.NameMatcher
}

func NewInternalDataDetector(names engine.NameMatcher) *InternalDataDetector {
	return &InternalDataDetector{names: names}
}

func (d *InternalDataDetector) Name() string {
	return "internal_data"
}

func (d *InternalDataDetector) DetectInternalData(ctx context.Context, query string) (bool, error) {
	folded := strings.ToLower(query)

	if strings.Contains(folded, companyEmailDomain) {
		return true, nil
	}

	if candidates := NameCandidates(query); len(candidates) > 0 {
		matched, err := d.names.MatchEmployeeNames(ctx, candidates)
		if err != nil {
			return false, fmt.Errorf("DetectInternalData: %w", err)
		}
		if len(matched) > 0 {
			return true, nil
		}
	}

	return HasSalaryFigure(query), nil
}

// NameCandidates extracts distinct "Firstname Lastname" candidates from query:
// every pair of capitalized words separated by a single space. Pairs overlap, so
// "Search Alisha Patel" yields both "Search Alisha" and "Alisha Patel".
func NameCandidates(query string) []string {
	words := capitalizedWordPattern.FindAllStringIndex(query, -1)
	var out []string
	for i := 0; i+1 < len(words); i++ {
		first, second := words[i], words[i+1]
		if query[first[1]:second[0]] != " " {
			continue
		}
		pair := query[first[0]:second[1]]
		if !slices.Contains(out, pair) {
			out = append(out, pair)
		}
	}
	return out
}

// HasSalaryFigure reports whether query pairs a salary keyword with a number.
func HasSalaryFigure(query string) bool {
	folded := strings.ToLower(query)
	hasKeyword := slices.ContainsFunc(salaryKeywords, func(kw string) bool {
		return strings.Contains(folded, kw)
	})
	return hasKeyword && salaryValuePattern.MatchString(query)
}

package engine

import (
	"slices"
	"strings"
)

// MatchKeywords reports whether any keyword occurs in query, case-insensitively.
// An empty keyword set never matches.
func MatchKeywords(query string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	folded := strings.ToLower(query)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(folded, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// MatchTrigger evaluates a rule trigger against a query and the requested tools.
// Keywords alone decide the match. Tools named by the trigger only scope which
// requested tools the rule blocks; they are returned in request order.
func MatchTrigger(t TriggerCondition, query string, requestedTools []string) (matched bool, scopedTools []string) {
	if !MatchKeywords(query, t.Keywords) {
		return false, nil
	}
	for _, tool := range requestedTools {
		if slices.Contains(t.Tools, tool) && !slices.Contains(scopedTools, tool) {
			scopedTools = append(scopedTools, tool)
		}
	}
	return true, scopedTools
}

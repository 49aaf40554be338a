package engine

import (
	"slices"
	"testing"
)

func TestMatchKeywords(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		keywords []string
		want     bool
	}{
		{"exact", "what is the salary", []string{"salary"}, true},
		{"case folded query", "What is Alisha's SALARY?", []string{"salary"}, true},
		{"case folded keyword", "what is alisha's salary", []string{"Salary"}, true},
		{"substring", "salaryband lookup", []string{"salary"}, true},
		{"any of several", "show compensation", []string{"salary", "compensation"}, true},
		{"no match", "who runs engineering", []string{"salary"}, false},
		{"plural is not singular", "compare salaries", []string{"salary"}, false},
		{"empty keyword set", "salary", nil, false},
		{"empty keyword ignored", "anything", []string{""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchKeywords(tt.query, tt.keywords); got != tt.want {
				t.Errorf("MatchKeywords(%q, %v) = %v, want %v", tt.query, tt.keywords, got, tt.want)
			}
		})
	}
}

func TestMatchTrigger_ToolScoped(t *testing.T) {
	trig := TriggerCondition{Keywords: []string{"salary"}, Tools: []string{ToolWebSearch}}

	matched, scoped := MatchTrigger(trig, "salary vs market", []string{ToolDatabaseQuery, ToolWebSearch})
	if !matched {
		t.Fatal("expected match when a scoped tool is requested")
	}
	if !slices.Equal(scoped, []string{ToolWebSearch}) {
		t.Errorf("expected scoped tools [web_search], got %v", scoped)
	}

	matched, scoped = MatchTrigger(trig, "salary vs market", []string{ToolDatabaseQuery})
	if !matched {
		t.Error("expected keyword match without the scoped tool requested")
	}
	if scoped != nil {
		t.Errorf("expected no scoped tools, got %v", scoped)
	}
}

func TestMatchTrigger_ToolsWithoutKeywordsIsInert(t *testing.T) {
	trig := TriggerCondition{Tools: []string{ToolWebSearch}}
	if matched, _ := MatchTrigger(trig, "anything at all", []string{ToolWebSearch}); matched {
		t.Fatal("expected trigger without keywords to never match")
	}
}

func TestMatchTrigger_KeywordsOnly(t *testing.T) {
	matched, scoped := MatchTrigger(TriggerCondition{Keywords: []string{"ssn"}}, "my SSN please", nil)
	if !matched {
		t.Fatal("expected keyword match")
	}
	if scoped != nil {
		t.Errorf("expected no scoped tools, got %v", scoped)
	}
}

func BenchmarkMatchKeywords(b *testing.B) {
	keywords := []string{"salary", "compensation", "pay", "wages", "bonus", "ssn", "social security"}
	query := "Show me all employees in the engineering department sorted by start date"

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = MatchKeywords(query, keywords)
	}
}

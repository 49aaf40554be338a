package pipeline

import (
	"slices"
	"testing"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
)

func TestBuildBlockedEvent(t *testing.T) {
	user := &engine.User{ID: 5, Username: "david_employee", Role: engine.RoleEmployee}
	pre := &engine.PreHookResult{
		HooksTriggered: []string{"block_salary_queries"},
		Reason:         "denied",
		RiskScore:      90,
	}

	e := BuildBlockedEvent(user, "What is Alisha's salary?", []string{"web_search", "database_query"}, pre)
	if e.ToolInvoked != "web_search" {
		t.Errorf("expected first requested tool, got %q", e.ToolInvoked)
	}
	if !e.Blocked || e.DataMasked || e.ActionTaken != ActionBlocked {
		t.Errorf("unexpected flags %+v", e)
	}
	if e.ResponseSummary != "denied" || e.RiskScore != 90 {
		t.Errorf("expected reason and risk copied, got %q %d", e.ResponseSummary, e.RiskScore)
	}
	if e.Metadata["pre_hook_result"] != pre {
		t.Error("expected pre-hook result in metadata")
	}

	pre.HooksTriggered[0] = "changed"
	if e.HooksTriggered[0] != "block_salary_queries" {
		t.Error("event hooks must not alias the pre-hook result")
	}

	if e := BuildBlockedEvent(user, "q", nil, pre); e.ToolInvoked != "none" {
		t.Errorf("expected none with no tools, got %q", e.ToolInvoked)
	}
}

func TestBuildAllowedEvent(t *testing.T) {
	user := &engine.User{ID: 3, Username: "michael_manager", Role: engine.RoleManager}
	pre := &engine.PreHookResult{Allowed: true, HooksTriggered: []string{"block_salary_queries"}, RiskScore: 70}

	tests := []struct {
		name       string
		post       *engine.PostHookResult
		wantHooks  []string
		wantMasked bool
	}{
		{
			name: "masked and filtered",
			post: &engine.PostHookResult{
				MaskedFields:   []string{"salary"},
				HooksTriggered: []string{"mask_salary_data", "filter_by_department"},
			},
			wantHooks:  []string{"block_salary_queries", "mask_salary_data", "filter_by_department"},
			wantMasked: true,
		},
		{
			name:       "no post hooks",
			post:       &engine.PostHookResult{MaskedFields: []string{}, HooksTriggered: []string{}},
			wantHooks:  []string{"block_salary_queries"},
			wantMasked: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := BuildAllowedEvent(user, "q", []string{"database_query"}, pre, tt.post, 4)
			if !slices.Equal(e.HooksTriggered, tt.wantHooks) {
				t.Errorf("hooks = %v, want %v", e.HooksTriggered, tt.wantHooks)
			}
			if e.DataMasked != tt.wantMasked {
				t.Errorf("data_masked = %v, want %v", e.DataMasked, tt.wantMasked)
			}
			if e.Blocked || e.ActionTaken != ActionAllowedFiltered || e.RiskScore != 70 {
				t.Errorf("unexpected flags %+v", e)
			}
			if e.ResponseSummary != "Query executed successfully. 4 results returned." {
				t.Errorf("unexpected summary %q", e.ResponseSummary)
			}
			for _, k := range []string{"pre_hooks", "post_hooks", "tools_used"} {
				if _, ok := e.Metadata[k]; !ok {
					t.Errorf("metadata missing %q", k)
				}
			}
		})
	}
}

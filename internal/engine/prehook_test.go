package engine

import (
	"context"
	"errors"
	"slices"
	"testing"

	"go.uber.org/zap"
)

func newTestEvaluator(store RuleStore, leak LeakageDetector, failClosed bool) *PreHookEvaluator {
	return NewPreHookEvaluator(store, leak, failClosed, zap.NewNop())
}

func TestEvaluate_EmployeeKeywordBlocked(t *testing.T) {
	store := &mockRuleStore{rules: []Rule{salaryRule(), piiRule()}}
	eval := newTestEvaluator(store, &mockLeakage{}, true)

	res, err := eval.Evaluate(context.Background(), "What is Alisha's salary?",
		&User{ID: 5, Role: RoleEmployee}, []string{ToolDatabaseQuery})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected employee to be blocked")
	}
	if res.RiskScore != RiskKeywordBlocked {
		t.Errorf("expected risk %d, got %d", RiskKeywordBlocked, res.RiskScore)
	}
	if res.Reason != "Salary information is restricted" {
		t.Errorf("expected configured error message, got %q", res.Reason)
	}
	if !slices.Equal(res.HooksTriggered, []string{"block_salary_queries"}) {
		t.Errorf("unexpected hooks: %v", res.HooksTriggered)
	}
}

func TestEvaluate_EmployeeFirstMatchWins(t *testing.T) {
	store := &mockRuleStore{rules: []Rule{salaryRule(), piiRule()}}
	eval := newTestEvaluator(store, &mockLeakage{}, true)

	res, err := eval.Evaluate(context.Background(), "salary and ssn of everyone",
		&User{Role: RoleEmployee}, []string{ToolDatabaseQuery})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(res.HooksTriggered, []string{"block_salary_queries"}) {
		t.Errorf("expected evaluation to stop at first match, got %v", res.HooksTriggered)
	}
}

func TestEvaluate_DefaultDenialMessage(t *testing.T) {
	store := &mockRuleStore{rules: []Rule{piiRule()}}
	eval := newTestEvaluator(store, &mockLeakage{}, true)

	res, _ := eval.Evaluate(context.Background(), "give me the SSN", &User{Role: RoleEmployee}, nil)
	if res.Reason != defaultDenialMessage {
		t.Errorf("expected default denial, got %q", res.Reason)
	}
}

func TestEvaluate_ManagerAndAdminNeverBlockedByKeyword(t *testing.T) {
	store := &mockRuleStore{rules: []Rule{salaryRule(), piiRule()}}
	eval := newTestEvaluator(store, &mockLeakage{}, true)

	for _, role := range []string{RoleManager, RoleAdmin} {
		t.Run(role, func(t *testing.T) {
			res, err := eval.Evaluate(context.Background(), "Compare salaries and SSN",
				&User{Role: role}, []string{ToolDatabaseQuery})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.Allowed {
				t.Fatalf("expected %s to be allowed", role)
			}
			if res.RiskScore < RiskKeywordElevated {
				t.Errorf("expected risk >= %d, got %d", RiskKeywordElevated, res.RiskScore)
			}
			if res.Reason != "" {
				t.Errorf("expected empty reason, got %q", res.Reason)
			}
			if !slices.Equal(res.HooksTriggered, []string{"block_salary_queries", "block_pii_queries"}) {
				t.Errorf("expected both rules evaluated, got %v", res.HooksTriggered)
			}
		})
	}
}

func TestEvaluate_DisabledAndUntargetedRulesSkipped(t *testing.T) {
	disabled := salaryRule()
	disabled.Enabled = false
	managersOnly := piiRule()
	managersOnly.TargetRoles = []string{RoleManager}
	eval := newTestEvaluator(&mockRuleStore{rules: []Rule{disabled, managersOnly}}, &mockLeakage{}, true)

	res, err := eval.Evaluate(context.Background(), "salary ssn", &User{Role: RoleEmployee}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed || len(res.HooksTriggered) != 0 || res.RiskScore != 0 {
		t.Errorf("expected untouched result, got %+v", res)
	}
}

func TestEvaluate_LeakageBlocksWebSearchForEveryRole(t *testing.T) {
	for _, role := range []string{RoleEmployee, RoleManager, RoleAdmin} {
		t.Run(role, func(t *testing.T) {
			leak := &mockLeakage{leak: true}
			eval := newTestEvaluator(&mockRuleStore{}, leak, true)

			res, err := eval.Evaluate(context.Background(), "email bob@company.com",
				&User{Role: role}, []string{ToolDatabaseQuery, ToolWebSearch})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Allowed {
				t.Fatal("expected leakage block")
			}
			if res.RiskScore != RiskLeakageBlocked {
				t.Errorf("expected risk %d, got %d", RiskLeakageBlocked, res.RiskScore)
			}
			if !slices.Equal(res.ToolsBlocked, []string{ToolWebSearch}) {
				t.Errorf("expected web_search blocked, got %v", res.ToolsBlocked)
			}
			if res.Reason != leakageMessage {
				t.Errorf("unexpected reason %q", res.Reason)
			}
			if leak.calls.Load() != 1 {
				t.Errorf("expected one detector call, got %d", leak.calls.Load())
			}
		})
	}
}

func TestEvaluate_LeakageNotCheckedWithoutWebSearch(t *testing.T) {
	leak := &mockLeakage{leak: true}
	eval := newTestEvaluator(&mockRuleStore{}, leak, true)

	res, _ := eval.Evaluate(context.Background(), "bob@company.com", &User{Role: RoleEmployee}, []string{ToolDatabaseQuery})
	if !res.Allowed {
		t.Error("expected allowed without web_search")
	}
	if leak.calls.Load() != 0 {
		t.Errorf("expected detector not called, got %d", leak.calls.Load())
	}
}

func TestEvaluate_ManagerKeywordDoesNotEraseLeakage(t *testing.T) {
	eval := newTestEvaluator(&mockRuleStore{rules: []Rule{salaryRule(), piiRule()}}, &mockLeakage{leak: true}, true)

	res, err := eval.Evaluate(context.Background(), "salary of Alisha Patel",
		&User{Role: RoleManager}, []string{ToolWebSearch})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected leakage block to survive keyword processing")
	}
	if res.RiskScore != RiskLeakageBlocked {
		t.Errorf("expected risk %d, got %d", RiskLeakageBlocked, res.RiskScore)
	}
	want := []string{"block_salary_queries", HookLeakageWebSearch}
	if !slices.Equal(res.HooksTriggered, want) {
		t.Errorf("expected hooks %v, got %v", want, res.HooksTriggered)
	}
}

func TestEvaluate_EmployeeBlockKeepsFirstReason(t *testing.T) {
	eval := newTestEvaluator(&mockRuleStore{rules: []Rule{salaryRule()}}, &mockLeakage{leak: true}, true)

	res, _ := eval.Evaluate(context.Background(), "salary of Alisha Patel",
		&User{Role: RoleEmployee}, []string{ToolWebSearch})
	if res.Reason != "Salary information is restricted" {
		t.Errorf("expected keyword reason, got %q", res.Reason)
	}
	if res.RiskScore != RiskLeakageBlocked {
		t.Errorf("expected max risk %d, got %d", RiskLeakageBlocked, res.RiskScore)
	}
	if !slices.Contains(res.ToolsBlocked, ToolWebSearch) {
		t.Errorf("expected web_search blocked, got %v", res.ToolsBlocked)
	}
}

func TestEvaluate_ToolScopedRule(t *testing.T) {
	store := &mockRuleStore{rules: []Rule{webSearchRule(), salaryRule()}}
	eval := newTestEvaluator(store, &mockLeakage{}, true)

	res, err := eval.Evaluate(context.Background(), "What is Alisha's salary compared to market rates?",
		&User{Role: RoleEmployee}, []string{ToolDatabaseQuery, ToolWebSearch})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected block")
	}
	if !slices.Equal(res.ToolsBlocked, []string{ToolWebSearch}) {
		t.Errorf("expected scoped tool blocked, got %v", res.ToolsBlocked)
	}
	if !slices.Equal(res.HooksTriggered, []string{"restrict_salary_web_search"}) {
		t.Errorf("unexpected hooks %v", res.HooksTriggered)
	}
}

func TestEvaluate_ToolScopedRuleBlocksEmployeeWithoutTool(t *testing.T) {
	store := &mockRuleStore{rules: []Rule{webSearchRule()}}
	eval := newTestEvaluator(store, &mockLeakage{}, true)

	for _, tools := range [][]string{{ToolDatabaseQuery}, nil} {
		res, err := eval.Evaluate(context.Background(), "What is Alisha's salary?", &User{Role: RoleEmployee}, tools)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Allowed {
			t.Fatalf("tools=%v: expected employee keyword match to block", tools)
		}
		if res.RiskScore != RiskKeywordBlocked {
			t.Errorf("tools=%v: expected risk %d, got %d", tools, RiskKeywordBlocked, res.RiskScore)
		}
		if len(res.ToolsBlocked) != 0 {
			t.Errorf("tools=%v: expected no tools blocked, got %v", tools, res.ToolsBlocked)
		}
		if !slices.Equal(res.HooksTriggered, []string{"restrict_salary_web_search"}) {
			t.Errorf("tools=%v: unexpected hooks %v", tools, res.HooksTriggered)
		}
	}
}

func TestEvaluate_ToolScopedRuleRaisesManager(t *testing.T) {
	eval := newTestEvaluator(&mockRuleStore{rules: []Rule{webSearchRule()}}, &mockLeakage{}, true)

	res, _ := eval.Evaluate(context.Background(), "market rate for engineers",
		&User{Role: RoleManager}, []string{ToolDatabaseQuery, ToolWebSearch})
	if !res.Allowed || res.RiskScore != RiskKeywordElevated {
		t.Errorf("expected allowed at risk %d, got %+v", RiskKeywordElevated, res)
	}
	if !slices.Equal(res.ToolsBlocked, []string{ToolWebSearch}) {
		t.Errorf("expected web_search blocked, got %v", res.ToolsBlocked)
	}
}

func TestEvaluate_RiskMonotonic(t *testing.T) {
	// Manager raises to 70 on keyword, then leakage raises to 95; never lowered.
	rules := []Rule{salaryRule(), piiRule()}
	for _, leak := range []bool{false, true} {
		eval := newTestEvaluator(&mockRuleStore{rules: rules}, &mockLeakage{leak: leak}, true)
		res, _ := eval.Evaluate(context.Background(), "salary ssn", &User{Role: RoleManager}, []string{ToolWebSearch})

		floor := RiskKeywordElevated
		if leak {
			floor = RiskLeakageBlocked
		}
		if res.RiskScore < floor || res.RiskScore > 100 {
			t.Errorf("leak=%v: risk %d outside [%d,100]", leak, res.RiskScore, floor)
		}
	}
}

func TestEvaluate_StoreFailureFailClosed(t *testing.T) {
	eval := newTestEvaluator(&mockRuleStore{err: errStoreDown}, &mockLeakage{}, true)

	res, err := eval.Evaluate(context.Background(), "hello", &User{Role: RoleAdmin}, nil)
	if err != nil {
		t.Fatalf("expected block, got error %v", err)
	}
	if res.Allowed || res.RiskScore != RiskStoreFailure {
		t.Errorf("expected fail-closed block, got %+v", res)
	}
	if !slices.Equal(res.HooksTriggered, []string{HookStoreUnavailable}) {
		t.Errorf("unexpected hooks %v", res.HooksTriggered)
	}
}

func TestEvaluate_StoreFailureFailOpen(t *testing.T) {
	eval := newTestEvaluator(&mockRuleStore{err: errStoreDown}, &mockLeakage{}, false)

	_, err := eval.Evaluate(context.Background(), "hello", &User{Role: RoleAdmin}, nil)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !errors.Is(err, errStoreDown) {
		t.Errorf("expected cause preserved, got %v", err)
	}
}

func TestEvaluate_DetectorFailure(t *testing.T) {
	closed := newTestEvaluator(&mockRuleStore{}, &mockLeakage{err: errStoreDown}, true)
	res, err := closed.Evaluate(context.Background(), "Alisha Patel", &User{Role: RoleAdmin}, []string{ToolWebSearch})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed || !slices.Contains(res.ToolsBlocked, ToolWebSearch) {
		t.Errorf("expected detector failure to count as leakage, got %+v", res)
	}

	open := newTestEvaluator(&mockRuleStore{}, &mockLeakage{err: errStoreDown}, false)
	if _, err := open.Evaluate(context.Background(), "Alisha Patel", &User{Role: RoleAdmin}, []string{ToolWebSearch}); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestEvaluate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eval := newTestEvaluator(&mockRuleStore{rules: []Rule{salaryRule()}}, &mockLeakage{}, true)

	if _, err := eval.Evaluate(ctx, "salary", &User{Role: RoleManager}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

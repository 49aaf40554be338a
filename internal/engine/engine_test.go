package engine

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
)

// mockRuleStore returns a fixed rule list filtered the way a real store does.
type mockRuleStore struct {
	rules     []Rule
	err       error
	callCount atomic.Int32
}

func (m *mockRuleStore) LoadActiveRules(_ context.Context, role string) ([]Rule, error) {
	m.callCount.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	var out []Rule
	for _, r := range m.rules {
		if r.ActiveFor(role) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

// mockManagers maps employee id to manager id.
type mockManagers struct {
	managers map[int64]int64
	err      error
	calls    atomic.Int32
}

func (m *mockManagers) LookupManagerID(_ context.Context, employeeID int64) (*int64, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	id, ok := m.managers[employeeID]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

// mockLeakage returns a fixed detection outcome.
type mockLeakage struct {
	leak  bool
	err   error
	calls atomic.Int32
}

func (m *mockLeakage) Name() string { return "mock_leakage" }

func (m *mockLeakage) DetectInternalData(_ context.Context, _ string) (bool, error) {
	m.calls.Add(1)
	return m.leak, m.err
}

var errStoreDown = errors.New("connection refused")

func int64Ptr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }

func salaryRule() Rule {
	return Rule{
		Name:        "block_salary_queries",
		Type:        RuleTypePreHook,
		Enabled:     true,
		TargetRoles: []string{RoleEmployee, RoleManager},
		Priority:    10,
		Trigger:     TriggerCondition{Keywords: []string{"salary", "salaries", "compensation"}},
		Action:      ActionBlock,
		Config:      RuleConfig{ErrorMessage: strPtr("Salary information is restricted")},
	}
}

func piiRule() Rule {
	return Rule{
		Name:        "block_pii_queries",
		Type:        RuleTypePreHook,
		Enabled:     true,
		TargetRoles: []string{RoleEmployee, RoleManager},
		Priority:    20,
		Trigger:     TriggerCondition{Keywords: []string{"ssn", "social security"}},
		Action:      ActionBlock,
	}
}

func webSearchRule() Rule {
	return Rule{
		Name:        "restrict_salary_web_search",
		Type:        RuleTypePreHook,
		Enabled:     true,
		TargetRoles: []string{RoleEmployee, RoleManager},
		Priority:    5,
		Trigger: TriggerCondition{
			Keywords: []string{"salary", "market rate"},
			Tools:    []string{ToolWebSearch},
		},
		Action: ActionBlock,
	}
}

func maskRule() Rule {
	return Rule{
		Name:        "mask_salary_data",
		Type:        RuleTypePostHook,
		Enabled:     true,
		TargetRoles: []string{RoleEmployee, RoleManager},
		Priority:    100,
		Action:      ActionMask,
	}
}

func filterRule() Rule {
	return Rule{
		Name:        "filter_by_department",
		Type:        RuleTypePostHook,
		Enabled:     true,
		TargetRoles: []string{RoleEmployee, RoleManager},
		Priority:    110,
		Action:      ActionFilter,
	}
}

package engine

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Role is the requester's organizational role.
type Role = string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// RuleType says when a rule runs relative to the tool call.
type RuleType string

const (
	RuleTypePreHook  RuleType = "pre_hook"
	RuleTypePostHook RuleType = "post_hook"
)

// Action is what a rule does once it fires.
type Action string

const (
	ActionBlock  Action = "block"
	ActionMask   Action = "mask"
	ActionFilter Action = "filter"
)

// Tool names understood by the tool gate.
const (
	ToolDatabaseQuery = "database_query"
	ToolWebSearch     = "web_search"
)

// Rule is a guardrail rule as loaded from the rule store.
type Rule struct {
	ID          int64            `json:"id" yaml:"id"`
	Name        string           `json:"rule_name" yaml:"rule_name"`
	Description string           `json:"description,omitempty" yaml:"description"`
	Type        RuleType         `json:"rule_type" yaml:"rule_type"`
	Enabled     bool             `json:"enabled" yaml:"enabled"`
	TargetRoles []string         `json:"target_roles" yaml:"target_roles"`
	Priority    int              `json:"priority" yaml:"priority"`
	Trigger     TriggerCondition `json:"trigger_condition" yaml:"trigger_condition"`
	Action      Action           `json:"action" yaml:"action"`
	Config      RuleConfig       `json:"config" yaml:"config"`
}

// TriggerCondition is the fixed trigger vocabulary: keyword and tool sets.
type TriggerCondition struct {
	Keywords []string `json:"keywords,omitempty" yaml:"keywords"`
	Tools    []string `json:"tools,omitempty" yaml:"tools"`
}

// RuleConfig holds the recognized config keys. Nil means "not set".
type RuleConfig struct {
	ErrorMessage   *string `json:"error_message,omitempty" yaml:"error_message"`
	AllowOwnSalary *bool   `json:"allow_own_salary,omitempty" yaml:"allow_own_salary"`
}

// ErrorMessageOr returns the configured error message or fallback.
func (c RuleConfig) ErrorMessageOr(fallback string) string {
	if c.ErrorMessage == nil || *c.ErrorMessage == "" {
		return fallback
	}
	return *c.ErrorMessage
}

// ActiveFor reports whether the rule applies to a requester with the given role.
// A rule that targets admin applies to every role.
func (r Rule) ActiveFor(role string) bool {
	if !r.Enabled {
		return false
	}
	return slices.Contains(r.TargetRoles, role) || slices.Contains(r.TargetRoles, RoleAdmin)
}

// User is an authenticated requester.
type User struct {
	ID         int64  `json:"id" yaml:"id"`
	Username   string `json:"username" yaml:"username"`
	Role       Role   `json:"role" yaml:"role"`
	EmployeeID *int64 `json:"employee_id" yaml:"employee_id"`
	Department string `json:"department,omitempty" yaml:"department"` // empty = unknown
}

// Employee is a directory record. ManagerID forms the reporting hierarchy.
type Employee struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Department string          `json:"department"`
	Title      string          `json:"role"`
	Salary     decimal.Decimal `json:"salary"`
	ManagerID  *int64          `json:"manager_id"`
}

// Row is one record of tool output.
type Row = map[string]any

// ToolResult is the raw output of a tool simulator.
type ToolResult struct {
	Data     []Row          `json:"data"`
	Metadata map[string]any `json:"metadata"`
}

// PreHookResult is the terminal state of pre-hook evaluation.
type PreHookResult struct {
	Allowed        bool     `json:"allowed"`
	ModifiedQuery  string   `json:"modified_query"`
	ToolsBlocked   []string `json:"tools_blocked"`
	HooksTriggered []string `json:"hooks_triggered"`
	Reason         string   `json:"reason"`
	RiskScore      int      `json:"risk_score"`
}

// PostHookResult records the post-processing intent for a tool result.
type PostHookResult struct {
	FilteredResponse []Row    `json:"filtered_response"`
	MaskedFields     []string `json:"masked_fields"`
	Aggregated       bool     `json:"aggregated"`
	HooksTriggered   []string `json:"hooks_triggered"`
}

// EmployeeFilter narrows an employee listing. Nil fields do not filter.
type EmployeeFilter struct {
	MinSalary *decimal.Decimal // exclusive
}

// DepartmentAverage is one department-level salary aggregate.
type DepartmentAverage struct {
	Department string          `json:"department"`
	AvgSalary  decimal.Decimal `json:"avg_salary"`
	Count      int             `json:"count"`
}

// RuleFilter narrows a rule listing. Nil fields do not filter.
type RuleFilter struct {
	Type    *RuleType
	Enabled *bool
	Action  *Action
}

// Matches reports whether r passes the filter.
func (f RuleFilter) Matches(r Rule) bool {
	return (f.Type == nil || r.Type == *f.Type) &&
		(f.Enabled == nil || r.Enabled == *f.Enabled) &&
		(f.Action == nil || r.Action == *f.Action)
}

// RulePatch is a partial rule update. Nil fields are left unchanged.
type RulePatch struct {
	Name        *string           `json:"rule_name"`
	Description *string           `json:"description"`
	Type        *RuleType         `json:"rule_type"`
	Trigger     *TriggerCondition `json:"trigger_condition"`
	Action      *Action           `json:"action"`
	TargetRoles []string          `json:"target_roles"`
	Config      *RuleConfig       `json:"config"`
	Priority    *int              `json:"priority"`
	Enabled     *bool             `json:"enabled"`
}

// Apply returns r with the patch applied.
func (p RulePatch) Apply(r Rule) Rule {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Type != nil {
		r.Type = *p.Type
	}
	if p.Trigger != nil {
		r.Trigger = *p.Trigger
	}
	if p.Action != nil {
		r.Action = *p.Action
	}
	if p.TargetRoles != nil {
		r.TargetRoles = slices.Clone(p.TargetRoles)
	}
	if p.Config != nil {
		r.Config = *p.Config
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	return r
}

// UserSummary is a user joined with the linked employee's name.
type UserSummary struct {
	ID           int64   `json:"id"`
	Username     string  `json:"username"`
	Role         Role    `json:"role"`
	Department   string  `json:"department,omitempty"`
	EmployeeName *string `json:"employee_name"`
}

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
)

// Audit actions.
const (
	ActionBlocked         = "blocked"
	ActionAllowedFiltered = "allowed_filtered"
)

// AuditEvent is one append-only record of a pipeline decision.
type AuditEvent struct {
	UserID          int64          `json:"user_id"`
	Username        string         `json:"username"`
	Query           string         `json:"query"`
	ToolInvoked     string         `json:"tool_invoked"`
	HooksTriggered  []string       `json:"hooks_triggered"`
	ActionTaken     string         `json:"action_taken"`
	DataMasked      bool           `json:"data_masked"`
	Blocked         bool           `json:"blocked"`
	RiskScore       int            `json:"risk_score"`
	ResponseSummary string         `json:"response_summary"`
	Metadata        map[string]any `json:"metadata"`
}

// AuditSink durably appends audit events.
type AuditSink interface {
	// Append stores event and returns its generated id. Duplicate content is never rejected.
	Append(ctx context.Context, event *AuditEvent) (int64, error)
}

// AuditRecord is a stored audit event joined with the requester's role and department.
type AuditRecord struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	AuditEvent
	UserRole   string `json:"user_role,omitempty"`
	Department string `json:"department,omitempty"`
}

// AuditFilter narrows an audit log listing. Zero values do not filter.
type AuditFilter struct {
	UserID   *int64
	Tool     string
	Blocked  *bool
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}

// HookCount is how often a hook fired.
type HookCount struct {
	Hook  string `json:"hook"`
	Count int    `json:"count"`
}

// DashboardStats summarizes today's decisions.
type DashboardStats struct {
	TotalQueries   int         `json:"total_queries"`
	BlockedQueries int         `json:"blocked_queries"`
	TopHooks       []HookCount `json:"top_hooks"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// BuildBlockedEvent assembles the audit event for a pre-hook block.
// The tool named is the first one requested.
func BuildBlockedEvent(user *engine.User, query string, tools []string, pre *engine.PreHookResult) *AuditEvent {
	return &AuditEvent{
		UserID:          user.ID,
		Username:        user.Username,
		Query:           query,
		ToolInvoked:     firstOr(tools, "none"),
		HooksTriggered:  append([]string{}, pre.HooksTriggered...),
		ActionTaken:     ActionBlocked,
		DataMasked:      false,
		Blocked:         true,
		RiskScore:       pre.RiskScore,
		ResponseSummary: pre.Reason,
		Metadata:        map[string]any{"pre_hook_result": pre},
	}
}

// BuildAllowedEvent assembles the audit event for a request that reached the tools.
// Pre-hook hooks come first, then post-hook hooks; risk is the pre-hook score.
func BuildAllowedEvent(user *engine.User, query string, activeTools []string, pre *engine.PreHookResult, post *engine.PostHookResult, resultCount int) *AuditEvent {
	hooks := make([]string, 0, len(pre.HooksTriggered)+len(post.HooksTriggered))
	hooks = append(hooks, pre.HooksTriggered...)
	hooks = append(hooks, post.HooksTriggered...)

	return &AuditEvent{
		UserID:          user.ID,
		Username:        user.Username,
		Query:           query,
		ToolInvoked:     firstOr(activeTools, "none"),
		HooksTriggered:  hooks,
		ActionTaken:     ActionAllowedFiltered,
		DataMasked:      len(post.MaskedFields) > 0,
		Blocked:         false,
		RiskScore:       pre.RiskScore,
		ResponseSummary: resultSummary(resultCount),
		Metadata: map[string]any{
			"pre_hooks":  pre,
			"post_hooks": post,
			"tools_used": activeTools,
		},
	}
}

func resultSummary(n int) string {
	return fmt.Sprintf("Query executed successfully. %d results returned.", n)
}

func firstOr(s []string, fallback string) string {
	if len(s) == 0 {
		return fallback
	}
	return s[0]
}

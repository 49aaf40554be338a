package engine

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// MaskedSalaryField is the field every mask rule targets.
const MaskedSalaryField = "salary"

// PostHookProcessor records which post-processing the active rules ask for.
// The work itself is done by FilterByDepartment and SalaryMasker.
type PostHookProcessor struct {
	rules      RuleStore
	failClosed bool
	logger     *zap.Logger
}

// NewPostHookProcessor creates a processor backed by rules.
func NewPostHookProcessor(rules RuleStore, failClosed bool, logger *zap.Logger) *PostHookProcessor {
	return &PostHookProcessor{rules: rules, failClosed: failClosed, logger: logger}
}

// Process annotates the tool result. FilteredResponse is the tool output unchanged.
func (p *PostHookProcessor) Process(ctx context.Context, result ToolResult, user *User) (*PostHookResult, error) {
	res := &PostHookResult{
		FilteredResponse: result.Data,
		MaskedFields:     []string{},
		HooksTriggered:   []string{},
	}
	if res.FilteredResponse == nil {
		res.FilteredResponse = []Row{}
	}
	if agg, ok := result.Metadata["aggregated"].(bool); ok {
		res.Aggregated = agg
	}

	rules, err := p.rules.LoadActiveRules(ctx, user.Role)
	if err != nil {
		if !p.failClosed {
			return nil, fmt.Errorf("load post-hook rules: %w", storeUnavailable(err))
		}
		p.logger.Warn("rule store unavailable, failing closed",
			zap.String("stage", "post_hook"),
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
		res.HooksTriggered = append(res.HooksTriggered, HookStoreUnavailable)
		res.MaskedFields = append(res.MaskedFields, MaskedSalaryField)
		return res, nil
	}

	for _, rule := range rules {
		if rule.Type != RuleTypePostHook || !rule.ActiveFor(user.Role) {
			continue
		}
		switch rule.Action {
		case ActionMask:
			res.HooksTriggered = append(res.HooksTriggered, rule.Name)
			if !slices.Contains(res.MaskedFields, MaskedSalaryField) {
				res.MaskedFields = append(res.MaskedFields, MaskedSalaryField)
			}
		case ActionFilter:
			res.HooksTriggered = append(res.HooksTriggered, rule.Name)
		}
	}

	return res, nil
}

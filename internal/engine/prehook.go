package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// Risk scores assigned by pre-hook outcomes.
const (
	RiskKeywordElevated = 70
	RiskKeywordBlocked  = 90
	RiskLeakageBlocked  = 95
	RiskStoreFailure    = 100
)

// Fixed hook names that are not backed by a stored rule.
const (
	HookLeakageWebSearch = "prevent_data_leakage_websearch"
	HookStoreUnavailable = "guardrail_store_unavailable"
)

const (
	defaultDenialMessage    = "You do not have permission to access salary information"
	leakageMessage          = "Cannot use web search with internal employee data"
	storeUnavailableMessage = "Guardrail policy is unavailable; request denied"
)

// LeakageDetector flags queries that carry internal employee data.
// Implementations live in the detectors package.
type LeakageDetector interface {
	Name() string

	// DetectInternalData may perform directory lookups and must respect ctx.
	DetectInternalData(ctx context.Context, query string) (bool, error)
}

// PreHookEvaluator decides allow/block before any tool runs.
type PreHookEvaluator struct {
	rules      RuleStore
	leakage    LeakageDetector
	failClosed bool
	logger     *zap.Logger
}

// NewPreHookEvaluator creates an evaluator. With failClosed, store and
// detector failures turn into blocks instead of errors.
func NewPreHookEvaluator(rules RuleStore, leakage LeakageDetector, failClosed bool, logger *zap.Logger) *PreHookEvaluator {
	return &PreHookEvaluator{
		rules:      rules,
		leakage:    leakage,
		failClosed: failClosed,
		logger:     logger,
	}
}

// Evaluate runs active pre-hook rules for the requester in priority order.
//
// A keyword match blocks employees immediately (risk 90) and raises the risk
// of other roles to at least 70. Independently, when web_search is requested
// and the query carries internal data, web_search is blocked (risk 95). Both
// checks always run; a block from either one is never undone by the other.
func (e *PreHookEvaluator) Evaluate(ctx context.Context, query string, user *User, tools []string) (*PreHookResult, error) {
	res := &PreHookResult{
		Allowed:        true,
		ModifiedQuery:  query,
		ToolsBlocked:   []string{},
		HooksTriggered: []string{},
	}

	rules, err := e.rules.LoadActiveRules(ctx, user.Role)
	if err != nil {
		if !e.failClosed {
			return nil, fmt.Errorf("load pre-hook rules: %w", storeUnavailable(err))
		}
		e.logger.Warn("rule store unavailable, failing closed",
			zap.String("stage", "pre_hook"),
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
		res.HooksTriggered = append(res.HooksTriggered, HookStoreUnavailable)
		res.block(storeUnavailableMessage, RiskStoreFailure)
		return res, nil
	}

	for _, rule := range rules {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if rule.Type != RuleTypePreHook || !rule.ActiveFor(user.Role) {
			continue
		}
		matched, scoped := MatchTrigger(rule.Trigger, query, tools)
		if !matched {
			continue
		}

		res.HooksTriggered = append(res.HooksTriggered, rule.Name)
		res.blockTools(scoped...)

		if user.Role == RoleEmployee {
			res.block(rule.Config.ErrorMessageOr(defaultDenialMessage), RiskKeywordBlocked)
			break
		}
		res.raise(RiskKeywordElevated)
	}

	if slices.Contains(tools, ToolWebSearch) {
		leak, err := e.leakage.DetectInternalData(ctx, query)
		if err != nil {
			if !e.failClosed {
				return nil, fmt.Errorf("%s: %w", e.leakage.Name(), storeUnavailable(err))
			}
			e.logger.Warn("internal data detector failed, treating query as internal",
				zap.String("detector", e.leakage.Name()),
				zap.Error(err),
			)
			leak = true
		}
		if leak {
			res.blockTools(ToolWebSearch)
			res.HooksTriggered = append(res.HooksTriggered, HookLeakageWebSearch)
			res.block(leakageMessage, RiskLeakageBlocked)
		}
	}

	return res, nil
}

// block moves the result to the blocked state. The first reason is kept.
func (r *PreHookResult) block(reason string, risk int) {
	r.Allowed = false
	if r.Reason == "" {
		r.Reason = reason
	}
	r.raise(risk)
}

// raise never lowers the risk score.
func (r *PreHookResult) raise(risk int) {
	r.RiskScore = max(r.RiskScore, risk)
}

func (r *PreHookResult) blockTools(tools ...string) {
	for _, t := range tools {
		if !slices.Contains(r.ToolsBlocked, t) {
			r.ToolsBlocked = append(r.ToolsBlocked, t)
		}
	}
}

func storeUnavailable(err error) error {
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

package rules

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
)

const defaultCacheTTL = 30 * time.Second

// Invalidator is implemented by rule sources that hold cached state.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// CachedStore serves per-role rule sets from memory, refreshing expired
// entries in the background. Rules failing validation are dropped at load.
type CachedStore struct {
	source    engine.RuleStore
	cache     *RuleCache
	validator *Validator
	logger    *zap.Logger
}

// CachedStoreConfig configures the CachedStore.
type CachedStoreConfig struct {
	Source    engine.RuleStore
	CacheTTL  time.Duration
	Validator *Validator // nil skips validation
	Logger    *zap.Logger
}

// NewCachedStore creates a cached rule store in front of cfg.Source.
func NewCachedStore(cfg CachedStoreConfig) *CachedStore {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	return &CachedStore{
		source:    cfg.Source,
		cache:     NewRuleCache(ttl),
		validator: cfg.Validator,
		logger:    cfg.Logger,
	}
}

func (s *CachedStore) LoadActiveRules(ctx context.Context, role string) ([]engine.Rule, error) {
	cached := s.cache.Get(role)
	if cached.Hit {
		if cached.NeedsRefresh {
			go s.refreshInBackground(role)
		}
		return cached.Rules, nil
	}

	gen := s.cache.Generation()
	rules, err := s.fetch(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("LoadActiveRules: %w", err)
	}
	s.cache.SetIfCurrent(role, rules, gen)
	return rules, nil
}

// Invalidate drops every cached rule set, including any shared cache behind the source.
func (s *CachedStore) Invalidate(ctx context.Context) error {
	s.cache.Clear()
	if inv, ok := s.source.(Invalidator); ok {
		return inv.Invalidate(ctx)
	}
	return nil
}

func (s *CachedStore) fetch(ctx context.Context, role string) ([]engine.Rule, error) {
	rules, err := s.source.LoadActiveRules(ctx, role)
	if err != nil {
		return nil, err
	}
	if s.validator == nil {
		return rules, nil
	}

	valid := make([]engine.Rule, 0, len(rules))
	for _, r := range rules {
		if err := s.validator.Validate(r); err != nil {
			s.logger.Warn("skipping invalid guardrail rule",
				zap.Int64("rule_id", r.ID),
				zap.String("rule_name", r.Name),
				zap.Error(err),
			)
			continue
		}
		valid = append(valid, r)
	}
	return valid, nil
}

func (s *CachedStore) refreshInBackground(role string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	gen := s.cache.Generation()
	rules, err := s.fetch(ctx, role)
	if err != nil {
		s.logger.Warn("background rule refresh failed",
			zap.String("role", role),
			zap.Error(err),
		)
		s.cache.release(role)
		return
	}
	if !s.cache.SetIfCurrent(role, rules, gen) {
		s.logger.Debug("discarding rule refresh that raced an invalidation", zap.String("role", role))
	}
}

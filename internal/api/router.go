package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Saiprana/ai-guardrails-system/internal/auth"
	"github.com/Saiprana/ai-guardrails-system/internal/engine"
	"github.com/Saiprana/ai-guardrails-system/internal/metrics"
	"github.com/Saiprana/ai-guardrails-system/internal/pipeline"
	"github.com/Saiprana/ai-guardrails-system/internal/rules"
)

// QueryRunner evaluates agent queries.
type QueryRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

// AdminStore backs the rule management, user and audit endpoints.
type AdminStore interface {
	ListRules(ctx context.Context, filter engine.RuleFilter) ([]engine.Rule, error)
	GetRule(ctx context.Context, id int64) (*engine.Rule, error)
	CreateRule(ctx context.Context, rule engine.Rule) (*engine.Rule, error)
	UpdateRule(ctx context.Context, id int64, patch engine.RulePatch) (*engine.Rule, error)
	DeleteRule(ctx context.Context, id int64) (*engine.Rule, error)
	ListUsers(ctx context.Context) ([]engine.UserSummary, error)
	ListAuditLogs(ctx context.Context, filter pipeline.AuditFilter) ([]pipeline.AuditRecord, int, error)
	GetAuditLog(ctx context.Context, id int64) (*pipeline.AuditRecord, error)
	DashboardStats(ctx context.Context) (*pipeline.DashboardStats, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Pipeline    QueryRunner
	Store       AdminStore
	Invalidator rules.Invalidator        // nil if rules are not cached
	Validator   *rules.Validator
	Auth        *auth.AdminAuthenticator // nil leaves rule management open
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Service     string
	Logger      *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/agent/query", deps.handleAgentQuery)

	// Guardrail rules (writes require the admin key when one is configured)
	mux.HandleFunc("GET /api/guardrails", deps.handleListRules)
	mux.HandleFunc("GET /api/guardrails/{id}", deps.handleGetRule)
	mux.HandleFunc("POST /api/guardrails", deps.adminOnly(deps.handleCreateRule))
	mux.HandleFunc("PUT /api/guardrails/{id}", deps.adminOnly(deps.handleUpdateRule))
	mux.HandleFunc("DELETE /api/guardrails/{id}", deps.adminOnly(deps.handleDeleteRule))

	mux.HandleFunc("GET /api/audit-logs", deps.handleListAuditLogs)
	mux.HandleFunc("GET /api/audit-logs/{id}", deps.handleGetAuditLog)
	mux.HandleFunc("GET /api/users", deps.handleListUsers)
	mux.HandleFunc("GET /api/stats/dashboard", deps.handleDashboardStats)
	mux.HandleFunc("GET /api/test/scenarios", deps.handleScenarios)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResp{Status: "healthy", Service: deps.Service})
	})
	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, EnvelopeResp{Success: false, Error: "Endpoint not found"})
	})

	return corsMiddleware(requestLogging(deps.countRequests(mux), deps.Logger))
}

// Package pipeline runs agent queries through pre-hooks, the tool gate,
// post-hooks, department filtering, salary masking and audit.
package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
	"github.com/Saiprana/ai-guardrails-system/internal/metrics"
	"github.com/Saiprana/ai-guardrails-system/internal/storage"
)

// toolPrecedence is the order in which the gate picks the single tool to run.
var toolPrecedence = []string{engine.ToolDatabaseQuery, engine.ToolWebSearch}

// DefaultTools is used when a request names no tools.
var DefaultTools = []string{engine.ToolDatabaseQuery}

// Tool is a simulated agent tool.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, query string, user *engine.User) (engine.ToolResult, error)
}

// Request is one agent query.
type Request struct {
	UserID  int64          `json:"user_id"`
	Query   string         `json:"query"`
	Tools   []string       `json:"tools"` // nil = DefaultTools
	Context map[string]any `json:"context,omitempty"`
}

// Response is the caller-facing outcome. Response holds the denial reason
// when blocked and the processed rows otherwise.
type Response struct {
	RequestID      string            `json:"request_id"`
	Response       any               `json:"response"`
	HooksTriggered []string          `json:"hooks_triggered"`
	DataMasked     bool              `json:"data_masked"`
	Blocked        bool              `json:"blocked"`
	RiskScore      int               `json:"risk_score"`
	AuditID        *int64            `json:"audit_id"`
	Metadata       *ResponseMetadata `json:"metadata,omitempty"`
}

// ResponseMetadata is attached to allowed responses.
type ResponseMetadata struct {
	TotalResults int      `json:"total_results"`
	ToolsUsed    []string `json:"tools_used"`
	ToolsBlocked []string `json:"tools_blocked"`
}

// Pipeline is stateless across requests and safe for concurrent use.
type Pipeline struct {
	directory engine.Directory
	pre       *engine.PreHookEvaluator
	post      *engine.PostHookProcessor
	masker    *engine.SalaryMasker
	tools     map[string]Tool
	audit     AuditSink
	events    storage.EventWriter
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// Config wires the pipeline's collaborators.
type Config struct {
	Directory  engine.Directory
	Rules      engine.RuleStore
	Leakage    engine.LeakageDetector
	Tools      []Tool
	Audit      AuditSink
	Events     storage.EventWriter
	Metrics    *metrics.Metrics
	FailClosed bool
	Logger     *zap.Logger
}

// New creates a pipeline from cfg.
func New(cfg Config) *Pipeline {
	tools := make(map[string]Tool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		tools[t.Name()] = t
	}
	return &Pipeline{
		directory: cfg.Directory,
		pre:       engine.NewPreHookEvaluator(cfg.Rules, cfg.Leakage, cfg.FailClosed, cfg.Logger),
		post:      engine.NewPostHookProcessor(cfg.Rules, cfg.FailClosed, cfg.Logger),
		masker:    engine.NewSalaryMasker(engine.NewPermissionChecker(cfg.Directory)),
		tools:     tools,
		audit:     cfg.Audit,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// Run evaluates one request. A blocked outcome is a normal response, not an error.
// An unknown user returns an error wrapping engine.ErrNotFound.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	requestID := uuid.NewString()
	defer func() {
		p.metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	tools := req.Tools
	if tools == nil {
		tools = DefaultTools
	}

	user, err := p.resolveUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	pre, err := p.pre.Evaluate(ctx, req.Query, user, tools)
	if err != nil {
		return nil, fmt.Errorf("pre-hooks: %w", err)
	}
	p.recordPre(pre)

	if !pre.Allowed {
		event := BuildBlockedEvent(user, req.Query, tools, pre)
		auditID := p.appendAudit(ctx, requestID, event)
		p.emit(requestID, start, user, tools, pre.ToolsBlocked, event, auditID, 0)

		p.logger.Debug("request blocked",
			zap.String("request_id", requestID),
			zap.Int64("user_id", user.ID),
			zap.Strings("hooks_triggered", pre.HooksTriggered),
			zap.Int("risk_score", pre.RiskScore),
		)
		return &Response{
			RequestID:      requestID,
			Response:       pre.Reason,
			HooksTriggered: pre.HooksTriggered,
			DataMasked:     false,
			Blocked:        true,
			RiskScore:      pre.RiskScore,
			AuditID:        auditID,
		}, nil
	}

	activeTools := ActiveTools(tools, pre.ToolsBlocked)
	result, err := p.invokeTool(ctx, req.Query, user, activeTools)
	if err != nil {
		return nil, err
	}

	post, err := p.post.Process(ctx, result, user)
	if err != nil {
		return nil, fmt.Errorf("post-hooks: %w", err)
	}
	if slices.Contains(post.HooksTriggered, engine.HookStoreUnavailable) {
		p.metrics.FailClosedTotal.WithLabelValues("post_hook").Inc()
	}

	filtered := engine.FilterByDepartment(post.FilteredResponse, user)
	masked, err := p.masker.Mask(ctx, filtered, user)
	if err != nil {
		return nil, fmt.Errorf("mask: %w", err)
	}

	event := BuildAllowedEvent(user, req.Query, activeTools, pre, post, len(masked))
	auditID := p.appendAudit(ctx, requestID, event)
	p.emit(requestID, start, user, tools, pre.ToolsBlocked, event, auditID, len(masked))
	for _, h := range post.HooksTriggered {
		p.metrics.HooksTriggered.WithLabelValues(h).Inc()
	}

	p.logger.Debug("request allowed",
		zap.String("request_id", requestID),
		zap.Int64("user_id", user.ID),
		zap.Strings("tools_used", activeTools),
		zap.Strings("hooks_triggered", event.HooksTriggered),
		zap.Int("results", len(masked)),
	)
	return &Response{
		RequestID:      requestID,
		Response:       masked,
		HooksTriggered: event.HooksTriggered,
		DataMasked:     event.DataMasked,
		Blocked:        false,
		RiskScore:      pre.RiskScore,
		AuditID:        auditID,
		Metadata: &ResponseMetadata{
			TotalResults: len(masked),
			ToolsUsed:    activeTools,
			ToolsBlocked: pre.ToolsBlocked,
		},
	}, nil
}

// ActiveTools returns requested minus blocked, preserving request order.
func ActiveTools(requested, blocked []string) []string {
	active := make([]string, 0, len(requested))
	for _, t := range requested {
		if !slices.Contains(blocked, t) {
			active = append(active, t)
		}
	}
	return active
}

// resolveUser loads the requester and fills a missing department from the
// linked employee record.
func (p *Pipeline) resolveUser(ctx context.Context, id int64) (*engine.User, error) {
	user, err := p.directory.LookupUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", id, engine.ErrNotFound)
	}
	if user.Department != "" || user.EmployeeID == nil {
		return user, nil
	}

	emp, err := p.directory.LookupEmployee(ctx, *user.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("lookup employee: %w", err)
	}
	if emp != nil {
		u := *user
		u.Department = emp.Department
		return &u, nil
	}
	return user, nil
}

// invokeTool runs exactly one tool, chosen by fixed precedence, or returns
// an empty result when no known tool is active.
func (p *Pipeline) invokeTool(ctx context.Context, query string, user *engine.User, active []string) (engine.ToolResult, error) {
	for _, name := range toolPrecedence {
		if !slices.Contains(active, name) {
			continue
		}
		tool, ok := p.tools[name]
		if !ok {
			continue
		}
		result, err := tool.Invoke(ctx, query, user)
		if err != nil {
			return engine.ToolResult{}, fmt.Errorf("tool %s: %w", name, err)
		}
		return result, nil
	}
	return engine.ToolResult{Data: []engine.Row{}, Metadata: map[string]any{}}, nil
}

// appendAudit writes event and returns its id, or nil if the write failed.
// A failed write never changes the decision already made.
func (p *Pipeline) appendAudit(ctx context.Context, requestID string, event *AuditEvent) *int64 {
	id, err := p.audit.Append(ctx, event)
	if err != nil {
		p.metrics.AuditFailures.Inc()
		p.logger.Error("audit write failed",
			zap.String("request_id", requestID),
			zap.Int64("user_id", event.UserID),
			zap.String("action_taken", event.ActionTaken),
			zap.Bool("blocked", event.Blocked),
			zap.Error(err),
		)
		return nil
	}
	return &id
}

func (p *Pipeline) recordPre(pre *engine.PreHookResult) {
	outcome := "allowed"
	if !pre.Allowed {
		outcome = "blocked"
	}
	p.metrics.DecisionsTotal.WithLabelValues(outcome).Inc()
	p.metrics.RiskScore.Observe(float64(pre.RiskScore))
	for _, h := range pre.HooksTriggered {
		p.metrics.HooksTriggered.WithLabelValues(h).Inc()
	}
	if slices.Contains(pre.HooksTriggered, engine.HookStoreUnavailable) {
		p.metrics.FailClosedTotal.WithLabelValues("pre_hook").Inc()
	}
}

func (p *Pipeline) emit(requestID string, start time.Time, user *engine.User, requested, blocked []string, event *AuditEvent, auditID *int64, results int) {
	if p.events == nil {
		return
	}
	var id int64
	if auditID != nil {
		id = *auditID
	}
	p.events.Write(&storage.DecisionEvent{
		RequestID:      requestID,
		AuditID:        id,
		Timestamp:      start,
		UserID:         user.ID,
		Username:       user.Username,
		Role:           user.Role,
		Department:     user.Department,
		QueryPreview:   storage.TruncateQuery(event.Query, storage.QueryPreviewLength),
		QueryHash:      storage.HashQuery(event.Query),
		ToolInvoked:    event.ToolInvoked,
		ToolsRequested: requested,
		ToolsBlocked:   blocked,
		HooksTriggered: event.HooksTriggered,
		ActionTaken:    event.ActionTaken,
		Blocked:        event.Blocked,
		DataMasked:     event.DataMasked,
		RiskScore:      uint8(min(max(event.RiskScore, 0), 100)),
		ResultCount:    uint32(results),
		LatencyMs:      float32(time.Since(start).Microseconds()) / 1000,
	})
}


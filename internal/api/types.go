package api

import (
	"encoding/json"

	"github.com/Saiprana/ai-guardrails-system/internal/pipeline"
)

// ErrorResp is the error body of the agent endpoint.
type ErrorResp struct {
	Error string `json:"error"`
}

// EnvelopeResp wraps every management endpoint response.
type EnvelopeResp struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Count      *int        `json:"count,omitempty"`
	Message    string      `json:"message,omitempty"`
	Error      string      `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination describes one page of an audit listing.
type Pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// AgentQueryReq is the body of POST /api/agent/query.
type AgentQueryReq struct {
	UserID  *int64         `json:"user_id"`
	Query   string         `json:"query"`
	Tools   []string       `json:"tools"`
	Context map[string]any `json:"context"`
}

// CreateRuleReq is the body of POST /api/guardrails. trigger_condition and
// config are kept raw so unknown keys can be rejected before decoding.
type CreateRuleReq struct {
	Name        string          `json:"rule_name"`
	Description string          `json:"description"`
	Type        string          `json:"rule_type"`
	Trigger     json.RawMessage `json:"trigger_condition"`
	Action      string          `json:"action"`
	TargetRoles []string        `json:"target_roles"`
	Config      json.RawMessage `json:"config"`
	Priority    *int            `json:"priority"`
	Enabled     *bool           `json:"enabled"`
}

// UpdateRuleReq is the body of PUT /api/guardrails/{id}. Absent fields are unchanged.
type UpdateRuleReq struct {
	Name        *string         `json:"rule_name"`
	Description *string         `json:"description"`
	Type        *string         `json:"rule_type"`
	Trigger     json.RawMessage `json:"trigger_condition"`
	Action      *string         `json:"action"`
	TargetRoles []string        `json:"target_roles"`
	Config      json.RawMessage `json:"config"`
	Priority    *int            `json:"priority"`
	Enabled     *bool           `json:"enabled"`
}

// ScenariosResp lists the demo scenarios.
type ScenariosResp struct {
	Scenarios []pipeline.Scenario `json:"scenarios"`
}

// HealthResp is the liveness body.
type HealthResp struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func listResp(data any, n int) EnvelopeResp {
	return EnvelopeResp{Success: true, Data: data, Count: &n}
}

func failResp(msg string) EnvelopeResp {
	return EnvelopeResp{Success: false, Error: msg}
}

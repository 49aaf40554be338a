package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
)

const defaultRulePriority = 100

func (d *Dependencies) handleListRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter engine.RuleFilter
	if v := q.Get("rule_type"); v != "" {
		t := engine.RuleType(v)
		filter.Type = &t
	}
	if v := q.Get("enabled"); v != "" {
		b := v == "true"
		filter.Enabled = &b
	}
	if v := q.Get("action"); v != "" {
		a := engine.Action(v)
		filter.Action = &a
	}

	list, err := d.Store.ListRules(r.Context(), filter)
	if err != nil {
		d.Logger.Error("failed to list guardrails", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, failResp("Failed to fetch guardrails"))
		return
	}
	writeJSON(w, http.StatusOK, listResp(list, len(list)))
}

func (d *Dependencies) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rule, err := d.Store.GetRule(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to get guardrail", zap.Int64("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, failResp("Failed to fetch guardrail"))
		return
	}
	if rule == nil {
		writeJSON(w, http.StatusNotFound, failResp("Guardrail not found"))
		return
	}
	writeJSON(w, http.StatusOK, EnvelopeResp{Success: true, Data: rule})
}

func (d *Dependencies) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, failResp("Invalid JSON body"))
		return
	}
	if req.Name == "" || req.Type == "" || req.Action == "" || isNullJSON(req.Trigger) {
		writeJSON(w, http.StatusBadRequest, failResp("Missing required fields"))
		return
	}

	rule := engine.Rule{
		Name:        req.Name,
		Description: req.Description,
		Type:        engine.RuleType(req.Type),
		Action:      engine.Action(req.Action),
		TargetRoles: req.TargetRoles,
		Priority:    defaultRulePriority,
		Enabled:     true,
	}
	if rule.TargetRoles == nil {
		rule.TargetRoles = []string{}
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	trigger, err := d.decodeTrigger(req.Trigger)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, failResp(err.Error()))
		return
	}
	rule.Trigger = *trigger
	if !isNullJSON(req.Config) {
		config, err := d.decodeConfig(req.Config)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, failResp(err.Error()))
			return
		}
		rule.Config = *config
	}
	if err := d.Validator.Validate(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, failResp(err.Error()))
		return
	}

	created, err := d.Store.CreateRule(r.Context(), rule)
	if errors.Is(err, engine.ErrConflict) {
		writeJSON(w, http.StatusBadRequest, failResp("A guardrail with this name already exists"))
		return
	}
	if err != nil {
		d.Logger.Error("failed to create guardrail", zap.String("rule_name", rule.Name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, failResp("Failed to create guardrail"))
		return
	}
	d.invalidateRules(r)

	d.Logger.Info("guardrail created", zap.Int64("id", created.ID), zap.String("rule_name", created.Name))
	writeJSON(w, http.StatusCreated, EnvelopeResp{Success: true, Data: created, Message: "Guardrail created successfully"})
}

func (d *Dependencies) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateRuleReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, failResp("Invalid JSON body"))
		return
	}

	patch := engine.RulePatch{
		Name:        req.Name,
		Description: req.Description,
		TargetRoles: req.TargetRoles,
		Priority:    req.Priority,
		Enabled:     req.Enabled,
	}
	if req.Type != nil {
		t := engine.RuleType(*req.Type)
		patch.Type = &t
	}
	if req.Action != nil {
		a := engine.Action(*req.Action)
		patch.Action = &a
	}
	if !isNullJSON(req.Trigger) {
		trigger, err := d.decodeTrigger(req.Trigger)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, failResp(err.Error()))
			return
		}
		patch.Trigger = trigger
	}
	if !isNullJSON(req.Config) {
		config, err := d.decodeConfig(req.Config)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, failResp(err.Error()))
			return
		}
		patch.Config = config
	}

	current, err := d.Store.GetRule(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to get guardrail", zap.Int64("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, failResp("Failed to update guardrail"))
		return
	}
	if current == nil {
		writeJSON(w, http.StatusNotFound, failResp("Guardrail not found"))
		return
	}
	if err := d.Validator.Validate(patch.Apply(*current)); err != nil {
		writeJSON(w, http.StatusBadRequest, failResp(err.Error()))
		return
	}

	updated, err := d.Store.UpdateRule(r.Context(), id, patch)
	if errors.Is(err, engine.ErrConflict) {
		writeJSON(w, http.StatusBadRequest, failResp("A guardrail with this name already exists"))
		return
	}
	if err != nil {
		d.Logger.Error("failed to update guardrail", zap.Int64("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, failResp("Failed to update guardrail"))
		return
	}
	if updated == nil {
		writeJSON(w, http.StatusNotFound, failResp("Guardrail not found"))
		return
	}
	d.invalidateRules(r)

	writeJSON(w, http.StatusOK, EnvelopeResp{Success: true, Data: updated, Message: "Guardrail updated successfully"})
}

func (d *Dependencies) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	deleted, err := d.Store.DeleteRule(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to delete guardrail", zap.Int64("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, failResp("Failed to delete guardrail"))
		return
	}
	if deleted == nil {
		writeJSON(w, http.StatusNotFound, failResp("Guardrail not found"))
		return
	}
	d.invalidateRules(r)

	d.Logger.Info("guardrail deleted", zap.Int64("id", id), zap.String("rule_name", deleted.Name))
	writeJSON(w, http.StatusOK, EnvelopeResp{Success: true, Data: deleted, Message: "Guardrail deleted successfully"})
}

// decodeTrigger validates raw trigger JSON against the schema, then decodes it.
func (d *Dependencies) decodeTrigger(raw json.RawMessage) (*engine.TriggerCondition, error) {
	if err := d.Validator.ValidateTrigger(raw); err != nil {
		return nil, err
	}
	var t engine.TriggerCondition
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (d *Dependencies) decodeConfig(raw json.RawMessage) (*engine.RuleConfig, error) {
	if err := d.Validator.ValidateConfig(raw); err != nil {
		return nil, err
	}
	var c engine.RuleConfig
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// invalidateRules drops cached rule sets after a write. Failure only delays
// propagation until the cache TTL expires.
func (d *Dependencies) invalidateRules(r *http.Request) {
	if d.Invalidator == nil {
		return
	}
	if err := d.Invalidator.Invalidate(r.Context()); err != nil {
		d.Logger.Warn("rule cache invalidation failed", zap.Error(err))
	}
}

// pathID parses the {id} path value, writing a 400 when it is not an integer.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, failResp("Invalid id"))
		return 0, false
	}
	return id, true
}

func isNullJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

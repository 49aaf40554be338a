// Package rules validates guardrail rule records and caches per-role rule sets.
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
)

const schemaBase = "https://guardrails.internal/schemas/"

const triggerSchema = `{
	"type": "object",
	"properties": {
		"keywords": {"type": "array", "items": {"type": "string", "minLength": 1}},
		"tools": {"type": "array", "items": {"type": "string", "minLength": 1}}
	},
	"additionalProperties": false
}`

const configSchema = `{
	"type": "object",
	"properties": {
		"error_message": {"type": "string"},
		"allow_own_salary": {"type": "boolean"}
	}
}`

const ruleSchema = `{
	"type": "object",
	"required": ["rule_name", "rule_type", "action", "target_roles", "priority"],
	"properties": {
		"rule_name": {"type": "string", "minLength": 1, "maxLength": 100},
		"rule_type": {"enum": ["pre_hook", "post_hook"]},
		"action": {"enum": ["block", "mask", "filter"]},
		"target_roles": {"type": "array", "items": {"enum": ["employee", "manager", "admin"]}},
		"priority": {"type": "integer"},
		"trigger_condition": {"$ref": "trigger.json"},
		"config": {"$ref": "config.json"}
	}
}`

// Validator checks rule records against the rule, trigger and config schemas.
// Compiled schemas are safe for concurrent use.
type Validator struct {
	rule    *jsonschema.Schema
	trigger *jsonschema.Schema
	config  *jsonschema.Schema
}

// NewValidator compiles the embedded schemas.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	for name, src := range map[string]string{
		"rule.json":    ruleSchema,
		"trigger.json": triggerSchema,
		"config.json":  configSchema,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("NewValidator: %s: %w", name, err)
		}
		if err := c.AddResource(schemaBase+name, doc); err != nil {
			return nil, fmt.Errorf("NewValidator: %s: %w", name, err)
		}
	}

	v := &Validator{}
	var err error
	if v.rule, err = c.Compile(schemaBase + "rule.json"); err != nil {
		return nil, fmt.Errorf("NewValidator: rule: %w", err)
	}
	if v.trigger, err = c.Compile(schemaBase + "trigger.json"); err != nil {
		return nil, fmt.Errorf("NewValidator: trigger: %w", err)
	}
	if v.config, err = c.Compile(schemaBase + "config.json"); err != nil {
		return nil, fmt.Errorf("NewValidator: config: %w", err)
	}
	return v, nil
}

// MustNewValidator is NewValidator for package initialization and tests.
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks a decoded rule. Pre-hook rules must block; post-hook
// rules must mask or filter.
func (v *Validator) Validate(rule engine.Rule) error {
	if rule.TargetRoles == nil {
		rule.TargetRoles = []string{}
	}
	raw, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrInvalidRule, err)
	}
	if err := validateDoc(v.rule, raw); err != nil {
		return fmt.Errorf("%w: %s: %v", engine.ErrInvalidRule, rule.Name, err)
	}

	switch rule.Type {
	case engine.RuleTypePreHook:
		if rule.Action != engine.ActionBlock {
			return fmt.Errorf("%w: %s: pre_hook rules must use action block, got %s", engine.ErrInvalidRule, rule.Name, rule.Action)
		}
	case engine.RuleTypePostHook:
		if rule.Action != engine.ActionMask && rule.Action != engine.ActionFilter {
			return fmt.Errorf("%w: %s: post_hook rules must use action mask or filter, got %s", engine.ErrInvalidRule, rule.Name, rule.Action)
		}
	}
	return nil
}

// ValidateTrigger checks raw trigger_condition JSON. Unknown keys are rejected.
func (v *Validator) ValidateTrigger(raw json.RawMessage) error {
	if err := validateDoc(v.trigger, raw); err != nil {
		return fmt.Errorf("%w: trigger_condition: %v", engine.ErrInvalidRule, err)
	}
	return nil
}

// ValidateConfig checks raw config JSON. Unknown keys are allowed.
func (v *Validator) ValidateConfig(raw json.RawMessage) error {
	if err := validateDoc(v.config, raw); err != nil {
		return fmt.Errorf("%w: config: %v", engine.ErrInvalidRule, err)
	}
	return nil
}

func validateDoc(sch *jsonschema.Schema, raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	return sch.Validate(doc)
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
)

const ruleColumns = `id, rule_name, COALESCE(description, ''), rule_type, trigger_condition, action,
	array_to_json(target_roles), config, priority, enabled`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*engine.Rule, error) {
	var (
		r                      engine.Rule
		trigger, roles, config []byte
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Type, &trigger, &r.Action,
		&roles, &config, &r.Priority, &r.Enabled); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(trigger, &r.Trigger); err != nil {
		return nil, fmt.Errorf("rule %d trigger_condition: %w: %w", r.ID, engine.ErrInvalidRule, err)
	}
	if err := json.Unmarshal(config, &r.Config); err != nil {
		return nil, fmt.Errorf("rule %d config: %w: %w", r.ID, engine.ErrInvalidRule, err)
	}
	var err error
	if r.TargetRoles, err = decodeTextArray(roles); err != nil {
		return nil, fmt.Errorf("rule %d target_roles: %w", r.ID, err)
	}
	return &r, nil
}

func (s *Store) queryRules(ctx context.Context, op, query string, args ...any) ([]engine.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	out := []engine.Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

// LoadActiveRules returns enabled rules targeting role (or admin), lowest priority first.
func (s *Store) LoadActiveRules(ctx context.Context, role string) ([]engine.Rule, error) {
	return s.queryRules(ctx, "LoadActiveRules", `
		SELECT `+ruleColumns+`
		FROM guardrail_rules
		WHERE enabled = true AND ($1 = ANY(target_roles) OR 'admin' = ANY(target_roles))
		ORDER BY priority ASC, id ASC`, role)
}

// ListRules returns rules matching filter ordered by priority.
func (s *Store) ListRules(ctx context.Context, filter engine.RuleFilter) ([]engine.Rule, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != nil {
		args = append(args, string(*filter.Type))
		where = append(where, fmt.Sprintf("rule_type = $%d", len(args)))
	}
	if filter.Enabled != nil {
		args = append(args, *filter.Enabled)
		where = append(where, fmt.Sprintf("enabled = $%d", len(args)))
	}
	if filter.Action != nil {
		args = append(args, string(*filter.Action))
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}

	query := `SELECT ` + ruleColumns + ` FROM guardrail_rules`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY priority ASC, id ASC`
	return s.queryRules(ctx, "ListRules", query, args...)
}

// GetRule returns a rule by ID, or nil if not found.
func (s *Store) GetRule(ctx context.Context, id int64) (*engine.Rule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+` FROM guardrail_rules WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("GetRule", err)
	}
	return r, nil
}

// CreateRule inserts a rule and returns it with its generated id.
// A duplicate name returns engine.ErrConflict.
func (s *Store) CreateRule(ctx context.Context, rule engine.Rule) (*engine.Rule, error) {
	trigger, config, roles, err := ruleJSON(rule)
	if err != nil {
		return nil, fmt.Errorf("CreateRule: %w", err)
	}

	r, err := scanRule(s.db.QueryRowContext(ctx, `
		INSERT INTO guardrail_rules
			(rule_name, description, rule_type, trigger_condition, action,
			 target_roles, config, priority, enabled)
		VALUES ($1, NULLIF($2, ''), $3, $4::jsonb, $5,
			ARRAY(SELECT jsonb_array_elements_text($6::jsonb)), $7::jsonb, $8, $9)
		RETURNING `+ruleColumns,
		rule.Name, rule.Description, string(rule.Type), string(trigger), string(rule.Action),
		string(roles), string(config), rule.Priority, rule.Enabled,
	))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("CreateRule: rule %q: %w", rule.Name, engine.ErrConflict)
	}
	if err != nil {
		return nil, unavailable("CreateRule", err)
	}
	return r, nil
}

// UpdateRule applies a partial update. Only non-nil fields are changed.
// Returns nil, nil when the rule does not exist.
func (s *Store) UpdateRule(ctx context.Context, id int64, patch engine.RulePatch) (*engine.Rule, error) {
	var trigger, config, roles []byte
	var err error
	if patch.Trigger != nil {
		if trigger, err = json.Marshal(patch.Trigger); err != nil {
			return nil, fmt.Errorf("UpdateRule: %w", err)
		}
	}
	if patch.Config != nil {
		if config, err = json.Marshal(patch.Config); err != nil {
			return nil, fmt.Errorf("UpdateRule: %w", err)
		}
	}
	if patch.TargetRoles != nil {
		if roles, err = textArray(patch.TargetRoles); err != nil {
			return nil, fmt.Errorf("UpdateRule: %w", err)
		}
	}

	r, err := scanRule(s.db.QueryRowContext(ctx, `
		UPDATE guardrail_rules SET
			rule_name         = COALESCE($2, rule_name),
			description       = COALESCE($3, description),
			rule_type         = COALESCE($4, rule_type),
			trigger_condition = COALESCE($5::jsonb, trigger_condition),
			action            = COALESCE($6, action),
			target_roles      = CASE WHEN $7::jsonb IS NULL THEN target_roles
			                    ELSE ARRAY(SELECT jsonb_array_elements_text($7::jsonb)) END,
			config            = COALESCE($8::jsonb, config),
			priority          = COALESCE($9, priority),
			enabled           = COALESCE($10, enabled),
			updated_at        = now()
		WHERE id = $1
		RETURNING `+ruleColumns,
		id, patch.Name, patch.Description, nullableString((*string)(patch.Type)),
		nullableBytes(trigger), nullableString((*string)(patch.Action)), nullableBytes(roles),
		nullableBytes(config), patch.Priority, patch.Enabled,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("UpdateRule: %w", engine.ErrConflict)
	}
	if err != nil {
		return nil, unavailable("UpdateRule", err)
	}
	return r, nil
}

// DeleteRule removes a rule and returns it, or nil if it did not exist.
func (s *Store) DeleteRule(ctx context.Context, id int64) (*engine.Rule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, `
		DELETE FROM guardrail_rules WHERE id = $1 RETURNING `+ruleColumns, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("DeleteRule", err)
	}
	return r, nil
}

func ruleJSON(rule engine.Rule) (trigger, config, roles []byte, err error) {
	if trigger, err = json.Marshal(rule.Trigger); err != nil {
		return nil, nil, nil, err
	}
	if config, err = json.Marshal(rule.Config); err != nil {
		return nil, nil, nil, err
	}
	if roles, err = textArray(rule.TargetRoles); err != nil {
		return nil, nil, nil, err
	}
	return trigger, config, roles, nil
}

// nullableBytes returns nil (SQL NULL) for an empty value.
func nullableBytes(v []byte) any {
	if v == nil {
		return nil
	}
	return string(v)
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

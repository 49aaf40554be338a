package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Saiprana/ai-guardrails-system/internal/pipeline"
)

const topHooksLimit = 5

// Append inserts an audit event and returns its id.
func (s *Store) Append(ctx context.Context, event *pipeline.AuditEvent) (int64, error) {
	meta, err := json.Marshal(event.Metadata)
	if err != nil {
		return 0, fmt.Errorf("Append: metadata: %w", err)
	}
	hooks, err := textArray(event.HooksTriggered)
	if err != nil {
		return 0, fmt.Errorf("Append: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO audit_log
			(user_id, username, query, tool_invoked, hooks_triggered, action_taken,
			 data_masked, blocked, risk_score, response_summary, metadata)
		VALUES ($1, $2, $3, $4, ARRAY(SELECT jsonb_array_elements_text($5::jsonb)), $6,
			$7, $8, $9, $10, $11::jsonb)
		RETURNING id`,
		event.UserID, event.Username, event.Query, event.ToolInvoked, string(hooks), event.ActionTaken,
		event.DataMasked, event.Blocked, event.RiskScore, event.ResponseSummary, string(meta),
	).Scan(&id)
	if err != nil {
		return 0, unavailable("Append", err)
	}
	return id, nil
}

const auditColumns = `al.id, al.timestamp, al.user_id, al.username, al.query, al.tool_invoked,
	array_to_json(al.hooks_triggered), al.action_taken, al.data_masked, al.blocked, al.risk_score,
	COALESCE(al.response_summary, ''), al.metadata, COALESCE(u.role, ''), COALESCE(u.department, '')`

func scanAudit(row rowScanner) (*pipeline.AuditRecord, error) {
	var (
		rec         pipeline.AuditRecord
		hooks, meta []byte
	)
	if err := row.Scan(&rec.ID, &rec.Timestamp, &rec.UserID, &rec.Username, &rec.Query, &rec.ToolInvoked,
		&hooks, &rec.ActionTaken, &rec.DataMasked, &rec.Blocked, &rec.RiskScore,
		&rec.ResponseSummary, &meta, &rec.UserRole, &rec.Department); err != nil {
		return nil, err
	}
	var err error
	if rec.HooksTriggered, err = decodeTextArray(hooks); err != nil {
		return nil, fmt.Errorf("audit %d hooks_triggered: %w", rec.ID, err)
	}
	if rec.Metadata, err = decodeMetadata(meta); err != nil {
		return nil, fmt.Errorf("audit %d metadata: %w", rec.ID, err)
	}
	return &rec, nil
}

// ListAuditLogs returns one page of matching records, newest first, and the
// total number of matches.
func (s *Store) ListAuditLogs(ctx context.Context, filter pipeline.AuditFilter) ([]pipeline.AuditRecord, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != nil {
		add("al.user_id = $%d", *filter.UserID)
	}
	if filter.Tool != "" {
		add("al.tool_invoked = $%d", filter.Tool)
	}
	if filter.Blocked != nil {
		add("al.blocked = $%d", *filter.Blocked)
	}
	if filter.DateFrom != nil {
		add("al.timestamp >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		add("al.timestamp <= $%d", *filter.DateTo)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log al`+cond, args...).Scan(&total); err != nil {
		return nil, 0, unavailable("ListAuditLogs", err)
	}

	query := `SELECT ` + auditColumns + `
		FROM audit_log al
		LEFT JOIN users u ON al.user_id = u.id` + cond + `
		ORDER BY al.timestamp DESC, al.id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, max(filter.Offset, 0))
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, unavailable("ListAuditLogs", err)
	}
	defer rows.Close()

	out := []pipeline.AuditRecord{}
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListAuditLogs: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, unavailable("ListAuditLogs", err)
	}
	return out, total, nil
}

// GetAuditLog returns one audit record, or nil if not found.
func (s *Store) GetAuditLog(ctx context.Context, id int64) (*pipeline.AuditRecord, error) {
	rec, err := scanAudit(s.db.QueryRowContext(ctx, `
		SELECT `+auditColumns+`
		FROM audit_log al
		LEFT JOIN users u ON al.user_id = u.id
		WHERE al.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("GetAuditLog", err)
	}
	return rec, nil
}

// DashboardStats summarizes today's audit log.
func (s *Store) DashboardStats(ctx context.Context) (*pipeline.DashboardStats, error) {
	stats := &pipeline.DashboardStats{TopHooks: []pipeline.HookCount{}}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE blocked), now()
		FROM audit_log
		WHERE timestamp >= CURRENT_DATE`,
	).Scan(&stats.TotalQueries, &stats.BlockedQueries, &stats.UpdatedAt)
	if err != nil {
		return nil, unavailable("DashboardStats", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT hook, COUNT(*) AS count
		FROM audit_log, UNNEST(hooks_triggered) AS hook
		WHERE timestamp >= CURRENT_DATE
		GROUP BY hook
		ORDER BY count DESC, hook ASC
		LIMIT $1`, topHooksLimit)
	if err != nil {
		return nil, unavailable("DashboardStats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h pipeline.HookCount
		if err := rows.Scan(&h.Hook, &h.Count); err != nil {
			return nil, unavailable("DashboardStats", err)
		}
		stats.TopHooks = append(stats.TopHooks, h)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("DashboardStats", err)
	}
	return stats, nil
}

// decodeMetadata decodes a JSONB column keeping numbers exact.
func decodeMetadata(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Saiprana/ai-guardrails-system/internal/pipeline"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

func (d *Dependencies) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := pipeline.AuditFilter{
		Tool:   q.Get("tool"),
		Limit:  queryInt(q, "limit", defaultAuditLimit),
		Offset: queryInt(q, "offset", 0),
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditLimit
	}
	if filter.Limit > maxAuditLimit {
		filter.Limit = maxAuditLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	if v := q.Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, failResp("Invalid user_id"))
			return
		}
		filter.UserID = &id
	}
	if v := q.Get("blocked"); v != "" {
		b := v == "true"
		filter.Blocked = &b
	}
	var ok bool
	if filter.DateFrom, ok = queryTime(q, "date_from"); !ok {
		writeJSON(w, http.StatusBadRequest, failResp("Invalid date_from"))
		return
	}
	if filter.DateTo, ok = queryTime(q, "date_to"); !ok {
		writeJSON(w, http.StatusBadRequest, failResp("Invalid date_to"))
		return
	}

	logs, total, err := d.Store.ListAuditLogs(r.Context(), filter)
	if err != nil {
		d.Logger.Error("failed to list audit logs", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, failResp("Failed to fetch audit logs"))
		return
	}
	writeJSON(w, http.StatusOK, EnvelopeResp{
		Success: true,
		Data:    logs,
		Pagination: &Pagination{
			Total:  total,
			Limit:  filter.Limit,
			Offset: filter.Offset,
			Count:  len(logs),
		},
	})
}

func (d *Dependencies) handleGetAuditLog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := d.Store.GetAuditLog(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to get audit log", zap.Int64("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, failResp("Failed to fetch audit log"))
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, failResp("Audit log not found"))
		return
	}
	writeJSON(w, http.StatusOK, EnvelopeResp{Success: true, Data: rec})
}

func (d *Dependencies) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := d.Store.ListUsers(r.Context())
	if err != nil {
		d.Logger.Error("failed to list users", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, failResp("Failed to fetch users"))
		return
	}
	writeJSON(w, http.StatusOK, listResp(users, len(users)))
}

func (d *Dependencies) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := d.Store.DashboardStats(r.Context())
	if err != nil {
		d.Logger.Error("failed to compute dashboard stats", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, failResp("Failed to fetch statistics"))
		return
	}
	writeJSON(w, http.StatusOK, EnvelopeResp{Success: true, Data: stats})
}

func queryInt(q url.Values, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// queryTime parses an RFC 3339 timestamp or a YYYY-MM-DD date. A plain date
// means midnight UTC. ok is false only for a malformed value.
func queryTime(q url.Values, key string) (t *time.Time, ok bool) {
	v := q.Get(key)
	if v == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if parsed, err := time.Parse(layout, v); err == nil {
			return &parsed, true
		}
	}
	return nil, false
}

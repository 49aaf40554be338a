// Package memstore is an in-memory rule store, directory and audit sink
// seeded from a YAML fixture. It backs local runs, the CLI and tests.
package memstore

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
	"github.com/Saiprana/ai-guardrails-system/internal/pipeline"
)

// topHooksLimit is how many hooks the dashboard lists.
const topHooksLimit = 5

// Store is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	employees  map[int64]engine.Employee
	users      map[int64]engine.User
	rules      []engine.Rule
	nextRuleID int64
	audit      []pipeline.AuditRecord
	now        func() time.Time
}

// New creates a store seeded from f.
func New(f *Fixture) *Store {
	s := &Store{
		employees: make(map[int64]engine.Employee, len(f.Employees)),
		users:     make(map[int64]engine.User, len(f.Users)),
		now:       time.Now,
	}
	for _, e := range f.Employees {
		s.employees[e.ID] = e.employee()
	}
	for _, u := range f.Users {
		s.users[u.ID] = u
	}
	for _, r := range f.Rules {
		s.rules = append(s.rules, r)
		s.nextRuleID = max(s.nextRuleID, r.ID)
	}
	return s
}

// NewDemo creates a store seeded from the embedded demo fixture.
func NewDemo() *Store {
	return New(DemoFixture())
}

// --- engine.RuleStore ---

func (s *Store) LoadActiveRules(_ context.Context, role string) ([]engine.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []engine.Rule
	for _, r := range s.rules {
		if r.ActiveFor(role) {
			out = append(out, r)
		}
	}
	sortRules(out)
	return out, nil
}

// --- engine.Directory ---

func (s *Store) LookupUser(_ context.Context, id int64) (*engine.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) LookupEmployee(_ context.Context, id int64) (*engine.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) LookupManagerID(_ context.Context, employeeID int64) (*int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[employeeID]
	if !ok || e.ManagerID == nil {
		return nil, nil
	}
	id := *e.ManagerID
	return &id, nil
}

func (s *Store) CountEmployeesByName(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.employees {
		if containsFold(e.Name, name) {
			n++
		}
	}
	return n, nil
}

func (s *Store) MatchEmployeeNames(_ context.Context, names []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []string
	for _, n := range names {
		for _, e := range s.employees {
			if containsFold(e.Name, n) {
				matched = append(matched, n)
				break
			}
		}
	}
	return matched, nil
}

// --- tools.EmployeeSource ---

func (s *Store) ListEmployees(_ context.Context, filter engine.EmployeeFilter) ([]engine.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		if filter.MinSalary != nil && !e.Salary.GreaterThan(*filter.MinSalary) {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b engine.Employee) int {
		if c := cmp.Compare(a.Department, b.Department); c != 0 {
			return c
		}
		return b.Salary.Cmp(a.Salary)
	})
	return out, nil
}

func (s *Store) DepartmentAverages(_ context.Context, department string) ([]engine.DepartmentAverage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := decimal.Zero
	count := 0
	for _, e := range s.employees {
		if e.Department == department {
			sum = sum.Add(e.Salary)
			count++
		}
	}
	if count == 0 {
		return []engine.DepartmentAverage{}, nil
	}
	return []engine.DepartmentAverage{{
		Department: department,
		AvgSalary:  sum.Div(decimal.NewFromInt(int64(count))),
		Count:      count,
	}}, nil
}

// --- pipeline.AuditSink ---

// Append stores a detached JSON copy of the event metadata.
func (s *Store) Append(_ context.Context, event *pipeline.AuditEvent) (int64, error) {
	meta, err := detach(event.Metadata)
	if err != nil {
		return 0, fmt.Errorf("Append: %w", err)
	}
	rec := pipeline.AuditRecord{AuditEvent: *event}
	rec.HooksTriggered = slices.Clone(event.HooksTriggered)
	rec.Metadata = meta

	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = int64(len(s.audit)) + 1
	rec.Timestamp = s.now()
	s.audit = append(s.audit, rec)
	return rec.ID, nil
}

func detach(meta map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- rule management ---

func (s *Store) ListRules(_ context.Context, filter engine.RuleFilter) ([]engine.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	sortRules(out)
	return out, nil
}

func (s *Store) GetRule(_ context.Context, id int64) (*engine.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.ruleIndex(id); i >= 0 {
		r := s.rules[i]
		return &r, nil
	}
	return nil, nil
}

func (s *Store) CreateRule(_ context.Context, rule engine.Rule) (*engine.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTaken(rule.Name, 0) {
		return nil, fmt.Errorf("CreateRule: rule %q: %w", rule.Name, engine.ErrConflict)
	}
	s.nextRuleID++
	rule.ID = s.nextRuleID
	s.rules = append(s.rules, rule)
	return &rule, nil
}

// UpdateRule returns nil, nil when the rule does not exist.
func (s *Store) UpdateRule(_ context.Context, id int64, patch engine.RulePatch) (*engine.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.ruleIndex(id)
	if i < 0 {
		return nil, nil
	}
	updated := patch.Apply(s.rules[i])
	if s.nameTaken(updated.Name, id) {
		return nil, fmt.Errorf("UpdateRule: rule %q: %w", updated.Name, engine.ErrConflict)
	}
	s.rules[i] = updated
	return &updated, nil
}

// DeleteRule returns the removed rule, or nil, nil when it does not exist.
func (s *Store) DeleteRule(_ context.Context, id int64) (*engine.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.ruleIndex(id)
	if i < 0 {
		return nil, nil
	}
	r := s.rules[i]
	s.rules = slices.Delete(s.rules, i, i+1)
	return &r, nil
}

func (s *Store) ruleIndex(id int64) int {
	return slices.IndexFunc(s.rules, func(r engine.Rule) bool { return r.ID == id })
}

func (s *Store) nameTaken(name string, exceptID int64) bool {
	return slices.ContainsFunc(s.rules, func(r engine.Rule) bool { return r.Name == name && r.ID != exceptID })
}

// --- users, audit listing, stats ---

func (s *Store) ListUsers(_ context.Context) ([]engine.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.UserSummary, 0, len(s.users))
	for _, u := range s.users {
		sum := engine.UserSummary{ID: u.ID, Username: u.Username, Role: u.Role, Department: u.Department}
		if u.EmployeeID != nil {
			if e, ok := s.employees[*u.EmployeeID]; ok {
				name := e.Name
				sum.EmployeeName = &name
			}
		}
		out = append(out, sum)
	}
	slices.SortFunc(out, func(a, b engine.UserSummary) int {
		if c := cmp.Compare(a.Role, b.Role); c != 0 {
			return c
		}
		return cmp.Compare(a.Username, b.Username)
	})
	return out, nil
}

// ListAuditLogs returns one page of matching records, newest first, and the
// total number of matches.
func (s *Store) ListAuditLogs(_ context.Context, filter pipeline.AuditFilter) ([]pipeline.AuditRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []pipeline.AuditRecord
	for i := len(s.audit) - 1; i >= 0; i-- {
		rec := s.audit[i]
		if !auditMatches(rec, filter) {
			continue
		}
		matched = append(matched, s.joinUser(rec))
	}

	total := len(matched)
	start := min(max(filter.Offset, 0), total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	page := matched[start:end]
	if page == nil {
		page = []pipeline.AuditRecord{}
	}
	return page, total, nil
}

func (s *Store) GetAuditLog(_ context.Context, id int64) (*pipeline.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 1 || id > int64(len(s.audit)) {
		return nil, nil
	}
	rec := s.joinUser(s.audit[id-1])
	return &rec, nil
}

func (s *Store) DashboardStats(_ context.Context) (*pipeline.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	stats := &pipeline.DashboardStats{TopHooks: []pipeline.HookCount{}, UpdatedAt: now}
	counts := map[string]int{}
	for _, rec := range s.audit {
		if rec.Timestamp.Before(today) {
			continue
		}
		stats.TotalQueries++
		if rec.Blocked {
			stats.BlockedQueries++
		}
		for _, h := range rec.HooksTriggered {
			counts[h]++
		}
	}
	for h, n := range counts {
		stats.TopHooks = append(stats.TopHooks, pipeline.HookCount{Hook: h, Count: n})
	}
	slices.SortFunc(stats.TopHooks, func(a, b pipeline.HookCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Hook, b.Hook)
	})
	if len(stats.TopHooks) > topHooksLimit {
		stats.TopHooks = stats.TopHooks[:topHooksLimit]
	}
	return stats, nil
}

func (s *Store) joinUser(rec pipeline.AuditRecord) pipeline.AuditRecord {
	if u, ok := s.users[rec.UserID]; ok {
		rec.UserRole = u.Role
		rec.Department = u.Department
	}
	return rec
}

func auditMatches(rec pipeline.AuditRecord, f pipeline.AuditFilter) bool {
	switch {
	case f.UserID != nil && rec.UserID != *f.UserID:
		return false
	case f.Tool != "" && rec.ToolInvoked != f.Tool:
		return false
	case f.Blocked != nil && rec.Blocked != *f.Blocked:
		return false
	case f.DateFrom != nil && rec.Timestamp.Before(*f.DateFrom):
		return false
	case f.DateTo != nil && rec.Timestamp.After(*f.DateTo):
		return false
	}
	return true
}

func sortRules(rules []engine.Rule) {
	slices.SortStableFunc(rules, func(a, b engine.Rule) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

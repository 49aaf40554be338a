package memstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
	"github.com/Saiprana/ai-guardrails-system/internal/pipeline"
)

func TestDemoFixture(t *testing.T) {
	f := DemoFixture()
	if len(f.Employees) != 10 || len(f.Users) != 6 || len(f.Rules) != 5 {
		t.Fatalf("unexpected fixture sizes: %d employees, %d users, %d rules",
			len(f.Employees), len(f.Users), len(f.Rules))
	}
}

func TestParseFixture_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "bad salary",
			doc:  "employees:\n  - {id: 1, name: A B, salary: lots}\n",
			want: "salary",
		},
		{
			name: "duplicate employee",
			doc:  "employees:\n  - {id: 1, salary: '1'}\n  - {id: 1, salary: '2'}\n",
			want: "duplicate employee",
		},
		{
			name: "unknown manager",
			doc:  "employees:\n  - {id: 1, salary: '1', manager_id: 9}\n",
			want: "unknown manager",
		},
		{
			name: "unknown employee link",
			doc:  "users:\n  - {id: 1, username: a, role: employee, employee_id: 4}\n",
			want: "unknown employee",
		},
		{
			name: "duplicate rule name",
			doc:  "rules:\n  - {id: 1, rule_name: r}\n  - {id: 2, rule_name: r}\n",
			want: "duplicate rule name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFixture([]byte(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadActiveRules(t *testing.T) {
	s := NewDemo()
	ctx := context.Background()

	rules, err := s.LoadActiveRules(ctx, engine.RoleEmployee)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 5 {
		t.Fatalf("expected 5 employee rules, got %d", len(rules))
	}
	for i := 1; i < len(rules); i++ {
		if rules[i-1].Priority > rules[i].Priority {
			t.Fatalf("rules not in priority order: %d before %d", rules[i-1].Priority, rules[i].Priority)
		}
	}

	admin, _ := s.LoadActiveRules(ctx, engine.RoleAdmin)
	if len(admin) != 0 {
		t.Errorf("expected no demo rules for admin, got %d", len(admin))
	}
}

func TestDirectory(t *testing.T) {
	s := NewDemo()
	ctx := context.Background()

	u, err := s.LookupUser(ctx, 3)
	if err != nil || u == nil || u.Username != "michael_manager" {
		t.Fatalf("LookupUser(3) = %+v, %v", u, err)
	}
	if u, _ := s.LookupUser(ctx, 99); u != nil {
		t.Errorf("expected nil for unknown user, got %+v", u)
	}

	mgr, _ := s.LookupManagerID(ctx, 3)
	if mgr == nil || *mgr != 2 {
		t.Errorf("expected Alisha's manager to be 2, got %v", mgr)
	}
	if mgr, _ := s.LookupManagerID(ctx, 1); mgr != nil {
		t.Errorf("expected no manager for Sarah, got %d", *mgr)
	}

	if n, _ := s.CountEmployeesByName(ctx, "alisha patel"); n != 1 {
		t.Errorf("expected case-insensitive match, got %d", n)
	}
	got, _ := s.MatchEmployeeNames(ctx, []string{"Alisha Patel", "John Smith", "Tom Becker"})
	if strings.Join(got, ",") != "Alisha Patel,Tom Becker" {
		t.Errorf("unexpected matches %v", got)
	}
}

func TestListEmployees(t *testing.T) {
	s := NewDemo()
	ctx := context.Background()

	all, _ := s.ListEmployees(ctx, engine.EmployeeFilter{})
	if len(all) != 10 {
		t.Fatalf("expected 10 employees, got %d", len(all))
	}
	if all[0].Name != "Sarah Chen" || all[len(all)-1].Name != "Jessica Lee" {
		t.Errorf("expected department then salary order, got first %s last %s", all[0].Name, all[len(all)-1].Name)
	}

	threshold := decimal.NewFromInt(151000)
	over, _ := s.ListEmployees(ctx, engine.EmployeeFilter{MinSalary: &threshold})
	for _, e := range over {
		if !e.Salary.GreaterThan(threshold) {
			t.Errorf("%s at %s should be excluded", e.Name, e.Salary)
		}
	}
	if len(over) != 4 {
		t.Errorf("expected 4 employees strictly over 151000, got %d", len(over))
	}
}

func TestDepartmentAverages(t *testing.T) {
	s := NewDemo()
	ctx := context.Background()

	avg, _ := s.DepartmentAverages(ctx, "Engineering")
	if len(avg) != 1 || avg[0].Count != 5 {
		t.Fatalf("unexpected averages %+v", avg)
	}
	if !avg[0].AvgSalary.Equal(decimal.NewFromInt(148200)) {
		t.Errorf("expected 148200, got %s", avg[0].AvgSalary)
	}

	none, _ := s.DepartmentAverages(ctx, "Legal")
	if len(none) != 0 {
		t.Errorf("expected no rows, got %+v", none)
	}
}

func TestRuleCRUD(t *testing.T) {
	s := NewDemo()
	ctx := context.Background()

	created, err := s.CreateRule(ctx, engine.Rule{Name: "block_bonus", Type: engine.RuleTypePreHook, Action: engine.ActionBlock, Priority: 50})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID != 6 {
		t.Errorf("expected id 6, got %d", created.ID)
	}

	if _, err := s.CreateRule(ctx, engine.Rule{Name: "block_bonus"}); !errors.Is(err, engine.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	disabled := false
	updated, err := s.UpdateRule(ctx, created.ID, engine.RulePatch{Enabled: &disabled})
	if err != nil || updated == nil || updated.Enabled || updated.Priority != 50 {
		t.Fatalf("UpdateRule = %+v, %v", updated, err)
	}

	rename := "block_salary_queries"
	if _, err := s.UpdateRule(ctx, created.ID, engine.RulePatch{Name: &rename}); !errors.Is(err, engine.ErrConflict) {
		t.Errorf("expected rename conflict, got %v", err)
	}
	if r, err := s.UpdateRule(ctx, 404, engine.RulePatch{}); r != nil || err != nil {
		t.Errorf("expected nil, nil for missing rule, got %+v, %v", r, err)
	}

	enabled := false
	list, _ := s.ListRules(ctx, engine.RuleFilter{Enabled: &enabled})
	if len(list) != 1 || list[0].Name != "block_bonus" {
		t.Errorf("expected only the disabled rule, got %+v", list)
	}

	deleted, _ := s.DeleteRule(ctx, created.ID)
	if deleted == nil || deleted.Name != "block_bonus" {
		t.Fatalf("expected deleted rule back, got %+v", deleted)
	}
	if r, _ := s.GetRule(ctx, created.ID); r != nil {
		t.Errorf("expected rule gone, got %+v", r)
	}
	if r, _ := s.DeleteRule(ctx, created.ID); r != nil {
		t.Errorf("expected nil on second delete, got %+v", r)
	}
}

func TestListUsers(t *testing.T) {
	s := NewDemo()
	users, _ := s.ListUsers(context.Background())
	if len(users) != 6 {
		t.Fatalf("expected 6 users, got %d", len(users))
	}
	if users[0].Role != engine.RoleAdmin || users[1].Username != "alisha_employee" {
		t.Errorf("expected role then username order, got %s, %s", users[0].Username, users[1].Username)
	}
	if users[0].EmployeeName == nil || *users[0].EmployeeName != "Linda Park" {
		t.Errorf("expected joined employee name, got %v", users[0].EmployeeName)
	}
}

func TestAudit(t *testing.T) {
	s := NewDemo()
	ctx := context.Background()
	clock := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	salary := decimal.RequireFromString("145000.10")
	events := []*pipeline.AuditEvent{
		{UserID: 5, Query: "q1", ToolInvoked: "database_query", HooksTriggered: []string{"block_salary_queries"}, Blocked: true,
			Metadata: map[string]any{"salary": salary}},
		{UserID: 3, Query: "q2", ToolInvoked: "database_query", HooksTriggered: []string{"mask_salary_data", "filter_by_department"}},
		{UserID: 5, Query: "q3", ToolInvoked: "web_search", HooksTriggered: []string{"block_salary_queries"}, Blocked: true},
	}
	for i, e := range events {
		id, err := s.Append(ctx, e)
		if err != nil {
			t.Fatal(err)
		}
		if id != int64(i+1) {
			t.Errorf("expected id %d, got %d", i+1, id)
		}
		clock = clock.Add(time.Minute)
	}

	rec, _ := s.GetAuditLog(ctx, 1)
	if rec == nil || rec.UserRole != engine.RoleEmployee || rec.Department != "Engineering" {
		t.Fatalf("expected joined record, got %+v", rec)
	}
	if got := fmt.Sprint(rec.Metadata["salary"]); got != "145000.1" {
		t.Errorf("expected exact salary in metadata, got %#v", rec.Metadata["salary"])
	}

	user := int64(5)
	page, total, _ := s.ListAuditLogs(ctx, pipeline.AuditFilter{UserID: &user, Limit: 1})
	if total != 2 || len(page) != 1 || page[0].Query != "q3" {
		t.Errorf("expected newest of 2, got total %d page %+v", total, page)
	}
	page, _, _ = s.ListAuditLogs(ctx, pipeline.AuditFilter{Tool: "web_search", Offset: 5})
	if len(page) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(page))
	}

	stats, _ := s.DashboardStats(ctx)
	if stats.TotalQueries != 3 || stats.BlockedQueries != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if len(stats.TopHooks) != 3 || stats.TopHooks[0].Hook != "block_salary_queries" || stats.TopHooks[0].Count != 2 {
		t.Errorf("unexpected top hooks %+v", stats.TopHooks)
	}

	s.now = func() time.Time { return clock.Add(24 * time.Hour) }
	stats, _ = s.DashboardStats(ctx)
	if stats.TotalQueries != 0 {
		t.Errorf("expected yesterday's events excluded, got %d", stats.TotalQueries)
	}
}

func TestAppend_Concurrent(t *testing.T) {
	s := NewDemo()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Append(context.Background(), &pipeline.AuditEvent{UserID: 4})
		}()
	}
	wg.Wait()
	_, total, _ := s.ListAuditLogs(context.Background(), pipeline.AuditFilter{})
	if total != 50 {
		t.Errorf("expected 50 records, got %d", total)
	}
}

func TestAppend_UnserializableMetadata(t *testing.T) {
	s := NewDemo()
	_, err := s.Append(context.Background(), &pipeline.AuditEvent{Metadata: map[string]any{"ch": make(chan int)}})
	if err == nil {
		t.Fatal("expected error for unserializable metadata")
	}
}

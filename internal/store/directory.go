package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
)

// LookupUser returns a user by ID, or nil if not found.
func (s *Store) LookupUser(ctx context.Context, id int64) (*engine.User, error) {
	var u engine.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, role, employee_id, COALESCE(department, '')
		FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.Role, &u.EmployeeID, &u.Department)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("LookupUser", err)
	}
	return &u, nil
}

// LookupEmployee returns an employee by ID, or nil if not found.
func (s *Store) LookupEmployee(ctx context.Context, id int64) (*engine.Employee, error) {
	var e engine.Employee
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, department, role, salary, manager_id
		FROM employees WHERE id = $1`, id,
	).Scan(&e.ID, &e.Name, &e.Email, &e.Department, &e.Title, &e.Salary, &e.ManagerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("LookupEmployee", err)
	}
	return &e, nil
}

// LookupManagerID returns the employee's manager id, or nil if there is none.
func (s *Store) LookupManagerID(ctx context.Context, employeeID int64) (*int64, error) {
	var id *int64
	err := s.db.QueryRowContext(ctx, `SELECT manager_id FROM employees WHERE id = $1`, employeeID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("LookupManagerID", err)
	}
	return id, nil
}

// CountEmployeesByName counts employees whose name contains name, ignoring case.
func (s *Store) CountEmployeesByName(ctx context.Context, name string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM employees WHERE name ILIKE '%' || $1 || '%'`, name,
	).Scan(&n)
	if err != nil {
		return 0, unavailable("CountEmployeesByName", err)
	}
	return n, nil
}

// MatchEmployeeNames returns, in input order, the names that match at least
// one employee. One round-trip regardless of len(names).
func (s *Store) MatchEmployeeNames(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	arg, err := textArray(names)
	if err != nil {
		return nil, fmt.Errorf("MatchEmployeeNames: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.val
		FROM jsonb_array_elements_text($1::jsonb) WITH ORDINALITY AS n(val, ord)
		WHERE EXISTS (SELECT 1 FROM employees e WHERE e.name ILIKE '%' || n.val || '%')
		ORDER BY n.ord`, string(arg))
	if err != nil {
		return nil, unavailable("MatchEmployeeNames", err)
	}
	defer rows.Close()

	var matched []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, unavailable("MatchEmployeeNames", err)
		}
		matched = append(matched, name)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("MatchEmployeeNames", err)
	}
	return matched, nil
}

// ListEmployees returns employees ordered by department, then salary descending.
func (s *Store) ListEmployees(ctx context.Context, filter engine.EmployeeFilter) ([]engine.Employee, error) {
	var minSalary any
	if filter.MinSalary != nil {
		minSalary = filter.MinSalary.String()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, department, role, salary, manager_id
		FROM employees
		WHERE $1::numeric IS NULL OR salary > $1::numeric
		ORDER BY department ASC, salary DESC, id ASC`, minSalary)
	if err != nil {
		return nil, unavailable("ListEmployees", err)
	}
	defer rows.Close()

	out := []engine.Employee{}
	for rows.Next() {
		var e engine.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &e.Department, &e.Title, &e.Salary, &e.ManagerID); err != nil {
			return nil, unavailable("ListEmployees", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("ListEmployees", err)
	}
	return out, nil
}

// DepartmentAverages returns the salary average for department, or no rows
// when the department has no employees.
func (s *Store) DepartmentAverages(ctx context.Context, department string) ([]engine.DepartmentAverage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT department, AVG(salary), COUNT(*)
		FROM employees
		WHERE department = $1
		GROUP BY department`, department)
	if err != nil {
		return nil, unavailable("DepartmentAverages", err)
	}
	defer rows.Close()

	out := []engine.DepartmentAverage{}
	for rows.Next() {
		var a engine.DepartmentAverage
		if err := rows.Scan(&a.Department, &a.AvgSalary, &a.Count); err != nil {
			return nil, unavailable("DepartmentAverages", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("DepartmentAverages", err)
	}
	return out, nil
}

// ListUsers returns users joined with the linked employee's name, ordered by role then username.
func (s *Store) ListUsers(ctx context.Context) ([]engine.UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.role, COALESCE(u.department, ''), e.name
		FROM users u
		LEFT JOIN employees e ON u.employee_id = e.id
		ORDER BY u.role, u.username`)
	if err != nil {
		return nil, unavailable("ListUsers", err)
	}
	defer rows.Close()

	out := []engine.UserSummary{}
	for rows.Next() {
		var u engine.UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.Department, &u.EmployeeName); err != nil {
			return nil, unavailable("ListUsers", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("ListUsers", err)
	}
	return out, nil
}

// SeedData is the initial content Seed writes.
type SeedData struct {
	Employees []engine.Employee
	Users     []engine.User
	Rules     []engine.Rule
}

// Seed inserts data in a single transaction, keeping the given ids.
// Existing rows with the same ids are left untouched.
func (s *Store) Seed(ctx context.Context, data SeedData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Seed: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// manager links are set in a second pass so row order does not matter
	for _, e := range data.Employees {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO employees (id, name, email, department, role, salary)
			VALUES ($1, $2, $3, $4, $5, $6::numeric)
			ON CONFLICT (id) DO NOTHING`,
			e.ID, e.Name, e.Email, e.Department, e.Title, e.Salary.String()); err != nil {
			return fmt.Errorf("Seed: employee %d: %w", e.ID, err)
		}
	}
	for _, e := range data.Employees {
		if e.ManagerID == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE employees SET manager_id = $2 WHERE id = $1`, e.ID, *e.ManagerID); err != nil {
			return fmt.Errorf("Seed: employee %d manager: %w", e.ID, err)
		}
	}

	for _, u := range data.Users {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, username, role, employee_id, department)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''))
			ON CONFLICT (id) DO NOTHING`,
			u.ID, u.Username, u.Role, u.EmployeeID, u.Department); err != nil {
			return fmt.Errorf("Seed: user %d: %w", u.ID, err)
		}
	}

	for _, r := range data.Rules {
		trigger, config, roles, err := ruleJSON(r)
		if err != nil {
			return fmt.Errorf("Seed: rule %d: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO guardrail_rules
				(id, rule_name, description, rule_type, trigger_condition, action,
				 target_roles, config, priority, enabled)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5::jsonb, $6,
				ARRAY(SELECT jsonb_array_elements_text($7::jsonb)), $8::jsonb, $9, $10)
			ON CONFLICT (id) DO NOTHING`,
			r.ID, r.Name, r.Description, string(r.Type), string(trigger), string(r.Action),
			string(roles), string(config), r.Priority, r.Enabled); err != nil {
			return fmt.Errorf("Seed: rule %d: %w", r.ID, err)
		}
	}

	// keep the serial sequences ahead of the explicit ids
	for _, table := range []string{"employees", "users", "guardrail_rules"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 1))`, table, table)); err != nil {
			return fmt.Errorf("Seed: sequence %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Seed: %w", err)
	}
	return nil
}

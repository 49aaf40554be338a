package engine

import "context"

// RuleStore returns the rules that apply to a role.
type RuleStore interface {
	// LoadActiveRules returns enabled rules targeting role (or admin),
	// ordered by ascending priority.
	LoadActiveRules(ctx context.Context, role string) ([]Rule, error)
}

// ManagerLookup resolves an employee's manager.
type ManagerLookup interface {
	// LookupManagerID returns the employee's manager id, or nil when the
	// employee has no manager or does not exist.
	LookupManagerID(ctx context.Context, employeeID int64) (*int64, error)
}

// NameMatcher verifies candidate names against the employee directory.
type NameMatcher interface {
	// MatchEmployeeNames returns the subset of names that match at least one
	// employee (case-insensitive partial match) in a single round-trip.
	MatchEmployeeNames(ctx context.Context, names []string) ([]string, error)
}

// Directory is the read-only user and employee directory.
type Directory interface {
	ManagerLookup
	NameMatcher

	// LookupUser returns nil, nil when the user does not exist.
	LookupUser(ctx context.Context, id int64) (*User, error)

	// LookupEmployee returns nil, nil when the employee does not exist.
	LookupEmployee(ctx context.Context, id int64) (*Employee, error)

	// CountEmployeesByName counts employees whose name contains name, case-insensitively.
	CountEmployeesByName(ctx context.Context, name string) (int, error)
}

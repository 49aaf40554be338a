package engine

import (
	"context"
	"fmt"
)

// PermissionViewSalary is the only action the checker grants to non-admins.
const PermissionViewSalary = "view_salary"

// PermissionChecker answers role and hierarchy aware authorization questions.
type PermissionChecker struct {
	managers ManagerLookup
}

// NewPermissionChecker creates a checker that resolves reporting lines through managers.
func NewPermissionChecker(managers ManagerLookup) *PermissionChecker {
	return &PermissionChecker{managers: managers}
}

// CheckPermission reports whether user may perform action on the target employee.
// Unknown actions and roles are denied.
func (c *PermissionChecker) CheckPermission(ctx context.Context, user *User, action string, targetEmployeeID *int64) (bool, error) {
	if user == nil {
		return false, nil
	}
	if user.Role == RoleAdmin {
		return true, nil
	}
	if action != PermissionViewSalary {
		return false, nil
	}

	switch user.Role {
	case RoleEmployee:
		return user.EmployeeID != nil && targetEmployeeID != nil && *user.EmployeeID == *targetEmployeeID, nil
	case RoleManager:
		return c.IsDirectReport(ctx, user.EmployeeID, targetEmployeeID)
	default:
		return false, nil
	}
}

// IsDirectReport reports whether the target's manager is managerID.
// Missing ids on either side are never a direct report.
func (c *PermissionChecker) IsDirectReport(ctx context.Context, managerID, targetEmployeeID *int64) (bool, error) {
	if managerID == nil || targetEmployeeID == nil {
		return false, nil
	}
	got, err := c.managers.LookupManagerID(ctx, *targetEmployeeID)
	if err != nil {
		return false, fmt.Errorf("IsDirectReport: %w", err)
	}
	return got != nil && *got == *managerID, nil
}

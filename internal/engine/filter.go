package engine

// FilterByDepartment keeps only rows from the requester's department.
// Admins see every row. Rows without a department, and every row for a
// requester whose department is unknown, are dropped for non-admins.
func FilterByDepartment(rows []Row, user *User) []Row {
	if user.Role == RoleAdmin {
		return rows
	}
	out := make([]Row, 0, len(rows))
	if user.Department == "" {
		return out
	}
	for _, row := range rows {
		dept, ok := row["department"].(string)
		if ok && dept == user.Department {
			out = append(out, row)
		}
	}
	return out
}

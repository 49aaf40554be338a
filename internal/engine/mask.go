package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

// SalaryRangeSize is the bucket width used when masking salaries.
const SalaryRangeSize = 20000

var (
	rangeSize    = decimal.NewFromInt(SalaryRangeSize)
	thousand     = decimal.NewFromInt(1000)
	maskedSalary = regexp.MustCompile(`^\$-?\d+k-\$-?\d+k$`)
)

// MaskSalary buckets a salary into a "$<lower>k-$<upper>k" range.
// A value that is already a masked range returns ErrAlreadyMasked.
func MaskSalary(v any) (string, error) {
	if s, ok := v.(string); ok && maskedSalary.MatchString(s) {
		return "", ErrAlreadyMasked
	}
	salary, err := toDecimal(v)
	if err != nil {
		return "", err
	}
	lower := salary.Div(rangeSize).Floor().Mul(rangeSize)
	upper := lower.Add(rangeSize)
	return fmt.Sprintf("$%dk-$%dk", lower.Div(thousand).IntPart(), upper.Div(thousand).IntPart()), nil
}

// SalaryMasker replaces salaries the requester may not see exactly.
type SalaryMasker struct {
	checker *PermissionChecker
}

// NewSalaryMasker creates a masker that resolves direct reports through checker.
func NewSalaryMasker(checker *PermissionChecker) *SalaryMasker {
	return &SalaryMasker{checker: checker}
}

// Mask returns copies of rows with salaries bucketed where required.
// Admins see exact values; managers see exact values for direct reports,
// keyed by the row's id; everyone else sees ranges. Masked rows carry
// salary_masked=true. Rows that are already masked pass through unchanged.
func (m *SalaryMasker) Mask(ctx context.Context, rows []Row, user *User) ([]Row, error) {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		value, ok := row[MaskedSalaryField]
		if !ok || user.Role == RoleAdmin {
			out = append(out, row)
			continue
		}

		if user.Role == RoleManager {
			exact, err := m.checker.IsDirectReport(ctx, user.EmployeeID, rowID(row))
			if err != nil {
				return nil, fmt.Errorf("Mask: %w", err)
			}
			if exact {
				out = append(out, row)
				continue
			}
		}

		label, err := MaskSalary(value)
		if errors.Is(err, ErrAlreadyMasked) {
			out = append(out, row)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("Mask: row %v: %w", row["id"], err)
		}

		masked := maps.Clone(row)
		masked[MaskedSalaryField] = label
		masked["salary_masked"] = true
		out = append(out, masked)
	}
	return out, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, errors.New("nil salary")
		}
		return *n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(n)
	default:
		return decimal.Zero, fmt.Errorf("unsupported salary value of type %T", v)
	}
}

// rowID extracts the employee id of a row, or nil if it has none.
func rowID(row Row) *int64 {
	var id int64
	switch v := row["id"].(type) {
	case int64:
		id = v
	case int:
		id = int64(v)
	case int32:
		id = int64(v)
	case float64:
		id = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil
		}
		id = n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		id = n
	default:
		return nil
	}
	return &id
}

// Package tools provides the simulated agent tools the pipeline can invoke.
package tools

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
)

// EmployeeSource is the directory view the database tool reads from.
type EmployeeSource interface {
	// ListEmployees returns employees ordered by department, then salary descending.
	ListEmployees(ctx context.Context, filter engine.EmployeeFilter) ([]engine.Employee, error)

	DepartmentAverages(ctx context.Context, department string) ([]engine.DepartmentAverage, error)
}

var thresholdPattern = regexp.MustCompile(`over\s*\$?(\d[\d,]*)(k?)`)

// thousandsCutoff separates amounts in thousands ("over $150") from whole
// dollar amounts ("over 150,000").
const thousandsCutoff = 1000

// SalaryThreshold parses an "over $N" cue. N is in thousands when it carries
// a k suffix or is below 1000, and in dollars otherwise.
func SalaryThreshold(query string) (decimal.Decimal, bool) {
	m := thresholdPattern.FindStringSubmatch(strings.ToLower(query))
	if m == nil {
		return decimal.Zero, false
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	if err != nil || n == 0 {
		return decimal.Zero, false
	}
	amount := decimal.NewFromInt(n)
	if m[2] == "k" || n < thousandsCutoff {
		amount = amount.Mul(decimal.NewFromInt(1000))
	}
	return amount, true
}

// DatabaseQuery answers employee questions from the directory.
type DatabaseQuery struct {
	employees EmployeeSource
}

func NewDatabaseQuery(employees EmployeeSource) *DatabaseQuery {
	return &DatabaseQuery{employees: employees}
}

func (t *DatabaseQuery) Name() string { return engine.ToolDatabaseQuery }

// Invoke returns department averages for the requester's department when the
// query asks for an average, and row-level employee records otherwise.
func (t *DatabaseQuery) Invoke(ctx context.Context, query string, user *engine.User) (engine.ToolResult, error) {
	if strings.Contains(strings.ToLower(query), "average") {
		avgs, err := t.employees.DepartmentAverages(ctx, user.Department)
		if err != nil {
			return engine.ToolResult{}, fmt.Errorf("database_query averages: %w", err)
		}
		data := make([]engine.Row, 0, len(avgs))
		for _, a := range avgs {
			data = append(data, engine.Row{
				"department": a.Department,
				"avg_salary": a.AvgSalary.Round(2),
				"count":      a.Count,
			})
		}
		return engine.ToolResult{
			Data: data,
			Metadata: map[string]any{
				"tool":       engine.ToolDatabaseQuery,
				"count":      len(data),
				"aggregated": true,
			},
		}, nil
	}

	var filter engine.EmployeeFilter
	if threshold, ok := SalaryThreshold(query); ok {
		filter.MinSalary = &threshold
	}
	employees, err := t.employees.ListEmployees(ctx, filter)
	if err != nil {
		return engine.ToolResult{}, fmt.Errorf("database_query employees: %w", err)
	}

	data := make([]engine.Row, 0, len(employees))
	for _, e := range employees {
		data = append(data, engine.Row{
			"id":         e.ID,
			"name":       e.Name,
			"email":      e.Email,
			"department": e.Department,
			"role":       e.Title,
			"salary":     e.Salary,
		})
	}
	meta := map[string]any{
		"tool":  engine.ToolDatabaseQuery,
		"count": len(data),
	}
	if filter.MinSalary != nil {
		meta["salary_threshold"] = *filter.MinSalary
	}
	return engine.ToolResult{Data: data, Metadata: meta}, nil
}

// WebSearch returns canned market-data results.
type WebSearch struct{}

func (WebSearch) Name() string { return engine.ToolWebSearch }

func (WebSearch) Invoke(_ context.Context, query string, _ *engine.User) (engine.ToolResult, error) {
	return engine.ToolResult{
		Data: []engine.Row{
			{
				"title":   "Senior Software Engineer Salary Guide 2024",
				"url":     "https://example.com/salary-guide",
				"snippet": "Senior Software Engineers earn between $120k-$180k...",
			},
			{
				"title":   "Tech Salary Trends",
				"url":     "https://example.com/trends",
				"snippet": "Market rates for senior engineers have increased...",
			},
		},
		Metadata: map[string]any{
			"tool":  engine.ToolWebSearch,
			"count": 2,
			"query": query,
		},
	}, nil
}

package memstore

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
)

//go:embed fixtures/demo.yaml
var demoFixture []byte

// Fixture is the YAML document a Store is seeded from.
type Fixture struct {
	Employees []FixtureEmployee `yaml:"employees"`
	Users     []engine.User     `yaml:"users"`
	Rules     []engine.Rule     `yaml:"rules"`
}

// FixtureEmployee carries the salary as a decimal string so no precision is lost.
type FixtureEmployee struct {
	ID         int64  `yaml:"id"`
	Name       string `yaml:"name"`
	Email      string `yaml:"email"`
	Department string `yaml:"department"`
	Title      string `yaml:"title"`
	Salary     string `yaml:"salary"`
	ManagerID  *int64 `yaml:"manager_id"`
}

// ParseFixture decodes and checks a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ParseFixture: %w", err)
	}
	if err := f.check(); err != nil {
		return nil, fmt.Errorf("ParseFixture: %w", err)
	}
	return &f, nil
}

// LoadFixtureFile reads a fixture from path.
func LoadFixtureFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFixtureFile: %w", err)
	}
	return ParseFixture(data)
}

// DemoFixture returns the embedded demo fixture.
func DemoFixture() *Fixture {
	f, err := ParseFixture(demoFixture)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Fixture) check() error {
	employees := make(map[int64]bool, len(f.Employees))
	for _, e := range f.Employees {
		if employees[e.ID] {
			return fmt.Errorf("duplicate employee id %d", e.ID)
		}
		employees[e.ID] = true
		if _, err := decimal.NewFromString(e.Salary); err != nil {
			return fmt.Errorf("employee %d: salary %q: %w", e.ID, e.Salary, err)
		}
	}
	for _, e := range f.Employees {
		if e.ManagerID != nil && !employees[*e.ManagerID] {
			return fmt.Errorf("employee %d: unknown manager %d", e.ID, *e.ManagerID)
		}
	}

	users := make(map[int64]bool, len(f.Users))
	for _, u := range f.Users {
		if users[u.ID] {
			return fmt.Errorf("duplicate user id %d", u.ID)
		}
		users[u.ID] = true
		if u.EmployeeID != nil && !employees[*u.EmployeeID] {
			return fmt.Errorf("user %d: unknown employee %d", u.ID, *u.EmployeeID)
		}
	}

	names := make(map[string]bool, len(f.Rules))
	for _, r := range f.Rules {
		if names[r.Name] {
			return fmt.Errorf("duplicate rule name %q", r.Name)
		}
		names[r.Name] = true
	}
	return nil
}

// DirectoryEmployees returns the fixture employees as directory records.
func (f *Fixture) DirectoryEmployees() []engine.Employee {
	out := make([]engine.Employee, 0, len(f.Employees))
	for _, e := range f.Employees {
		out = append(out, e.employee())
	}
	return out
}

func (e FixtureEmployee) employee() engine.Employee {
	return engine.Employee{
		ID:         e.ID,
		Name:       e.Name,
		Email:      e.Email,
		Department: e.Department,
		Title:      e.Title,
		Salary:     decimal.RequireFromString(e.Salary),
		ManagerID:  e.ManagerID,
	}
}

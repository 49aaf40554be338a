package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestEvaluate_Blocked(t *testing.T) {
	out, err := run(t, "evaluate", "--user-id", "5", "--query", "What is Alisha's salary?")
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, true, resp["blocked"])
	assert.Equal(t, []any{"block_salary_queries"}, resp["hooks_triggered"])
}

func TestEvaluate_ToolsFlag(t *testing.T) {
	out, err := run(t, "evaluate", "--user-id", "6", "--query", "latest industry news", "--tools", "web_search")
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, false, resp["blocked"])
	meta := resp["metadata"].(map[string]any)
	assert.Equal(t, []any{"web_search"}, meta["tools_used"])
}

func TestEvaluate_Errors(t *testing.T) {
	_, err := run(t, "evaluate", "--query", "hello")
	assert.Error(t, err, "user-id is required")

	_, err = run(t, "evaluate", "--user-id", "5")
	assert.ErrorContains(t, err, "--query is required")

	_, err = run(t, "evaluate", "--user-id", "99", "--query", "hello")
	assert.ErrorContains(t, err, "not found")
}

func TestScenarios_AllPass(t *testing.T) {
	out, err := run(t, "scenarios")
	require.NoError(t, err, out)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[0], "EXPECTED")
	for _, l := range lines[1:] {
		assert.Contains(t, l, "PASS")
	}
}

func TestScenarios_CustomFixtureWithoutRules(t *testing.T) {
	fixture := `
employees:
  - {id: 1, name: Sarah Chen, email: sarah@example.com, department: Engineering, title: Director, salary: "180000"}
users:
  - {id: 5, username: david_employee, role: employee, employee_id: 1, department: Engineering}
rules: []
`
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	out, err := run(t, "scenarios", "--fixture", path)
	assert.ErrorContains(t, err, "did not match expectations")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "SKIP (user missing)")
}

func TestHashKey(t *testing.T) {
	out, err := run(t, "hash-key", "gsk_cli_key")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("gsk_cli_key")))

	_, err = run(t, "hash-key")
	assert.Error(t, err)
}

func TestSeed_RequiresDSN(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GUARDRAILS_POSTGRES_DSN", "")

	_, err := run(t, "seed")
	assert.ErrorContains(t, err, "--dsn or postgres.dsn is required")
}

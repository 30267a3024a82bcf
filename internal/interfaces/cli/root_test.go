package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TransitLedger/internal/application/settlement"
	"github.com/turtacn/TransitLedger/internal/config"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type mockMigrator struct{ mock.Mock }

func (m *mockMigrator) Up() error { return m.Called().Error(0) }

func (m *mockMigrator) Down(steps int) error { return m.Called(steps).Error(0) }

func (m *mockMigrator) Force(v int) error { return m.Called(v).Error(0) }

func (m *mockMigrator) Status() (uint, bool, error) {
	args := m.Called()
	return args.Get(0).(uint), args.Bool(1), args.Error(2)
}

type fakeScanner struct {
	result *settlement.ScanResult
	err    error
	calls  int
}

func (f *fakeScanner) Scan(context.Context) (*settlement.ScanResult, error) {
	f.calls++
	return f.result, f.err
}

// withDatabaseEnv makes LoadFromEnv succeed.
func withDatabaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TRANSITLEDGER_DATABASE_USER", "transit")
}

func run(t *testing.T, deps CommandDependencies, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(deps)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// ─────────────────────────────────────────────────────────────────────────────
// Root
// ─────────────────────────────────────────────────────────────────────────────

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand(CommandDependencies{})

	assert.Equal(t, "transitctl", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"demurrage", "migrate", "missions"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}

	for _, flag := range []string{"config", "log-level", "output", "verbose", "timeout"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing flag %q", flag)
	}
	assert.Equal(t, "table", cmd.PersistentFlags().Lookup("output").DefValue)
}

func TestGetCLIContext_Missing(t *testing.T) {
	cmd := NewRootCommand(CommandDependencies{})
	_, err := GetCLIContext(cmd)
	assert.Error(t, err)
}

func TestFormatTable(t *testing.T) {
	out := FormatTable([]string{"A", "LONG"}, [][]string{{"xyz", "1"}, {"é", "22"}})
	assert.Equal(t, "A    LONG\n---  ----\nxyz  1   \né    22  \n", out)
	assert.Empty(t, FormatTable(nil, nil))
}

// ─────────────────────────────────────────────────────────────────────────────
// demurrage
// ─────────────────────────────────────────────────────────────────────────────

func TestDemurrageCmd_JSON(t *testing.T) {
	out, err := run(t, CommandDependencies{},
		"demurrage", "--arrival", "2025-01-06", "--unloading", "2025-01-13", "-o", "json")
	require.NoError(t, err)

	var got struct {
		Result struct {
			JoursFacturables int    `json:"jours_facturables"`
			Montant          string `json:"montant"`
			Statut           string `json:"statut"`
		} `json:"stationnement"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, 5, got.Result.JoursFacturables)
	assert.Equal(t, "125000", got.Result.Montant)
	assert.Equal(t, "decharge", got.Result.Statut)
}

func TestDemurrageCmd_Table_PendingUsesToday(t *testing.T) {
	out, err := run(t, CommandDependencies{},
		"demurrage", "--arrival", "2025-01-06", "--today", "2025-01-10")
	require.NoError(t, err)

	assert.Contains(t, out, "CHAMP")
	assert.Contains(t, out, "50000 FCFA")
	assert.NotContains(t, out, "Date de déchargement")
}

func TestDemurrageCmd_InvalidInput(t *testing.T) {
	_, err := run(t, CommandDependencies{}, "demurrage")
	assert.Error(t, err, "--arrival is required")

	_, err = run(t, CommandDependencies{}, "demurrage", "--arrival", "06/01/2025")
	assert.ErrorContains(t, err, "expected YYYY-MM-DD")

	_, err = run(t, CommandDependencies{},
		"demurrage", "--arrival", "2025-01-13", "--unloading", "2025-01-06")
	assert.ErrorContains(t, err, "before --arrival")
}

// ─────────────────────────────────────────────────────────────────────────────
// migrate
// ─────────────────────────────────────────────────────────────────────────────

func TestMigrateCmd_RequiresConfig(t *testing.T) {
	t.Setenv("TRANSITLEDGER_DATABASE_USER", "")
	m := &mockMigrator{}
	_, err := run(t, CommandDependencies{NewMigrator: func(*config.Config) Migrator { return m }},
		"migrate", "up")
	assert.ErrorContains(t, err, "configuration required")
	m.AssertNotCalled(t, "Up")
}

func TestMigrateCmd_Subcommands(t *testing.T) {
	withDatabaseEnv(t)

	var seen *config.Config
	m := &mockMigrator{}
	deps := CommandDependencies{NewMigrator: func(cfg *config.Config) Migrator {
		seen = cfg
		return m
	}}

	m.On("Up").Return(nil).Once()
	out, err := run(t, deps, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "OK: schema up to date")
	require.NotNil(t, seen)
	assert.Equal(t, "transit", seen.Database.User)
	assert.Equal(t, config.DefaultDBMigrationPath, seen.Database.MigrationPath)

	m.On("Down", 2).Return(nil).Once()
	out, err = run(t, deps, "migrate", "down", "--steps", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "rolled back 2 migration(s)")

	m.On("Status").Return(uint(7), true, nil).Once()
	out, err = run(t, deps, "migrate", "status", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":7,"dirty":true}`, out)

	m.On("Force", 6).Return(nil).Once()
	_, err = run(t, deps, "migrate", "force", "6")
	require.NoError(t, err)

	m.AssertExpectations(t)
}

func TestMigrateCmd_Errors(t *testing.T) {
	withDatabaseEnv(t)
	m := &mockMigrator{}
	deps := CommandDependencies{NewMigrator: func(*config.Config) Migrator { return m }}

	_, err := run(t, deps, "migrate", "force", "abc")
	assert.ErrorContains(t, err, "invalid version")

	m.On("Up").Return(errors.New("dirty database version 3")).Once()
	_, err = run(t, deps, "migrate", "up")
	assert.ErrorContains(t, err, "dirty database")
}

// ─────────────────────────────────────────────────────────────────────────────
// missions check-overdue
// ─────────────────────────────────────────────────────────────────────────────

func TestMissionsCheckOverdue(t *testing.T) {
	withDatabaseEnv(t)

	scanner := &fakeScanner{result: &settlement.ScanResult{
		Day:      time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		Overdue:  4,
		Notified: 3,
		Skipped:  1,
	}}
	cleaned := false
	deps := CommandDependencies{
		NewScanner: func(ctx context.Context, cctx *CLIContext) (OverdueScanner, func(), error) {
			assert.NotNil(t, cctx.Config)
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return scanner, func() { cleaned = true }, nil
		},
	}

	out, err := run(t, deps, "missions", "check-overdue")
	require.NoError(t, err)
	assert.Equal(t, 1, scanner.calls)
	assert.True(t, cleaned)
	assert.Contains(t, out, "03/02/2025")
	assert.Contains(t, out, "EN RETARD")

	out, err = run(t, deps, "missions", "check-overdue", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"missions_en_retard": 4`)
}

func TestMissionsCheckOverdue_Failures(t *testing.T) {
	withDatabaseEnv(t)

	_, err := run(t, CommandDependencies{}, "missions", "check-overdue")
	assert.ErrorContains(t, err, "not available")

	deps := CommandDependencies{
		NewScanner: func(context.Context, *CLIContext) (OverdueScanner, func(), error) {
			return nil, nil, errors.New("dial tcp: connection refused")
		},
	}
	_, err = run(t, deps, "missions", "check-overdue")
	assert.ErrorContains(t, err, "connection refused")

	scanner := &fakeScanner{err: errors.New("lock busy")}
	deps.NewScanner = func(context.Context, *CLIContext) (OverdueScanner, func(), error) {
		return scanner, nil, nil
	}
	_, err = run(t, deps, "missions", "check-overdue")
	assert.ErrorContains(t, err, "lock busy")
}

package postgres

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	upErr      error
	stepsErr   error
	steps      int
	version    uint
	dirty      bool
	versionErr error
	forced     int
	closed     bool
}

func (f *fakeMigrator) Up() error                    { return f.upErr }
func (f *fakeMigrator) Steps(n int) error            { f.steps = n; return f.stepsErr }
func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeMigrator) Force(v int) error            { f.forced = v; return nil }
func (f *fakeMigrator) Close() (error, error)        { f.closed = true; return nil, nil }

func withFakeMigrator(t *testing.T, f *fakeMigrator, newErr error) {
	t.Helper()
	original := migrateNew
	t.Cleanup(func() { migrateNew = original })
	migrateNew = func(_, _ string) (migrator, error) {
		if newErr != nil {
			return nil, newErr
		}
		return f, nil
	}
}

func TestMigrateUp(t *testing.T) {
	f := &fakeMigrator{upErr: migrate.ErrNoChange}
	withFakeMigrator(t, f, nil)
	require.NoError(t, MigrateUp("postgres://x", "file://migrations"))
	assert.True(t, f.closed)

	f.upErr = errors.New("syntax error")
	err := MigrateUp("postgres://x", "file://migrations")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to run migrations")
}

func TestMigrateUp_CreateFailure(t *testing.T) {
	withFakeMigrator(t, nil, errors.New("no such dir"))
	err := MigrateUp("postgres://x", "file://missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create migrate instance")
}

func TestMigrateDown(t *testing.T) {
	f := &fakeMigrator{}
	withFakeMigrator(t, f, nil)

	require.NoError(t, MigrateDown("postgres://x", "file://migrations", 2))
	assert.Equal(t, -2, f.steps)

	assert.Error(t, MigrateDown("postgres://x", "file://migrations", 0))

	f.stepsErr = migrate.ErrNoChange
	err := MigrateDown("postgres://x", "file://migrations", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no migrations to roll back")
}

func TestMigrationStatus(t *testing.T) {
	f := &fakeMigrator{version: 3, dirty: true}
	withFakeMigrator(t, f, nil)

	v, dirty, err := MigrationStatus("postgres://x", "file://migrations")
	require.NoError(t, err)
	assert.Equal(t, uint(3), v)
	assert.True(t, dirty)

	f.versionErr = migrate.ErrNilVersion
	v, dirty, err = MigrationStatus("postgres://x", "file://migrations")
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)
}

func TestForceMigrationVersion(t *testing.T) {
	f := &fakeMigrator{}
	withFakeMigrator(t, f, nil)
	require.NoError(t, ForceMigrationVersion("postgres://x", "file://migrations", 1))
	assert.Equal(t, 1, f.forced)
}

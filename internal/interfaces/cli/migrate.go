package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/TransitLedger/internal/config"
	"github.com/turtacn/TransitLedger/internal/infrastructure/database/postgres"
)

// Migrator manages the database schema version.
type Migrator interface {
	Up() error
	Down(steps int) error
	Status() (version uint, dirty bool, err error)
	Force(version int) error
}

type postgresMigrator struct {
	dbURL  string
	source string
}

func newPostgresMigrator(cfg *config.Config) Migrator {
	return postgresMigrator{
		dbURL:  postgres.DSN(postgres.FromConfig(cfg.Database)),
		source: cfg.Database.MigrationPath,
	}
}

func (m postgresMigrator) Up() error {
	return postgres.MigrateUp(m.dbURL, m.source)
}

func (m postgresMigrator) Down(steps int) error {
	return postgres.MigrateDown(m.dbURL, m.source, steps)
}

func (m postgresMigrator) Force(version int) error {
	return postgres.ForceMigrationVersion(m.dbURL, m.source, version)
}

func (m postgresMigrator) Status() (uint, bool, error) {
	return postgres.MigrationStatus(m.dbURL, m.source)
}

// MigrationState is the printable schema status.
type MigrationState struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (s MigrationState) TableHeaders() []string { return []string{"VERSION", "DIRTY"} }

func (s MigrationState) TableRows() [][]string {
	return [][]string{{strconv.FormatUint(uint64(s.Version), 10), strconv.FormatBool(s.Dirty)}}
}

// NewMigrateCmd manages the schema with golang-migrate.
func NewMigrateCmd(newMigrator func(cfg *config.Config) Migrator) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrator := func(cmd *cobra.Command) (Migrator, error) {
		cliCtx, err := GetCLIContext(cmd)
		if err != nil {
			return nil, err
		}
		if err := cliCtx.RequireConfig(); err != nil {
			return nil, err
		}
		return newMigrator(cliCtx.Config), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator(cmd)
			if err != nil {
				return err
			}
			if err := m.Up(); err != nil {
				return err
			}
			PrintSuccess(cmd, "schema up to date")
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator(cmd)
			if err != nil {
				return err
			}
			if err := m.Down(steps); err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("rolled back %d migration(s)", steps))
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator(cmd)
			if err != nil {
				return err
			}
			v, dirty, err := m.Status()
			if err != nil {
				return err
			}
			return PrintResult(cmd, MigrationState{Version: v, Dirty: dirty})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version after a failed migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 0 {
				return fmt.Errorf("invalid version %q", args[0])
			}
			m, err := migrator(cmd)
			if err != nil {
				return err
			}
			if err := m.Force(v); err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("schema version forced to %d", v))
			return nil
		},
	})

	return cmd
}

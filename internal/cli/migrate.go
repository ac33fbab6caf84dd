package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/coremodel/coremodel/internal/app"
	"github.com/coremodel/coremodel/internal/config"
	"github.com/coremodel/coremodel/internal/migrate"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the embedded schema migrations",
		Long: `Apply or inspect the embedded schema migrations.

The postgres and sqlite backends use versioned SQL migrations. The gorm
backend creates its tables with AutoMigrate, so only "migrate up" applies.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateUp,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE:  runMigrateDown,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE:  runMigrateStatus,
	})

	return cmd
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	cfg := getConfig(cmd)
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if cfg.StoreBackend == config.BackendGorm {
		st, err := app.OpenStore(ctx, cfg, newLogger(cmd, cfg))
		if err != nil {
			return fmt.Errorf("open store: %s", app.SanitizeError(err, cfg.DatabaseURL))
		}
		defer func() { _ = st.Close() }()

		if _, err := app.MigrateStore(ctx, cfg, st); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, "schema up to date (gorm AutoMigrate)")
		return nil
	}

	m, release, err := app.OpenMigrator(ctx, cfg, nil)
	if err != nil {
		return migratorError(cfg, err)
	}
	defer release()

	n, err := m.Up(ctx)
	if err != nil {
		return err
	}
	version, err := m.Version(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "applied %d migration(s), schema version %d\n", n, version)
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	cfg := getConfig(cmd)
	ctx := cmd.Context()

	m, release, err := app.OpenMigrator(ctx, cfg, nil)
	if err != nil {
		return migratorError(cfg, err)
	}
	defer release()

	if err := m.Down(ctx); err != nil {
		return err
	}
	version, err := m.Version(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "rolled back one migration, schema version %d\n", version)
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	cfg := getConfig(cmd)
	ctx := cmd.Context()

	m, release, err := app.OpenMigrator(ctx, cfg, nil)
	if err != nil {
		return migratorError(cfg, err)
	}
	defer release()

	statuses, err := m.Status(ctx)
	if err != nil {
		return err
	}
	renderStatus(cmd.OutOrStdout(), statuses)
	return nil
}

func migratorError(cfg *config.Config, err error) error {
	if errors.Is(err, app.ErrUnsupportedForGorm) {
		return err
	}
	return fmt.Errorf("open migrator: %s", app.SanitizeError(err, cfg.DatabaseURL))
}

func renderStatus(w io.Writer, statuses []migrate.MigrationStatus) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Version", "Source", "State", "Applied At"})

	for _, s := range statuses {
		state, appliedAt := "pending", ""
		if s.Applied {
			state = "applied"
			appliedAt = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{s.Version, s.Source, state, appliedAt})
	}

	t.Render()
}

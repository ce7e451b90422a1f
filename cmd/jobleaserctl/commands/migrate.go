package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/jobleaser/internal/config"
	"github.com/kiranshivaraju/jobleaser/internal/store"
	"github.com/urfave/cli/v3"
)

// MigrateAction applies pending schema migrations.
func MigrateAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dir := cmd.String("dir")

	if err := store.RunMigrations(cfg.Database.URL, dir); err != nil {
		return err
	}
	slog.Info("database migrations applied", "dir", dir)
	return nil
}

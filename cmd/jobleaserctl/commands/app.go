// Package commands implements the jobleaserctl subcommands.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/jobleaser/internal/config"
	"github.com/kiranshivaraju/jobleaser/internal/logger"
	"github.com/kiranshivaraju/jobleaser/internal/store"
	"github.com/urfave/cli/v3"
)

// AppContext holds what every database-backed subcommand needs.
type AppContext struct {
	Config *config.Config
	Pool   *pgxpool.Pool
	Store  *store.PostgresStore
}

// NewAppContext loads config from envFile and connects to the database.
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.New(cfg.Log.Level, cfg.Log.Format)

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &AppContext{
		Config: cfg,
		Pool:   pool,
		Store:  store.NewPostgresStore(pool),
	}, nil
}

// Close releases the database pool.
func (a *AppContext) Close() {
	a.Pool.Close()
}

func out(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

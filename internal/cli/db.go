// Package cli holds the demandesctl subcommands.
package cli

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/demandes-api/pkg/config"
	"github.com/noah-isme/demandes-api/pkg/database"
)

// openDatabase loads the API configuration and connects to its database.
func openDatabase(ctx context.Context) (*config.Config, *sqlx.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return cfg, db, nil
}

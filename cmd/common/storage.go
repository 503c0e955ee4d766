package common

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/config"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/database"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/history"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/jobstore"
)

// Stores bundles the durable stores sharing one database handle.
type Stores struct {
	DB      *sqlx.DB
	Jobs    *jobstore.SQLStore
	History *history.SQLStore
}

// OpenStores connects to the configured database and applies the schema.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig) (*Stores, error) {
	db, err := database.Open(ctx, database.Config{Driver: cfg.Driver, DSN: cfg.DSN})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	return &Stores{
		DB:      db,
		Jobs:    jobstore.NewSQLStore(db),
		History: history.NewSQLStore(db),
	}, nil
}

// Close closes the database handle.
func (s *Stores) Close() error {
	return s.DB.Close()
}

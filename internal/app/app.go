package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"sellconfig/internal/config"
	"sellconfig/internal/db"
	"sellconfig/internal/engine"
	"sellconfig/internal/logging"
	"sellconfig/internal/migrate"
)

// Runtime bundles the opened workspace.
type Runtime struct {
	DB       *sql.DB
	Engine   engine.Engine
	Defaults *config.Config
	// SchemaVersion is the goose version applied to DB.
	SchemaVersion int64
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// LoadDefaults reads sellconfig.yml from the workspace, falling back to the
// built-in defaults when the file is absent.
func LoadDefaults(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", config.Path(workspace), err)
	}
	if cfg == nil {
		return config.Default(), nil
	}
	return cfg, nil
}

// Open opens the workspace database, applies migrations and builds the engine.
func Open(ctx context.Context, workspace string, log *zap.Logger) (*Runtime, error) {
	log = logging.OrNop(log)
	defaults, err := LoadDefaults(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn, log); err != nil {
		conn.Close()
		return nil, err
	}
	version, err := migrate.Version(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	log.Debug("workspace opened", zap.String("db", db.Path(workspace)), zap.Int64("schema_version", version))
	return &Runtime{
		DB:            conn,
		Engine:        engine.New(conn, defaults, log),
		Defaults:      defaults,
		SchemaVersion: version,
	}, nil
}

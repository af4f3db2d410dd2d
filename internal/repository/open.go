package repository

import (
	"context"
	"fmt"

	"patientmon/internal/config"
)

// Open returns the store selected by cfg.Backend. Postgres tables are created if missing.
func Open(ctx context.Context, cfg config.RepositoryConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return NewMemory(), nil
	case config.BackendFile:
		return NewFile(cfg.PatientsFile), nil
	case config.BackendPostgres:
		pg, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown repository backend %q", cfg.Backend)
	}
}

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"steading.world/internal/persistence/indexdb"
	"steading.world/internal/sim/catalogs"
	"steading.world/internal/sim/tuning"
	"steading.world/internal/sim/world"
)

type runtimeIndex interface {
	world.DayLogger
	RecordWeek(rec world.WeekRecord)
	Stats() indexdb.Stats
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	Close() error
}

func openIndexBackend(dataDir, steadingID string, tune tuning.Tuning, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("STEADING_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(indexdb.SQLiteConfig{
			Path:          filepath.Join(dataDir, "index", "steading.sqlite"),
			CommitEvery:   tune.IndexCommitEvery,
			CommitMaxWait: time.Duration(tune.IndexCommitMaxWaitMs) * time.Millisecond,
		})
	case "postgres", "pg":
		dsn := strings.TrimSpace(os.Getenv("STEADING_INDEX_PG_DSN"))
		if dsn == "" {
			return nil, fmt.Errorf("STEADING_INDEX_BACKEND=%s but STEADING_INDEX_PG_DSN is empty", backend)
		}
		idx, err := indexdb.OpenPG(indexdb.PGConfig{
			DSN:           dsn,
			Steading:      steadingID,
			BatchSize:     envInt("STEADING_INDEX_PG_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("STEADING_INDEX_PG_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported STEADING_INDEX_BACKEND: %s", backend)
	}
}

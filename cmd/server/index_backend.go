package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"veinlocate.ai/internal/persistence/indexdb"
	"veinlocate.ai/internal/sim/catalogs"
	"veinlocate.ai/internal/sim/command"
	"veinlocate.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	command.QueryLogger
	Close() error
	UpsertCatalogs(configDir string, veins *catalogs.Veins, tune tuning.Tuning) error
	Recent(ctx context.Context, limit int) ([]command.QueryRecord, error)
}

func indexPath(dataDir string) string {
	return filepath.Join(dataDir, "index", "queries.sqlite")
}

func openRuntimeIndex(dataDir string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VL_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		logger.Printf("index backend disabled (VL_INDEX_BACKEND=%s)", backend)
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(indexPath(dataDir))
	case "d1":
		endpoint := strings.TrimSpace(os.Getenv("VL_INDEX_D1_INGEST_URL"))
		if endpoint == "" {
			return nil, fmt.Errorf("VL_INDEX_BACKEND=d1 but VL_INDEX_D1_INGEST_URL is empty")
		}
		return indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("VL_INDEX_D1_TOKEN")),
			Instance:      strings.TrimSpace(os.Getenv("VL_INDEX_D1_INSTANCE")),
			BatchSize:     envInt("VL_INDEX_D1_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("VL_INDEX_D1_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unknown VL_INDEX_BACKEND %q", backend)
	}
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

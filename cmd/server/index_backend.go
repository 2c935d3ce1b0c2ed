package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"plenisher.ai/internal/persistence/indexdb"
	"plenisher.ai/internal/persistence/snapshot"
	"plenisher.ai/internal/protocol"
	"plenisher.ai/internal/sim/catalogs"
	"plenisher.ai/internal/sim/tuning"
	"plenisher.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.AuditLogger
	world.StateLogger
	Close() error
	Stats() indexdb.Stats
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

func openRuntimeIndex(worldDir string, disableDB bool, log logrus.FieldLogger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("PLEN_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		log.Info("index backend disabled")
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		log.WithField("path", dbPath).Info("index backend opened")
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported PLEN_INDEX_BACKEND: %s", backend)
	}
}

// fanout forwards world log records to the file loggers and, when enabled,
// the index. Errors from either side are not fatal to the world loop.
type fanout struct {
	tick  world.TickLogger
	audit world.AuditLogger
	state world.StateLogger
	idx   runtimeIndex
}

func (f fanout) WriteTick(entry world.TickLogEntry) error {
	if f.tick != nil {
		_ = f.tick.WriteTick(entry)
	}
	if f.idx != nil {
		_ = f.idx.WriteTick(entry)
	}
	return nil
}

func (f fanout) WriteAudit(entry world.AuditEntry) error {
	if f.audit != nil {
		_ = f.audit.WriteAudit(entry)
	}
	if f.idx != nil {
		_ = f.idx.WriteAudit(entry)
	}
	return nil
}

func (f fanout) WriteMachineState(msg protocol.MachineStateMsg) error {
	if f.state != nil {
		_ = f.state.WriteMachineState(msg)
	}
	if f.idx != nil {
		_ = f.idx.WriteMachineState(msg)
	}
	return nil
}

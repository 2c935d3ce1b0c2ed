package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"plenisher.ai/internal/logging"
	persistlog "plenisher.ai/internal/persistence/log"
	"plenisher.ai/internal/persistence/snapshot"
	"plenisher.ai/internal/sim/catalogs"
	"plenisher.ai/internal/sim/machine"
	"plenisher.ai/internal/sim/tuning"
	"plenisher.ai/internal/sim/world"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		dim        = flag.String("dim", "overworld", "dimension name of the world")
		seed       = flag.Int64("seed", 1337, "world seed (used only when starting a fresh world)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit/state + catalogs + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := logging.New(os.Stdout)
	log := logger.WithField("component", "server")

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		log.WithError(err).Fatal("load catalogs")
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	// Tuning is required for a fresh world; a resume can fall back to
	// defaults since the snapshot carries the world shape.
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad != "" && os.IsNotExist(tuneErr) {
			log.WithField("path", tp).Warn("tuning not found; using defaults")
			tune = tuning.Defaults()
		} else {
			log.WithError(tuneErr).Fatal("load tuning")
		}
	}

	idx, err := openRuntimeIndex(worldDir, *disableDB, log)
	if err != nil {
		log.WithError(err).Fatal("open index backend")
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			log.WithError(err).Warn("index backend: upsert catalogs")
		}
	}

	cfg := world.WorldConfig{
		ID:                 *worldID,
		Dim:                *dim,
		TickRateHz:         tune.TickRateHz,
		Height:             tune.Height,
		Seed:               *seed,
		LoadRadius:         tune.LoadRadiusChunks,
		SnapshotEveryTicks: uint64(tune.SnapshotEveryTicks),
		Machine:            machine.ConfigFromTuning(tune.Plenisher),
	}

	var w *world.World
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			log.WithError(err).Fatal("read snapshot")
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			log.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		cfg.TickRateHz = snap.TickRate
		cfg.Height = snap.Height
		cfg.Seed = snap.Seed
		if snap.LoadRadius > 0 {
			cfg.LoadRadius = snap.LoadRadius
		}
		w, err = world.New(cfg, cats, logger)
		if err != nil {
			log.WithError(err).Fatal("world")
		}
		if err := w.ImportSnapshot(snap); err != nil {
			log.WithError(err).Fatal("import snapshot")
		}
		log.WithFields(logrus.Fields{
			"snapshot": filepath.Base(snapshotToLoad),
			"tick":     w.CurrentTick(),
		}).Info("resumed from snapshot")
	} else {
		w, err = world.New(cfg, cats, logger)
		if err != nil {
			log.WithError(err).Fatal("world")
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	stateLog := persistlog.NewStateLogger(worldDir)
	defer tickLog.Close()
	defer auditLog.Close()
	defer stateLog.Close()
	out := fanout{tick: tickLog, audit: auditLog, state: stateLog, idx: idx}
	w.SetTickLogger(out)
	w.SetAuditLogger(out)
	w.SetStateLogger(out)

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					log.WithError(err).Error("snapshot write")
					continue
				}
				log.WithFields(logrus.Fields{"tick": snap.Header.Tick, "machines": len(snap.Machines)}).Debug("snapshot written")
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			}
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			log.WithError(err).Error("world stopped")
		}
	}()

	mux := newMux(w, idx, httpOptions{
		EnableAdmin: envBool("PLEN_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		EnablePprof: envBool("PLEN_ENABLE_PPROF_HTTP", false),
	}, logger)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.WithField("addr", *addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("ListenAndServe")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

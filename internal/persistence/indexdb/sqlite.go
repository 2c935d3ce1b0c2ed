// Package indexdb keeps a queryable SQLite index of the world's event
// streams. The JSONL logs stay the source of truth; the index may drop rows
// under load.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"plenisher.ai/internal/persistence/snapshot"
	"plenisher.ai/internal/protocol"
	"plenisher.ai/internal/sim/catalogs"
	"plenisher.ai/internal/sim/tuning"
	"plenisher.ai/internal/sim/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropAudit    atomic.Uint64
	dropState    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqState
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	audit    world.AuditEntry
	state    protocol.MachineStateMsg
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick     uint64
	Path     string
	Seed     int64
	Height   int
	Chunks   int
	Machines int
	Finished int
}

// Stats reports queue pressure and rows dropped on backpressure.
type Stats struct {
	QueueDepth    int `json:"queue_depth"`
	QueueCapacity int `json:"queue_capacity"`

	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropStateTotal    uint64 `json:"drop_state_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Placements arrive in bursts of one per machine per cadence tick.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			commands INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS placements (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			machine TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			fluid TEXT NOT NULL,
			from_block INTEGER NOT NULL,
			to_block INTEGER NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_placements_machine_tick ON placements(machine, tick);`,
		`CREATE TABLE IF NOT EXISTS resets (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			reason TEXT,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS machine_states (
			tick INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			finished INTEGER NOT NULL,
			fluid TEXT,
			amount INTEGER NOT NULL,
			energy REAL NOT NULL,
			frontier INTEGER NOT NULL,
			visited INTEGER NOT NULL,
			PRIMARY KEY (x, y, z, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			height INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			machines INTEGER NOT NULL,
			finished INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropAuditTotal:    s.dropAudit.Load(),
		DropStateTotal:    s.dropState.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

// enqueue never blocks the sim loop; a full queue drops the row.
func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	s.enqueue(req{kind: reqAudit, audit: entry}, &s.dropAudit)
	return nil
}

func (s *SQLiteIndex) WriteMachineState(msg protocol.MachineStateMsg) error {
	s.enqueue(req{kind: reqState, state: msg}, &s.dropState)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	r := snapshotRow{
		Tick:     snap.Header.Tick,
		Path:     path,
		Seed:     snap.Seed,
		Height:   snap.Height,
		Chunks:   len(snap.Chunks),
		Machines: len(snap.Machines),
	}
	for _, m := range snap.Machines {
		if m.Finished {
			r.Finished++
		}
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// UpsertCatalogs stores the catalogs and tuning the server runs with.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	for _, f := range []struct{ name, file, digest string }{
		{"blocks_defs", "blocks.json", cats.Blocks.DefsDigest},
		{"fluids_defs", "fluids.json", cats.Fluids.Digest},
		{"items_defs", "items.json", cats.Items.DefsDigest},
	} {
		if configDir == "" {
			break
		}
		if b, err := os.ReadFile(filepath.Join(configDir, f.file)); err == nil {
			rows = append(rows, kv{name: f.name, digest: f.digest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Blocks.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "blocks_palette", digest: cats.Blocks.PaletteDigest, json: b})
	}
	if b, _ := json.Marshal(cats.Items.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "items_palette", digest: cats.Items.PaletteDigest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type statements struct {
	tick, placement, reset, audit, state, snapshot *sql.Stmt
}

func (s *SQLiteIndex) prepare() (statements, error) {
	var st statements
	var err error
	prep := func(dst **sql.Stmt, q string) {
		if err != nil {
			return
		}
		*dst, err = s.db.Prepare(q)
	}
	prep(&st.tick, `INSERT OR REPLACE INTO ticks(tick,digest,commands,steps,raw_json) VALUES(?,?,?,?,?)`)
	prep(&st.placement, `INSERT OR REPLACE INTO placements(tick,seq,machine,x,y,z,fluid,from_block,to_block) VALUES(?,?,?,?,?,?,?,?,?)`)
	prep(&st.reset, `INSERT OR REPLACE INTO resets(tick,seq,actor,x,y,z,reason) VALUES(?,?,?,?,?,?,?)`)
	prep(&st.audit, `INSERT OR REPLACE INTO audits(tick,seq,actor,action,x,y,z,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	prep(&st.state, `INSERT OR REPLACE INTO machine_states(tick,x,y,z,finished,fluid,amount,energy,frontier,visited) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	prep(&st.snapshot, `INSERT OR REPLACE INTO snapshots(tick,path,seed,height,chunks,machines,finished) VALUES(?,?,?,?,?,?,?)`)
	return st, err
}

func (st statements) close() {
	for _, s := range []*sql.Stmt{st.tick, st.placement, st.reset, st.audit, st.state, st.snapshot} {
		if s != nil {
			_ = s.Close()
		}
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	st, err := s.prepare()
	if err != nil {
		st.close()
		// Drain so producers never see a stuck queue.
		for range s.ch {
		}
		return
	}
	defer st.close()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if tx == nil {
			txx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			tx = txx
			lastCommit = time.Now()
		}

		var execErr error
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			_, execErr = tx.Stmt(st.tick).Exec(int64(r.tick.Tick), r.tick.Digest, len(r.tick.Commands), len(r.tick.Steps), string(b))

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			auditSeq++
			switch a.Action {
			case "PLACE_FLUID":
				_, execErr = tx.Stmt(st.placement).Exec(int64(a.Tick), auditSeq, a.Actor, a.Pos[0], a.Pos[1], a.Pos[2], a.Reason, int(a.From), int(a.To))
			case "RESET":
				_, execErr = tx.Stmt(st.reset).Exec(int64(a.Tick), auditSeq, a.Actor, a.Pos[0], a.Pos[1], a.Pos[2], a.Reason)
			default:
				b, _ := json.Marshal(a)
				_, execErr = tx.Stmt(st.audit).Exec(int64(a.Tick), auditSeq, a.Actor, a.Action, a.Pos[0], a.Pos[1], a.Pos[2], string(b))
			}

		case reqState:
			m := r.state
			fluid, amount := "", 0
			if m.Fluid != nil {
				fluid, amount = m.Fluid.ID, m.Fluid.Amount
			}
			_, execErr = tx.Stmt(st.state).Exec(int64(m.Tick), m.Pos[0], m.Pos[1], m.Pos[2], boolInt(m.Finished), fluid, amount, m.Energy, m.Frontier, m.Visited)

		case reqSnapshot:
			sr := r.snapshot
			_, execErr = tx.Stmt(st.snapshot).Exec(int64(sr.Tick), sr.Path, sr.Seed, sr.Height, sr.Chunks, sr.Machines, sr.Finished)
			// Snapshots are rare; make them visible right away.
			opCount = commitEvery
		}
		if execErr != nil {
			_ = tx.Rollback()
			tx = nil
			opCount = 0
			continue
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

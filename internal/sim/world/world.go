package world

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"plenisher.ai/internal/logging"
	"plenisher.ai/internal/persistence/snapshot"
	"plenisher.ai/internal/protocol"
	"plenisher.ai/internal/sim/catalogs"
	"plenisher.ai/internal/sim/machine"
	"plenisher.ai/internal/sim/plenish"
)

var (
	ErrNoMachine      = errors.New("no machine at position")
	ErrMachineExists  = errors.New("machine already placed at position")
	ErrNotAddressable = errors.New("position is not addressable")
)

type WorldConfig struct {
	ID  string
	Dim string

	TickRateHz         int
	Height             int
	Seed               int64
	LoadRadius         int
	SnapshotEveryTicks uint64

	Machine machine.Config
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	log      logrus.FieldLogger

	tick atomic.Uint64

	chunks *ChunkStore
	grid   *blockGrid

	machines  map[plenish.Coord]*machine.Plenisher
	lastSync  map[plenish.Coord]protocol.MachineStateMsg
	observers map[string]chan []byte

	plenisherBlock uint16
	airBlock       uint16

	cmds        chan Command
	subscribe   chan subscribeReq
	unsubscribe chan string
	admin       chan adminSnapshotReq
	adminReset  chan adminResetReq
	stop        chan struct{}

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	auditLogger AuditLogger
	stateLogger StateLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	// recorded holds admin resets applied since the last step.
	recorded []RecordedCommand

	// stepping is the machine whose tick is running, for audit attribution.
	stepping    plenish.Coord
	placedTotal uint64
	resetTotal  uint64
	metrics     atomic.Value
}

func New(cfg WorldConfig, cats *catalogs.Catalogs, log logrus.FieldLogger) (*World, error) {
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("tick rate must be positive, got %d", cfg.TickRateHz)
	}
	if cfg.Dim == "" {
		cfg.Dim = "overworld"
	}
	if log == nil {
		log = logging.Discard()
	}
	gen, err := NewWorldGen(cfg.Seed, cfg.Height, cats)
	if err != nil {
		return nil, err
	}
	pl, ok := cats.Blocks.Index["PLENISHER"]
	if !ok {
		return nil, fmt.Errorf("missing block id in palette: PLENISHER")
	}

	w := &World{
		cfg:            cfg,
		catalogs:       cats,
		log:            log.WithField("world", cfg.ID),
		chunks:         NewChunkStore(gen),
		machines:       map[plenish.Coord]*machine.Plenisher{},
		lastSync:       map[plenish.Coord]protocol.MachineStateMsg{},
		observers:      map[string]chan []byte{},
		plenisherBlock: pl,
		airBlock:       gen.Air,
		cmds:           make(chan Command, 1024),
		subscribe:      make(chan subscribeReq, 64),
		unsubscribe:    make(chan string, 64),
		admin:          make(chan adminSnapshotReq, 16),
		adminReset:     make(chan adminResetReq, 16),
		stop:           make(chan struct{}),
	}
	w.grid = newBlockGrid(cfg.Dim, w.chunks, cats)
	w.grid.onPlace = w.onPlace
	w.metrics.Store(WorldMetrics{})
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetStateLogger(l StateLogger)                  { w.stateLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Dim() string         { return w.cfg.Dim }
func (w *World) TickRateHz() int     { return w.cfg.TickRateHz }
func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Grid exposes the world surface machines operate on. Loop goroutine only.
func (w *World) Grid() plenish.Grid { return w.grid }

// Chunks is the backing store. Loop goroutine only.
func (w *World) Chunks() *ChunkStore { return w.chunks }

// Machine returns the machine at pos. Loop goroutine only.
func (w *World) Machine(pos plenish.Coord) (*machine.Plenisher, bool) {
	m, ok := w.machines[pos]
	return m, ok
}

func (w *World) sortedMachinePositions() []plenish.Coord {
	out := make([]plenish.Coord, 0, len(w.machines))
	for p := range w.machines {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return lessCoord(out[i], out[j]) })
	return out
}

func lessCoord(a, b plenish.Coord) bool {
	if a.Dim != b.Dim {
		return a.Dim < b.Dim
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Z < b.Z
}

func (w *World) machinePositions() [][3]int {
	ps := w.sortedMachinePositions()
	out := make([][3]int, len(ps))
	for i, p := range ps {
		out[i] = p.ToArray()
	}
	return out
}

func (w *World) coord(pos [3]int) plenish.Coord {
	return plenish.CoordFromArray(w.cfg.Dim, pos)
}

// placeMachine installs a plenisher at pos and loads the chunks around it.
func (w *World) placeMachine(pos plenish.Coord) (*machine.Plenisher, error) {
	if pos.Dim != w.cfg.Dim || !w.chunks.inBounds(pos) {
		return nil, ErrNotAddressable
	}
	if _, ok := w.machines[pos]; ok {
		return nil, ErrMachineExists
	}
	w.chunks.LoadAround(pos, w.cfg.LoadRadius)
	w.chunks.SetBlock(pos, w.plenisherBlock)
	m := machine.New(w.cfg.Machine, pos, w.grid, w.catalogs)
	w.machines[pos] = m
	return m, nil
}

func (w *World) removeMachine(pos plenish.Coord) error {
	if _, ok := w.machines[pos]; !ok {
		return ErrNoMachine
	}
	delete(w.machines, pos)
	delete(w.lastSync, pos)
	w.chunks.SetBlock(pos, w.airBlock)
	return nil
}

func (w *World) onPlace(c plenish.Coord, from, to uint16, fluid string) {
	w.placedTotal++
	w.auditEvent(w.tick.Load(), machineActor(w.stepping), "PLACE_FLUID", c, from, to, fluid)
}

func machineActor(pos plenish.Coord) string {
	return "plenisher@" + pos.String()
}

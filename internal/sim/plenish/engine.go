// Package plenish implements the bounded flood-fill that a fluidic plenisher
// uses to discover and fill the basin below it.
//
// The engine is resumable: it processes exactly one frontier cell per call,
// keeps its frontier and visited sets across calls and across save/load, and
// stops for good once the visited set reaches the node budget. It owns no
// world state; the grid and the resource pools are injected.
package plenish

// DefaultMaxNodes is the node budget of a freshly built plenisher.
const DefaultMaxNodes = 4000

// Cell is the placement-relevant classification of one grid cell.
type Cell uint8

const (
	CellEmpty Cell = iota
	CellTransientFluid
	CellFluid
	CellReplaceable
	CellSolid
)

func (c Cell) String() string {
	switch c {
	case CellEmpty:
		return "EMPTY"
	case CellTransientFluid:
		return "TRANSIENT_FLUID"
	case CellFluid:
		return "FLUID"
	case CellReplaceable:
		return "REPLACEABLE"
	default:
		return "SOLID"
	}
}

// Grid is the world surface the engine reads and mutates.
type Grid interface {
	// Exists reports whether c is currently addressable (loaded, in bounds).
	Exists(c Coord) bool
	Classify(c Coord) Cell
	Place(c Coord, fluid string)
}

type EnergyPool interface {
	Available() float64
	// Debit removes amount and reports success. A failed debit changes nothing.
	Debit(amount float64) bool
}

type FluidPool interface {
	// Fluid is the identity of the stored fluid, "" when empty.
	Fluid() string
	AvailableVolume() int
	Debit(units int) bool
}

type Config struct {
	MaxNodes int
	// PlaceVolume is the fluid volume consumed per placed cell.
	PlaceVolume int
	// PlaceEnergy is the energy consumed per placed cell.
	PlaceEnergy float64
}

func (c Config) withDefaults() Config {
	if c.MaxNodes <= 0 {
		c.MaxNodes = DefaultMaxNodes
	}
	if c.PlaceVolume <= 0 {
		c.PlaceVolume = 1000
	}
	if c.PlaceEnergy < 0 {
		c.PlaceEnergy = 0
	}
	return c
}

// Step reports what a TryExpand call did.
type Step uint8

const (
	// StepIdle: the engine was already finished.
	StepIdle Step = iota
	// StepBudget: the visited set had reached MaxNodes.
	StepBudget
	// StepNoSeed: first run and the cell below the anchor is not placeable.
	StepNoSeed
	// StepExhausted: the frontier ran dry after earlier progress.
	StepExhausted
	// StepDiscarded: the selected cell was not addressable and was dropped.
	StepDiscarded
	// StepPlaced: fluid was placed at the selected cell.
	StepPlaced
	// StepStarved: the cell was placeable but resources were short.
	StepStarved
	// StepTraversed: the cell was walked through without placing
	// (it already held fluid).
	StepTraversed
)

var stepNames = [...]string{"IDLE", "BUDGET", "NO_SEED", "EXHAUSTED", "DISCARDED", "PLACED", "STARVED", "TRAVERSED"}

func (s Step) String() string {
	if int(s) < len(stepNames) {
		return stepNames[s]
	}
	return "UNKNOWN"
}

// Terminal reports whether the step finished the run.
func (s Step) Terminal() bool {
	return s == StepBudget || s == StepNoSeed || s == StepExhausted
}

// Result describes one TryExpand call.
type Result struct {
	Step       Step
	Pos        Coord // the processed cell, zero for terminal/idle steps
	Discovered int   // cells newly added to the frontier
	Finished   bool  // engine state after the call
}

// Engine is not safe for concurrent use; it is driven from the owning
// machine's tick only.
type Engine struct {
	cfg    Config
	anchor Coord

	grid   Grid
	fluid  FluidPool
	energy EnergyPool

	frontier *nodeSet
	visited  *nodeSet
	finished bool
}

func NewEngine(cfg Config, anchor Coord, grid Grid, fluid FluidPool, energy EnergyPool) *Engine {
	return &Engine{
		cfg:      cfg.withDefaults(),
		anchor:   anchor,
		grid:     grid,
		fluid:    fluid,
		energy:   energy,
		frontier: newNodeSet(),
		visited:  newNodeSet(),
	}
}

func (e *Engine) Anchor() Coord    { return e.anchor }
func (e *Engine) Config() Config   { return e.cfg }
func (e *Engine) Finished() bool   { return e.finished }
func (e *Engine) FrontierLen() int { return e.frontier.Len() }
func (e *Engine) VisitedLen() int  { return e.visited.Len() }

func (e *Engine) Visited(c Coord) bool    { return e.visited.Has(c) }
func (e *Engine) InFrontier(c Coord) bool { return e.frontier.Has(c) }

// TryExpand advances the fill by at most one cell.
func (e *Engine) TryExpand() Result {
	if e.finished {
		return Result{Step: StepIdle, Finished: true}
	}
	if e.visited.Len() >= e.cfg.MaxNodes {
		e.finished = true
		return Result{Step: StepBudget, Finished: true}
	}

	if e.frontier.Len() == 0 {
		if e.visited.Len() > 0 {
			e.finished = true
			return Result{Step: StepExhausted, Finished: true}
		}
		seed := e.anchor.Below()
		if !e.IsPlaceable(seed, true) {
			e.finished = true
			return Result{Step: StepNoSeed, Pos: seed, Finished: true}
		}
		e.frontier.Add(seed)
	}

	c, _ := e.frontier.First()
	res := Result{Pos: c}

	if !e.grid.Exists(c) {
		res.Step = StepDiscarded
	} else {
		switch {
		case e.IsPlaceable(c, false):
			if e.place(c) {
				res.Step = StepPlaced
			} else {
				res.Step = StepStarved
			}
		default:
			res.Step = StepTraversed
		}

		for _, d := range expandDirs {
			n := c.Offset(d)
			if e.visited.Has(n) || !e.grid.Exists(n) || !e.IsPlaceable(n, true) {
				continue
			}
			if e.frontier.Add(n) {
				res.Discovered++
			}
		}
	}

	e.frontier.Remove(c)
	e.visited.Add(c)
	if e.visited.Len() >= e.cfg.MaxNodes {
		e.finished = true
	}
	res.Finished = e.finished
	return res
}

// place commits fluid at c when both pools can cover one placement.
func (e *Engine) place(c Coord) bool {
	if e.fluid == nil || e.energy == nil {
		return false
	}
	fluid := e.fluid.Fluid()
	if fluid == "" || e.fluid.AvailableVolume() < e.cfg.PlaceVolume || e.energy.Available() < e.cfg.PlaceEnergy {
		return false
	}
	e.grid.Place(c, fluid)
	e.fluid.Debit(e.cfg.PlaceVolume)
	e.energy.Debit(e.cfg.PlaceEnergy)
	return true
}

// IsPlaceable reports whether c can take fluid. In pathfinding mode cells
// already holding fluid count as passable so the search can flow through
// them; when committing they never do.
func (e *Engine) IsPlaceable(c Coord, pathfinding bool) bool {
	if !pathfinding && e.visited.Has(c) {
		return false
	}
	return Placeable(e.grid.Classify(c), pathfinding)
}

// Placeable is the cell-only part of IsPlaceable, without the visited check.
func Placeable(cell Cell, pathfinding bool) bool {
	switch cell {
	case CellEmpty, CellTransientFluid, CellReplaceable:
		return true
	case CellFluid:
		return pathfinding
	default:
		return false
	}
}

// Reset clears both sets and re-arms the engine.
func (e *Engine) Reset() {
	e.frontier.Clear()
	e.visited.Clear()
	e.finished = false
}

// State is the persisted shape of an engine.
type State struct {
	Finished bool
	Frontier []Coord
	Visited  []Coord
}

func (e *Engine) State() State {
	return State{
		Finished: e.finished,
		Frontier: e.frontier.Slice(),
		Visited:  e.visited.Slice(),
	}
}

// Restore replaces the engine state. A coordinate listed in both sets is
// kept as visited only.
func (e *Engine) Restore(st State) {
	e.Reset()
	for _, c := range st.Visited {
		e.visited.Add(c)
	}
	for _, c := range st.Frontier {
		if e.visited.Has(c) {
			continue
		}
		e.frontier.Add(c)
	}
	e.finished = st.Finished || e.visited.Len() >= e.cfg.MaxNodes
}

package plenish

import "testing"

const dim = "OVERWORLD"

// mapGrid is an in-memory grid. Cells not listed are solid; coordinates in
// missing are not addressable.
type mapGrid struct {
	cells   map[Coord]Cell
	missing map[Coord]bool
	placed  []Coord
}

func newMapGrid() *mapGrid {
	return &mapGrid{cells: map[Coord]Cell{}, missing: map[Coord]bool{}}
}

func (g *mapGrid) set(c Cell, cs ...Coord) {
	for _, p := range cs {
		g.cells[p] = c
	}
}

func (g *mapGrid) Exists(c Coord) bool { return !g.missing[c] }

func (g *mapGrid) Classify(c Coord) Cell {
	if v, ok := g.cells[c]; ok {
		return v
	}
	return CellSolid
}

func (g *mapGrid) Place(c Coord, fluid string) {
	g.cells[c] = CellFluid
	g.placed = append(g.placed, c)
}

// infiniteGrid is empty everywhere below the anchor.
type infiniteGrid struct{ placed int }

func (g *infiniteGrid) Exists(Coord) bool { return true }
func (g *infiniteGrid) Classify(c Coord) Cell {
	if c.Y < anchor.Y {
		return CellEmpty
	}
	return CellSolid
}
func (g *infiniteGrid) Place(Coord, string) { g.placed++ }

type pool struct {
	fluid  string
	volume int
	energy float64
}

func (p *pool) Fluid() string        { return p.fluid }
func (p *pool) AvailableVolume() int { return p.volume }
func (p *pool) Debit(units int) bool {
	if units > p.volume {
		return false
	}
	p.volume -= units
	return true
}

type energyPool struct{ p *pool }

func (e energyPool) Available() float64 { return e.p.energy }
func (e energyPool) Debit(amount float64) bool {
	if amount > e.p.energy {
		return false
	}
	e.p.energy -= amount
	return true
}

func richPool() *pool { return &pool{fluid: "WATER", volume: 1 << 30, energy: 1e12} }

func c(x, y, z int) Coord { return Coord{X: x, Y: y, Z: z, Dim: dim} }

var anchor = c(0, 10, 0)

func newTestEngine(cfg Config, g Grid, p *pool) *Engine {
	if cfg.PlaceEnergy == 0 {
		cfg.PlaceEnergy = 100
	}
	return NewEngine(cfg, anchor, g, p, energyPool{p})
}

func assertDisjoint(t *testing.T, e *Engine) {
	t.Helper()
	for _, f := range e.frontier.Slice() {
		if e.visited.Has(f) {
			t.Fatalf("%v is both frontier and visited", f)
		}
	}
}

func TestTryExpand_SolidSeedFinishesImmediately(t *testing.T) {
	g := newMapGrid()
	e := newTestEngine(Config{}, g, richPool())

	res := e.TryExpand()
	if res.Step != StepNoSeed || !res.Finished {
		t.Fatalf("got %+v, want NO_SEED finished", res)
	}
	if e.VisitedLen() != 0 || e.FrontierLen() != 0 {
		t.Fatalf("sets should stay empty: visited=%d frontier=%d", e.VisitedLen(), e.FrontierLen())
	}
	if res := e.TryExpand(); res.Step != StepIdle {
		t.Fatalf("expected idle after finish, got %v", res.Step)
	}
}

func TestTryExpand_IsolatedPocket(t *testing.T) {
	g := newMapGrid()
	seed := anchor.Below()
	g.set(CellEmpty, seed)
	p := richPool()
	e := newTestEngine(Config{PlaceVolume: 1000, PlaceEnergy: 100}, g, p)
	vol0, en0 := p.volume, p.energy

	res := e.TryExpand()
	if res.Step != StepPlaced || res.Pos != seed || res.Discovered != 0 {
		t.Fatalf("first call: %+v", res)
	}
	if len(g.placed) != 1 || g.placed[0] != seed {
		t.Fatalf("placed = %v", g.placed)
	}
	if p.volume != vol0-1000 || p.energy != en0-100 {
		t.Fatalf("debits: volume %d energy %v", vol0-p.volume, en0-p.energy)
	}
	if !e.Visited(seed) || e.FrontierLen() != 0 || e.Finished() {
		t.Fatalf("seed should be visited, engine not finished yet")
	}

	res = e.TryExpand()
	if res.Step != StepExhausted || !e.Finished() {
		t.Fatalf("second call: %+v", res)
	}
}

func TestTryExpand_StarvedStillConsumesAndDiscovers(t *testing.T) {
	g := newMapGrid()
	seed := anchor.Below()
	g.set(CellEmpty, seed, seed.Offset(North), seed.Offset(Down))
	p := &pool{fluid: "WATER", volume: 5000, energy: 10}
	e := newTestEngine(Config{PlaceEnergy: 100}, g, p)

	res := e.TryExpand()
	if res.Step != StepStarved {
		t.Fatalf("step = %v, want STARVED", res.Step)
	}
	if len(g.placed) != 0 || p.volume != 5000 || p.energy != 10 {
		t.Fatalf("nothing should be placed or debited")
	}
	if !e.Visited(seed) {
		t.Fatalf("starved cell must still move to visited")
	}
	if res.Discovered != 2 || !e.InFrontier(seed.Offset(North)) || !e.InFrontier(seed.Offset(Down)) {
		t.Fatalf("neighbor discovery should proceed: %+v", res)
	}
}

func TestTryExpand_BudgetCapsCorridor(t *testing.T) {
	g := newMapGrid()
	for i := 1; i <= 10; i++ {
		g.set(CellEmpty, c(0, 10-i, 0))
	}
	e := newTestEngine(Config{MaxNodes: 3}, g, richPool())

	for i := 0; i < 3; i++ {
		if e.Finished() {
			t.Fatalf("finished early after %d calls", i)
		}
		e.TryExpand()
	}
	if !e.Finished() || e.VisitedLen() != 3 {
		t.Fatalf("finished=%v visited=%d, want true/3", e.Finished(), e.VisitedLen())
	}
	if e.FrontierLen() == 0 {
		t.Fatalf("frontier should be left non-empty")
	}
	for i := 0; i < 5; i++ {
		if res := e.TryExpand(); res.Step != StepIdle {
			t.Fatalf("no work after budget, got %v", res.Step)
		}
	}
	if len(g.placed) != 3 || e.VisitedLen() != 3 {
		t.Fatalf("placed=%d visited=%d", len(g.placed), e.VisitedLen())
	}
}

func TestTryExpand_BudgetOnUnboundedRegion(t *testing.T) {
	g := &infiniteGrid{}
	const budget = 250
	e := newTestEngine(Config{MaxNodes: budget}, g, richPool())

	calls := 0
	for !e.Finished() {
		e.TryExpand()
		calls++
		if e.VisitedLen() < budget && e.Finished() {
			t.Fatalf("finished at visited=%d", e.VisitedLen())
		}
		if calls > 10*budget {
			t.Fatalf("never finished")
		}
	}
	if e.VisitedLen() != budget {
		t.Fatalf("visited = %d, want %d", e.VisitedLen(), budget)
	}
	if calls != budget {
		t.Fatalf("calls = %d, want %d", calls, budget)
	}
}

func TestTryExpand_TerminatesInKPlusOneCalls(t *testing.T) {
	g := newMapGrid()
	// A 3x2x3 basin under the anchor: k = 18 cells.
	for x := -1; x <= 1; x++ {
		for z := -1; z <= 1; z++ {
			g.set(CellEmpty, c(x, 9, z), c(x, 8, z))
		}
	}
	const k = 18
	for _, p := range []*pool{richPool(), {fluid: "WATER", volume: 0, energy: 0}} {
		e := newTestEngine(Config{}, g, p)
		calls := 0
		for !e.Finished() {
			prev := e.VisitedLen()
			e.TryExpand()
			calls++
			if e.VisitedLen() < prev {
				t.Fatalf("visited shrank")
			}
			assertDisjoint(t, e)
			if calls > 100 {
				t.Fatalf("no termination")
			}
		}
		if calls != k+1 {
			t.Fatalf("calls = %d, want %d", calls, k+1)
		}
		if e.VisitedLen() != k {
			t.Fatalf("visited = %d, want %d", e.VisitedLen(), k)
		}
		// Reset the grid between runs: the rich run filled it.
		for cc := range g.cells {
			g.cells[cc] = CellEmpty
		}
		g.placed = nil
	}
}

func TestTryExpand_FlowsThroughFluidWithoutPlacing(t *testing.T) {
	g := newMapGrid()
	seed := anchor.Below()
	g.set(CellFluid, seed)
	g.set(CellEmpty, seed.Offset(Down))
	e := newTestEngine(Config{}, g, richPool())

	res := e.TryExpand()
	if res.Step != StepTraversed || res.Discovered != 1 {
		t.Fatalf("got %+v", res)
	}
	if len(g.placed) != 0 {
		t.Fatalf("must not place on existing fluid")
	}
	if res := e.TryExpand(); res.Step != StepPlaced || res.Pos != seed.Offset(Down) {
		t.Fatalf("second call %+v", res)
	}
}

func TestTryExpand_TransientAndReplaceableArePlaceable(t *testing.T) {
	g := newMapGrid()
	seed := anchor.Below()
	g.set(CellTransientFluid, seed)
	g.set(CellReplaceable, seed.Offset(East))
	g.set(CellSolid, seed.Offset(West))
	e := newTestEngine(Config{}, g, richPool())

	res := e.TryExpand()
	if res.Step != StepPlaced || res.Discovered != 1 || !e.InFrontier(seed.Offset(East)) {
		t.Fatalf("got %+v", res)
	}
}

func TestTryExpand_NeverExpandsUpward(t *testing.T) {
	g := newMapGrid()
	seed := anchor.Below()
	g.set(CellEmpty, seed, seed.Offset(Down))
	g.set(CellEmpty, seed.Offset(Down).Offset(North))
	e := newTestEngine(Config{}, g, richPool())

	e.TryExpand() // seed, discovers below
	e.TryExpand() // below, discovers its north; seed above is visited anyway
	if e.InFrontier(seed) {
		t.Fatalf("seed re-entered frontier")
	}
	g.set(CellEmpty, anchor)
	for !e.Finished() {
		e.TryExpand()
	}
	if e.Visited(anchor) {
		t.Fatalf("engine climbed to the anchor")
	}
}

func TestTryExpand_UnloadedCellsAreDropped(t *testing.T) {
	g := newMapGrid()
	seed := anchor.Below()
	n := seed.Offset(North)
	g.set(CellEmpty, seed, n, seed.Offset(South))
	g.missing[n] = true
	e := newTestEngine(Config{}, g, richPool())

	res := e.TryExpand()
	if res.Discovered != 1 || e.InFrontier(n) {
		t.Fatalf("unloaded neighbor must not be discovered: %+v", res)
	}

	// A frontier entry that unloads before it is processed is discarded.
	s := seed.Offset(South)
	g.missing[s] = true
	res = e.TryExpand()
	if res.Step != StepDiscarded || res.Pos != s || !e.Visited(s) {
		t.Fatalf("got %+v", res)
	}
	delete(g.missing, s)
	if res := e.TryExpand(); res.Step != StepExhausted {
		t.Fatalf("dropped cell must not be revisited, got %v", res.Step)
	}
}

func TestReset_Idempotent(t *testing.T) {
	g := newMapGrid()
	seed := anchor.Below()
	g.set(CellEmpty, seed, seed.Offset(Down))
	e := newTestEngine(Config{}, g, richPool())
	e.TryExpand()

	for i := 0; i < 3; i++ {
		e.Reset()
		if e.Finished() || e.VisitedLen() != 0 || e.FrontierLen() != 0 {
			t.Fatalf("reset #%d left state behind", i+1)
		}
	}
	// The grid now holds fluid at the seed, which pathfinding may cross.
	if res := e.TryExpand(); res.Step != StepTraversed {
		t.Fatalf("after reset got %v", res.Step)
	}
}

func TestIsPlaceable_CommitRejectsVisited(t *testing.T) {
	g := newMapGrid()
	seed := anchor.Below()
	g.set(CellEmpty, seed)
	e := newTestEngine(Config{}, g, &pool{})
	e.TryExpand()
	g.set(CellEmpty, seed)

	if e.IsPlaceable(seed, false) {
		t.Fatalf("visited cell must not be placeable when committing")
	}
	if !e.IsPlaceable(seed, true) {
		t.Fatalf("pathfinding check does not consult the visited set")
	}
}

func TestRestore_VisitedWins(t *testing.T) {
	g := newMapGrid()
	e := newTestEngine(Config{}, g, richPool())
	a, b, d := c(0, 9, 0), c(1, 9, 0), c(2, 9, 0)

	e.Restore(State{
		Frontier: []Coord{b, a, d, b},
		Visited:  []Coord{a},
	})
	st := e.State()
	if len(st.Visited) != 1 || st.Visited[0] != a {
		t.Fatalf("visited = %v", st.Visited)
	}
	if len(st.Frontier) != 2 || st.Frontier[0] != b || st.Frontier[1] != d {
		t.Fatalf("frontier = %v", st.Frontier)
	}
	assertDisjoint(t, e)
}

func TestRestore_RoundTripResumes(t *testing.T) {
	g := newMapGrid()
	for i := 1; i <= 6; i++ {
		g.set(CellEmpty, c(0, 10-i, 0))
	}
	e := newTestEngine(Config{}, g, richPool())
	e.TryExpand()
	e.TryExpand()

	st := e.State()
	e2 := newTestEngine(Config{}, g, richPool())
	e2.Restore(st)
	for !e2.Finished() {
		e2.TryExpand()
	}
	if e2.VisitedLen() != 6 || len(g.placed) != 6 {
		t.Fatalf("visited=%d placed=%d", e2.VisitedLen(), len(g.placed))
	}
}

func TestRestore_OverBudgetIsFinished(t *testing.T) {
	e := newTestEngine(Config{MaxNodes: 2}, newMapGrid(), richPool())
	e.Restore(State{Visited: []Coord{c(0, 0, 0), c(0, 1, 0)}})
	if !e.Finished() {
		t.Fatalf("restored engine at budget must be finished")
	}
}

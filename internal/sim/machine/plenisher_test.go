package machine

import (
	"errors"
	"testing"

	"plenisher.ai/internal/sim/catalogs"
	"plenisher.ai/internal/sim/plenish"
	"plenisher.ai/internal/sim/tank"
	"plenisher.ai/internal/sim/tuning"
)

// pitGrid is solid everywhere except the listed cells.
type pitGrid struct {
	cells  map[plenish.Coord]plenish.Cell
	placed []plenish.Coord
}

func newPitGrid(open ...plenish.Coord) *pitGrid {
	g := &pitGrid{cells: map[plenish.Coord]plenish.Cell{}}
	for _, c := range open {
		g.cells[c] = plenish.CellEmpty
	}
	return g
}

func (g *pitGrid) Exists(c plenish.Coord) bool { return true }

func (g *pitGrid) Classify(c plenish.Coord) plenish.Cell {
	if v, ok := g.cells[c]; ok {
		return v
	}
	return plenish.CellSolid
}

func (g *pitGrid) Place(c plenish.Coord, fluid string) {
	g.cells[c] = plenish.CellFluid
	g.placed = append(g.placed, c)
}

var origin = plenish.Coord{X: 0, Y: 10, Z: 0}

func loadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func testConfig() Config {
	cfg := ConfigFromTuning(tuning.Defaults().Plenisher)
	cfg.PassiveEnergy = 0
	return cfg
}

func newMachine(t *testing.T, g plenish.Grid) *Plenisher {
	t.Helper()
	return New(testConfig(), origin, g, loadCatalogs(t))
}

func TestTick_GatedByCadence(t *testing.T) {
	g := newPitGrid(origin.Below())
	p := newMachine(t, g)
	p.ChargeEnergy(1000)
	p.Fill(plenish.Up, tank.FluidStack{Fluid: "WATER", Amount: 5000}, true)

	if rep := p.Tick(3); rep.Ran {
		t.Fatalf("expected no work off cadence")
	}
	rep := p.Tick(10)
	if !rep.Ran || rep.Result.Step != plenish.StepPlaced {
		t.Fatalf("expected placement on cadence, got %+v", rep)
	}
	if pos, ok := rep.Placed(); !ok || pos != origin.Below() {
		t.Fatalf("placed=%v ok=%v", pos, ok)
	}
	if got := p.Tank().Amount; got != 4000 {
		t.Fatalf("tank=%d want 4000", got)
	}
	if got := p.Energy(); got != 900 {
		t.Fatalf("energy=%v want 900", got)
	}
}

func TestTick_GatedByResources(t *testing.T) {
	g := newPitGrid(origin.Below())
	p := newMachine(t, g)

	p.Fill(plenish.Up, tank.FluidStack{Fluid: "WATER", Amount: 5000}, true)
	if rep := p.Tick(10); rep.Ran {
		t.Fatalf("expected no work without energy")
	}

	p.ChargeEnergy(1000)
	p.tank.SetStack(tank.FluidStack{Fluid: "WATER", Amount: 999})
	if rep := p.Tick(20); rep.Ran {
		t.Fatalf("expected no work below one bucket")
	}
	if p.Engine().VisitedLen() != 0 {
		t.Fatalf("engine should not have run")
	}
}

func TestTick_MaintenanceRefill(t *testing.T) {
	below := origin.Below()
	g := newPitGrid(below)
	p := newMachine(t, g)
	p.ChargeEnergy(10000)
	p.Fill(plenish.Up, tank.FluidStack{Fluid: "WATER", Amount: 10000}, true)

	var now uint64
	for i := 0; i < 10 && !p.Engine().Finished(); i++ {
		now += 10
		p.Tick(now)
	}
	if !p.Engine().Finished() {
		t.Fatalf("engine did not finish on a one-cell pit")
	}
	placedBefore := len(g.placed)

	// the placed water drains away; a finished machine tops up the cell below
	g.cells[below] = plenish.CellEmpty
	now += 10
	rep := p.Tick(now)
	if !rep.Refilled {
		t.Fatalf("expected refill, got %+v", rep)
	}
	if len(g.placed) != placedBefore+1 || g.placed[len(g.placed)-1] != below {
		t.Fatalf("refill placed=%v", g.placed)
	}

	now += 10
	if rep := p.Tick(now); rep.Refilled {
		t.Fatalf("refill over existing fluid")
	}
}

func TestFill_OnlyFromTopAndPlaceable(t *testing.T) {
	p := newMachine(t, newPitGrid())
	water := tank.FluidStack{Fluid: "WATER", Amount: 1000}

	if n := p.Fill(plenish.North, water, true); n != 0 {
		t.Fatalf("side fill accepted %d", n)
	}
	if n := p.Fill(plenish.Up, tank.FluidStack{Fluid: "STEAM", Amount: 1000}, true); n != 0 {
		t.Fatalf("gas accepted %d", n)
	}
	if n := p.Fill(plenish.Up, water, false); n != 1000 || p.Tank().Amount != 0 {
		t.Fatalf("simulated fill: n=%d tank=%d", n, p.Tank().Amount)
	}
	if n := p.Fill(plenish.Up, water, true); n != 1000 {
		t.Fatalf("fill=%d", n)
	}
	if n := p.Fill(plenish.Up, tank.FluidStack{Fluid: "LAVA", Amount: 1000}, true); n != 0 {
		t.Fatalf("mixed fluid accepted %d", n)
	}
}

func TestProcessInput_BucketsToOutput(t *testing.T) {
	p := newMachine(t, newPitGrid())

	if _, err := p.InsertItem("STONE", 1); !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got %v", err)
	}
	n, err := p.InsertItem("WATER_BUCKET", 3)
	if err != nil || n != 1 {
		t.Fatalf("insert n=%d err=%v (buckets do not stack)", n, err)
	}

	rep := p.Tick(1)
	if rep.Emptied != "WATER_BUCKET" {
		t.Fatalf("emptied=%q", rep.Emptied)
	}
	if p.Tank().Amount != 1000 || !p.Input().Empty() {
		t.Fatalf("tank=%+v input=%+v", p.Tank(), p.Input())
	}
	if out := p.Output(); out.Item != "BUCKET" || out.Count != 1 {
		t.Fatalf("output=%+v", out)
	}
}

func TestProcessInput_MismatchedFluidWaits(t *testing.T) {
	p := newMachine(t, newPitGrid())
	p.Fill(plenish.Up, tank.FluidStack{Fluid: "WATER", Amount: 1000}, true)
	if _, err := p.InsertItem("LAVA_BUCKET", 1); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if rep := p.Tick(1); rep.Emptied != "" {
		t.Fatalf("mismatched container consumed")
	}
	if p.Input().Item != "LAVA_BUCKET" || !p.Output().Empty() {
		t.Fatalf("slots changed: in=%+v out=%+v", p.Input(), p.Output())
	}
}

func TestProcessInput_ConsumableCells(t *testing.T) {
	p := newMachine(t, newPitGrid())
	if _, err := p.InsertItem("WATER_CELL", 4); err != nil {
		t.Fatalf("insert: %v", err)
	}
	p.Tick(1)
	p.Tick(2)
	p.Tick(3)
	// third cell does not fit: 3*4000 > 10000
	if p.Tank().Amount != 8000 || p.Input().Count != 2 {
		t.Fatalf("tank=%d input=%+v", p.Tank().Amount, p.Input())
	}
	if !p.Output().Empty() {
		t.Fatalf("cells leave no empty container, got %+v", p.Output())
	}
}

func TestResetAndInvoke(t *testing.T) {
	g := newPitGrid(origin.Below())
	p := newMachine(t, g)
	p.ChargeEnergy(1000)
	p.Fill(plenish.Up, tank.FluidStack{Fluid: "WATER", Amount: 1000}, true)
	p.Tick(10)
	if p.Engine().VisitedLen() == 0 {
		t.Fatalf("engine did not run")
	}

	if msg := p.Reset(); msg != ResetNotice {
		t.Fatalf("reset notice=%q", msg)
	}
	if p.Engine().VisitedLen() != 0 || p.Engine().Finished() {
		t.Fatalf("reset left state behind")
	}

	out, err := p.Invoke("reset")
	if err != nil || out != "Plenisher calculation reset." {
		t.Fatalf("invoke reset: %q %v", out, err)
	}
	if _, err := p.Invoke("explode"); !errors.Is(err, ErrNoSuchMethod) {
		t.Fatalf("expected ErrNoSuchMethod, got %v", err)
	}
}

func TestExportImport(t *testing.T) {
	open := []plenish.Coord{origin.Below(), {X: 1, Y: 9, Z: 0}, {X: 0, Y: 8, Z: 0}}
	g := newPitGrid(open...)
	p := newMachine(t, g)
	p.ChargeEnergy(5000)
	p.Fill(plenish.Up, tank.FluidStack{Fluid: "WATER", Amount: 9000}, true)
	p.InsertItem("WATER_BUCKET", 1)
	p.Tick(10)

	m := p.Export()
	if m.Fluid == nil || m.Fluid.Fluid != "WATER" {
		t.Fatalf("fluid not exported: %+v", m.Fluid)
	}
	if len(m.Visited) != 1 || len(m.Frontier) != 2 {
		t.Fatalf("visited=%v frontier=%v", m.Visited, m.Frontier)
	}

	q := newMachine(t, g)
	q.Import(m)
	if q.Tank() != p.Tank() || q.Energy() != p.Energy() {
		t.Fatalf("pools differ: %+v/%v vs %+v/%v", q.Tank(), q.Energy(), p.Tank(), p.Energy())
	}
	if q.Output() != p.Output() || q.Input() != p.Input() {
		t.Fatalf("slots differ")
	}
	if !q.Engine().Visited(origin.Below()) || !q.Engine().InFrontier(open[1]) {
		t.Fatalf("engine state not restored")
	}

	sync := q.SyncState("w", 42)
	if sync.Frontier != 2 || sync.Visited != 1 || sync.Fluid == nil || sync.Tick != 42 {
		t.Fatalf("sync=%+v", sync)
	}
}

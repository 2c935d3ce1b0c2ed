// Package machine holds the plenisher block entity: the fill engine plus
// its tank, energy buffer and container slots.
package machine

import (
	"errors"
	"fmt"

	"plenisher.ai/internal/persistence/snapshot"
	"plenisher.ai/internal/protocol"
	"plenisher.ai/internal/sim/catalogs"
	"plenisher.ai/internal/sim/plenish"
	"plenisher.ai/internal/sim/tank"
	"plenisher.ai/internal/sim/tuning"
)

var (
	ErrNoSuchMethod = errors.New("no such method")
	ErrInvalidItem  = errors.New("item is not a fluid container")
	ErrSlotOccupied = errors.New("input slot holds a different item")
)

const (
	ResetNotice       = "[Plenisher] Calculation reset."
	InvokeResetResult = "Plenisher calculation reset."
)

// Face is the side of the machine a fluid transfer comes from.
type Face = plenish.Dir

type Config struct {
	MaxNodes     int
	TickCadence  uint64
	EnergyPerOp  float64
	BucketVolume int

	TankCapacity   int
	EnergyCapacity float64
	PassiveEnergy  float64
}

func ConfigFromTuning(p tuning.Plenisher) Config {
	return Config{
		MaxNodes:       p.MaxNodes,
		TickCadence:    uint64(p.TickCadence),
		EnergyPerOp:    p.EnergyPerOp,
		BucketVolume:   p.BucketVolume,
		TankCapacity:   p.TankCapacity,
		EnergyCapacity: p.EnergyCapacity,
		PassiveEnergy:  p.PassiveEnergyPerTick,
	}
}

type ItemStack struct {
	Item  string
	Count int
}

func (s ItemStack) Empty() bool { return s.Item == "" || s.Count <= 0 }

// TickReport summarizes what one Tick did; the world turns it into logs.
type TickReport struct {
	// Ran is true when the gate opened this tick.
	Ran    bool
	Result plenish.Result
	// Refilled is set when a finished machine re-placed the cell below.
	Refilled bool
	// Emptied names the container consumed from the input slot, if any.
	Emptied string
}

// Placed reports whether the tick put fluid into the world, and where.
func (r TickReport) Placed() (plenish.Coord, bool) {
	if r.Refilled {
		return r.Result.Pos, true
	}
	if r.Ran && r.Result.Step == plenish.StepPlaced {
		return r.Result.Pos, true
	}
	return plenish.Coord{}, false
}

type Plenisher struct {
	cfg  Config
	pos  plenish.Coord
	grid plenish.Grid
	cats *catalogs.Catalogs

	tank   *tank.FluidTank
	energy *tank.EnergyBuffer
	engine *plenish.Engine

	input  ItemStack
	output ItemStack
}

func New(cfg Config, pos plenish.Coord, grid plenish.Grid, cats *catalogs.Catalogs) *Plenisher {
	if cfg.TickCadence == 0 {
		cfg.TickCadence = 1
	}
	p := &Plenisher{
		cfg:    cfg,
		pos:    pos,
		grid:   grid,
		cats:   cats,
		tank:   tank.NewFluidTank(cfg.TankCapacity),
		energy: tank.NewEnergyBuffer(cfg.EnergyCapacity),
	}
	p.engine = plenish.NewEngine(plenish.Config{
		MaxNodes:    cfg.MaxNodes,
		PlaceVolume: cfg.BucketVolume,
		PlaceEnergy: cfg.EnergyPerOp,
	}, pos, grid, p.tank, p.energy)
	return p
}

func (p *Plenisher) Pos() plenish.Coord      { return p.pos }
func (p *Plenisher) Engine() *plenish.Engine { return p.engine }
func (p *Plenisher) Tank() tank.FluidStack   { return p.tank.Stack() }
func (p *Plenisher) Energy() float64         { return p.energy.Available() }
func (p *Plenisher) Input() ItemStack        { return p.input }
func (p *Plenisher) Output() ItemStack       { return p.output }

// ChargeEnergy adds energy up to capacity and returns the amount accepted.
func (p *Plenisher) ChargeEnergy(v float64) float64 {
	return p.energy.Add(v)
}

func (p *Plenisher) Tick(now uint64) TickReport {
	var rep TickReport
	if p.cfg.PassiveEnergy > 0 {
		p.energy.Add(p.cfg.PassiveEnergy)
	}
	rep.Emptied = p.processInput()

	if p.energy.Available() < p.cfg.EnergyPerOp || now%p.cfg.TickCadence != 0 {
		return rep
	}
	if p.tank.Amount() < p.cfg.BucketVolume || !p.placeable(p.tank.Fluid()) {
		return rep
	}
	rep.Ran = true
	if !p.engine.Finished() {
		rep.Result = p.engine.TryExpand()
		return rep
	}

	below := p.pos.Below()
	rep.Result = plenish.Result{Step: plenish.StepIdle, Pos: below, Finished: true}
	if !p.grid.Exists(below) || !plenish.Placeable(p.grid.Classify(below), false) {
		return rep
	}
	p.grid.Place(below, p.tank.Fluid())
	p.tank.Debit(p.cfg.BucketVolume)
	p.energy.Debit(p.cfg.EnergyPerOp)
	rep.Refilled = true
	return rep
}

func (p *Plenisher) placeable(fluid string) bool {
	return fluid != "" && p.cats != nil && p.cats.FluidPlaceable(fluid)
}

// processInput empties one filled container from the input slot into the
// tank when the whole content fits. Returns the consumed item id.
func (p *Plenisher) processInput() string {
	if p.input.Empty() {
		return ""
	}
	def, ok := p.cats.FilledContainer(p.input.Item)
	if !ok || !p.placeable(def.Fluid) {
		return ""
	}
	content := tank.FluidStack{Fluid: def.Fluid, Amount: def.Amount}
	if p.tank.Fill(content, false) != def.Amount {
		return ""
	}
	if def.EmptyAs != "" {
		if !p.output.Empty() {
			if p.output.Item != def.EmptyAs {
				return ""
			}
			if limit := p.stackLimit(def.EmptyAs); p.output.Count+1 > limit {
				return ""
			}
		}
		p.output.Item = def.EmptyAs
		p.output.Count++
	}
	p.tank.Fill(content, true)
	item := p.input.Item
	p.input.Count--
	if p.input.Count <= 0 {
		p.input = ItemStack{}
	}
	return item
}

func (p *Plenisher) stackLimit(item string) int {
	if d, ok := p.cats.Items.Defs[item]; ok {
		return d.StackLimit()
	}
	return 64
}

// InsertItem puts up to count filled containers into the input slot and
// returns how many were accepted.
func (p *Plenisher) InsertItem(item string, count int) (int, error) {
	def, ok := p.cats.FilledContainer(item)
	if !ok {
		return 0, ErrInvalidItem
	}
	if !p.input.Empty() && p.input.Item != item {
		return 0, ErrSlotOccupied
	}
	n := def.StackLimit() - p.input.Count
	if count < n {
		n = count
	}
	if n <= 0 {
		return 0, nil
	}
	p.input.Item = item
	p.input.Count += n
	return n, nil
}

// TakeOutput empties the output slot.
func (p *Plenisher) TakeOutput() ItemStack {
	out := p.output
	p.output = ItemStack{}
	return out
}

// Fill accepts fluid from the top face only, and only fluids that can exist
// as blocks.
func (p *Plenisher) Fill(face Face, in tank.FluidStack, doFill bool) int {
	if !p.CanFill(face, in.Fluid) {
		return 0
	}
	return p.tank.Fill(in, doFill)
}

func (p *Plenisher) CanFill(face Face, fluid string) bool {
	return face == plenish.Up && p.placeable(fluid)
}

// Reset clears the fill state on a player's request and returns the notice
// shown to them.
func (p *Plenisher) Reset() string {
	p.engine.Reset()
	return ResetNotice
}

// Invoke is the scripted-computer surface.
func (p *Plenisher) Invoke(method string) (string, error) {
	switch method {
	case "reset":
		p.engine.Reset()
		return InvokeResetResult, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrNoSuchMethod, method)
	}
}

func (p *Plenisher) SyncState(worldID string, tick uint64) protocol.MachineStateMsg {
	msg := protocol.MachineStateMsg{
		Type:            protocol.TypeMachineState,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		WorldID:         worldID,
		Pos:             p.pos.ToArray(),
		Finished:        p.engine.Finished(),
		TankCapacity:    p.tank.Capacity(),
		Energy:          p.energy.Available(),
		EnergyCapacity:  p.energy.Capacity(),
		Frontier:        p.engine.FrontierLen(),
		Visited:         p.engine.VisitedLen(),
		MaxNodes:        p.engine.Config().MaxNodes,
	}
	if st := p.tank.Stack(); !st.Empty() {
		msg.Fluid = &protocol.Fluid{ID: st.Fluid, Amount: st.Amount}
	}
	return msg
}

func (p *Plenisher) Export() snapshot.MachineV1 {
	st := p.engine.State()
	m := snapshot.MachineV1{
		Pos:      p.pos.ToArray(),
		Finished: st.Finished,
		Energy:   p.energy.Available(),
		Frontier: coordsToArrays(st.Frontier),
		Visited:  coordsToArrays(st.Visited),
	}
	if fs := p.tank.Stack(); !fs.Empty() {
		m.Fluid = &snapshot.FluidStackV1{Fluid: fs.Fluid, Amount: fs.Amount}
	}
	if !p.input.Empty() {
		m.InputSlot = &snapshot.ItemStackV1{Item: p.input.Item, Count: p.input.Count}
	}
	if !p.output.Empty() {
		m.OutputSlot = &snapshot.ItemStackV1{Item: p.output.Item, Count: p.output.Count}
	}
	return m
}

// Import restores state written by Export. The position is not changed.
func (p *Plenisher) Import(m snapshot.MachineV1) {
	dim := p.pos.Dim
	p.engine.Restore(plenish.State{
		Finished: m.Finished,
		Frontier: arraysToCoords(dim, m.Frontier),
		Visited:  arraysToCoords(dim, m.Visited),
	})
	p.tank.SetStack(tank.FluidStack{})
	if m.Fluid != nil {
		p.tank.SetStack(tank.FluidStack{Fluid: m.Fluid.Fluid, Amount: m.Fluid.Amount})
	}
	p.energy.Set(m.Energy)
	p.input, p.output = ItemStack{}, ItemStack{}
	if m.InputSlot != nil {
		p.input = ItemStack{Item: m.InputSlot.Item, Count: m.InputSlot.Count}
	}
	if m.OutputSlot != nil {
		p.output = ItemStack{Item: m.OutputSlot.Item, Count: m.OutputSlot.Count}
	}
}

func coordsToArrays(in []plenish.Coord) [][3]int {
	if len(in) == 0 {
		return nil
	}
	out := make([][3]int, len(in))
	for i, c := range in {
		out[i] = c.ToArray()
	}
	return out
}

func arraysToCoords(dim string, in [][3]int) []plenish.Coord {
	out := make([]plenish.Coord, len(in))
	for i, a := range in {
		out[i] = plenish.CoordFromArray(dim, a)
	}
	return out
}

// Package tank holds the resource pools a machine draws from: a single-fluid
// tank measured in millibuckets and an energy buffer measured in joules.
package tank

// FluidStack is an amount of one fluid. The zero value is "nothing".
type FluidStack struct {
	Fluid  string `json:"fluid"`
	Amount int    `json:"amount"`
}

func (s FluidStack) Empty() bool { return s.Fluid == "" || s.Amount <= 0 }

type FluidTank struct {
	capacity int
	stack    FluidStack
}

func NewFluidTank(capacity int) *FluidTank {
	return &FluidTank{capacity: capacity}
}

func (t *FluidTank) Capacity() int     { return t.capacity }
func (t *FluidTank) Stack() FluidStack { return t.stack }
func (t *FluidTank) Amount() int       { return t.stack.Amount }
func (t *FluidTank) Space() int        { return t.capacity - t.stack.Amount }

// SetStack overwrites the contents, clamped to capacity. Used on load.
func (t *FluidTank) SetStack(s FluidStack) {
	if s.Empty() {
		t.stack = FluidStack{}
		return
	}
	if s.Amount > t.capacity {
		s.Amount = t.capacity
	}
	t.stack = s
}

// Fill accepts as much of in as fits and returns the accepted amount. A
// different fluid than the one stored is rejected outright.
func (t *FluidTank) Fill(in FluidStack, doFill bool) int {
	if in.Empty() {
		return 0
	}
	if !t.stack.Empty() && t.stack.Fluid != in.Fluid {
		return 0
	}
	n := in.Amount
	if space := t.Space(); n > space {
		n = space
	}
	if n <= 0 {
		return 0
	}
	if doFill {
		t.stack.Fluid = in.Fluid
		t.stack.Amount += n
	}
	return n
}

// Drain removes up to max and returns what was removed.
func (t *FluidTank) Drain(max int, doDrain bool) FluidStack {
	if t.stack.Empty() || max <= 0 {
		return FluidStack{}
	}
	n := max
	if n > t.stack.Amount {
		n = t.stack.Amount
	}
	out := FluidStack{Fluid: t.stack.Fluid, Amount: n}
	if doDrain {
		t.stack.Amount -= n
		if t.stack.Amount == 0 {
			t.stack = FluidStack{}
		}
	}
	return out
}

func (t *FluidTank) Fluid() string        { return t.stack.Fluid }
func (t *FluidTank) AvailableVolume() int { return t.stack.Amount }

// Debit drains exactly units or nothing.
func (t *FluidTank) Debit(units int) bool {
	if units < 0 || units > t.stack.Amount {
		return false
	}
	t.Drain(units, true)
	return true
}

type EnergyBuffer struct {
	capacity float64
	stored   float64
}

func NewEnergyBuffer(capacity float64) *EnergyBuffer {
	return &EnergyBuffer{capacity: capacity}
}

func (b *EnergyBuffer) Capacity() float64  { return b.capacity }
func (b *EnergyBuffer) Available() float64 { return b.stored }

// Add stores up to amount and returns what was accepted.
func (b *EnergyBuffer) Add(amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	if space := b.capacity - b.stored; amount > space {
		amount = space
	}
	b.stored += amount
	return amount
}

func (b *EnergyBuffer) Set(v float64) {
	switch {
	case v < 0:
		v = 0
	case v > b.capacity:
		v = b.capacity
	}
	b.stored = v
}

func (b *EnergyBuffer) Debit(amount float64) bool {
	if amount < 0 || amount > b.stored {
		return false
	}
	b.stored -= amount
	return true
}

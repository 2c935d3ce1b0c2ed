package tank

import "testing"

func TestFluidTank_FillRejectsOtherFluid(t *testing.T) {
	tk := NewFluidTank(10000)
	if n := tk.Fill(FluidStack{Fluid: "WATER", Amount: 4000}, true); n != 4000 {
		t.Fatalf("fill = %d", n)
	}
	if n := tk.Fill(FluidStack{Fluid: "LAVA", Amount: 1000}, true); n != 0 {
		t.Fatalf("mixed fill accepted %d", n)
	}
	if n := tk.Fill(FluidStack{Fluid: "WATER", Amount: 9000}, false); n != 6000 {
		t.Fatalf("simulated fill = %d, want 6000", n)
	}
	if tk.Amount() != 4000 {
		t.Fatalf("simulated fill changed the tank")
	}
}

func TestFluidTank_DebitAllOrNothing(t *testing.T) {
	tk := NewFluidTank(10000)
	tk.Fill(FluidStack{Fluid: "WATER", Amount: 1500}, true)
	if !tk.Debit(1000) || tk.AvailableVolume() != 500 {
		t.Fatalf("debit 1000 failed, have %d", tk.AvailableVolume())
	}
	if tk.Debit(1000) {
		t.Fatalf("overdraw succeeded")
	}
	if tk.AvailableVolume() != 500 || tk.Fluid() != "WATER" {
		t.Fatalf("failed debit changed the tank: %+v", tk.Stack())
	}
	tk.Debit(500)
	if !tk.Stack().Empty() || tk.Fluid() != "" {
		t.Fatalf("drained tank should forget its fluid: %+v", tk.Stack())
	}
}

func TestEnergyBuffer_Clamp(t *testing.T) {
	b := NewEnergyBuffer(1000)
	if got := b.Add(1500); got != 1000 {
		t.Fatalf("add = %v", got)
	}
	if b.Debit(1001) {
		t.Fatalf("overdraw succeeded")
	}
	if !b.Debit(400) || b.Available() != 600 {
		t.Fatalf("available = %v", b.Available())
	}
	b.Set(-5)
	if b.Available() != 0 {
		t.Fatalf("set below zero not clamped")
	}
}

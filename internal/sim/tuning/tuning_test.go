package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ConfigsFile(t *testing.T) {
	tune, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.Plenisher.MaxNodes != 4000 || tune.Plenisher.TickCadence != 10 {
		t.Fatalf("plenisher = %+v", tune.Plenisher)
	}
	if tune.Plenisher.PassiveEnergyPerTick != 10 {
		t.Fatalf("passive energy = %v", tune.Plenisher.PassiveEnergyPerTick)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("plenisher:\n  max_nodes: 12\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tune, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.Plenisher.MaxNodes != 12 {
		t.Fatalf("max_nodes = %d", tune.Plenisher.MaxNodes)
	}
	if tune.Plenisher.BucketVolume != 1000 || tune.TickRateHz != 20 {
		t.Fatalf("defaults lost: %+v", tune)
	}
}

func TestValidate_RejectsBadBudgets(t *testing.T) {
	tune := Defaults()
	tune.Plenisher.MaxNodes = 0
	tune.Height = 20
	if err := tune.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

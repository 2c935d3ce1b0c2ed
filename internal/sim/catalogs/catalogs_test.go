package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Configs(t *testing.T) {
	cats, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cats.Blocks.Index["AIR"] != 0 {
		t.Fatalf("AIR must be palette id 0")
	}
	for _, id := range []string{"STONE", "WATER", "WATER_FLOWING", "TALL_GRASS"} {
		if _, ok := cats.Blocks.Index[id]; !ok {
			t.Fatalf("missing block %s", id)
		}
	}
	if !cats.Blocks.Defs["WATER_FLOWING"].Transient {
		t.Fatalf("flowing water should be transient")
	}
	if !cats.FluidPlaceable("WATER") || cats.FluidPlaceable("STEAM") {
		t.Fatalf("placeable flags wrong")
	}
	d, ok := cats.FilledContainer("WATER_BUCKET")
	if !ok || d.Amount != 1000 || d.EmptyAs != "BUCKET" {
		t.Fatalf("water bucket def = %+v", d)
	}
	if _, ok := cats.FilledContainer("BUCKET"); ok {
		t.Fatalf("empty bucket is not a filled container")
	}
	if cats.Blocks.PaletteDigest == "" || cats.Fluids.Digest == "" || cats.Items.DefsDigest == "" {
		t.Fatalf("digests should be set")
	}
}

func TestLoad_RejectsFluidWithSolidBlock(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("blocks.json", `[{"id":"AIR"},{"id":"STONE","solid":true}]`)
	write("fluids.json", `[{"id":"WATER","placeable":true,"source_block":"STONE","flowing_block":"STONE"}]`)
	write("items.json", `[]`)

	if _, err := Load(dir); err == nil {
		t.Fatalf("expected error for fluid mapped onto a solid block")
	}
}

package main

import (
	"testing"

	persistlog "plenisher.ai/internal/persistence/log"
	"plenisher.ai/internal/persistence/snapshot"
	simenc "plenisher.ai/internal/sim/encoding"
	"plenisher.ai/internal/sim/world"
)

func TestRollback_RevertsPlacementsInWindow(t *testing.T) {
	worldDir := t.TempDir()
	audit := persistlog.NewAuditLogger(worldDir)
	const air, water = uint16(0), uint16(9)
	entries := []world.AuditEntry{
		{Tick: 5, Actor: "tester", Action: "PLACE_MACHINE", Pos: [3]int{1, 2, 1}},
		{Tick: 10, Action: "PLACE_FLUID", Pos: [3]int{1, 1, 1}, From: air, To: water, Reason: "WATER"},
		{Tick: 11, Action: "PLACE_FLUID", Pos: [3]int{2, 1, 1}, From: air, To: water, Reason: "WATER"},
		{Tick: 12, Action: "PLACE_FLUID", Pos: [3]int{-1, 1, 1}, From: air, To: water, Reason: "WATER"},
		{Tick: 30, Action: "PLACE_FLUID", Pos: [3]int{3, 1, 1}, From: air, To: water, Reason: "WATER"},
	}
	for _, e := range entries {
		if err := audit.WriteAudit(e); err != nil {
			t.Fatalf("audit: %v", err)
		}
	}
	if err := audit.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recs, err := readPlacements(worldDir, 0, 20, [3]int{-5, 0, -5}, [3]int{5, 5, 5})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 3 || recs[0].Entry.Tick != 12 || recs[2].Entry.Tick != 10 {
		t.Fatalf("recs=%+v", recs)
	}

	const volume = world.ChunkSize * world.ChunkSize * world.ChunkSize
	blocks := make([]uint16, volume)
	idx := func(x, y, z int) int { return x + z*world.ChunkSize + y*world.ChunkSize*world.ChunkSize }
	for _, x := range []int{1, 2, 3} {
		blocks[idx(x, 1, 1)] = water
	}
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, Tick: 40},
		Height: 64,
		// Only chunk (0,0,0) is stored; the x=-1 placement lives in chunk -1.
		Chunks: []snapshot.ChunkV1{{Blocks: simenc.EncodeRLE(blocks)}},
	}

	applied, skipped, err := applyRollback(&snap, recs)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if applied != 2 || skipped != 1 {
		t.Fatalf("applied=%d skipped=%d", applied, skipped)
	}
	got, err := simenc.DecodeRLE(snap.Chunks[0].Blocks, volume)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got[idx(1, 1, 1)] != air || got[idx(2, 1, 1)] != air {
		t.Fatalf("placements in window not reverted")
	}
	if got[idx(3, 1, 1)] != water {
		t.Fatalf("placement after window was reverted")
	}
}

func TestParseAABB_Normalizes(t *testing.T) {
	min, max, err := parseAABB("4,1,-2:0,3,2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if min != [3]int{0, 1, -2} || max != [3]int{4, 3, 2} {
		t.Fatalf("min=%v max=%v", min, max)
	}
	if _, _, err := parseAABB("1,2,3"); err == nil {
		t.Fatalf("expected error for missing corner")
	}
}

func TestSummarizeSnapshot(t *testing.T) {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, WorldID: "w", Tick: 9},
		Seed:   7,
		Height: 64,
		Machines: []snapshot.MachineV1{{
			Pos:      [3]int{0, 41, 0},
			Finished: true,
			Fluid:    &snapshot.FluidStackV1{Fluid: "WATER", Amount: 2000},
			Visited:  [][3]int{{0, 40, 0}, {0, 39, 0}},
		}},
	}
	s := summarizeSnapshot("x.snap.zst", snap)
	if len(s.Machines) != 1 {
		t.Fatalf("machines=%d", len(s.Machines))
	}
	m := s.Machines[0]
	if !m.Finished || m.Fluid != "WATER" || m.Amount != 2000 || m.Visited != 2 || m.Frontier != 0 {
		t.Fatalf("summary=%+v", m)
	}
}

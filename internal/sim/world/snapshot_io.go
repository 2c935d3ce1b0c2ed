package world

import (
	"fmt"

	"plenisher.ai/internal/persistence/snapshot"
	"plenisher.ai/internal/protocol"
	simenc "plenisher.ai/internal/sim/encoding"
	"plenisher.ai/internal/sim/machine"
	"plenisher.ai/internal/sim/plenish"
)

// ExportSnapshot captures the edited chunks and every machine. Loop goroutine
// only.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		Seed:       w.cfg.Seed,
		TickRate:   w.cfg.TickRateHz,
		Height:     w.cfg.Height,
		LoadRadius: w.cfg.LoadRadius,
	}
	for _, ch := range w.chunks.EditedChunks() {
		s.Chunks = append(s.Chunks, snapshot.ChunkV1{
			CX:     ch.Key.CX,
			CY:     ch.Key.CY,
			CZ:     ch.Key.CZ,
			Blocks: simenc.EncodeRLE(ch.Blocks),
		})
	}
	for _, pos := range w.sortedMachinePositions() {
		s.Machines = append(s.Machines, w.machines[pos].Export())
	}
	for _, k := range w.chunks.LoadedChunkKeys() {
		s.Loaded = append(s.Loaded, [3]int{k.CX, k.CY, k.CZ})
	}
	return s
}

// ImportSnapshot replaces the world state. It must run before Run starts.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if s.Height != w.cfg.Height {
		return fmt.Errorf("snapshot height %d does not match world height %d", s.Height, w.cfg.Height)
	}
	gen, err := NewWorldGen(s.Seed, s.Height, w.catalogs)
	if err != nil {
		return err
	}

	w.cfg.Seed = s.Seed
	w.chunks = NewChunkStore(gen)
	w.grid.store = w.chunks
	w.machines = map[plenish.Coord]*machine.Plenisher{}
	w.lastSync = map[plenish.Coord]protocol.MachineStateMsg{}

	for _, c := range s.Chunks {
		blocks, err := simenc.DecodeRLE(c.Blocks, chunkVolume)
		if err != nil {
			return fmt.Errorf("chunk %d,%d,%d: %w", c.CX, c.CY, c.CZ, err)
		}
		w.chunks.PutEdited(ChunkKey{CX: c.CX, CY: c.CY, CZ: c.CZ}, blocks)
	}
	for _, mv := range s.Machines {
		pos := w.coord(mv.Pos)
		m, err := w.placeMachine(pos)
		if err != nil {
			return fmt.Errorf("machine %v: %w", mv.Pos, err)
		}
		m.Import(mv)
	}
	if s.Loaded != nil {
		want := make(map[ChunkKey]bool, len(s.Loaded))
		for _, k := range s.Loaded {
			want[ChunkKey{CX: k[0], CY: k[1], CZ: k[2]}] = true
		}
		for _, k := range w.chunks.LoadedChunkKeys() {
			if !want[k] {
				w.chunks.Unload(k)
			}
		}
		for k := range want {
			w.chunks.Load(k)
		}
	}
	w.tick.Store(s.Header.Tick + 1)
	w.updateMetrics(0)
	return nil
}

package world

import (
	"plenisher.ai/internal/sim/catalogs"
	"plenisher.ai/internal/sim/plenish"
)

// blockGrid adapts the chunk store to plenish.Grid.
type blockGrid struct {
	dim     string
	store   *ChunkStore
	classes []plenish.Cell
	// placed maps a fluid id to the full-level block written when it is placed.
	placed map[string]uint16

	onPlace func(c plenish.Coord, from, to uint16, fluid string)
}

func newBlockGrid(dim string, store *ChunkStore, cats *catalogs.Catalogs) *blockGrid {
	g := &blockGrid{
		dim:     dim,
		store:   store,
		classes: make([]plenish.Cell, len(cats.Blocks.Palette)),
		placed:  map[string]uint16{},
	}
	for i, id := range cats.Blocks.Palette {
		g.classes[i] = classifyBlock(cats.Blocks.Defs[id])
	}
	for id, fd := range cats.Fluids.Defs {
		block := fd.SourceBlock
		if block == "" {
			block = fd.FlowingBlock
		}
		if v, ok := cats.Blocks.Index[block]; ok && fd.Placeable {
			g.placed[id] = v
		}
	}
	return g
}

func classifyBlock(d catalogs.BlockDef) plenish.Cell {
	switch {
	case d.ID == "AIR":
		return plenish.CellEmpty
	case d.Transient:
		return plenish.CellTransientFluid
	case d.Fluid:
		return plenish.CellFluid
	case d.Replaceable:
		return plenish.CellReplaceable
	default:
		return plenish.CellSolid
	}
}

func (g *blockGrid) Exists(c plenish.Coord) bool {
	return c.Dim == g.dim && g.store.Exists(c)
}

func (g *blockGrid) Classify(c plenish.Coord) plenish.Cell {
	if c.Dim != g.dim {
		return plenish.CellSolid
	}
	b, ok := g.store.GetBlock(c)
	if !ok || int(b) >= len(g.classes) {
		return plenish.CellSolid
	}
	return g.classes[b]
}

func (g *blockGrid) Place(c plenish.Coord, fluid string) {
	to, ok := g.placed[fluid]
	if !ok || c.Dim != g.dim {
		return
	}
	from, ok := g.store.GetBlock(c)
	if !ok || !g.store.SetBlock(c, to) {
		return
	}
	if g.onPlace != nil {
		g.onPlace(c, from, to, fluid)
	}
}

package world

import (
	"fmt"

	"plenisher.ai/internal/sim/catalogs"
)

// basinCell is the side length of the terrain cells that may hold a basin.
const basinCell = 8

type WorldGen struct {
	Seed   int64
	Height int

	// Palette ids for terrain blocks.
	Air       uint16
	Bedrock   uint16
	Stone     uint16
	Dirt      uint16
	Grass     uint16
	TallGrass uint16
	Water     uint16
}

func NewWorldGen(seed int64, height int, cats *catalogs.Catalogs) (WorldGen, error) {
	b := func(id string) (uint16, error) {
		v, ok := cats.Blocks.Index[id]
		if !ok {
			return 0, fmt.Errorf("missing block id in palette: %s", id)
		}
		return v, nil
	}
	gen := WorldGen{Seed: seed, Height: height}
	for _, f := range []struct {
		id  string
		dst *uint16
	}{
		{"AIR", &gen.Air},
		{"BEDROCK", &gen.Bedrock},
		{"STONE", &gen.Stone},
		{"DIRT", &gen.Dirt},
		{"GRASS", &gen.Grass},
		{"TALL_GRASS", &gen.TallGrass},
		{"WATER", &gen.Water},
	} {
		v, err := b(f.id)
		if err != nil {
			return WorldGen{}, err
		}
		*f.dst = v
	}
	return gen, nil
}

// SurfaceY is the first air layer of flat ground.
func (g WorldGen) SurfaceY() int { return g.Height / 2 }

// column describes the generated profile of one (x,z) column.
type column struct {
	floor int  // first non-solid y
	basin bool // column lies inside a sunken basin
	water bool // the basin is pre-filled with water
}

func (g WorldGen) column(wx, wz int) column {
	surface := g.SurfaceY()
	bx, bz := floorDiv(wx, basinCell), floorDiv(wz, basinCell)
	hb := hash2(g.Seed, bx, bz)
	lx, lz := mod(wx, basinCell), mod(wz, basinCell)
	interior := lx > 0 && lx < basinCell-1 && lz > 0 && lz < basinCell-1
	if hb%3 != 0 || !interior {
		return column{floor: surface}
	}
	depth := 2 + int((hb>>8)%4)
	return column{floor: surface - depth, basin: true, water: (hb>>16)%5 == 0}
}

func (s *ChunkStore) generateChunk(ch *Chunk) {
	g := s.gen
	surface := g.SurfaceY()
	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			wx := ch.Key.CX*ChunkSize + x
			wz := ch.Key.CZ*ChunkSize + z
			col := g.column(wx, wz)
			for y := 0; y < ChunkSize; y++ {
				wy := ch.Key.CY*ChunkSize + y
				ch.Blocks[ch.index(x, y, z)] = g.blockAt(col, surface, wx, wy, wz)
			}
		}
	}
}

func (g WorldGen) blockAt(col column, surface, wx, wy, wz int) uint16 {
	switch {
	case wy < 0 || wy >= g.Height:
		return g.Air
	case wy == 0:
		return g.Bedrock
	case wy < col.floor-3:
		return g.Stone
	case wy < col.floor-1:
		return g.Dirt
	case wy == col.floor-1:
		if col.basin {
			return g.Dirt
		}
		return g.Grass
	case col.basin && wy < surface:
		if col.water {
			return g.Water
		}
		return g.Air
	case wy == col.floor && !col.basin && hash3(g.Seed, wx, wy, wz)%12 == 0:
		return g.TallGrass
	default:
		return g.Air
	}
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

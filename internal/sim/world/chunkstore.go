package world

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"plenisher.ai/internal/sim/plenish"
)

const ChunkSize = 16

const chunkVolume = ChunkSize * ChunkSize * ChunkSize

type ChunkKey struct {
	CX int
	CY int
	CZ int
}

func ChunkKeyOf(c plenish.Coord) ChunkKey {
	return ChunkKey{CX: floorDiv(c.X, ChunkSize), CY: floorDiv(c.Y, ChunkSize), CZ: floorDiv(c.Z, ChunkSize)}
}

func lessChunkKey(a, b ChunkKey) bool {
	if a.CX != b.CX {
		return a.CX < b.CX
	}
	if a.CY != b.CY {
		return a.CY < b.CY
	}
	return a.CZ < b.CZ
}

type Chunk struct {
	Key    ChunkKey
	Blocks []uint16 // len = 16^3

	// edited chunks differ from generated terrain and are persisted.
	edited bool
	dirty  bool
	hash   [32]byte
}

func (c *Chunk) index(x, y, z int) int {
	// x fastest, then z, then y
	return x + z*ChunkSize + y*ChunkSize*ChunkSize
}

func (c *Chunk) Get(x, y, z int) uint16 {
	return c.Blocks[c.index(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, b uint16) {
	i := c.index(x, y, z)
	if c.Blocks[i] == b {
		return
	}
	c.Blocks[i] = b
	c.dirty = true
	c.edited = true
}

func (c *Chunk) Edited() bool { return c.edited }

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for _, v := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:], v)
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// ChunkStore keeps the loaded chunks plus a cold map of edited chunks that
// were unloaded, so unloading never loses placed fluid.
type ChunkStore struct {
	gen WorldGen
	// Accessed only from the world loop goroutine.
	loaded map[ChunkKey]*Chunk
	cold   map[ChunkKey]*Chunk
}

func NewChunkStore(gen WorldGen) *ChunkStore {
	return &ChunkStore{
		gen:    gen,
		loaded: map[ChunkKey]*Chunk{},
		cold:   map[ChunkKey]*Chunk{},
	}
}

func (s *ChunkStore) Height() int { return s.gen.Height }

func (s *ChunkStore) inBounds(c plenish.Coord) bool {
	return c.Y >= 0 && c.Y < s.gen.Height
}

func (s *ChunkStore) IsLoaded(k ChunkKey) bool {
	_, ok := s.loaded[k]
	return ok
}

// Load makes k addressable, restoring it from the cold map or generating it.
func (s *ChunkStore) Load(k ChunkKey) *Chunk {
	if ch, ok := s.loaded[k]; ok {
		return ch
	}
	ch, ok := s.cold[k]
	if ok {
		delete(s.cold, k)
	} else {
		ch = &Chunk{Key: k, Blocks: make([]uint16, chunkVolume)}
		s.generateChunk(ch)
		ch.dirty = true
		_ = ch.Digest()
	}
	s.loaded[k] = ch
	return ch
}

// Unload drops k from the loaded set. Generated chunks are discarded; edited
// ones move to the cold map.
func (s *ChunkStore) Unload(k ChunkKey) bool {
	ch, ok := s.loaded[k]
	if !ok {
		return false
	}
	delete(s.loaded, k)
	if ch.edited {
		s.cold[k] = ch
	}
	return true
}

// LoadAround loads every chunk within radius chunks of c that intersects the
// vertical bounds.
func (s *ChunkStore) LoadAround(c plenish.Coord, radius int) int {
	center := ChunkKeyOf(c)
	maxCY := floorDiv(s.gen.Height-1, ChunkSize)
	n := 0
	for dy := -radius; dy <= radius; dy++ {
		cy := center.CY + dy
		if cy < 0 || cy > maxCY {
			continue
		}
		for dz := -radius; dz <= radius; dz++ {
			for dx := -radius; dx <= radius; dx++ {
				k := ChunkKey{CX: center.CX + dx, CY: cy, CZ: center.CZ + dz}
				if !s.IsLoaded(k) {
					s.Load(k)
					n++
				}
			}
		}
	}
	return n
}

func (s *ChunkStore) Exists(c plenish.Coord) bool {
	return s.inBounds(c) && s.IsLoaded(ChunkKeyOf(c))
}

// GetBlock returns the block at c, or false when c is not addressable.
func (s *ChunkStore) GetBlock(c plenish.Coord) (uint16, bool) {
	if !s.inBounds(c) {
		return 0, false
	}
	ch, ok := s.loaded[ChunkKeyOf(c)]
	if !ok {
		return 0, false
	}
	return ch.Get(mod(c.X, ChunkSize), mod(c.Y, ChunkSize), mod(c.Z, ChunkSize)), true
}

func (s *ChunkStore) SetBlock(c plenish.Coord, b uint16) bool {
	if !s.inBounds(c) {
		return false
	}
	ch, ok := s.loaded[ChunkKeyOf(c)]
	if !ok {
		return false
	}
	ch.Set(mod(c.X, ChunkSize), mod(c.Y, ChunkSize), mod(c.Z, ChunkSize), b)
	return true
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.loaded))
	for k := range s.loaded {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessChunkKey(keys[i], keys[j]) })
	return keys
}

// EditedChunks returns every edited chunk, loaded or cold, in key order.
func (s *ChunkStore) EditedChunks() []*Chunk {
	out := make([]*Chunk, 0)
	for _, ch := range s.loaded {
		if ch.edited {
			out = append(out, ch)
		}
	}
	for _, ch := range s.cold {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return lessChunkKey(out[i].Key, out[j].Key) })
	return out
}

// PutEdited installs persisted chunk contents. The chunk stays cold until
// something loads it.
func (s *ChunkStore) PutEdited(k ChunkKey, blocks []uint16) {
	ch := &Chunk{Key: k, Blocks: blocks, edited: true, dirty: true}
	if _, ok := s.loaded[k]; ok {
		s.loaded[k] = ch
		return
	}
	s.cold[k] = ch
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

package plenish

import "github.com/zyedidia/generic/mapset"

// nodeSet is an insertion-ordered coordinate set. Membership is answered by
// the mapset index; order is kept in a slice so the first frontier entry is
// stable across runs and across save/load.
type nodeSet struct {
	order   []Coord
	members mapset.Set[Coord]
}

func newNodeSet() *nodeSet {
	return &nodeSet{members: mapset.New[Coord]()}
}

func (s *nodeSet) Len() int { return s.members.Size() }

func (s *nodeSet) Has(c Coord) bool { return s.members.Has(c) }

// Add reports whether c was newly inserted.
func (s *nodeSet) Add(c Coord) bool {
	if s.members.Has(c) {
		return false
	}
	s.members.Put(c)
	s.order = append(s.order, c)
	return true
}

// First returns the oldest member still in the set.
func (s *nodeSet) First() (Coord, bool) {
	if len(s.order) == 0 {
		return Coord{}, false
	}
	return s.order[0], true
}

func (s *nodeSet) Remove(c Coord) {
	if !s.members.Has(c) {
		return
	}
	s.members.Remove(c)
	// Removal from the head is the hot path (frontier pop).
	if len(s.order) > 0 && s.order[0] == c {
		s.order = s.order[1:]
		return
	}
	for i, o := range s.order {
		if o == c {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// Slice returns a copy of the members in insertion order.
func (s *nodeSet) Slice() []Coord {
	out := make([]Coord, len(s.order))
	copy(out, s.order)
	return out
}

func (s *nodeSet) Clear() {
	s.order = nil
	s.members = mapset.New[Coord]()
}

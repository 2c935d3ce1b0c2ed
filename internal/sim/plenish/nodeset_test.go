package plenish

import "testing"

func TestNodeSet_InsertionOrder(t *testing.T) {
	s := newNodeSet()
	in := []Coord{c(3, 0, 0), c(1, 0, 0), c(2, 0, 0), c(1, 0, 0)}
	for _, p := range in {
		s.Add(p)
	}
	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
	first, ok := s.First()
	if !ok || first != c(3, 0, 0) {
		t.Fatalf("first = %v", first)
	}

	s.Remove(c(1, 0, 0))
	got := s.Slice()
	if len(got) != 2 || got[0] != c(3, 0, 0) || got[1] != c(2, 0, 0) {
		t.Fatalf("slice = %v", got)
	}

	s.Remove(c(3, 0, 0))
	if first, _ := s.First(); first != c(2, 0, 0) {
		t.Fatalf("first after head pop = %v", first)
	}
	s.Clear()
	if _, ok := s.First(); ok || s.Len() != 0 {
		t.Fatalf("clear left members")
	}
}

func TestNodeSet_DimensionIsPartOfIdentity(t *testing.T) {
	s := newNodeSet()
	s.Add(Coord{X: 1, Dim: "A"})
	if s.Has(Coord{X: 1, Dim: "B"}) {
		t.Fatalf("coords in different dimensions must differ")
	}
}

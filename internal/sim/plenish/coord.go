package plenish

import "fmt"

// Coord addresses one grid cell in a dimension. It is a value type and is
// used directly as a set/map key.
type Coord struct {
	X, Y, Z int
	Dim     string
}

type Dir uint8

const (
	Down Dir = iota
	Up
	North
	South
	West
	East
)

var dirNames = [...]string{"DOWN", "UP", "NORTH", "SOUTH", "WEST", "EAST"}

func (d Dir) String() string {
	if int(d) < len(dirNames) {
		return dirNames[d]
	}
	return fmt.Sprintf("Dir(%d)", uint8(d))
}

// expandDirs is every face except Up, in face order. Fluid only ever spreads
// sideways or downward from a filled cell.
var expandDirs = [...]Dir{Down, North, South, West, East}

func (c Coord) Offset(d Dir) Coord {
	switch d {
	case Down:
		c.Y--
	case Up:
		c.Y++
	case North:
		c.Z--
	case South:
		c.Z++
	case West:
		c.X--
	case East:
		c.X++
	}
	return c
}

func (c Coord) Below() Coord { return c.Offset(Down) }

func (c Coord) ToArray() [3]int { return [3]int{c.X, c.Y, c.Z} }

func CoordFromArray(dim string, p [3]int) Coord {
	return Coord{X: p[0], Y: p[1], Z: p[2], Dim: dim}
}

func (c Coord) String() string {
	return fmt.Sprintf("%s(%d,%d,%d)", c.Dim, c.X, c.Y, c.Z)
}

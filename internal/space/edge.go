// Package space models the unified virtual screen shared by two endpoints and
// owns every computation on pointer coordinates.
package space

import (
	"fmt"
	"strings"
)

// Edge names one side of a rectangle. The numeric values are used on the wire.
type Edge uint8

const (
	EdgeLeft   Edge = 0
	EdgeRight  Edge = 1
	EdgeTop    Edge = 2
	EdgeBottom Edge = 3
)

var edgeNames = [...]string{"left", "right", "top", "bottom"}

// ParseEdge converts a configuration name ("left", "right", "top", "bottom") to an Edge.
func ParseEdge(s string) (Edge, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range edgeNames {
		if n == name {
			return Edge(i), nil
		}
	}
	return 0, fmt.Errorf("space: unknown edge %q", s)
}

// Valid reports whether e is one of the four defined edges.
func (e Edge) Valid() bool {
	return e <= EdgeBottom
}

func (e Edge) String() string {
	if !e.Valid() {
		return fmt.Sprintf("edge(%d)", uint8(e))
	}
	return edgeNames[e]
}

// Opposite returns the edge facing e across a shared boundary.
func (e Edge) Opposite() Edge {
	switch e {
	case EdgeLeft:
		return EdgeRight
	case EdgeRight:
		return EdgeLeft
	case EdgeTop:
		return EdgeBottom
	default:
		return EdgeTop
	}
}

// Horizontal reports whether crossing e moves the pointer along the x axis.
func (e Edge) Horizontal() bool {
	return e == EdgeLeft || e == EdgeRight
}

func (e Edge) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("space: invalid edge %d", uint8(e))
	}
	return []byte(e.String()), nil
}

func (e *Edge) UnmarshalText(text []byte) error {
	v, err := ParseEdge(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Align decides where the shorter screen sits along the axis perpendicular to
// the joined one.
type Align uint8

const (
	// AlignStart pins the shorter screen to the top (or left) of the virtual space.
	AlignStart Align = iota
	// AlignCenter centers the shorter screen.
	AlignCenter
)

func (a Align) String() string {
	if a == AlignCenter {
		return "center"
	}
	return "start"
}

// ParseAlign accepts "start", "top", "left", "center" and "middle".
func ParseAlign(s string) (Align, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "start", "top", "left":
		return AlignStart, nil
	case "center", "middle":
		return AlignCenter, nil
	}
	return 0, fmt.Errorf("space: unknown alignment %q", s)
}

func (a Align) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Align) UnmarshalText(text []byte) error {
	v, err := ParseAlign(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Role tells the two endpoints apart from the point of view of this process.
type Role uint8

const (
	RoleLocal Role = iota
	RoleRemote
)

// Peer returns the other role.
func (r Role) Peer() Role {
	if r == RoleLocal {
		return RoleRemote
	}
	return RoleLocal
}

func (r Role) String() string {
	if r == RoleRemote {
		return "remote"
	}
	return "local"
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "local":
		*r = RoleLocal
	case "remote":
		*r = RoleRemote
	default:
		return fmt.Errorf("space: unknown role %q", string(text))
	}
	return nil
}

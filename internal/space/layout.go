package space

import (
	"errors"
	"fmt"
)

// Point is a position in virtual or local pixel coordinates.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a screen resolution in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect is an axis-aligned rectangle; X/Y is the top-left pixel.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MaxX returns the last pixel column inside the rectangle.
func (r Rect) MaxX() int { return r.X + r.Width - 1 }

// MaxY returns the last pixel row inside the rectangle.
func (r Rect) MaxY() int { return r.Y + r.Height - 1 }

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.MaxX() && p.Y >= r.Y && p.Y <= r.MaxY()
}

// Clamp returns the point of r nearest to p.
func (r Rect) Clamp(p Point) Point {
	return Point{X: clamp(p.X, r.X, r.MaxX()), Y: clamp(p.Y, r.Y, r.MaxY())}
}

// Overlaps reports whether r and o share at least one pixel.
func (r Rect) Overlaps(o Rect) bool {
	return r.X <= o.MaxX() && o.X <= r.MaxX() && r.Y <= o.MaxY() && o.Y <= r.MaxY()
}

// Endpoint is one machine's screen placed inside the virtual space.
type Endpoint struct {
	Role   Role  `json:"role"`
	Screen Size  `json:"screen"`
	Origin Point `json:"origin"`
	// Outgoing is the edge of this rectangle that leads to the peer.
	Outgoing Edge `json:"outgoing"`
	// Incoming is the peer's edge that leads back here.
	Incoming Edge `json:"incoming"`
}

// Rect returns the endpoint's rectangle in virtual coordinates.
func (e Endpoint) Rect() Rect {
	return Rect{X: e.Origin.X, Y: e.Origin.Y, Width: e.Screen.Width, Height: e.Screen.Height}
}

// Layout is the static description both peers agree on before a session.
type Layout struct {
	Local  Size
	Remote Size
	// Position is the side of the virtual space the local screen occupies.
	Position Edge
	// RemotePosition must be the opposite side.
	RemotePosition Edge
	Align          Align
}

// ErrInvalidLayout is returned for layouts that cannot tile a virtual space.
var ErrInvalidLayout = errors.New("space: invalid layout")

// VirtualSpace is the immutable arrangement of both screens.
type VirtualSpace struct {
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Local  Endpoint `json:"local"`
	Remote Endpoint `json:"remote"`
}

// NewVirtualSpace joins the two screens along the axis implied by the layout
// positions. The sum of the sizes along that axis gives the virtual extent; the
// other extent is the larger of the two, with the shorter screen aligned per
// layout.Align.
func NewVirtualSpace(l Layout) (*VirtualSpace, error) {
	if l.Local.Width <= 0 || l.Local.Height <= 0 || l.Remote.Width <= 0 || l.Remote.Height <= 0 {
		return nil, fmt.Errorf("%w: screen sizes must be positive", ErrInvalidLayout)
	}
	if !l.Position.Valid() || !l.RemotePosition.Valid() {
		return nil, fmt.Errorf("%w: unknown position", ErrInvalidLayout)
	}
	if l.Position.Opposite() != l.RemotePosition {
		return nil, fmt.Errorf("%w: position %s and remote position %s are not opposite sides",
			ErrInvalidLayout, l.Position, l.RemotePosition)
	}

	vs := &VirtualSpace{
		Local:  Endpoint{Role: RoleLocal, Screen: l.Local},
		Remote: Endpoint{Role: RoleRemote, Screen: l.Remote},
	}

	// first is whichever screen sits on the left (or top).
	first, second := &vs.Local, &vs.Remote
	if l.Position == EdgeRight || l.Position == EdgeBottom {
		first, second = &vs.Remote, &vs.Local
	}

	if l.Position.Horizontal() {
		vs.Width = l.Local.Width + l.Remote.Width
		vs.Height = max(l.Local.Height, l.Remote.Height)
		first.Origin = Point{X: 0, Y: align(vs.Height, first.Screen.Height, l.Align)}
		second.Origin = Point{X: first.Screen.Width, Y: align(vs.Height, second.Screen.Height, l.Align)}
		first.Outgoing, second.Outgoing = EdgeRight, EdgeLeft
	} else {
		vs.Width = max(l.Local.Width, l.Remote.Width)
		vs.Height = l.Local.Height + l.Remote.Height
		first.Origin = Point{X: align(vs.Width, first.Screen.Width, l.Align), Y: 0}
		second.Origin = Point{X: align(vs.Width, second.Screen.Width, l.Align), Y: first.Screen.Height}
		first.Outgoing, second.Outgoing = EdgeBottom, EdgeTop
	}
	first.Incoming, second.Incoming = second.Outgoing, first.Outgoing

	return vs, nil
}

// Endpoint returns the endpoint playing role r.
func (vs *VirtualSpace) Endpoint(r Role) Endpoint {
	if r == RoleRemote {
		return vs.Remote
	}
	return vs.Local
}

// Bounds returns the whole virtual space as a rectangle.
func (vs *VirtualSpace) Bounds() Rect {
	return Rect{Width: vs.Width, Height: vs.Height}
}

// Owner returns the role whose rectangle contains p, if any. Points in the
// dead area next to a shorter screen belong to nobody.
func (vs *VirtualSpace) Owner(p Point) (Role, bool) {
	switch {
	case vs.Local.Rect().Contains(p):
		return RoleLocal, true
	case vs.Remote.Rect().Contains(p):
		return RoleRemote, true
	}
	return RoleLocal, false
}

func align(total, length int, a Align) int {
	if a == AlignCenter {
		return (total - length) / 2
	}
	return 0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

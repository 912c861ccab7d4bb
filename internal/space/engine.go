package space

// PointerState is the single authoritative pointer value of a session.
type PointerState struct {
	X     int  `json:"x"`
	Y     int  `json:"y"`
	Owner Role `json:"owner"`
}

// Point returns the position part of the state.
func (s PointerState) Point() Point { return Point{X: s.X, Y: s.Y} }

// Engine holds the PointerState and performs every coordinate conversion.
// It is not safe for concurrent use; the session control loop owns it.
type Engine struct {
	space *VirtualSpace
	state PointerState
}

// NewEngine places the pointer at the center of the owner's screen.
func NewEngine(vs *VirtualSpace, owner Role) *Engine {
	r := vs.Endpoint(owner).Rect()
	return &Engine{
		space: vs,
		state: PointerState{
			X:     r.X + r.Width/2,
			Y:     r.Y + r.Height/2,
			Owner: owner,
		},
	}
}

// Space returns the virtual space the engine works in.
func (e *Engine) Space() *VirtualSpace { return e.space }

// State returns a copy of the pointer state.
func (e *Engine) State() PointerState { return e.state }

// Position returns the current virtual position.
func (e *Engine) Position() Point { return e.state.Point() }

// SetOwner records which endpoint holds control.
func (e *Engine) SetOwner(r Role) { e.state.Owner = r }

// LocalToVirtual maps a pixel on the endpoint's screen into virtual space.
// Out-of-range input is clamped to the screen, never rejected.
func (e *Engine) LocalToVirtual(r Role, x, y int) Point {
	ep := e.space.Endpoint(r)
	x = clamp(x, 0, ep.Screen.Width-1)
	y = clamp(y, 0, ep.Screen.Height-1)
	return Point{X: x + ep.Origin.X, Y: y + ep.Origin.Y}
}

// VirtualToLocal maps a virtual position to the endpoint's screen, clamped to
// that screen.
func (e *Engine) VirtualToLocal(r Role, p Point) (x, y int) {
	ep := e.space.Endpoint(r)
	x = clamp(p.X-ep.Origin.X, 0, ep.Screen.Width-1)
	y = clamp(p.Y-ep.Origin.Y, 0, ep.Screen.Height-1)
	return x, y
}

// ApplyDelta moves the pointer by a relative amount. The result is clamped to
// the virtual space; hitting the border is a stop, not a crossing.
func (e *Engine) ApplyDelta(dx, dy int) {
	e.state.X = clamp(e.state.X+dx, 0, e.space.Width-1)
	e.state.Y = clamp(e.state.Y+dy, 0, e.space.Height-1)
}

// ApplyAbsolute sets the pointer to p, clamped to the virtual space.
func (e *Engine) ApplyAbsolute(p Point) {
	e.state.X = clamp(p.X, 0, e.space.Width-1)
	e.state.Y = clamp(p.Y, 0, e.space.Height-1)
}

// ClampTo pulls the pointer back inside the endpoint's rectangle.
func (e *Engine) ClampTo(r Role) {
	p := e.space.Endpoint(r).Rect().Clamp(e.Position())
	e.state.X, e.state.Y = p.X, p.Y
}

// Crossing reports whether the pointer, after a move of (dx, dy), sits at or
// beyond the outgoing boundary of role r while travelling toward it. The
// threshold widens the boundary band inward by that many pixels.
//
// Only the outgoing edge can trigger a crossing, so a pointer driven into a
// corner resolves to that edge; the remaining edges are plain screen stops.
func (e *Engine) Crossing(r Role, dx, dy, threshold int) (Edge, bool) {
	ep := e.space.Endpoint(r)
	rect := ep.Rect()
	p := e.Position()
	if threshold < 0 {
		threshold = 0
	}

	switch ep.Outgoing {
	case EdgeRight:
		return EdgeRight, dx > 0 && p.X >= rect.MaxX()-threshold
	case EdgeLeft:
		return EdgeLeft, dx < 0 && p.X <= rect.X+threshold
	case EdgeBottom:
		return EdgeBottom, dy > 0 && p.Y >= rect.MaxY()-threshold
	case EdgeTop:
		return EdgeTop, dy < 0 && p.Y <= rect.Y+threshold
	}
	return ep.Outgoing, false
}

// Entry computes where the pointer lands on the peer's side when role r
// crosses its edge: the first pixel inside the peer's rectangle along the
// crossing axis, with the perpendicular coordinate kept and clamped.
func (e *Engine) Entry(r Role, edge Edge) Point {
	peer := e.space.Endpoint(r.Peer()).Rect()
	p := e.Position()

	switch edge {
	case EdgeRight:
		return Point{X: peer.X, Y: clamp(p.Y, peer.Y, peer.MaxY())}
	case EdgeLeft:
		return Point{X: peer.MaxX(), Y: clamp(p.Y, peer.Y, peer.MaxY())}
	case EdgeBottom:
		return Point{X: clamp(p.X, peer.X, peer.MaxX()), Y: peer.Y}
	default:
		return Point{X: clamp(p.X, peer.X, peer.MaxX()), Y: peer.MaxY()}
	}
}

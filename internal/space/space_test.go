package space

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleLayout() Layout {
	return Layout{
		Local:          Size{Width: 2600, Height: 1440},
		Remote:         Size{Width: 1920, Height: 1080},
		Position:       EdgeLeft,
		RemotePosition: EdgeRight,
		Align:          AlignStart,
	}
}

func TestVirtualSpaceExample(t *testing.T) {
	vs, err := NewVirtualSpace(exampleLayout())
	require.NoError(t, err)

	assert.Equal(t, 4520, vs.Width)
	assert.Equal(t, 1440, vs.Height)
	assert.Equal(t, Rect{X: 0, Y: 0, Width: 2600, Height: 1440}, vs.Local.Rect())
	assert.Equal(t, Rect{X: 2600, Y: 0, Width: 1920, Height: 1080}, vs.Remote.Rect())
	assert.Equal(t, 2599, vs.Local.Rect().MaxX())
	assert.Equal(t, 4519, vs.Remote.Rect().MaxX())
	assert.Equal(t, 1079, vs.Remote.Rect().MaxY())
	assert.Equal(t, EdgeRight, vs.Local.Outgoing)
	assert.Equal(t, EdgeLeft, vs.Local.Incoming)
	assert.Equal(t, EdgeLeft, vs.Remote.Outgoing)
}

func TestVirtualSpaceCentered(t *testing.T) {
	l := exampleLayout()
	l.Align = AlignCenter
	vs, err := NewVirtualSpace(l)
	require.NoError(t, err)

	assert.Equal(t, Point{X: 2600, Y: 180}, vs.Remote.Origin)
}

func TestVirtualSpaceRejectsBadLayouts(t *testing.T) {
	l := exampleLayout()
	l.RemotePosition = EdgeTop
	_, err := NewVirtualSpace(l)
	assert.ErrorIs(t, err, ErrInvalidLayout)

	l = exampleLayout()
	l.Remote.Width = 0
	_, err = NewVirtualSpace(l)
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

// The two rectangles must be disjoint, touch along the configured edge, and
// span the virtual space exactly along both axes. Equal screens cover it.
func TestRectanglesTileVirtualSpace(t *testing.T) {
	sizes := []Size{{1920, 1080}, {2600, 1440}, {1280, 800}, {3840, 2160}, {1, 1}}
	positions := []Edge{EdgeLeft, EdgeRight, EdgeTop, EdgeBottom}

	for _, a := range sizes {
		for _, b := range sizes {
			for _, pos := range positions {
				for _, al := range []Align{AlignStart, AlignCenter} {
					vs, err := NewVirtualSpace(Layout{Local: a, Remote: b, Position: pos, RemotePosition: pos.Opposite(), Align: al})
					require.NoError(t, err)

					lr, rr := vs.Local.Rect(), vs.Remote.Rect()
					assert.False(t, lr.Overlaps(rr), "rectangles overlap: %+v %+v", lr, rr)

					bounds := vs.Bounds()
					for _, r := range []Rect{lr, rr} {
						assert.True(t, bounds.Contains(Point{r.X, r.Y}))
						assert.True(t, bounds.Contains(Point{r.MaxX(), r.MaxY()}))
					}
					assert.Equal(t, 0, min(lr.X, rr.X))
					assert.Equal(t, 0, min(lr.Y, rr.Y))
					assert.Equal(t, vs.Width-1, max(lr.MaxX(), rr.MaxX()))
					assert.Equal(t, vs.Height-1, max(lr.MaxY(), rr.MaxY()))

					// Shared boundary: the outgoing edge of one is adjacent to the other.
					switch vs.Local.Outgoing {
					case EdgeRight:
						assert.Equal(t, lr.MaxX()+1, rr.X)
					case EdgeLeft:
						assert.Equal(t, rr.MaxX()+1, lr.X)
					case EdgeBottom:
						assert.Equal(t, lr.MaxY()+1, rr.Y)
					case EdgeTop:
						assert.Equal(t, rr.MaxY()+1, lr.Y)
					}
					assert.Equal(t, vs.Local.Outgoing.Opposite(), vs.Remote.Outgoing)

					if a == b {
						// no dead space: the union is the whole virtual space
						assert.Equal(t, vs.Width*vs.Height, lr.Width*lr.Height+rr.Width*rr.Height)
					}
				}
			}
		}
	}
}

func TestParseEdge(t *testing.T) {
	e, err := ParseEdge(" Right ")
	require.NoError(t, err)
	assert.Equal(t, EdgeRight, e)

	_, err = ParseEdge("diagonal")
	assert.Error(t, err)

	var decoded Edge
	require.NoError(t, decoded.UnmarshalText([]byte("bottom")))
	assert.Equal(t, EdgeBottom, decoded)
	assert.False(t, Edge(9).Valid())
}

// Package tray provides a system tray status indicator using getlantern/systray.
package tray

import (
	"fmt"

	"github.com/getlantern/systray"

	"github.com/shinamon610/ShareMouse/internal/arbiter"
	"github.com/shinamon610/ShareMouse/internal/session"
)

// Tray shows the session state in the system tray and offers a stop item.
// It implements session.Observer.
type Tray struct {
	onStop  func()
	updates chan session.Status
	quitCh  chan struct{}

	state    *systray.MenuItem
	peer     *systray.MenuItem
	position *systray.MenuItem
}

// New creates a tray whose "Stop session" item calls onStop.
func New(onStop func()) *Tray {
	return &Tray{
		onStop:  onStop,
		updates: make(chan session.Status, 1),
		quitCh:  make(chan struct{}),
	}
}

// Run starts the tray event loop (blocks). On macOS it must run on the main
// goroutine.
func (t *Tray) Run() {
	systray.Run(t.setupMenu, func() { close(t.quitCh) })
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

// OnStatus implements session.Observer. Only the latest status is kept.
func (t *Tray) OnStatus(st session.Status) {
	for {
		select {
		case t.updates <- st:
			return
		default:
		}
		select {
		case <-t.updates:
		default:
		}
	}
}

// OnTransition implements session.Observer; status updates carry the state.
func (t *Tray) OnTransition(session.Transition) {}

// setupMenu is called when systray is ready
func (t *Tray) setupMenu() {
	systray.SetIcon(getIcon())
	systray.SetTitle("ShareMouse")
	systray.SetTooltip("ShareMouse: starting")

	t.state = systray.AddMenuItem("State: starting", "")
	t.state.Disable()
	t.peer = systray.AddMenuItem("Peer: unknown", "")
	t.peer.Disable()
	t.position = systray.AddMenuItem("Pointer: -", "")
	t.position.Disable()
	systray.AddSeparator()
	stop := systray.AddMenuItem("Stop session", "Stop sharing and quit")

	go func() {
		for {
			select {
			case st := <-t.updates:
				t.render(st)
			case <-stop.ClickedCh:
				stop.Disable()
				if t.onStop != nil {
					t.onStop()
				}
			case <-t.quitCh:
				return
			}
		}
	}()
}

func (t *Tray) render(st session.Status) {
	l := describe(st)
	systray.SetTitle(l.title)
	systray.SetTooltip(l.tooltip)
	t.state.SetTitle(l.state)
	t.peer.SetTitle(l.peer)
	t.position.SetTitle(l.position)
}

type labels struct {
	title, tooltip, state, peer, position string
}

func describe(st session.Status) labels {
	l := labels{
		state:    "State: " + st.State.String(),
		peer:     fmt.Sprintf("Peer: %s (%s)", st.Transport.Peer, st.Peer.Liveness),
		position: fmt.Sprintf("Pointer: %d,%d on %s screen", st.Position.X, st.Position.Y, st.Owner),
	}

	switch {
	case !st.Running && st.Error != "":
		l.title = "ShareMouse ✕"
		l.tooltip = "ShareMouse: stopped: " + st.Error
		l.state = "State: stopped"
	case !st.Running:
		l.title = "ShareMouse ✕"
		l.tooltip = "ShareMouse: stopped"
		l.state = "State: stopped"
	case st.State == arbiter.Active:
		l.title = "ShareMouse ●"
		l.tooltip = "ShareMouse: pointer on this screen"
	case st.State == arbiter.HandoffPending:
		l.title = "ShareMouse ◐"
		l.tooltip = "ShareMouse: handing off"
	default:
		l.title = "ShareMouse ○"
		l.tooltip = "ShareMouse: pointer on peer screen"
	}
	return l
}

// getIcon returns a placeholder icon (valid 16x16 ICO)
func getIcon() []byte {
	// A valid 16x16 32-bit ICO file with correct size and DIB header
	icon := make([]byte, 1118)
	// ICO Header
	copy(icon[0:6], []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00})
	// Icon Directory
	copy(icon[6:22], []byte{
		0x10, 0x10, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00,
		0x48, 0x04, 0x00, 0x00, // 1024 pixel bytes + 40 header + 32 mask
		0x16, 0x00, 0x00, 0x00, // offset
	})
	// DIB Header
	copy(icon[22:62], []byte{
		0x28, 0x00, 0x00, 0x00, // size
		0x10, 0x00, 0x00, 0x00, // width
		0x20, 0x00, 0x00, 0x00, // height, doubled for the mask
		0x01, 0x00, // planes
		0x20, 0x00, // bpp
		0x00, 0x00, 0x00, 0x00, // compression
		0x00, 0x04, 0x00, 0x00, // image size
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	})
	return icon
}

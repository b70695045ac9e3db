package window

import (
	"encoding/binary"
	"fmt"
	"image"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
)

// X11 finds windows through EWMH properties on the root window.
type X11 struct {
	conn  *xgb.Conn
	root  xproto.Window
	atoms map[string]xproto.Atom
}

// OpenX11 connects to the X server named by $DISPLAY.
func OpenX11() (*X11, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	screen := xproto.Setup(conn).DefaultScreen(conn)
	return &X11{
		conn:  conn,
		root:  screen.Root,
		atoms: make(map[string]xproto.Atom),
	}, nil
}

// Close closes the X11 connection.
func (x *X11) Close() error {
	x.conn.Close()
	return nil
}

// Focused returns _NET_ACTIVE_WINDOW, falling back to the input focus.
func (x *X11) Focused() (*Info, error) {
	win := xproto.Window(0)
	if reply, err := x.property(x.root, "_NET_ACTIVE_WINDOW"); err == nil && len(reply) >= 4 {
		win = xproto.Window(binary.LittleEndian.Uint32(reply))
	}
	if win == 0 {
		focus, err := xproto.GetInputFocus(x.conn).Reply()
		if err != nil {
			return nil, fmt.Errorf("failed to get input focus: %w", err)
		}
		win = focus.Focus
	}

	info, err := x.info(win)
	if err != nil {
		return nil, err
	}
	info.Focused = true
	return info, nil
}

// List returns the windows in _NET_CLIENT_LIST that have a title or class.
func (x *X11) List() ([]*Info, error) {
	log := logger.WithComponent("window")

	value, err := x.property(x.root, "_NET_CLIENT_LIST")
	if err != nil {
		return nil, fmt.Errorf("failed to read _NET_CLIENT_LIST: %w", err)
	}

	windows := make([]*Info, 0)
	for _, id := range decodeIDs(value) {
		info, err := x.info(xproto.Window(id))
		if err != nil {
			log.Debug().Uint32("winID", id).Err(err).Msg("Skipping window")
			continue
		}
		if info.Title == "" && info.Class == "" {
			continue
		}
		windows = append(windows, info)
	}
	log.Debug().Int("count", len(windows)).Msg("Listed windows")
	return windows, nil
}

func (x *X11) info(win xproto.Window) (*Info, error) {
	geom, err := xproto.GetGeometry(x.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get geometry of window %d: %w", win, err)
	}
	// Geometry is relative to the parent, which is usually a frame.
	pos, err := xproto.TranslateCoordinates(x.conn, win, x.root, 0, 0).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to translate window %d: %w", win, err)
	}

	info := &Info{
		ID: uint32(win),
		Bounds: image.Rect(int(pos.DstX), int(pos.DstY),
			int(pos.DstX)+int(geom.Width), int(pos.DstY)+int(geom.Height)),
	}

	if title, err := x.property(win, "_NET_WM_NAME"); err == nil {
		info.Title = string(title)
	} else if title, err := x.property(win, "WM_NAME"); err == nil {
		info.Title = string(title)
	}
	if class, err := x.property(win, "WM_CLASS"); err == nil {
		info.Class = parseClass(string(class))
	}
	if pid, err := x.property(win, "_NET_WM_PID"); err == nil && len(pid) >= 4 {
		info.PID = int(binary.LittleEndian.Uint32(pid))
	}
	return info, nil
}

func (x *X11) atom(name string) (xproto.Atom, error) {
	if a, ok := x.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(x.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	x.atoms[name] = reply.Atom
	return reply.Atom, nil
}

func (x *X11) property(win xproto.Window, name string) ([]byte, error) {
	atom, err := x.atom(name)
	if err != nil {
		return nil, err
	}
	reply, err := xproto.GetProperty(x.conn, false, win, atom,
		xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, err
	}
	if reply.ValueLen == 0 {
		return nil, fmt.Errorf("empty property %s", name)
	}
	return reply.Value, nil
}

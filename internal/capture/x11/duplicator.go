package x11

import (
	"fmt"
	"image"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/damage"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/FocusRecorder/internal/capture"
	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
)

const pollInterval = 2 * time.Millisecond

// Duplicator reports root window changes through the DAMAGE extension.
// X11 has no notion of moved rectangles, so every change is reported dirty.
type Duplicator struct {
	conn   *xgb.Conn
	root   xproto.Window
	bounds image.Rectangle
	damage damage.Damage
	parts  xfixes.Region

	first   bool
	damaged bool
	cursor  cursorState
	pointer capture.Pointer
}

// NewDuplicator opens a dedicated connection and starts tracking damage on
// the root window.
func NewDuplicator() (*Duplicator, error) {
	log := logger.WithComponent("x11-capturer")

	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	d, err := newDuplicator(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	log.Debug().
		Str("bounds", d.bounds.String()).
		Msg("Damage tracking started")
	return d, nil
}

func newDuplicator(conn *xgb.Conn) (*Duplicator, error) {
	screen := xproto.Setup(conn).DefaultScreen(conn)

	if err := initXFixes(conn); err != nil {
		return nil, fmt.Errorf("XFIXES extension not available: %w", err)
	}
	if err := damage.Init(conn); err != nil {
		return nil, fmt.Errorf("DAMAGE extension not available: %w", err)
	}
	if _, err := damage.QueryVersion(conn, 1, 1).Reply(); err != nil {
		return nil, fmt.Errorf("failed to negotiate DAMAGE version: %w", err)
	}

	d := &Duplicator{
		conn:   conn,
		root:   screen.Root,
		bounds: image.Rect(0, 0, int(screen.WidthInPixels), int(screen.HeightInPixels)),
		first:  true,
	}

	d.damage, _ = damage.NewDamageId(conn)
	if err := damage.CreateChecked(conn, d.damage, xproto.Drawable(d.root), damage.ReportLevelNonEmpty).Check(); err != nil {
		return nil, fmt.Errorf("failed to create damage object: %w", err)
	}

	d.parts, _ = xfixes.NewRegionId(conn)
	if err := xfixes.CreateRegionChecked(conn, d.parts, nil).Check(); err != nil {
		return nil, fmt.Errorf("failed to create region: %w", err)
	}

	if err := xfixes.SelectCursorInputChecked(conn, d.root, xfixes.CursorNotifyMaskDisplayCursor).Check(); err != nil {
		return nil, fmt.Errorf("failed to select cursor input: %w", err)
	}
	return d, nil
}

// AcquireNextFrame waits up to timeout for damage or cursor activity.
func (d *Duplicator) AcquireNextFrame(timeout time.Duration) (*capture.DuplicatedFrame, error) {
	deadline := time.Now().Add(timeout)
	for {
		if err := d.drainEvents(); err != nil {
			return nil, err
		}

		frame, err := d.collect()
		if err != nil {
			return nil, err
		}
		if frame != nil {
			return frame, nil
		}
		if !time.Now().Before(deadline) {
			return nil, capture.ErrWaitTimeout
		}
		time.Sleep(pollInterval)
	}
}

func (d *Duplicator) drainEvents() error {
	for {
		ev, xerr := d.conn.PollForEvent()
		if xerr != nil {
			return mapError(xerr)
		}
		if ev == nil {
			return nil
		}
		switch ev.(type) {
		case damage.NotifyEvent:
			d.damaged = true
		case xfixes.CursorNotifyEvent:
			// Picked up by the cursor poll in collect.
		}
	}
}

// collect builds the frame description, or returns nil when nothing changed.
func (d *Duplicator) collect() (*capture.DuplicatedFrame, error) {
	frame := &capture.DuplicatedFrame{}
	changed := false

	if d.first {
		d.first = false
		d.damaged = false
		if err := d.subtract(); err != nil {
			return nil, err
		}
		frame.Dirty = []image.Rectangle{d.bounds}
		changed = true
	} else if d.damaged {
		d.damaged = false
		rects, err := d.fetchDamage()
		if err != nil {
			return nil, err
		}
		frame.Dirty = rects
		changed = len(rects) > 0
	}

	p, shape, shapeChanged, err := d.cursor.poll(d.conn)
	if err != nil {
		return nil, err
	}
	if shapeChanged {
		frame.Shape = shape
		changed = true
	}
	if p != d.pointer {
		d.pointer = p
		frame.PointerUpdated = true
		changed = true
	}
	frame.Pointer = d.pointer

	if !changed {
		return nil, nil
	}
	return frame, nil
}

// subtract clears the accumulated damage into the parts region.
func (d *Duplicator) subtract() error {
	if err := damage.SubtractChecked(d.conn, d.damage, xfixes.Region(0), d.parts).Check(); err != nil {
		return fmt.Errorf("failed to subtract damage: %w", mapError(err))
	}
	return nil
}

func (d *Duplicator) fetchDamage() ([]image.Rectangle, error) {
	if err := d.subtract(); err != nil {
		return nil, err
	}
	reply, err := xfixes.FetchRegion(d.conn, d.parts).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch damaged region: %w", mapError(err))
	}

	rects := make([]image.Rectangle, 0, len(reply.Rectangles))
	for _, r := range reply.Rectangles {
		rects = append(rects, image.Rect(int(r.X), int(r.Y), int(r.X)+int(r.Width), int(r.Y)+int(r.Height)))
	}
	return rects, nil
}

func (d *Duplicator) CopyRect(dst []byte, stride int, dstOrigin image.Point, src image.Rectangle) error {
	clipped := src.Intersect(d.bounds)
	dstOrigin = dstOrigin.Add(clipped.Min.Sub(src.Min))
	return getImage(d.conn, xproto.Drawable(d.root), clipped, dst, stride, dstOrigin)
}

// ReleaseFrame is a no-op: GetImage replies are owned by the caller.
func (d *Duplicator) ReleaseFrame() error {
	return nil
}

func (d *Duplicator) Close() error {
	damage.Destroy(d.conn, d.damage)
	xfixes.DestroyRegion(d.conn, d.parts)
	d.conn.Close()
	return nil
}

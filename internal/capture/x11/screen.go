// Package x11 implements the capture back-ends on top of an X11 (or
// XWayland) display: GetImage for synchronous grabs, XFIXES for the cursor
// and DAMAGE for change tracking.
package x11

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/FocusRecorder/internal/capture"
	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
)

// Screen grabs pixels and the cursor from the root window of the default screen.
type Screen struct {
	conn          *xgb.Conn
	root          xproto.Window
	screen        *xproto.ScreenInfo
	xfixesEnabled bool
	cursor        cursorState
	mu            sync.Mutex
}

// Open connects to the X server named by $DISPLAY.
func Open() (*Screen, error) {
	log := logger.WithComponent("x11-capturer")

	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	s := &Screen{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
	}

	if depth := screen.RootDepth; depth != 24 && depth != 32 {
		conn.Close()
		return nil, fmt.Errorf("unsupported root depth %d", depth)
	}

	if err := initXFixes(conn); err != nil {
		log.Warn().
			Err(err).
			Msg("XFIXES extension not available - cursor will not be captured")
	} else {
		s.xfixesEnabled = true
	}

	log.Info().
		Int("width", int(screen.WidthInPixels)).
		Int("height", int(screen.HeightInPixels)).
		Uint8("depth", screen.RootDepth).
		Msg("Connected to X server")
	return s, nil
}

func initXFixes(conn *xgb.Conn) error {
	if err := xfixes.Init(conn); err != nil {
		return err
	}
	// XFIXES requires the version handshake before any other request.
	if _, err := xfixes.QueryVersion(conn, 5, 0).Reply(); err != nil {
		return fmt.Errorf("failed to negotiate XFIXES version: %w", err)
	}
	return nil
}

// Bounds returns the root window rectangle.
func (s *Screen) Bounds() image.Rectangle {
	return image.Rect(0, 0, int(s.screen.WidthInPixels), int(s.screen.HeightInPixels))
}

// Grab copies region of the root window into dst.
func (s *Screen) Grab(region image.Rectangle, dst []byte, stride int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getImage(s.conn, xproto.Drawable(s.root), region, dst, stride, image.Point{})
}

// Cursor returns the pointer position and the current cursor image.
func (s *Screen) Cursor() (capture.Pointer, *capture.CursorShape, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.xfixesEnabled {
		reply, err := xproto.QueryPointer(s.conn, s.root).Reply()
		if err != nil {
			return capture.Pointer{}, nil, mapError(err)
		}
		p := capture.Pointer{Position: image.Pt(int(reply.RootX), int(reply.RootY)), Visible: reply.SameScreen}
		return p, nil, nil
	}

	p, shape, _, err := s.cursor.poll(s.conn)
	return p, shape, err
}

// Platform returns the capture back-ends backed by this screen. The
// duplication factory opens its own connection for every Duplicator.
func (s *Screen) Platform() capture.Platform {
	return capture.Platform{
		Grabber: s,
		Cursor:  s,
		Duplicator: func() (capture.Duplicator, error) {
			return NewDuplicator()
		},
	}
}

// Close closes the X11 connection.
func (s *Screen) Close() error {
	s.conn.Close()
	return nil
}

// cursorState caches the last XFIXES cursor image so unchanged shapes are
// not converted again.
type cursorState struct {
	serial uint32
	shape  *capture.CursorShape
}

// poll reads the cursor image and reports whether its shape changed.
func (c *cursorState) poll(conn *xgb.Conn) (capture.Pointer, *capture.CursorShape, bool, error) {
	reply, err := xfixes.GetCursorImage(conn).Reply()
	if err != nil {
		return capture.Pointer{}, nil, false, mapError(err)
	}

	p := capture.Pointer{Position: image.Pt(int(reply.X), int(reply.Y)), Visible: reply.Width > 0}

	changed := c.shape == nil || reply.CursorSerial != c.serial
	if changed {
		c.serial = reply.CursorSerial
		c.shape = convertCursor(reply)
	}
	return p, c.shape, changed, nil
}

// convertCursor turns premultiplied ARGB words into BGRA bytes.
func convertCursor(reply *xfixes.GetCursorImageReply) *capture.CursorShape {
	w, h := int(reply.Width), int(reply.Height)
	pixels := make([]byte, w*h*capture.BytesPerPixel)
	for i, v := range reply.CursorImage {
		if i >= w*h {
			break
		}
		o := i * capture.BytesPerPixel
		pixels[o] = uint8(v)
		pixels[o+1] = uint8(v >> 8)
		pixels[o+2] = uint8(v >> 16)
		pixels[o+3] = uint8(v >> 24)
	}
	return &capture.CursorShape{
		Type:    capture.CursorColor,
		Width:   w,
		Height:  h,
		Hotspot: image.Pt(int(reply.Xhot), int(reply.Yhot)),
		Pixels:  pixels,
		Serial:  uint64(reply.CursorSerial),
	}
}

// getImage reads src from drawable and writes it into dst at dstOrigin with
// the alpha channel forced opaque.
func getImage(conn *xgb.Conn, drawable xproto.Drawable, src image.Rectangle, dst []byte, stride int, dstOrigin image.Point) error {
	if src.Empty() {
		return nil
	}

	reply, err := xproto.GetImage(
		conn,
		xproto.ImageFormatZPixmap,
		drawable,
		int16(src.Min.X), int16(src.Min.Y),
		uint16(src.Dx()), uint16(src.Dy()),
		0xffffffff,
	).Reply()
	if err != nil {
		return fmt.Errorf("failed to get image: %w", mapError(err))
	}

	rowBytes := src.Dx() * capture.BytesPerPixel
	if len(reply.Data) < rowBytes*src.Dy() {
		return fmt.Errorf("short image reply: got %d bytes, want %d", len(reply.Data), rowBytes*src.Dy())
	}

	for y := 0; y < src.Dy(); y++ {
		row := reply.Data[y*rowBytes : (y+1)*rowBytes]
		off := (dstOrigin.Y+y)*stride + dstOrigin.X*capture.BytesPerPixel
		out := dst[off : off+rowBytes]
		copy(out, row)
		for i := 3; i < rowBytes; i += capture.BytesPerPixel {
			out[i] = 0xFF
		}
	}
	return nil
}

// mapError turns the X errors raised when the root drawable or its
// configuration goes away into capture.ErrDeviceLost.
func mapError(err error) error {
	switch err.(type) {
	case xproto.MatchError, xproto.DrawableError, xproto.WindowError:
		return fmt.Errorf("%w: %v", capture.ErrDeviceLost, err)
	}
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: connection closed", capture.ErrDeviceLost)
	}
	return err
}

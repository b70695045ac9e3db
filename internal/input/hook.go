// Package input feeds global mouse and keyboard hooks into a recording.
package input

import (
	"context"
	"image"
	"math"
	"sync"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/events"
	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
	hook "github.com/robotn/gohook"
)

// Modifier bits of hook.Event.Mask.
const (
	maskShiftL   = 1 << 0
	maskCtrlL    = 1 << 1
	maskMetaL    = 1 << 2
	maskAltL     = 1 << 3
	maskShiftR   = 1 << 4
	maskCtrlR    = 1 << 5
	maskMetaR    = 1 << 6
	maskAltR     = 1 << 7
	maskCapsLock = 1 << 14
)

// wheelNotch is the delta of one wheel detent.
const wheelNotch = 120

// Target receives translated events. recorder.Session implements it.
type Target interface {
	Elapsed() time.Duration
	Push(e events.Event)
}

// Source delivers raw hook events. The default is the process-wide gohook.
type Source interface {
	Start() chan hook.Event
	End()
}

type gohookSource struct{}

// OSSource returns the process-wide OS hook.
func OSSource() Source { return gohookSource{} }

func (gohookSource) Start() chan hook.Event { return hook.Start() }
func (gohookSource) End()                   { hook.End() }

// Options selects the recorded devices and maps screen coordinates to the
// recorded frame.
type Options struct {
	Mouse    bool
	Keyboard bool

	// Origin is the top-left corner of the capture region.
	Origin image.Point
	// Scale is the output scale of the recording. Zero means 1.
	Scale float64

	// Source overrides the OS hook, for tests.
	Source Source
}

// Hook forwards OS input events to a Target while running.
type Hook struct {
	opts   Options
	target Target
	tr     translator

	mu      sync.Mutex
	running bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewHook returns a stopped hook.
func NewHook(target Target, opts Options) *Hook {
	if opts.Source == nil {
		opts.Source = gohookSource{}
	}
	return &Hook{
		opts:   opts,
		target: target,
		tr:     newTranslator(opts),
	}
}

// Start installs the hook. It returns immediately; events flow until Stop
// or ctx is done.
func (h *Hook) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || (!h.opts.Mouse && !h.opts.Keyboard) {
		return
	}

	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	h.running = true
	evChan := h.opts.Source.Start()

	logger.WithComponent("input").Info().
		Bool("mouse", h.opts.Mouse).
		Bool("keyboard", h.opts.Keyboard).
		Msg("Input hook installed")

	go h.loop(ctx, evChan)
}

func (h *Hook) loop(ctx context.Context, evChan chan hook.Event) {
	defer close(h.done)
	defer h.opts.Source.End()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evChan:
			if !ok {
				return
			}
			if e, ok := h.tr.translate(ev, h.target.Elapsed()); ok {
				h.target.Push(e)
			}
		}
	}
}

// Stop removes the hook and waits for the forwarding goroutine to exit.
func (h *Hook) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.cancel()
	done := h.done
	h.mu.Unlock()

	<-done
	logger.WithComponent("input").Info().Msg("Input hook removed")
}

// IsRunning reports whether the hook is installed.
func (h *Hook) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// translator turns raw hook events into recording events. It tracks the
// button state because the hook reports presses and releases separately.
type translator struct {
	mouse    bool
	keyboard bool
	origin   image.Point
	scale    float64

	buttons [5]bool
}

func newTranslator(opts Options) translator {
	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}
	return translator{
		mouse:    opts.Mouse,
		keyboard: opts.Keyboard,
		origin:   opts.Origin,
		scale:    scale,
	}
}

func (t *translator) translate(ev hook.Event, at time.Duration) (events.Event, bool) {
	switch ev.Kind {
	case hook.KeyHold:
		if !t.keyboard {
			return nil, false
		}
		return t.key(ev, at), true
	case hook.MouseHold, hook.MouseUp:
		if !t.mouse {
			return nil, false
		}
		if b, ok := button(ev.Button); ok {
			t.buttons[b] = ev.Kind == hook.MouseHold
		}
		return t.cursor(ev, at, 0), true
	case hook.MouseMove, hook.MouseDrag:
		if !t.mouse {
			return nil, false
		}
		return t.cursor(ev, at, 0), true
	case hook.MouseWheel:
		if !t.mouse {
			return nil, false
		}
		delta := -int(ev.Rotation) * wheelNotch
		delta = max(math.MinInt16, min(math.MaxInt16, delta))
		return t.cursor(ev, at, int16(delta)), true
	default:
		return nil, false
	}
}

func (t *translator) cursor(ev hook.Event, at time.Duration, wheel int16) events.CursorEvent {
	p := image.Pt(int(ev.X), int(ev.Y)).Sub(t.origin)
	if t.scale != 1 {
		p = image.Pt(int(math.Round(float64(p.X)*t.scale)), int(math.Round(float64(p.Y)*t.scale)))
	}
	return events.CursorEvent{
		Timestamp:  at,
		Position:   p,
		Buttons:    t.buttons,
		WheelDelta: wheel,
	}
}

func (t *translator) key(ev hook.Event, at time.Duration) events.KeyEvent {
	mods := modifiers(ev.Mask)
	shift := mods&events.ModShift != 0
	caps := ev.Mask&maskCapsLock != 0
	// The hook reports synthetic input like real input, so Injected is
	// left false.
	return events.KeyEvent{
		Timestamp: at,
		KeyCode:   int32(ev.Rawcode),
		Modifiers: mods,
		Uppercase: shift != caps,
	}
}

// button maps the hook's 1-based button number to a Buttons index.
func button(b uint16) (events.Button, bool) {
	if b < 1 || b > 5 {
		return 0, false
	}
	return events.Button(b - 1), true
}

func modifiers(mask uint16) events.Modifier {
	var m events.Modifier
	if mask&(maskShiftL|maskShiftR) != 0 {
		m |= events.ModShift
	}
	if mask&(maskCtrlL|maskCtrlR) != 0 {
		m |= events.ModCtrl
	}
	if mask&(maskAltL|maskAltR) != 0 {
		m |= events.ModAlt
	}
	if mask&(maskMetaL|maskMetaR) != 0 {
		m |= events.ModMeta
	}
	return m
}

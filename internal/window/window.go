// Package window finds application windows so a recording can follow one
// window's rectangle instead of a hand-typed region.
package window

import (
	"encoding/binary"
	"fmt"
	"image"
	"regexp"
	"strings"
)

// Info describes a top-level window.
type Info struct {
	ID      uint32          `json:"id"`
	Title   string          `json:"title"`
	Class   string          `json:"class"`
	PID     int             `json:"pid"`
	Bounds  image.Rectangle `json:"bounds"`
	Focused bool            `json:"focused"`
}

// Finder lists windows on a display.
type Finder interface {
	// Focused returns the window that has input focus.
	Focused() (*Info, error)
	// List returns the visible application windows.
	List() ([]*Info, error)
}

// Matches reports whether pattern matches the window's class or title.
func (i *Info) Matches(pattern *regexp.Regexp) bool {
	return pattern.MatchString(i.Class) || pattern.MatchString(i.Title)
}

// FocusedPattern selects the focused window in Resolve.
const FocusedPattern = "focused"

// Resolve returns the focused window for FocusedPattern and the result of
// Find otherwise.
func Resolve(f Finder, pattern string) (*Info, error) {
	if pattern == FocusedPattern {
		return f.Focused()
	}
	return Find(f, pattern)
}

// Find returns the first window whose class or title matches pattern,
// preferring the focused window.
func Find(f Finder, pattern string) (*Info, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid window pattern: %w", err)
	}

	if focused, err := f.Focused(); err == nil && focused.Matches(re) {
		return focused, nil
	}

	windows, err := f.List()
	if err != nil {
		return nil, err
	}
	for _, w := range windows {
		if w.Matches(re) {
			return w, nil
		}
	}
	return nil, fmt.Errorf("no window matches %q", pattern)
}

// Region clips the window to the screen, ready for use as a capture region.
func Region(w *Info, screen image.Rectangle) (image.Rectangle, error) {
	r := w.Bounds.Intersect(screen)
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("window %q is off screen", w.Title)
	}
	return r, nil
}

// parseClass returns the class part of WM_CLASS, which holds
// "instance\0class\0". It falls back to the instance.
func parseClass(raw string) string {
	parts := strings.Split(raw, "\x00")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return parts[0]
}

// decodeIDs reads an array of 32-bit window IDs from a property value.
func decodeIDs(b []byte) []uint32 {
	ids := make([]uint32, 0, len(b)/4)
	for i := 0; i+4 <= len(b); i += 4 {
		ids = append(ids, binary.LittleEndian.Uint32(b[i:]))
	}
	return ids
}

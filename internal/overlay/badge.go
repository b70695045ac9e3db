// Package overlay draws status text onto preview frames.
package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Badge is a line of text on a translucent background.
type Badge struct {
	// Position is the top-left corner of the badge.
	Position   image.Point
	TextColor  color.RGBA
	Background color.RGBA
	Padding    int
	// Opacity applies to the whole badge, from 0 to 1.
	Opacity float64
}

// DefaultBadge is white text on a dark background in the top-left corner.
func DefaultBadge() Badge {
	return Badge{
		Position:   image.Pt(8, 8),
		TextColor:  color.RGBA{255, 255, 255, 255},
		Background: color.RGBA{20, 20, 20, 255},
		Padding:    5,
		Opacity:    0.8,
	}
}

// Size returns the badge dimensions for text.
func (b Badge) Size(text string) image.Point {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	width := d.MeasureString(text).Ceil()
	return image.Pt(width+b.Padding*2, face.Metrics().Height.Ceil()+b.Padding*2)
}

// Render draws text onto img. Parts outside img are clipped.
func (b Badge) Render(img *image.RGBA, text string) {
	if text == "" || b.Opacity <= 0 {
		return
	}
	face := basicfont.Face7x13
	rect := image.Rectangle{Min: b.Position, Max: b.Position.Add(b.Size(text))}

	tile := image.NewRGBA(image.Rectangle{Max: rect.Size()})
	draw.Draw(tile, tile.Bounds(), image.NewUniform(b.Background), image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  tile,
		Src:  image.NewUniform(b.TextColor),
		Face: face,
		Dot:  fixed.P(b.Padding, b.Padding+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	mask := image.NewUniform(color.Alpha{A: uint8(min(b.Opacity, 1) * 255)})
	draw.DrawMask(img, rect, tile, image.Point{}, mask, image.Point{}, draw.Over)
}

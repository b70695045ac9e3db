package capture

import "image"

// BytesPerPixel of every frame buffer (BGRA, 8 bits per channel).
const BytesPerPixel = 4

// Frame is a reusable BGRA pixel buffer owned by the caller of a Device.
type Frame struct {
	Pixels []byte
	Width  int
	Height int
	Stride int
}

// NewFrame allocates a frame of the given size.
func NewFrame(width, height int) *Frame {
	f := &Frame{}
	f.Resize(width, height)
	return f
}

// Resize changes the frame dimensions, reusing the buffer when it is large enough.
func (f *Frame) Resize(width, height int) {
	f.Width = width
	f.Height = height
	f.Stride = width * BytesPerPixel
	size := f.Stride * height
	if cap(f.Pixels) < size {
		f.Pixels = make([]byte, size)
		return
	}
	f.Pixels = f.Pixels[:size]
}

// Len returns the uncompressed payload size in bytes.
func (f *Frame) Len() int {
	return f.Stride * f.Height
}

// Image exposes the buffer as an *image.RGBA without copying. Red and blue
// are swapped relative to RGBA; resampling treats channels independently, so
// the view is suitable for scaling but not for color-aware encoders.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pixels,
		Stride: f.Stride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// ToRGBA returns a color-correct copy of the frame.
func (f *Frame) ToRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Pixels[y*f.Stride : y*f.Stride+f.Width*BytesPerPixel]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*BytesPerPixel]
		for i := 0; i < len(src); i += BytesPerPixel {
			dst[i] = src[i+2]
			dst[i+1] = src[i+1]
			dst[i+2] = src[i]
			dst[i+3] = src[i+3]
		}
	}
	return img
}

// copyRect copies the rectangle r of src (in buffer coordinates) to dst at
// dstOrigin. Both buffers use BytesPerPixel; the copy is overlap-safe.
func copyRect(dst []byte, dstStride int, dstOrigin image.Point, src []byte, srcStride int, r image.Rectangle) {
	rowBytes := r.Dx() * BytesPerPixel
	if rowBytes <= 0 || r.Dy() <= 0 {
		return
	}
	// Copy bottom-up when moving down inside one buffer so rows are not
	// overwritten before they are read.
	start, end, step := 0, r.Dy(), 1
	if &dst[0] == &src[0] && dstOrigin.Y > r.Min.Y {
		start, end, step = r.Dy()-1, -1, -1
	}
	for y := start; y != end; y += step {
		s := (r.Min.Y+y)*srcStride + r.Min.X*BytesPerPixel
		d := (dstOrigin.Y+y)*dstStride + dstOrigin.X*BytesPerPixel
		copy(dst[d:d+rowBytes], src[s:s+rowBytes])
	}
}

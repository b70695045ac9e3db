package x11

import (
	"errors"
	"image"
	"io"
	"testing"

	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/FocusRecorder/internal/capture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertCursor(t *testing.T) {
	reply := &xfixes.GetCursorImageReply{
		Width:        2,
		Height:       1,
		Xhot:         1,
		Yhot:         0,
		CursorSerial: 42,
		CursorImage:  []uint32{0x80402010, 0xFF000000},
	}

	shape := convertCursor(reply)
	require.NotNil(t, shape)
	assert.Equal(t, capture.CursorColor, shape.Type)
	assert.Equal(t, image.Pt(1, 0), shape.Hotspot)
	assert.Equal(t, uint64(42), shape.Serial)
	assert.Equal(t, []byte{0x10, 0x20, 0x40, 0x80, 0, 0, 0, 0xFF}, shape.Pixels)
}

func TestMapError(t *testing.T) {
	err := mapError(xproto.DrawableError{})
	assert.ErrorIs(t, err, capture.ErrDeviceLost)

	err = mapError(io.EOF)
	assert.ErrorIs(t, err, capture.ErrDeviceLost)

	other := errors.New("other")
	assert.Equal(t, other, mapError(other))
}

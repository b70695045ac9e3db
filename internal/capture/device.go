package capture

import (
	"fmt"
	"image"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
)

// Kind selects a Device variant. It is chosen once per session.
type Kind string

const (
	KindFullFrame   Kind = "full"
	KindDuplication Kind = "duplication"
)

// ParseKind validates a configured device kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindFullFrame, KindDuplication:
		return k, nil
	case "":
		return KindFullFrame, nil
	default:
		return "", fmt.Errorf("unknown capture device %q (use %q or %q)", s, KindFullFrame, KindDuplication)
	}
}

// Platform bundles the back-ends a Device variant may need.
type Platform struct {
	Grabber    Grabber
	Cursor     CursorSource
	Duplicator DuplicatorFactory
}

// Options configures New.
type Options struct {
	Kind           Kind
	Region         image.Rectangle
	AcquireTimeout time.Duration
	OnError        ErrorHandler
}

// New builds the Device variant selected by opts.Kind.
func New(opts Options, platform Platform) (Device, error) {
	log := logger.WithComponent("capture")

	var (
		dev Device
		err error
	)
	switch opts.Kind {
	case KindFullFrame, "":
		dev, err = NewFullFrameDevice(platform.Grabber, platform.Cursor, opts.Region, opts.OnError)
	case KindDuplication:
		dev, err = NewDuplicationDevice(platform.Duplicator, opts.Region, opts.AcquireTimeout, opts.OnError)
	default:
		return nil, fmt.Errorf("unknown capture device %q", opts.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s capture device: %w", opts.Kind, err)
	}

	log.Info().
		Str("kind", string(opts.Kind)).
		Str("region", opts.Region.String()).
		Msg("Capture device ready")
	return dev, nil
}

package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned when a payload matches none of the known
	// container signatures
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrNoAudioData is returned when a payload decodes to zero samples
	ErrNoAudioData = errors.New("no audio data")

	// ErrSuperseded is returned when a pending microphone acquisition or decode
	// finished after a later stop, source switch or load replaced it
	ErrSuperseded = errors.New("operation superseded")

	// ErrEngineClosed is returned by operations on a closed engine
	ErrEngineClosed = errors.New("engine is closed")

	// ErrPermissionDenied is wrapped by CaptureDevice implementations when the
	// platform refuses access to the input device
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNoCaptureDevice is returned when the engine has no CaptureDevice
	ErrNoCaptureDevice = errors.New("no capture device configured")
)

// DecodeError reports a payload the decoder could not turn into PCM
type DecodeError struct {
	Format string // Detected container, empty when sniffing failed
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("decode audio: %v", e.Err)
	}
	return fmt.Sprintf("decode %s audio: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CaptureErrorKind classifies microphone acquisition failures
type CaptureErrorKind int

const (
	// DeviceUnavailable covers missing, busy or failing input devices
	DeviceUnavailable CaptureErrorKind = iota
	// PermissionDenied means the platform refused access to the input device
	PermissionDenied
)

func (k CaptureErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission denied"
	default:
		return "device unavailable"
	}
}

// CaptureError reports a failed microphone acquisition. The engine is left
// idle with no source connected.
type CaptureError struct {
	Kind CaptureErrorKind
	Err  error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("microphone %s: %v", e.Kind, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// asCaptureError classifies an acquisition failure. Errors that already are a
// *CaptureError pass through unchanged.
func asCaptureError(err error) *CaptureError {
	var cerr *CaptureError
	if errors.As(err, &cerr) {
		return cerr
	}
	kind := DeviceUnavailable
	if errors.Is(err, ErrPermissionDenied) {
		kind = PermissionDenied
	}
	return &CaptureError{Kind: kind, Err: err}
}

// asDecodeError wraps decoder failures that are not already a *DecodeError
func asDecodeError(err error) *DecodeError {
	var derr *DecodeError
	if errors.As(err, &derr) {
		return derr
	}
	return &DecodeError{Err: err}
}

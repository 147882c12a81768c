package region

import (
	"errors"
	"fmt"
)

// Kind classifies an extraction failure.
type Kind int

const (
	KindDecode Kind = iota + 1
	KindInvalidRegion
	KindEncode
)

func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode failure"
	case KindInvalidRegion:
		return "invalid region"
	case KindEncode:
		return "encode failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinel errors for errors.Is matching against an *Error.
var (
	ErrDecodeFailure = errors.New("snapshot decode failed")
	ErrInvalidRegion = errors.New("region does not intersect the snapshot")
	ErrEncodeFailure = errors.New("cropped image encode failed")
)

// Error is returned by every failing extraction.
type Error struct {
	Kind Kind
	Rect PhysicalRect
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindInvalidRegion:
		return fmt.Sprintf("%s: requested %s", ErrInvalidRegion, e.Rect)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.sentinel(), e.Err)
	default:
		return e.sentinel().Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindDecode:
		return ErrDecodeFailure
	case KindInvalidRegion:
		return ErrInvalidRegion
	case KindEncode:
		return ErrEncodeFailure
	default:
		return nil
	}
}

// KindOf returns the extraction kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

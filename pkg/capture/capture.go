// Package capture defines the contract of the privileged capture service:
// a fresh, lossless snapshot of the active tab's viewport at physical
// (device) resolution.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"time"
)

var (
	// ErrNoActiveTab is returned when no tab can be captured.
	ErrNoActiveTab = errors.New("no active tab")

	// ErrCaptureDenied is returned when the active tab's URL may not be captured.
	ErrCaptureDenied = errors.New("capture not allowed for this page")
)

// Snapshot is a full-viewport PNG taken at the tab's device pixel ratio.
// Snapshots are created per request and never reused.
type Snapshot struct {
	// Data holds the PNG-encoded bitmap.
	Data []byte

	// Width and Height are the bitmap dimensions in physical pixels.
	Width  int
	Height int

	// DevicePixelRatio is the tab's ratio read at capture time.
	DevicePixelRatio float64

	TabID      string
	URL        string
	CapturedAt time.Time
}

// Service captures the currently active tab.
type Service interface {
	CaptureActiveTab(ctx context.Context) (*Snapshot, error)
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc func(ctx context.Context) (*Snapshot, error)

// CaptureActiveTab calls f.
func (f ServiceFunc) CaptureActiveTab(ctx context.Context) (*Snapshot, error) {
	return f(ctx)
}

// NewSnapshot builds a Snapshot from PNG bytes, reading the dimensions from
// the PNG header.
func NewSnapshot(data []byte, dpr float64) (*Snapshot, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}
	if dpr <= 0 {
		dpr = 1
	}
	return &Snapshot{
		Data:             data,
		Width:            cfg.Width,
		Height:           cfg.Height,
		DevicePixelRatio: dpr,
		CapturedAt:       time.Now(),
	}, nil
}

package region

import (
	"fmt"
	"image"
	"math"

	"github.com/entrhq/snapsolve/pkg/types"
)

// PhysicalRect is a rectangle in device pixels, the coordinate space of a
// capture.Snapshot. It is only ever derived from a SelectionRect via
// ToPhysical.
type PhysicalRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ToPhysical converts a CSS pixel selection into device pixels using the
// device pixel ratio read at capture time. Origin and size are rounded
// independently so the size never drifts more than one pixel from
// r.Width*dpr and r.Height*dpr. A non-positive ratio is treated as 1.
func ToPhysical(r types.SelectionRect, dpr float64) PhysicalRect {
	if dpr <= 0 || math.IsNaN(dpr) || math.IsInf(dpr, 0) {
		dpr = 1
	}
	return PhysicalRect{
		X:      int(math.Round(r.X * dpr)),
		Y:      int(math.Round(r.Y * dpr)),
		Width:  int(math.Round(r.Width * dpr)),
		Height: int(math.Round(r.Height * dpr)),
	}
}

// Bounds returns the rectangle as an image.Rectangle.
func (p PhysicalRect) Bounds() image.Rectangle {
	return image.Rect(p.X, p.Y, p.X+p.Width, p.Y+p.Height)
}

// Empty reports whether the rectangle has no area.
func (p PhysicalRect) Empty() bool {
	return p.Width <= 0 || p.Height <= 0
}

func (p PhysicalRect) String() string {
	return fmt.Sprintf("%dx%d@(%d,%d)", p.Width, p.Height, p.X, p.Y)
}

func fromBounds(r image.Rectangle) PhysicalRect {
	return PhysicalRect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

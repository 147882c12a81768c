package types

import "fmt"

// MinSelectionSize is the smallest width or height, in CSS pixels, that the
// overlay accepts as a deliberate selection. Anything smaller is treated as
// an accidental click.
const MinSelectionSize = 10

// SelectionRect is a rectangle in CSS pixels relative to the top-left corner
// of the visible viewport (not the scrollable document).
type SelectionRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the rectangle meets the minimum selection size.
func (r SelectionRect) Valid() bool {
	return r.Width >= MinSelectionSize && r.Height >= MinSelectionSize
}

// String returns a compact human readable representation.
func (r SelectionRect) String() string {
	return fmt.Sprintf("%gx%g@(%g,%g)", r.Width, r.Height, r.X, r.Y)
}

// RectFromDrag builds the normalized rectangle spanned by a drag from
// (startX, startY) to (endX, endY). The result may be smaller than
// MinSelectionSize; callers decide whether to keep it.
func RectFromDrag(startX, startY, endX, endY float64) SelectionRect {
	return SelectionRect{
		X:      min(startX, endX),
		Y:      min(startY, endY),
		Width:  abs(endX - startX),
		Height: abs(endY - startY),
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

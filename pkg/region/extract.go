// Package region crops a CSS pixel selection out of a device-resolution
// snapshot.
//
// Clamping policy: the requested rectangle is intersected with the snapshot
// bounds. A rectangle that is partially outside yields an image of the
// intersection's size; one that does not intersect at all, or has no area,
// fails with ErrInvalidRegion.
package region

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/draw"
	"image/png"

	"github.com/entrhq/snapsolve/pkg/capture"
	"github.com/entrhq/snapsolve/pkg/types"
)

// PNGDataURIPrefix prefixes every data URI produced by this package.
const PNGDataURIPrefix = "data:image/png;base64,"

// Cropped is a lossless crop of a snapshot.
type Cropped struct {
	// DataURI is the PNG crop as a base64 data URI.
	DataURI string
	PNG     []byte
	Width   int
	Height  int

	// Requested is the selection converted to device pixels; Rect is what
	// was actually copied after clamping.
	Requested PhysicalRect
	Rect      PhysicalRect
}

// Extract crops sel out of snap. The conversion uses the snapshot's device
// pixel ratio, which the capture service reads at capture time.
func Extract(snap *capture.Snapshot, sel types.SelectionRect) (*Cropped, error) {
	if snap == nil || len(snap.Data) == 0 {
		return nil, &Error{Kind: KindDecode}
	}

	img, err := png.Decode(bytes.NewReader(snap.Data))
	if err != nil {
		return nil, &Error{Kind: KindDecode, Err: err}
	}

	requested := ToPhysical(sel, snap.DevicePixelRatio)
	out, clamped, err := Crop(img, requested)
	if err != nil {
		return nil, err
	}

	data, dataURI, err := EncodePNG(out)
	if err != nil {
		return nil, err
	}

	return &Cropped{
		DataURI:   dataURI,
		PNG:       data,
		Width:     clamped.Width,
		Height:    clamped.Height,
		Requested: requested,
		Rect:      clamped,
	}, nil
}

// Crop copies the part of img covered by rect into a new RGBA image whose
// origin is (0,0). Pixels are blitted one-to-one without scaling.
func Crop(img image.Image, rect PhysicalRect) (*image.RGBA, PhysicalRect, error) {
	if rect.Empty() {
		return nil, PhysicalRect{}, &Error{Kind: KindInvalidRegion, Rect: rect}
	}

	clamped := rect.Bounds().Intersect(img.Bounds())
	if clamped.Empty() {
		return nil, PhysicalRect{}, &Error{Kind: KindInvalidRegion, Rect: rect}
	}

	out := image.NewRGBA(image.Rect(0, 0, clamped.Dx(), clamped.Dy()))
	draw.Draw(out, out.Bounds(), img, clamped.Min, draw.Src)
	return out, fromBounds(clamped), nil
}

// EncodePNG encodes img losslessly and returns the bytes and a data URI.
func EncodePNG(img image.Image) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", &Error{Kind: KindEncode, Err: err}
	}
	data := buf.Bytes()
	return data, PNGDataURI(data), nil
}

// PNGDataURI wraps PNG bytes in a base64 data URI.
func PNGDataURI(data []byte) string {
	return PNGDataURIPrefix + base64.StdEncoding.EncodeToString(data)
}

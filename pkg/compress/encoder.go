// Package compress re-encodes captured images to fit a size and dimension
// budget.
//
// Encode never fails. Compression is an optimization, so any decode, resize
// or encode problem returns the original input with a zero reduction and the
// cause recorded in Artifact.Fallback.
package compress

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // register decoder
	"math"
	"strings"

	"golang.org/x/image/draw"

	"github.com/entrhq/snapsolve/pkg/types"
)

// JPEGDataURIPrefix prefixes every re-encoded output.
const JPEGDataURIPrefix = "data:image/jpeg;base64,"

// MaxDecodePixels caps the declared dimensions of an input before its pixels
// are allocated. 64M pixels covers an 8K display at dpr 2.
const MaxDecodePixels = 64 << 20

var (
	// ErrNotSmaller records that re-encoding did not shrink the input.
	ErrNotSmaller = errors.New("re-encoded image is not smaller than the original")

	// ErrTooLarge records an input whose header declares more than
	// MaxDecodePixels.
	ErrTooLarge = errors.New("image dimensions exceed the decode limit")
)

// Artifact is the encoder's output.
type Artifact struct {
	// Data is a data URI (or the untouched input when nothing was done).
	Data             string
	OriginalSizeKB   float64
	CompressedSizeKB float64
	ReductionPercent int

	// Compressed is true when Data is a new encoding.
	Compressed bool
	// Skipped is true when SkipIfSmall short-circuited the encode.
	Skipped bool
	// Fallback is why the original was returned after a failed attempt.
	Fallback error

	Width    int
	Height   int
	Quality  float64
	Attempts int
}

// EncodedArtifact converts the result to the message wire shape.
func (a Artifact) EncodedArtifact() *types.EncodedArtifact {
	return &types.EncodedArtifact{
		ImageData: a.Data,
		CompressionStats: types.CompressionStats{
			OriginalSize:     roundKB(a.OriginalSizeKB),
			CompressedSize:   roundKB(a.CompressedSizeKB),
			ReductionPercent: a.ReductionPercent,
		},
	}
}

// EstimateKB estimates the decoded size of a base64 payload in kilobytes.
// A data URI header, if present, is not counted.
func EstimateKB(encoded string) float64 {
	return float64(len(payload(encoded))) * 0.75 / 1024
}

// ReductionPercent returns round((orig-comp)/orig*100), or 0 when orig is
// not positive.
func ReductionPercent(origKB, compKB float64) int {
	if origKB <= 0 {
		return 0
	}
	return int(math.Round((origKB - compKB) / origKB * 100))
}

// Encoder re-encodes images under a budget. The zero value is ready to use.
type Encoder struct{}

// NewEncoder creates an encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode compresses input, a data URI or bare base64 string, according to
// settings.
func (e *Encoder) Encode(input string, settings Settings) (artifact Artifact) {
	orig := EstimateKB(input)
	unchanged := Artifact{
		Data:             input,
		OriginalSizeKB:   orig,
		CompressedSizeKB: orig,
	}

	if settings.SkipIfSmall && orig < SkipThresholdKB {
		unchanged.Skipped = true
		return unchanged
	}

	defer func() {
		if r := recover(); r != nil {
			unchanged.Fallback = fmt.Errorf("compression panicked: %v", r)
			artifact = unchanged
		}
	}()

	out, err := e.compress(input, settings)
	if err != nil {
		unchanged.Fallback = err
		return unchanged
	}

	out.OriginalSizeKB = orig
	if out.CompressedSizeKB >= orig {
		unchanged.Fallback = ErrNotSmaller
		return unchanged
	}
	out.ReductionPercent = ReductionPercent(orig, out.CompressedSizeKB)
	out.Compressed = true
	return out
}

func (e *Encoder) compress(input string, settings Settings) (Artifact, error) {
	if err := settings.Validate(); err != nil {
		return Artifact{}, fmt.Errorf("invalid settings: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(payload(input))
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to decode base64: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to decode image header: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxDecodePixels {
		return Artifact{}, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to decode image: %w", err)
	}

	img := Resize(src, settings.MaxDimensionPx)

	var (
		best     string
		bestKB   float64
		quality  = settings.Quality
		used     float64
		attempts int
	)
	for attempts < MaxAttempts {
		attempts++
		used = quality

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality(quality)}); err != nil {
			return Artifact{}, fmt.Errorf("failed to encode jpeg: %w", err)
		}

		best = JPEGDataURIPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
		bestKB = EstimateKB(best)
		if bestKB <= float64(settings.MaxSizeKB) || quality <= MinQuality {
			break
		}
		quality = math.Max(MinQuality, quality-QualityStep)
	}

	b := img.Bounds()
	return Artifact{
		Data:             best,
		CompressedSizeKB: bestKB,
		Width:            b.Dx(),
		Height:           b.Dy(),
		Quality:          used,
		Attempts:         attempts,
	}, nil
}

// Resize scales src down so neither side exceeds maxDim, keeping the aspect
// ratio. Transparent areas are flattened onto white. Images already within
// bounds are only flattened.
func Resize(src image.Image, maxDim int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	if maxDim > 0 && (w > maxDim || h > maxDim) {
		scale := float64(maxDim) / float64(max(w, h))
		w = max(1, int(math.Round(float64(w)*scale)))
		h = max(1, int(math.Round(float64(h)*scale)))
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}
	return dst
}

// payload strips a data URI header, if any.
func payload(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

func roundKB(v float64) float64 {
	return math.Round(v*100) / 100
}

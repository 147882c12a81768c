package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/snapsolve/pkg/capture"
	"github.com/entrhq/snapsolve/pkg/compress"
	"github.com/entrhq/snapsolve/pkg/logging"
	"github.com/entrhq/snapsolve/pkg/overlay"
	"github.com/entrhq/snapsolve/pkg/region"
	"github.com/entrhq/snapsolve/pkg/types"
)

var marker = color.RGBA{R: 255, A: 255}

// viewportPNG renders a white viewport of w x h physical pixels with a red
// pixel at (mx, my).
func viewportPNG(t *testing.T, w, h, mx, my int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.SetRGBA(mx, my, marker)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func snapshotService(t *testing.T, data []byte, dpr float64) capture.Service {
	t.Helper()
	return capture.ServiceFunc(func(ctx context.Context) (*capture.Snapshot, error) {
		return capture.NewSnapshot(data, dpr)
	})
}

func decodeDataURI(t *testing.T, uri string) image.Image {
	t.Helper()
	require.True(t, strings.HasPrefix(uri, region.PNGDataURIPrefix), "expected a PNG data URI")
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, region.PNGDataURIPrefix))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

type stubSelector struct {
	mu      sync.Mutex
	rect    types.SelectionRect
	err     error
	starts  int
	cancels int
}

func (s *stubSelector) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	return nil
}

func (s *stubSelector) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	return nil
}

func (s *stubSelector) Run(ctx context.Context) (types.SelectionRect, error) {
	return s.rect, s.err
}

func newTestService(capturer capture.Service, opts ...Option) *Service {
	opts = append([]Option{WithLogger(logging.Discard("pipeline"))}, opts...)
	return NewService(capturer, opts...)
}

func TestCaptureRegion_EndToEnd(t *testing.T) {
	// 1280x800 CSS viewport at dpr 2.
	data := viewportPNG(t, 2560, 1600, 100, 100)
	svc := newTestService(snapshotService(t, data, 2))

	rect := types.RectFromDrag(50, 50, 250, 150)
	require.Equal(t, types.SelectionRect{X: 50, Y: 50, Width: 200, Height: 100}, rect)

	out, err := svc.Capture(context.Background(), types.Request{Type: types.MessageCaptureRegion, Rect: &rect})
	require.NoError(t, err)

	assert.NotEmpty(t, out.RequestID)
	assert.Equal(t, 2560, out.Snapshot.Width)
	assert.Equal(t, 1600, out.Snapshot.Height)
	require.NotNil(t, out.Crop)
	assert.Equal(t, region.PhysicalRect{X: 100, Y: 100, Width: 400, Height: 200}, out.Crop.Rect)

	img := decodeDataURI(t, out.Artifact.Data)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
	r, g, b, _ := img.At(0, 0).RGBA()
	assert.Equal(t, []uint32{0xffff, 0, 0}, []uint32{r, g, b})

	assert.LessOrEqual(t, out.Artifact.CompressedSizeKB, float64(compress.DefaultRegionMaxSizeKB))
	assert.Equal(t, 0, out.Artifact.ReductionPercent)
	assert.True(t, out.Artifact.Skipped)
}

func TestCaptureRegion_Result(t *testing.T) {
	data := viewportPNG(t, 800, 600, 0, 0)
	svc := newTestService(snapshotService(t, data, 1))

	res := svc.CaptureRegion(context.Background(), types.SelectionRect{X: 10, Y: 10, Width: 120, Height: 80})
	require.True(t, res.OK())
	img := decodeDataURI(t, res.Artifact.ImageData)
	assert.Equal(t, image.Rect(0, 0, 120, 80), img.Bounds())
	assert.Equal(t, res.Artifact.CompressionStats.OriginalSize, res.Artifact.CompressionStats.CompressedSize)
}

func TestCaptureFullScreen(t *testing.T) {
	data := viewportPNG(t, 1280, 800, 0, 0)
	svc := newTestService(snapshotService(t, data, 1))

	res := svc.CaptureFullScreen(context.Background())
	require.True(t, res.OK())
	assert.Equal(t, region.PNGDataURI(data), res.Artifact.ImageData)
	assert.Equal(t, 0, res.Artifact.CompressionStats.ReductionPercent)

	resp := svc.Handle(context.Background(), types.Request{Type: types.MessageCaptureFullScreen})
	assert.Empty(t, resp.Error)
	require.NotNil(t, resp.Artifact)
}

func TestCapture_Errors(t *testing.T) {
	data := viewportPNG(t, 1600, 1200, 0, 0)

	tests := []struct {
		name     string
		capturer capture.Service
		req      types.Request
		is       error
		contains string
	}{
		{
			name: "no active tab",
			capturer: capture.ServiceFunc(func(ctx context.Context) (*capture.Snapshot, error) {
				return nil, capture.ErrNoActiveTab
			}),
			req:      types.Request{Type: types.MessageCaptureFullScreen},
			is:       capture.ErrNoActiveTab,
			contains: "no active tab",
		},
		{
			name:     "region outside snapshot",
			capturer: snapshotService(t, data, 1),
			req:      types.Request{Type: types.MessageCaptureRegion, Rect: &types.SelectionRect{X: 5000, Y: 5000, Width: 100, Height: 100}},
			is:       region.ErrInvalidRegion,
			contains: "does not intersect",
		},
		{
			name: "malformed snapshot",
			capturer: capture.ServiceFunc(func(ctx context.Context) (*capture.Snapshot, error) {
				return &capture.Snapshot{Data: []byte("not a png"), Width: 10, Height: 10, DevicePixelRatio: 1}, nil
			}),
			req:      types.Request{Type: types.MessageCaptureRegion, Rect: &types.SelectionRect{Width: 20, Height: 20}},
			is:       region.ErrDecodeFailure,
			contains: "decode",
		},
		{
			name:     "missing rect",
			capturer: snapshotService(t, data, 1),
			req:      types.Request{Type: types.MessageSelectionComplete},
			is:       ErrMissingRect,
			contains: "no rectangle",
		},
		{
			name:     "unknown message",
			capturer: snapshotService(t, data, 1),
			req:      types.Request{Type: "explode"},
			is:       ErrUnknownMessage,
			contains: "explode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(tt.capturer)
			_, err := svc.Capture(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)

			resp := svc.Handle(context.Background(), tt.req)
			assert.Nil(t, resp.Artifact)
			assert.Contains(t, resp.Error, tt.contains)
		})
	}
}

func TestCapture_CancelledBeforeStart(t *testing.T) {
	called := false
	svc := newTestService(capture.ServiceFunc(func(ctx context.Context) (*capture.Snapshot, error) {
		called = true
		return nil, errors.New("unreachable")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := svc.CaptureFullScreen(ctx)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.False(t, called)
}

func TestCapture_RunsToCompletionOnceStarted(t *testing.T) {
	data := viewportPNG(t, 640, 480, 0, 0)
	started := make(chan struct{})
	release := make(chan struct{})
	svc := newTestService(capture.ServiceFunc(func(ctx context.Context) (*capture.Snapshot, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return capture.NewSnapshot(data, 1)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan types.CaptureResult, 1)
	go func() {
		done <- svc.CaptureFullScreen(ctx)
	}()

	<-started
	cancel()
	close(release)

	select {
	case res := <-done:
		assert.True(t, res.OK())
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not finish")
	}
}

func TestCapture_OneAtATime(t *testing.T) {
	data := viewportPNG(t, 640, 480, 0, 0)
	started := make(chan struct{})
	release := make(chan struct{})
	svc := newTestService(capture.ServiceFunc(func(ctx context.Context) (*capture.Snapshot, error) {
		close(started)
		<-release
		return capture.NewSnapshot(data, 1)
	}))

	done := make(chan types.CaptureResult, 1)
	go func() {
		done <- svc.CaptureFullScreen(context.Background())
	}()
	<-started

	res := svc.CaptureFullScreen(context.Background())
	assert.ErrorIs(t, res.Err, ErrBusy)

	close(release)
	assert.True(t, (<-done).OK())
}

func TestHandle_SelectionMessages(t *testing.T) {
	sel := &stubSelector{}
	svc := newTestService(snapshotService(t, viewportPNG(t, 100, 100, 0, 0), 1), WithSelector(sel))

	assert.Equal(t, types.Response{Ack: true}, svc.Handle(context.Background(), types.Request{Type: types.MessageStartSelection}))
	assert.Equal(t, types.Response{Ack: true}, svc.Handle(context.Background(), types.Request{Type: types.MessageCancelSelection}))
	assert.Equal(t, 1, sel.starts)
	assert.Equal(t, 1, sel.cancels)

	raw, err := json.Marshal(svc.Handle(context.Background(), types.Request{Type: types.MessageStartSelection}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ack": true}`, string(raw))

	bare := newTestService(snapshotService(t, viewportPNG(t, 100, 100, 0, 0), 1))
	resp := bare.Handle(context.Background(), types.Request{Type: types.MessageStartSelection})
	assert.False(t, resp.Ack)
	assert.Equal(t, ErrNoSelector.Error(), resp.Error)
}

func TestSelectAndCapture(t *testing.T) {
	data := viewportPNG(t, 2560, 1600, 100, 100)

	t.Run("completed", func(t *testing.T) {
		sel := &stubSelector{rect: types.SelectionRect{X: 50, Y: 50, Width: 200, Height: 100}}
		svc := newTestService(snapshotService(t, data, 2), WithSelector(sel))

		out, ok, err := svc.SelectAndCapture(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, types.MessageSelectionComplete, out.Kind)
		assert.Equal(t, 400, out.Crop.Width)
		assert.Equal(t, 200, out.Crop.Height)
	})

	t.Run("cancelled is not an error", func(t *testing.T) {
		sel := &stubSelector{err: overlay.ErrSelectionCancelled}
		svc := newTestService(snapshotService(t, data, 2), WithSelector(sel))

		out, ok, err := svc.SelectAndCapture(context.Background())
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, out)
	})

	t.Run("no selector", func(t *testing.T) {
		svc := newTestService(snapshotService(t, data, 2))
		_, _, err := svc.SelectAndCapture(context.Background())
		assert.ErrorIs(t, err, ErrNoSelector)
	})
}

func TestWithSettings(t *testing.T) {
	data := viewportPNG(t, 100, 100, 0, 0)
	full := compress.FullScreenSettings()
	full.MaxSizeKB = 42
	reg := compress.RegionSettings()
	reg.Quality = 0.5

	svc := newTestService(snapshotService(t, data, 1), WithFullScreenSettings(full), WithRegionSettings(reg))
	assert.Equal(t, full, svc.fullScreen)
	assert.Equal(t, reg, svc.region)
}

func TestHandle_CaptureRepliesUseWireShape(t *testing.T) {
	data := viewportPNG(t, 2560, 1600, 100, 100)
	svc := newTestService(snapshotService(t, data, 2))
	ctx := context.Background()

	resp := svc.Handle(ctx, types.Request{Type: types.MessageCaptureRegion, Rect: &types.SelectionRect{X: 50, Y: 50, Width: 200, Height: 100}})
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var reply map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &reply))
	assert.ElementsMatch(t, []string{"imageData", "compressionStats"}, keys(reply))

	var stats map[string]float64
	require.NoError(t, json.Unmarshal(reply["compressionStats"], &stats))
	assert.Contains(t, stats, "originalSize")
	assert.Contains(t, stats, "compressedSize")
	assert.Contains(t, stats, "reductionPercent")

	resp = svc.Handle(ctx, types.Request{Type: types.MessageCaptureRegion, Rect: &types.SelectionRect{X: 5000, Y: 5000, Width: 100, Height: 100}})
	raw, err = json.Marshal(resp)
	require.NoError(t, err)
	reply = nil
	require.NoError(t, json.Unmarshal(raw, &reply))
	assert.Equal(t, []string{"error"}, keys(reply))
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

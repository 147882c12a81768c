// Package pipeline runs the capture chain behind the orchestrator's message
// contract: select, capture, crop and compress, strictly in that order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/snapsolve/pkg/capture"
	"github.com/entrhq/snapsolve/pkg/compress"
	"github.com/entrhq/snapsolve/pkg/logging"
	"github.com/entrhq/snapsolve/pkg/overlay"
	"github.com/entrhq/snapsolve/pkg/region"
	"github.com/entrhq/snapsolve/pkg/types"
)

var (
	// ErrBusy is returned when a capture is requested while another runs.
	ErrBusy = errors.New("a capture is already in progress")

	// ErrNoSelector is returned for selection messages when no overlay is
	// configured.
	ErrNoSelector = errors.New("selection overlay is not available")

	// ErrMissingRect is returned for region requests without a rectangle.
	ErrMissingRect = errors.New("region request has no rectangle")

	// ErrUnknownMessage is returned for message types the pipeline does not handle.
	ErrUnknownMessage = errors.New("unknown message type")
)

// Selector is the overlay as seen by the pipeline. *overlay.Controller
// implements it.
type Selector interface {
	Start() error
	Cancel() error
	Run(ctx context.Context) (types.SelectionRect, error)
}

// Outcome is the full record of one pipeline run.
type Outcome struct {
	RequestID string
	Kind      types.MessageType

	// Selection is the CSS pixel rectangle, zero for full screen captures.
	Selection types.SelectionRect
	Snapshot  *capture.Snapshot
	Crop      *region.Cropped
	Artifact  compress.Artifact
	Duration  time.Duration
}

// Result converts the outcome to the orchestrator's result type.
func (o *Outcome) Result() types.CaptureResult {
	return types.Success(o.Artifact.EncodedArtifact())
}

// Option configures a Service.
type Option func(*Service)

// WithSelector attaches the selection overlay.
func WithSelector(sel Selector) Option {
	return func(s *Service) {
		s.selector = sel
	}
}

// WithFullScreenSettings overrides the encoder settings for full screen captures.
func WithFullScreenSettings(settings compress.Settings) Option {
	return func(s *Service) {
		s.fullScreen = settings
	}
}

// WithRegionSettings overrides the encoder settings for region captures.
func WithRegionSettings(settings compress.Settings) Option {
	return func(s *Service) {
		s.region = settings
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// Service composes the capture service, the region extractor and the
// encoder. Only one capture runs at a time; a request arriving while one is
// in flight fails with ErrBusy rather than queueing.
type Service struct {
	capturer   capture.Service
	selector   Selector
	encoder    *compress.Encoder
	fullScreen compress.Settings
	region     compress.Settings
	log        *logging.Logger

	running sync.Mutex
}

// NewService creates a pipeline over capturer.
func NewService(capturer capture.Service, opts ...Option) *Service {
	s := &Service{
		capturer:   capturer,
		encoder:    compress.NewEncoder(),
		fullScreen: compress.FullScreenSettings(),
		region:     compress.RegionSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.MustLogger("pipeline")
	}
	return s
}

// CaptureFullScreen captures and compresses the whole viewport of the active tab.
func (s *Service) CaptureFullScreen(ctx context.Context) types.CaptureResult {
	out, err := s.Capture(ctx, types.Request{Type: types.MessageCaptureFullScreen})
	if err != nil {
		return types.Failure(err)
	}
	return out.Result()
}

// CaptureRegion captures the active tab and returns the compressed crop of
// rect, given in CSS pixels.
func (s *Service) CaptureRegion(ctx context.Context, rect types.SelectionRect) types.CaptureResult {
	out, err := s.Capture(ctx, types.Request{Type: types.MessageCaptureRegion, Rect: &rect})
	if err != nil {
		return types.Failure(err)
	}
	return out.Result()
}

// SelectAndCapture arms the overlay, waits for a selection and captures it.
// It returns ok=false when the user cancelled or drew a rectangle below the
// minimum size; that is not an error.
func (s *Service) SelectAndCapture(ctx context.Context) (*Outcome, bool, error) {
	if s.selector == nil {
		return nil, false, ErrNoSelector
	}

	rect, err := s.selector.Run(ctx)
	if err != nil {
		if errors.Is(err, overlay.ErrSelectionCancelled) {
			s.log.Debugf("selection cancelled")
			return nil, false, nil
		}
		return nil, false, err
	}

	out, err := s.Capture(ctx, types.Request{Type: types.MessageSelectionComplete, Rect: &rect})
	if err != nil {
		return nil, true, err
	}
	return out, true, nil
}

// Handle answers one orchestrator message. Selection messages are
// acknowledged; capture messages return an artifact or an error string.
func (s *Service) Handle(ctx context.Context, req types.Request) types.Response {
	switch req.Type {
	case types.MessageStartSelection:
		if s.selector == nil {
			return types.Response{Error: ErrNoSelector.Error()}
		}
		if err := s.selector.Start(); err != nil {
			return types.Response{Error: err.Error()}
		}
		return types.Response{Ack: true}

	case types.MessageCancelSelection:
		if s.selector == nil {
			return types.Response{Error: ErrNoSelector.Error()}
		}
		if err := s.selector.Cancel(); err != nil {
			return types.Response{Error: err.Error()}
		}
		return types.Response{Ack: true}

	case types.MessageCaptureFullScreen, types.MessageCaptureRegion, types.MessageSelectionComplete:
		out, err := s.Capture(ctx, req)
		if err != nil {
			return types.Failure(err).Response()
		}
		return out.Result().Response()

	default:
		return types.Response{Error: fmt.Sprintf("%s: %q", ErrUnknownMessage, req.Type)}
	}
}

// Capture runs one pipeline for a capture message. Once started the run is
// not abortable: ctx is checked before the capture begins and its
// cancellation is ignored afterwards.
func (s *Service) Capture(ctx context.Context, req types.Request) (*Outcome, error) {
	regionRequest := req.Type == types.MessageCaptureRegion || req.Type == types.MessageSelectionComplete
	if !regionRequest && req.Type != types.MessageCaptureFullScreen {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, req.Type)
	}
	if regionRequest && req.Rect == nil {
		return nil, ErrMissingRect
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !s.running.TryLock() {
		return nil, ErrBusy
	}
	defer s.running.Unlock()

	out := &Outcome{RequestID: uuid.NewString(), Kind: req.Type}
	started := time.Now()
	runCtx := context.WithoutCancel(ctx)

	snap, err := s.capturer.CaptureActiveTab(runCtx)
	if err != nil {
		s.log.Errorf("[%s] capture failed: %v", out.RequestID, err)
		return nil, fmt.Errorf("capture failed: %w", err)
	}
	out.Snapshot = snap
	s.log.Debugf("[%s] snapshot %dx%d at dpr %g from %s", out.RequestID, snap.Width, snap.Height, snap.DevicePixelRatio, snap.URL)

	input := region.PNGDataURI(snap.Data)
	settings := s.fullScreen

	if regionRequest {
		out.Selection = *req.Rect
		crop, err := region.Extract(snap, out.Selection)
		if err != nil {
			s.log.Errorf("[%s] extract %s failed: %v", out.RequestID, out.Selection, err)
			return nil, err
		}
		out.Crop = crop
		input = crop.DataURI
		settings = s.region
		s.log.Debugf("[%s] cropped %s to %s", out.RequestID, out.Selection, crop.Rect)
	}

	out.Artifact = s.encoder.Encode(input, settings)
	out.Duration = time.Since(started)

	a := out.Artifact
	if a.Fallback != nil {
		s.log.Warnf("[%s] compression fell back to original: %v", out.RequestID, a.Fallback)
	}
	s.log.Infof("[%s] %s done in %s: %.1fKB -> %.1fKB (%d%%)",
		out.RequestID, req.Type, out.Duration.Round(time.Millisecond),
		a.OriginalSizeKB, a.CompressedSizeKB, a.ReductionPercent)
	return out, nil
}

package types

import (
	"encoding/json"
	"errors"
)

// MessageType identifies a message exchanged between the panel orchestrator,
// the selection overlay and the capture pipeline.
type MessageType string

const (
	MessageStartSelection    MessageType = "start_selection"     // MessageStartSelection arms the overlay.
	MessageCancelSelection   MessageType = "cancel_selection"    // MessageCancelSelection tears the overlay down.
	MessageSelectionComplete MessageType = "selection_complete"  // MessageSelectionComplete carries a finished SelectionRect.
	MessageCaptureFullScreen MessageType = "capture_full_screen" // MessageCaptureFullScreen captures the whole viewport.
	MessageCaptureRegion     MessageType = "capture_region"      // MessageCaptureRegion captures a CSS pixel region.
)

// Request is a message addressed to the capture pipeline.
type Request struct {
	Type MessageType    `json:"type"`
	Rect *SelectionRect `json:"rect,omitempty"`
}

// Response is the reply to a Request. Ack-only messages set Ack; capture
// messages carry either Artifact or Error.
type Response struct {
	Ack      bool
	Artifact *EncodedArtifact
	Error    string
}

// MarshalJSON writes the reply in its wire shape: the EncodedArtifact fields
// at the top level, {"error": ...}, or {"ack": true}.
func (r Response) MarshalJSON() ([]byte, error) {
	switch {
	case r.Error != "":
		return json.Marshal(ErrorResponse{Error: r.Error})
	case r.Artifact != nil:
		return json.Marshal(r.Artifact)
	default:
		return json.Marshal(struct {
			Ack bool `json:"ack"`
		}{r.Ack})
	}
}

// UnmarshalJSON reads any of the shapes MarshalJSON writes.
func (r *Response) UnmarshalJSON(data []byte) error {
	var wire struct {
		Ack              bool              `json:"ack"`
		Error            string            `json:"error"`
		ImageData        *string           `json:"imageData"`
		CompressionStats *CompressionStats `json:"compressionStats"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*r = Response{Ack: wire.Ack, Error: wire.Error}
	if wire.ImageData != nil {
		r.Artifact = &EncodedArtifact{ImageData: *wire.ImageData}
		if wire.CompressionStats != nil {
			r.Artifact.CompressionStats = *wire.CompressionStats
		}
	}
	return nil
}

// CompressionStats describes what the size-budgeted encoder did. Sizes are in
// kilobytes estimated from the transport encoding.
type CompressionStats struct {
	OriginalSize     float64 `json:"originalSize"`
	CompressedSize   float64 `json:"compressedSize"`
	ReductionPercent int     `json:"reductionPercent"`
}

// EncodedArtifact is the image payload handed to the orchestrator.
type EncodedArtifact struct {
	// ImageData is a data URI (e.g. "data:image/jpeg;base64,...").
	ImageData        string           `json:"imageData"`
	CompressionStats CompressionStats `json:"compressionStats"`
}

// ErrorResponse is the wire shape of a failed capture.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CaptureResult is the outcome of a capture request: exactly one of Artifact
// or Err is set.
type CaptureResult struct {
	Artifact *EncodedArtifact
	Err      error
}

// Success wraps an artifact in a CaptureResult.
func Success(artifact *EncodedArtifact) CaptureResult {
	return CaptureResult{Artifact: artifact}
}

// Failure wraps an error in a CaptureResult.
func Failure(err error) CaptureResult {
	if err == nil {
		err = errors.New("unknown capture failure")
	}
	return CaptureResult{Err: err}
}

// OK reports whether the capture succeeded.
func (r CaptureResult) OK() bool {
	return r.Err == nil && r.Artifact != nil
}

// Response converts the result into a message Response.
func (r CaptureResult) Response() Response {
	if r.OK() {
		return Response{Artifact: r.Artifact}
	}
	return Response{Error: r.errorString()}
}

// MarshalJSON emits either the EncodedArtifact shape or the ErrorResponse shape.
func (r CaptureResult) MarshalJSON() ([]byte, error) {
	if r.OK() {
		return json.Marshal(r.Artifact)
	}
	return json.Marshal(ErrorResponse{Error: r.errorString()})
}

func (r CaptureResult) errorString() string {
	if r.Err == nil {
		return "capture produced no artifact"
	}
	return r.Err.Error()
}

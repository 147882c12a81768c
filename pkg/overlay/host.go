package overlay

import "github.com/entrhq/snapsolve/pkg/types"

// EventType is a DOM event name the overlay listens for.
type EventType string

const (
	EventPointerDown EventType = "pointerdown"
	EventPointerMove EventType = "pointermove"
	EventPointerUp   EventType = "pointerup"
	EventKeyDown     EventType = "keydown"
	EventContextMenu EventType = "contextmenu"
)

// Target is the element a listener is attached to.
type Target string

const (
	// TargetOverlay is the full-viewport dimming layer.
	TargetOverlay Target = "overlay"
	// TargetWindow is the page window, used as a fallback for hosts that
	// swallow events on their own elements.
	TargetWindow Target = "window"
)

// Mouse buttons as reported by PointerEvent.button.
const (
	ButtonPrimary   = 0
	ButtonSecondary = 2
)

// Event is a DOM event forwarded from the page to the controller.
// Coordinates are CSS pixels relative to the viewport (clientX/clientY).
type Event struct {
	Type   EventType
	Target Target
	X      float64
	Y      float64
	Button int
	Key    string
}

// ListenerID identifies a listener registered through a Host.
type ListenerID string

// Host is the page the overlay is drawn on. Implementations own the actual
// elements; the Controller only decides when they exist and what they show.
type Host interface {
	// InsertLayer adds the dimming layer and a hidden selection box.
	InsertLayer() error
	// UpdateBox shows the selection box at the given rectangle.
	UpdateBox(rect types.SelectionRect) error
	// RemoveLayer removes every element added by InsertLayer.
	RemoveLayer() error
	// AddListener registers a capture-phase listener for event on target.
	// Events it receives must be delivered to Controller.Dispatch.
	AddListener(target Target, event EventType) (ListenerID, error)
	// RemoveListener unregisters a listener added by AddListener.
	RemoveListener(id ListenerID) error
}

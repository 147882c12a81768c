// Package overlay implements the single-shot selection overlay that lets a
// user drag a rectangle over a page.
//
// All state for an active selection lives in a session value owned by the
// Controller. A session is created by Start and discarded on teardown, which
// runs on every exit path (completion, too-small drag, Escape, right click,
// explicit cancel) and removes every element and listener the session added.
//
// The overlay reports CSS pixels only. Converting to device pixels is the
// region extractor's job.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/entrhq/snapsolve/pkg/types"
)

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateDragging
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateDragging:
		return "dragging"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrSelectionCancelled is returned by Run when the user cancels or the
	// drag is below the minimum size.
	ErrSelectionCancelled = errors.New("selection cancelled")

	// ErrAlreadyActive is returned by Run when another selection is armed.
	ErrAlreadyActive = errors.New("selection already in progress")
)

// listenerSpecs are attached on every Start. The window listeners duplicate
// the overlay ones for hosts that stop events on their own elements.
var listenerSpecs = []struct {
	target Target
	event  EventType
}{
	{TargetOverlay, EventPointerDown},
	{TargetOverlay, EventPointerMove},
	{TargetOverlay, EventPointerUp},
	{TargetOverlay, EventContextMenu},
	{TargetWindow, EventPointerDown},
	{TargetWindow, EventPointerMove},
	{TargetWindow, EventPointerUp},
	{TargetWindow, EventKeyDown},
	{TargetWindow, EventContextMenu},
}

// outcome is what a session ended with.
type outcome struct {
	rect      types.SelectionRect
	completed bool
}

// session holds the state of one armed overlay.
type session struct {
	listeners []ListenerID
	startX    float64
	startY    float64
	dragging  bool
	done      chan outcome
}

// Option configures a Controller.
type Option func(*Controller)

// WithOnComplete sets a callback fired once per successful drag.
func WithOnComplete(fn func(types.SelectionRect)) Option {
	return func(c *Controller) {
		c.onComplete = fn
	}
}

// WithOnCancel sets a callback fired whenever a session ends without a selection.
func WithOnCancel(fn func()) Option {
	return func(c *Controller) {
		c.onCancel = fn
	}
}

// Controller drives the overlay state machine for a single Host.
// It is safe for concurrent use; callbacks run without the lock held.
type Controller struct {
	mu         sync.Mutex
	host       Host
	session    *session
	onComplete func(types.SelectionRect)
	onCancel   func()
}

// NewController creates a controller for host.
func NewController(host Host, opts ...Option) *Controller {
	c := &Controller{host: host}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	switch {
	case c.session == nil:
		return StateIdle
	case c.session.dragging:
		return StateDragging
	default:
		return StateArmed
	}
}

// Start arms the overlay. Calling Start while a session is armed or
// dragging is a no-op.
func (c *Controller) Start() error {
	_, err := c.start()
	return err
}

// start returns the new session, or nil if one was already active.
func (c *Controller) start() (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return nil, nil
	}

	if err := c.host.InsertLayer(); err != nil {
		return nil, fmt.Errorf("failed to insert overlay: %w", err)
	}

	s := &session{done: make(chan outcome, 1)}
	for _, spec := range listenerSpecs {
		id, err := c.host.AddListener(spec.target, spec.event)
		if err != nil {
			c.session = s
			_ = c.teardownLocked()
			return nil, fmt.Errorf("failed to add %s listener on %s: %w", spec.event, spec.target, err)
		}
		s.listeners = append(s.listeners, id)
	}

	c.session = s
	return s, nil
}

// Cancel tears down an active session. It is a no-op when idle.
func (c *Controller) Cancel() error {
	return c.cancel(nil)
}

// cancel tears down the active session, or only s when s is non-nil.
func (c *Controller) cancel(s *session) error {
	c.mu.Lock()
	if c.session == nil || (s != nil && c.session != s) {
		c.mu.Unlock()
		return nil
	}
	active := c.session
	err := c.teardownLocked()
	c.mu.Unlock()

	c.finish(active, outcome{})
	return err
}

// Dispatch feeds a page event into the state machine. It returns true when
// the event belongs to the overlay and the host must prevent its default
// action and stop propagation.
func (c *Controller) Dispatch(ev Event) bool {
	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return false
	}

	var (
		consumed bool
		end      *outcome
	)

	switch ev.Type {
	case EventKeyDown:
		if ev.Key == "Escape" {
			consumed = true
			end = &outcome{}
		}

	case EventContextMenu:
		consumed = true
		end = &outcome{}

	case EventPointerDown:
		consumed = true
		if ev.Button == ButtonSecondary {
			end = &outcome{}
			break
		}
		if !s.dragging {
			s.dragging = true
			s.startX, s.startY = ev.X, ev.Y
			_ = c.host.UpdateBox(types.SelectionRect{X: ev.X, Y: ev.Y})
		}

	case EventPointerMove:
		consumed = true
		if s.dragging {
			_ = c.host.UpdateBox(types.RectFromDrag(s.startX, s.startY, ev.X, ev.Y))
		}

	case EventPointerUp:
		consumed = true
		if !s.dragging {
			break
		}
		rect := types.RectFromDrag(s.startX, s.startY, ev.X, ev.Y)
		end = &outcome{rect: rect, completed: rect.Valid()}
	}

	if end != nil {
		_ = c.teardownLocked()
	}
	c.mu.Unlock()

	if end != nil {
		c.finish(s, *end)
	}
	return consumed
}

// Run arms the overlay and blocks until the user finishes or cancels the
// selection, or ctx is done. Cancellation and too-small drags return
// ErrSelectionCancelled.
func (c *Controller) Run(ctx context.Context) (types.SelectionRect, error) {
	s, err := c.start()
	if err != nil {
		return types.SelectionRect{}, err
	}
	if s == nil {
		return types.SelectionRect{}, ErrAlreadyActive
	}

	select {
	case out := <-s.done:
		if !out.completed {
			return types.SelectionRect{}, ErrSelectionCancelled
		}
		return out.rect, nil
	case <-ctx.Done():
		_ = c.cancel(s)
		return types.SelectionRect{}, ctx.Err()
	}
}

// teardownLocked removes all listeners and elements of the active session
// and returns the controller to idle. Must be called with c.mu held.
func (c *Controller) teardownLocked() error {
	s := c.session
	c.session = nil
	if s == nil {
		return nil
	}

	var errs []error
	for _, id := range s.listeners {
		if err := c.host.RemoveListener(id); err != nil {
			errs = append(errs, err)
		}
	}
	s.listeners = nil

	if err := c.host.RemoveLayer(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// finish reports a session's outcome. Called without c.mu held.
func (c *Controller) finish(s *session, out outcome) {
	s.done <- out

	if out.completed {
		if c.onComplete != nil {
			c.onComplete(out.rect)
		}
		return
	}
	if c.onCancel != nil {
		c.onCancel()
	}
}

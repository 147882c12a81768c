package browser

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/snapsolve/pkg/overlay"
	"github.com/entrhq/snapsolve/pkg/types"
)

const (
	overlayLayerID = "__snapsolve_overlay"
	overlayBoxID   = "__snapsolve_selection"
	bindingName    = "__snapsolveEvent"

	eventQueueSize = 256
)

// scriptPage is the part of playwright.Page the overlay host drives.
type scriptPage interface {
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
	ExposeFunction(name string, binding playwright.ExposedFunction) error
}

// Dispatcher receives overlay events from the page.
type Dispatcher interface {
	Dispatch(ev overlay.Event) bool
}

// PageHost draws the selection overlay into a page and forwards its DOM
// events to a Dispatcher. All listeners report through one exposed binding;
// events are delivered in order on a single goroutine so the dispatcher may
// call back into the page.
type PageHost struct {
	page scriptPage

	mu         sync.Mutex
	dispatcher Dispatcher
	exposed    bool
	events     chan overlay.Event
	done       chan struct{}
	closeOnce  sync.Once
	nextID     atomic.Int64
}

// NewPageHost creates a host for page. Call Attach before starting a selection.
func NewPageHost(page playwright.Page) *PageHost {
	return newPageHost(page)
}

func newPageHost(page scriptPage) *PageHost {
	h := &PageHost{
		page:   page,
		events: make(chan overlay.Event, eventQueueSize),
		done:   make(chan struct{}),
	}
	go h.deliver()
	return h
}

// Attach sets the receiver of page events, normally an *overlay.Controller.
func (h *PageHost) Attach(d Dispatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dispatcher = d
}

// Close stops event delivery. The page binding stays installed but drops
// everything afterwards.
func (h *PageHost) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}

// InsertLayer adds the dimming layer and the hidden selection box.
func (h *PageHost) InsertLayer() error {
	if err := h.expose(); err != nil {
		return err
	}
	_, err := h.page.Evaluate(insertLayerJS, map[string]interface{}{
		"layer": overlayLayerID,
		"box":   overlayBoxID,
	})
	if err != nil {
		return fmt.Errorf("failed to insert overlay: %w", err)
	}
	return nil
}

// UpdateBox positions and shows the selection box.
func (h *PageHost) UpdateBox(rect types.SelectionRect) error {
	_, err := h.page.Evaluate(updateBoxJS, map[string]interface{}{
		"box": overlayBoxID,
		"x":   rect.X,
		"y":   rect.Y,
		"w":   rect.Width,
		"h":   rect.Height,
	})
	if err != nil {
		return fmt.Errorf("failed to update selection box: %w", err)
	}
	return nil
}

// RemoveLayer removes the overlay elements.
func (h *PageHost) RemoveLayer() error {
	if _, err := h.page.Evaluate(removeLayerJS, map[string]interface{}{"layer": overlayLayerID}); err != nil {
		return fmt.Errorf("failed to remove overlay: %w", err)
	}
	return nil
}

// AddListener registers a capture-phase listener on the overlay layer or the
// window.
func (h *PageHost) AddListener(target overlay.Target, event overlay.EventType) (overlay.ListenerID, error) {
	if err := h.expose(); err != nil {
		return "", err
	}

	id := overlay.ListenerID(fmt.Sprintf("l%d", h.nextID.Add(1)))
	_, err := h.page.Evaluate(addListenerJS, map[string]interface{}{
		"id":      string(id),
		"target":  string(target),
		"type":    string(event),
		"layer":   overlayLayerID,
		"binding": bindingName,
		"block":   blocksHost(event),
	})
	if err != nil {
		return "", fmt.Errorf("failed to add %s listener on %s: %w", event, target, err)
	}
	return id, nil
}

// blocksHost reports whether the page listener must swallow event itself.
// Dispatch answers asynchronously, too late for the browser, so drag events
// are stopped in the page for as long as the listener is registered. The
// listeners exist only while the overlay is armed.
func blocksHost(event overlay.EventType) bool {
	switch event {
	case overlay.EventPointerDown, overlay.EventPointerMove, overlay.EventPointerUp, overlay.EventContextMenu:
		return true
	default:
		return false
	}
}

// RemoveListener unregisters a listener.
func (h *PageHost) RemoveListener(id overlay.ListenerID) error {
	if _, err := h.page.Evaluate(removeListenerJS, map[string]interface{}{"id": string(id)}); err != nil {
		return fmt.Errorf("failed to remove listener %s: %w", id, err)
	}
	return nil
}

// expose installs the page binding once.
func (h *PageHost) expose() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.exposed {
		return nil
	}
	if err := h.page.ExposeFunction(bindingName, h.onBinding); err != nil {
		return fmt.Errorf("failed to expose overlay binding: %w", err)
	}
	h.exposed = true
	return nil
}

// onBinding runs on a Playwright goroutine for every DOM event.
func (h *PageHost) onBinding(args ...interface{}) interface{} {
	if len(args) == 0 {
		return nil
	}
	ev, ok := decodeEvent(args[0])
	if !ok {
		return nil
	}

	if ev.Type == overlay.EventPointerMove {
		// Moves are superseded by the next one, so they may be dropped under load.
		select {
		case h.events <- ev:
		case <-h.done:
		default:
		}
		return nil
	}

	select {
	case h.events <- ev:
	case <-h.done:
	}
	return nil
}

func (h *PageHost) deliver() {
	for {
		select {
		case ev := <-h.events:
			h.mu.Lock()
			d := h.dispatcher
			h.mu.Unlock()
			if d != nil {
				// The page listener already blocked drag events; see blocksHost.
				d.Dispatch(ev)
			}
		case <-h.done:
			return
		}
	}
}

func decodeEvent(raw interface{}) (overlay.Event, bool) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return overlay.Event{}, false
	}

	typ, _ := m["type"].(string)
	target, _ := m["target"].(string)
	if typ == "" || target == "" {
		return overlay.Event{}, false
	}

	ev := overlay.Event{
		Type:   overlay.EventType(typ),
		Target: overlay.Target(target),
	}
	ev.X, _ = toFloat(m["x"])
	ev.Y, _ = toFloat(m["y"])
	if b, ok := toFloat(m["button"]); ok {
		ev.Button = int(b)
	}
	ev.Key, _ = m["key"].(string)
	return ev, true
}

const insertLayerJS = `(ids) => {
  if (document.getElementById(ids.layer)) return;
  const layer = document.createElement('div');
  layer.id = ids.layer;
  Object.assign(layer.style, {
    position: 'fixed', left: '0', top: '0', width: '100vw', height: '100vh',
    zIndex: '2147483647', cursor: 'crosshair', background: 'rgba(0, 0, 0, 0.3)',
    userSelect: 'none', touchAction: 'none', margin: '0', padding: '0'
  });
  const box = document.createElement('div');
  box.id = ids.box;
  Object.assign(box.style, {
    position: 'fixed', display: 'none', boxSizing: 'border-box',
    border: '2px solid #4a90e2', background: 'rgba(74, 144, 226, 0.1)',
    pointerEvents: 'none'
  });
  layer.appendChild(box);
  document.documentElement.appendChild(layer);
}`

const updateBoxJS = `(a) => {
  const box = document.getElementById(a.box);
  if (!box) return;
  Object.assign(box.style, {
    display: 'block', left: a.x + 'px', top: a.y + 'px',
    width: a.w + 'px', height: a.h + 'px'
  });
}`

const removeLayerJS = `(a) => {
  const layer = document.getElementById(a.layer);
  if (layer) layer.remove();
}`

const addListenerJS = `(a) => {
  const registry = (window.__snapsolveListeners = window.__snapsolveListeners || {});
  const el = a.target === 'window' ? window : document.getElementById(a.layer);
  if (!el) throw new Error('overlay layer is not present');
  const fn = (e) => {
    if (a.block || (e.type === 'keydown' && e.key === 'Escape')) {
      e.preventDefault();
      e.stopImmediatePropagation();
    }
    window[a.binding]({
      target: a.target, type: e.type,
      x: e.clientX || 0, y: e.clientY || 0,
      button: e.button || 0, key: e.key || ''
    });
  };
  el.addEventListener(a.type, fn, true);
  registry[a.id] = { el, type: a.type, fn };
}`

const removeListenerJS = `(a) => {
  const registry = window.__snapsolveListeners || {};
  const l = registry[a.id];
  if (!l) return;
  l.el.removeEventListener(l.type, l.fn, true);
  delete registry[a.id];
}`

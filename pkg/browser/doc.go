// Package browser supplies the privileged side of a capture: real browser
// tabs driven through Playwright.
//
// # Architecture
//
// The package is built around three pieces:
//
//  1. Session: one Playwright browser, context and page, i.e. one tab
//  2. SessionManager: the registry of open tabs, which tracks the active one
//     and implements capture.Service for it
//  3. PageHost: an overlay.Host that draws the selection overlay into a page
//     and forwards DOM events back through a single exposed binding
//
// # Capturing
//
// SessionManager.CaptureActiveTab checks the active tab's URL against the
// URLPolicy, reads window.devicePixelRatio, and takes a PNG screenshot of the
// viewport at device scale. The ratio travels with the snapshot so region
// extraction converts CSS pixels with the value that was current when the
// pixels were taken.
//
// # Selecting
//
//	host := browser.NewPageHost(session.Page)
//	ctrl := overlay.NewController(host)
//	host.Attach(ctrl)
//	rect, err := ctrl.Run(ctx)
//
// A headless caller can replay a selection with Session.Drag, which moves the
// real mouse so the overlay sees the same pointer events a user would produce.
package browser

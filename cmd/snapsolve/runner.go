package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/entrhq/snapsolve/pkg/browser"
	appconfig "github.com/entrhq/snapsolve/pkg/config"
	"github.com/entrhq/snapsolve/pkg/logging"
	"github.com/entrhq/snapsolve/pkg/overlay"
	"github.com/entrhq/snapsolve/pkg/pipeline"
	"github.com/entrhq/snapsolve/pkg/solver"
	"github.com/entrhq/snapsolve/pkg/types"
)

// runner executes plan steps against one tab.
type runner struct {
	session *browser.Session
	ctrl    *overlay.Controller
	svc     *pipeline.Service
	client  *solver.Client
	log     *logging.Logger
	out     io.Writer
}

type selection struct {
	out *pipeline.Outcome
	ok  bool
	err error
}

func (r *runner) runStep(ctx context.Context, step Step) error {
	if step.URL != "" {
		if err := r.session.Navigate(step.URL, browser.NavigateOptions{WaitUntil: "load"}); err != nil {
			return err
		}
	}

	out, ok, err := r.capture(ctx, step)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(r.out, subtleStyle.Render("Selection cancelled."))
		return nil
	}

	fmt.Fprintln(r.out, renderStats(step.label(), out))

	if step.Out != "" {
		if err := writeImage(step.Out, out.Artifact.Data); err != nil {
			return err
		}
		fmt.Fprintln(r.out, subtleStyle.Render("Saved "+step.Out))
	}

	clip := out.Artifact.Data
	if step.Solve {
		answer, err := r.solve(ctx, step, out)
		if err != nil {
			return err
		}
		clip = answer.Content
	}

	if step.Copy {
		if err := clipboard.WriteAll(clip); err != nil {
			return fmt.Errorf("failed to copy to clipboard: %w", err)
		}
		fmt.Fprintln(r.out, subtleStyle.Render("Copied to clipboard."))
	}
	return nil
}

// capture runs the pipeline for the step's capture kind. ok is false when a
// selection was cancelled.
func (r *runner) capture(ctx context.Context, step Step) (*pipeline.Outcome, bool, error) {
	switch {
	case step.Full:
		out, err := r.svc.Capture(ctx, types.Request{Type: types.MessageCaptureFullScreen})
		return out, err == nil, err

	case step.Region != "":
		from, to, err := parseRegion(step.Region)
		if err != nil {
			return nil, false, err
		}
		return r.replayDrag(ctx, from, to)

	default:
		fmt.Fprintln(r.out, subtleStyle.Render("Drag a region in the browser window. Esc or right-click cancels."))
		return r.svc.SelectAndCapture(ctx)
	}
}

// replayDrag arms the overlay and drives the mouse from one corner to the
// other so the selection goes through the same listeners a user drag does.
func (r *runner) replayDrag(ctx context.Context, from, to browser.Point) (*pipeline.Outcome, bool, error) {
	done := make(chan selection, 1)
	go func() {
		out, ok, err := r.svc.SelectAndCapture(ctx)
		done <- selection{out, ok, err}
	}()

	abort := func(err error) (*pipeline.Outcome, bool, error) {
		_ = r.ctrl.Cancel()
		res := <-done
		if res.err != nil {
			return nil, false, res.err
		}
		return nil, false, err
	}

	if err := waitForState(ctx, r.ctrl, overlay.StateArmed, armTimeout, done); err != nil {
		return abort(err)
	}
	r.log.Debugf("replaying drag %v -> %v", from, to)
	if err := r.session.Drag(from, to); err != nil {
		return abort(err)
	}

	res := <-done
	return res.out, res.ok, res.err
}

// waitForState polls ctrl until it reaches want. It gives up early when the
// selection already finished, reporting through done.
func waitForState(ctx context.Context, ctrl *overlay.Controller, want overlay.State, timeout time.Duration, done chan selection) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)

	for ctrl.State() != want {
		select {
		case res := <-done:
			// Put it back for the caller.
			done <- res
			return fmt.Errorf("selection ended before the overlay was armed")
		case <-ticker.C:
		case <-deadline:
			return fmt.Errorf("overlay was not armed within %s", timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// solve sends the capture, with any selected page text, to the backend and
// streams the answer to the terminal.
func (r *runner) solve(ctx context.Context, step Step, out *pipeline.Outcome) (*solver.Answer, error) {
	modeName := step.Mode
	if modeName == "" {
		if cfg := appconfig.GetSolver(); cfg != nil {
			modeName = cfg.GetMode()
		}
	}
	mode, err := solver.ParseMode(modeName)
	if err != nil {
		return nil, err
	}

	text, err := r.session.SelectedText()
	if err != nil {
		r.log.Warnf("could not read selected text: %v", err)
	}

	chunks, err := r.client.Stream(ctx, solver.Problem{
		ImageData: out.Artifact.Data,
		Text:      text,
		Prompt:    step.Prompt,
		Mode:      mode,
	})
	if err != nil {
		return nil, fmt.Errorf("solve request failed: %w", err)
	}

	fmt.Fprintln(r.out, headerStyle.Render("Answer"))
	answer := &solver.Answer{Model: r.client.Model()}
	var content, thinking strings.Builder
	for chunk := range chunks {
		if chunk.IsError() {
			return nil, fmt.Errorf("solve stream failed: %w", chunk.Error)
		}
		if chunk.IsThinking() {
			thinking.WriteString(chunk.Content)
			fmt.Fprint(r.out, thinkingStyle.Render(chunk.Content))
			continue
		}
		content.WriteString(chunk.Content)
		fmt.Fprint(r.out, chunk.Content)
	}
	fmt.Fprintln(r.out)

	answer.Content = strings.TrimSpace(content.String())
	answer.Thinking = strings.TrimSpace(thinking.String())
	r.log.Infof("answer from %s: %d chars", answer.Model, len(answer.Content))
	return answer, nil
}

func (r *runner) printError(step Step, err error) {
	r.log.Errorf("step %q failed: %v", step.label(), err)
	fmt.Fprintln(r.out, errorStyle.Render(fmt.Sprintf("✗ %s: %v", step.label(), err)))
}

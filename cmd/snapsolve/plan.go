package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/snapsolve/pkg/browser"
	"github.com/entrhq/snapsolve/pkg/solver"
	"github.com/entrhq/snapsolve/pkg/types"
)

// Plan is a batch of captures run against one tab.
//
// Example:
//
//	continue_on_error: true
//	steps:
//	  - name: question 1
//	    url: https://example.com/quiz
//	    region: 40,120,700,380
//	    solve: true
//	  - full: true
//	    out: page.png
type Plan struct {
	ContinueOnError bool   `yaml:"continue_on_error"`
	Steps           []Step `yaml:"steps"`
}

// Step is one capture. Exactly one of Full, Region or Interactive selects
// what is captured.
type Step struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Full        bool   `yaml:"full"`
	Region      string `yaml:"region"`
	Interactive bool   `yaml:"interactive"`
	Out         string `yaml:"out"`
	Solve       bool   `yaml:"solve"`
	Prompt      string `yaml:"prompt"`
	Mode        string `yaml:"mode"`
	Copy        bool   `yaml:"copy"`
}

// Validate checks the step's fields.
func (s Step) Validate() error {
	selected := 0
	for _, b := range []bool{s.Full, s.Region != "", s.Interactive} {
		if b {
			selected++
		}
	}
	if selected != 1 {
		return fmt.Errorf("exactly one of full, region or interactive must be set")
	}
	if s.Region != "" {
		if _, _, err := parseRegion(s.Region); err != nil {
			return err
		}
	}
	if _, err := solver.ParseMode(s.Mode); err != nil {
		return err
	}
	return nil
}

func (s Step) label() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Full:
		return "full screen"
	case s.Region != "":
		return "region " + s.Region
	default:
		return "interactive selection"
	}
}

func (p *Plan) needsSolver() bool {
	for _, s := range p.Steps {
		if s.Solve {
			return true
		}
	}
	return false
}

func (p *Plan) needsWindow() bool {
	for _, s := range p.Steps {
		if s.Interactive {
			return true
		}
	}
	return false
}

// Validate checks every step.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	for i, s := range p.Steps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, s.label(), err)
		}
	}
	return nil
}

// loadPlan reads a plan from a YAML file.
func loadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	plan := &Plan{}
	if err := yaml.Unmarshal(data, plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return plan, nil
}

// buildPlan returns the plan file when one is given, otherwise a single step
// built from the flags. Without a capture flag the full viewport is taken.
func buildPlan(cli *CLIConfig) (*Plan, error) {
	if cli.PlanFile != "" {
		return loadPlan(cli.PlanFile)
	}

	step := Step{
		URL:         cli.URL,
		Full:        cli.Full,
		Region:      cli.Region,
		Interactive: cli.Interactive,
		Out:         cli.OutputFile,
		Solve:       cli.Solve,
		Prompt:      cli.Prompt,
		Mode:        cli.Mode,
		Copy:        cli.Copy,
	}
	if !step.Full && step.Region == "" && !step.Interactive {
		step.Full = true
	}

	plan := &Plan{Steps: []Step{step}}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// parseRegion parses "x1,y1,x2,y2" in CSS pixels into drag endpoints.
func parseRegion(s string) (browser.Point, browser.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return browser.Point{}, browser.Point{}, fmt.Errorf("region must be x1,y1,x2,y2, got %q", s)
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return browser.Point{}, browser.Point{}, fmt.Errorf("invalid region coordinate %q: %w", p, err)
		}
		if f < 0 {
			return browser.Point{}, browser.Point{}, fmt.Errorf("region coordinates must not be negative, got %g", f)
		}
		v[i] = f
	}

	if !types.RectFromDrag(v[0], v[1], v[2], v[3]).Valid() {
		return browser.Point{}, browser.Point{}, fmt.Errorf("region %q is smaller than %dpx on a side", s, types.MinSelectionSize)
	}
	return browser.Point{X: v[0], Y: v[1]}, browser.Point{X: v[2], Y: v[3]}, nil
}

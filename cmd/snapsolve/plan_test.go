package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/snapsolve/pkg/browser"
)

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPlan(t *testing.T) {
	path := writePlan(t, `
continue_on_error: true
steps:
  - name: question 1
    url: https://example.com/quiz
    region: 50,50,250,150
    solve: true
    mode: hint
    prompt: only the first part
  - full: true
    out: page.png
    copy: true
`)

	plan, err := loadPlan(path)
	require.NoError(t, err)

	assert.True(t, plan.ContinueOnError)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, Step{
		Name:   "question 1",
		URL:    "https://example.com/quiz",
		Region: "50,50,250,150",
		Solve:  true,
		Mode:   "hint",
		Prompt: "only the first part",
	}, plan.Steps[0])
	assert.Equal(t, "full screen", plan.Steps[1].label())
	assert.True(t, plan.needsSolver())
	assert.False(t, plan.needsWindow())
}

func TestLoadPlan_Errors(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		expectError string
	}{
		{"no steps", "steps: []\n", "no steps"},
		{"malformed yaml", "steps: [\n", "failed to parse"},
		{"two capture kinds", "steps:\n  - full: true\n    region: 0,0,100,100\n", "exactly one"},
		{"no capture kind", "steps:\n  - url: https://example.com\n", "exactly one"},
		{"bad mode", "steps:\n  - full: true\n    mode: cheat\n", "unknown mode"},
		{"tiny region", "steps:\n  - region: 0,0,5,100\n", "smaller than"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadPlan(writePlan(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}

	_, err := loadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuildPlan_FromFlags(t *testing.T) {
	plan, err := buildPlan(&CLIConfig{URL: "https://example.com", Solve: true})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.True(t, plan.Steps[0].Full, "full screen is the default capture")
	assert.True(t, plan.needsSolver())

	plan, err = buildPlan(&CLIConfig{Interactive: true})
	require.NoError(t, err)
	assert.True(t, plan.needsWindow())
	assert.Equal(t, "interactive selection", plan.Steps[0].label())

	_, err = buildPlan(&CLIConfig{Full: true, Region: "0,0,100,100"})
	assert.Error(t, err)
}

func TestParseRegion(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		from, to browser.Point
		wantErr  bool
	}{
		{"drag down right", "50,50,250,150", browser.Point{X: 50, Y: 50}, browser.Point{X: 250, Y: 150}, false},
		{"drag up left", "250, 150, 50, 50", browser.Point{X: 250, Y: 150}, browser.Point{X: 50, Y: 50}, false},
		{"fractional", "10.5,10,30,40.25", browser.Point{X: 10.5, Y: 10}, browser.Point{X: 30, Y: 40.25}, false},
		{"too few values", "1,2,3", browser.Point{}, browser.Point{}, true},
		{"not a number", "a,2,3,4", browser.Point{}, browser.Point{}, true},
		{"negative", "-5,0,100,100", browser.Point{}, browser.Point{}, true},
		{"below minimum", "0,0,9,100", browser.Point{}, browser.Point{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := parseRegion(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
		})
	}
}

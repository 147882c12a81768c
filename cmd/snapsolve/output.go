package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/snapsolve/pkg/pipeline"
)

var (
	salmonPink = lipgloss.Color("#FFB3BA")
	mintGreen  = lipgloss.Color("#A8E6CF")
	mutedGray  = lipgloss.Color("#6B7280")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(mintGreen)

	subtleStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	thinkingStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonPink)

	statsBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(salmonPink).
			Padding(0, 1)
)

// renderStats formats the outcome of one capture.
func renderStats(title string, out *pipeline.Outcome) string {
	a := out.Artifact

	rows := [][2]string{
		{"request", out.RequestID},
	}
	if out.Snapshot != nil {
		rows = append(rows, [2]string{"snapshot", fmt.Sprintf("%dx%d @ %gx", out.Snapshot.Width, out.Snapshot.Height, out.Snapshot.DevicePixelRatio)})
	}
	if out.Crop != nil {
		rows = append(rows, [2]string{"selection", out.Selection.String()})
		rows = append(rows, [2]string{"crop", out.Crop.Rect.String()})
	}

	var status string
	switch {
	case a.Skipped:
		status = "skipped (already small)"
	case a.Fallback != nil:
		status = "original kept: " + a.Fallback.Error()
	default:
		status = fmt.Sprintf("jpeg q%.2f, %dx%d, %d attempt(s)", a.Quality, a.Width, a.Height, a.Attempts)
	}

	rows = append(rows,
		[2]string{"size", fmt.Sprintf("%.1f KB -> %.1f KB (%d%%)", a.OriginalSizeKB, a.CompressedSizeKB, a.ReductionPercent)},
		[2]string{"encoding", status},
		[2]string{"took", out.Duration.Round(time.Millisecond).String()},
	)

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, headerStyle.Render(title))
	for _, row := range rows {
		lines = append(lines, labelStyle.Render(row[0])+valueStyle.Render(row[1]))
	}
	return statsBoxStyle.Render(strings.Join(lines, "\n"))
}

// decodeDataURI returns the bytes and media type of a base64 data URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("data URI has no payload")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("data URI is not base64 encoded")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode data URI: %w", err)
	}
	return data, mediaType, nil
}

// writeImage writes the image in a data URI to path.
func writeImage(path, dataURI string) error {
	data, _, err := decodeDataURI(dataURI)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

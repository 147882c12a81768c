package solver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

// Mode selects how the backend is asked to respond.
type Mode string

const (
	// ModeSolve asks for the final answer with brief working.
	ModeSolve Mode = "solve"
	// ModeExplain asks for a step-by-step explanation.
	ModeExplain Mode = "explain"
	// ModeHint asks for a nudge without giving the answer away.
	ModeHint Mode = "hint"
)

// ErrEmptyProblem is returned when a problem carries neither an image nor text.
var ErrEmptyProblem = errors.New("problem has no image or text")

// ParseMode parses a mode name. An empty name yields ModeSolve.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSolve:
		return ModeSolve, nil
	case ModeExplain:
		return ModeExplain, nil
	case ModeHint:
		return ModeHint, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want solve, explain or hint)", s)
	}
}

// Problem is one request to the solving backend.
type Problem struct {
	// ImageData is the encoded capture as a data URI.
	ImageData string
	// Text is optional page text selected alongside the capture.
	Text string
	// Prompt is an optional extra instruction from the user.
	Prompt string
	Mode   Mode
}

// Validate checks the problem can be sent.
func (p Problem) Validate() error {
	if p.ImageData == "" && strings.TrimSpace(p.Text) == "" {
		return ErrEmptyProblem
	}
	if p.ImageData != "" && !strings.HasPrefix(p.ImageData, "data:image/") {
		return fmt.Errorf("image data must be a data URI")
	}
	if _, err := ParseMode(string(p.Mode)); err != nil {
		return err
	}
	return nil
}

const basePrompt = "You are a patient tutor. The user has captured part of their screen showing a problem. Read the image carefully, including any diagrams, equations or code."

var modePrompts = map[Mode]string{
	ModeSolve:   "Solve the problem. Show the key steps briefly, then state the final answer on its own line prefixed with \"Answer:\".",
	ModeExplain: "Explain how to solve the problem step by step, naming the concept behind each step. Finish with the final answer.",
	ModeHint:    "Give a single hint that points toward the next step. Do not reveal the final answer.",
}

// SystemPrompt returns the system prompt for a mode.
func SystemPrompt(mode Mode) string {
	m, err := ParseMode(string(mode))
	if err != nil {
		m = ModeSolve
	}
	return basePrompt + "\n\n" + modePrompts[m]
}

// buildMessages converts a problem into chat messages: a system prompt and one
// user message holding the text and image parts.
func buildMessages(p Problem, detail string) []openai.ChatCompletionMessageParamUnion {
	var parts []openai.ChatCompletionContentPartUnionParam

	text := strings.TrimSpace(p.Prompt)
	if text == "" {
		text = "Here is the problem."
	}
	if selected := strings.TrimSpace(p.Text); selected != "" {
		text += "\n\nSelected text from the page:\n" + selected
	}
	parts = append(parts, openai.TextContentPart(text))

	if p.ImageData != "" {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    p.ImageData,
			Detail: detail,
		}))
	}

	return []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(SystemPrompt(p.Mode)),
		openai.UserMessage(parts),
	}
}

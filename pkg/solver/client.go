// Package solver sends captured problems to an OpenAI-compatible chat
// completions endpoint and streams the answer back.
//
// The backend is treated as an opaque service: the request carries a system
// prompt chosen by Mode and one user message holding the optional prompt,
// any selected page text and the encoded capture as an image part.
//
//	client, err := solver.NewClient(os.Getenv("OPENAI_API_KEY"), solver.WithModel("gpt-4o"))
//	if err != nil {
//	    return err
//	}
//	answer, err := client.Solve(ctx, solver.Problem{ImageData: artifact.ImageData})
package solver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/entrhq/snapsolve/pkg/logging"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o"

	// DefaultImageDetail lets the backend pick the image resolution.
	DefaultImageDetail = "auto"
)

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	imageDetail string
	maxTokens   int
	log         *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithModel sets the model to use.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithImageDetail sets the image detail hint ("auto", "low" or "high").
func WithImageDetail(detail string) Option {
	return func(c *Client) {
		if detail != "" {
			c.imageDetail = detail
		}
	}
}

// WithMaxTokens caps the response length. Zero leaves it to the backend.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		c.maxTokens = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a client. An API key is required.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	c := &Client{
		httpClient:  &http.Client{},
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		imageDetail: DefaultImageDetail,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.MustLogger("solver")
	}
	return c, nil
}

// Model returns the model name being used.
func (c *Client) Model() string {
	return c.model
}

// BaseURL returns the base URL being used.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stream sends the problem and streams back answer chunks. The channel is
// closed when the stream ends. Stream-time failures arrive as chunks with
// Error set; the returned error covers only failures to start the request.
func (c *Client) Stream(ctx context.Context, p Problem) (<-chan *Chunk, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	resp, err := c.sendStreamRequest(ctx, p)
	if err != nil {
		return nil, err
	}

	chunks := make(chan *Chunk, 10)
	go c.processStream(ctx, resp, chunks)
	return chunks, nil
}

// Solve sends the problem and returns the accumulated answer.
func (c *Client) Solve(ctx context.Context, p Problem) (*Answer, error) {
	stream, err := c.Stream(ctx, p)
	if err != nil {
		return nil, err
	}

	var content, thinking strings.Builder
	for chunk := range stream {
		if chunk.IsError() {
			// Drain so the reader goroutine can exit.
			for range stream {
			}
			return nil, chunk.Error
		}
		if chunk.IsThinking() {
			thinking.WriteString(chunk.Content)
		} else {
			content.WriteString(chunk.Content)
		}
	}

	return &Answer{
		Content:  strings.TrimSpace(content.String()),
		Thinking: strings.TrimSpace(thinking.String()),
		Model:    c.model,
	}, nil
}

func (c *Client) sendStreamRequest(ctx context.Context, p Problem) (*http.Response, error) {
	reqBody := map[string]interface{}{
		"model":    c.model,
		"messages": buildMessages(p, c.imageDetail),
		"stream":   true,
	}
	if c.maxTokens > 0 {
		reqBody["max_tokens"] = c.maxTokens
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	c.log.Debugf("POST %s model=%s mode=%s image=%t text=%d bytes", url, c.model, p.Mode, p.ImageData != "", len(p.Text))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("API request failed with status %d (failed to read error body: %w)", resp.StatusCode, readErr)
		}
		c.log.Errorf("API request failed with status %d", resp.StatusCode)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return resp, nil
}

// processStream reads SSE lines and forwards content deltas.
func (c *Client) processStream(ctx context.Context, resp *http.Response, chunks chan<- *Chunk) {
	defer close(chunks)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	splitter := &reasoningSplitter{}

	for scanner.Scan() {
		line := scanner.Text()
		if !isDataLine(line) {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			c.finish(ctx, splitter, chunks)
			return
		}

		content, done, err := parseDelta(data)
		if err != nil {
			c.send(ctx, &Chunk{Error: err}, chunks)
			return
		}
		if content != "" {
			thinking, message := splitter.Feed(content)
			if !c.sendText(ctx, thinking, message, chunks) {
				return
			}
		}
		if done {
			c.finish(ctx, splitter, chunks)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		c.send(ctx, &Chunk{Error: fmt.Errorf("stream read error: %w", err)}, chunks)
		return
	}
	c.finish(ctx, splitter, chunks)
}

func (c *Client) finish(ctx context.Context, splitter *reasoningSplitter, chunks chan<- *Chunk) {
	thinking, message := splitter.Flush()
	if c.sendText(ctx, thinking, message, chunks) {
		c.send(ctx, &Chunk{Finished: true}, chunks)
	}
}

func (c *Client) sendText(ctx context.Context, thinking, message string, chunks chan<- *Chunk) bool {
	if thinking != "" && !c.send(ctx, &Chunk{Content: thinking, Type: ContentTypeThinking}, chunks) {
		return false
	}
	if message != "" && !c.send(ctx, &Chunk{Content: message, Type: ContentTypeMessage}, chunks) {
		return false
	}
	return true
}

// send delivers a chunk unless the context is cancelled first, in which case
// the cancellation is reported in its place.
func (c *Client) send(ctx context.Context, chunk *Chunk, chunks chan<- *Chunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		chunks <- &Chunk{Error: ctx.Err()}
		return false
	}
}

// isDataLine skips blank lines, SSE comments and non-data fields.
func isDataLine(line string) bool {
	return line != "" && !strings.HasPrefix(line, ":") && strings.HasPrefix(line, "data: ")
}

// parseDelta extracts the content delta of one SSE payload. Malformed
// payloads are skipped; an in-band API error is returned.
func parseDelta(data string) (content string, done bool, err error) {
	var chunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr != nil {
		return "", false, nil
	}
	if chunk.Error != nil {
		return "", false, fmt.Errorf("API stream error: %s", chunk.Error.Message)
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}

	choice := chunk.Choices[0]
	done = choice.FinishReason != nil && *choice.FinishReason != ""
	return choice.Delta.Content, done, nil
}

package solver

// ContentType distinguishes answer text from model reasoning.
type ContentType int

const (
	ContentTypeMessage ContentType = iota
	ContentTypeThinking
)

// Chunk is one piece of a streamed answer.
type Chunk struct {
	Content  string
	Type     ContentType
	Finished bool
	Error    error
}

// IsError reports whether the chunk carries a stream error.
func (c *Chunk) IsError() bool {
	return c.Error != nil
}

// IsThinking reports whether the chunk is model reasoning rather than answer text.
func (c *Chunk) IsThinking() bool {
	return c.Type == ContentTypeThinking
}

// Answer is an accumulated response.
type Answer struct {
	Content  string
	Thinking string
	Model    string
}

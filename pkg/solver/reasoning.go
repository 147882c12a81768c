package solver

import "strings"

// reasoningTags are the tag names reasoning models wrap their scratch work in.
var reasoningTags = map[string]bool{
	"thinking": true,
	"think":    true,
}

// reasoningSplitter separates <thinking>/<think> sections from answer text
// across streamed deltas. A tag may be split over any number of deltas.
type reasoningSplitter struct {
	text       strings.Builder
	tag        strings.Builder
	inTag      bool
	inThinking bool
}

// Feed consumes one delta and returns the reasoning and answer text it
// completed. Partial tags are held back until they close or Flush is called.
func (s *reasoningSplitter) Feed(delta string) (thinking, message string) {
	var th, msg strings.Builder
	emit := func(text string) {
		if text == "" {
			return
		}
		if s.inThinking {
			th.WriteString(text)
		} else {
			msg.WriteString(text)
		}
	}

	for _, ch := range delta {
		switch {
		case ch == '<':
			if s.inTag {
				emit(s.tag.String())
			}
			emit(s.text.String())
			s.text.Reset()
			s.tag.Reset()
			s.tag.WriteRune(ch)
			s.inTag = true
		case ch == '>' && s.inTag:
			s.tag.WriteRune(ch)
			tag := s.tag.String()
			s.tag.Reset()
			s.inTag = false
			if open, ok := parseReasoningTag(tag); ok {
				s.inThinking = open
				continue
			}
			emit(tag)
		case s.inTag:
			s.tag.WriteRune(ch)
		default:
			s.text.WriteRune(ch)
		}
	}

	emit(s.text.String())
	s.text.Reset()
	return th.String(), msg.String()
}

// Flush returns anything still buffered at end of stream.
func (s *reasoningSplitter) Flush() (thinking, message string) {
	var pending string
	if s.inTag {
		pending = s.tag.String()
		s.tag.Reset()
		s.inTag = false
	}
	pending += s.text.String()
	s.text.Reset()

	if s.inThinking {
		return pending, ""
	}
	return "", pending
}

// parseReasoningTag reports whether tag is a reasoning tag and, if so,
// whether it opens (true) or closes (false) a section.
func parseReasoningTag(tag string) (open bool, ok bool) {
	name := strings.TrimSuffix(strings.TrimPrefix(tag, "<"), ">")
	closing := strings.HasPrefix(name, "/")
	name = strings.TrimPrefix(name, "/")
	if !reasoningTags[name] {
		return false, false
	}
	return !closing, true
}

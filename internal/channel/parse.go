package channel

import "strings"

// Marker syntax for channel blocks in raw model output.
const (
	analysisOpen    = "<analysis>"
	analysisClose   = "</analysis>"
	commentaryOpen  = "<commentary>"
	commentaryClose = "</commentary>"
	finalOpen       = "<final>"
	finalClose      = "</final>"
)

type marker struct {
	open    string
	close   string
	channel Channel
}

var markers = []marker{
	{analysisOpen, analysisClose, Analysis},
	{commentaryOpen, commentaryClose, Commentary},
	{finalOpen, finalClose, Final},
}

// Parse splits raw text into ordered channel segments.
//
// The text may contain zero or more analysis/commentary/final blocks in any
// order. Unmarked leading, trailing, or interleaved text is assigned to
// Final, which makes a plain-text answer a single Final segment. An open
// marker with no matching close degrades gracefully: it is closed at the
// end of the text instead of failing the parse. Whitespace-only segments
// are dropped.
func Parse(raw string) []Segment {
	var segs []Segment
	rest := raw

	for rest != "" {
		idx, m := nextMarker(rest)
		if idx < 0 {
			segs = appendSegment(segs, Final, rest)
			break
		}

		segs = appendSegment(segs, Final, rest[:idx])
		rest = rest[idx+len(m.open):]

		end := strings.Index(rest, m.close)
		if end < 0 {
			// Unterminated block: runs to end of text.
			segs = appendSegment(segs, m.channel, rest)
			break
		}
		segs = appendSegment(segs, m.channel, rest[:end])
		rest = rest[end+len(m.close):]
	}

	return segs
}

// nextMarker finds the earliest open marker in s, or -1 if none remain.
func nextMarker(s string) (int, marker) {
	best := -1
	var bestMarker marker
	for _, m := range markers {
		if idx := strings.Index(s, m.open); idx >= 0 && (best < 0 || idx < best) {
			best = idx
			bestMarker = m
		}
	}
	return best, bestMarker
}

func appendSegment(segs []Segment, c Channel, content string) []Segment {
	content = strings.TrimSpace(content)
	if content == "" {
		return segs
	}
	return append(segs, Segment{Channel: c, Content: content})
}

// Render re-applies markers to a segment list, producing text that Parse
// maps back to the same segments. Used by tests and transcript tooling.
func Render(segs []Segment) string {
	var b strings.Builder
	for i, s := range segs {
		if i > 0 {
			b.WriteString("\n")
		}
		switch s.Channel {
		case Analysis:
			b.WriteString(analysisOpen + s.Content + analysisClose)
		case Commentary:
			b.WriteString(commentaryOpen + s.Content + commentaryClose)
		default:
			b.WriteString(finalOpen + s.Content + finalClose)
		}
	}
	return b.String()
}

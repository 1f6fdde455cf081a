package retrieval

import "github.com/hyperjump/kiku/internal/models"

// Separator joins chunks in an assembled context.
const Separator = "\n\n"

// Context is the text handed to the generator and a record of how it was built.
type Context struct {
	Text string
	// Used are the chunks that contributed to Text, in rank order.
	Used []*models.ScoredChunk
	// Dropped counts lower-ranked chunks left out to respect the length limit.
	Dropped int
	// Truncated is set when the top-ranked chunk alone exceeded the limit and was cut.
	Truncated bool
}

// Empty reports whether no chunk contributed to the context.
func (c Context) Empty() bool {
	return len(c.Used) == 0
}

// AssembleContext concatenates chunks in rank order with Separator, keeping the total at
// most maxLen runes (maxLen <= 0 means no limit). Once a chunk does not fit, it and every
// lower-ranked chunk are dropped. A top-ranked chunk longer than maxLen is cut to maxLen.
func AssembleContext(chunks []*models.ScoredChunk, maxLen int) Context {
	var c Context
	var text []rune
	sep := []rune(Separator)
	for i, sc := range chunks {
		content := []rune(sc.Chunk.Content)
		need := len(content)
		if i > 0 {
			need += len(sep)
		}
		if maxLen > 0 && len(text)+need > maxLen {
			if i == 0 {
				text = content[:maxLen]
				c.Used = append(c.Used, sc)
				c.Truncated = true
				c.Dropped = len(chunks) - 1
			} else {
				c.Dropped = len(chunks) - i
			}
			break
		}
		if i > 0 {
			text = append(text, sep...)
		}
		text = append(text, content...)
		c.Used = append(c.Used, sc)
	}
	c.Text = string(text)
	return c
}

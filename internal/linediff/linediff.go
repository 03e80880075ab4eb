// Package linediff computes line-interval deltas between two file
// versions.
//
// The differ runs a Myers LCS over lines (diffmatchpatch line mode) and
// reports maximal runs of lines in the newer version that are not part of
// the common subsequence. The LCS flavor is pinned: authorship notes embed
// a version number so readers can re-derive the alignment.
package linediff

import (
	"bytes"
	"time"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Span is a half-open 1-based line range [Start, End).
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of lines covered.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether a 1-based line number falls inside the span.
func (s Span) Contains(line int) bool { return line >= s.Start && line < s.End }

// DefaultBudget bounds the diff of a single file; past it the caller
// treats the file as opaque.
const DefaultBudget = 250 * time.Millisecond

// Differ computes line diffs with a per-file time budget.
type Differ struct {
	Budget time.Duration
}

// New returns a differ with the default budget.
func New() *Differ {
	return &Differ{Budget: DefaultBudget}
}

// Changed returns the spans of lines in curr that are inserted or
// modified relative to prev. A new file yields one span covering every
// line. Deletions contribute nothing.
func (d *Differ) Changed(prev, curr []byte) []Span {
	if len(curr) == 0 {
		return nil
	}
	if len(prev) == 0 {
		return []Span{{Start: 1, End: CountLines(curr) + 1}}
	}
	if bytes.Equal(prev, curr) {
		return nil
	}

	var spans []Span
	line := 1
	for _, chunk := range d.lineDiff(prev, curr) {
		n := chunk.lines
		switch chunk.op {
		case diffmatchpatch.DiffEqual:
			line += n
		case diffmatchpatch.DiffDelete:
			// Removed from prev; no lines in curr to attribute.
		case diffmatchpatch.DiffInsert:
			if len(spans) > 0 && spans[len(spans)-1].End == line {
				spans[len(spans)-1].End = line + n
			} else {
				spans = append(spans, Span{Start: line, End: line + n})
			}
			line += n
		}
	}
	return spans
}

// Align maps 1-based line numbers in from to their positions in to, for
// every line the LCS keeps verbatim. Lines outside the LCS are absent
// from the map.
func (d *Differ) Align(from, to []byte) map[int]int {
	mapping := make(map[int]int)
	if len(from) == 0 || len(to) == 0 {
		return mapping
	}
	if bytes.Equal(from, to) {
		n := CountLines(from)
		for i := 1; i <= n; i++ {
			mapping[i] = i
		}
		return mapping
	}

	fromLine, toLine := 1, 1
	for _, chunk := range d.lineDiff(from, to) {
		n := chunk.lines
		switch chunk.op {
		case diffmatchpatch.DiffEqual:
			for i := 0; i < n; i++ {
				mapping[fromLine+i] = toLine + i
			}
			fromLine += n
			toLine += n
		case diffmatchpatch.DiffDelete:
			fromLine += n
		case diffmatchpatch.DiffInsert:
			toLine += n
		}
	}
	return mapping
}

type chunk struct {
	op    diffmatchpatch.Operation
	lines int
}

// lineDiff runs the char-encoded line diff. Each rune in the encoded
// texts stands for one whole line, so rune counts are line counts. No
// semantic cleanup pass runs: cleanup trades stability for readability
// and the interval endpoints must be reproducible.
func (d *Differ) lineDiff(a, b []byte) []chunk {
	dmp := diffmatchpatch.New()
	if d.Budget > 0 {
		dmp.DiffTimeout = d.Budget
	}

	// Trailing-newline normalization: a final line without a newline
	// compares equal to the same line with one.
	sa, sb := string(a), string(b)
	if len(sa) > 0 && sa[len(sa)-1] != '\n' {
		sa += "\n"
	}
	if len(sb) > 0 && sb[len(sb)-1] != '\n' {
		sb += "\n"
	}
	ca, cb, _ := dmp.DiffLinesToChars(sa, sb)
	diffs := dmp.DiffMain(ca, cb, false)

	chunks := make([]chunk, 0, len(diffs))
	for _, diff := range diffs {
		n := utf8.RuneCountInString(diff.Text)
		if n == 0 {
			continue
		}
		chunks = append(chunks, chunk{op: diff.Type, lines: n})
	}
	return chunks
}

// CountLines counts lines with trailing-newline normalization: a file
// ending without a newline still counts its final partial line, and the
// newline terminating the last line does not open a phantom empty one.
func CountLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

// IsBinary sniffs for a NUL byte in the leading segment, mirroring git's
// heuristic. Binary files are indexed but never line-diffed.
func IsBinary(content []byte) bool {
	const sniffLen = 8000
	segment := content
	if len(segment) > sniffLen {
		segment = segment[:sniffLen]
	}
	return bytes.IndexByte(segment, 0) >= 0
}

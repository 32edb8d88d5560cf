package ingest

// streaming.go cleans uploaded text before it reaches the CSV parser.
//
// Exports produced on Windows often start with a UTF-8 byte order mark, and
// tools that re-save logs in a legacy code page leave stray bytes that are
// not valid UTF-8. Both are fixed on the fly so the parser only ever sees
// clean UTF-8:
//
//   - a leading BOM (0xEF 0xBB 0xBF) is dropped
//   - each invalid byte is replaced with '?'

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// newTextReader wraps r with BOM removal and UTF-8 sanitizing.
func newTextReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return &utf8Sanitizer{r: br}
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?' while streaming.
// A multi-byte sequence split across two reads is held back until the rest
// of it arrives.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, s.pending)
	s.pending = s.pending[:copy(s.pending, s.pending[n:])]

	m, err := s.r.Read(p[n:])
	n += m
	if n == 0 {
		return 0, err
	}

	if isASCII(p[:n]) {
		return n, err
	}
	return s.clean(p[:n], err != nil), err
}

// clean rewrites data in place and returns the number of bytes to hand out.
// Unless atEnd is set, an incomplete trailing sequence moves to pending.
func (s *utf8Sanitizer) clean(data []byte, atEnd bool) int {
	w := 0
	for r := 0; r < len(data); {
		c, size := utf8.DecodeRune(data[r:])
		if c == utf8.RuneError && size <= 1 {
			if !atEnd && !utf8.FullRune(data[r:]) {
				s.pending = append(s.pending, data[r:]...)
				return w
			}
			data[w] = '?'
			w++
			r++
			continue
		}
		w += copy(data[w:], data[r:r+size])
		r += size
	}
	return w
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

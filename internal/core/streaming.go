package core

// streaming.go provides readers that clean up text input on the fly.
//
// CSV exports from Korean Windows tools often start with a UTF-8 BOM and
// occasionally carry bytes that are not valid UTF-8. These wrappers fix
// both without buffering the file:
//
//   - BOMSkippingReader drops a leading 0xEF 0xBB 0xBF
//   - UTF8Sanitizer replaces invalid bytes with '?'
//   - CountingReader tracks bytes read and reports progress
//
// WrapForStreaming applies all three in the right order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader removes a UTF-8 byte order mark from the start of a stream.
type BOMSkippingReader struct {
	r       *bufio.Reader
	checked bool
}

// NewBOMSkippingReader wraps r.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{r: bufio.NewReader(r)}
}

func (b *BOMSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, err := b.r.Peek(len(utf8BOM))
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return 0, err
		}
		if bytes.Equal(head, utf8BOM) {
			if _, err := b.r.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}
	return b.r.Read(p)
}

// UTF8Sanitizer replaces each invalid UTF-8 byte with '?'. A multi-byte
// sequence split across reads of the underlying reader is carried over
// until it is complete.
type UTF8Sanitizer struct {
	r     io.Reader
	buf   []byte
	carry []byte
	out   []byte
	err   error
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: r, buf: make([]byte, DefaultChunkSize)}
}

func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.out) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		s.fill()
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

func (s *UTF8Sanitizer) fill() {
	n, err := s.r.Read(s.buf)
	data := append(s.carry, s.buf[:n]...)
	s.carry = nil
	s.err = err
	atEOF := err != nil

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		c := data[i]
		if c < utf8.RuneSelf {
			out = append(out, c)
			i++
			continue
		}
		if !atEOF && !utf8.FullRune(data[i:]) {
			s.carry = append([]byte(nil), data[i:]...)
			break
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			out = append(out, '?')
			i++
			continue
		}
		out = append(out, data[i:i+size]...)
		i += size
	}
	s.out = out
}

// CountingReader counts bytes read and reports progress against a known
// total.
type CountingReader struct {
	r         io.Reader
	BytesRead int64
	Total     int64
}

// NewCountingReader wraps r. total may be zero when unknown.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{r: r, Total: total}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// Percent returns progress in [0, 100], or 0 when the total is unknown.
func (c *CountingReader) Percent() float64 {
	if c.Total <= 0 {
		return 0
	}
	return min(float64(c.BytesRead)*100/float64(c.Total), 100)
}

// WrapForStreaming strips a BOM, sanitises UTF-8 and counts bytes, in
// that order.
func WrapForStreaming(r io.Reader, total int64) *CountingReader {
	return NewCountingReader(NewUTF8Sanitizer(NewBOMSkippingReader(r)), total)
}

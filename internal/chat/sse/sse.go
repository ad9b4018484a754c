// Package sse reassembles server-sent-event lines from arbitrary reads and
// writes outgoing `data:` frames.
package sse

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DoneSentinel terminates an OpenAI-style stream.
const DoneSentinel = "[DONE]"

// LineBuffer accumulates bytes and yields complete lines. A trailing
// unterminated line stays buffered until the next Feed or Flush.
type LineBuffer struct {
	pending []byte
}

// Feed appends p and returns every complete line, without the newline
// (and without a trailing \r).
func (b *LineBuffer) Feed(p []byte) []string {
	b.pending = append(b.pending, p...)

	var lines []string
	for {
		i := bytes.IndexByte(b.pending, '\n')
		if i < 0 {
			break
		}
		line := b.pending[:i]
		line = bytes.TrimSuffix(line, []byte("\r"))
		lines = append(lines, string(line))
		b.pending = b.pending[i+1:]
	}

	if len(b.pending) == 0 {
		b.pending = nil
	} else if cap(b.pending) > 4*len(b.pending)+4096 {
		b.pending = append([]byte(nil), b.pending...)
	}
	return lines
}

// Flush returns the buffered partial line, if any, and resets the buffer.
func (b *LineBuffer) Flush() (string, bool) {
	if len(b.pending) == 0 {
		return "", false
	}
	line := strings.TrimSuffix(string(b.pending), "\r")
	b.pending = nil
	return line, true
}

// Buffered reports how many bytes wait for a newline.
func (b *LineBuffer) Buffered() int {
	return len(b.pending)
}

// Data extracts the payload of a `data:` line. Comments, blank lines and
// other fields (event:, id:, retry:) return ok=false.
func Data(line string) (payload string, ok bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload = strings.TrimPrefix(line, "data:")
	payload = strings.TrimPrefix(payload, " ")
	return payload, true
}

// Reader walks an SSE body and calls fn for every data payload until the
// [DONE] sentinel, EOF, or an error from fn.
type Reader struct {
	r    io.Reader
	buf  LineBuffer
	size int
}

// NewReader wraps r. readSize bounds each underlying Read (0 = 4 KiB).
func NewReader(r io.Reader, readSize int) *Reader {
	if readSize <= 0 {
		readSize = 4096
	}
	return &Reader{r: r, size: readSize}
}

// Each calls fn for each payload. It returns done=true when the sentinel
// was seen, done=false on a clean EOF without one.
func (sr *Reader) Each(fn func(payload string) error) (done bool, err error) {
	chunk := make([]byte, sr.size)
	for {
		n, readErr := sr.r.Read(chunk)
		if n > 0 {
			for _, line := range sr.buf.Feed(chunk[:n]) {
				stop, err := dispatch(line, fn)
				if err != nil || stop {
					return stop, err
				}
			}
		}
		if readErr == io.EOF {
			if line, ok := sr.buf.Flush(); ok {
				return dispatch(line, fn)
			}
			return false, nil
		}
		if readErr != nil {
			return false, readErr
		}
	}
}

func dispatch(line string, fn func(string) error) (bool, error) {
	payload, ok := Data(line)
	if !ok {
		return false, nil
	}
	if strings.TrimSpace(payload) == DoneSentinel {
		return true, nil
	}
	return false, fn(payload)
}

// Writer emits `data:` frames to an HTTP response, flushing after each.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter sets the SSE headers when w is an http.ResponseWriter.
func NewWriter(w io.Writer) *Writer {
	if rw, ok := w.(http.ResponseWriter); ok {
		h := rw.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
	}
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// WriteData writes one `data: <payload>\n\n` frame.
func (sw *Writer) WriteData(payload []byte) error {
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}

// WriteDone writes the [DONE] sentinel frame.
func (sw *Writer) WriteDone() error {
	return sw.WriteData([]byte(DoneSentinel))
}

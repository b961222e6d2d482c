package stream

import (
	"sync"
	"unicode/utf8"
)

// Writer is an io.WriteCloser feeding raw bytes, such as terminal
// output, into one stream. An incomplete UTF-8 sequence at the end of a
// write is held back until the rest of it arrives, so no batch splits a
// rune.
type Writer struct {
	r         *Registry
	sessionID string

	mu   sync.Mutex
	tail []byte
}

// Writer returns a Writer for the stream identified by sessionID.
func (r *Registry) Writer(sessionID string) *Writer {
	return &Writer{r: r, sessionID: sessionID}
}

// Write implements io.Writer. It always consumes all of p unless the
// Registry rejects the stream.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := append(w.tail, p...)
	cut := completePrefix(buf)

	if cut > 0 {
		if err := w.r.Write(w.sessionID, string(buf[:cut])); err != nil {
			return 0, err
		}
	}

	w.tail = append(w.tail[:0:0], buf[cut:]...)

	return len(p), nil
}

// Close writes any held back bytes and ends the stream.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.tail) > 0 {
		if err := w.r.Write(w.sessionID, string(w.tail)); err != nil {
			return err
		}
		w.tail = nil
	}

	w.r.End(w.sessionID)

	return nil
}

// completePrefix returns the length of the longest prefix of b that
// does not end inside a UTF-8 sequence.
func completePrefix(b []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		start := len(b) - i
		if !utf8.RuneStart(b[start]) {
			continue
		}
		if utf8.FullRune(b[start:]) {
			return len(b)
		}
		return start
	}

	return len(b)
}

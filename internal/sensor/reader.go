package sensor

import (
	"bytes"
	"context"
	"io"

	"stimctl/internal/event"
)

// LineReader frames the sensor byte stream into newline-terminated lines and
// decodes them lossily. It relies on the underlying Port returning (0, nil)
// on read timeout so cancellation is observed between reads.
type LineReader struct {
	r       io.Reader
	pending []byte
	buf     []byte
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: r, buf: make([]byte, 512)}
}

// ReadLine blocks until one full line is available, the context is cancelled
// or the stream fails. The returned line has framing stripped and invalid
// bytes replaced.
func (l *LineReader) ReadLine(ctx context.Context) (string, error) {
	for {
		if i := bytes.IndexByte(l.pending, '\n'); i >= 0 {
			raw := l.pending[:i+1]
			line := event.DecodeLine(raw)
			l.pending = append(l.pending[:0:0], l.pending[i+1:]...)
			return line, nil
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := l.r.Read(l.buf)
		if n > 0 {
			l.pending = append(l.pending, l.buf[:n]...)
		}
		if err != nil {
			return "", err
		}
	}
}

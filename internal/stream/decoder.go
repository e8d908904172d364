// Package stream decodes the newline-delimited JSON answer stream produced by
// the answer service into ordered text and citation events.
package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/liliang-cn/doclens/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultReadBufferSize = 4096
	maxLoggedFrame        = 256
)

// Observer is notified about frame level outcomes
type Observer interface {
	FrameDecoded(kind domain.EventKind)
	FrameDropped()
	FrameTruncated()
}

// Option configures a Decoder
type Option func(*Decoder)

// WithLogger sets the logger used for dropped and truncated frames
func WithLogger(logger *zap.Logger) Option {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver sets the frame observer
func WithObserver(o Observer) Option {
	return func(d *Decoder) {
		d.observer = o
	}
}

// WithReadBufferSize sets how many bytes Decode reads at a time
func WithReadBufferSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.readSize = n
		}
	}
}

// Decoder turns byte chunks into StreamEvents. A Decoder holds the partial
// frame of one response and must not be shared between requests.
type Decoder struct {
	buf      []byte
	logger   *zap.Logger
	observer Observer
	readSize int
}

// NewDecoder creates a new decoder
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		logger:   zap.NewNop(),
		readSize: defaultReadBufferSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reset discards any buffered partial frame
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

// Write appends chunk to the buffer and returns the events of every frame
// completed by it. The trailing partial frame stays buffered.
func (d *Decoder) Write(chunk []byte) []domain.StreamEvent {
	d.buf = append(d.buf, chunk...)

	var events []domain.StreamEvent
	start := 0
	for {
		i := bytes.IndexByte(d.buf[start:], '\n')
		if i < 0 {
			break
		}
		if ev, ok := d.frame(d.buf[start : start+i]); ok {
			events = append(events, ev)
		}
		start += i + 1
	}

	if start > 0 {
		d.buf = append(d.buf[:0], d.buf[start:]...)
	}
	return events
}

// Close signals the end of the stream. A leftover fragment that is a full
// frame without its trailing newline is still decoded; anything else left in
// the buffer is discarded.
func (d *Decoder) Close() []domain.StreamEvent {
	rest := bytes.TrimSpace(d.buf)
	defer d.Reset()

	if len(rest) == 0 {
		return nil
	}

	ev, ok, err := parseFrame(rest)
	if err != nil {
		d.logger.Warn("Discarding truncated frame at end of stream",
			zap.Int("bytes", len(rest)),
			zap.String("fragment", clip(rest)),
		)
		if d.observer != nil {
			d.observer.FrameTruncated()
		}
		return nil
	}
	if !ok {
		return nil
	}
	d.decoded(ev.Kind)
	return []domain.StreamEvent{ev}
}

// Decode reads r until EOF, emitting events in arrival order. It stops early
// when ctx is done or emit returns an error.
func (d *Decoder) Decode(ctx context.Context, r io.Reader, emit func(domain.StreamEvent) error) error {
	chunk := make([]byte, d.readSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := r.Read(chunk)
		if n > 0 {
			for _, ev := range d.Write(chunk[:n]) {
				if err := emit(ev); err != nil {
					return err
				}
			}
		}

		if errors.Is(readErr, io.EOF) {
			for _, ev := range d.Close() {
				if err := emit(ev); err != nil {
					return err
				}
			}
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("failed to read stream: %w", readErr)
		}
	}
}

func (d *Decoder) frame(line []byte) (domain.StreamEvent, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return domain.StreamEvent{}, false
	}

	ev, ok, err := parseFrame(line)
	if err != nil {
		d.logger.Warn("Dropping malformed stream frame",
			zap.Error(err),
			zap.String("frame", clip(line)),
		)
		if d.observer != nil {
			d.observer.FrameDropped()
		}
		return domain.StreamEvent{}, false
	}
	if ok {
		d.decoded(ev.Kind)
	}
	return ev, ok
}

func (d *Decoder) decoded(kind domain.EventKind) {
	if d.observer != nil {
		d.observer.FrameDecoded(kind)
	}
}

func clip(b []byte) string {
	if len(b) > maxLoggedFrame {
		return string(b[:maxLoggedFrame]) + "..."
	}
	return string(b)
}

package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/pyroguard-risk-service/internal/pipeline"
)

const (
	chunkSize = 4096

	// maxLineLength bounds the pending buffer when a device never sends a newline.
	maxLineLength = 64 * 1024
)

type item struct {
	text string
	end  int64 // byte offset just past the line
	err  error
}

// lineStream turns a blocking byte stream into lines with a bounded wait per read. A
// background goroutine owns the underlying reader; Close unblocks it by closing the
// underlying handle.
type lineStream struct {
	items       chan item
	done        chan struct{}
	closer      io.Closer
	closeOnce   sync.Once
	closeErr    error
	readTimeout time.Duration
	consumed    atomic.Int64
	eof         bool
}

// newLineStream starts reading r at offset start. With follow set, EOF is treated as
// "no data yet" and polled again after pollInterval.
func newLineStream(r io.Reader, closer io.Closer, start int64, readTimeout time.Duration, follow bool, pollInterval time.Duration) *lineStream {
	s := &lineStream{
		items:       make(chan item, 64),
		done:        make(chan struct{}),
		closer:      closer,
		readTimeout: readTimeout,
	}
	s.consumed.Store(start)
	go s.pump(r, start, follow, pollInterval)
	return s
}

func (s *lineStream) pump(r io.Reader, offset int64, follow bool, pollInterval time.Duration) {
	var pending []byte
	buf := make([]byte, chunkSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				idx := bytes.IndexByte(pending, '\n')
				if idx < 0 {
					break
				}
				offset += int64(idx + 1)
				text := string(bytes.TrimRight(pending[:idx], "\r"))
				pending = pending[idx+1:]
				if !s.send(item{text: text, end: offset}) {
					return
				}
			}
			if len(pending) > maxLineLength {
				offset += int64(len(pending))
				pending = nil
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF) && follow:
			select {
			case <-s.done:
				return
			case <-time.After(pollInterval):
			}
			continue
		case errors.Is(err, io.EOF):
			if len(pending) > 0 {
				offset += int64(len(pending))
				if !s.send(item{text: string(pending), end: offset}) {
					return
				}
			}
			s.send(item{err: io.EOF})
			return
		default:
			s.send(item{err: err})
			return
		}
	}
}

func (s *lineStream) send(it item) bool {
	select {
	case s.items <- it:
		return true
	case <-s.done:
		return false
	}
}

// ReadLine returns the next line, pipeline.ErrReadTimeout when none arrived within the
// read timeout, or the stream's terminal error.
func (s *lineStream) ReadLine(ctx context.Context) (string, error) {
	if s.eof {
		return "", io.EOF
	}

	timer := time.NewTimer(s.readTimeout)
	defer timer.Stop()

	select {
	case it := <-s.items:
		if it.err != nil {
			if errors.Is(it.err, io.EOF) {
				s.eof = true
			}
			return "", it.err
		}
		s.consumed.Store(it.end)
		return it.text, nil
	case <-timer.C:
		return "", pipeline.ErrReadTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Consumed returns the offset just past the last line handed out by ReadLine.
func (s *lineStream) Consumed() int64 {
	return s.consumed.Load()
}

// Close stops the reader goroutine and closes the underlying handle.
func (s *lineStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})
	return s.closeErr
}

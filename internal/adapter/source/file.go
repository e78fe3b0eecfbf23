package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/couchcryptid/pyroguard-risk-service/internal/pipeline"
)

const filePollInterval = 100 * time.Millisecond

// File replays a telemetry capture file. Each window continues where the previous one
// stopped, and lines appended to the file later are picked up (tail mode). A file that
// shrank is read again from the start.
type File struct {
	path        string
	readTimeout time.Duration

	mu     sync.Mutex
	offset int64
}

// NewFile creates a file source for path.
func NewFile(path string, readTimeout time.Duration) *File {
	return &File{path: path, readTimeout: readTimeout}
}

// Name identifies the source in logs and status.
func (f *File) Name() string { return "file:" + f.path }

// Open opens the file positioned at the saved offset.
func (f *File) Open(_ context.Context) (pipeline.LineReader, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry file: %w", err)
	}

	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("stat telemetry file: %w", err)
	}

	f.mu.Lock()
	offset := f.offset
	if info.Size() < offset {
		offset = 0
	}
	f.mu.Unlock()

	if _, err := fh.Seek(offset, io.SeekStart); err != nil {
		fh.Close()
		return nil, fmt.Errorf("seek telemetry file: %w", err)
	}

	return &fileReader{
		lineStream: newLineStream(fh, fh, offset, f.readTimeout, true, filePollInterval),
		src:        f,
	}, nil
}

// Offset returns the position the next window starts reading from.
func (f *File) Offset() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offset
}

type fileReader struct {
	*lineStream
	src *File
}

// Close records how far the window read before closing the file.
func (r *fileReader) Close() error {
	err := r.lineStream.Close()
	r.src.mu.Lock()
	r.src.offset = r.Consumed()
	r.src.mu.Unlock()
	return err
}

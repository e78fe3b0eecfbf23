package source

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/couchcryptid/pyroguard-risk-service/internal/pipeline"
	"go.bug.st/serial"
)

// resetPulse is how long DTR and RTS are held low after opening, which reboots boards
// that wire DTR to reset.
const resetPulse = 150 * time.Millisecond

// Serial reads telemetry from a serial port.
type Serial struct {
	port        string
	baud        int
	readTimeout time.Duration
}

// NewSerial creates a serial source. port is normalized for the host OS.
func NewSerial(port string, baud int, readTimeout time.Duration) *Serial {
	return &Serial{
		port:        NormalizePort(runtime.GOOS, port),
		baud:        baud,
		readTimeout: readTimeout,
	}
}

// Name identifies the source in logs and status.
func (s *Serial) Name() string { return "serial:" + s.port }

// Open opens the port, pulses DTR/RTS and flushes stale buffered bytes.
func (s *Serial) Open(ctx context.Context) (pipeline.LineReader, error) {
	port, err := serial.Open(s.port, &serial.Mode{BaudRate: s.baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", s.port, err)
	}
	if err := port.SetReadTimeout(s.readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set serial read timeout: %w", err)
	}

	// Reset errors are ignored: adapters without modem lines still deliver data.
	_ = port.SetDTR(false)
	_ = port.SetRTS(false)
	select {
	case <-ctx.Done():
		port.Close()
		return nil, ctx.Err()
	case <-time.After(resetPulse):
	}
	_ = port.ResetInputBuffer()
	_ = port.ResetOutputBuffer()
	_ = port.SetDTR(true)
	_ = port.SetRTS(true)

	return newLineStream(port, port, 0, s.readTimeout, false, 0), nil
}

// NormalizePort trims the port name and, on Windows, upper-cases COM port names. The
// serial library adds the device namespace prefix itself.
func NormalizePort(goos, port string) string {
	port = strings.TrimSpace(port)
	if goos != "windows" {
		return port
	}
	port = strings.TrimPrefix(port, `\\.\`)
	return strings.ToUpper(port)
}

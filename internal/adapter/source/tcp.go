package source

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/couchcryptid/pyroguard-risk-service/internal/pipeline"
)

// TCP reads newline-delimited telemetry from a socket, for devices behind a
// serial-to-network bridge.
type TCP struct {
	addr        string
	readTimeout time.Duration
	dialer      net.Dialer
}

// NewTCP creates a source that dials addr (host:port) once per window.
func NewTCP(addr string, dialTimeout, readTimeout time.Duration) *TCP {
	return &TCP{
		addr:        addr,
		readTimeout: readTimeout,
		dialer:      net.Dialer{Timeout: dialTimeout},
	}
}

// Name identifies the source in logs and status.
func (t *TCP) Name() string { return "tcp:" + t.addr }

// Open dials the remote end.
func (t *TCP) Open(ctx context.Context) (pipeline.LineReader, error) {
	conn, err := t.dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("dial telemetry source: %w", err)
	}
	return newLineStream(conn, conn, 0, t.readTimeout, false, 0), nil
}

package landmark

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/banshee-data/posture.report/internal/monitoring"
)

// Source delivers detector frames to the processing loop. Run blocks until the
// context is cancelled, sending each decoded frame to out. Frames the consumer
// cannot keep up with are the scheduler's problem, not the source's: Run must
// never buffer a backlog.
type Source interface {
	Run(ctx context.Context, out chan<- Frame) error
}

// UDPSource reads line-delimited JSON frames from a detector sidecar over UDP.
// One datagram carries one frame; oversized or malformed datagrams are dropped
// with a log line rather than stalling the stream.
type UDPSource struct {
	Addr string
}

// NewUDPSource creates a source listening on the given UDP address
// (e.g. ":9301").
func NewUDPSource(addr string) *UDPSource {
	return &UDPSource{Addr: addr}
}

// Run listens for datagrams and decodes each into a Frame. A frame without a
// timestamp is stamped with the receive time so downstream hysteresis timers
// always have a wall clock to work with.
func (s *UDPSource) Run(ctx context.Context, out chan<- Frame) error {
	addr, err := net.ResolveUDPAddr("udp", s.Addr)
	if err != nil {
		return fmt.Errorf("resolve detector address %q: %w", s.Addr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen on %q: %w", s.Addr, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	monitoring.Logf("[Landmark] Listening for detector frames on %s", s.Addr)

	buf := make([]byte, 65536)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			monitoring.Logf("[Landmark] Read error: %v", err)
			continue
		}

		var frame Frame
		if err := json.Unmarshal(buf[:n], &frame); err != nil {
			monitoring.Logf("[Landmark] Dropping malformed frame: %v", err)
			continue
		}
		if frame.UnixNanos != 0 {
			frame.Timestamp = time.Unix(0, frame.UnixNanos)
		} else {
			frame.Timestamp = time.Now()
		}

		select {
		case out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// FileSource replays recorded frames from a line-delimited JSON fixture file,
// pacing them at the given interval. Used by dev mode to run the full pipeline
// without a detector attached.
type FileSource struct {
	Path     string
	Interval time.Duration
	Loop     bool
}

// Run replays the fixture until the context is cancelled or, when Loop is
// false, until the file is exhausted. Frame timestamps are rewritten to the
// replay clock so hysteresis behaves as it would live.
func (s *FileSource) Run(ctx context.Context, out chan<- Frame) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	for {
		if err := s.replayOnce(ctx, out, interval); err != nil {
			return err
		}
		if !s.Loop {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *FileSource) replayOnce(ctx context.Context, out chan<- Frame, interval time.Duration) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("open fixtures file: %w", err)
	}
	defer f.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var frame Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			monitoring.Logf("[Landmark] Skipping malformed fixture line: %v", err)
			continue
		}
		frame.Timestamp = time.Now()

		select {
		case out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

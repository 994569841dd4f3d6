package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/aoa.report/internal/monitoring"
)

// PacketForwarder mirrors raw anchor datagrams to another host, e.g. a
// bench machine running a second locator. Forwarding never blocks ingestion.
type PacketForwarder struct {
	conn        *net.UDPConn
	channel     chan []byte
	stats       *PacketStats
	logInterval time.Duration
	address     string
}

// NewPacketForwarder dials addr ("host:port") for forwarding.
func NewPacketForwarder(addr string, stats *PacketStats, logInterval time.Duration) (*PacketForwarder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}
	if stats == nil {
		stats = NewPacketStats()
	}
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &PacketForwarder{
		conn:        conn,
		channel:     make(chan []byte, 256),
		stats:       stats,
		logInterval: logInterval,
		address:     addr,
	}, nil
}

// Start runs the forwarding goroutine until ctx is done.
func (f *PacketForwarder) Start(ctx context.Context) {
	go func() {
		dropped := 0
		var lastErr error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-f.channel:
				if !ok {
					return
				}
				if _, err := f.conn.Write(packet); err != nil {
					dropped++
					lastErr = err
					continue
				}
				f.stats.AddForwarded()
			case <-ticker.C:
				if dropped > 0 && lastErr != nil {
					monitoring.Logf("dropped %d forwarded datagrams (latest: %v)", dropped, lastErr)
					dropped = 0
					lastErr = nil
				}
			}
		}
	}()

	monitoring.Logf("forwarding anchor datagrams to %s", f.address)
}

// ForwardAsync queues a copy of packet; it is dropped if the queue is full.
func (f *PacketForwarder) ForwardAsync(packet []byte) {
	packetCopy := make([]byte, len(packet))
	copy(packetCopy, packet)

	select {
	case f.channel <- packetCopy:
	default:
	}
}

// Close closes the UDP connection.
func (f *PacketForwarder) Close() error {
	return f.conn.Close()
}

package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/aoa.report/internal/monitoring"
	"github.com/banshee-data/aoa.report/internal/timeutil"
)

// DefaultPort is the UDP port the anchors broadcast on.
const DefaultPort = 5004

// maxDatagram bounds a single anchor report; +UUDF lines are well under 200 bytes.
const maxDatagram = 2048

// readPollInterval is how often a blocked receive wakes to check for
// shutdown. A wake-up with no datagram changes nothing.
const readPollInterval = 100 * time.Millisecond

// UDPListener receives anchor reports on a UDP socket and passes them to a
// Dispatcher.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	dispatcher  *Dispatcher
	forwarder   *PacketForwarder
	factory     UDPSocketFactory
	clock       timeutil.Clock

	mu   sync.Mutex
	conn UDPSocket
}

// UDPListenerConfig contains configuration options for the UDP listener
type UDPListenerConfig struct {
	Address       string
	RcvBuf        int
	LogInterval   time.Duration
	Dispatcher    *Dispatcher
	Forwarder     *PacketForwarder
	SocketFactory UDPSocketFactory
	Clock         timeutil.Clock
}

// NewUDPListener creates a new UDP listener with the provided configuration
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	l := &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: config.LogInterval,
		dispatcher:  config.Dispatcher,
		forwarder:   config.Forwarder,
		factory:     config.SocketFactory,
		clock:       config.Clock,
	}
	if l.address == "" {
		l.address = fmt.Sprintf(":%d", DefaultPort)
	}
	if l.logInterval == 0 {
		l.logInterval = time.Minute
	}
	if l.dispatcher == nil {
		l.dispatcher = NewDispatcher(nil, nil)
	}
	if l.factory == nil {
		l.factory = RealUDPSocketFactory{}
	}
	if l.clock == nil {
		l.clock = timeutil.RealClock{}
	}
	return l
}

// Stats returns the ingestion counters.
func (l *UDPListener) Stats() *PacketStats { return l.dispatcher.Stats() }

// Start binds the socket and receives datagrams until ctx is cancelled. It
// only returns early if the socket cannot be opened.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	monitoring.Logf("UDP listening on %s", conn.LocalAddr())

	if l.forwarder != nil {
		l.forwarder.Start(ctx)
	}

	go l.startStatsLogging(ctx)

	buffer := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
		}

		if err := conn.SetReadDeadline(l.clock.Now().Add(readPollInterval)); err != nil {
			monitoring.Debugf("failed to set read deadline: %v", err)
		}

		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				monitoring.Logf("UDP socket closed")
				return nil
			}
			monitoring.Logf("UDP read error: %v", err)
			continue
		}

		l.HandleDatagram(buffer[:n], from)
	}
}

// HandleDatagram processes one datagram as if it had just arrived.
func (l *UDPListener) HandleDatagram(packet []byte, from *net.UDPAddr) bool {
	if l.forwarder != nil {
		l.forwarder.ForwardAsync(packet)
	}
	source := "udp"
	if from != nil {
		source = from.String()
	}
	return l.dispatcher.Dispatch(packet, source, l.clock.Now())
}

func (l *UDPListener) startStatsLogging(ctx context.Context) {
	ticker := l.clock.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			l.Stats().LogStats()
		}
	}
}

// Close closes the socket, unblocking Start.
func (l *UDPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}

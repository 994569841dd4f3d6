package network

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/aoa.report/internal/monitoring"
)

// StatsSnapshot is what GET /api/stats reports.
type StatsSnapshot struct {
	// Totals since start.
	Packets   int64 `json:"packets"`
	Bytes     int64 `json:"bytes"`
	Accepted  int64 `json:"accepted"`
	Malformed int64 `json:"malformed"`
	Panics    int64 `json:"panics"`
	Forwarded int64 `json:"forwarded"`
	// Rates over the most recent logging interval.
	PacketsPerSec  float64   `json:"packets_per_sec"`
	AcceptedPerSec float64   `json:"accepted_per_sec"`
	Interval       string    `json:"interval"`
	Timestamp      time.Time `json:"timestamp"`
	Uptime         string    `json:"uptime"`
}

// PacketStats counts datagrams seen by the ingestion sources. It is safe for
// concurrent use.
type PacketStats struct {
	mu sync.Mutex

	packets, bytes, accepted, malformed, panics, forwarded int64

	// interval counters, reset by LogStats
	intervalPackets, intervalAccepted, intervalMalformed int64
	lastReset                                            time.Time
	startTime                                            time.Time

	lastPacketsPerSec, lastAcceptedPerSec float64
	lastInterval                          time.Duration
}

// NewPacketStats creates a new PacketStats instance
func NewPacketStats() *PacketStats {
	now := time.Now()
	return &PacketStats{lastReset: now, startTime: now}
}

// AddPacket records one received datagram of the given size.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packets++
	ps.intervalPackets++
	ps.bytes += int64(bytes)
}

// AddAccepted records a datagram that updated the angle store.
func (ps *PacketStats) AddAccepted() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.accepted++
	ps.intervalAccepted++
}

// AddMalformed records a dropped datagram.
func (ps *PacketStats) AddMalformed() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.malformed++
	ps.intervalMalformed++
}

// AddPanic records a datagram whose handling panicked.
func (ps *PacketStats) AddPanic() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.panics++
}

// AddForwarded records a datagram mirrored by the forwarder.
func (ps *PacketStats) AddForwarded() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.forwarded++
}

// LogStats logs the counts for the interval since the previous call and
// resets the interval counters. Quiet intervals are not logged.
func (ps *PacketStats) LogStats() {
	ps.mu.Lock()
	now := time.Now()
	d := now.Sub(ps.lastReset)
	packets, accepted, malformed := ps.intervalPackets, ps.intervalAccepted, ps.intervalMalformed
	ps.intervalPackets, ps.intervalAccepted, ps.intervalMalformed = 0, 0, 0
	ps.lastReset = now
	if d > 0 {
		ps.lastPacketsPerSec = float64(packets) / d.Seconds()
		ps.lastAcceptedPerSec = float64(accepted) / d.Seconds()
	}
	ps.lastInterval = d
	ps.mu.Unlock()

	if packets == 0 {
		return
	}
	msg := fmt.Sprintf("AoA stats (%s): %d datagrams, %d accepted", d.Round(time.Second), packets, accepted)
	if malformed > 0 {
		msg += fmt.Sprintf(", %d malformed", malformed)
	}
	monitoring.Logf("%s", msg)
}

// Snapshot returns the current totals and the last interval rates.
func (ps *PacketStats) Snapshot() StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return StatsSnapshot{
		Packets:        ps.packets,
		Bytes:          ps.bytes,
		Accepted:       ps.accepted,
		Malformed:      ps.malformed,
		Panics:         ps.panics,
		Forwarded:      ps.forwarded,
		PacketsPerSec:  ps.lastPacketsPerSec,
		AcceptedPerSec: ps.lastAcceptedPerSec,
		Interval:       ps.lastInterval.Round(time.Millisecond).String(),
		Timestamp:      time.Now(),
		Uptime:         time.Since(ps.startTime).Round(time.Second).String(),
	}
}

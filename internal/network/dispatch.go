package network

import (
	"runtime/debug"
	"time"

	"github.com/banshee-data/aoa.report/internal/aoa"
	"github.com/banshee-data/aoa.report/internal/monitoring"
)

// Handler receives every report that parsed cleanly.
type Handler func(r aoa.Report, receivedAt time.Time)

// Dispatcher parses raw anchor payloads and hands the result to a Handler.
// It is shared by the UDP listener, the serial source and PCAP replay so all
// three apply the same drop policy.
type Dispatcher struct {
	stats   *PacketStats
	handler Handler
}

// NewDispatcher returns a Dispatcher. stats may be nil.
func NewDispatcher(handler Handler, stats *PacketStats) *Dispatcher {
	if stats == nil {
		stats = NewPacketStats()
	}
	return &Dispatcher{stats: stats, handler: handler}
}

// Stats returns the counters the dispatcher updates.
func (d *Dispatcher) Stats() *PacketStats { return d.stats }

// Dispatch handles one payload received from source at time at. It returns
// true when the payload was a valid report. Malformed payloads are counted
// and dropped; a panic while handling drops only this payload.
func (d *Dispatcher) Dispatch(payload []byte, source string, at time.Time) (accepted bool) {
	defer func() {
		if r := recover(); r != nil {
			d.stats.AddPanic()
			monitoring.Logf("dropped datagram from %s after panic: %v\n%s", source, r, debug.Stack())
			accepted = false
		}
	}()

	d.stats.AddPacket(len(payload))

	report, err := aoa.ParseUUDF(payload)
	if err != nil {
		d.stats.AddMalformed()
		monitoring.Debugf("drop %s: %v", source, err)
		return false
	}

	if d.handler != nil {
		d.handler(report, at)
	}
	d.stats.AddAccepted()
	monitoring.Debugf("%s: anchor=%s az=%d el=%d", source, report.PeerID, report.AzimuthDeg, report.ElevationDeg)
	return true
}

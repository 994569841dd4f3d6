package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/banshee-data/aoa.report/internal/monitoring"
	"github.com/banshee-data/aoa.report/internal/timeutil"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ReplayConfig controls PCAP replay.
type ReplayConfig struct {
	// Port selects UDP datagrams by destination port. Zero means DefaultPort.
	Port int
	// Speed paces replay against capture timestamps: 1 is real time, 2 is
	// twice as fast. Zero replays as fast as possible.
	Speed float64
	// Forwarder, if set, receives a copy of every matching payload.
	Forwarder *PacketForwarder
	// Clock, if set, stamps each report with Clock.Now() at dispatch instead
	// of its capture time, so a locator with a staleness window treats the
	// replay as live traffic.
	Clock timeutil.Clock
}

// ReplayResult summarises a finished replay.
type ReplayResult struct {
	Frames   int
	Matched  int
	Accepted int
}

// ReplayPCAPFile opens path and replays it through d.
func ReplayPCAPFile(ctx context.Context, path string, d *Dispatcher, cfg ReplayConfig) (ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()
	return ReplayPCAP(ctx, f, d, cfg)
}

// ReplayPCAP reads a classic pcap stream and dispatches every UDP payload
// addressed to the anchor port. Reports are stamped with their capture time
// unless cfg.Clock is set.
func ReplayPCAP(ctx context.Context, r io.Reader, d *Dispatcher, cfg ReplayConfig) (ReplayResult, error) {
	var res ReplayResult
	if d == nil {
		return res, errors.New("nil dispatcher")
	}
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}

	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return res, fmt.Errorf("failed to read PCAP header: %w", err)
	}
	source := gopacket.NewPacketSource(reader, reader.LinkType())
	source.NoCopy = true

	var first, replayStart time.Time
	started := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			monitoring.Logf("PCAP replay stopping due to context cancellation (processed %d frames)", res.Frames)
			return res, err
		}

		packet, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			monitoring.Debugf("PCAP frame %d: %v", res.Frames+1, err)
			continue
		}
		res.Frames++

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || int(udp.DstPort) != port || len(udp.Payload) == 0 {
			continue
		}
		res.Matched++

		captured := packet.Metadata().Timestamp
		if cfg.Speed > 0 {
			if first.IsZero() {
				first, replayStart = captured, time.Now()
			}
			due := replayStart.Add(time.Duration(float64(captured.Sub(first)) / cfg.Speed))
			if wait := time.Until(due); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return res, ctx.Err()
				case <-timer.C:
				}
			}
		}

		if cfg.Forwarder != nil {
			cfg.Forwarder.ForwardAsync(udp.Payload)
		}
		at := captured
		if cfg.Clock != nil {
			at = cfg.Clock.Now()
		}
		if d.Dispatch(udp.Payload, "pcap", at) {
			res.Accepted++
		}
	}

	monitoring.Logf("PCAP replay complete: %d frames, %d anchor datagrams, %d accepted in %v",
		res.Frames, res.Matched, res.Accepted, time.Since(started).Round(time.Millisecond))
	return res, nil
}

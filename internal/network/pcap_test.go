package network

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/aoa.report/internal/aoa"
	"github.com/banshee-data/aoa.report/internal/testutil"
	"github.com/banshee-data/aoa.report/internal/timeutil"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureFrame struct {
	at      time.Time
	dstPort int
	payload []byte
}

func writeCapture(t *testing.T, frames []captureFrame) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	for _, f := range frames {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x20, 0xba, 0x36, 0x97, 0x74, 0x63},
			DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(192, 168, 1, 20),
			DstIP:    net.IPv4(192, 168, 1, 255),
		}
		udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(f.dstPort)}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

		sb := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(sb, opts, eth, ip, udp, gopacket.Payload(f.payload)))

		data := sb.Bytes()
		ci := gopacket.CaptureInfo{Timestamp: f.at, CaptureLength: len(data), Length: len(data)}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return buf.Bytes()
}

func TestReplayPCAP_UsesCaptureTimestamps(t *testing.T) {
	t0 := time.Date(2024, 11, 5, 9, 30, 0, 0, time.UTC)
	capture := writeCapture(t, []captureFrame{
		{at: t0, dstPort: DefaultPort, payload: testutil.UUDF("20BA36977463", 45, 10)},
		{at: t0.Add(50 * time.Millisecond), dstPort: 53, payload: []byte("dns")},
		{at: t0.Add(100 * time.Millisecond), dstPort: DefaultPort, payload: testutil.UUDF("20BA369AFC6B", -45, 10)},
		{at: t0.Add(150 * time.Millisecond), dstPort: DefaultPort, payload: []byte("+UUDF:broken")},
	})

	store := aoa.NewStore()
	d := NewDispatcher(func(r aoa.Report, ts time.Time) {
		store.Update(r.PeerID, float64(r.AzimuthDeg), float64(r.ElevationDeg), ts)
	}, nil)

	res, err := ReplayPCAP(context.Background(), bytes.NewReader(capture), d, ReplayConfig{})
	require.NoError(t, err)
	assert.Equal(t, ReplayResult{Frames: 4, Matched: 3, Accepted: 2}, res)

	r1, ok := store.Get("20BA36977463")
	require.True(t, ok)
	assert.True(t, r1.Timestamp.Equal(t0), "got %v", r1.Timestamp)

	r2, ok := store.Get("20BA369AFC6B")
	require.True(t, ok)
	assert.True(t, r2.Timestamp.Equal(t0.Add(100*time.Millisecond)))

	assert.EqualValues(t, 1, d.Stats().Snapshot().Malformed)
}

func TestReplayPCAP_ClockStampsLiveTime(t *testing.T) {
	t0 := time.Date(2024, 11, 5, 9, 30, 0, 0, time.UTC)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	capture := writeCapture(t, []captureFrame{
		{at: t0, dstPort: DefaultPort, payload: testutil.UUDF("20BA36977463", 45, 0)},
		{at: t0.Add(time.Second), dstPort: DefaultPort, payload: testutil.UUDF("20BA369AFC6B", -45, 0)},
	})

	clock := timeutil.NewMockClock(now)
	store := aoa.NewStore()
	d := NewDispatcher(func(r aoa.Report, ts time.Time) {
		store.Update(r.PeerID, float64(r.AzimuthDeg), float64(r.ElevationDeg), ts)
	}, nil)

	_, err := ReplayPCAP(context.Background(), bytes.NewReader(capture), d, ReplayConfig{Clock: clock})
	require.NoError(t, err)

	loc := aoa.NewLocator(aoa.LocatorConfig{
		Store:      store,
		Layout:     aoa.AnchorLayout{Anchor1ID: "20BA36977463", Anchor2ID: "20BA369AFC6B"},
		Clock:      clock,
		StaleAfter: 5 * time.Second,
	})
	res, err := loc.Triangulate(2.0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.X, 1e-9)

	r1, ok := store.Get("20BA36977463")
	require.True(t, ok)
	assert.True(t, r1.Timestamp.Equal(now), "got %v", r1.Timestamp)
}

func TestReplayPCAP_CustomPort(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	capture := writeCapture(t, []captureFrame{
		{at: t0, dstPort: DefaultPort, payload: testutil.UUDF("A1", 1, 1)},
		{at: t0, dstPort: 6000, payload: testutil.UUDF("A2", 2, 2)},
	})
	d := NewDispatcher(nil, nil)
	res, err := ReplayPCAP(context.Background(), bytes.NewReader(capture), d, ReplayConfig{Port: 6000})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
}

func TestReplayPCAP_Paced(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	capture := writeCapture(t, []captureFrame{
		{at: t0, dstPort: DefaultPort, payload: testutil.UUDF("A1", 1, 1)},
		{at: t0.Add(200 * time.Millisecond), dstPort: DefaultPort, payload: testutil.UUDF("A1", 2, 2)},
	})
	start := time.Now()
	_, err := ReplayPCAP(context.Background(), bytes.NewReader(capture), NewDispatcher(nil, nil), ReplayConfig{Speed: 2})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestReplayPCAP_Cancelled(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	capture := writeCapture(t, []captureFrame{
		{at: t0, dstPort: DefaultPort, payload: testutil.UUDF("A1", 1, 1)},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReplayPCAP(ctx, bytes.NewReader(capture), NewDispatcher(nil, nil), ReplayConfig{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplayPCAP_Errors(t *testing.T) {
	_, err := ReplayPCAP(context.Background(), bytes.NewReader([]byte("not a pcap")), NewDispatcher(nil, nil), ReplayConfig{})
	assert.Error(t, err)

	_, err = ReplayPCAP(context.Background(), bytes.NewReader(nil), nil, ReplayConfig{})
	assert.Error(t, err)

	_, err = ReplayPCAPFile(context.Background(), filepath.Join(t.TempDir(), "missing.pcap"), NewDispatcher(nil, nil), ReplayConfig{})
	assert.Error(t, err)
}

func TestReplayPCAPFile(t *testing.T) {
	capture := writeCapture(t, []captureFrame{
		{at: time.Unix(1700000000, 0), dstPort: DefaultPort, payload: testutil.UUDF("A1", 1, 1)},
	})
	path := filepath.Join(t.TempDir(), "anchors.pcap")
	require.NoError(t, os.WriteFile(path, capture, 0o644))

	res, err := ReplayPCAPFile(context.Background(), path, NewDispatcher(nil, nil), ReplayConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
}

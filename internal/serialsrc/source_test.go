package serialsrc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/aoa.report/internal/aoa"
	"github.com/banshee-data/aoa.report/internal/network"
	"github.com/banshee-data/aoa.report/internal/testutil"
	"github.com/banshee-data/aoa.report/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort reads from a fixed script and records writes.
type fakePort struct {
	io.Reader
	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
	short   bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.short {
		return len(b) - 1, nil
	}
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func newSource(t *testing.T, port Port, store *aoa.Store, clock timeutil.Clock) *Source {
	t.Helper()
	d := network.NewDispatcher(func(r aoa.Report, ts time.Time) {
		store.Update(r.PeerID, float64(r.AzimuthDeg), float64(r.ElevationDeg), ts)
	}, nil)
	var gotPath string
	var gotOpts PortOptions
	src, err := New(Config{
		Path:       "/dev/ttyACM0",
		Options:    PortOptions{BaudRate: 115200},
		Dispatcher: d,
		Clock:      clock,
		Opener: func(path string, opts PortOptions) (Port, error) {
			gotPath, gotOpts = path, opts
			return port, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", gotPath)
	assert.Equal(t, 115200, gotOpts.BaudRate)
	return src
}

func TestSource_RunDispatchesAngleReports(t *testing.T) {
	script := strings.Join([]string{
		"AT+UDFENABLE=1",
		"OK",
		strings.TrimSpace(string(testutil.UUDF("20BA36977463", 33, -4))),
		"+UUDF:truncated",
		strings.TrimSpace(string(testutil.UUDF("20BA369AFC6B", -20, 8))),
	}, "\r\n") + "\r\n"

	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	store := aoa.NewStore()
	src := newSource(t, &fakePort{Reader: strings.NewReader(script)}, store, timeutil.NewMockClock(now))

	require.NoError(t, src.Run(context.Background()))

	r1, ok := store.Get("20BA36977463")
	require.True(t, ok)
	assert.Equal(t, 33.0, r1.AzimuthDeg)
	assert.Equal(t, -4.0, r1.ElevationDeg)
	assert.True(t, r1.Timestamp.Equal(now))

	_, ok = store.Get("20BA369AFC6B")
	assert.True(t, ok)

	snap := src.dispatcher.Stats().Snapshot()
	assert.EqualValues(t, 3, snap.Packets, "non-report lines are not counted")
	assert.EqualValues(t, 1, snap.Malformed)
}

func TestSource_RunReturnsReadError(t *testing.T) {
	src := newSource(t, &fakePort{Reader: errReader{err: errors.New("device unplugged")}}, aoa.NewStore(), nil)
	err := src.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestSource_RunStopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	src := newSource(t, &fakePort{Reader: r}, aoa.NewStore(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSource_SendCommand(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("")}
	src := newSource(t, port, aoa.NewStore(), nil)

	require.NoError(t, src.SendCommand("AT"))
	require.NoError(t, src.SendCommand("ATI9\r\n"))
	assert.Equal(t, "AT\r\nATI9\r\n", port.written.String())

	port.short = true
	assert.ErrorIs(t, src.SendCommand("AT"), ErrWriteFailed)
}

func TestNew_SendsInitCommands(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("")}
	src, err := New(Config{
		Path:         "/dev/ttyX",
		Dispatcher:   network.NewDispatcher(nil, nil),
		Opener:       func(string, PortOptions) (Port, error) { return port, nil },
		InitCommands: []string{"AT+UDFENABLE=1", "ATE0"},
	})
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, "AT+UDFENABLE=1\r\nATE0\r\n", port.written.String())
}

func TestNew_InitCommandFailureClosesPort(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader(""), short: true}
	_, err := New(Config{
		Path:         "/dev/ttyX",
		Dispatcher:   network.NewDispatcher(nil, nil),
		Opener:       func(string, PortOptions) (Port, error) { return port, nil },
		InitCommands: []string{"AT+UDFENABLE=1"},
	})
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.True(t, port.closed)
}

func TestSource_CloseOnce(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("")}
	src := newSource(t, port, aoa.NewStore(), nil)
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	assert.True(t, port.closed)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{Path: "/dev/null"})
	assert.Error(t, err, "missing dispatcher")

	_, err = New(Config{
		Path:       "/dev/ttyX",
		Dispatcher: network.NewDispatcher(nil, nil),
		Opener: func(string, PortOptions) (Port, error) {
			return nil, errors.New("no such device")
		},
	})
	assert.Error(t, err)
}

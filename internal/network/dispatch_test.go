package network

import (
	"testing"
	"time"

	"github.com/banshee-data/aoa.report/internal/aoa"
	"github.com/banshee-data/aoa.report/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_ValidDatagramUpdatesStore(t *testing.T) {
	store := aoa.NewStore()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDispatcher(func(r aoa.Report, ts time.Time) {
		store.Update(r.PeerID, float64(r.AzimuthDeg), float64(r.ElevationDeg), ts)
	}, nil)

	require.True(t, d.Dispatch(testutil.UUDF("20BA36977463", -12, 30), "test", at))

	got, ok := store.Get("20BA36977463")
	require.True(t, ok)
	assert.Equal(t, -12.0, got.AzimuthDeg)
	assert.Equal(t, 30.0, got.ElevationDeg)
	assert.True(t, got.Timestamp.Equal(at))

	snap := d.Stats().Snapshot()
	assert.EqualValues(t, 1, snap.Packets)
	assert.EqualValues(t, 1, snap.Accepted)
	assert.EqualValues(t, 0, snap.Malformed)
}

func TestDispatcher_MalformedDatagramsAreDropped(t *testing.T) {
	store := aoa.NewStore()
	d := NewDispatcher(func(r aoa.Report, ts time.Time) {
		store.Update(r.PeerID, float64(r.AzimuthDeg), float64(r.ElevationDeg), ts)
	}, nil)

	payloads := [][]byte{
		[]byte("hello"),
		[]byte("+UUDF:a,b,c"),
		[]byte("+UUDF:6C1DEBA41680,-42,x,10,-44,37,\"20BA36977463\""),
		{0xff, 0xfe, 0xfd},
		{},
	}
	for _, p := range payloads {
		assert.False(t, d.Dispatch(p, "test", time.Now()), "payload %q", p)
	}

	assert.Equal(t, 0, store.Len())
	snap := d.Stats().Snapshot()
	assert.EqualValues(t, len(payloads), snap.Malformed)
	assert.EqualValues(t, 0, snap.Accepted)
}

func TestDispatcher_RecoversFromHandlerPanic(t *testing.T) {
	calls := 0
	d := NewDispatcher(func(aoa.Report, time.Time) {
		calls++
		if calls == 1 {
			panic("boom")
		}
	}, nil)

	assert.False(t, d.Dispatch(testutil.UUDF("A1", 1, 1), "test", time.Now()))
	assert.True(t, d.Dispatch(testutil.UUDF("A1", 2, 2), "test", time.Now()))

	snap := d.Stats().Snapshot()
	assert.EqualValues(t, 1, snap.Panics)
	assert.EqualValues(t, 1, snap.Accepted)
	assert.Equal(t, 2, calls)
}

func TestDispatcher_NilHandler(t *testing.T) {
	d := NewDispatcher(nil, nil)
	assert.True(t, d.Dispatch(testutil.UUDF("A1", 1, 1), "test", time.Now()))
}

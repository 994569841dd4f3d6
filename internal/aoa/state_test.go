package aoa

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_UpdateReplaces(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, ok := s.Get("A")
	assert.False(t, ok, "empty store must report absent")

	t0 := time.Unix(1700000000, 0)
	s.Update("A", 10, 5, t0)
	s.Update("A", -20, 3, t0.Add(time.Second))

	r, ok := s.Get("A")
	require.True(t, ok)
	assert.Equal(t, AnchorReading{AzimuthDeg: -20, ElevationDeg: 3, Timestamp: t0.Add(time.Second)}, r)
	assert.Equal(t, 1, s.Len())
}

func TestStore_UnknownIDsAreStored(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Update("not-an-anchor", 1, 2, time.Now())
	_, ok := s.Get("not-an-anchor")
	assert.True(t, ok)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Update("A", 1, 1, time.Now())
	snap := s.Snapshot()

	snap["A"] = AnchorReading{AzimuthDeg: 99}
	snap["B"] = AnchorReading{}
	s.Update("A", 2, 2, time.Now())

	r, _ := s.Get("A")
	assert.Equal(t, 2.0, r.AzimuthDeg)
	_, ok := s.Get("B")
	assert.False(t, ok)
	assert.Equal(t, 99.0, snap["A"].AzimuthDeg)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				// azimuth and elevation always move together
				s.Update(fmt.Sprintf("anchor-%d", w%2), float64(i), float64(i), time.Now())
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				for id, reading := range s.Snapshot() {
					if reading.AzimuthDeg != reading.ElevationDeg {
						t.Errorf("torn reading for %s: %+v", id, reading)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, s.Len())
}

func TestAnchorReading_JSON(t *testing.T) {
	t.Parallel()

	r := AnchorReading{AzimuthDeg: -12, ElevationDeg: 7, Timestamp: time.Unix(1700000000, 500000000)}
	b, err := json.Marshal(Snapshot{"20BA36977463": r})
	require.NoError(t, err)
	assert.JSONEq(t, `{"20BA36977463":{"azimuth":-12,"elevation":7,"timestamp":1700000000.5}}`, string(b))

	var back Snapshot
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, r.AzimuthDeg, back["20BA36977463"].AzimuthDeg)
	assert.WithinDuration(t, r.Timestamp, back["20BA36977463"].Timestamp, time.Microsecond)
}

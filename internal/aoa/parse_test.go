package aoa

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUUDF_Valid(t *testing.T) {
	t.Parallel()

	payload := []byte("+UUDF:6C1DEBA41680,-42,-12,7,-44,37,\"20BA36977463\",\"\",15724,1\r\n")
	got, err := ParseUUDF(payload)
	require.NoError(t, err)

	want := Report{
		PeerID:       "20BA36977463",
		TagID:        "6C1DEBA41680",
		AzimuthDeg:   -12,
		ElevationDeg: 7,
		RSSI1:        -42,
		RSSI2:        -44,
		Channel:      37,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestParseUUDF_PeerIDTrimmed(t *testing.T) {
	t.Parallel()

	got, err := ParseUUDF([]byte(`+UUDF:a,b, 15 , -3 ,c,d,  " 20BA369AFC6B "  `))
	require.NoError(t, err)
	assert.Equal(t, "20BA369AFC6B", got.PeerID)
	assert.Equal(t, 15, got.AzimuthDeg)
	assert.Equal(t, -3, got.ElevationDeg)
	// informational fields are lenient
	assert.Zero(t, got.RSSI1)
	assert.Zero(t, got.Channel)
}

func TestParseUUDF_ExactlySevenFields(t *testing.T) {
	t.Parallel()

	got, err := ParseUUDF([]byte(`+UUDF:x,0,1,2,0,0,"P"`))
	require.NoError(t, err)
	assert.Equal(t, "P", got.PeerID)
}

func TestParseUUDF_Malformed(t *testing.T) {
	t.Parallel()

	cases := map[string][]byte{
		"empty":              {},
		"wrong prefix":       []byte(`+UUDP:x,0,1,2,0,0,"P"`),
		"lowercase prefix":   []byte(`+uudf:x,0,1,2,0,0,"P"`),
		"too few fields":     []byte(`+UUDF:x,0,1,2,0,"P"`),
		"non-numeric az":     []byte(`+UUDF:x,0,abc,2,0,0,"P"`),
		"non-numeric el":     []byte(`+UUDF:x,0,1,2.5,0,0,"P"`),
		"empty azimuth":      []byte(`+UUDF:x,0,,2,0,0,"P"`),
		"invalid utf8":       {'+', 'U', 'U', 'D', 'F', ':', 0xff, 0xfe},
		"prefix not at head": []byte(`junk +UUDF:x,0,1,2,0,0,"P"`),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseUUDF(payload)
			assert.ErrorIs(t, err, ErrMalformedDatagram)
		})
	}
}

func TestFormatUUDF_ParsesBack(t *testing.T) {
	t.Parallel()

	in := Report{PeerID: "20BA36977463", TagID: "TAG", AzimuthDeg: -33, ElevationDeg: 14, RSSI1: -50, RSSI2: -51, Channel: 39}
	out, err := ParseUUDF([]byte(FormatUUDF(in)))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

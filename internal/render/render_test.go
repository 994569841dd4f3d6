package render

import (
	"bytes"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/aoa.report/internal/aoa"
	"github.com/banshee-data/aoa.report/internal/db"
)

func TestWriteGeometryPNG(t *testing.T) {
	r1 := aoa.AnchorReading{AzimuthDeg: 45, ElevationDeg: 10}
	r2 := aoa.AnchorReading{AzimuthDeg: -45, ElevationDeg: 10}
	fix, err := aoa.Triangulate(r1, r2, 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteGeometryPNG(&buf, Geometry{Separation: 2, Anchor1: &r1, Anchor2: &r2, Fix: &fix}, 0))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 100)
}

func TestWriteGeometryPNG_NoReadings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGeometryPNG(&buf, Geometry{Separation: 2}, 0))
	_, err := png.Decode(&buf)
	assert.NoError(t, err)
}

func TestRayLengthReachesFix(t *testing.T) {
	g := Geometry{Separation: 1, Fix: &aoa.Result{X: 10, Y: 10}}
	assert.Greater(t, g.rayLength(), 14.0)
	assert.Equal(t, 3.0, Geometry{Separation: 1}.rayLength())
	assert.Equal(t, 6.0, Geometry{Separation: -2}.rayLength())
	assert.Equal(t, 3.0, Geometry{Separation: 0}.rayLength())
}

func TestWriteHistoryPage(t *testing.T) {
	t0 := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	fixes := []db.Fix{
		{Result: aoa.Result{X: 1, Y: 2, Height: 0.5}, Time: t0.Add(time.Second)},
		{Result: aoa.Result{X: 1.1, Y: 2.1, Height: 0.6, Fallback3D: true}, Time: t0},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteHistoryPage(&buf, fixes, 2))
	html := buf.String()
	assert.Contains(t, html, "Fixes (plan view)")
	assert.Contains(t, html, "3D fallback")
	assert.Less(t, strings.Index(html, "04:05:06.000"), strings.Index(html, "04:05:07.000"))
}

func TestWriteHistoryPage_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHistoryPage(&buf, nil, 2))
	assert.Contains(t, buf.String(), "fixes=0")
}

// Package render draws debug views of the anchor geometry and fix history.
package render

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/aoa.report/internal/aoa"
)

var (
	anchor1Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	anchor2Color = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	fixColor     = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Geometry is what the plan view shows. Readings that are missing are nil.
type Geometry struct {
	Separation float64
	Anchor1    *aoa.AnchorReading
	Anchor2    *aoa.AnchorReading
	Fix        *aoa.Result
}

// rayLength picks a ray length that reaches past the fix, or a few
// separations when there is no fix. Anchor 2 sits on -X for a negative
// separation, so only its magnitude counts.
func (g Geometry) rayLength() float64 {
	l := math.Max(3*math.Abs(g.Separation), 3)
	if g.Fix != nil {
		far := math.Max(math.Hypot(g.Fix.X, g.Fix.Y), math.Hypot(g.Fix.X-g.Separation, g.Fix.Y))
		l = math.Max(l, 1.25*far)
	}
	return l
}

// NewGeometryPlot builds the plan (XY) view: anchors, their azimuth rays and
// the fix.
func NewGeometryPlot(g Geometry) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("AoA plan view (D=%.2f m)", g.Separation)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	length := g.rayLength()
	anchors := []struct {
		n       int
		name    string
		reading *aoa.AnchorReading
		c       color.Color
	}{
		{1, "anchor 1", g.Anchor1, anchor1Color},
		{2, "anchor 2", g.Anchor2, anchor2Color},
	}

	for _, a := range anchors {
		pos := aoa.AnchorPosition(a.n, g.Separation)
		s, err := plotter.NewScatter(plotter.XYs{{X: pos.X, Y: pos.Y}})
		if err != nil {
			return nil, err
		}
		s.GlyphStyle.Shape = draw.BoxGlyph{}
		s.GlyphStyle.Color = a.c
		s.GlyphStyle.Radius = vg.Points(4)
		p.Add(s)
		p.Legend.Add(a.name, s)

		if a.reading == nil {
			continue
		}
		dx, dy := aoa.PlanarRay(a.reading.AzimuthDeg)
		ray, err := plotter.NewLine(plotter.XYs{
			{X: pos.X, Y: pos.Y},
			{X: pos.X + length*dx, Y: pos.Y + length*dy},
		})
		if err != nil {
			return nil, err
		}
		ray.LineStyle.Color = a.c
		ray.LineStyle.Width = vg.Points(1)
		ray.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(ray)
	}

	if g.Fix != nil {
		fix, err := plotter.NewScatter(plotter.XYs{{X: g.Fix.X, Y: g.Fix.Y}})
		if err != nil {
			return nil, err
		}
		fix.GlyphStyle.Shape = draw.CircleGlyph{}
		fix.GlyphStyle.Color = fixColor
		fix.GlyphStyle.Radius = vg.Points(5)
		p.Add(fix)
		p.Legend.Add(fmt.Sprintf("fix (h=%.2f m)", g.Fix.Height), fix)
	}

	p.Legend.Top = true
	return p, nil
}

// WriteGeometryPNG renders the plan view as a PNG.
func WriteGeometryPNG(w io.Writer, g Geometry, size vg.Length) error {
	if size <= 0 {
		size = 6 * vg.Inch
	}
	p, err := NewGeometryPlot(g)
	if err != nil {
		return fmt.Errorf("build plot: %w", err)
	}
	wt, err := p.WriterTo(size, size, "png")
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

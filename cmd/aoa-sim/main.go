// Command aoa-sim plays the part of two anchors: it computes the angles each
// would report for a tag at a given position (or circling it) and sends them
// as +UUDF datagrams.
package main

import (
	"context"
	"flag"
	"log"
	"math"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/aoa.report/internal/aoa"
)

var (
	target   = flag.String("target", "127.0.0.1:5004", "UDP address of the locator")
	anchor1  = flag.String("anchor1", "20BA36977463", "Anchor 1 id")
	anchor2  = flag.String("anchor2", "20BA369AFC6B", "Anchor 2 id")
	tagID    = flag.String("tag", "6C1DEBA41680", "Tag id reported in each datagram")
	sep      = flag.Float64("D", 2.0, "Anchor separation in metres")
	x        = flag.Float64("x", 1.0, "Tag X in metres")
	y        = flag.Float64("y", 3.0, "Tag Y in metres")
	z        = flag.Float64("z", 1.5, "Tag Z in metres")
	radius   = flag.Float64("radius", 0, "Orbit radius around (x, y); 0 keeps the tag still")
	period   = flag.Duration("period", 20*time.Second, "Time for one orbit")
	interval = flag.Duration("interval", 100*time.Millisecond, "Delay between report pairs")
	count    = flag.Int("count", 0, "Number of report pairs to send; 0 runs until interrupted")
)

// sim describes the tag and anchors being simulated.
type sim struct {
	Anchor1, Anchor2 string
	TagID            string
	Separation       float64
	Centre           aoa.Point3D
	Radius           float64
	Period           time.Duration
}

// position returns where the tag is elapsed into the run.
func (s sim) position(elapsed time.Duration) aoa.Point3D {
	if s.Radius <= 0 || s.Period <= 0 {
		return s.Centre
	}
	theta := 2 * math.Pi * elapsed.Seconds() / s.Period.Seconds()
	return aoa.Point3D{
		X: s.Centre.X + s.Radius*math.Cos(theta),
		Y: s.Centre.Y + s.Radius*math.Sin(theta),
		Z: s.Centre.Z,
	}
}

// reports returns the pair of datagrams the anchors would send for a tag at p.
// Angles are rounded to whole degrees as the anchors do.
func (s sim) reports(p aoa.Point3D) [2]string {
	var out [2]string
	for i, id := range []string{s.Anchor1, s.Anchor2} {
		az, el := aoa.Bearing(aoa.AnchorPosition(i+1, s.Separation), p)
		out[i] = aoa.FormatUUDF(aoa.Report{
			PeerID:       id,
			TagID:        s.TagID,
			AzimuthDeg:   int(math.Round(az)),
			ElevationDeg: int(math.Round(el)),
			RSSI1:        -42,
			RSSI2:        -44,
			Channel:      37,
		}) + "\r\n"
	}
	return out
}

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := net.Dial("udp", *target)
	if err != nil {
		log.Fatalf("failed to dial %s: %v", *target, err)
	}
	defer conn.Close()

	s := sim{
		Anchor1:    *anchor1,
		Anchor2:    *anchor2,
		TagID:      *tagID,
		Separation: *sep,
		Centre:     aoa.Point3D{X: *x, Y: *y, Z: *z},
		Radius:     *radius,
		Period:     *period,
	}
	log.Printf("sending to %s: D=%.2f centre=(%.2f, %.2f, %.2f) radius=%.2f", *target, s.Separation, *x, *y, *z, s.Radius)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	start := time.Now()
	for sent := 0; *count == 0 || sent < *count; sent++ {
		for _, msg := range s.reports(s.position(time.Since(start))) {
			if _, err := conn.Write([]byte(msg)); err != nil {
				log.Printf("send failed: %v", err)
			}
		}
		select {
		case <-ctx.Done():
			log.Printf("sent %d report pairs", sent+1)
			return
		case <-ticker.C:
		}
	}
	log.Printf("sent %d report pairs", *count)
}

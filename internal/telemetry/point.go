// Package telemetry records anchor readings, tagged with the operator-supplied
// reference position, to one or more sinks while logging is switched on.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/aoa.report/internal/aoa"
)

// MeasurementDatagram is the measurement name for per-datagram points.
const MeasurementDatagram = "uudp_packet"

// Tag and field keys used on datagram points.
const (
	TagPeerMAC     = "peer_mac"
	TagSessionID   = "session_id"
	FieldAzimuth   = "azimuth"
	FieldElevation = "elevation"
	FieldDroneX    = "drone_x"
	FieldDroneY    = "drone_y"
	FieldDroneZ    = "drone_z"
)

// Point is a single time-series record.
type Point struct {
	Measurement string             `json:"measurement"`
	Tags        map[string]string  `json:"tags"`
	Fields      map[string]float64 `json:"fields"`
	Time        time.Time          `json:"time"`
}

// Sink stores points. Implementations must be safe for use by one writer
// goroutine; the Recorder never calls Write concurrently.
type Sink interface {
	Write(ctx context.Context, p Point) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, p Point) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, p Point) error { return f(ctx, p) }

// MultiSink writes each point to every sink and joins their errors.
type MultiSink []Sink

// Write implements Sink.
func (m MultiSink) Write(ctx context.Context, p Point) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DatagramPoint builds the point recorded for one anchor report.
func DatagramPoint(r aoa.Report, pos DronePosition, sessionID string, at time.Time) Point {
	return Point{
		Measurement: MeasurementDatagram,
		Tags: map[string]string{
			TagPeerMAC:   r.PeerID,
			TagSessionID: sessionID,
		},
		Fields: map[string]float64{
			FieldAzimuth:   float64(r.AzimuthDeg),
			FieldElevation: float64(r.ElevationDeg),
			FieldDroneX:    pos.X,
			FieldDroneY:    pos.Y,
			FieldDroneZ:    pos.Z,
		},
		Time: at,
	}
}

package main

import (
	"time"

	"github.com/banshee-data/aoa.report/internal/aoa"
	"github.com/banshee-data/aoa.report/internal/api"
	"github.com/banshee-data/aoa.report/internal/network"
	"github.com/banshee-data/aoa.report/internal/telemetry"
)

// ingest is what every accepted report passes through, whichever source
// it came from.
type ingest struct {
	store    *aoa.Store
	logging  *telemetry.LoggingState
	recorder *telemetry.Recorder
	hub      *api.Hub
}

func (in *ingest) handler() network.Handler {
	return func(r aoa.Report, at time.Time) {
		az, el := float64(r.AzimuthDeg), float64(r.ElevationDeg)
		in.store.Update(r.PeerID, az, el, at)

		if in.recorder != nil && in.logging != nil {
			if st := in.logging.Status(); st.Active {
				in.recorder.Record(telemetry.DatagramPoint(r, st.Position, st.SessionID, at))
			}
		}
		if in.hub != nil {
			in.hub.Publish(r.PeerID, aoa.AnchorReading{AzimuthDeg: az, ElevationDeg: el, Timestamp: at})
		}
	}
}

package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/aoa.report/internal/monitoring"
)

// DefaultRecorderBuffer bounds the number of points waiting for the sink.
const DefaultRecorderBuffer = 256

// flushTimeout bounds the drain of queued points at shutdown.
const flushTimeout = 5 * time.Second

// RecorderStats counts what happened to offered points.
type RecorderStats struct {
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
	Queued  int   `json:"queued"`
}

// Recorder decouples ingestion from a slow sink. Record never blocks; when
// the queue is full the point is dropped and counted.
type Recorder struct {
	sink  Sink
	queue chan Point

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64

	// errors are logged at most once per interval
	logMu       sync.Mutex
	lastErrLog  time.Time
	suppressed  int
	errInterval time.Duration
}

// NewRecorder creates a Recorder writing to sink. buffer <= 0 selects
// DefaultRecorderBuffer.
func NewRecorder(sink Sink, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultRecorderBuffer
	}
	return &Recorder{
		sink:        sink,
		queue:       make(chan Point, buffer),
		errInterval: 10 * time.Second,
	}
}

// Record queues p. It returns false if p was dropped.
func (r *Recorder) Record(p Point) bool {
	select {
	case r.queue <- p:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Run writes queued points until ctx is cancelled, then drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case p := <-r.queue:
			r.write(ctx, p)
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	n := 0
	for {
		select {
		case p := <-r.queue:
			r.write(ctx, p)
			n++
		default:
			if n > 0 {
				monitoring.Logf("telemetry: flushed %d queued points at shutdown", n)
			}
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, p Point) {
	if err := r.sink.Write(ctx, p); err != nil {
		r.failed.Add(1)
		r.logError(err)
		return
	}
	r.written.Add(1)
}

func (r *Recorder) logError(err error) {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	now := time.Now()
	if now.Sub(r.lastErrLog) < r.errInterval {
		r.suppressed++
		return
	}
	if r.suppressed > 0 {
		monitoring.Logf("telemetry write failed: %v (%d similar errors suppressed)", err, r.suppressed)
	} else {
		monitoring.Logf("telemetry write failed: %v", err)
	}
	r.lastErrLog = now
	r.suppressed = 0
}

// Stats returns the current counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
		Queued:  len(r.queue),
	}
}

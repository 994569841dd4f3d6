package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DronePosition is the surveyed position of the tag while a logging session
// is running, in the anchor frame (metres).
type DronePosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LoggingStatus is a copy of the logging state.
type LoggingStatus struct {
	Active    bool          `json:"active"`
	Position  DronePosition `json:"position"`
	SessionID string        `json:"session_id,omitempty"`
	Since     time.Time     `json:"since,omitempty"`
}

// LoggingState holds whether points are being recorded and against which
// reference position. Each activation starts a new session.
type LoggingState struct {
	mu     sync.RWMutex
	status LoggingStatus
}

// NewLoggingState returns an inactive state.
func NewLoggingState() *LoggingState {
	return &LoggingState{}
}

// Start activates logging at pos and returns the new session id. Calling
// Start while active moves the position and begins a fresh session.
func (s *LoggingState) Start(pos DronePosition, now time.Time) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = LoggingStatus{Active: true, Position: pos, SessionID: id, Since: now}
	return id
}

// Stop deactivates logging. The last position is kept for display.
func (s *LoggingState) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Active = false
	s.status.SessionID = ""
	s.status.Since = time.Time{}
}

// Status returns the current state.
func (s *LoggingState) Status() LoggingStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

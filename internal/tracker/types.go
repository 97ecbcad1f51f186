package tracker

import (
	"sync"
	"time"
)

// Record is the live entry for one process name.
// It is updated in place by every refresh; hold the pointer to observe changes.
type Record struct {
	name string

	mu         sync.RWMutex
	pid        int32
	filePath   string
	terminated bool
	instances  int
	firstSeen  time.Time
	lastSeen   time.Time
}

// Name returns the reconciliation key
func (r *Record) Name() string { return r.name }

// PID returns the most recently observed PID for the name
func (r *Record) PID() int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pid
}

// FilePath returns the executable path, empty when it could not be read
func (r *Record) FilePath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filePath
}

// Terminated reports whether the name was missing from the latest listing
func (r *Record) Terminated() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.terminated
}

// Snapshot returns a point-in-time copy of the record
func (r *Record) Snapshot() RecordSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Record) snapshotLocked() RecordSnapshot {
	return RecordSnapshot{
		Name:       r.name,
		PID:        r.pid,
		FilePath:   r.filePath,
		Terminated: r.terminated,
		Instances:  r.instances,
		FirstSeen:  r.firstSeen,
		LastSeen:   r.lastSeen,
	}
}

// RecordSnapshot is an immutable copy of a Record
type RecordSnapshot struct {
	Name       string    `json:"name"`
	PID        int32     `json:"pid"`
	FilePath   string    `json:"file_path,omitempty"`
	Terminated bool      `json:"terminated"`
	Instances  int       `json:"instances"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

// ProcessList contains a list of records
type ProcessList struct {
	Processes []RecordSnapshot `json:"processes"`
	Total     int              `json:"total"`
}

// EventType identifies a change notification
type EventType string

const (
	EventAdded         EventType = "added"
	EventUpdated       EventType = "updated"
	EventTerminated    EventType = "terminated"
	EventRevived       EventType = "revived"
	EventRefreshed     EventType = "refreshed"
	EventRefreshFailed EventType = "refresh_failed"
)

// Event is published to subscribers for every collection change and every refresh outcome
type Event struct {
	Type    EventType       `json:"type"`
	CycleID string          `json:"cycle_id"`
	Time    time.Time       `json:"time"`
	Record  *RecordSnapshot `json:"record,omitempty"`
	Result  *RefreshResult  `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// RefreshResult summarises one completed refresh cycle
type RefreshResult struct {
	CycleID    string        `json:"cycle_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Processes  int           `json:"processes"`
	Records    int           `json:"records"`
	Added      int           `json:"added"`
	Updated    int           `json:"updated"`
	Terminated int           `json:"terminated"`
	Revived    int           `json:"revived"`
}

// Status describes the reconciliation loop for out-of-band health reporting
type Status struct {
	LastRefresh     time.Time `json:"last_refresh"`
	LastAttempt     time.Time `json:"last_attempt"`
	LastCycleID     string    `json:"last_cycle_id,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	Cycles          int       `json:"cycles"`
	Failures        int       `json:"failures"`
	Refreshing      bool      `json:"refreshing"`
	AutoRefresh     bool      `json:"auto_refresh"`
	Records         int       `json:"records"`
	RefreshInterval string    `json:"refresh_interval"`
	MonitorInterval string    `json:"monitor_interval"`
}

// Filter selects records for listing
type Filter struct {
	// Terminated, when set, keeps only records in that state
	Terminated *bool
	// Query keeps names containing it, case-insensitively
	Query string
}

package tracker

import (
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ngenohkevin/fwcheck-agent/internal/process"
)

// Collection is the live, ordered set of process records keyed by name.
// Records are never removed; names that disappear are marked terminated.
type Collection struct {
	// applyMu serialises Apply so merges and their notifications never interleave
	applyMu sync.Mutex

	mu      sync.RWMutex
	records []*Record
	byName  map[string]*Record

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	now func() time.Time
}

// NewCollection creates an empty collection
func NewCollection() *Collection {
	return &Collection{
		byName: make(map[string]*Record),
		subs:   make(map[int]chan Event),
		now:    time.Now,
	}
}

type observation struct {
	info      process.ProcessInfo
	instances int
}

// Apply merges one complete process listing into the collection and publishes
// the resulting change events. Processes sharing a name collapse into one
// record; the first one listed supplies the PID and path.
func (c *Collection) Apply(cycleID string, procs []process.ProcessInfo) []Event {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	now := c.now()

	seen := make(map[string]*observation, len(procs))
	var order []string
	for _, p := range procs {
		if p.Name == "" {
			continue
		}
		if obs, ok := seen[p.Name]; ok {
			obs.instances++
			continue
		}
		seen[p.Name] = &observation{info: p, instances: 1}
		order = append(order, p.Name)
	}

	var events []Event
	emit := func(t EventType, snap RecordSnapshot) {
		events = append(events, Event{Type: t, CycleID: cycleID, Time: now, Record: &snap})
	}

	c.mu.Lock()

	// merge
	for _, name := range order {
		obs := seen[name]

		rec, ok := c.byName[name]
		if !ok {
			rec = &Record{
				name:      name,
				pid:       obs.info.PID,
				filePath:  obs.info.Exe,
				instances: obs.instances,
				firstSeen: now,
				lastSeen:  now,
			}
			c.records = append(c.records, rec)
			c.byName[name] = rec
			emit(EventAdded, rec.snapshotLocked())
			continue
		}

		rec.mu.Lock()
		changed := rec.pid != obs.info.PID || rec.filePath != obs.info.Exe || rec.instances != obs.instances
		revived := rec.terminated
		rec.pid = obs.info.PID
		rec.filePath = obs.info.Exe
		rec.instances = obs.instances
		rec.lastSeen = now
		rec.terminated = false
		snap := rec.snapshotLocked()
		rec.mu.Unlock()

		switch {
		case revived:
			emit(EventRevived, snap)
		case changed:
			emit(EventUpdated, snap)
		}
	}

	// mark
	for _, rec := range c.records {
		if _, ok := seen[rec.name]; ok {
			continue
		}
		rec.mu.Lock()
		if !rec.terminated {
			rec.terminated = true
			rec.instances = 0
			emit(EventTerminated, rec.snapshotLocked())
		}
		rec.mu.Unlock()
	}

	c.mu.Unlock()

	c.Publish(events...)

	return events
}

// Records returns the live records in first-seen order
func (c *Collection) Records() []*Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Record, len(c.records))
	copy(out, c.records)
	return out
}

// Get returns the live record for name
func (c *Collection) Get(name string) (*Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.byName[name]
	return rec, ok
}

// Len returns the number of records, terminated ones included
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Snapshots returns copies of the records matching f, in first-seen order
func (c *Collection) Snapshots(f Filter) []RecordSnapshot {
	query := strings.ToLower(f.Query)

	out := []RecordSnapshot{}
	for _, rec := range c.Records() {
		snap := rec.Snapshot()
		if f.Terminated != nil && snap.Terminated != *f.Terminated {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(snap.Name), query) {
			continue
		}
		out = append(out, snap)
	}
	return out
}

// Subscribe registers for change events. The returned func unsubscribes and closes the channel.
// Events are dropped for a subscriber whose buffer is full.
func (c *Collection) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers events to all subscribers without blocking
func (c *Collection) Publish(events ...Event) {
	if len(events) == 0 {
		return
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()

	for id, ch := range c.subs {
		for _, ev := range events {
			select {
			case ch <- ev:
			default:
				log.WithFields(log.Fields{
					"subscriber": id,
					"event":      ev.Type,
					"cycle_id":   ev.CycleID,
				}).Warn("Dropping event for slow subscriber")
			}
		}
	}
}

// Subscribers returns the number of active subscriptions
func (c *Collection) Subscribers() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subs)
}

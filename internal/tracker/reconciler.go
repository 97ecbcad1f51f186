package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/ngenohkevin/fwcheck-agent/internal/process"
)

// ErrStopped is returned by Refresh once Shutdown has been called
var ErrStopped = errors.New("reconciler stopped")

const refreshKey = "refresh"

// Lister enumerates running processes
type Lister interface {
	List(ctx context.Context) ([]process.ProcessInfo, error)
}

// Options configures a Reconciler
type Options struct {
	// RefreshInterval is how old the last successful refresh may get before Run refreshes again
	RefreshInterval time.Duration
	// MonitorInterval is how often Run checks for staleness
	MonitorInterval time.Duration
	AutoRefresh     bool
}

// Reconciler keeps a Collection in sync with the OS process table.
// All refreshes, whatever triggers them, go through Refresh: concurrent
// requests share one in-flight cycle and cycles never overlap.
type Reconciler struct {
	lister     Lister
	collection *Collection
	opts       Options

	group singleflight.Group

	// lifetime of the reconciler; cancelled by Shutdown
	ctx    context.Context
	cancel context.CancelFunc

	autoRefresh atomic.Bool

	mu          sync.RWMutex
	status      Status
	lastStarted time.Time // start of the last successful cycle
	lastFailed  bool

	stopOnce sync.Once

	now func() time.Time
}

// NewReconciler creates a reconciler feeding collection from lister
func NewReconciler(lister Lister, collection *Collection, opts Options) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Reconciler{
		lister:     lister,
		collection: collection,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}
	r.autoRefresh.Store(opts.AutoRefresh)

	return r
}

// Collection returns the live collection this reconciler owns
func (r *Reconciler) Collection() *Collection {
	return r.collection
}

// Refresh runs one List/Merge/Mark cycle, or joins the one already in flight.
// ctx only bounds how long the caller waits; the cycle itself is cancelled by Shutdown.
func (r *Reconciler) Refresh(ctx context.Context) (*RefreshResult, error) {
	if r.ctx.Err() != nil {
		return nil, ErrStopped
	}

	ch := r.group.DoChan(refreshKey, func() (interface{}, error) {
		return r.refresh()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result := *res.Val.(*RefreshResult)
		return &result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Reconciler) refresh() (*RefreshResult, error) {
	cycleID := uuid.NewString()
	start := r.now()
	logger := log.WithField("cycle_id", cycleID)

	r.mu.Lock()
	r.status.Refreshing = true
	r.status.LastAttempt = start
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.status.Refreshing = false
		r.mu.Unlock()
	}()

	procs, err := r.lister.List(r.ctx)
	if err == nil && r.ctx.Err() != nil {
		// listing finished after shutdown: abandon before touching the collection
		err = r.ctx.Err()
	}
	if err != nil {
		if r.ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ErrStopped, err)
		}
		r.recordFailure(cycleID, err)
		logger.WithError(err).Warn("Process refresh failed, keeping previous state")
		return nil, fmt.Errorf("failed to refresh processes: %w", err)
	}

	events := r.collection.Apply(cycleID, procs)

	result := &RefreshResult{
		CycleID:   cycleID,
		StartedAt: start,
		Duration:  r.now().Sub(start),
		Processes: len(procs),
		Records:   r.collection.Len(),
	}
	for _, ev := range events {
		switch ev.Type {
		case EventAdded:
			result.Added++
		case EventUpdated:
			result.Updated++
		case EventTerminated:
			result.Terminated++
		case EventRevived:
			result.Revived++
		}
	}

	r.mu.Lock()
	r.status.LastRefresh = r.now()
	r.status.LastCycleID = cycleID
	r.status.LastError = ""
	r.status.Cycles++
	r.lastStarted = start
	r.lastFailed = false
	r.mu.Unlock()

	summary := *result
	r.collection.Publish(Event{Type: EventRefreshed, CycleID: cycleID, Time: r.now(), Result: &summary})

	logger.WithFields(log.Fields{
		"processes":  result.Processes,
		"records":    result.Records,
		"added":      result.Added,
		"updated":    result.Updated,
		"terminated": result.Terminated,
		"revived":    result.Revived,
		"duration":   result.Duration,
	}).Debug("Process refresh complete")

	return result, nil
}

func (r *Reconciler) recordFailure(cycleID string, err error) {
	r.mu.Lock()
	r.status.LastError = err.Error()
	r.status.LastCycleID = cycleID
	r.status.Failures++
	r.lastFailed = true
	r.mu.Unlock()

	r.collection.Publish(Event{
		Type:    EventRefreshFailed,
		CycleID: cycleID,
		Time:    r.now(),
		Error:   err.Error(),
	})
}

// Run drives periodic refreshes until ctx is done or Shutdown is called.
// Every MonitorInterval it refreshes if auto-refresh is on and the data is
// stale: the last attempt failed, or the last success is about RefreshInterval old.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.MonitorInterval)
	defer ticker.Stop()

	log.WithFields(log.Fields{
		"refresh_interval": r.opts.RefreshInterval,
		"monitor_interval": r.opts.MonitorInterval,
		"auto_refresh":     r.AutoRefresh(),
	}).Info("Starting process reconciliation")

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if !r.due() {
				continue
			}
			if _, err := r.Refresh(ctx); err != nil && !errors.Is(err, ErrStopped) && ctx.Err() == nil {
				log.WithError(err).Debug("Scheduled refresh failed")
			}
		}
	}
}

// due reports whether the scheduler should refresh now. A success counts as
// fresh until half a monitor tick before RefreshInterval so tick jitter does
// not skip a whole tick.
func (r *Reconciler) due() bool {
	if !r.autoRefresh.Load() {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.lastFailed || r.lastStarted.IsZero() {
		return true
	}
	return r.now().Sub(r.lastStarted)+r.opts.MonitorInterval/2 >= r.opts.RefreshInterval
}

// SetAutoRefresh turns the periodic refresh on or off; manual refreshes always work
func (r *Reconciler) SetAutoRefresh(enabled bool) {
	if r.autoRefresh.Swap(enabled) != enabled {
		log.WithField("auto_refresh", enabled).Info("Auto refresh toggled")
	}
}

// AutoRefresh reports whether periodic refresh is enabled
func (r *Reconciler) AutoRefresh() bool {
	return r.autoRefresh.Load()
}

// Status returns the current loop status
func (r *Reconciler) Status() Status {
	r.mu.RLock()
	st := r.status
	r.mu.RUnlock()

	st.AutoRefresh = r.AutoRefresh()
	st.Records = r.collection.Len()
	st.RefreshInterval = r.opts.RefreshInterval.String()
	st.MonitorInterval = r.opts.MonitorInterval.String()
	return st
}

// Shutdown stops Run, cancels an in-flight listing and rejects further refreshes
func (r *Reconciler) Shutdown() {
	r.stopOnce.Do(func() {
		r.cancel()
		log.Info("Process reconciliation stopped")
	})
}

// Done is closed once Shutdown has been called
func (r *Reconciler) Done() <-chan struct{} {
	return r.ctx.Done()
}

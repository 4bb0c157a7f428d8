// Package progress tracks download progress for pipeline jobs. Each job
// writes through its own Handle, so concurrent jobs never overwrite one
// another; the tracker also remembers which job began most recently to
// serve pollers that only ask for "the" current progress.
package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Phonograph/internal/event"
	"github.com/hbomb79/Phonograph/pkg/logger"
	gosync "github.com/hbomb79/Phonograph/pkg/sync"
)

var log = logger.Get("Progress")

const (
	mirrorTimeout    = 2 * time.Second
	defaultRetention = 30 * time.Minute
)

type (
	// Mirror persists snapshots outside of the process.
	Mirror interface {
		Store(context.Context, Snapshot) error
		Load(context.Context, uuid.UUID) (Snapshot, bool, error)
		Delete(context.Context, uuid.UUID) error
	}

	// Sink receives progress snapshots from the acquisition engine.
	Sink interface {
		Set(Snapshot)
	}

	Tracker struct {
		slots      gosync.TypedSyncMap[uuid.UUID, *slot]
		latest     atomic.Pointer[uuid.UUID]
		dispatcher event.EventDispatcher
		mirror     Mirror
		retention  time.Duration
		now        func() time.Time
	}

	TrackerOption func(*Tracker)

	// Handle is a job-scoped writer for the tracker.
	Handle struct {
		tracker *Tracker
		id      uuid.UUID
	}

	slot struct {
		sync.Mutex
		current Snapshot
	}
)

// WithRetention sets how long finished or failed progress is held
// before Run prunes it.
func WithRetention(retention time.Duration) TrackerOption {
	return func(t *Tracker) {
		if retention > 0 {
			t.retention = retention
		}
	}
}

func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker. Either argument may be nil, in which case
// progress events are not dispatched and/or snapshots are not mirrored.
func NewTracker(dispatcher event.EventDispatcher, mirror Mirror, opts ...TrackerOption) *Tracker {
	tracker := &Tracker{dispatcher: dispatcher, mirror: mirror, retention: defaultRetention, now: time.Now}
	for _, opt := range opts {
		opt(tracker)
	}

	return tracker
}

// Run prunes expired progress until the context is cancelled. Runs
// outside of the job service (e.g. synchronous conversions) are only
// ever released here.
func (tracker *Tracker) Run(ctx context.Context) error {
	interval := tracker.retention / 10
	if interval < time.Second {
		interval = time.Second
	} else if interval > time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := tracker.Prune(); n > 0 {
				log.Emit(logger.DEBUG, "Pruned progress of %d finished job(s)\n", n)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Prune forgets every finished or failed job whose progress was last
// updated longer ago than the retention window, returning how many
// were dropped. Jobs still downloading are never pruned.
func (tracker *Tracker) Prune() int {
	cutoff := tracker.now().Add(-tracker.retention)
	expired := make([]uuid.UUID, 0)
	tracker.slots.Range(func(id uuid.UUID, s *slot) bool {
		if snapshot := s.snapshot(); snapshot.Terminal() && snapshot.UpdatedAt.Before(cutoff) {
			expired = append(expired, id)
		}
		return true
	})

	for _, id := range expired {
		tracker.Forget(id)
	}

	return len(expired)
}

// Begin clears any progress for the job provided, marks it as the latest
// job and returns the handle through which its progress is written.
func (tracker *Tracker) Begin(id uuid.UUID) *Handle {
	s := &slot{current: Idle(id)}
	s.current.UpdatedAt = tracker.now()
	tracker.slots.Store(id, s)
	tracker.latest.Store(&id)

	tracker.publish(s.current)
	return &Handle{tracker: tracker, id: id}
}

// Get returns the latest snapshot for the job provided. Jobs unknown to
// this process are looked up in the mirror, if one is configured.
func (tracker *Tracker) Get(id uuid.UUID) (Snapshot, bool) {
	if s, ok := tracker.slots.Load(id); ok {
		return s.snapshot(), true
	}

	if tracker.mirror == nil {
		return Snapshot{}, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	snapshot, ok, err := tracker.mirror.Load(ctx, id)
	if err != nil {
		log.Warnf("Failed to load progress for %s from mirror: %v\n", id, err)
		return Snapshot{}, false
	}

	return snapshot, ok
}

// Latest returns the snapshot of the most recently begun job, or an idle
// snapshot if no job has ever begun.
func (tracker *Tracker) Latest() Snapshot {
	id := tracker.latest.Load()
	if id == nil {
		return Idle(uuid.Nil)
	}

	if snapshot, ok := tracker.Get(*id); ok {
		return snapshot
	}

	return Idle(*id)
}

// Forget drops all progress held for the job provided.
func (tracker *Tracker) Forget(id uuid.UUID) {
	tracker.slots.Delete(id)
	if tracker.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := tracker.mirror.Delete(ctx, id); err != nil {
			log.Warnf("Failed to delete progress for %s from mirror: %v\n", id, err)
		}
	}
}

func (tracker *Tracker) publish(snapshot Snapshot) {
	if tracker.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		if err := tracker.mirror.Store(ctx, snapshot); err != nil {
			log.Warnf("Failed to mirror progress for %s: %v\n", snapshot.JobID, err)
		}
		cancel()
	}

	if tracker.dispatcher != nil {
		tracker.dispatcher.Dispatch(event.JOB_PROGRESS, snapshot.JobID)
	}
}

func (handle *Handle) ID() uuid.UUID { return handle.id }

// Set records the snapshot provided as the job's current progress.
//
// Within a job the reported percent never decreases: a lower value (e.g.
// a download restarting after a rate-limit retry) keeps the previous
// percent while still updating speed and ETA. Once a job is finished or
// failed, further downloading snapshots are ignored.
func (handle *Handle) Set(snapshot Snapshot) {
	s, ok := handle.tracker.slots.Load(handle.id)
	if !ok {
		return
	}

	s.Lock()
	prev := s.current
	if prev.Terminal() && !snapshot.Terminal() {
		s.Unlock()
		return
	}

	snapshot.JobID = handle.id
	snapshot.UpdatedAt = handle.tracker.now()
	if next, ok := snapshot.PercentValue(); ok {
		if last, ok := prev.PercentValue(); ok && next < last {
			snapshot.Percent = prev.Percent
		}
	} else if snapshot.Percent == "" {
		snapshot.Percent = prev.Percent
	}

	s.current = snapshot
	s.Unlock()

	handle.tracker.publish(snapshot)
}

// Fail marks the job as failed, keeping the last known percent.
func (handle *Handle) Fail(err error) {
	snapshot := Snapshot{Status: StatusFailed}
	if err != nil {
		snapshot.Error = err.Error()
	}

	handle.Set(snapshot)
}

// Snapshot returns the job's current progress.
func (handle *Handle) Snapshot() Snapshot {
	if s, ok := handle.tracker.slots.Load(handle.id); ok {
		return s.snapshot()
	}

	return Idle(handle.id)
}

func (s *slot) snapshot() Snapshot {
	s.Lock()
	defer s.Unlock()
	return s.current
}

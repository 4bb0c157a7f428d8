package progress_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Phonograph/internal/event"
	"github.com/hbomb79/Phonograph/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func downloading(percent string) progress.Snapshot {
	return progress.Snapshot{Status: progress.StatusDownloading, Percent: percent, Speed: "1.00MiB/s", ETA: "00:10"}
}

func Test_Latest_NoJobEverStarted(t *testing.T) {
	tracker := progress.NewTracker(nil, nil)
	latest := tracker.Latest()
	assert.Equal(t, progress.StatusIdle, latest.Status)
	assert.Empty(t, latest.Percent)
}

func Test_Begin_ClearsPreviousProgress(t *testing.T) {
	tracker := progress.NewTracker(nil, nil)
	id := uuid.New()

	handle := tracker.Begin(id)
	handle.Set(downloading("50.0%"))
	assert.Equal(t, "50.0%", tracker.Latest().Percent)

	tracker.Begin(id)
	snapshot, ok := tracker.Get(id)
	require.True(t, ok)
	assert.Equal(t, progress.StatusIdle, snapshot.Status)
	assert.Empty(t, snapshot.Percent)
}

func Test_Handles_AreJobScoped(t *testing.T) {
	tracker := progress.NewTracker(nil, nil)
	first, second := uuid.New(), uuid.New()

	a := tracker.Begin(first)
	a.Set(progress.Snapshot{Status: progress.StatusFinished, Percent: "100%"})
	b := tracker.Begin(second)
	b.Set(downloading("10.0%"))

	// Latest follows the most recently begun job...
	assert.Equal(t, second, tracker.Latest().JobID)
	assert.Equal(t, "10.0%", tracker.Latest().Percent)

	// ... but the first job's terminal snapshot is still addressable.
	snapshot, ok := tracker.Get(first)
	require.True(t, ok)
	assert.Equal(t, progress.StatusFinished, snapshot.Status)
	assert.Equal(t, "100%", snapshot.Percent)
}

func Test_Set_PercentIsMonotonic(t *testing.T) {
	tracker := progress.NewTracker(nil, nil)
	handle := tracker.Begin(uuid.New())

	reported := []string{"1.0%", "20.0%", "40.0%", "5.0%", "38.0%", "60.0%", "", "90.0%"}
	last := -1.0
	for _, p := range reported {
		handle.Set(downloading(p))

		v, ok := handle.Snapshot().PercentValue()
		require.True(t, ok)
		assert.GreaterOrEqual(t, v, last, "percent decreased after reporting %q", p)
		last = v
	}

	handle.Set(progress.Snapshot{Status: progress.StatusFinished, Percent: "100%"})
	assert.Equal(t, "100%", handle.Snapshot().Percent)
}

func Test_Set_IgnoresProgressAfterTerminal(t *testing.T) {
	tracker := progress.NewTracker(nil, nil)
	handle := tracker.Begin(uuid.New())

	handle.Set(progress.Snapshot{Status: progress.StatusFinished, Percent: "100%"})
	handle.Set(downloading("10.0%"))
	assert.Equal(t, progress.StatusFinished, handle.Snapshot().Status)
}

func Test_Fail_KeepsLastPercent(t *testing.T) {
	tracker := progress.NewTracker(nil, nil)
	handle := tracker.Begin(uuid.New())
	handle.Set(downloading("42.0%"))

	handle.Fail(errors.New("boom"))
	snapshot := handle.Snapshot()
	assert.Equal(t, progress.StatusFailed, snapshot.Status)
	assert.Equal(t, "42.0%", snapshot.Percent)
	assert.Equal(t, "boom", snapshot.Error)
}

func Test_Forget(t *testing.T) {
	tracker := progress.NewTracker(nil, nil)
	id := uuid.New()
	tracker.Begin(id)
	tracker.Forget(id)

	_, ok := tracker.Get(id)
	assert.False(t, ok)
	assert.Equal(t, progress.StatusIdle, tracker.Latest().Status)
}

func Test_Prune(t *testing.T) {
	now := time.Now()
	tracker := progress.NewTracker(nil, nil,
		progress.WithRetention(time.Minute),
		progress.WithClock(func() time.Time { return now }),
	)

	finished, failed, running := uuid.New(), uuid.New(), uuid.New()
	tracker.Begin(finished).Set(progress.Snapshot{Status: progress.StatusFinished, Percent: "100%"})
	tracker.Begin(failed).Fail(errors.New("boom"))
	tracker.Begin(running).Set(downloading("10.0%"))

	assert.Zero(t, tracker.Prune())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, tracker.Prune())

	for _, id := range []uuid.UUID{finished, failed} {
		_, ok := tracker.Get(id)
		assert.False(t, ok)
	}
	snapshot, ok := tracker.Get(running)
	require.True(t, ok, "running jobs are never pruned")
	assert.Equal(t, "10.0%", snapshot.Percent)
}

func Test_Set_DispatchesProgressEvents(t *testing.T) {
	bus := event.New()
	events := make(event.HandlerChannel, 10)
	bus.RegisterHandlerChannel(events, event.JOB_PROGRESS)

	tracker := progress.NewTracker(bus, nil)
	id := uuid.New()
	handle := tracker.Begin(id)
	handle.Set(downloading("10.0%"))

	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			assert.Equal(t, event.JOB_PROGRESS, ev.Event)
			assert.Equal(t, id, ev.Payload)
		case <-time.After(time.Second):
			t.Fatal("expected progress event")
		}
	}
}

func Test_Formatting(t *testing.T) {
	assert.Equal(t, "42.5%", progress.FormatPercent(42.5))
	assert.Equal(t, "100.0%", progress.FormatPercent(140))
	assert.Equal(t, "0.0%", progress.FormatPercent(-3))

	assert.Equal(t, "512.00B/s", progress.FormatSpeed(512))
	assert.Equal(t, "1.50MiB/s", progress.FormatSpeed(1.5*1024*1024))
	assert.Equal(t, "2.00GiB/s", progress.FormatSpeed(2*1024*1024*1024))
	assert.Equal(t, "", progress.FormatSpeed(0))

	assert.Equal(t, "00:13", progress.FormatETA(13*time.Second))
	assert.Equal(t, "01:01:01", progress.FormatETA(time.Hour+time.Minute+time.Second))
	assert.Equal(t, "", progress.FormatETA(0))

	v, ok := progress.Snapshot{Percent: " 12.5% "}.PercentValue()
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)
	_, ok = progress.Snapshot{Percent: "N/A"}.PercentValue()
	assert.False(t, ok)
}

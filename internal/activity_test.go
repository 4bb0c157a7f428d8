package internal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Phonograph/internal/event"
	"github.com/stretchr/testify/assert"
)

type recordingBroadcaster struct {
	sync.Mutex
	updates  []uuid.UUID
	progress []uuid.UUID
}

func (b *recordingBroadcaster) BroadcastJobUpdate(id uuid.UUID) error {
	b.Lock()
	defer b.Unlock()
	b.updates = append(b.updates, id)
	return nil
}

func (b *recordingBroadcaster) BroadcastJobProgress(id uuid.UUID) error {
	b.Lock()
	defer b.Unlock()
	b.progress = append(b.progress, id)
	return nil
}

func (b *recordingBroadcaster) counts() (int, int) {
	b.Lock()
	defer b.Unlock()
	return len(b.updates), len(b.progress)
}

func startActivity(t *testing.T) (*recordingBroadcaster, event.EventCoordinator) {
	bus := event.New()
	rec := &recordingBroadcaster{}
	service := newActivityService(rec, bus)
	service.normal = debounceWindow{debounce: 30 * time.Millisecond, max: 150 * time.Millisecond}
	service.rapid = debounceWindow{debounce: 10 * time.Millisecond, max: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = service.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return rec, bus
}

func Test_Activity_DebouncesBurstOfUpdates(t *testing.T) {
	rec, bus := startActivity(t)
	id := uuid.New()

	for i := 0; i < 5; i++ {
		bus.Dispatch(event.JOB_UPDATE, id)
	}
	bus.Dispatch(event.JOB_COMPLETE, id)

	assert.Eventually(t, func() bool {
		updates, _ := rec.counts()
		return updates == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	updates, progress := rec.counts()
	assert.Equal(t, 1, updates, "burst should coalesce into a single broadcast")
	assert.Zero(t, progress)
}

func Test_Activity_MaxTimerBoundsDelay(t *testing.T) {
	rec, bus := startActivity(t)
	id := uuid.New()

	// Keep re-arming the debounce timer for longer than the max window
	stop := time.After(120 * time.Millisecond)
loop:
	for {
		select {
		case <-stop:
			break loop
		default:
			bus.Dispatch(event.JOB_PROGRESS, id)
			time.Sleep(5 * time.Millisecond)
		}
	}

	_, progress := rec.counts()
	assert.GreaterOrEqual(t, progress, 1, "max timer should force a broadcast during a continuous stream")
}

func Test_Activity_SeparateJobsBroadcastSeparately(t *testing.T) {
	rec, bus := startActivity(t)
	first, second := uuid.New(), uuid.New()

	bus.Dispatch(event.JOB_UPDATE, first)
	bus.Dispatch(event.JOB_UPDATE, second)
	bus.Dispatch(event.JOB_PROGRESS, first)

	assert.Eventually(t, func() bool {
		updates, progress := rec.counts()
		return updates == 2 && progress == 1
	}, time.Second, 5*time.Millisecond)

	rec.Lock()
	defer rec.Unlock()
	assert.ElementsMatch(t, []uuid.UUID{first, second}, rec.updates)
	assert.Equal(t, []uuid.UUID{first}, rec.progress)
}

package internal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Phonograph/internal/event"
	"github.com/hbomb79/Phonograph/pkg/logger"
)

const (
	DEBOUNCE_DURATION  time.Duration = time.Second * 2
	MAX_TIMER_DURATION time.Duration = time.Second * 5

	RAPID_EVENT_DEBOUNCE_DURATION  time.Duration = time.Millisecond * 500
	RAPID_EVENT_MAX_TIMER_DURATION time.Duration = time.Second * 2
)

type (
	broadcastHandler func(uuid.UUID) error

	broadcaster interface {
		BroadcastJobUpdate(uuid.UUID) error
		BroadcastJobProgress(uuid.UUID) error
	}

	eventKey struct {
		ev event.Event
		id uuid.UUID
	}

	debounceWindow struct {
		debounce time.Duration
		max      time.Duration
	}

	// activityService listens for job events and forwards them to the
	// broadcaster, coalescing bursts of events for the same job.
	activityService struct {
		*sync.Mutex
		broadcaster
		messageChan    event.HandlerChannel
		normal         debounceWindow
		rapid          debounceWindow
		debounceTimers map[eventKey]*time.Timer
		maxTimers      map[eventKey]*time.Timer
	}
)

// newActivityService subscribes to the job events immediately, so events
// dispatched before Run is called are buffered rather than missed.
func newActivityService(broadcaster broadcaster, eventBus event.EventHandler) *activityService {
	messageChan := make(event.HandlerChannel, 100)
	eventBus.RegisterHandlerChannel(messageChan, event.JOB_UPDATE, event.JOB_COMPLETE, event.JOB_PROGRESS)

	return &activityService{
		Mutex:          &sync.Mutex{},
		broadcaster:    broadcaster,
		messageChan:    messageChan,
		normal:         debounceWindow{DEBOUNCE_DURATION, MAX_TIMER_DURATION},
		rapid:          debounceWindow{RAPID_EVENT_DEBOUNCE_DURATION, RAPID_EVENT_MAX_TIMER_DURATION},
		debounceTimers: make(map[eventKey]*time.Timer),
		maxTimers:      make(map[eventKey]*time.Timer),
	}
}

func (service *activityService) Run(ctx context.Context) error {
	log.Emit(logger.NEW, "Activity service started\n")
	for {
		select {
		case ev := <-service.messageChan:
			if err := service.handleEvent(ev); err != nil {
				log.Emit(logger.ERROR, "Handling of event %v failed: %v\n", ev, err)
			}
		case <-ctx.Done():
			service.stopTimers()
			log.Emit(logger.STOP, "Activity service closed\n")
			return nil
		}
	}
}

func (service *activityService) handleEvent(ev event.HandlerEvent) error {
	resourceID, ok := ev.Payload.(uuid.UUID)
	if !ok {
		return errors.New("illegal payload (expected UUID)")
	}

	switch ev.Event {
	case event.JOB_UPDATE, event.JOB_COMPLETE:
		// Completion is just another update for clients, so both share a timer
		service.scheduleEventBroadcast(eventKey{id: resourceID, ev: event.JOB_UPDATE}, service.BroadcastJobUpdate)
	case event.JOB_PROGRESS:
		service.scheduleRapidEventBroadcast(eventKey{id: resourceID, ev: ev.Event}, service.BroadcastJobProgress)
	default:
		return errors.New("unknown event type")
	}

	return nil
}

func (service *activityService) scheduleEventBroadcast(resourceKey eventKey, handler broadcastHandler) {
	service._scheduleEventBroadcast(resourceKey, handler, service.normal)
}

func (service *activityService) scheduleRapidEventBroadcast(resourceKey eventKey, handler broadcastHandler) {
	service._scheduleEventBroadcast(resourceKey, handler, service.rapid)
}

func (service *activityService) _scheduleEventBroadcast(resourceKey eventKey, handler broadcastHandler, window debounceWindow) {
	service.Lock()
	defer service.Unlock()

	broadcaster := func() { service.broadcast(resourceKey, handler) }

	// Cancel and re-set a debounce timer
	if t, ok := service.debounceTimers[resourceKey]; ok {
		t.Stop()
	}
	service.debounceTimers[resourceKey] = time.AfterFunc(window.debounce, broadcaster)

	// Set a max timer if not already set
	if _, ok := service.maxTimers[resourceKey]; !ok {
		service.maxTimers[resourceKey] = time.AfterFunc(window.max, broadcaster)
	}
}

func (service *activityService) broadcast(resourceKey eventKey, handler broadcastHandler) {
	service.Lock()
	_, debouncing := service.debounceTimers[resourceKey]
	_, capped := service.maxTimers[resourceKey]
	if !debouncing && !capped {
		// The other timer for this key already fired
		service.Unlock()
		return
	}

	if t, ok := service.debounceTimers[resourceKey]; ok {
		t.Stop()
		delete(service.debounceTimers, resourceKey)
	}
	if t, ok := service.maxTimers[resourceKey]; ok {
		t.Stop()
		delete(service.maxTimers, resourceKey)
	}
	service.Unlock()

	if err := handler(resourceKey.id); err != nil {
		log.Emit(logger.WARNING, "Broadcast of %s for %s failed: %v\n", resourceKey.ev, resourceKey.id, err)
	}
}

func (service *activityService) stopTimers() {
	service.Lock()
	defer service.Unlock()

	for key, t := range service.debounceTimers {
		t.Stop()
		delete(service.debounceTimers, key)
	}
	for key, t := range service.maxTimers {
		t.Stop()
		delete(service.maxTimers, key)
	}
}

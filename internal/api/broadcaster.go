package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Phonograph/internal/api/jobs"
	"github.com/hbomb79/Phonograph/internal/api/progress"
	"github.com/hbomb79/Phonograph/internal/http/websocket"
	internalJobs "github.com/hbomb79/Phonograph/internal/jobs"
)

const (
	TITLE_JOB_UPDATE   = "JOB_UPDATE"
	TITLE_JOB_REMOVED  = "JOB_REMOVED"
	TITLE_JOB_PROGRESS = "JOB_PROGRESS"

	lookupTimeout = 2 * time.Second
)

type (
	JobUpdate struct {
		JobID uuid.UUID `json:"job_id"`
		Job   *jobs.Dto `json:"job,omitempty"`
	}

	broadcaster struct {
		socketHub     *websocket.SocketHub
		jobService    jobs.Service
		jobController *jobs.Controller
		tracker       progress.Tracker
	}
)

func newBroadcaster(socketHub *websocket.SocketHub, jobService jobs.Service, jobController *jobs.Controller, tracker progress.Tracker) *broadcaster {
	return &broadcaster{socketHub, jobService, jobController, tracker}
}

// BroadcastJobUpdate sends the current state of the job to all connected
// clients. Jobs which no longer exist are announced as removed.
func (hub *broadcaster) BroadcastJobUpdate(id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	job, err := hub.jobService.Get(ctx, id)
	if errors.Is(err, internalJobs.ErrJobNotFound) {
		hub.broadcast(TITLE_JOB_REMOVED, JobUpdate{JobID: id})
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to broadcast update for job %s: %w", id, err)
	}

	dto := hub.jobController.NewDto(job)
	hub.broadcast(TITLE_JOB_UPDATE, JobUpdate{JobID: id, Job: &dto})
	return nil
}

func (hub *broadcaster) BroadcastJobProgress(id uuid.UUID) error {
	snapshot, ok := hub.tracker.Get(id)
	if !ok {
		return fmt.Errorf("no progress recorded for job %s", id)
	}

	hub.broadcast(TITLE_JOB_PROGRESS, snapshot)
	return nil
}

func (hub *broadcaster) broadcast(title string, update any) {
	hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  map[string]interface{}{"arguments": update},
		Type:  websocket.Update,
	})
}

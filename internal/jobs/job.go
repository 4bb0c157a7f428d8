// Package jobs runs conversions asynchronously on a worker pool, keeping
// each job's record (and, once complete, its artifact) available for the
// configured retention window.
package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	QUEUED   State = "QUEUED"
	RUNNING  State = "RUNNING"
	COMPLETE State = "COMPLETE"
	FAILED   State = "FAILED"
)

func (s State) Finished() bool { return s == COMPLETE || s == FAILED }

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrJobNotComplete = errors.New("job is not complete")
	ErrJobActive      = errors.New("job is running")
)

// Job is the public record of a conversion. The artifact itself is
// retrieved separately via Service.Artifact.
type Job struct {
	ID          uuid.UUID `json:"id" mapstructure:"id" db:"id"`
	URL         string    `json:"url" mapstructure:"url" db:"url"`
	State       State     `json:"state" mapstructure:"state" db:"state"`
	Error       string    `json:"error,omitempty" mapstructure:"error" db:"error"`
	Title       string    `json:"title,omitempty" mapstructure:"title" db:"title"`
	Filename    string    `json:"filename,omitempty" mapstructure:"filename" db:"filename"`
	ContentType string    `json:"content_type,omitempty" mapstructure:"content_type" db:"-"`
	SizeBytes   int64     `json:"size_bytes" mapstructure:"size_bytes" db:"size_bytes"`
	CreatedAt   time.Time `json:"created_at" mapstructure:"created_at" db:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty" mapstructure:"started_at" db:"-"`
	FinishedAt  time.Time `json:"finished_at,omitempty" mapstructure:"finished_at" db:"finished_at"`

	// Err is the error the job failed with, when the job is held in
	// memory. Records loaded from a mirror carry only the message.
	Err error `json:"-" mapstructure:"-" db:"-"`
}

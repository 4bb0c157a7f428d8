// Package pipeline drives a single URL through metadata resolution,
// audio acquisition, transcoding and read-back, holding the shared
// workspace for the duration and always releasing it afterwards.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/hbomb79/Phonograph/internal/metadata"
	"github.com/hbomb79/Phonograph/internal/progress"
	"github.com/hbomb79/Phonograph/internal/transcode"
	"github.com/hbomb79/Phonograph/internal/workspace"
	"github.com/hbomb79/Phonograph/pkg/logger"
)

var log = logger.Get("Pipeline")

type (
	Resolver interface {
		Resolve(ctx context.Context, url string) (*metadata.Metadata, error)
	}

	Downloader interface {
		Download(ctx context.Context, url string, dir string, stem string, sink progress.Sink) (string, error)
	}

	Result struct {
		JobID       uuid.UUID
		Bytes       []byte
		Filename    string
		ContentType string
		Metadata    *metadata.Metadata
	}

	Orchestrator struct {
		resolver   Resolver
		downloader Downloader
		transcoder transcode.Transcoder
		workspace  *workspace.Manager
		tracker    *progress.Tracker
		options    transcode.Options

		observerMutex sync.RWMutex
		observers     []Observer
	}

	// run tracks the state of a single RunJob invocation.
	run struct {
		orchestrator *Orchestrator
		jobID        uuid.UUID
		state        State
	}
)

func New(
	resolver Resolver,
	downloader Downloader,
	transcoder transcode.Transcoder,
	workspace *workspace.Manager,
	tracker *progress.Tracker,
	options transcode.Options,
) *Orchestrator {
	return &Orchestrator{
		resolver:   resolver,
		downloader: downloader,
		transcoder: transcoder,
		workspace:  workspace,
		tracker:    tracker,
		options:    options,
	}
}

// Observe registers an observer which will receive every state
// transition of every run.
func (orchestrator *Orchestrator) Observe(observer Observer) {
	orchestrator.observerMutex.Lock()
	defer orchestrator.observerMutex.Unlock()
	orchestrator.observers = append(orchestrator.observers, observer)
}

// Tracker returns the progress tracker runs report in to.
func (orchestrator *Orchestrator) Tracker() *progress.Tracker { return orchestrator.tracker }

// Options returns the encode options used for every run.
func (orchestrator *Orchestrator) Options() transcode.Options { return orchestrator.options }

// Run converts the URL provided under a freshly generated job ID.
func (orchestrator *Orchestrator) Run(ctx context.Context, url string) (*Result, error) {
	return orchestrator.RunJob(ctx, uuid.New(), url)
}

// RunJob converts the URL provided, returning the encoded bytes and the
// filename they should be delivered under. The call blocks for the full
// duration of the conversion, including while waiting for the workspace.
//
// Any failure is returned as a *StageError. The workspace is released
// regardless of outcome; failure to clean it is logged, never returned.
func (orchestrator *Orchestrator) RunJob(ctx context.Context, jobID uuid.UUID, url string) (*Result, error) {
	r := &run{orchestrator: orchestrator, jobID: jobID, state: Idle}

	r.to(ResolvingMetadata)
	meta, err := orchestrator.resolver.Resolve(ctx, url)
	if err != nil {
		return nil, r.fail(err)
	}
	stem := metadata.Stem(meta.Title)
	log.Emit(logger.DEBUG, "Job %s resolved %s to %q (stem %q)\n", jobID, url, meta.Title, stem)

	r.to(Acquiring)
	scratch, err := orchestrator.workspace.Acquire(ctx, jobID.String())
	if err != nil {
		return nil, r.fail(err)
	}

	handle := orchestrator.tracker.Begin(jobID)
	data, err := orchestrator.produce(ctx, r, url, scratch.Dir(), stem, handle)
	if err != nil {
		handle.Fail(err)
		failure := r.fail(err)
		orchestrator.release(jobID, scratch)
		return nil, failure
	}

	r.to(CleaningUp)
	orchestrator.release(jobID, scratch)
	r.to(Done)

	result := &Result{
		JobID:       jobID,
		Bytes:       data,
		Filename:    fmt.Sprintf("%s.%s", stem, orchestrator.options.Codec),
		ContentType: orchestrator.options.ContentType(),
		Metadata:    meta,
	}
	log.Emit(logger.SUCCESS, "Job %s produced %s (%d bytes)\n", jobID, result.Filename, len(result.Bytes))
	return result, nil
}

// produce runs the stages which execute inside the workspace: download,
// encode and read-back.
func (orchestrator *Orchestrator) produce(ctx context.Context, r *run, url string, dir string, stem string, handle *progress.Handle) ([]byte, error) {
	rawPath, err := orchestrator.downloader.Download(ctx, url, dir, stem, handle)
	if err != nil {
		return nil, err
	}

	r.to(Transcoding)
	encodedPath, err := orchestrator.transcoder.Encode(ctx, rawPath, orchestrator.options)
	if err != nil {
		return nil, err
	}

	r.to(Reading)
	data, err := os.ReadFile(encodedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded artifact %s: %w", encodedPath, err)
	}

	return data, nil
}

func (orchestrator *Orchestrator) release(jobID uuid.UUID, scratch *workspace.Scratch) {
	if err := scratch.Release(); err != nil {
		log.Emit(logger.WARNING, "Job %s failed to clean workspace: %v\n", jobID, err)
	}
}

func (orchestrator *Orchestrator) notify(t Transition) {
	orchestrator.observerMutex.RLock()
	observers := orchestrator.observers
	orchestrator.observerMutex.RUnlock()

	for _, observer := range observers {
		observer(t)
	}
}

func (r *run) to(state State) {
	t := Transition{JobID: r.jobID, From: r.state, To: state}
	r.state = state
	log.Emit(logger.VERBOSE, "Job %s: %s -> %s\n", r.jobID, t.From, t.To)
	r.orchestrator.notify(t)
}

func (r *run) fail(err error) error {
	stageErr := &StageError{JobID: r.jobID, Stage: r.state, Err: err}
	log.Emit(logger.ERROR, "Job %s failed during %s: %v\n", r.jobID, r.state, err)

	t := Transition{JobID: r.jobID, From: r.state, To: Failed, Err: stageErr}
	r.state = Failed
	r.orchestrator.notify(t)
	return stageErr
}

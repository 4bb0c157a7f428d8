package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Phonograph/internal/event"
	"github.com/hbomb79/Phonograph/internal/pipeline"
	"github.com/hbomb79/Phonograph/pkg/logger"
	"github.com/hbomb79/Phonograph/pkg/worker"
)

var log = logger.Get("Jobs")

const mirrorTimeout = 2 * time.Second

type (
	Config struct {
		Workers   int           `yaml:"workers" env:"JOBS_WORKERS" env-default:"1"`
		Retention time.Duration `yaml:"retention" env:"JOBS_RETENTION" env-default:"30m"`
	}

	Runner interface {
		RunJob(ctx context.Context, jobID uuid.UUID, url string) (*pipeline.Result, error)
	}

	// Mirror persists job records outside of the process.
	Mirror interface {
		Store(context.Context, Job) error
		Load(context.Context, uuid.UUID) (Job, bool, error)
		Delete(context.Context, uuid.UUID) error
	}

	// History permanently records finished jobs.
	History interface {
		Record(context.Context, Job) error
	}

	// ProgressStore is notified when a job is forgotten so its
	// progress can be dropped too.
	ProgressStore interface {
		Forget(uuid.UUID)
	}

	Option func(*Service)

	Service struct {
		sync.Mutex
		config     Config
		runner     Runner
		dispatcher event.EventDispatcher
		mirror     Mirror
		history    History
		progress   ProgressStore
		pool       *worker.WorkerPool
		records    map[uuid.UUID]*record
		queue      []uuid.UUID
		now        func() time.Time
	}

	record struct {
		job      Job
		artifact []byte
		done     chan struct{}
	}
)

func WithMirror(mirror Mirror) Option            { return func(s *Service) { s.mirror = mirror } }
func WithHistory(history History) Option         { return func(s *Service) { s.history = history } }
func WithProgress(progress ProgressStore) Option { return func(s *Service) { s.progress = progress } }

func NewService(config Config, runner Runner, dispatcher event.EventDispatcher, opts ...Option) (*Service, error) {
	if config.Workers < 1 {
		return nil, fmt.Errorf("job service requires at least one worker, got %d", config.Workers)
	}
	if config.Retention <= 0 {
		return nil, fmt.Errorf("job retention must be positive, got %s", config.Retention)
	}

	service := &Service{
		config:     config,
		runner:     runner,
		dispatcher: dispatcher,
		pool:       worker.NewWorkerPool(),
		records:    make(map[uuid.UUID]*record),
		queue:      make([]uuid.UUID, 0),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Run starts the worker pool and evicts expired jobs until the context
// is cancelled, after which it waits for running jobs to stop.
func (service *Service) Run(ctx context.Context) error {
	for i := 0; i < service.config.Workers; i++ {
		label := fmt.Sprintf("JobWorker-%d", i)
		if err := service.pool.PushWorker(worker.NewWorker(label, service.task(ctx))); err != nil {
			return err
		}
	}
	if err := service.pool.Start(); err != nil {
		return err
	}
	defer service.pool.Close()

	ticker := time.NewTicker(evictionInterval(service.config.Retention))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			service.evictExpired()
		case <-ctx.Done():
			log.Emit(logger.STOP, "Shutting down (context cancelled). Waiting for running jobs to stop\n")
			return nil
		}
	}
}

// Submit queues a conversion of the URL provided, returning the new job.
func (service *Service) Submit(url string) Job {
	job := Job{ID: uuid.New(), URL: url, State: QUEUED, CreatedAt: service.now()}

	service.Lock()
	service.records[job.ID] = &record{job: job, done: make(chan struct{})}
	service.queue = append(service.queue, job.ID)
	service.Unlock()

	log.Emit(logger.NEW, "Job %s queued for %s\n", job.ID, url)
	service.publish(job)
	if err := service.pool.WakeupWorkers(); err != nil {
		log.Emit(logger.DEBUG, "Job %s will start once workers are running: %v\n", job.ID, err)
	}

	return job
}

// Get returns the job with the ID provided. Jobs not held by this
// process are looked up in the mirror, when one is configured.
func (service *Service) Get(ctx context.Context, id uuid.UUID) (Job, error) {
	service.Lock()
	rec, ok := service.records[id]
	service.Unlock()
	if ok {
		return service.snapshot(rec), nil
	}

	if service.mirror != nil {
		job, found, err := service.mirror.Load(ctx, id)
		if err != nil {
			log.Warnf("Failed to load job %s from mirror: %v\n", id, err)
		} else if found {
			return job, nil
		}
	}

	return Job{}, ErrJobNotFound
}

// List returns every job held by this process, newest first.
func (service *Service) List() []Job {
	service.Lock()
	out := make([]Job, 0, len(service.records))
	for _, rec := range service.records {
		out = append(out, rec.job)
	}
	service.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Artifact returns the encoded bytes of a completed job.
func (service *Service) Artifact(id uuid.UUID) (Job, []byte, error) {
	service.Lock()
	defer service.Unlock()

	rec, ok := service.records[id]
	if !ok {
		return Job{}, nil, ErrJobNotFound
	}
	if rec.job.State != COMPLETE {
		return rec.job, nil, fmt.Errorf("%w: job %s is %s", ErrJobNotComplete, id, rec.job.State)
	}

	return rec.job, rec.artifact, nil
}

// Wait blocks until the job is finished or the context is cancelled.
func (service *Service) Wait(ctx context.Context, id uuid.UUID) (Job, error) {
	service.Lock()
	rec, ok := service.records[id]
	service.Unlock()
	if !ok {
		return Job{}, ErrJobNotFound
	}

	select {
	case <-rec.done:
		return service.snapshot(rec), nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Delete forgets a job. Queued jobs are removed from the queue before
// they start; running jobs cannot be deleted.
func (service *Service) Delete(ctx context.Context, id uuid.UUID) error {
	service.Lock()
	rec, ok := service.records[id]
	if !ok {
		service.Unlock()
		return ErrJobNotFound
	}
	if rec.job.State == RUNNING {
		service.Unlock()
		return fmt.Errorf("%w: job %s cannot be deleted", ErrJobActive, id)
	}
	if rec.job.State == QUEUED {
		service.removeFromQueue(id)
		close(rec.done)
	}
	delete(service.records, id)
	service.Unlock()

	service.forget(ctx, id)
	log.Emit(logger.REMOVE, "Job %s deleted\n", id)
	return nil
}

func (service *Service) task(ctx context.Context) worker.Task {
	return worker.TaskFunc(func(w worker.Worker) error {
		for {
			if ctx.Err() != nil {
				return nil
			}

			id, ok := service.next()
			if !ok {
				if !w.Sleep() {
					return nil
				}
				continue
			}

			service.execute(ctx, id)
		}
	})
}

// next pops the first queued job, marking it as running.
func (service *Service) next() (uuid.UUID, bool) {
	service.Lock()
	defer service.Unlock()

	for len(service.queue) > 0 {
		id := service.queue[0]
		service.queue = service.queue[1:]
		if rec, ok := service.records[id]; ok && rec.job.State == QUEUED {
			rec.job.State = RUNNING
			rec.job.StartedAt = service.now()
			return id, true
		}
	}

	return uuid.Nil, false
}

func (service *Service) execute(ctx context.Context, id uuid.UUID) {
	service.Lock()
	rec := service.records[id]
	job := rec.job
	service.Unlock()

	log.Emit(logger.INFO, "Job %s started\n", id)
	service.publish(job)

	result, err := service.runner.RunJob(ctx, id, job.URL)

	service.Lock()
	rec.job.FinishedAt = service.now()
	if err != nil {
		rec.job.State = FAILED
		rec.job.Err = err
		rec.job.Error = err.Error()
	} else {
		rec.job.State = COMPLETE
		rec.job.Filename = result.Filename
		rec.job.ContentType = result.ContentType
		rec.job.SizeBytes = int64(len(result.Bytes))
		if result.Metadata != nil {
			rec.job.Title = result.Metadata.Title
		}
		rec.artifact = result.Bytes
	}
	job = rec.job
	close(rec.done)
	service.Unlock()

	if err != nil {
		log.Emit(logger.ERROR, "Job %s failed: %v\n", id, err)
	} else {
		log.Emit(logger.SUCCESS, "Job %s complete (%s)\n", id, job.Filename)
	}

	service.publish(job)
	service.recordHistory(job)
	if service.dispatcher != nil {
		service.dispatcher.Dispatch(event.JOB_COMPLETE, id)
	}
}

func (service *Service) evictExpired() {
	cutoff := service.now().Add(-service.config.Retention)

	service.Lock()
	expired := make([]uuid.UUID, 0)
	for id, rec := range service.records {
		if rec.job.State.Finished() && rec.job.FinishedAt.Before(cutoff) {
			expired = append(expired, id)
			delete(service.records, id)
		}
	}
	service.Unlock()

	for _, id := range expired {
		log.Emit(logger.REMOVE, "Job %s expired\n", id)
		service.forget(context.Background(), id)
	}
}

func (service *Service) forget(ctx context.Context, id uuid.UUID) {
	if service.progress != nil {
		service.progress.Forget(id)
	}
	if service.mirror != nil {
		ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
		defer cancel()
		if err := service.mirror.Delete(ctx, id); err != nil {
			log.Warnf("Failed to delete job %s from mirror: %v\n", id, err)
		}
	}
	if service.dispatcher != nil {
		service.dispatcher.Dispatch(event.JOB_UPDATE, id)
	}
}

func (service *Service) publish(job Job) {
	if service.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		if err := service.mirror.Store(ctx, job); err != nil {
			log.Warnf("Failed to mirror job %s: %v\n", job.ID, err)
		}
		cancel()
	}
	if service.dispatcher != nil {
		service.dispatcher.Dispatch(event.JOB_UPDATE, job.ID)
	}
}

func (service *Service) recordHistory(job Job) {
	if service.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := service.history.Record(ctx, job); err != nil {
		log.Warnf("Failed to record history for job %s: %v\n", job.ID, err)
	}
}

func (service *Service) snapshot(rec *record) Job {
	service.Lock()
	defer service.Unlock()
	return rec.job
}

func (service *Service) removeFromQueue(id uuid.UUID) {
	for i, v := range service.queue {
		if v == id {
			service.queue = append(service.queue[:i], service.queue[i+1:]...)
			return
		}
	}
}

func evictionInterval(retention time.Duration) time.Duration {
	interval := retention / 10
	if interval < time.Second {
		return time.Second
	}
	if interval > time.Minute {
		return time.Minute
	}

	return interval
}

package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hbomb79/Phonograph/internal/acquire"
	"github.com/hbomb79/Phonograph/internal/api"
	"github.com/hbomb79/Phonograph/internal/cache"
	"github.com/hbomb79/Phonograph/internal/credentials"
	"github.com/hbomb79/Phonograph/internal/database"
	"github.com/hbomb79/Phonograph/internal/event"
	"github.com/hbomb79/Phonograph/internal/jobs"
	"github.com/hbomb79/Phonograph/internal/metadata"
	"github.com/hbomb79/Phonograph/internal/pipeline"
	"github.com/hbomb79/Phonograph/internal/progress"
	"github.com/hbomb79/Phonograph/internal/transcode"
	"github.com/hbomb79/Phonograph/internal/workspace"
	"github.com/hbomb79/Phonograph/pkg/logger"
	"github.com/redis/go-redis/v9"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	RestGateway interface {
		RunnableService
		broadcaster
	}

	// phonographImpl is the top-level object for the server, and is responsible
	// for constructing the pipeline and its supporting services, and
	// running them until shutdown.
	phonographImpl struct {
		config   PhonographConfig
		eventBus event.EventCoordinator
		db       database.Manager
		redis    *redis.Client

		bundle     credentials.Bundle
		workspace  *workspace.Manager
		tracker    *progress.Tracker
		pipeline   *pipeline.Orchestrator
		jobService *jobs.Service

		restGateway     RestGateway
		activityService *activityService
	}
)

func New(config PhonographConfig) *phonographImpl {
	log.Emit(logger.DEBUG, "Bootstrapping Phonograph services using config: %#v\n", config)
	return &phonographImpl{
		config:   config,
		eventBus: event.New(),
		db:       database.New(),
	}
}

// Run will start Phonograph by connecting to the optional backing stores,
// constructing the pipeline and spawning all services.
//
// This function will not return until Phonograph is stopped.
// To stop Phonograph, the provided context must be cancelled. Errors from which
// Phonograph cannot recover will also cause it to stop.
func (phonograph *phonographImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	if err := phonograph.connect(ctx); err != nil {
		return err
	}
	defer phonograph.disconnect()

	if err := phonograph.initialise(); err != nil {
		return err
	}

	wg := &sync.WaitGroup{}
	phonograph.spawnAsyncService(ctx, wg, phonograph.jobService, "job-service", crashHandler)
	phonograph.spawnAsyncService(ctx, wg, phonograph.tracker, "progress-tracker", crashHandler)
	phonograph.spawnAsyncService(ctx, wg, phonograph.activityService, "activity-service", crashHandler)
	phonograph.spawnAsyncService(ctx, wg, phonograph.restGateway, "rest-gateway", crashHandler)
	if phonograph.config.Credentials.Watch {
		phonograph.spawnAsyncService(ctx, wg, credentials.NewWatcher(phonograph.bundle), "credential-watcher", crashHandler)
	}
	log.Emit(logger.SUCCESS, "Phonograph services spawned! Listening on %s\n", phonograph.config.RestConfig.HostAddr)

	wg.Wait()
	if err := phonograph.workspace.Reset(); err != nil {
		log.Emit(logger.WARNING, "Failed to clear scratch workspace on shutdown: %v\n", err)
	}

	return nil
}

// connect establishes the connections to Redis and Postgres, if they
// are enabled.
func (phonograph *phonographImpl) connect(ctx context.Context) error {
	if phonograph.config.Redis.Enabled() {
		log.Emit(logger.NEW, "Connecting to Redis...\n")
		client, err := cache.Connect(ctx, phonograph.config.Redis)
		if err != nil {
			return err
		}
		phonograph.redis = client
	}

	if phonograph.config.Database.Enabled {
		log.Emit(logger.NEW, "Connecting to database...\n")
		if err := phonograph.db.Connect(ctx, phonograph.config.Database); err != nil {
			return err
		}
	}

	return nil
}

func (phonograph *phonographImpl) disconnect() {
	if phonograph.redis != nil {
		if err := phonograph.redis.Close(); err != nil {
			log.Emit(logger.WARNING, "Failed to close Redis client: %v\n", err)
		}
	}
	if phonograph.config.Database.Enabled {
		if err := phonograph.db.Close(); err != nil {
			log.Emit(logger.WARNING, "Failed to close database: %v\n", err)
		}
	}
}

// initialise constructs the pipeline and every service around it.
func (phonograph *phonographImpl) initialise() error {
	config := phonograph.config

	bundle, err := credentials.New(config.Credentials)
	if err != nil {
		return err
	}
	if path, ok := bundle.CookieFile(); ok && !config.Credentials.Watch {
		if report, err := credentials.Validate(path, time.Now()); err != nil {
			log.Emit(logger.WARNING, "Cookie file %s is not usable: %v\n", path, err)
		} else {
			log.Emit(logger.INFO, "Using cookie file %s (%d cookies, %d expired)\n", path, report.Total, report.Expired)
		}
	}
	phonograph.bundle = bundle

	strategy, err := acquire.StrategyFromConfig(config.Acquisition)
	if err != nil {
		return err
	}
	fetcher := acquire.NewYtdlpFetcher(config.Binaries.Ytdlp, bundle, config.Acquisition.ProgressInterval)
	engine, err := acquire.NewEngine(fetcher, config.Acquisition.RetryAttempts, strategy)
	if err != nil {
		return err
	}

	options, err := config.Encoding.Options()
	if err != nil {
		return err
	}

	scratch, err := workspace.New(config.ScratchDir)
	if err != nil {
		return err
	}
	if err := scratch.Reset(); err != nil {
		return fmt.Errorf("failed to prepare scratch workspace: %w", err)
	}
	phonograph.workspace = scratch

	var mirror progress.Mirror
	jobOpts := make([]jobs.Option, 0, 3)
	if phonograph.redis != nil {
		mirror = progress.NewRedisMirror(phonograph.redis, config.Redis)
		jobOpts = append(jobOpts, jobs.WithMirror(jobs.NewRedisStore(phonograph.redis, config.Redis)))
	}
	if config.Database.Enabled {
		jobOpts = append(jobOpts, jobs.WithHistory(jobs.NewHistoryStore(phonograph.db)))
	}

	phonograph.tracker = progress.NewTracker(phonograph.eventBus, mirror, progress.WithRetention(config.Jobs.Retention))
	jobOpts = append(jobOpts, jobs.WithProgress(phonograph.tracker))

	resolver := metadata.NewResolver(metadata.NewYtdlpRunner(config.Binaries.Ytdlp, bundle), config.Metadata)
	transcoder := transcode.NewFFmpeg(config.Binaries.FFmpeg, config.Binaries.FFprobe)
	phonograph.pipeline = pipeline.New(resolver, engine, transcoder, scratch, phonograph.tracker, options)
	phonograph.pipeline.Observe(logTransition)

	jobService, err := jobs.NewService(config.Jobs, phonograph.pipeline, phonograph.eventBus, jobOpts...)
	if err != nil {
		return err
	}
	phonograph.jobService = jobService

	phonograph.restGateway = api.NewRestGateway(&config.RestConfig, api.Services{
		Resolver: resolver,
		Pipeline: phonograph.pipeline,
		Jobs:     jobService,
		Progress: phonograph.tracker,
	})
	phonograph.activityService = newActivityService(phonograph.restGateway, phonograph.eventBus)

	return nil
}

// spawnAsyncService will run the provided function/service as it's own
// go-routine, ensuring that the service waitgroup is updated correctly
func (phonograph *phonographImpl) spawnAsyncService(context context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		if err := service.Run(context); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}

func logTransition(t pipeline.Transition) {
	if t.Err != nil {
		log.Emit(logger.ERROR, "Job %s: %s -> %s: %v\n", t.JobID, t.From, t.To, t.Err)
		return
	}

	log.Emit(logger.DEBUG, "Job %s: %s -> %s\n", t.JobID, t.From, t.To)
}

// Package acquire downloads the best available audio stream for a URL,
// reporting progress as it goes and retrying when the source rate-limits us.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hbomb79/Phonograph/internal/progress"
	"github.com/hbomb79/Phonograph/pkg/logger"
)

var log = logger.Get("Acquire")

type (
	// Request describes a single download: the URL, and the directory and
	// filename stem the raw artifact must be written to.
	Request struct {
		URL  string
		Dir  string
		Stem string
	}

	// Update is a raw progress report from a Fetcher.
	Update struct {
		DownloadedBytes int64
		TotalBytes      int64
		Started         time.Time
		ETA             time.Duration
	}

	// Fetcher performs a single download attempt, returning the path
	// of the downloaded artifact.
	Fetcher interface {
		Fetch(ctx context.Context, req Request, onProgress func(Update)) (string, error)
	}

	Engine struct {
		fetcher  Fetcher
		attempts int
		strategy BackoffStrategy
		now      func() time.Time
	}
)

// NewEngine constructs an engine which makes at most 'attempts' download
// attempts, waiting between them according to the strategy provided.
func NewEngine(fetcher Fetcher, attempts int, strategy BackoffStrategy) (*Engine, error) {
	if attempts < 1 {
		return nil, fmt.Errorf("retry attempts must be at least 1, got %d", attempts)
	}
	if strategy == nil {
		return nil, errors.New("backoff strategy must not be nil")
	}

	return &Engine{fetcher: fetcher, attempts: attempts, strategy: strategy, now: time.Now}, nil
}

// Download fetches the best audio stream for the URL in to dir, naming the
// artifact after the stem provided. Progress is written to the sink as
// 'downloading' snapshots, followed by a 'finished' snapshot on success.
//
// Rate-limited attempts are retried; any other failure is returned
// immediately. Both cases return an *AcquisitionError.
func (engine *Engine) Download(ctx context.Context, url string, dir string, stem string, sink progress.Sink) (string, error) {
	req := Request{URL: url, Dir: dir, Stem: stem}
	onProgress := func(u Update) { sink.Set(engine.toSnapshot(u)) }

	var (
		attempt int
		rawPath string
		lastErr error
	)
	operation := func() error {
		attempt++
		log.Emit(logger.DEBUG, "Download attempt %d/%d for %s\n", attempt, engine.attempts, url)

		path, err := engine.fetcher.Fetch(ctx, req, onProgress)
		if err == nil {
			rawPath = path
			return nil
		}
		if !IsRateLimitSignal(err) {
			return backoff.Permanent(&AcquisitionError{URL: url, Attempts: attempt, Err: err})
		}

		lastErr = err
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warnf("Download of %s rate-limited (attempt %d/%d), retrying in %s\n", url, attempt, engine.attempts, wait)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(engine.strategy(), uint64(engine.attempts-1)), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		var acqErr *AcquisitionError
		if errors.As(err, &acqErr) {
			return "", acqErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &AcquisitionError{URL: url, Attempts: attempt, Err: ctxErr}
		}

		log.Emit(logger.ERROR, "Download of %s exhausted %d attempts\n", url, attempt)
		return "", &AcquisitionError{URL: url, Attempts: attempt, RateLimited: true, Err: lastErr}
	}

	sink.Set(progress.Snapshot{Status: progress.StatusFinished, Percent: "100%"})
	log.Emit(logger.SUCCESS, "Downloaded %s to %s\n", url, rawPath)
	return rawPath, nil
}

func (engine *Engine) toSnapshot(u Update) progress.Snapshot {
	snapshot := progress.Snapshot{Status: progress.StatusDownloading, ETA: progress.FormatETA(u.ETA)}
	if u.TotalBytes > 0 {
		snapshot.Percent = progress.FormatPercent(float64(u.DownloadedBytes) / float64(u.TotalBytes) * 100)
	}
	if !u.Started.IsZero() {
		if elapsed := engine.now().Sub(u.Started); elapsed > 0 {
			snapshot.Speed = progress.FormatSpeed(float64(u.DownloadedBytes) / elapsed.Seconds())
		}
	}

	return snapshot
}

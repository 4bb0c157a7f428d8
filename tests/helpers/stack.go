package helpers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hbomb79/Phonograph/internal/acquire"
	"github.com/hbomb79/Phonograph/internal/api"
	"github.com/hbomb79/Phonograph/internal/event"
	"github.com/hbomb79/Phonograph/internal/jobs"
	"github.com/hbomb79/Phonograph/internal/metadata"
	"github.com/hbomb79/Phonograph/internal/pipeline"
	"github.com/hbomb79/Phonograph/internal/progress"
	"github.com/hbomb79/Phonograph/internal/transcode"
	"github.com/hbomb79/Phonograph/internal/workspace"
	"github.com/stretchr/testify/require"
)

const RetryAttempts = 3

var ErrNoSuchMedia = errors.New("ERROR: [generic] Unsupported URL")

type (
	// FakeMedia describes how the fake source responds for one URL.
	FakeMedia struct {
		Title string

		// RateLimited is the number of download attempts rejected with a
		// 429 before one succeeds.
		RateLimited int

		// DownloadErr, when set, fails every download attempt.
		DownloadErr error

		// TranscodeErr, when set, fails the transcode of this media.
		TranscodeErr error

		// Gate, when set, blocks the download until it is closed.
		Gate chan struct{}
	}

	// FakeSource stands in for yt-dlp, serving metadata and downloads
	// for the URLs registered with it. Unknown URLs fail extraction.
	FakeSource struct {
		sync.Mutex
		media    map[string]*FakeMedia
		attempts map[string]int
	}

	// FakeTranscoder "encodes" by prefixing the raw bytes with the codec.
	FakeTranscoder struct {
		source *FakeSource
	}

	// TestStack is an in-process Phonograph API backed by fakes, served
	// over a real HTTP listener.
	TestStack struct {
		Server    *httptest.Server
		Gateway   *api.RestGateway
		Jobs      *jobs.Service
		Tracker   *progress.Tracker
		Source    *FakeSource
		Events    event.EventCoordinator
		Workspace *workspace.Manager
	}
)

func NewFakeSource() *FakeSource {
	return &FakeSource{media: make(map[string]*FakeMedia), attempts: make(map[string]int)}
}

// Register adds the media at the URL given, returning the URL.
func (source *FakeSource) Register(url string, media FakeMedia) string {
	source.Lock()
	defer source.Unlock()
	source.media[url] = &media
	return url
}

// Attempts returns the number of download attempts made for the URL.
func (source *FakeSource) Attempts(url string) int {
	source.Lock()
	defer source.Unlock()
	return source.attempts[url]
}

func (source *FakeSource) lookup(url string) (*FakeMedia, bool) {
	source.Lock()
	defer source.Unlock()
	m, ok := source.media[url]
	return m, ok
}

func (source *FakeSource) DumpJSON(_ context.Context, url string) ([]byte, error) {
	media, ok := source.lookup(url)
	if !ok {
		return nil, ErrNoSuchMedia
	}

	return json.Marshal(metadata.Metadata{ID: "fake", Title: media.Title, WebpageURL: url, DurationSeconds: 42})
}

func (source *FakeSource) Fetch(ctx context.Context, req acquire.Request, onProgress func(acquire.Update)) (string, error) {
	source.Lock()
	source.attempts[req.URL]++
	attempt := source.attempts[req.URL]
	media, ok := source.media[req.URL]
	source.Unlock()

	if !ok {
		return "", ErrNoSuchMedia
	}
	if media.Gate != nil {
		select {
		case <-media.Gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if media.DownloadErr != nil {
		return "", media.DownloadErr
	}
	if attempt <= media.RateLimited {
		return "", errors.New("ERROR: unable to download webpage: HTTP Error 429: Too Many Requests")
	}

	onProgress(acquire.Update{DownloadedBytes: 512, TotalBytes: 1024, Started: time.Now()})
	path := filepath.Join(req.Dir, req.Stem+".webm")
	if err := os.WriteFile(path, []byte("raw:"+media.Title), 0o644); err != nil {
		return "", err
	}

	onProgress(acquire.Update{DownloadedBytes: 1024, TotalBytes: 1024, Started: time.Now()})
	return path, nil
}

func (transcoder *FakeTranscoder) Encode(ctx context.Context, rawPath string, opts transcode.Options) (string, error) {
	raw, err := os.ReadFile(rawPath)
	if err != nil {
		return "", &transcode.TranscodeError{Input: rawPath, Reason: "input missing", Err: err}
	}
	for _, media := range transcoder.source.snapshot() {
		if media.TranscodeErr != nil && string(raw) == "raw:"+media.Title {
			return "", &transcode.TranscodeError{Input: rawPath, Reason: "encoder failed", Err: media.TranscodeErr}
		}
	}

	out := rawPath[:len(rawPath)-len(filepath.Ext(rawPath))] + "." + opts.Codec
	encoded := fmt.Sprintf("%s@%dk:%s", opts.Codec, opts.BitrateKbps, raw)
	if err := os.WriteFile(out, []byte(encoded), 0o644); err != nil {
		return "", err
	}

	return out, nil
}

func (source *FakeSource) snapshot() []FakeMedia {
	source.Lock()
	defer source.Unlock()
	out := make([]FakeMedia, 0, len(source.media))
	for _, m := range source.media {
		out = append(out, *m)
	}

	return out
}

// NewTestStack builds the API, job service and pipeline against a fake
// source, starting the job service and socket hub. Everything is stopped
// when the test completes.
func NewTestStack(t *testing.T, restConfig api.RestConfig) *TestStack {
	source := NewFakeSource()
	bus := event.New()
	tracker := progress.NewTracker(bus, nil)

	scratch, err := workspace.New(filepath.Join(t.TempDir(), "scratch"))
	require.NoError(t, err)
	require.NoError(t, scratch.Reset())

	engine, err := acquire.NewEngine(source, RetryAttempts, acquire.Fixed(time.Millisecond))
	require.NoError(t, err)

	resolver := metadata.NewResolver(source, metadata.Config{})
	orchestrator := pipeline.New(resolver, engine, &FakeTranscoder{source: source}, scratch, tracker, transcode.DefaultOptions())

	service, err := jobs.NewService(jobs.Config{Workers: 1, Retention: time.Minute}, orchestrator, bus, jobs.WithProgress(tracker))
	require.NoError(t, err)

	gateway := api.NewRestGateway(&restConfig, api.Services{
		Resolver: resolver,
		Pipeline: orchestrator,
		Jobs:     service,
		Progress: tracker,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = service.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		gateway.Socket().Start(runCtx)
	}()

	server := httptest.NewServer(gateway.Handler())
	t.Cleanup(func() {
		cancel()
		wg.Wait()
		server.Close()
	})

	return &TestStack{
		Server:    server,
		Gateway:   gateway,
		Jobs:      service,
		Tracker:   tracker,
		Source:    source,
		Events:    bus,
		Workspace: scratch,
	}
}

// Client returns an API client for this stack.
func (stack *TestStack) Client() *APIClient {
	return &APIClient{BaseURL: stack.Server.URL + BasePath, HTTP: stack.Server.Client()}
}

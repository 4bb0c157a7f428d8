package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hbomb79/Phonograph/internal/credentials"
	"github.com/hbomb79/Phonograph/pkg/logger"
	"github.com/lrstanley/go-ytdlp"
)

var log = logger.Get("Metadata")

type (
	// Metadata is the subset of yt-dlp's info JSON which the pipeline
	// and its callers care about.
	Metadata struct {
		ID              string  `json:"id"`
		Title           string  `json:"title"`
		Uploader        string  `json:"uploader"`
		Thumbnail       string  `json:"thumbnail"`
		DurationSeconds float64 `json:"duration"`
		WebpageURL      string  `json:"webpage_url"`
	}

	// Runner fetches the info JSON for a single URL without
	// downloading any media.
	Runner interface {
		DumpJSON(ctx context.Context, url string) ([]byte, error)
	}

	Config struct {
		ThrottleDelay time.Duration `yaml:"throttle" env:"METADATA_THROTTLE" env-default:"2s"`
	}

	Resolver struct {
		runner   Runner
		throttle time.Duration
	}

	ytdlpRunner struct {
		binary string
		bundle credentials.Bundle
	}
)

// ExtractionError is returned when a URL cannot be resolved to
// metadata: the URL is unsupported, the source rejected it, or
// the network/auth layer failed.
type ExtractionError struct {
	URL     string
	Message string
	Err     error
}

func (err *ExtractionError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("metadata extraction failed for %s: %s: %v", err.URL, err.Message, err.Err)
	}

	return fmt.Sprintf("metadata extraction failed for %s: %s", err.URL, err.Message)
}

func (err *ExtractionError) Unwrap() error { return err.Err }

func NewResolver(runner Runner, config Config) *Resolver {
	return &Resolver{runner: runner, throttle: config.ThrottleDelay}
}

// NewYtdlpRunner returns a Runner which shells out to yt-dlp. An empty
// binary path uses whichever yt-dlp is on the PATH.
func NewYtdlpRunner(binary string, bundle credentials.Bundle) Runner {
	return &ytdlpRunner{binary: binary, bundle: bundle}
}

// Resolve returns the metadata for the URL provided. If a throttle
// delay is configured it is waited out before the request is issued,
// to reduce the chance of the source rate-limiting the download that
// follows.
func (resolver *Resolver) Resolve(ctx context.Context, rawURL string) (*Metadata, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, &ExtractionError{URL: rawURL, Message: "unsupported URL", Err: err}
	}

	if resolver.throttle > 0 {
		log.Emit(logger.VERBOSE, "Throttling metadata request for %s by %s\n", rawURL, resolver.throttle)
		select {
		case <-time.After(resolver.throttle):
		case <-ctx.Done():
			return nil, &ExtractionError{URL: rawURL, Message: "cancelled", Err: ctx.Err()}
		}
	}

	out, err := resolver.runner.DumpJSON(ctx, rawURL)
	if err != nil {
		return nil, &ExtractionError{URL: rawURL, Message: "source rejected request", Err: err}
	}

	var meta Metadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, &ExtractionError{URL: rawURL, Message: "unreadable metadata", Err: err}
	}
	if strings.TrimSpace(meta.Title) == "" {
		return nil, &ExtractionError{URL: rawURL, Message: "metadata carries no title"}
	}

	log.Emit(logger.DEBUG, "Resolved %s to '%s' (%.0fs)\n", rawURL, meta.Title, meta.DurationSeconds)
	return &meta, nil
}

func (runner *ytdlpRunner) DumpJSON(ctx context.Context, url string) ([]byte, error) {
	cmd := ytdlp.New().
		DumpSingleJSON().
		SkipDownload().
		NoPlaylist().
		NoWarnings()
	if runner.binary != "" {
		cmd.SetExecutable(runner.binary)
	}
	cmd = runner.bundle.Apply(cmd)

	result, err := cmd.Run(ctx, url)
	if err != nil {
		if result != nil && strings.TrimSpace(result.Stderr) != "" {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(result.Stderr))
		}
		return nil, err
	}

	return []byte(result.Stdout), nil
}

func validateURL(raw string) error {
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not supported", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}

	return nil
}

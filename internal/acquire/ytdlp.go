package acquire

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hbomb79/Phonograph/internal/credentials"
	"github.com/lrstanley/go-ytdlp"
)

// partialSuffixes are left behind by yt-dlp while a download is in flight.
var partialSuffixes = []string{".part", ".ytdl", ".temp"}

type ytdlpFetcher struct {
	binary   string
	bundle   credentials.Bundle
	interval time.Duration
}

// NewYtdlpFetcher returns a Fetcher which downloads the best audio-only
// format using yt-dlp. An empty binary path uses yt-dlp from the PATH.
func NewYtdlpFetcher(binary string, bundle credentials.Bundle, progressInterval time.Duration) Fetcher {
	if progressInterval <= 0 {
		progressInterval = 500 * time.Millisecond
	}

	return &ytdlpFetcher{binary: binary, bundle: bundle, interval: progressInterval}
}

func (fetcher *ytdlpFetcher) Fetch(ctx context.Context, req Request, onProgress func(Update)) (string, error) {
	cmd := ytdlp.New().
		Format("bestaudio/best").
		NoPlaylist().
		ForceOverwrites().
		Output(filepath.Join(req.Dir, req.Stem+".%(ext)s"))
	if fetcher.binary != "" {
		cmd.SetExecutable(fetcher.binary)
	}
	cmd = fetcher.bundle.Apply(cmd)

	cmd.ProgressFunc(fetcher.interval, func(update ytdlp.ProgressUpdate) {
		onProgress(Update{
			DownloadedBytes: int64(update.DownloadedBytes),
			TotalBytes:      int64(update.TotalBytes),
			Started:         update.Started,
			ETA:             update.ETA(),
		})
	})

	result, err := cmd.Run(ctx, req.URL)
	if err != nil {
		if result != nil && strings.TrimSpace(result.Stderr) != "" {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(result.Stderr))
		}
		return "", err
	}

	return locateArtifact(req.Dir, req.Stem)
}

// locateArtifact finds the file yt-dlp produced for the stem. The
// extension depends on the format selected, so it is matched by glob.
func locateArtifact(dir string, stem string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, stem+".*"))
	if err != nil {
		return "", err
	}

	var best string
	var bestSize int64 = -1
	for _, m := range matches {
		if isPartial(m) {
			continue
		}

		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = m, info.Size()
		}
	}

	if best == "" {
		return "", fmt.Errorf("yt-dlp reported success but no artifact named %s.* exists in %s", stem, dir)
	}

	return best, nil
}

func isPartial(path string) bool {
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}

	return false
}

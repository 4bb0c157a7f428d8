package transcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/floostack/transcoder/ffmpeg"
	"github.com/hbomb79/Phonograph/pkg/logger"
)

var (
	log = logger.Get("Transcode")

	ffmpegMessageMatcher = regexp.MustCompile(`(?s)message: ({.*})`)
)

// FFmpeg is a Transcoder backed by the ffmpeg binary.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

func NewFFmpeg(ffmpegPath string, ffprobePath string) *FFmpeg {
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Encode writes '<stem>.<codec>' next to the raw file. If that is the raw
// file itself, the encode is written to '<stem>.enc.<codec>' and renamed
// over the raw file once it succeeds.
func (f *FFmpeg) Encode(ctx context.Context, rawPath string, opts Options) (string, error) {
	profile, ok := codecs[opts.Codec]
	if !ok {
		return "", &TranscodeError{Input: rawPath, Reason: fmt.Sprintf("unsupported codec %q", opts.Codec)}
	}
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return "", &TranscodeError{Input: rawPath, Reason: "ffmpeg binary unavailable", Err: err}
	}
	if info, err := os.Stat(rawPath); err != nil {
		return "", &TranscodeError{Input: rawPath, Reason: "input unreadable", Err: err}
	} else if info.IsDir() {
		return "", &TranscodeError{Input: rawPath, Reason: "input is a directory"}
	}

	dir := filepath.Dir(rawPath)
	stem := strings.TrimSuffix(filepath.Base(rawPath), filepath.Ext(rawPath))
	encodedPath := filepath.Join(dir, stem+"."+opts.Codec)
	writePath := encodedPath
	if encodedPath == rawPath {
		writePath = filepath.Join(dir, stem+".enc."+opts.Codec)
	}

	if err := f.run(ctx, rawPath, writePath, profile, opts); err != nil {
		return "", &TranscodeError{Input: rawPath, Reason: "ffmpeg failed", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", &TranscodeError{Input: rawPath, Reason: "cancelled", Err: err}
	}

	if info, err := os.Stat(writePath); err != nil {
		return "", &TranscodeError{Input: rawPath, Reason: "output missing", Err: err}
	} else if info.Size() == 0 {
		return "", &TranscodeError{Input: rawPath, Reason: "output empty"}
	}

	if writePath != encodedPath {
		if err := os.Rename(writePath, encodedPath); err != nil {
			return "", &TranscodeError{Input: rawPath, Reason: "failed to move output in to place", Err: err}
		}
	}

	log.Emit(logger.SUCCESS, "Encoded %s -> %s\n", filepath.Base(rawPath), filepath.Base(encodedPath))
	return encodedPath, nil
}

func (f *FFmpeg) run(ctx context.Context, input string, output string, profile codec, opts Options) error {
	overwrite := true
	skipVideo := true
	ffmpegOpts := &ffmpeg.Options{
		OutputFormat: &profile.format,
		AudioCodec:   &profile.encoder,
		Overwrite:    &overwrite,
		SkipVideo:    &skipVideo,
	}
	if opts.BitrateKbps > 0 && profile.format != "flac" {
		bitrate := fmt.Sprintf("%dk", opts.BitrateKbps)
		ffmpegOpts.AudioBitrate = &bitrate
	}

	instance := ffmpeg.
		New(&ffmpeg.Config{
			ProgressEnabled: true,
			FfmpegBinPath:   f.ffmpegPath,
			FfprobeBinPath:  f.ffprobePath,
		}).
		Input(input).
		Output(output).
		WithContext(&ctx)

	progressChannel, err := instance.Start(ffmpegOpts)
	if err != nil {
		return parseFfmpegError(err)
	}

	for prog := range progressChannel {
		log.Verbosef("%s: %.1f%% (speed %s)\n", filepath.Base(output), prog.GetProgress(), prog.GetSpeed())
	}

	if cmd := instance.GetRunningCmdInstance(); cmd != nil && cmd.ProcessState != nil && !cmd.ProcessState.Success() {
		return fmt.Errorf("ffmpeg exited with status %d", cmd.ProcessState.ExitCode())
	}

	return nil
}

// parseFfmpegError extracts the 'message' JSON ffmpeg embeds in its
// (very long) error output, falling back to the error as given.
func parseFfmpegError(err error) error {
	groups := ffmpegMessageMatcher.FindStringSubmatch(err.Error())
	if len(groups) < 2 {
		return err
	}

	var out struct {
		Error struct {
			String string `json:"string"`
		} `json:"error"`
	}
	if jsonErr := json.Unmarshal([]byte(groups[1]), &out); jsonErr != nil || out.Error.String == "" {
		return errors.New(groups[1])
	}

	return errors.New(out.Error.String)
}

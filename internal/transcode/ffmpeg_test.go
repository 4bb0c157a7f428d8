package transcode_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/hbomb79/Phonograph/internal/transcode"
	"github.com/hbomb79/Phonograph/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Config_Options(t *testing.T) {
	tests := []struct {
		name     string
		config   transcode.Config
		expected transcode.Options
		fails    bool
	}{
		{name: "Defaults", config: transcode.Config{}, expected: transcode.Options{Codec: "mp3", BitrateKbps: 192}},
		{name: "CaseInsensitive", config: transcode.Config{Codec: " FLAC ", BitrateKbps: 320}, expected: transcode.Options{Codec: "flac", BitrateKbps: 320}},
		{name: "UnknownCodec", config: transcode.Config{Codec: "wma"}, fails: true},
		{name: "NegativeBitrate", config: transcode.Config{Codec: "mp3", BitrateKbps: -1}, fails: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			opts, err := test.config.Options()
			if test.fails {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expected, opts)
		})
	}
}

func Test_Options_ContentType(t *testing.T) {
	assert.Equal(t, "audio/mpeg", transcode.DefaultOptions().ContentType())
	assert.Equal(t, "application/octet-stream", transcode.Options{Codec: "wma"}.ContentType())
}

func Test_Encode_Preconditions(t *testing.T) {
	dir := t.TempDir()
	raw := helpers.WriteFile(t, dir, "song.webm", []byte("raw"))

	tests := []struct {
		name   string
		ffmpeg string
		input  string
		opts   transcode.Options
	}{
		{name: "MissingBinary", ffmpeg: filepath.Join(dir, "no-ffmpeg"), input: raw, opts: transcode.DefaultOptions()},
		{name: "UnsupportedCodec", ffmpeg: "ffmpeg", input: raw, opts: transcode.Options{Codec: "wma"}},
		{name: "MissingInput", ffmpeg: "sh", input: filepath.Join(dir, "missing.webm"), opts: transcode.DefaultOptions()},
		{name: "DirectoryInput", ffmpeg: "sh", input: dir, opts: transcode.DefaultOptions()},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := transcode.NewFFmpeg(test.ffmpeg, "ffprobe").Encode(context.Background(), test.input, test.opts)

			var transcodeErr *transcode.TranscodeError
			require.ErrorAs(t, err, &transcodeErr)
			assert.Equal(t, test.input, transcodeErr.Input)
		})
	}

	assert.FileExists(t, raw, "raw artifact must never be removed")
}

func Test_ParseFfmpegError(t *testing.T) {
	withMessage := errors.New(`ffmpeg version 6.0 built with gcc ... configuration: --enable-gpl
	message: {"error": {"code": -2, "string": "No such file or directory"}}`)
	assert.EqualError(t, transcode.ParseFfmpegError(withMessage), "No such file or directory")

	malformed := errors.New(`message: {not json}`)
	assert.EqualError(t, transcode.ParseFfmpegError(malformed), "{not json}")

	plain := errors.New("exit status 1")
	assert.Equal(t, plain, transcode.ParseFfmpegError(plain))
}

// Test_Encode_WithFFmpeg exercises the real ffmpeg binary, and so is only
// run when ffmpeg and ffprobe are available.
func Test_Encode_WithFFmpeg(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ffmpeg test in short mode")
	}
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not available")
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		t.Skip("ffprobe not available")
	}

	sine := func(t *testing.T, path string) {
		out, err := exec.Command(ffmpegPath, "-y", "-f", "lavfi", "-i", "sine=frequency=440:duration=1", path).CombinedOutput()
		require.NoError(t, err, string(out))
	}

	t.Run("WritesAlongsideRaw", func(t *testing.T) {
		raw := filepath.Join(t.TempDir(), "My Song Live.wav")
		sine(t, raw)

		encoded, err := transcode.NewFFmpeg(ffmpegPath, ffprobePath).Encode(context.Background(), raw, transcode.DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(filepath.Dir(raw), "My Song Live.mp3"), encoded)
		assert.FileExists(t, raw)

		info, err := os.Stat(encoded)
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	})

	t.Run("InputAlreadyTargetCodec", func(t *testing.T) {
		dir := t.TempDir()
		raw := filepath.Join(dir, "song.mp3")
		sine(t, raw)

		encoded, err := transcode.NewFFmpeg(ffmpegPath, ffprobePath).Encode(context.Background(), raw, transcode.DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, raw, encoded)
		assert.Equal(t, []string{"song.mp3"}, helpers.DirEntries(t, dir))
	})

	t.Run("GarbageInput", func(t *testing.T) {
		raw := helpers.WriteFile(t, t.TempDir(), "song.webm", []byte("definitely not audio"))

		_, err := transcode.NewFFmpeg(ffmpegPath, ffprobePath).Encode(context.Background(), raw, transcode.DefaultOptions())
		var transcodeErr *transcode.TranscodeError
		require.ErrorAs(t, err, &transcodeErr)
	})
}

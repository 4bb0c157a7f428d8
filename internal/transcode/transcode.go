// Package transcode converts downloaded audio artifacts in to the
// configured output codec.
package transcode

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

type (
	// Transcoder encodes the file at rawPath, returning the path of the
	// encoded artifact. The raw file is left in place.
	Transcoder interface {
		Encode(ctx context.Context, rawPath string, opts Options) (string, error)
	}

	Options struct {
		Codec       string
		BitrateKbps int
	}

	Config struct {
		Codec       string `yaml:"codec" env:"ENCODING_CODEC" env-default:"mp3"`
		BitrateKbps int    `yaml:"bitrate_kbps" env:"ENCODING_BITRATE_KBPS" env-default:"192"`
	}

	// codec describes how ffmpeg should produce a given output extension.
	codec struct {
		encoder     string
		format      string
		contentType string
	}
)

var codecs = map[string]codec{
	"mp3":  {encoder: "libmp3lame", format: "mp3", contentType: "audio/mpeg"},
	"m4a":  {encoder: "aac", format: "ipod", contentType: "audio/mp4"},
	"opus": {encoder: "libopus", format: "opus", contentType: "audio/ogg"},
	"flac": {encoder: "flac", format: "flac", contentType: "audio/flac"},
}

func DefaultOptions() Options {
	return Options{Codec: "mp3", BitrateKbps: 192}
}

// Options validates the config and returns the encode options it describes.
func (config Config) Options() (Options, error) {
	opts := Options{Codec: strings.ToLower(strings.TrimSpace(config.Codec)), BitrateKbps: config.BitrateKbps}
	if opts.Codec == "" {
		opts.Codec = DefaultOptions().Codec
	}
	if opts.BitrateKbps == 0 {
		opts.BitrateKbps = DefaultOptions().BitrateKbps
	}

	if _, ok := codecs[opts.Codec]; !ok {
		return Options{}, fmt.Errorf("unsupported codec %q (supported: %s)", config.Codec, strings.Join(SupportedCodecs(), ", "))
	}
	if opts.BitrateKbps < 0 {
		return Options{}, fmt.Errorf("bitrate must be positive, got %d", opts.BitrateKbps)
	}

	return opts, nil
}

// ContentType returns the MIME type of artifacts produced with these options.
func (opts Options) ContentType() string {
	if c, ok := codecs[opts.Codec]; ok {
		return c.contentType
	}

	return "application/octet-stream"
}

func SupportedCodecs() []string {
	out := make([]string, 0, len(codecs))
	for k := range codecs {
		out = append(out, k)
	}
	sort.Strings(out)

	return out
}

// TranscodeError is returned when an artifact could not be encoded.
type TranscodeError struct {
	Input  string
	Reason string
	Err    error
}

func (err *TranscodeError) Error() string {
	if err.Err == nil {
		return fmt.Sprintf("transcode of %s failed: %s", err.Input, err.Reason)
	}

	return fmt.Sprintf("transcode of %s failed: %s: %v", err.Input, err.Reason, err.Err)
}

func (err *TranscodeError) Unwrap() error { return err.Err }

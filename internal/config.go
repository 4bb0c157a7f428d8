package internal

import (
	"fmt"

	"github.com/hbomb79/Phonograph/internal/acquire"
	"github.com/hbomb79/Phonograph/internal/api"
	"github.com/hbomb79/Phonograph/internal/cache"
	"github.com/hbomb79/Phonograph/internal/credentials"
	"github.com/hbomb79/Phonograph/internal/database"
	"github.com/hbomb79/Phonograph/internal/jobs"
	"github.com/hbomb79/Phonograph/internal/metadata"
	"github.com/hbomb79/Phonograph/internal/transcode"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

const DefaultConfigPath = "~/.config/phonograph/config.yaml"

// PhonographConfig is the struct used to contain the
// various user config supplied by file, or
// by the environment.
type PhonographConfig struct {
	RestConfig  api.RestConfig     `yaml:"rest"`
	ScratchDir  string             `yaml:"scratch_dir" env:"SCRATCH_DIR" env-default:"~/.cache/phonograph/scratch"`
	LogLevel    string             `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Binaries    BinaryConfig       `yaml:"binaries"`
	Credentials credentials.Config `yaml:"credentials"`
	Acquisition acquire.Config     `yaml:"acquisition"`
	Metadata    metadata.Config    `yaml:"metadata"`
	Encoding    transcode.Config   `yaml:"encoding"`
	Jobs        jobs.Config        `yaml:"jobs"`
	Redis       cache.Config       `yaml:"redis"`
	Database    database.Config    `yaml:"database"`
}

// BinaryConfig locates the external tools Phonograph drives. Bare names
// are resolved against the PATH.
type BinaryConfig struct {
	Ytdlp   string `yaml:"ytdlp" env:"YTDLP_PATH" env-default:"yt-dlp"`
	FFmpeg  string `yaml:"ffmpeg" env:"FFMPEG_PATH" env-default:"ffmpeg"`
	FFprobe string `yaml:"ffprobe" env:"FFPROBE_PATH" env-default:"ffprobe"`
}

// LoadFromFile loads a configuration file formatted in YAML in to a
// PhonographConfig, overlaying any values found in the environment.
func (config *PhonographConfig) LoadFromFile(configPath string) error {
	path, err := homedir.Expand(configPath)
	if err != nil {
		return fmt.Errorf("failed to expand config path %s: %w", configPath, err)
	}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}

	return config.expandPaths()
}

// LoadFromEnv populates the config from the environment alone, for
// when no configuration file exists.
func (config *PhonographConfig) LoadFromEnv() error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	return config.expandPaths()
}

func (config *PhonographConfig) expandPaths() error {
	for _, path := range []*string{&config.ScratchDir, &config.Binaries.Ytdlp, &config.Binaries.FFmpeg, &config.Binaries.FFprobe} {
		expanded, err := homedir.Expand(*path)
		if err != nil {
			return fmt.Errorf("failed to expand path %s: %w", *path, err)
		}
		*path = expanded
	}

	return nil
}

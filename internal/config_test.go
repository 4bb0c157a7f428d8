package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LoadFromEnv(t *testing.T) {
	t.Setenv("METADATA_THROTTLE", "5s")
	t.Setenv("JOBS_RETENTION", "10m")
	t.Setenv("ACQUISITION_RETRY_ATTEMPTS", "7")

	config := &PhonographConfig{}
	require.NoError(t, config.LoadFromEnv())

	assert.Equal(t, 5*time.Second, config.Metadata.ThrottleDelay)
	assert.Equal(t, 10*time.Minute, config.Jobs.Retention)
	assert.Equal(t, 7, config.Acquisition.RetryAttempts)
	assert.Equal(t, "yt-dlp", config.Binaries.Ytdlp)
}

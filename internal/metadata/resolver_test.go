package metadata_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hbomb79/Phonograph/internal/metadata"
	"github.com/hbomb79/Phonograph/internal/metadata/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const videoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func Test_Resolve(t *testing.T) {
	runner := mocks.NewMockRunner(t)
	runner.EXPECT().DumpJSON(mock.Anything, videoURL).Return([]byte(`{
		"id": "dQw4w9WgXcQ",
		"title": "My Song (Live)",
		"uploader": "Someone",
		"thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
		"duration": 180,
		"webpage_url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"formats": [{"format_id": "251"}]
	}`), nil).Once()

	resolver := metadata.NewResolver(runner, metadata.Config{})
	meta, err := resolver.Resolve(context.Background(), videoURL)
	require.NoError(t, err)
	assert.Equal(t, "My Song (Live)", meta.Title)
	assert.Equal(t, 180.0, meta.DurationSeconds)
	assert.Equal(t, "Someone", meta.Uploader)
	assert.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg", meta.Thumbnail)
}

func Test_Resolve_Failures(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		output []byte
		err    error
	}{
		{name: "RunnerFailure", url: videoURL, err: errors.New("ERROR: Unsupported URL")},
		{name: "GarbageOutput", url: videoURL, output: []byte("not json")},
		{name: "MissingTitle", url: videoURL, output: []byte(`{"id": "abc"}`)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			runner := mocks.NewMockRunner(t)
			runner.EXPECT().DumpJSON(mock.Anything, test.url).Return(test.output, test.err).Once()

			_, err := metadata.NewResolver(runner, metadata.Config{}).Resolve(context.Background(), test.url)
			var extractionErr *metadata.ExtractionError
			require.ErrorAs(t, err, &extractionErr)
			assert.Equal(t, test.url, extractionErr.URL)
			if test.err != nil {
				assert.ErrorIs(t, err, test.err)
			}
		})
	}
}

func Test_Resolve_UnsupportedURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "ftp://example.com/file", "file:///etc/passwd"} {
		t.Run(raw, func(t *testing.T) {
			// No expectations: the runner must never be reached
			runner := mocks.NewMockRunner(t)
			_, err := metadata.NewResolver(runner, metadata.Config{}).Resolve(context.Background(), raw)

			var extractionErr *metadata.ExtractionError
			require.ErrorAs(t, err, &extractionErr)
			assert.Equal(t, "unsupported URL", extractionErr.Message)
		})
	}
}

func Test_Resolve_ThrottleHonoursCancellation(t *testing.T) {
	runner := mocks.NewMockRunner(t)
	resolver := metadata.NewResolver(runner, metadata.Config{ThrottleDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resolver.Resolve(ctx, videoURL)
	assert.ErrorIs(t, err, context.Canceled)
}

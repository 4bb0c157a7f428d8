package acquire

import (
	"fmt"
	"regexp"
)

// Anchored to the phrases yt-dlp reports, as its errors echo the video
// ID and URL which may themselves contain "429".
var rateLimitMatcher = regexp.MustCompile(`(?i)HTTP Error 429|too many requests|rate[- ]limit`)

// AcquisitionError is returned when the audio stream for a URL could
// not be downloaded. RateLimited is set when every attempt was refused
// by the source's rate limiting.
type AcquisitionError struct {
	URL         string
	Attempts    int
	RateLimited bool
	Err         error
}

func (err *AcquisitionError) Error() string {
	if err.RateLimited {
		return fmt.Sprintf("acquisition of %s rate-limited after %d attempts: %v", err.URL, err.Attempts, err.Err)
	}

	return fmt.Sprintf("acquisition of %s failed: %v", err.URL, err.Err)
}

func (err *AcquisitionError) Unwrap() error { return err.Err }

// IsRateLimitSignal returns true if the error carries an HTTP 429 (or
// equivalent) signal as surfaced by yt-dlp.
func IsRateLimitSignal(err error) bool {
	if err == nil {
		return false
	}

	return rateLimitMatcher.MatchString(err.Error())
}

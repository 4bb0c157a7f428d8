package progress

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
)

type Status string

const (
	StatusIdle        Status = "idle"
	StatusDownloading Status = "downloading"
	StatusFinished    Status = "finished"
	StatusFailed      Status = "failed"
)

// Snapshot is the latest known progress of a single job.
type Snapshot struct {
	JobID     uuid.UUID `json:"job_id" mapstructure:"job_id"`
	Status    Status    `json:"status" mapstructure:"status"`
	Percent   string    `json:"percent" mapstructure:"percent"`
	Speed     string    `json:"speed" mapstructure:"speed"`
	ETA       string    `json:"eta" mapstructure:"eta"`
	Error     string    `json:"error,omitempty" mapstructure:"error"`
	UpdatedAt time.Time `json:"updated_at" mapstructure:"updated_at"`
}

// Idle returns the snapshot observed before any progress is known.
func Idle(id uuid.UUID) Snapshot {
	return Snapshot{JobID: id, Status: StatusIdle}
}

// PercentValue parses the formatted percent of this snapshot.
func (s Snapshot) PercentValue() (float64, bool) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(s.Percent), "%")
	if trimmed == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(trimmed), 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

func (s Snapshot) Terminal() bool {
	return s.Status == StatusFinished || s.Status == StatusFailed
}

// FormatPercent renders a percentage the way snapshots carry it, e.g. "42.5%".
func FormatPercent(p float64) string {
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}

	return fmt.Sprintf("%.1f%%", p)
}

var binaryAbbrs = []string{"B", "KiB", "MiB", "GiB", "TiB"}

// FormatSpeed renders a transfer rate in binary units per second, e.g.
// "1.50MiB/s".
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return ""
	}

	return units.CustomSize("%.2f%s", bytesPerSecond, 1024.0, binaryAbbrs) + "/s"
}

// FormatETA renders a remaining duration as MM:SS (or HH:MM:SS).
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return ""
	}

	secs := int(d.Round(time.Second).Seconds())
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}

	return fmt.Sprintf("%02d:%02d", m, s)
}

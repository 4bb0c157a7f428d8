package credentials

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hbomb79/Phonograph/pkg/logger"
	"github.com/rjeczalik/notify"
)

var log = logger.Get("Credentials")

// Watcher observes the bundle's cookie file and re-validates it whenever
// it changes on disk, so an expired or broken export is reported before
// the next extraction fails because of it.
type Watcher struct {
	bundle  Bundle
	checked func(Report, error)
}

func NewWatcher(bundle Bundle) *Watcher {
	return &Watcher{bundle: bundle, checked: logReport}
}

// OnCheck replaces the callback invoked after each validation.
func (watcher *Watcher) OnCheck(f func(Report, error)) *Watcher {
	watcher.checked = f
	return watcher
}

// Run validates the cookie file once and then again on every filesystem
// change until the context is cancelled. Bundles without a cookie file
// return immediately.
func (watcher *Watcher) Run(ctx context.Context) error {
	path, ok := watcher.bundle.CookieFile()
	if !ok {
		log.Emit(logger.DEBUG, "No cookie file configured, credential watcher idle\n")
		return nil
	}

	watcher.check(path)

	events := make(chan notify.EventInfo, 8)
	if err := notify.Watch(filepath.Dir(path), events, notify.Create, notify.Write, notify.Rename, notify.Remove); err != nil {
		return fmt.Errorf("failed to watch cookie file %s: %w", path, err)
	}
	defer notify.Stop(events)

	log.Emit(logger.NEW, "Watching cookie file %s for changes\n", path)
	for {
		select {
		case ev := <-events:
			if filepath.Base(ev.Path()) != filepath.Base(path) {
				continue
			}

			log.Emit(logger.DEBUG, "Cookie file event %s\n", ev.Event())
			watcher.check(path)
		case <-ctx.Done():
			log.Emit(logger.STOP, "Credential watcher closed\n")
			return nil
		}
	}
}

func (watcher *Watcher) check(path string) {
	report, err := Validate(path, time.Now())
	watcher.checked(report, err)
}

func logReport(report Report, err error) {
	if err != nil {
		log.Warnf("Cookie file failed validation: %v\n", err)
		return
	}

	if report.Expired > 0 {
		log.Warnf("Cookie file holds %d cookies, %d of which have expired\n", report.Total, report.Expired)
		return
	}

	log.Emit(logger.SUCCESS, "Cookie file holds %d valid cookies\n", report.Total)
}

package bus

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileFeed watches a SQLite database file for writes by other
// processes and reports them as coarse "changed" events. The watch
// covers the database, its WAL, and its shared-memory sidecar, since
// WAL-mode commits often touch only the -wal file.
//
// Filesystem events carry no row identity, so every event publishes
// with an empty request id; subscribers refresh their view. Bursts of
// writes are collapsed by a debounce window.
type FileFeed struct {
	path     string
	debounce time.Duration
	logger   *log.Logger
}

// NewFileFeed watches the database at path. debounce <= 0 selects the
// default window.
func NewFileFeed(path string, debounce time.Duration, logger *log.Logger) *FileFeed {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[filefeed] ", log.LstdFlags)
	}
	return &FileFeed{path: path, debounce: debounce, logger: logger}
}

// Name identifies the feed in logs.
func (f *FileFeed) Name() string { return "file" }

// Run watches until ctx is cancelled.
func (f *FileFeed) Run(ctx context.Context, publish func(Event)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the parent directory: the -wal and -shm files come and go,
	// and fsnotify watches on a deleted file go stale.
	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	base := filepath.Base(f.path)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !f.relevant(base, event) {
				continue
			}
			// Restart the debounce window on every write in a burst.
			if timer == nil {
				timer = time.NewTimer(f.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(f.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			publish(Event{Action: "changed", At: time.Now().UTC()})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Printf("watch error: %v", err)
		}
	}
}

// relevant reports whether the event touches the database or one of
// its WAL sidecars with a content-changing operation.
func (f *FileFeed) relevant(base string, event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if name != base && !strings.HasPrefix(name, base+"-") {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

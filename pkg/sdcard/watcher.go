package sdcard

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"lcdprint-go/pkg/log"
)

// Watcher invalidates a card when its mount directory or the browsed
// directory changes. It watches the mount's parent too, since the mount
// itself disappears when the medium is removed.
type Watcher struct {
	card     *Card
	fsw      *fsnotify.Watcher
	debounce time.Duration
	rewatch  time.Duration
	logger   *log.Logger
}

// NewWatcher returns a watcher for card.
func NewWatcher(card *Card) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		card:     card,
		fsw:      fsw,
		debounce: 100 * time.Millisecond,
		rewatch:  2 * time.Second,
		logger:   log.GetLogger("sdcard"),
	}, nil
}

// SetDebounce changes how long events are coalesced before invalidating.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	w.addWatches()

	fire := make(chan struct{}, 1)
	var timer *time.Timer
	rewatch := time.NewTicker(w.rewatch)
	defer rewatch.Stop()

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			w.logger.Debug("media changed")
			w.card.Invalidate()
			w.addWatches()

		case <-rewatch.C:
			w.addWatches()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("watch error")
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
		return false
	}
	root := w.card.Root()
	name := filepath.Clean(ev.Name)
	return name == root || strings.HasPrefix(name, root+string(filepath.Separator))
}

// addWatches (re)adds the mount's parent, the mount and the browsed
// directory. Missing paths are skipped; they are retried later.
func (w *Watcher) addWatches() {
	root := w.card.Root()
	paths := []string{filepath.Dir(root), root}
	if dir := w.card.Dir(); dir != "" {
		paths = append(paths, filepath.Join(root, dir))
	}
	for _, p := range paths {
		if err := w.fsw.Add(p); err != nil {
			w.logger.WithError(err).WithField("path", p).Debug("cannot watch")
		}
	}
}

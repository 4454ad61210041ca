package catalog

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Reloader is implemented by providers that can re-read their sources.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Watcher reloads a provider whenever catalog files in a directory change.
// Bursts of events (editors writing temp files, renames) are debounced.
type Watcher struct {
	dir      string
	target   Reloader
	logger   zerolog.Logger
	debounce time.Duration
	fsw      *fsnotify.Watcher
}

// NewWatcher starts watching dir. Call Run to process events.
func NewWatcher(dir string, target Reloader, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		dir:      dir,
		target:   target,
		logger:   logger.With().Str("component", "catalog-watcher").Str("dir", dir).Logger(),
		debounce: 250 * time.Millisecond,
		fsw:      fsw,
	}, nil
}

// Run blocks until ctx is cancelled and closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !isCatalogFile(ev.Name) || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("catalog change detected")
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("watch error")

		case <-pending:
			pending = nil
			if err := w.target.Reload(ctx); err != nil {
				w.logger.Error().Err(err).Msg("catalog reload failed, keeping previous catalogs")
				continue
			}
			w.logger.Info().Msg("catalogs reloaded")
		}
	}
}

func isCatalogFile(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

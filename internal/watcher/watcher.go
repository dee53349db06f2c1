// Package watcher reloads configuration when the config file changes on
// disk.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sydlexius/playbill/internal/config"
	"github.com/sydlexius/playbill/internal/event"
)

// OnReload receives the freshly loaded configuration.
type OnReload func(cfg *config.Config)

// Service watches the config file and pushes reloaded configuration to a
// callback. Editors replace files rather than write them in place, so the
// watch is on the containing directory and events are debounced.
type Service struct {
	path     string
	onReload OnReload
	eventBus *event.Bus
	logger   *slog.Logger
	debounce time.Duration
}

// NewService creates a config file watcher.
func NewService(path string, onReload OnReload, eventBus *event.Bus, logger *slog.Logger) *Service {
	return &Service{
		path:     path,
		onReload: onReload,
		eventBus: eventBus,
		logger:   logger.With(slog.String("component", "config-watcher")),
		debounce: time.Second,
	}
}

// SetDebounce overrides the default debounce interval (for testing).
func (s *Service) SetDebounce(d time.Duration) {
	s.debounce = d
}

// Start blocks until ctx is canceled, reloading the config after each
// settled burst of file events.
func (s *Service) Start(ctx context.Context) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("fsnotify unavailable, config reload disabled", slog.Any("error", err))
		<-ctx.Done()
		return
	}
	defer w.Close() //nolint:errcheck

	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		s.logger.Warn("watching config directory failed", slog.String("dir", dir), slog.Any("error", err))
		<-ctx.Done()
		return
	}
	s.logger.Info("watching config file", slog.String("path", s.path))

	// Starts stopped; reset on each matching event.
	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	reloadPending := false

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("config watcher stopping")
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(s.debounce)
			reloadPending = true

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Error("fsnotify error", slog.Any("error", err))

		case <-debounceTimer.C:
			if reloadPending {
				reloadPending = false
				s.reload()
			}
		}
	}
}

func (s *Service) reload() {
	cfg, err := config.Load(s.path)
	if err != nil {
		s.logger.Error("config reload failed, keeping previous config", slog.Any("error", err))
		return
	}
	s.logger.Info("config reloaded")
	s.onReload(cfg)
	if s.eventBus != nil {
		s.eventBus.Publish(event.Event{
			Type: event.ConfigReloaded,
			Data: map[string]any{"path": s.path},
		})
	}
}

// Package runner drives serial full-library reconciliation runs.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/playbill/internal/event"
	"github.com/sydlexius/playbill/internal/mediaserver"
	"github.com/sydlexius/playbill/internal/reconcile"
	"github.com/sydlexius/playbill/internal/runlog"
)

// Catalog enumerates the media server's libraries and their items.
type Catalog interface {
	Libraries(ctx context.Context) ([]mediaserver.Library, error)
	LibraryItems(ctx context.Context, parentID string) ([]mediaserver.Item, error)
}

// Processor reconciles a single item.
type Processor interface {
	ProcessItem(ctx context.Context, itemID string, forceRefresh bool) (*reconcile.Result, error)
}

// collectionTypes the runner considers. Everything else (music, photos,
// collections) is skipped at the library level.
var collectionTypes = map[string]bool{
	"movies":  true,
	"tvshows": true,
}

// Service runs at most one library-wide reconciliation at a time, walking
// items serially with a configurable pause between them.
type Service struct {
	catalog   Catalog
	processor Processor
	logs      *runlog.Store
	logger    *slog.Logger
	eventBus  *event.Bus
	delay     time.Duration
	libraries []string

	mu         sync.Mutex
	currentRun *RunResult
	cancel     context.CancelFunc
}

// NewService creates a runner. libraries is the configured allow-list of
// library names; empty means every movie and series library.
func NewService(catalog Catalog, processor Processor, logs *runlog.Store, logger *slog.Logger, delay time.Duration, libraries []string) *Service {
	return &Service{
		catalog:   catalog,
		processor: processor,
		logs:      logs,
		logger:    logger.With(slog.String("component", "runner")),
		delay:     delay,
		libraries: libraries,
	}
}

// SetEventBus sets the event bus for publishing run events.
func (s *Service) SetEventBus(bus *event.Bus) {
	s.eventBus = bus
}

// Run starts a full-library run in the background. Only one run at a time.
// Returns a snapshot of the initial run state.
func (s *Service) Run(opts RunOptions) (*RunResult, error) {
	s.mu.Lock()
	if s.currentRun != nil && s.currentRun.Status == "running" {
		s.mu.Unlock()
		return nil, fmt.Errorf("run already in progress")
	}

	result := &RunResult{
		ID:        uuid.New().String(),
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
	s.currentRun = result
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	snapshot := *result
	s.mu.Unlock()

	s.publish(event.RunStarted, map[string]any{"run_id": result.ID, "force": opts.Force})
	go s.runAll(ctx, result, opts)

	return &snapshot, nil
}

// Stop cancels the run in progress, if any.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil && s.currentRun != nil && s.currentRun.Status == "running" {
		s.cancel()
	}
}

// Status returns a snapshot of the current or most recent run.
func (s *Service) Status() *RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentRun == nil {
		return nil
	}
	snapshot := *s.currentRun
	return &snapshot
}

func (s *Service) runAll(ctx context.Context, result *RunResult, opts RunOptions) {
	defer func() {
		s.mu.Lock()
		now := time.Now().UTC()
		result.CompletedAt = &now
		if result.Status == "running" {
			result.Status = "completed"
		}
		snapshot := *result
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.mu.Unlock()

		s.publish(event.RunCompleted, map[string]any{
			"run_id":       snapshot.ID,
			"status":       snapshot.Status,
			"total":        snapshot.Total,
			"processed":    snapshot.Processed,
			"needs_review": snapshot.NeedsReview,
			"skipped":      snapshot.Skipped,
			"failed":       snapshot.Failed,
		})
	}()

	items, err := s.collectItems(ctx, opts)
	if err != nil {
		s.fail(result, err)
		return
	}

	processed := map[string]struct{}{}
	if !opts.Force {
		processed, err = s.logs.ProcessedIDs(ctx)
		if err != nil {
			s.fail(result, err)
			return
		}
	}

	s.mu.Lock()
	result.Total = len(items)
	s.mu.Unlock()

	for i, item := range items {
		if ctx.Err() != nil {
			s.markCanceled(result)
			return
		}
		if _, done := processed[item.ID]; done {
			s.mu.Lock()
			result.Skipped++
			s.mu.Unlock()
			continue
		}

		res, err := s.processor.ProcessItem(ctx, item.ID, opts.Force)
		if err != nil {
			// ProcessItem only returns an error when the run was aborted.
			s.markCanceled(result)
			return
		}

		s.mu.Lock()
		switch res.Outcome {
		case reconcile.OutcomeProcessed:
			result.Processed++
		case reconcile.OutcomeNeedsReview:
			result.NeedsReview++
		case reconcile.OutcomeSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
		s.mu.Unlock()

		if i < len(items)-1 && s.delay > 0 {
			if !sleepCtx(ctx, s.delay) {
				s.markCanceled(result)
				return
			}
		}
	}
}

// collectItems walks the configured libraries and flattens their items.
func (s *Service) collectItems(ctx context.Context, opts RunOptions) ([]mediaserver.Item, error) {
	libraries, err := s.catalog.Libraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing libraries: %w", err)
	}

	allow := s.libraries
	if len(opts.Libraries) > 0 {
		allow = opts.Libraries
	}

	var items []mediaserver.Item
	for _, lib := range libraries {
		if !collectionTypes[strings.ToLower(lib.CollectionType)] {
			continue
		}
		if len(allow) > 0 && !containsFold(allow, lib.Name) {
			continue
		}
		libItems, err := s.catalog.LibraryItems(ctx, lib.ID)
		if err != nil {
			return nil, fmt.Errorf("listing items of %q: %w", lib.Name, err)
		}
		s.logger.Info("library enumerated",
			slog.String("library", lib.Name), slog.Int("items", len(libItems)))
		items = append(items, libItems...)
	}
	return items, nil
}

func (s *Service) fail(result *RunResult, err error) {
	s.mu.Lock()
	result.Status = "failed"
	result.Error = err.Error()
	s.mu.Unlock()
	s.logger.Error("run failed", slog.Any("error", err))
}

func (s *Service) markCanceled(result *RunResult) {
	s.mu.Lock()
	result.Status = "canceled"
	s.mu.Unlock()
}

func (s *Service) publish(t event.Type, data map[string]any) {
	if s.eventBus != nil {
		s.eventBus.Publish(event.Event{Type: t, Data: data})
	}
}

func containsFold(list []string, name string) bool {
	for _, s := range list {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// sleepCtx pauses for d, returning false if ctx was canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

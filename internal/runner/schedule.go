package runner

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler starts full-library runs on a cron expression.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  *slog.Logger
}

// NewScheduler creates a scheduler and registers spec (standard five-field
// cron syntax) to kick off a non-forced run.
func NewScheduler(service *Service, logger *slog.Logger, spec string) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		service: service,
		logger:  logger.With(slog.String("component", "scheduler")),
	}
	_, err := s.cron.AddFunc(spec, s.kick)
	if err != nil {
		return nil, fmt.Errorf("parsing cron spec %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduled runs enabled")
}

// Stop stops the cron loop. Started jobs keep running; the runner's own
// Stop cancels those.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) kick() {
	res, err := s.service.Run(RunOptions{})
	if err != nil {
		// A run in progress is not an error condition for the schedule.
		s.logger.Info("scheduled run not started", slog.Any("reason", err))
		return
	}
	s.logger.Info("scheduled run started", slog.String("run_id", res.ID))
}

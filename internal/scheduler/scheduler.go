package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"workorder-service/internal/usecase"
	"workorder-service/pkg/logger"
)

// Scheduler runs the periodic reaper that hard-deletes soft-deleted work
// orders whose grace window elapsed while no in-process timer was armed
// (typically after a restart).
type Scheduler struct {
	cron       *cron.Cron
	softDelete *usecase.SoftDeleteCoordinator
	spec       string
	log        logger.Logger
}

// NewScheduler creates a scheduler running the reaper on the given cron spec.
func NewScheduler(spec string, softDelete *usecase.SoftDeleteCoordinator, log logger.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		softDelete: softDelete,
		spec:       spec,
		log:        log,
	}
}

// Start registers the reaper job and starts the cron loop.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.spec, s.reap); err != nil {
		s.log.Error("failed to schedule soft-delete reaper", "spec", s.spec, "error", err)
		return
	}
	s.cron.Start()
	s.log.Info("soft-delete reaper scheduled", "spec", s.spec)
}

// Stop stops the cron loop.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) reap() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := s.softDelete.ReapExpired(ctx); err != nil {
		s.log.Error("soft-delete reap failed", "error", err)
	}
}

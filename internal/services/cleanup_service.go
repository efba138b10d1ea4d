package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/safarline/booking-backend/internal/config"
	"github.com/sirupsen/logrus"
)

// AbandonedPurger deletes stale unpaid tickets. Paid rows are untouchable.
type AbandonedPurger interface {
	PurgeAbandoned(olderThan time.Time) (int64, error)
}

// CleanupService runs the scheduled retention sweep over abandoned booking
// attempts. Only unpaid pre-payment rows are ever removed; everything that
// touched money stays for the audit trail.
type CleanupService struct {
	cron    *cron.Cron
	tickets AbandonedPurger
	cfg     config.BookingConfig
	logger  *logrus.Logger
}

// NewCleanupService creates a new CleanupService
func NewCleanupService(tickets AbandonedPurger, cfg config.BookingConfig, logger *logrus.Logger) *CleanupService {
	return &CleanupService{
		cron:    cron.New(cron.WithSeconds()),
		tickets: tickets,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start schedules the retention sweep and starts the scheduler.
func (s *CleanupService) Start() error {
	_, err := s.cron.AddFunc(s.cfg.CleanupSchedule, s.purgeAbandonedJob)
	if err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}
	s.cron.Start()

	s.logger.WithFields(logrus.Fields{
		"schedule":  s.cfg.CleanupSchedule,
		"retention": s.cfg.RetentionWindow.String(),
	}).Info("Retention sweep scheduled")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *CleanupService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Retention sweep stopped")
}

func (s *CleanupService) purgeAbandonedJob() {
	cutoff := time.Now().Add(-s.cfg.RetentionWindow)

	removed, err := s.tickets.PurgeAbandoned(cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Retention sweep failed")
		return
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Purged abandoned booking attempts")
	}
}

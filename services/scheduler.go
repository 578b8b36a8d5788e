package services

import (
	"context"
	"sync"
	"time"

	"github.com/aj9599/raas-platform/metrics"
	"go.uber.org/zap"
)

const (
	TaskMarkOverdue       = "mark_overdue"
	TaskExpireInvitations = "expire_invitations"
)

// Scheduler runs the periodic housekeeping: pending invoices past their due
// date become overdue and stale invitations expire.
type Scheduler struct {
	billing     *BillingService
	invitations *InvitationService
	interval    time.Duration
	logger      *zap.Logger
	now         func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewScheduler(billing *BillingService, invitations *InvitationService, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		billing:     billing,
		invitations: invitations,
		interval:    interval,
		logger:      logger,
		now:         time.Now,
		stopChan:    make(chan struct{}),
	}
}

// Start blocks until Stop is called. Run it in its own goroutine.
func (s *Scheduler) Start() {
	s.logger.Info("[SCHEDULER] Started", zap.Duration("interval", s.interval))

	// Catch up on anything missed while the server was down
	s.RunOnce(context.Background())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopChan:
			s.logger.Info("[SCHEDULER] Stopped")
			return
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	overdue, err := s.billing.MarkOverdue(ctx, s.now())
	metrics.SchedulerRun(TaskMarkOverdue, err)
	if err != nil {
		s.logger.Error("[SCHEDULER] Failed to mark overdue invoices", zap.Error(err))
	} else if overdue > 0 {
		s.logger.Info("[SCHEDULER] Invoices marked overdue", zap.Int64("count", overdue))
	}

	expired, err := s.invitations.ExpireDue(ctx)
	metrics.SchedulerRun(TaskExpireInvitations, err)
	if err != nil {
		s.logger.Error("[SCHEDULER] Failed to expire invitations", zap.Error(err))
	} else if expired > 0 {
		s.logger.Info("[SCHEDULER] Invitations expired", zap.Int("count", expired))
	}
}

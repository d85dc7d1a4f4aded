package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/payprompt/payprompt-backend/internal/errs"
	"github.com/payprompt/payprompt-backend/internal/metrics"
	"github.com/payprompt/payprompt-backend/internal/models"
	"github.com/payprompt/payprompt-backend/internal/notify"
	repo "github.com/payprompt/payprompt-backend/internal/repository"
	"github.com/payprompt/payprompt-backend/internal/worker"
)

const (
	// retryDelay applies when a task's store write fails; the task puts
	// itself back on the queue instead of giving up.
	retryDelay = 5 * time.Minute

	// maxRetries bounds the self-rescheduling loop. After an hour of failed
	// attempts the task is dropped with an error log.
	maxRetries = 12
)

// Scheduler re-evaluates pending transactions after their approval window.
// There is no cancellation: tasks fire and re-check state, so one resolved
// by a human in the meantime is a no-op. Status writes use the store's
// conditional update, which makes a racing expiry lose to a concurrent
// customer decision instead of overwriting it.
type Scheduler struct {
	trx      repo.Transactions
	settings repo.Settings
	gateway  notify.Gateway
	pool     *worker.Pool

	approvalSMS string

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

func New(t repo.Transactions, s repo.Settings, g notify.Gateway, pool *worker.Pool, approvalSMS string) *Scheduler {
	return &Scheduler{
		trx:         t,
		settings:    s,
		gateway:     g,
		pool:        pool,
		approvalSMS: approvalSMS,
		timers:      make(map[*time.Timer]struct{}),
	}
}

// Stop cancels timers that have not fired yet. In-flight tasks drain with
// the worker pool.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.timers {
		if t.Stop() {
			metrics.SchedulerQueueDepth.Dec()
		}
		delete(s.timers, t)
	}
}

func (s *Scheduler) schedule(delay time.Duration, fn func()) {
	metrics.SchedulerQueueDepth.Inc()
	s.mu.Lock()
	defer s.mu.Unlock()
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		metrics.SchedulerQueueDepth.Dec()
		s.mu.Lock()
		delete(s.timers, timer)
		s.mu.Unlock()
		s.pool.Submit(fn)
	})
	s.timers[timer] = struct{}{}
}

// ScheduleExpiry defers an expiry check for a transaction awaiting the
// customer's decision.
func (s *Scheduler) ScheduleExpiry(transactionID string, delay time.Duration) {
	s.schedule(delay, func() { s.expireIfPending(context.Background(), transactionID, 0) })
}

// SchedulePreApprovalExpiry defers an expiry check for an unspent
// pre-approval.
func (s *Scheduler) SchedulePreApprovalExpiry(transactionID string, delay time.Duration) {
	s.schedule(delay, func() { s.expirePreApproved(context.Background(), transactionID, 0) })
}

// ScheduleReminder defers a reminder SMS for a pending approval.
func (s *Scheduler) ScheduleReminder(transactionID string, delay time.Duration) {
	s.schedule(delay, func() { s.sendReminder(context.Background(), transactionID) })
}

// expireIfPending moves a still-pending transaction to EXPIRED. Any other
// state means a human got there first, which is the expected outcome, not an
// error.
func (s *Scheduler) expireIfPending(ctx context.Context, id string, attempt int) {
	tx, err := s.trx.GetByID(ctx, id)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			slog.Warn("expiry check: transaction not found", "id", id)
			return
		}
		s.retryExpiry(id, attempt, err)
		return
	}
	if !tx.CustomerStatusIs(models.CustomerPendingApproval) {
		slog.Debug("expiry check: transaction already resolved", "id", id, "customer_status", tx.CustomerStatus)
		return
	}

	pending := models.CustomerPendingApproval
	expired := models.CustomerExpired
	now := time.Now().UTC()
	_, err = s.trx.UpdateWhere(ctx, id,
		repo.Expect{Customer: &pending},
		repo.Patch{CustomerStatus: &expired, ExpiredAt: &now})
	switch {
	case err == nil:
		metrics.TransactionsExpired.Inc()
		slog.Info("transaction expired", "id", id)
	case errs.Is(err, errs.KindConflict):
		slog.Debug("expiry lost race to a concurrent decision", "id", id)
	default:
		s.retryExpiry(id, attempt, err)
	}
}

func (s *Scheduler) retryExpiry(id string, attempt int, err error) {
	if attempt+1 >= maxRetries {
		slog.Error("expiry abandoned after repeated store failures", "id", id, "attempts", attempt+1, "err", err)
		return
	}
	slog.Error("expiry failed, rescheduling", "id", id, "attempt", attempt+1, "err", err)
	metrics.SchedulerRetries.Inc()
	s.schedule(retryDelay, func() { s.expireIfPending(context.Background(), id, attempt+1) })
}

// expirePreApproved expires a pre-approval that was never spent within its
// processing window.
func (s *Scheduler) expirePreApproved(ctx context.Context, id string, attempt int) {
	tx, err := s.trx.GetByID(ctx, id)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			slog.Warn("pre-approval expiry check: transaction not found", "id", id)
			return
		}
		s.retryPreApprovalExpiry(id, attempt, err)
		return
	}
	if !tx.PreApproved || !tx.CustomerStatusIs(models.CustomerApproved) || tx.PaymentStatus == models.PaymentPaid {
		slog.Debug("pre-approval expiry check: transaction already processed", "id", id)
		return
	}

	approved := models.CustomerApproved
	unpaid := models.PaymentUnpaid
	expired := models.CustomerExpired
	now := time.Now().UTC()
	_, err = s.trx.UpdateWhere(ctx, id,
		repo.Expect{Customer: &approved, Payment: &unpaid},
		repo.Patch{CustomerStatus: &expired, ExpiredAt: &now})
	switch {
	case err == nil:
		metrics.TransactionsExpired.Inc()
		slog.Info("pre-approved transaction expired", "id", id)
	case errs.Is(err, errs.KindConflict):
		slog.Debug("pre-approval expiry lost race to a payout", "id", id)
	default:
		s.retryPreApprovalExpiry(id, attempt, err)
	}
}

func (s *Scheduler) retryPreApprovalExpiry(id string, attempt int, err error) {
	if attempt+1 >= maxRetries {
		slog.Error("pre-approval expiry abandoned after repeated store failures", "id", id, "attempts", attempt+1, "err", err)
		return
	}
	slog.Error("pre-approval expiry failed, rescheduling", "id", id, "attempt", attempt+1, "err", err)
	metrics.SchedulerRetries.Inc()
	s.schedule(retryDelay, func() { s.expirePreApproved(context.Background(), id, attempt+1) })
}

// sendReminder resends the approval SMS to a still-pending customer. Once
// approval_reminder_frequency sends have happened the transaction is expired
// instead. A failed send is logged and abandoned; the expiry scheduled at
// the approval window still fires independently.
func (s *Scheduler) sendReminder(ctx context.Context, id string) {
	tx, err := s.trx.GetByID(ctx, id)
	if err != nil {
		slog.Warn("reminder check: could not load transaction", "id", id, "err", err)
		return
	}
	if !tx.CustomerStatusIs(models.CustomerPendingApproval) {
		slog.Debug("reminder check: transaction already resolved", "id", id)
		return
	}
	if tx.Msisdn == nil {
		slog.Warn("reminder check: transaction has no msisdn", "id", id)
		return
	}

	set, err := s.settings.Get(ctx)
	if err != nil {
		slog.Error("reminder check: settings unavailable", "id", id, "err", err)
		return
	}
	if tx.ApprovalRetries >= set.ApprovalReminderFrequency {
		slog.Info("reminders exhausted, expiring transaction", "id", id, "retries", tx.ApprovalRetries)
		s.expireIfPending(ctx, id, 0)
		return
	}

	if err := s.gateway.SendSMS(ctx, *tx.Msisdn, s.approvalSMS); err != nil {
		slog.Warn("reminder sms failed", "id", id, "msisdn", *tx.Msisdn, "err", err)
		metrics.NotificationsFailed.Inc()
		return
	}

	retries := tx.ApprovalRetries + 1
	if _, err := s.trx.Update(ctx, id, repo.Patch{ApprovalRetries: &retries}); err != nil {
		slog.Error("could not record reminder send", "id", id, "err", err)
		return
	}
	slog.Info("approval reminder sent", "id", id, "retries", retries)
	s.schedule(time.Duration(set.ApprovalReminderInterval)*time.Minute, func() { s.sendReminder(context.Background(), id) })
}

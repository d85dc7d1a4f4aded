package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/payprompt/payprompt-backend/internal/errs"
	"github.com/payprompt/payprompt-backend/internal/models"
	repo "github.com/payprompt/payprompt-backend/internal/repository"
	"github.com/payprompt/payprompt-backend/internal/worker"
)

type stubStore struct {
	mu  sync.Mutex
	txs map[string]models.Transaction
}

func newStubStore(txs ...models.Transaction) *stubStore {
	s := &stubStore{txs: make(map[string]models.Transaction)}
	for _, tx := range txs {
		s.txs[tx.ID] = tx
	}
	return s
}

func (s *stubStore) Create(_ context.Context, tx models.Transaction) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[tx.ID] = tx
	return tx, nil
}

func (s *stubStore) GetByID(_ context.Context, id string) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return models.Transaction{}, errs.NotFound("Transaction not found")
	}
	return tx, nil
}

func (s *stubStore) LatestForCheque(context.Context, string, string) (models.Transaction, error) {
	return models.Transaction{}, errs.NotFound("Transaction not found")
}

func (s *stubStore) ExistsBlocked(context.Context, string, string) (bool, error) { return false, nil }

func (s *stubStore) ExistsPreApproved(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *stubStore) UpdateWhere(_ context.Context, id string, expect repo.Expect, patch repo.Patch) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return models.Transaction{}, errs.NotFound("Transaction not found")
	}
	if expect.Customer != nil && !tx.CustomerStatusIs(*expect.Customer) {
		return models.Transaction{}, errs.Conflict("transaction status changed concurrently")
	}
	if expect.Payment != nil && tx.PaymentStatus != *expect.Payment {
		return models.Transaction{}, errs.Conflict("transaction status changed concurrently")
	}
	if patch.CustomerStatus != nil {
		tx.CustomerStatus = patch.CustomerStatus
	}
	if patch.ExpiredAt != nil {
		tx.ExpiredAt = patch.ExpiredAt
	}
	if patch.ApprovalRetries != nil {
		tx.ApprovalRetries = *patch.ApprovalRetries
	}
	s.txs[id] = tx
	return tx, nil
}

func (s *stubStore) Update(ctx context.Context, id string, patch repo.Patch) (models.Transaction, error) {
	return s.UpdateWhere(ctx, id, repo.Expect{}, patch)
}

func (s *stubStore) Find(context.Context, repo.Filter, int, int) ([]models.Transaction, repo.Nav, error) {
	return nil, repo.Nav{}, nil
}

type stubSettings struct{ s models.Settings }

func (f *stubSettings) Get(context.Context) (models.Settings, error) { return f.s, nil }
func (f *stubSettings) Update(_ context.Context, s models.Settings) (models.Settings, error) {
	return s, nil
}

type stubGateway struct {
	mu    sync.Mutex
	fail  bool
	sends int
}

func (g *stubGateway) SendSMS(context.Context, string, string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errs.External("Sending approval request to customer failed", nil)
	}
	g.sends++
	return nil
}

func (g *stubGateway) SendEmail(context.Context, []string, string, string) error { return nil }

func newTestScheduler(store *stubStore, gw *stubGateway) *Scheduler {
	pool := worker.NewPool(1)
	s := New(store, &stubSettings{s: models.DefaultSettings()}, gw, pool, "approve your cheque")
	return s
}

func pendingTx(id string) models.Transaction {
	pending := models.CustomerPendingApproval
	awaiting := models.BankPendingCustomerApproval
	msisdn := "233240000001"
	return models.Transaction{
		ID:             id,
		ChequeNumber:   "123456",
		AccountNumber:  "100200300400",
		Msisdn:         &msisdn,
		CustomerStatus: &pending,
		BankStatus:     &awaiting,
		PaymentStatus:  models.PaymentUnpaid,
	}
}

func TestExpireIfPending(t *testing.T) {
	store := newStubStore(pendingTx("tx-1"))
	s := newTestScheduler(store, &stubGateway{})
	defer s.Stop()

	s.expireIfPending(context.Background(), "tx-1", 0)

	tx, _ := store.GetByID(context.Background(), "tx-1")
	if !tx.CustomerStatusIs(models.CustomerExpired) {
		t.Fatalf("customer status = %v, want EXPIRED", tx.CustomerStatus)
	}
	if tx.ExpiredAt == nil {
		t.Fatalf("expired_at should be stamped")
	}
}

func TestExpireIfPendingIsNoOpWhenResolved(t *testing.T) {
	tx := pendingTx("tx-1")
	approved := models.CustomerApproved
	tx.CustomerStatus = &approved
	store := newStubStore(tx)
	s := newTestScheduler(store, &stubGateway{})
	defer s.Stop()

	s.expireIfPending(context.Background(), "tx-1", 0)

	after, _ := store.GetByID(context.Background(), "tx-1")
	if !after.CustomerStatusIs(models.CustomerApproved) {
		t.Fatalf("resolved transaction must not be expired, got %v", after.CustomerStatus)
	}
}

func TestExpirePreApproved(t *testing.T) {
	approved := models.CustomerApproved
	now := time.Now().UTC()
	store := newStubStore(models.Transaction{
		ID:                 "tx-1",
		ChequeNumber:       "123456",
		AccountNumber:      "100200300400",
		PreApproved:        true,
		CustomerStatus:     &approved,
		CustomerResponseAt: &now,
		PaymentStatus:      models.PaymentUnpaid,
	})
	s := newTestScheduler(store, &stubGateway{})
	defer s.Stop()

	s.expirePreApproved(context.Background(), "tx-1", 0)

	tx, _ := store.GetByID(context.Background(), "tx-1")
	if !tx.CustomerStatusIs(models.CustomerExpired) {
		t.Fatalf("unspent pre-approval should expire, got %v", tx.CustomerStatus)
	}
}

func TestExpirePreApprovedSkipsPaid(t *testing.T) {
	approved := models.CustomerApproved
	store := newStubStore(models.Transaction{
		ID:             "tx-1",
		PreApproved:    true,
		CustomerStatus: &approved,
		PaymentStatus:  models.PaymentPaid,
	})
	s := newTestScheduler(store, &stubGateway{})
	defer s.Stop()

	s.expirePreApproved(context.Background(), "tx-1", 0)

	tx, _ := store.GetByID(context.Background(), "tx-1")
	if !tx.CustomerStatusIs(models.CustomerApproved) {
		t.Fatalf("paid pre-approval must be left alone, got %v", tx.CustomerStatus)
	}
}

func TestSendReminderIncrementsRetries(t *testing.T) {
	store := newStubStore(pendingTx("tx-1"))
	gw := &stubGateway{}
	s := newTestScheduler(store, gw)
	defer s.Stop()

	s.sendReminder(context.Background(), "tx-1")

	tx, _ := store.GetByID(context.Background(), "tx-1")
	if tx.ApprovalRetries != 1 {
		t.Fatalf("approval retries = %d, want 1", tx.ApprovalRetries)
	}
	if gw.sends != 1 {
		t.Fatalf("sms sends = %d, want 1", gw.sends)
	}
	if !tx.CustomerStatusIs(models.CustomerPendingApproval) {
		t.Fatalf("a reminder must not change the status, got %v", tx.CustomerStatus)
	}
}

func TestSendReminderExpiresAfterExhaustion(t *testing.T) {
	tx := pendingTx("tx-1")
	tx.ApprovalRetries = models.DefaultSettings().ApprovalReminderFrequency
	store := newStubStore(tx)
	gw := &stubGateway{}
	s := newTestScheduler(store, gw)
	defer s.Stop()

	s.sendReminder(context.Background(), "tx-1")

	after, _ := store.GetByID(context.Background(), "tx-1")
	if !after.CustomerStatusIs(models.CustomerExpired) {
		t.Fatalf("exhausted reminders should expire the transaction, got %v", after.CustomerStatus)
	}
	if gw.sends != 0 {
		t.Fatalf("no sms should go out once the budget is spent")
	}
}

func TestSendReminderAbandonedOnGatewayFailure(t *testing.T) {
	store := newStubStore(pendingTx("tx-1"))
	gw := &stubGateway{fail: true}
	s := newTestScheduler(store, gw)
	defer s.Stop()

	s.sendReminder(context.Background(), "tx-1")

	tx, _ := store.GetByID(context.Background(), "tx-1")
	if tx.ApprovalRetries != 0 {
		t.Fatalf("failed send must not count as a reminder, retries = %d", tx.ApprovalRetries)
	}
	if !tx.CustomerStatusIs(models.CustomerPendingApproval) {
		t.Fatalf("status must be untouched on send failure, got %v", tx.CustomerStatus)
	}
}

func TestStopCancelsQueuedTimers(t *testing.T) {
	store := newStubStore(pendingTx("tx-1"))
	s := newTestScheduler(store, &stubGateway{})

	s.ScheduleExpiry("tx-1", time.Hour)
	s.ScheduleReminder("tx-1", time.Hour)
	s.Stop()

	s.mu.Lock()
	remaining := len(s.timers)
	s.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("timers left after Stop = %d", remaining)
	}

	tx, _ := store.GetByID(context.Background(), "tx-1")
	if !tx.CustomerStatusIs(models.CustomerPendingApproval) {
		t.Fatalf("cancelled timer must not have fired")
	}
}

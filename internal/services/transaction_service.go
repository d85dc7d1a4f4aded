package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/payprompt/payprompt-backend/internal/config"
	"github.com/payprompt/payprompt-backend/internal/errs"
	"github.com/payprompt/payprompt-backend/internal/metrics"
	"github.com/payprompt/payprompt-backend/internal/models"
	"github.com/payprompt/payprompt-backend/internal/notify"
	repo "github.com/payprompt/payprompt-backend/internal/repository"
)

// Trigger schedules the deferred expiry/reminder checks. Fire-and-forget,
// at-least-once; the fired task re-checks state before acting.
type Trigger interface {
	ScheduleExpiry(transactionID string, delay time.Duration)
	SchedulePreApprovalExpiry(transactionID string, delay time.Duration)
	ScheduleReminder(transactionID string, delay time.Duration)
}

// TransactionService owns every status-field write. All transitions go
// through the store's conditional update so a racing writer loses cleanly
// instead of clobbering a resolved record.
type TransactionService struct {
	trx      repo.Transactions
	settings repo.Settings
	audit    repo.AuditLogs
	gateway  notify.Gateway
	trigger  Trigger
	cfg      config.Config
}

func NewTransactionService(t repo.Transactions, s repo.Settings, a repo.AuditLogs, g notify.Gateway, tr Trigger, cfg config.Config) *TransactionService {
	return &TransactionService{trx: t, settings: s, audit: a, gateway: g, trigger: tr, cfg: cfg}
}

// ----------------- Inputs -----------------

type InitiateInput struct {
	ChequeNumber  string
	AccountNumber string
	PayeeName     string
	Currency      string
	Amount        string
	Reference     string
	InitiatedBy   string
	Institution   string
	Branch        string
}

type PreApproveInput struct {
	ChequeNumber  string
	AccountNumber string
	Currency      string
	Amount        string
	Msisdn        string
}

type CompleteInitiationInput struct {
	CustomerName       string
	Msisdn             string
	Balance            string
	Mandate            string
	ChequeInstructions string
}

// ----------------- Helpers -----------------

func (s *TransactionService) logAudit(ctx context.Context, entityID, action string, details map[string]any) {
	if err := s.audit.Create(ctx, models.AuditLog{
		EntityType: "transaction",
		EntityID:   &entityID,
		Action:     action,
		Details:    details,
	}); err != nil {
		slog.Warn("audit write failed", "transaction", entityID, "action", action, "err", err)
	}
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, errs.Validation("Amount should be a decimal")
	}
	return d.Round(models.AmountPrecision), nil
}

func validateChequeCode(chequeNumber, accountNumber string) error {
	if !models.ValidChequeNumber(chequeNumber) {
		return errs.Validation("Cheque number should have exactly 6 digits")
	}
	if !models.ValidAccountNumber(accountNumber) {
		return errs.Validation("Account number should have between 9 to 13 digits")
	}
	return nil
}

// checkResubmittable rejects cheques whose code is blocked or whose most
// recent attempt is still live.
func (s *TransactionService) checkResubmittable(ctx context.Context, chequeNumber, accountNumber string) error {
	blocked, err := s.trx.ExistsBlocked(ctx, chequeNumber, accountNumber)
	if err != nil {
		return err
	}
	if blocked {
		return errs.Precondition("This cheque cannot be resubmitted")
	}

	last, err := s.trx.LatestForCheque(ctx, chequeNumber, accountNumber)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return nil // first presentation of this cheque
		}
		return err
	}
	if last.PreApproved {
		return nil
	}
	switch {
	case last.Uninitiated():
		return errs.Precondition("Transaction has been initiated already")
	case last.CustomerStatusIs(models.CustomerPendingApproval):
		return errs.Precondition("Transaction is pending customer approval")
	case last.BankStatusIs(models.BankPendingBankApproval):
		return errs.Precondition("Transaction is pending bank approval")
	}
	return nil
}

// ----------------- Entry paths -----------------

// Initiate captures cheque details and creates the record with both status
// tracks empty. The customer is engaged later by CompleteInitiation.
func (s *TransactionService) Initiate(ctx context.Context, in InitiateInput) (models.Transaction, error) {
	if err := validateChequeCode(in.ChequeNumber, in.AccountNumber); err != nil {
		return models.Transaction{}, err
	}
	amount, err := parseAmount(in.Amount)
	if err != nil {
		return models.Transaction{}, err
	}
	if err := s.checkResubmittable(ctx, in.ChequeNumber, in.AccountNumber); err != nil {
		return models.Transaction{}, err
	}

	now := time.Now().UTC()
	tx := models.Transaction{
		ChequeNumber:     in.ChequeNumber,
		AccountNumber:    in.AccountNumber,
		PayeeName:        in.PayeeName,
		Currency:         in.Currency,
		Amount:           amount,
		Reference:        in.Reference,
		PaymentStatus:    models.PaymentUnpaid,
		ResubmissionFlag: true,
		InitiatedBy:      &in.InitiatedBy,
		InitiatedAt:      &now,
	}
	if in.Institution != "" {
		tx.Institution = &in.Institution
	}
	if in.Branch != "" {
		tx.ProcessedBranch = &in.Branch
	}

	created, err := s.trx.Create(ctx, tx)
	if err != nil {
		metrics.TransactionsFailed.Inc()
		return models.Transaction{}, err
	}
	s.logAudit(ctx, created.ID, "initiated", map[string]any{"cheque_code": created.ChequeCode(), "by": in.InitiatedBy})
	metrics.TransactionsTotal.WithLabelValues("initiate").Inc()
	slog.Info("transaction initiated", "id", created.ID, "cheque_code", created.ChequeCode())
	return created, nil
}

// PreApprove is the alternate entry path where the customer's consent is
// captured up front, skipping the SMS round trip.
func (s *TransactionService) PreApprove(ctx context.Context, in PreApproveInput) (models.Transaction, error) {
	if err := validateChequeCode(in.ChequeNumber, in.AccountNumber); err != nil {
		return models.Transaction{}, err
	}
	amount, err := parseAmount(in.Amount)
	if err != nil {
		return models.Transaction{}, err
	}

	preApproved, err := s.trx.ExistsPreApproved(ctx, in.ChequeNumber, in.AccountNumber)
	if err != nil {
		return models.Transaction{}, err
	}
	if preApproved {
		return models.Transaction{}, errs.Precondition("This cheque has been pre-approved already")
	}
	if err := s.checkResubmittable(ctx, in.ChequeNumber, in.AccountNumber); err != nil {
		return models.Transaction{}, err
	}

	now := time.Now().UTC()
	approved := models.CustomerApproved
	tx := models.Transaction{
		ChequeNumber:       in.ChequeNumber,
		AccountNumber:      in.AccountNumber,
		Currency:           in.Currency,
		Amount:             amount,
		PaymentStatus:      models.PaymentUnpaid,
		ResubmissionFlag:   true,
		PreApproved:        true,
		CustomerStatus:     &approved,
		CustomerResponseAt: &now,
	}
	if in.Msisdn != "" {
		tx.Msisdn = &in.Msisdn
	}

	created, err := s.trx.Create(ctx, tx)
	if err != nil {
		metrics.TransactionsFailed.Inc()
		return models.Transaction{}, err
	}
	s.logAudit(ctx, created.ID, "pre_approved", map[string]any{"cheque_code": created.ChequeCode()})
	metrics.TransactionsTotal.WithLabelValues("pre_approve").Inc()

	if set, serr := s.settings.Get(ctx); serr == nil {
		s.trigger.SchedulePreApprovalExpiry(created.ID, time.Duration(set.PreApprovalExpiryHours)*time.Hour)
	} else {
		slog.Error("settings unavailable, pre-approval expiry not scheduled", "id", created.ID, "err", serr)
	}
	return created, nil
}

// ----------------- Initiation completion -----------------

// CompleteInitiation attaches the account holder's details and contacts them
// for approval. A failed SMS send leaves the record at INITIATED; the
// operator retries via RequestApproval.
func (s *TransactionService) CompleteInitiation(ctx context.Context, id string, in CompleteInitiationInput) (models.Transaction, error) {
	if !models.ValidMsisdn(in.Msisdn) {
		return models.Transaction{}, errs.Validation("Msisdn should be of long format")
	}
	balance, err := decimal.NewFromString(in.Balance)
	if err != nil {
		return models.Transaction{}, errs.Validation("Balance should be a decimal")
	}
	balance = balance.Round(models.AmountPrecision)

	tx, err := s.trx.GetByID(ctx, id)
	if err != nil {
		return models.Transaction{}, err
	}
	if !tx.Uninitiated() {
		return models.Transaction{}, errs.Precondition("Transaction has been completely initiated")
	}

	initiated := models.BankInitiated
	tx, err = s.trx.UpdateWhere(ctx, id,
		repo.Expect{CustomerNull: true, BankNull: true},
		repo.Patch{
			Msisdn:             &in.Msisdn,
			CustomerName:       &in.CustomerName,
			Balance:            &balance,
			Mandate:            &in.Mandate,
			ChequeInstructions: &in.ChequeInstructions,
			BankStatus:         &initiated,
		})
	if err != nil {
		if errs.Is(err, errs.KindConflict) {
			return models.Transaction{}, errs.Precondition("Transaction has been completely initiated")
		}
		return models.Transaction{}, err
	}
	s.logAudit(ctx, id, "initiation_completed", map[string]any{"msisdn": in.Msisdn})

	if err := s.gateway.SendSMS(ctx, in.Msisdn, s.cfg.ApprovalSMS); err != nil {
		// Recoverable: the record stays at INITIATED for a manual retry.
		slog.Warn("approval sms failed, transaction held at INITIATED", "id", id, "err", err)
		metrics.NotificationsFailed.Inc()
		return models.Transaction{}, errs.External("Sending approval request to customer failed", err)
	}

	return s.markPendingApproval(ctx, id, repo.Expect{CustomerNull: true, Bank: &initiated})
}

// RequestApproval retries customer engagement for a transaction stuck at
// INITIATED after a failed send. Statuses advance first; a failed resend is
// tolerated because the reminder task can repeat it.
func (s *TransactionService) RequestApproval(ctx context.Context, id string) (models.Transaction, error) {
	tx, err := s.trx.GetByID(ctx, id)
	if err != nil {
		return models.Transaction{}, err
	}
	if tx.CustomerStatus != nil || !tx.BankStatusIs(models.BankInitiated) {
		return models.Transaction{}, errs.Precondition("Transaction not pending approval request")
	}

	initiated := models.BankInitiated
	updated, err := s.markPendingApprovalNoSMS(ctx, id, repo.Expect{CustomerNull: true, Bank: &initiated})
	if err != nil {
		return models.Transaction{}, err
	}

	if tx.Msisdn == nil {
		slog.Warn("transaction has no msisdn, approval sms skipped", "id", id)
		return updated, nil
	}
	if err := s.gateway.SendSMS(ctx, *tx.Msisdn, s.cfg.ApprovalSMS); err != nil {
		slog.Warn("approval sms resend failed", "id", id, "err", err)
		metrics.NotificationsFailed.Inc()
		return updated, nil
	}
	sent := true
	if updated, err = s.trx.Update(ctx, id, repo.Patch{ApprovalSMSSent: &sent}); err != nil {
		slog.Warn("could not flag approval sms as sent", "id", id, "err", err)
	}
	return updated, nil
}

// markPendingApproval flags the SMS as sent and advances both tracks.
func (s *TransactionService) markPendingApproval(ctx context.Context, id string, expect repo.Expect) (models.Transaction, error) {
	pending := models.CustomerPendingApproval
	awaiting := models.BankPendingCustomerApproval
	sent := true
	updated, err := s.trx.UpdateWhere(ctx, id, expect, repo.Patch{
		CustomerStatus:  &pending,
		BankStatus:      &awaiting,
		ApprovalSMSSent: &sent,
	})
	if err != nil {
		return models.Transaction{}, err
	}
	s.afterApprovalRequested(ctx, id)
	return updated, nil
}

func (s *TransactionService) markPendingApprovalNoSMS(ctx context.Context, id string, expect repo.Expect) (models.Transaction, error) {
	pending := models.CustomerPendingApproval
	awaiting := models.BankPendingCustomerApproval
	updated, err := s.trx.UpdateWhere(ctx, id, expect, repo.Patch{
		CustomerStatus: &pending,
		BankStatus:     &awaiting,
	})
	if err != nil {
		return models.Transaction{}, err
	}
	s.afterApprovalRequested(ctx, id)
	return updated, nil
}

func (s *TransactionService) afterApprovalRequested(ctx context.Context, id string) {
	s.logAudit(ctx, id, "approval_requested", nil)
	metrics.TransactionsTotal.WithLabelValues("request_approval").Inc()
	set, err := s.settings.Get(ctx)
	if err != nil {
		slog.Error("settings unavailable, expiry not scheduled", "id", id, "err", err)
		return
	}
	s.trigger.ScheduleExpiry(id, time.Duration(set.ApprovalExpiryHours)*time.Hour)
	s.trigger.ScheduleReminder(id, time.Duration(set.ApprovalReminderInterval)*time.Minute)
}

// ----------------- Customer decision -----------------

// CustomerDecide records the account holder's approval or decline. Only
// accepted from (PENDING_APPROVAL, PENDING_CUSTOMER_APPROVAL); the
// conditional update decides any race with an expiry firing at the same
// moment.
func (s *TransactionService) CustomerDecide(ctx context.Context, id string, decision models.CustomerStatus, comment string) (models.Transaction, error) {
	if decision != models.CustomerApproved && decision != models.CustomerDeclined {
		return models.Transaction{}, errs.Validation("Invalid approval status")
	}

	tx, err := s.trx.GetByID(ctx, id)
	if err != nil {
		return models.Transaction{}, err
	}
	if !tx.CustomerStatusIs(models.CustomerPendingApproval) || !tx.BankStatusIs(models.BankPendingCustomerApproval) {
		return models.Transaction{}, customerDecideRejection(tx)
	}

	pending := models.CustomerPendingApproval
	awaitingCustomer := models.BankPendingCustomerApproval
	bankReview := models.BankPendingBankApproval
	now := time.Now().UTC()
	updated, err := s.trx.UpdateWhere(ctx, id,
		repo.Expect{Customer: &pending, Bank: &awaitingCustomer},
		repo.Patch{
			CustomerStatus:     &decision,
			BankStatus:         &bankReview,
			CustomerRemarks:    &comment,
			CustomerResponseAt: &now,
		})
	if err != nil {
		if errs.Is(err, errs.KindConflict) {
			// Lost the race; report the state the winner left behind.
			if tx, gerr := s.trx.GetByID(ctx, id); gerr == nil {
				return models.Transaction{}, customerDecideRejection(tx)
			}
			return models.Transaction{}, err
		}
		metrics.TransactionsFailed.Inc()
		return models.Transaction{}, err
	}
	s.logAudit(ctx, id, "customer_decision", map[string]any{"decision": decision, "comment": comment})
	metrics.TransactionsTotal.WithLabelValues("customer_decide").Inc()
	slog.Info("customer decision recorded", "id", id, "decision", decision)
	return updated, nil
}

func customerDecideRejection(tx models.Transaction) error {
	switch {
	case tx.CustomerStatusIs(models.CustomerApproved):
		return errs.Precondition("Transaction has been approved already")
	case tx.CustomerStatusIs(models.CustomerDeclined):
		return errs.Precondition("Transaction has been declined already")
	default:
		return errs.Precondition("Transaction not pending customer approval")
	}
}

// ----------------- Bank decisions -----------------

// BankUpdate posts the bank's review outcome once the customer has approved.
// Beyond enum membership the new bank status is caller-supplied.
func (s *TransactionService) BankUpdate(ctx context.Context, id string, status models.BankStatus, comment, actor string) (models.Transaction, error) {
	if !status.Valid() {
		return models.Transaction{}, errs.Validation("Invalid bank status")
	}

	tx, err := s.trx.GetByID(ctx, id)
	if err != nil {
		return models.Transaction{}, err
	}
	if !tx.CustomerStatusIs(models.CustomerApproved) {
		return models.Transaction{}, errs.Precondition("Transaction not approved by customer")
	}

	approved := models.CustomerApproved
	updated, err := s.trx.UpdateWhere(ctx, id,
		repo.Expect{Customer: &approved},
		repo.Patch{
			BankStatus:  &status,
			BankRemarks: &comment,
			ApprovedBy:  &actor,
		})
	if err != nil {
		if errs.Is(err, errs.KindConflict) {
			return models.Transaction{}, errs.Precondition("Transaction not approved by customer")
		}
		metrics.TransactionsFailed.Inc()
		return models.Transaction{}, err
	}
	s.logAudit(ctx, id, "bank_update", map[string]any{"bank_status": status, "comment": comment, "by": actor})
	metrics.TransactionsTotal.WithLabelValues("bank_update").Inc()
	return updated, nil
}

// ConfirmPayout is the terminal success transition: the cheque is paid out
// and its code blocked from resubmission.
func (s *TransactionService) ConfirmPayout(ctx context.Context, id string, payoutType models.PayoutType, actor string) (models.Transaction, error) {
	if !payoutType.Valid() {
		return models.Transaction{}, errs.Validation("Invalid payout type")
	}

	tx, err := s.trx.GetByID(ctx, id)
	if err != nil {
		return models.Transaction{}, err
	}
	if !tx.CustomerStatusIs(models.CustomerApproved) {
		return models.Transaction{}, errs.Precondition("Transaction not approved by customer")
	}
	if !tx.BankStatusIs(models.BankPendingPaymentApproval) {
		return models.Transaction{}, errs.Precondition("Transaction not pending payment approval")
	}

	approved := models.CustomerApproved
	pendingPayment := models.BankPendingPaymentApproval
	completed := models.BankCompleted
	paid := models.PaymentPaid
	blocked := false
	updated, err := s.trx.UpdateWhere(ctx, id,
		repo.Expect{Customer: &approved, Bank: &pendingPayment},
		repo.Patch{
			BankStatus:       &completed,
			PaymentStatus:    &paid,
			ResubmissionFlag: &blocked,
			PayoutType:       &payoutType,
			PaidBy:           &actor,
		})
	if err != nil {
		if errs.Is(err, errs.KindConflict) {
			return models.Transaction{}, errs.Precondition("Transaction not pending payment approval")
		}
		metrics.TransactionsFailed.Inc()
		return models.Transaction{}, err
	}
	s.logAudit(ctx, id, "payout_confirmed", map[string]any{"payout_type": payoutType, "by": actor})
	metrics.TransactionsTotal.WithLabelValues("confirm_payout").Inc()
	slog.Info("payout completed", "id", id, "payout_type", payoutType)

	if s.cfg.OpsEmail != "" {
		body := "Cheque " + updated.ChequeCode() + " paid out via " + string(payoutType) + " by " + actor
		if err := s.gateway.SendEmail(ctx, []string{s.cfg.OpsEmail}, "Cheque payout completed", body); err != nil {
			slog.Warn("ops payout email failed", "id", id, "err", err)
			metrics.NotificationsFailed.Inc()
		}
	}
	return updated, nil
}

// ----------------- Queries -----------------

func (s *TransactionService) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	return s.trx.GetByID(ctx, id)
}

func (s *TransactionService) PendingForAccount(ctx context.Context, accountNumber string, page, size int) ([]models.Transaction, repo.Nav, error) {
	if !models.ValidAccountNumber(accountNumber) {
		return nil, repo.Nav{}, errs.Validation("Account number should have between 9 to 13 digits")
	}
	pre := false
	pending := models.CustomerPendingApproval
	unpaid := models.PaymentUnpaid
	return s.trx.Find(ctx, repo.Filter{
		AccountNumber:  accountNumber,
		PreApproved:    &pre,
		CustomerStatus: &pending,
		PaymentStatus:  &unpaid,
	}, page, size)
}

func (s *TransactionService) PendingForMsisdn(ctx context.Context, msisdn string, page, size int) ([]models.Transaction, repo.Nav, error) {
	if !models.ValidMsisdn(msisdn) {
		return nil, repo.Nav{}, errs.Validation("Msisdn should be of long format")
	}
	pre := false
	pending := models.CustomerPendingApproval
	unpaid := models.PaymentUnpaid
	return s.trx.Find(ctx, repo.Filter{
		Msisdn:         msisdn,
		PreApproved:    &pre,
		CustomerStatus: &pending,
		PaymentStatus:  &unpaid,
	}, page, size)
}

func (s *TransactionService) ChequeHistory(ctx context.Context, accountNumber, chequeNumber string, page, size int) ([]models.Transaction, repo.Nav, error) {
	if err := validateChequeCode(chequeNumber, accountNumber); err != nil {
		return nil, repo.Nav{}, err
	}
	return s.trx.Find(ctx, repo.Filter{ChequeNumber: chequeNumber, AccountNumber: accountNumber}, page, size)
}

func (s *TransactionService) HistoryForMsisdn(ctx context.Context, msisdn string, page, size int) ([]models.Transaction, repo.Nav, error) {
	if !models.ValidMsisdn(msisdn) {
		return nil, repo.Nav{}, errs.Validation("Msisdn should be of long format")
	}
	return s.trx.Find(ctx, repo.Filter{Msisdn: msisdn}, page, size)
}

// PreApprovedPending lists unspent pre-approvals, optionally narrowed by the
// caller's filter.
func (s *TransactionService) PreApprovedPending(ctx context.Context, f repo.Filter, page, size int) ([]models.Transaction, repo.Nav, error) {
	pre := true
	approved := models.CustomerApproved
	unpaid := models.PaymentUnpaid
	f.PreApproved = &pre
	f.CustomerStatus = &approved
	f.PaymentStatus = &unpaid
	return s.trx.Find(ctx, f, page, size)
}

// CustomerApproved lists approved-but-unpaid transactions for a branch.
func (s *TransactionService) CustomerApproved(ctx context.Context, institution, branch string, f repo.Filter, page, size int) ([]models.Transaction, repo.Nav, error) {
	approved := models.CustomerApproved
	unpaid := models.PaymentUnpaid
	f.Institution = institution
	f.Branch = branch
	f.CustomerStatus = &approved
	f.PaymentStatus = &unpaid
	return s.trx.Find(ctx, f, page, size)
}

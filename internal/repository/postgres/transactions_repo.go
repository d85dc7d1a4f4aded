package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payprompt/payprompt-backend/internal/errs"
	"github.com/payprompt/payprompt-backend/internal/models"
	repo "github.com/payprompt/payprompt-backend/internal/repository"
)

type transactionsRepo struct{ pool *pgxpool.Pool }

const txColumns = `id, cheque_number, account_number, reference, currency, amount,
 msisdn, payee_name, customer_name, balance, mandate, cheque_instructions,
 institution, processed_branch, pre_approved, approval_sms_sent, approval_retries,
 customer_status, customer_remarks, bank_status, bank_remarks, payment_status,
 cheque_resubmission_flag, payout_type, initiated_by, approved_by, paid_by,
 initiated_at, customer_response_at, expired_at, created_at, modified_at`

func scanTx(row pgx.Row) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.ChequeNumber, &t.AccountNumber, &t.Reference, &t.Currency, &t.Amount,
		&t.Msisdn, &t.PayeeName, &t.CustomerName, &t.Balance, &t.Mandate, &t.ChequeInstructions,
		&t.Institution, &t.ProcessedBranch, &t.PreApproved, &t.ApprovalSMSSent, &t.ApprovalRetries,
		&t.CustomerStatus, &t.CustomerRemarks, &t.BankStatus, &t.BankRemarks, &t.PaymentStatus,
		&t.ResubmissionFlag, &t.PayoutType, &t.InitiatedBy, &t.ApprovedBy, &t.PaidBy,
		&t.InitiatedAt, &t.CustomerResponseAt, &t.ExpiredAt, &t.CreatedAt, &t.ModifiedAt,
	)
	return t, err
}

func (r *transactionsRepo) Create(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	const q = `
INSERT INTO transactions (
  id, cheque_number, account_number, reference, currency, amount,
  msisdn, payee_name, customer_name, balance, mandate, cheque_instructions,
  institution, processed_branch, pre_approved, approval_sms_sent, approval_retries,
  customer_status, customer_remarks, bank_status, bank_remarks, payment_status,
  cheque_resubmission_flag, payout_type, initiated_by, approved_by, paid_by,
  initiated_at, customer_response_at, expired_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
          $21,$22,$23,$24,$25,$26,$27,$28,$29,$30)
RETURNING ` + txColumns
	row := r.pool.QueryRow(ctx, q,
		tx.ID, tx.ChequeNumber, tx.AccountNumber, tx.Reference, tx.Currency, tx.Amount,
		tx.Msisdn, tx.PayeeName, tx.CustomerName, tx.Balance, tx.Mandate, tx.ChequeInstructions,
		tx.Institution, tx.ProcessedBranch, tx.PreApproved, tx.ApprovalSMSSent, tx.ApprovalRetries,
		tx.CustomerStatus, tx.CustomerRemarks, tx.BankStatus, tx.BankRemarks, tx.PaymentStatus,
		tx.ResubmissionFlag, tx.PayoutType, tx.InitiatedBy, tx.ApprovedBy, tx.PaidBy,
		tx.InitiatedAt, tx.CustomerResponseAt, tx.ExpiredAt,
	)
	out, err := scanTx(row)
	if err != nil {
		return models.Transaction{}, errs.Server("could not create transaction", err)
	}
	return out, nil
}

func (r *transactionsRepo) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id=$1`, id)
	t, err := scanTx(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Transaction{}, errs.NotFound("Transaction not found")
		}
		return models.Transaction{}, errs.Server("could not load transaction", err)
	}
	return t, nil
}

func (r *transactionsRepo) LatestForCheque(ctx context.Context, chequeNumber, accountNumber string) (models.Transaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions
		  WHERE cheque_number=$1 AND account_number=$2
		  ORDER BY created_at DESC LIMIT 1`,
		chequeNumber, accountNumber,
	)
	t, err := scanTx(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Transaction{}, errs.NotFound("Transaction not found")
		}
		return models.Transaction{}, errs.Server("could not load transaction", err)
	}
	return t, nil
}

func (r *transactionsRepo) ExistsBlocked(ctx context.Context, chequeNumber, accountNumber string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM transactions
		  WHERE cheque_number=$1 AND account_number=$2 AND cheque_resubmission_flag=false)`,
		chequeNumber, accountNumber,
	).Scan(&exists)
	if err != nil {
		return false, errs.Server("could not check resubmission flag", err)
	}
	return exists, nil
}

func (r *transactionsRepo) ExistsPreApproved(ctx context.Context, chequeNumber, accountNumber string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM transactions
		  WHERE cheque_number=$1 AND account_number=$2 AND pre_approved=true)`,
		chequeNumber, accountNumber,
	).Scan(&exists)
	if err != nil {
		return false, errs.Server("could not check pre-approval", err)
	}
	return exists, nil
}

// UpdateWhere is the single-statement compare-and-set closing the race
// between a scheduler firing and a concurrent human action. The WHERE clause
// re-checks the expected statuses; zero rows with an existing id means the
// row moved on and the caller lost.
func (r *transactionsRepo) UpdateWhere(ctx context.Context, id string, expect repo.Expect, patch repo.Patch) (models.Transaction, error) {
	set, args := buildSet(patch)
	args = append(args, id)
	where := []string{fmt.Sprintf("id=$%d", len(args))}

	if expect.CustomerNull {
		where = append(where, "customer_status IS NULL")
	} else if expect.Customer != nil {
		args = append(args, *expect.Customer)
		where = append(where, fmt.Sprintf("customer_status=$%d", len(args)))
	}
	if expect.BankNull {
		where = append(where, "bank_status IS NULL")
	} else if expect.Bank != nil {
		args = append(args, *expect.Bank)
		where = append(where, fmt.Sprintf("bank_status=$%d", len(args)))
	}
	if expect.Payment != nil {
		args = append(args, *expect.Payment)
		where = append(where, fmt.Sprintf("payment_status=$%d", len(args)))
	}

	q := `UPDATE transactions SET ` + strings.Join(set, ", ") +
		` WHERE ` + strings.Join(where, " AND ") +
		` RETURNING ` + txColumns
	t, err := scanTx(r.pool.QueryRow(ctx, q, args...))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, errs.Server("could not update transaction", err)
	}

	// No row matched: either the id is unknown or the status check failed.
	if _, gerr := r.GetByID(ctx, id); gerr != nil {
		return models.Transaction{}, gerr
	}
	return models.Transaction{}, errs.Conflict("transaction status changed concurrently")
}

func (r *transactionsRepo) Update(ctx context.Context, id string, patch repo.Patch) (models.Transaction, error) {
	return r.UpdateWhere(ctx, id, repo.Expect{}, patch)
}

func buildSet(p repo.Patch) ([]string, []any) {
	set := []string{"modified_at=now()"}
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s=$%d", col, len(args)))
	}

	if p.Msisdn != nil {
		add("msisdn", *p.Msisdn)
	}
	if p.CustomerName != nil {
		add("customer_name", *p.CustomerName)
	}
	if p.Balance != nil {
		add("balance", *p.Balance)
	}
	if p.Mandate != nil {
		add("mandate", *p.Mandate)
	}
	if p.ChequeInstructions != nil {
		add("cheque_instructions", *p.ChequeInstructions)
	}
	if p.ApprovalSMSSent != nil {
		add("approval_sms_sent", *p.ApprovalSMSSent)
	}
	if p.ApprovalRetries != nil {
		add("approval_retries", *p.ApprovalRetries)
	}
	if p.CustomerStatus != nil {
		add("customer_status", *p.CustomerStatus)
	}
	if p.CustomerRemarks != nil {
		add("customer_remarks", *p.CustomerRemarks)
	}
	if p.BankStatus != nil {
		add("bank_status", *p.BankStatus)
	}
	if p.BankRemarks != nil {
		add("bank_remarks", *p.BankRemarks)
	}
	if p.PaymentStatus != nil {
		add("payment_status", *p.PaymentStatus)
	}
	if p.ResubmissionFlag != nil {
		add("cheque_resubmission_flag", *p.ResubmissionFlag)
	}
	if p.PayoutType != nil {
		add("payout_type", *p.PayoutType)
	}
	if p.ApprovedBy != nil {
		add("approved_by", *p.ApprovedBy)
	}
	if p.PaidBy != nil {
		add("paid_by", *p.PaidBy)
	}
	if p.CustomerResponseAt != nil {
		add("customer_response_at", *p.CustomerResponseAt)
	}
	if p.ExpiredAt != nil {
		add("expired_at", *p.ExpiredAt)
	}
	return set, args
}

func (r *transactionsRepo) Find(ctx context.Context, f repo.Filter, page, size int) ([]models.Transaction, repo.Nav, error) {
	where, args := buildFilter(f)
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM transactions`+cond, args...).Scan(&total); err != nil {
		return nil, repo.Nav{}, errs.Server("could not count transactions", err)
	}

	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	args = append(args, size, (page-1)*size)
	q := `SELECT ` + txColumns + ` FROM transactions` + cond +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, repo.Nav{}, errs.Server("could not find transactions", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, repo.Nav{}, errs.Server("could not scan transaction", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, repo.Nav{}, errs.Server("could not read transactions", err)
	}

	return out, buildNav(page, size, total), nil
}

func buildFilter(f repo.Filter) ([]string, []any) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.ChequeNumber != "" {
		add("cheque_number=$%d", f.ChequeNumber)
	}
	if f.AccountNumber != "" {
		add("account_number=$%d", f.AccountNumber)
	}
	if f.Msisdn != "" {
		add("msisdn=$%d", f.Msisdn)
	}
	if f.Institution != "" {
		add("institution=$%d", f.Institution)
	}
	if f.Branch != "" {
		add("processed_branch=$%d", f.Branch)
	}
	if f.PreApproved != nil {
		add("pre_approved=$%d", *f.PreApproved)
	}
	if f.CustomerStatus != nil {
		add("customer_status=$%d", *f.CustomerStatus)
	}
	if f.BankStatus != nil {
		add("bank_status=$%d", *f.BankStatus)
	}
	if f.PaymentStatus != nil {
		add("payment_status=$%d", *f.PaymentStatus)
	}
	if f.StartDate != nil {
		add("created_at >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		// end date is inclusive of the whole day
		add("created_at < $%d", f.EndDate.AddDate(0, 0, 1))
	}
	return where, args
}

func buildNav(page, size, total int) repo.Nav {
	pages := (total + size - 1) / size
	nav := repo.Nav{
		CurrentPage:  page,
		TotalPages:   pages,
		TotalRecords: total,
		Size:         size,
	}
	if page < pages {
		n := page + 1
		nav.NextPage = &n
	}
	if page > 1 {
		p := page - 1
		nav.PrevPage = &p
	}
	return nav
}

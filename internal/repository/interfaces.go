package repository

import (
	"context"
	"time"

	"github.com/payprompt/payprompt-backend/internal/models"
	"github.com/shopspring/decimal"
)

// Expect describes the status a transaction row must currently hold for a
// conditional update to apply. A nil Customer/Bank with the matching Null
// flag unset means the column is not checked at all; the Null flags require
// the column to be NULL.
type Expect struct {
	Customer     *models.CustomerStatus
	CustomerNull bool
	Bank         *models.BankStatus
	BankNull     bool
	Payment      *models.PaymentStatus
}

// Patch carries the fields a transition writes. Nil fields are left
// untouched. modified_at is always stamped by the store.
type Patch struct {
	Msisdn             *string
	CustomerName       *string
	Balance            *decimal.Decimal
	Mandate            *string
	ChequeInstructions *string

	ApprovalSMSSent *bool
	ApprovalRetries *int

	CustomerStatus  *models.CustomerStatus
	CustomerRemarks *string
	BankStatus      *models.BankStatus
	BankRemarks     *string
	PaymentStatus   *models.PaymentStatus

	ResubmissionFlag *bool
	PayoutType       *models.PayoutType

	ApprovedBy *string
	PaidBy     *string

	CustomerResponseAt *time.Time
	ExpiredAt          *time.Time
}

// Filter narrows transaction queries. Zero values are ignored.
type Filter struct {
	ChequeNumber  string
	AccountNumber string
	Msisdn        string
	Institution   string
	Branch        string

	PreApproved    *bool
	CustomerStatus *models.CustomerStatus
	BankStatus     *models.BankStatus
	PaymentStatus  *models.PaymentStatus

	StartDate *time.Time
	EndDate   *time.Time
}

// Nav is the pagination envelope the original portal expects.
type Nav struct {
	CurrentPage  int  `json:"current_page"`
	NextPage     *int `json:"next_page"`
	PrevPage     *int `json:"prev_page"`
	TotalPages   int  `json:"total_pages"`
	TotalRecords int  `json:"total_records"`
	Size         int  `json:"size"`
}

type Transactions interface {
	Create(ctx context.Context, tx models.Transaction) (models.Transaction, error)
	GetByID(ctx context.Context, id string) (models.Transaction, error)

	// LatestForCheque returns the newest record for a cheque code, or a
	// not-found error when the cheque has never been presented.
	LatestForCheque(ctx context.Context, chequeNumber, accountNumber string) (models.Transaction, error)

	// ExistsBlocked reports whether any record for the cheque code carries
	// cheque_resubmission_flag=false.
	ExistsBlocked(ctx context.Context, chequeNumber, accountNumber string) (bool, error)

	// ExistsPreApproved reports whether a pre-approval record exists for the
	// cheque code.
	ExistsPreApproved(ctx context.Context, chequeNumber, accountNumber string) (bool, error)

	// UpdateWhere applies patch only while the row still matches expect and
	// returns the updated record. A row that exists but no longer matches
	// yields a conflict error; the caller re-reads and reports the resolved
	// state.
	UpdateWhere(ctx context.Context, id string, expect Expect, patch Patch) (models.Transaction, error)

	// Update applies patch unconditionally (detail fields only; status
	// transitions go through UpdateWhere).
	Update(ctx context.Context, id string, patch Patch) (models.Transaction, error)

	Find(ctx context.Context, f Filter, page, size int) ([]models.Transaction, Nav, error)
}

type Settings interface {
	// Get returns the configured policy, or defaults when none is stored.
	Get(ctx context.Context) (models.Settings, error)
	Update(ctx context.Context, s models.Settings) (models.Settings, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}

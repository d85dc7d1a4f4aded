package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountPrecision is the number of fractional digits persisted for monetary
// fields.
const AmountPrecision = 4

// CustomerStatus is the customer-facing track of a cheque transaction. A nil
// pointer on the record means the customer has not been engaged yet.
type CustomerStatus string

const (
	CustomerPendingApproval CustomerStatus = "PENDING_APPROVAL"
	CustomerApproved        CustomerStatus = "APPROVED"
	CustomerDeclined        CustomerStatus = "DECLINED"
	CustomerExpired         CustomerStatus = "EXPIRED"
)

func (s CustomerStatus) Valid() bool {
	switch s {
	case CustomerPendingApproval, CustomerApproved, CustomerDeclined, CustomerExpired:
		return true
	}
	return false
}

// BankStatus is the bank-facing track. Nil means the record was captured but
// initiation has not completed.
type BankStatus string

const (
	BankInitiated               BankStatus = "INITIATED"
	BankPendingCustomerApproval BankStatus = "PENDING_CUSTOMER_APPROVAL"
	BankPendingBankApproval     BankStatus = "PENDING_BANK_APPROVAL"
	BankPendingPaymentApproval  BankStatus = "PENDING_PAYMENT_APPROVAL"
	BankPaymentApproved         BankStatus = "PAYMENT_APPROVED"
	BankCompleted               BankStatus = "COMPLETED"
	BankDeclined                BankStatus = "DECLINED"
	BankCancelled               BankStatus = "CANCELLED"
	BankBounced                 BankStatus = "BOUNCED"
)

func (s BankStatus) Valid() bool {
	switch s {
	case BankInitiated, BankPendingCustomerApproval, BankPendingBankApproval,
		BankPendingPaymentApproval, BankPaymentApproved, BankCompleted,
		BankDeclined, BankCancelled, BankBounced:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "UNPAID"
	PaymentPaid   PaymentStatus = "PAID"
)

type PayoutType string

const (
	PayoutCash            PayoutType = "CASH"
	PayoutMobileMoney     PayoutType = "MOBILE_MONEY"
	PayoutAccountTransfer PayoutType = "ACCOUNT_TRANSFER"
	PayoutBankersDraft    PayoutType = "BANKERS_DRAFT"
)

func (p PayoutType) Valid() bool {
	switch p {
	case PayoutCash, PayoutMobileMoney, PayoutAccountTransfer, PayoutBankersDraft:
		return true
	}
	return false
}

// Transaction is one cheque-processing attempt. Records are never deleted;
// terminal states are kept as history.
type Transaction struct {
	ID            string `json:"id"`
	ChequeNumber  string `json:"cheque_number"`
	AccountNumber string `json:"account_number"`
	Reference     string `json:"reference"`

	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`

	Msisdn       *string          `json:"msisdn"`
	PayeeName    string           `json:"payee_name"`
	CustomerName string           `json:"customer_name"`
	Balance      *decimal.Decimal `json:"balance"`

	Mandate            *string `json:"mandate"`
	ChequeInstructions *string `json:"cheque_instructions"`

	Institution     *string `json:"institution"`
	ProcessedBranch *string `json:"processed_branch"`

	PreApproved      bool `json:"pre_approved"`
	ApprovalSMSSent  bool `json:"approval_sms_sent"`
	ApprovalRetries  int  `json:"approval_retries"`
	ResubmissionFlag bool `json:"cheque_resubmission_flag"`

	CustomerStatus  *CustomerStatus `json:"customer_status"`
	CustomerRemarks string          `json:"customer_remarks"`
	BankStatus      *BankStatus     `json:"bank_status"`
	BankRemarks     string          `json:"bank_remarks"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`

	PayoutType *PayoutType `json:"payout_type"`

	InitiatedBy *string `json:"initiated_by"`
	ApprovedBy  *string `json:"approved_by"`
	PaidBy      *string `json:"paid_by"`

	InitiatedAt        *time.Time `json:"initiated_at"`
	CustomerResponseAt *time.Time `json:"customer_response_at"`
	ExpiredAt          *time.Time `json:"expired_at"`
	CreatedAt          time.Time  `json:"created_at"`
	ModifiedAt         *time.Time `json:"modified_at"`
}

// ChequeCode identifies the physical cheque across resubmission attempts.
func (t Transaction) ChequeCode() string {
	return t.ChequeNumber + ":" + t.AccountNumber
}

func (t Transaction) CustomerStatusIs(s CustomerStatus) bool {
	return t.CustomerStatus != nil && *t.CustomerStatus == s
}

func (t Transaction) BankStatusIs(s BankStatus) bool {
	return t.BankStatus != nil && *t.BankStatus == s
}

// Uninitiated reports whether the record was captured but initiation has not
// been completed on either track.
func (t Transaction) Uninitiated() bool {
	return t.CustomerStatus == nil && t.BankStatus == nil
}

func ValidChequeNumber(s string) bool { return len(s) == 6 && digitsOnly(s) }

func ValidAccountNumber(s string) bool {
	return len(s) >= 9 && len(s) <= 13 && digitsOnly(s)
}

func ValidMsisdn(s string) bool { return len(s) == 12 && digitsOnly(s) }

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

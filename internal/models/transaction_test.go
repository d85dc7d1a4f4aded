package models

import "testing"

func TestValidChequeNumber(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"123456", true},
		{"000001", true},
		{"12345", false},
		{"1234567", false},
		{"12345a", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidChequeNumber(tc.in); got != tc.want {
			t.Errorf("ValidChequeNumber(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestValidAccountNumber(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"123456789", true},
		{"1234567890123", true},
		{"12345678", false},
		{"12345678901234", false},
		{"12345678x", false},
	}
	for _, tc := range cases {
		if got := ValidAccountNumber(tc.in); got != tc.want {
			t.Errorf("ValidAccountNumber(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestValidMsisdn(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"233240000001", true},
		{"0240000001", false},
		{"23324000000a", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidMsisdn(tc.in); got != tc.want {
			t.Errorf("ValidMsisdn(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestChequeCode(t *testing.T) {
	tx := Transaction{ChequeNumber: "123456", AccountNumber: "100200300400"}
	if got := tx.ChequeCode(); got != "123456:100200300400" {
		t.Fatalf("ChequeCode() = %q", got)
	}
}

func TestStatusHelpers(t *testing.T) {
	var tx Transaction
	if !tx.Uninitiated() {
		t.Fatalf("zero transaction should be uninitiated")
	}
	if tx.CustomerStatusIs(CustomerPendingApproval) {
		t.Fatalf("nil customer status must not match")
	}

	pending := CustomerPendingApproval
	tx.CustomerStatus = &pending
	if tx.Uninitiated() {
		t.Fatalf("transaction with a customer status is initiated")
	}
	if !tx.CustomerStatusIs(CustomerPendingApproval) {
		t.Fatalf("status helper should match the set value")
	}
}

func TestEnumValidity(t *testing.T) {
	if !CustomerApproved.Valid() || CustomerStatus("MAYBE").Valid() {
		t.Fatalf("customer status validity broken")
	}
	if !BankPendingPaymentApproval.Valid() || BankStatus("SHREDDED").Valid() {
		t.Fatalf("bank status validity broken")
	}
	if !PayoutMobileMoney.Valid() || PayoutType("GOLD_BARS").Valid() {
		t.Fatalf("payout type validity broken")
	}
}

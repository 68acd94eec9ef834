package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSplit_PartsAlwaysSumToTotal(t *testing.T) {
	cases := []struct {
		total      string
		feePercent string
		wantFee    string
		wantOther  string
	}{
		{"100.00", "15", "15.00", "85.00"},
		{"0", "15", "0.00", "0.00"},
		{"0.01", "15", "0.00", "0.01"},
		{"0.10", "15", "0.02", "0.08"},
		{"33.33", "15", "5.00", "28.33"},
		{"99.99", "12.5", "12.50", "87.49"},
		{"250.00", "0", "0.00", "250.00"},
		{"250.00", "100", "250.00", "0.00"},
		{"10.005", "50", "5.00", "5.005"},
	}

	for _, tc := range cases {
		total := decimal.RequireFromString(tc.total)
		pct := decimal.RequireFromString(tc.feePercent)

		split, err := Split(total, pct)
		if err != nil {
			t.Fatalf("Split(%s, %s) returned error: %v", tc.total, tc.feePercent, err)
		}
		if !split.PlatformFee.Equal(decimal.RequireFromString(tc.wantFee)) {
			t.Errorf("Split(%s, %s) fee = %s, want %s", tc.total, tc.feePercent, split.PlatformFee, tc.wantFee)
		}
		if !split.CounterpartyAmount.Equal(decimal.RequireFromString(tc.wantOther)) {
			t.Errorf("Split(%s, %s) counterparty = %s, want %s", tc.total, tc.feePercent, split.CounterpartyAmount, tc.wantOther)
		}
		if !split.PlatformFee.Add(split.CounterpartyAmount).Equal(total) {
			t.Errorf("Split(%s, %s) parts sum to %s, want %s",
				tc.total, tc.feePercent, split.PlatformFee.Add(split.CounterpartyAmount), tc.total)
		}
	}
}

func TestSplit_RejectsInvalidInputs(t *testing.T) {
	if _, err := Split(decimal.RequireFromString("-1"), decimal.NewFromInt(15)); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("negative total: got %v, want ErrNegativeAmount", err)
	}
	if _, err := Split(decimal.NewFromInt(100), decimal.NewFromInt(-1)); !errors.Is(err, ErrInvalidFeePercent) {
		t.Errorf("negative percent: got %v, want ErrInvalidFeePercent", err)
	}
	if _, err := Split(decimal.NewFromInt(100), decimal.NewFromInt(101)); !errors.Is(err, ErrInvalidFeePercent) {
		t.Errorf("percent > 100: got %v, want ErrInvalidFeePercent", err)
	}
}

func TestSplit_SameResultAtBothCallSites(t *testing.T) {
	// The checkout path and the completion path must derive the identical split
	// for the same inputs.
	total := decimal.RequireFromString("123.45")
	pct := decimal.RequireFromString("15")

	atCheckout, err := Split(total, pct)
	if err != nil {
		t.Fatalf("checkout split failed: %v", err)
	}
	atCompletion, err := Split(total, pct)
	if err != nil {
		t.Fatalf("completion split failed: %v", err)
	}
	if !atCheckout.PlatformFee.Equal(atCompletion.PlatformFee) ||
		!atCheckout.CounterpartyAmount.Equal(atCompletion.CounterpartyAmount) {
		t.Errorf("splits diverge: checkout %+v, completion %+v", atCheckout, atCompletion)
	}
}

func TestNewServicePayment_FrontLoadsCommissionSplit(t *testing.T) {
	sp, err := NewServicePayment(10, 20, 1, 2,
		decimal.RequireFromString("100.00"), decimal.RequireFromString("15"),
		"Service payment for Work Order #WO-10")
	if err != nil {
		t.Fatalf("NewServicePayment failed: %v", err)
	}

	if !sp.PlatformFee.Equal(decimal.RequireFromString("15.00")) {
		t.Errorf("platform fee = %s, want 15.00", sp.PlatformFee)
	}
	if !sp.ProviderAmount.Equal(decimal.RequireFromString("85.00")) {
		t.Errorf("provider amount = %s, want 85.00", sp.ProviderAmount)
	}
	if sp.Status != PaymentStatusPending {
		t.Errorf("status = %q, want Pending", sp.Status)
	}
}

func TestServicePayment_MarkCompletedRecordsReferences(t *testing.T) {
	sp, err := NewServicePayment(10, 20, 1, 2,
		decimal.RequireFromString("50.00"), decimal.RequireFromString("15"), "test")
	if err != nil {
		t.Fatalf("NewServicePayment failed: %v", err)
	}

	sp.MarkCompleted("pi_123", "cs_456")
	if sp.Status != PaymentStatusCompleted {
		t.Errorf("status = %q, want Completed", sp.Status)
	}
	if sp.GatewayChargeRef == nil || *sp.GatewayChargeRef != "pi_123" {
		t.Errorf("charge ref not recorded: %v", sp.GatewayChargeRef)
	}
	if sp.GatewayTxnRef == nil || *sp.GatewayTxnRef != "cs_456" {
		t.Errorf("txn ref not recorded: %v", sp.GatewayTxnRef)
	}
	if sp.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}
}

func TestPlanPartitionConvention(t *testing.T) {
	for _, p := range SeedPlans() {
		owner := p.IsOwnerPlan()
		provider := p.IsProviderPlan()
		if owner == provider {
			t.Errorf("plan %d classified as owner=%v provider=%v", p.ID, owner, provider)
		}
		if p.ID <= MaxOwnerPlanID && !owner {
			t.Errorf("plan %d should be an owner plan", p.ID)
		}
		if p.ID >= MinProviderPlanID && !provider {
			t.Errorf("plan %d should be a provider plan", p.ID)
		}
	}
}

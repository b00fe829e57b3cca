package reserve_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"SynthLedger/internal/reserve"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_UserPath(t *testing.T) {
	userID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := reserve.NewUserAccountKey(userID, reserve.SubTypeCollateral)

	path := key.AccountPath()
	expected := "user:550e8400-e29b-41d4-a716-446655440000:collateral"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_LPPath(t *testing.T) {
	lpID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440001")
	key := reserve.NewLPAccountKey(lpID, reserve.SubTypeCommitment)

	path := key.AccountPath()
	expected := "lp:550e8400-e29b-41d4-a716-446655440001:commitment"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_SystemPaths(t *testing.T) {
	cases := []struct {
		sub  reserve.AccountSubType
		want string
	}{
		{reserve.SubTypeSystemPool, "system:pool"},
		{reserve.SubTypeSystemInterestPool, "system:interest_pool"},
		{reserve.SubTypeSystemFees, "system:fees"},
	}
	for _, tc := range cases {
		if got := reserve.NewSystemAccountKey(tc.sub).AccountPath(); got != tc.want {
			t.Errorf("got %q, want %q", got, tc.want)
		}
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	key := reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits)
	if got := key.AccountPath(); got != "external:deposits" {
		t.Errorf("got %q, want %q", got, "external:deposits")
	}
}

// ============================================================================
// Test: Batch validation
// ============================================================================

func journal(batchID uuid.UUID, debit, credit reserve.AccountKey, amount int64) reserve.Journal {
	return reserve.Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        amount,
	}
}

func TestBatchValidate_OK(t *testing.T) {
	batchID := uuid.New()
	batch := &reserve.Batch{
		BatchID: batchID,
		Journals: []reserve.Journal{
			journal(batchID,
				reserve.NewUserAccountKey(uuid.New(), reserve.SubTypeCollateral),
				reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
				500_000),
		},
	}
	if err := batch.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBatchValidate_NonPositiveAmount(t *testing.T) {
	batchID := uuid.New()
	batch := &reserve.Batch{
		BatchID: batchID,
		Journals: []reserve.Journal{
			journal(batchID,
				reserve.NewUserAccountKey(uuid.New(), reserve.SubTypeCollateral),
				reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
				0),
		},
	}
	if err := batch.Validate(); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestBatchValidate_MismatchedBatchID(t *testing.T) {
	batch := &reserve.Batch{
		BatchID: uuid.New(),
		Journals: []reserve.Journal{
			journal(uuid.New(), // different batch
				reserve.NewUserAccountKey(uuid.New(), reserve.SubTypeCollateral),
				reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
				100),
		},
	}
	err := batch.Validate()
	if err == nil || !strings.Contains(err.Error(), "mismatched batch_id") {
		t.Fatalf("expected mismatched batch_id error, got %v", err)
	}
}

func TestBatchValidate_SelfTransfer(t *testing.T) {
	batchID := uuid.New()
	key := reserve.NewSystemAccountKey(reserve.SubTypeSystemPool)
	batch := &reserve.Batch{
		BatchID:  batchID,
		Journals: []reserve.Journal{journal(batchID, key, key, 100)},
	}
	if err := batch.Validate(); err == nil {
		t.Fatal("expected error for same debit and credit account")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_ApplyJournal(t *testing.T) {
	bt := reserve.NewBalanceTracker()
	userID := uuid.New()

	bt.ApplyJournal(journal(uuid.New(),
		reserve.NewUserAccountKey(userID, reserve.SubTypeCollateral),
		reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
		1_000_000))

	if got := bt.UserCollateral(userID); got != 1_000_000 {
		t.Errorf("collateral: got %d, want 1_000_000", got)
	}
	if got := bt.GetBalance(reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits)); got != -1_000_000 {
		t.Errorf("external: got %d, want -1_000_000", got)
	}
}

func TestBalanceTracker_GlobalBalanceStaysZero(t *testing.T) {
	bt := reserve.NewBalanceTracker()
	lpID := uuid.New()

	batchID := uuid.New()
	batch := &reserve.Batch{
		BatchID: batchID,
		Journals: []reserve.Journal{
			journal(batchID,
				reserve.NewLPAccountKey(lpID, reserve.SubTypeCommitment),
				reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
				250_000_000),
			journal(batchID,
				reserve.NewSystemAccountKey(reserve.SubTypeSystemPool),
				reserve.NewLPAccountKey(lpID, reserve.SubTypeCommitment),
				100_000_000),
		},
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("apply batch: %v", err)
	}

	if got := bt.ComputeGlobalBalance(); got != 0 {
		t.Errorf("global balance: got %d, want 0", got)
	}
	if got := bt.LPCommitment(lpID); got != 150_000_000 {
		t.Errorf("commitment: got %d, want 150_000_000", got)
	}
	if got := bt.PoolBalance(); got != 100_000_000 {
		t.Errorf("pool: got %d, want 100_000_000", got)
	}
}

func TestBalanceTracker_ApplyBatch_RejectsInvalid(t *testing.T) {
	bt := reserve.NewBalanceTracker()
	batch := &reserve.Batch{
		BatchID: uuid.New(),
		Journals: []reserve.Journal{
			journal(uuid.New(),
				reserve.NewSystemAccountKey(reserve.SubTypeSystemPool),
				reserve.NewSystemAccountKey(reserve.SubTypeSystemFees),
				100),
		},
	}
	if err := bt.ApplyBatch(batch); err == nil {
		t.Fatal("expected invalid batch error")
	}
	if got := bt.PoolBalance(); got != 0 {
		t.Errorf("rejected batch must not touch balances, pool=%d", got)
	}
}

func TestBalanceTracker_HeldReserveExcludesExternal(t *testing.T) {
	bt := reserve.NewBalanceTracker()
	userID := uuid.New()

	bt.ApplyJournal(journal(uuid.New(),
		reserve.NewUserAccountKey(userID, reserve.SubTypeCollateral),
		reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
		777))

	if got := bt.ComputeHeldReserve(); got != 777 {
		t.Errorf("held reserve: got %d, want 777", got)
	}
	if got := bt.ComputeGlobalBalance(); got != 0 {
		t.Errorf("global: got %d, want 0", got)
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_GlobalBalance(t *testing.T) {
	bt := reserve.NewBalanceTracker()
	v := reserve.NewInvariantValidator(bt)

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Fatalf("empty ledger should be balanced: %v", err)
	}

	// A direct SetBalance breaks conservation.
	bt.SetBalance(reserve.NewSystemAccountKey(reserve.SubTypeSystemPool), 5)
	if err := v.ValidateGlobalBalance(); err == nil {
		t.Fatal("expected non-zero global balance error")
	}
}

func TestInvariantValidator_PoolNonNegative(t *testing.T) {
	bt := reserve.NewBalanceTracker()
	v := reserve.NewInvariantValidator(bt)

	bt.SetBalance(reserve.NewSystemAccountKey(reserve.SubTypeSystemPool), -1)
	if err := v.ValidatePoolNonNegative(); err == nil {
		t.Fatal("expected overdrawn pool error")
	}

	bt.SetBalance(reserve.NewSystemAccountKey(reserve.SubTypeSystemPool), 0)
	if err := v.ValidatePoolNonNegative(); err != nil {
		t.Fatalf("zero pool is valid: %v", err)
	}
}

func TestInvariantValidator_InterestPoolZero(t *testing.T) {
	bt := reserve.NewBalanceTracker()
	v := reserve.NewInvariantValidator(bt)

	if err := v.ValidateInterestPoolZero(); err != nil {
		t.Fatalf("empty interest pool should pass: %v", err)
	}

	bt.SetBalance(reserve.NewSystemAccountKey(reserve.SubTypeSystemInterestPool), 3)
	if err := v.ValidateInterestPoolZero(); err == nil {
		t.Fatal("expected undrained interest pool error")
	}
}

func TestInvariantValidator_LPNonNegative(t *testing.T) {
	bt := reserve.NewBalanceTracker()
	v := reserve.NewInvariantValidator(bt)
	lpID := uuid.New()

	if err := v.ValidateLPNonNegative(lpID); err != nil {
		t.Fatalf("fresh LP should pass: %v", err)
	}

	bt.SetBalance(reserve.NewLPAccountKey(lpID, reserve.SubTypeLPCollateral), -10)
	if err := v.ValidateLPNonNegative(lpID); err == nil {
		t.Fatal("expected negative collateral error")
	}
}

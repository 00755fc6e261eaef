package lending

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"loanledger/core/events"
)

func TestTakeLoanCreatesObligation(t *testing.T) {
	fix := newEngineFixture(t)
	id := fix.originate(t)
	if id != 1 {
		t.Fatalf("unexpected loan id: got %d want 1", id)
	}

	loan := fix.loan(t, id)
	if loan.Principal.Int64() != 100 {
		t.Fatalf("unexpected principal: %s", loan.Principal)
	}
	if loan.InitialBalance.Int64() != 100 || loan.TrackedBalance.Int64() != 100 {
		t.Fatalf("unexpected balances: initial %s tracked %s", loan.InitialBalance, loan.TrackedBalance)
	}
	if loan.StartTimestamp != baseTime || loan.TrackedTimestamp != baseTime {
		t.Fatalf("unexpected timestamps: start %d tracked %d", loan.StartTimestamp, loan.TrackedTimestamp)
	}
	if loan.DurationPeriods != 30 || loan.RatePrimary != 5 || loan.RateSecondary != 8 {
		t.Fatalf("unexpected terms: duration %d rates %d/%d", loan.DurationPeriods, loan.RatePrimary, loan.RateSecondary)
	}
	if loan.Status != LoanActive {
		t.Fatalf("unexpected status: %s", loan.Status)
	}
	if loan.Grouped() {
		t.Fatalf("standalone loan should not be grouped")
	}

	move := fix.mover.last(t)
	if move.from != testSourceRef || move.to != testBorrower || move.amount.Int64() != 100 {
		t.Fatalf("unexpected principal transfer: %+v", move)
	}
	if got := fix.emitted.types(); len(got) != 1 || got[0] != events.TypeLoanOriginated {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestTakeLoanValidation(t *testing.T) {
	fix := newEngineFixture(t)

	if _, err := fix.engine.TakeLoan(Address{}, 1, big.NewInt(100), 30); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("zero borrower: got %v", err)
	}
	if _, err := fix.engine.TakeLoan(testBorrower, 1, nil, 30); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("nil principal: got %v", err)
	}
	if _, err := fix.engine.TakeLoan(testBorrower, 1, big.NewInt(0), 30); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero principal: got %v", err)
	}
	if _, err := fix.engine.TakeLoan(testBorrower, 99, big.NewInt(100), 30); !errors.Is(err, ErrProgramNotFound) {
		t.Fatalf("unknown program: got %v", err)
	}

	params := testParams()
	params.AccuracyUnit = 10_000
	if err := fix.engine.SetParams(params); err != nil {
		t.Fatalf("set params: %v", err)
	}
	if _, err := fix.engine.TakeLoan(testBorrower, 1, big.NewInt(15_000), 30); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("misaligned principal: got %v", err)
	}
}

func TestTakeLoanCollaboratorVetoLeavesNoTrace(t *testing.T) {
	fix := newEngineFixture(t)
	fix.policy.onBeforeDraw = func(*Loan) error { return fmt.Errorf("borrower over limit") }

	if _, err := fix.engine.TakeLoan(testBorrower, 1, big.NewInt(100), 30); !errors.Is(err, ErrCollaborator) {
		t.Fatalf("expected collaborator veto, got %v", err)
	}
	if len(fix.mover.moves) != 0 {
		t.Fatalf("vetoed draw must not transfer: %d moves", len(fix.mover.moves))
	}
	if len(fix.state.loans) != 0 {
		t.Fatalf("vetoed draw must not store a loan")
	}
	if len(fix.emitted.events) != 0 {
		t.Fatalf("vetoed draw must not emit events")
	}

	fix.policy.onBeforeDraw = nil
	fix.source.onBeforeDraw = func(*Loan) error { return fmt.Errorf("pool drained") }
	if _, err := fix.engine.TakeLoan(testBorrower, 1, big.NewInt(100), 30); !errors.Is(err, ErrCollaborator) {
		t.Fatalf("expected source veto, got %v", err)
	}
	if len(fix.mover.moves) != 0 {
		t.Fatalf("source veto must precede the transfer")
	}
}

func TestTakeLoanRejectsBadTerms(t *testing.T) {
	fix := newEngineFixture(t)
	fix.policy.determineTerms = func(*TermsRequest) (*Terms, error) {
		return &Terms{DurationPeriods: 0, RatePrimary: 5, RateSecondary: 8}, nil
	}
	if _, err := fix.engine.TakeLoan(testBorrower, 1, big.NewInt(100), 30); !errors.Is(err, ErrCollaborator) {
		t.Fatalf("expected terms rejection, got %v", err)
	}
}

func TestTakeLoanForAuthorityAndAddon(t *testing.T) {
	fix := newEngineFixture(t)
	fix.policy.determineTerms = func(req *TermsRequest) (*Terms, error) {
		return &Terms{DurationPeriods: req.RequestedDuration, RatePrimary: 5, RateSecondary: 8, Addon: big.NewInt(5)}, nil
	}

	if _, err := fix.engine.TakeLoanFor(testStranger, testBorrower, 1, big.NewInt(100), 30, nil); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("stranger origination: got %v", err)
	}

	// Lender origination picks up the policy addon.
	id, err := fix.engine.TakeLoanFor(testLender, testBorrower, 1, big.NewInt(100), 30, nil)
	if err != nil {
		t.Fatalf("lender origination: %v", err)
	}
	loan := fix.loan(t, id)
	if loan.InitialBalance.Int64() != 105 {
		t.Fatalf("policy addon not applied: initial %s", loan.InitialBalance)
	}
	if move := fix.mover.last(t); move.amount.Int64() != 100 {
		t.Fatalf("addon must not be transferred: moved %s", move.amount)
	}

	// An alias acts with lender authority and may override the addon.
	if err := fix.registry.ConfigureAlias(testLender, testAlias); err != nil {
		t.Fatalf("configure alias: %v", err)
	}
	id, err = fix.engine.TakeLoanFor(testAlias, testBorrower, 1, big.NewInt(100), 30, big.NewInt(7))
	if err != nil {
		t.Fatalf("alias origination: %v", err)
	}
	loan = fix.loan(t, id)
	if loan.InitialBalance.Int64() != 107 {
		t.Fatalf("explicit addon not applied: initial %s", loan.InitialBalance)
	}
}

func TestRepayPartialThenMaxConservesValue(t *testing.T) {
	fix := newEngineFixture(t)
	id := fix.originate(t)
	fix.advanceDays(35)

	// 30 primary periods then 5 secondary: 100 -> 115 -> 119.
	settled, err := fix.engine.RepayLoan(testBorrower, id, big.NewInt(19))
	if err != nil {
		t.Fatalf("partial repay: %v", err)
	}
	if settled.Int64() != 19 {
		t.Fatalf("unexpected settled amount: %s", settled)
	}
	loan := fix.loan(t, id)
	if loan.TrackedBalance.Int64() != 100 {
		t.Fatalf("unexpected residue: %s", loan.TrackedBalance)
	}
	if loan.Status != LoanActive {
		t.Fatalf("partial repay must keep loan active, got %s", loan.Status)
	}
	if loan.RepaidTotal.Int64() != 19 {
		t.Fatalf("unexpected repaid total: %s", loan.RepaidTotal)
	}

	settled, err = fix.engine.RepayLoan(testBorrower, id, RepayMax)
	if err != nil {
		t.Fatalf("full repay: %v", err)
	}
	if settled.Int64() != 100 {
		t.Fatalf("unexpected payoff: %s", settled)
	}
	loan = fix.loan(t, id)
	if loan.Status != LoanRepaid || loan.TrackedBalance.Sign() != 0 {
		t.Fatalf("loan not closed: status %s tracked %s", loan.Status, loan.TrackedBalance)
	}

	// Borrower paid principal plus accrued interest, nothing more.
	paid := big.NewInt(0)
	for _, move := range fix.mover.moves {
		if move.from == testBorrower && move.to == testSourceRef {
			paid.Add(paid, move.amount)
		}
	}
	if paid.Int64() != 119 {
		t.Fatalf("conservation violated: paid %s want 119", paid)
	}

	if _, err := fix.engine.RepayLoan(testBorrower, id, RepayMax); !errors.Is(err, ErrLoanClosed) {
		t.Fatalf("repay on closed loan: got %v", err)
	}
}

func TestRepaySameDayAsOrigination(t *testing.T) {
	fix := newEngineFixture(t)
	id := fix.originate(t)

	settled, err := fix.engine.RepayLoan(testBorrower, id, RepayMax)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if settled.Int64() != 100 {
		t.Fatalf("no interest should accrue on day zero: settled %s", settled)
	}
	if loan := fix.loan(t, id); loan.Status != LoanRepaid {
		t.Fatalf("loan should be repaid, got %s", loan.Status)
	}
}

func TestRepayValidation(t *testing.T) {
	fix := newEngineFixture(t)
	id := fix.originate(t)

	if _, err := fix.engine.RepayLoan(Address{}, id, big.NewInt(10)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("zero caller: got %v", err)
	}
	if _, err := fix.engine.RepayLoan(testBorrower, id, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("nil amount: got %v", err)
	}
	if _, err := fix.engine.RepayLoan(testBorrower, id, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v", err)
	}
	if _, err := fix.engine.RepayLoan(testBorrower, id, big.NewInt(-5)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative amount: got %v", err)
	}
	if _, err := fix.engine.RepayLoan(testBorrower, id, big.NewInt(101)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("overpayment: got %v", err)
	}
	if _, err := fix.engine.RepayLoan(testBorrower, 99, big.NewInt(10)); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("unknown loan: got %v", err)
	}
}

func TestRepayRoundingBoundary(t *testing.T) {
	fix := newEngineFixture(t)
	params := testParams()
	params.AccuracyUnit = 10_000
	if err := fix.engine.SetParams(params); err != nil {
		t.Fatalf("set params: %v", err)
	}

	originate := func() uint64 {
		t.Helper()
		id, err := fix.engine.TakeLoan(testBorrower, 1, big.NewInt(1_000_000), 30)
		if err != nil {
			t.Fatalf("take loan: %v", err)
		}
		return id
	}

	first := originate()
	fix.advanceDays(1)

	// Raw balance 1_005_000 rounds half-up to 1_010_000.
	preview, err := fix.engine.PreviewBalance(first, 0)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.TrackedBalance.Int64() != 1_005_000 {
		t.Fatalf("unexpected raw balance: %s", preview.TrackedBalance)
	}
	if preview.OutstandingBalance.Int64() != 1_010_000 {
		t.Fatalf("unexpected rounded payoff: %s", preview.OutstandingBalance)
	}

	// The raw value itself is not aligned and cannot be paid directly.
	if _, err := fix.engine.RepayLoan(testBorrower, first, big.NewInt(1_005_000)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("misaligned amount: got %v", err)
	}

	// Settling the rounded payoff closes the loan exactly even though it
	// exceeds the raw balance.
	settled, err := fix.engine.RepayLoan(testBorrower, first, big.NewInt(1_010_000))
	if err != nil {
		t.Fatalf("full repay: %v", err)
	}
	if settled.Int64() != 1_010_000 {
		t.Fatalf("unexpected settled amount: %s", settled)
	}
	loan := fix.loan(t, first)
	if loan.Status != LoanRepaid || loan.TrackedBalance.Sign() != 0 {
		t.Fatalf("loan not closed cleanly: status %s tracked %s", loan.Status, loan.TrackedBalance)
	}

	// A partial payment leaves the unrounded residue accruing.
	second := originate()
	fix.advanceDays(1)
	if _, err := fix.engine.RepayLoan(testBorrower, second, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("partial repay: %v", err)
	}
	if loan := fix.loan(t, second); loan.TrackedBalance.Int64() != 5_000 {
		t.Fatalf("unexpected residue: %s", loan.TrackedBalance)
	}
	fix.advanceDays(1)
	preview, err = fix.engine.PreviewBalance(second, 0)
	if err != nil {
		t.Fatalf("preview residue: %v", err)
	}
	if preview.TrackedBalance.Int64() != 5_025 {
		t.Fatalf("residue stopped accruing: %s", preview.TrackedBalance)
	}
}

func TestSourceInitiatedRepayment(t *testing.T) {
	fix := newEngineFixture(t)
	fix.policy.determineTerms = func(req *TermsRequest) (*Terms, error) {
		return &Terms{DurationPeriods: req.RequestedDuration, RatePrimary: 5, RateSecondary: 8, AutoRepayment: true}, nil
	}
	id := fix.originate(t)

	settled, err := fix.engine.RepayLoan(testSourceRef, id, RepayMax)
	if err != nil {
		t.Fatalf("source repay: %v", err)
	}
	if settled.Int64() != 100 {
		t.Fatalf("unexpected settled amount: %s", settled)
	}
	// The payment is drawn from the borrower, not from the source itself.
	move := fix.mover.last(t)
	if move.from != testBorrower || move.to != testSourceRef {
		t.Fatalf("auto repayment must draw from the borrower: %+v", move)
	}
}

func TestSourceInitiatedRepaymentRequiresPermission(t *testing.T) {
	fix := newEngineFixture(t)
	id := fix.originate(t)

	if _, err := fix.engine.RepayLoan(testSourceRef, id, RepayMax); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected authorization failure, got %v", err)
	}
}

func TestThirdPartyMayRepay(t *testing.T) {
	fix := newEngineFixture(t)
	id := fix.originate(t)

	if _, err := fix.engine.RepayLoan(testStranger, id, RepayMax); err != nil {
		t.Fatalf("third party repay: %v", err)
	}
	move := fix.mover.last(t)
	if move.from != testStranger {
		t.Fatalf("third party pays from their own address: %+v", move)
	}
}

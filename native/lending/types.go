package lending

import (
	"fmt"
	"math/big"
)

// LoanStatus represents the lifecycle states supported by the loan engine.
// The zero value is reserved for loans that have never been originated so a
// missing record can never be mistaken for a live one.
type LoanStatus uint8

const (
	LoanNonExistent LoanStatus = iota
	LoanActive
	LoanFrozen
	LoanRepaid
	LoanRevoked
)

// Valid reports whether the status names a stored lifecycle state.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanActive, LoanFrozen, LoanRepaid, LoanRevoked:
		return true
	default:
		return false
	}
}

// Ongoing reports whether the loan still carries an obligation.
func (s LoanStatus) Ongoing() bool {
	return s == LoanActive || s == LoanFrozen
}

// Closed reports whether the loan reached a terminal state.
func (s LoanStatus) Closed() bool {
	return s == LoanRepaid || s == LoanRevoked
}

// String renders the status for logs, events and exports.
func (s LoanStatus) String() string {
	switch s {
	case LoanNonExistent:
		return "nonexistent"
	case LoanActive:
		return "active"
	case LoanFrozen:
		return "frozen"
	case LoanRepaid:
		return "repaid"
	case LoanRevoked:
		return "revoked"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Loan captures the full obligation record for a single draw. Amounts are
// arbitrary-precision integers in the smallest unit of the program's asset;
// timestamps are unix seconds.
type Loan struct {
	ID        uint64
	ProgramID uint64
	Borrower  Address
	// Principal is the amount transferred to the borrower at origination.
	// Revocation unwinds the loan against this value.
	Principal *big.Int
	// InitialBalance is the starting obligation: principal plus the addon
	// charged by the underwriting policy. The addon is owed but never
	// transferred.
	InitialBalance *big.Int
	// TrackedBalance is the internally tracked obligation, floor-truncated
	// at every accrual step and rounded only when presented or settled.
	TrackedBalance *big.Int
	// TrackedTimestamp records when TrackedBalance was last brought
	// current. Periods elapse relative to StartTimestamp, never to this
	// field.
	TrackedTimestamp uint64
	StartTimestamp   uint64
	// DurationPeriods is the agreed term. Periods at index DurationPeriods
	// or later accrue at the secondary rate.
	DurationPeriods uint64
	// RatePrimary and RateSecondary are per-period interest rates as
	// numerators over the ledger rate scale.
	RatePrimary   uint64
	RateSecondary uint64
	// FreezeTimestamp is non-zero while the loan is frozen and records the
	// moment accrual stopped.
	FreezeTimestamp uint64
	// RepaidTotal accumulates every settled repayment, including the
	// borrower-funded portion of a revocation unwind.
	RepaidTotal *big.Int
	Status      LoanStatus
	// AutoRepayment, captured from the terms at origination, lets the
	// program's funding source trigger repayment on the borrower's behalf.
	AutoRepayment bool
	// FirstInstallmentID links the members of an installment group through
	// their head loan. Zero for standalone loans.
	FirstInstallmentID uint64
	// InstallmentCount is the group size recorded on every member. Zero
	// for standalone loans.
	InstallmentCount uint64
}

// Clone returns a deep copy of the loan so callers can safely mutate the copy
// without affecting the stored instance.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Principal = copyBigInt(l.Principal)
	clone.InitialBalance = copyBigInt(l.InitialBalance)
	clone.TrackedBalance = copyBigInt(l.TrackedBalance)
	clone.RepaidTotal = copyBigInt(l.RepaidTotal)
	return &clone
}

// Grouped reports whether the loan belongs to an installment group.
func (l *Loan) Grouped() bool {
	return l != nil && l.FirstInstallmentID != 0
}

// Program binds a lender's underwriting policy and funding source into a
// route loans can be originated through. Programs are never deleted; closed
// books stay queryable.
type Program struct {
	ID     uint64
	Lender Address
	// PolicyRef is the registered reference of the underwriting policy
	// collaborator deciding terms for this program.
	PolicyRef Address
	// SourceRef is the registered reference of the funding source
	// collaborator principal is drawn from and repaid to.
	SourceRef Address
	CreatedAt uint64
	UpdatedAt uint64
}

// Clone returns a copy of the program record.
func (p *Program) Clone() *Program {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Terms is the underwriting decision returned by a policy for a prospective
// draw.
type Terms struct {
	DurationPeriods uint64
	RatePrimary     uint64
	RateSecondary   uint64
	// Addon is an upfront charge added to the initial balance without
	// being transferred. Nil is treated as zero.
	Addon *big.Int
	// AutoRepayment permits the funding source to repay on the borrower's
	// behalf for the loan these terms originate.
	AutoRepayment bool
}

// Clone returns a deep copy of the terms.
func (t *Terms) Clone() *Terms {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Addon = copyBigInt(t.Addon)
	return &clone
}

// SanitizeTerms validates policy-supplied terms against the ledger
// parameters, returning a cloned instance with a non-nil addon. The function
// does not mutate the original value.
func SanitizeTerms(t *Terms, params Params) (*Terms, error) {
	if t == nil {
		return nil, fmt.Errorf("lending: nil terms")
	}
	clone := t.Clone()
	if clone.DurationPeriods == 0 {
		return nil, fmt.Errorf("lending: terms duration must be positive")
	}
	if clone.RatePrimary > params.RateScale || clone.RateSecondary > params.RateScale {
		return nil, fmt.Errorf("lending: terms rate exceeds rate scale")
	}
	if clone.Addon == nil {
		clone.Addon = big.NewInt(0)
	}
	if clone.Addon.Sign() < 0 {
		return nil, fmt.Errorf("lending: terms addon must be non-negative")
	}
	if !IsAligned(clone.Addon, params.AccuracyUnit) {
		return nil, fmt.Errorf("lending: terms addon must align to the accuracy unit")
	}
	return clone, nil
}

// BalancePreview is the point-in-time view of a single obligation. The
// tracked balance is the raw internal projection; the outstanding balance is
// the same value rounded half-up to the accuracy unit and is the amount a
// payer would settle.
type BalancePreview struct {
	LoanID             uint64
	Status             LoanStatus
	PeriodIndex        uint64
	TrackedBalance     *big.Int
	OutstandingBalance *big.Int
}

// Clone returns a deep copy of the preview.
func (p *BalancePreview) Clone() *BalancePreview {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TrackedBalance = copyBigInt(p.TrackedBalance)
	clone.OutstandingBalance = copyBigInt(p.OutstandingBalance)
	return &clone
}

// InstallmentGroupPreview aggregates the previews of every member of an
// installment group. Standalone loans preview as a group of one with a zero
// FirstInstallmentID.
type InstallmentGroupPreview struct {
	FirstInstallmentID uint64
	Members            []*BalancePreview
	TotalOutstanding   *big.Int
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

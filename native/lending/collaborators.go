package lending

import "math/big"

// TermsRequest carries the context an underwriting policy needs to decide the
// terms of a prospective draw. For installment originations every member draw
// is priced individually with its position and the aggregate principal
// attached.
type TermsRequest struct {
	ProgramID uint64
	Borrower  Address
	Principal *big.Int
	// RequestedDuration is the term asked for by the originator. The policy
	// may confirm or override it in the returned terms.
	RequestedDuration uint64
	// InstallmentIndex and InstallmentCount position the draw within a
	// multi-draw origination; both are zero for standalone loans.
	InstallmentIndex uint64
	InstallmentCount uint64
	// TotalPrincipal is the aggregate across all draws of an installment
	// origination, nil for standalone loans.
	TotalPrincipal *big.Int
}

// Clone returns a deep copy of the request.
func (r *TermsRequest) Clone() *TermsRequest {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Principal = copyBigInt(r.Principal)
	if r.TotalPrincipal != nil {
		clone.TotalPrincipal = new(big.Int).Set(r.TotalPrincipal)
	}
	return &clone
}

// UnderwritingPolicy is the decision-making collaborator bound to a program.
// Implementations live outside the ledger; the engine hands them defensive
// copies and treats any returned error as a veto that aborts the operation
// before state is committed.
type UnderwritingPolicy interface {
	// Address must return the reference the implementation was registered
	// under. Registration verifies this and refuses mismatches.
	Address() Address
	// DetermineTerms prices a prospective draw.
	DetermineTerms(req *TermsRequest) (*Terms, error)
	// OnBeforeDraw runs after terms are fixed and before principal moves.
	OnBeforeDraw(loan *Loan) error
	// OnAfterPayment observes every settled repayment.
	OnAfterPayment(loan *Loan, amount *big.Int, payer Address) error
	// OnAfterRevocation observes a completed revocation unwind.
	OnAfterRevocation(loan *Loan) error
}

// FundingSource is the collaborator holding the liquidity a program draws
// from. Principal is transferred from its address at origination and
// repayments are transferred back to it.
type FundingSource interface {
	// Address must return the reference the implementation was registered
	// under.
	Address() Address
	// OnBeforeDraw is the source's veto point before principal leaves it.
	OnBeforeDraw(loan *Loan) error
	// OnAfterPayment observes every settled repayment.
	OnAfterPayment(loan *Loan, amount *big.Int, payer Address) error
	// OnAfterRevocation observes a completed revocation unwind.
	OnAfterRevocation(loan *Loan) error
}

// ValueMover executes asset transfers on behalf of the ledger. The ledger
// itself never holds funds; a failed move aborts the surrounding operation.
type ValueMover interface {
	Move(from, to Address, amount *big.Int) error
}

// CollaboratorResolver maps registered references to live implementations.
// The embedding application owns the mapping; the ledger consults it at
// registration time for the self check and on every operation that touches a
// collaborator.
type CollaboratorResolver interface {
	Policy(ref Address) (UnderwritingPolicy, error)
	Source(ref Address) (FundingSource, error)
}

package lending

import "math/big"

// projectBalance computes the raw obligation as of the given time without
// mutating the loan. Frozen loans are clamped to their freeze timestamp, so
// frozen time is invisible to the balance. The returned period index is the
// one the projection landed on.
//
// Accrual splits at the due boundary: the first DurationPeriods periods price
// at the primary rate, every later period at the secondary rate. Each segment
// is floor-truncated independently and feeds the next.
func (e *Engine) projectBalance(loan *Loan, asOf uint64) (*big.Int, uint64) {
	effective := asOf
	if loan.Status == LoanFrozen && loan.FreezeTimestamp != 0 && effective > loan.FreezeTimestamp {
		effective = loan.FreezeTimestamp
	}
	period := PeriodIndex(loan.StartTimestamp, effective, e.params.PeriodSeconds)
	if loan.Status.Closed() {
		return copyBigInt(loan.TrackedBalance), period
	}
	tracked := PeriodIndex(loan.StartTimestamp, loan.TrackedTimestamp, e.params.PeriodSeconds)
	if period <= tracked {
		return copyBigInt(loan.TrackedBalance), period
	}
	due := loan.DurationPeriods
	balance := copyBigInt(loan.TrackedBalance)
	scale := e.params.RateScale
	switch {
	case period <= due:
		balance = Accrue(balance, loan.RatePrimary, period-tracked, scale)
	case tracked >= due:
		balance = Accrue(balance, loan.RateSecondary, period-tracked, scale)
	default:
		balance = Accrue(balance, loan.RatePrimary, due-tracked, scale)
		balance = Accrue(balance, loan.RateSecondary, period-due, scale)
	}
	return balance, period
}

func (e *Engine) resolveAsOf(asOf uint64) uint64 {
	if asOf == 0 {
		return e.now()
	}
	return asOf
}

func (e *Engine) previewLoan(loan *Loan, asOf uint64) *BalancePreview {
	raw, period := e.projectBalance(loan, asOf)
	return &BalancePreview{
		LoanID:             loan.ID,
		Status:             loan.Status,
		PeriodIndex:        period,
		TrackedBalance:     raw,
		OutstandingBalance: RoundToAccuracy(raw, e.params.AccuracyUnit),
	}
}

// GetLoan returns a copy of the stored loan record. Closed loans stay
// queryable indefinitely.
func (e *Engine) GetLoan(loanID uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, ok, err := e.state.Loan(loanID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	return loan.Clone(), nil
}

// GetLoanBatch returns the requested loans in order, with a nil entry for
// every id that does not exist.
func (e *Engine) GetLoanBatch(loanIDs []uint64) ([]*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	out := make([]*Loan, len(loanIDs))
	for i, id := range loanIDs {
		loan, ok, err := e.state.Loan(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = loan.Clone()
		}
	}
	return out, nil
}

// PreviewBalance projects the obligation as of the given time without
// touching state. Passing zero previews at the current time. The preview
// carries both the raw tracked projection and the rounded amount a payer
// would settle.
func (e *Engine) PreviewBalance(loanID uint64, asOf uint64) (*BalancePreview, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, ok, err := e.state.Loan(loanID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	return e.previewLoan(loan, e.resolveAsOf(asOf)), nil
}

// PreviewBalanceBatch previews several loans at one shared time, with a nil
// entry for every id that does not exist.
func (e *Engine) PreviewBalanceBatch(loanIDs []uint64, asOf uint64) ([]*BalancePreview, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	at := e.resolveAsOf(asOf)
	out := make([]*BalancePreview, len(loanIDs))
	for i, id := range loanIDs {
		loan, ok, err := e.state.Loan(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = e.previewLoan(loan, at)
		}
	}
	return out, nil
}

// PreviewInstallmentGroup previews every member of the loan's installment
// group at one shared time and aggregates the rounded payoff. Standalone
// loans preview as a group of one.
func (e *Engine) PreviewInstallmentGroup(loanID uint64, asOf uint64) (*InstallmentGroupPreview, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, ok, err := e.state.Loan(loanID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	members, err := e.groupMembers(loan)
	if err != nil {
		return nil, err
	}
	at := e.resolveAsOf(asOf)
	preview := &InstallmentGroupPreview{
		FirstInstallmentID: loan.FirstInstallmentID,
		Members:            make([]*BalancePreview, 0, len(members)),
		TotalOutstanding:   big.NewInt(0),
	}
	for _, member := range members {
		mp := e.previewLoan(member, at)
		preview.Members = append(preview.Members, mp)
		preview.TotalOutstanding.Add(preview.TotalOutstanding, mp.OutstandingBalance)
	}
	return preview, nil
}

// IsAuthorizedForLoan reports whether the address is the loan's borrower or
// holds lender authority on its program.
func (e *Engine) IsAuthorizedForLoan(loanID uint64, addr Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	if e.programs == nil {
		return false, errNilRegistry
	}
	loan, ok, err := e.state.Loan(loanID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrLoanNotFound
	}
	if addr == loan.Borrower {
		return true, nil
	}
	return e.programs.IsAuthorizedForProgram(loan.ProgramID, addr)
}

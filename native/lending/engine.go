package lending

import (
	"fmt"
	"math/big"
	"time"

	"loanledger/core/events"
)

// engineState is the narrow persistence surface the loan engine depends on.
// The concrete implementation lives in core/state.
type engineState interface {
	Loan(id uint64) (*Loan, bool, error)
	PutLoan(loan *Loan) error
	NextLoanID() (uint64, error)
}

// programView is the slice of the registry the engine consults for routing
// and lender authorization. *Registry satisfies it.
type programView interface {
	GetProgram(id uint64) (*Program, error)
	IsAuthorizedForProgram(programID uint64, addr Address) (bool, error)
}

// Engine executes the loan lifecycle: origination, accrual projection,
// repayment, freezing, revocation and renegotiation. It owns no funds and no
// goroutines; the embedding ledger serializes calls and brackets them in a
// state overlay so a failed operation rolls back completely.
type Engine struct {
	state    engineState
	programs programView
	resolver CollaboratorResolver
	mover    ValueMover
	emitter  events.Emitter
	params   Params
	nowFn    func() uint64
}

// NewEngine creates a loan engine with default parameters, a no-op emitter
// and the wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		params:  DefaultParams(),
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) {
	if e == nil {
		return
	}
	e.state = state
}

// SetRegistry wires the program registry view.
func (e *Engine) SetRegistry(view programView) {
	if e == nil {
		return
	}
	e.programs = view
}

// SetResolver wires the collaborator resolver.
func (e *Engine) SetResolver(resolver CollaboratorResolver) {
	if e == nil {
		return
	}
	e.resolver = resolver
}

// SetValueMover wires the transfer executor.
func (e *Engine) SetValueMover(mover ValueMover) {
	if e == nil {
		return
	}
	e.mover = mover
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetParams replaces the ledger parameters. Changing them underneath live
// loans rewrites their economics; the facade only calls this at construction.
func (e *Engine) SetParams(params Params) error {
	if e == nil {
		return errNilState
	}
	if err := params.Validate(); err != nil {
		return err
	}
	e.params = params
	return nil
}

// Params returns the active parameter set.
func (e *Engine) Params() Params {
	if e == nil {
		return DefaultParams()
	}
	return e.params
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() uint64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	switch {
	case e == nil, e.state == nil:
		return errNilState
	case e.programs == nil:
		return errNilRegistry
	case e.resolver == nil:
		return errNilResolver
	case e.mover == nil:
		return errNilMover
	default:
		return nil
	}
}

// --- Origination ---

// TakeLoan originates a loan for the caller themselves. The program's policy
// prices the draw; principal moves from the funding source to the borrower
// only after both collaborators accept it.
func (e *Engine) TakeLoan(borrower Address, programID uint64, principal *big.Int, requestedDuration uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if borrower.IsZero() {
		return 0, fmt.Errorf("%w: borrower required", ErrInvalidArgument)
	}
	if err := e.checkPrincipal(principal); err != nil {
		return 0, err
	}
	program, policy, source, err := e.route(programID)
	if err != nil {
		return 0, err
	}
	req := &TermsRequest{
		ProgramID:         programID,
		Borrower:          borrower,
		Principal:         copyBigInt(principal),
		RequestedDuration: requestedDuration,
	}
	terms, err := e.price(policy, req)
	if err != nil {
		return 0, err
	}
	loan, err := e.draw(program, policy, source, borrower, principal, terms, 0, 0)
	if err != nil {
		return 0, err
	}
	return loan.ID, nil
}

// TakeLoanFor originates a loan for the borrower on the lender's initiative.
// The caller must hold lender authority on the program. A non-nil addon
// overrides the addon priced by the policy.
func (e *Engine) TakeLoanFor(caller, borrower Address, programID uint64, principal *big.Int, requestedDuration uint64, addon *big.Int) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if caller.IsZero() || borrower.IsZero() {
		return 0, fmt.Errorf("%w: caller and borrower required", ErrInvalidArgument)
	}
	if err := e.checkPrincipal(principal); err != nil {
		return 0, err
	}
	if addon != nil {
		if addon.Sign() < 0 {
			return 0, fmt.Errorf("%w: addon must be non-negative", ErrInvalidAmount)
		}
		if !IsAligned(addon, e.params.AccuracyUnit) {
			return 0, fmt.Errorf("%w: addon must align to the accuracy unit", ErrInvalidAmount)
		}
	}
	authorized, err := e.programs.IsAuthorizedForProgram(programID, caller)
	if err != nil {
		return 0, err
	}
	if !authorized {
		return 0, ErrNotAuthorized
	}
	program, policy, source, err := e.route(programID)
	if err != nil {
		return 0, err
	}
	req := &TermsRequest{
		ProgramID:         programID,
		Borrower:          borrower,
		Principal:         copyBigInt(principal),
		RequestedDuration: requestedDuration,
	}
	terms, err := e.price(policy, req)
	if err != nil {
		return 0, err
	}
	if addon != nil {
		terms.Addon = new(big.Int).Set(addon)
	}
	loan, err := e.draw(program, policy, source, borrower, principal, terms, 0, 0)
	if err != nil {
		return 0, err
	}
	return loan.ID, nil
}

// TakeInstallmentLoan originates a group of draws in one atomic operation.
// Durations must be non-decreasing across the group and the member count is
// capped by the installment limit. Either every draw lands or none does.
func (e *Engine) TakeInstallmentLoan(borrower Address, programID uint64, principals []*big.Int, requestedDurations []uint64) ([]uint64, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if borrower.IsZero() {
		return nil, fmt.Errorf("%w: borrower required", ErrInvalidArgument)
	}
	count := uint64(len(principals))
	if count < 2 {
		return nil, fmt.Errorf("%w: installment origination needs at least two draws", ErrInvalidArgument)
	}
	if len(requestedDurations) != len(principals) {
		return nil, fmt.Errorf("%w: one duration per draw required", ErrInvalidArgument)
	}
	if count > e.params.InstallmentLimit {
		return nil, fmt.Errorf("%w: %d draws exceed limit %d", ErrInstallmentLimit, count, e.params.InstallmentLimit)
	}
	total := big.NewInt(0)
	for i, principal := range principals {
		if err := e.checkPrincipal(principal); err != nil {
			return nil, fmt.Errorf("draw %d: %w", i, err)
		}
		if i > 0 && requestedDurations[i] < requestedDurations[i-1] {
			return nil, fmt.Errorf("%w: durations must be non-decreasing", ErrInvalidDuration)
		}
		total.Add(total, principal)
	}
	program, policy, source, err := e.route(programID)
	if err != nil {
		return nil, err
	}

	// Price every member before any state or value moves.
	termsByDraw := make([]*Terms, count)
	for i := range principals {
		req := &TermsRequest{
			ProgramID:         programID,
			Borrower:          borrower,
			Principal:         copyBigInt(principals[i]),
			RequestedDuration: requestedDurations[i],
			InstallmentIndex:  uint64(i),
			InstallmentCount:  count,
			TotalPrincipal:    new(big.Int).Set(total),
		}
		terms, err := e.price(policy, req)
		if err != nil {
			return nil, fmt.Errorf("draw %d: %w", i, err)
		}
		if i > 0 && terms.DurationPeriods < termsByDraw[i-1].DurationPeriods {
			return nil, fmt.Errorf("%w: priced durations must stay non-decreasing", ErrCollaborator)
		}
		termsByDraw[i] = terms
	}

	firstID, err := e.state.NextLoanID()
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, count)
	ids[0] = firstID
	for i := uint64(1); i < count; i++ {
		id, err := e.state.NextLoanID()
		if err != nil {
			return nil, err
		}
		if id != firstID+i {
			return nil, fmt.Errorf("lending engine: non-contiguous loan ids %d after %d", id, firstID)
		}
		ids[i] = id
	}
	for i := range principals {
		if _, err := e.drawWithID(ids[i], program, policy, source, borrower, principals[i], termsByDraw[i], firstID, count); err != nil {
			return nil, fmt.Errorf("draw %d: %w", i, err)
		}
	}
	return ids, nil
}

func (e *Engine) checkPrincipal(principal *big.Int) error {
	if principal == nil || principal.Sign() <= 0 {
		return fmt.Errorf("%w: principal must be positive", ErrInvalidAmount)
	}
	if !IsAligned(principal, e.params.AccuracyUnit) {
		return fmt.Errorf("%w: principal must align to the accuracy unit", ErrInvalidAmount)
	}
	return nil
}

// route resolves the program and both of its live collaborators.
func (e *Engine) route(programID uint64) (*Program, UnderwritingPolicy, FundingSource, error) {
	program, err := e.programs.GetProgram(programID)
	if err != nil {
		return nil, nil, nil, err
	}
	policy, err := e.resolver.Policy(program.PolicyRef)
	if err != nil || policy == nil {
		return nil, nil, nil, fmt.Errorf("%w: resolve policy %s: %v", ErrCollaborator, program.PolicyRef, err)
	}
	source, err := e.resolver.Source(program.SourceRef)
	if err != nil || source == nil {
		return nil, nil, nil, fmt.Errorf("%w: resolve source %s: %v", ErrCollaborator, program.SourceRef, err)
	}
	return program, policy, source, nil
}

func (e *Engine) price(policy UnderwritingPolicy, req *TermsRequest) (*Terms, error) {
	terms, err := policy.DetermineTerms(req.Clone())
	if err != nil {
		return nil, fmt.Errorf("%w: determine terms: %v", ErrCollaborator, err)
	}
	sanitized, err := SanitizeTerms(terms, e.params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollaborator, err)
	}
	return sanitized, nil
}

func (e *Engine) draw(program *Program, policy UnderwritingPolicy, source FundingSource, borrower Address, principal *big.Int, terms *Terms, firstInstallmentID, installmentCount uint64) (*Loan, error) {
	id, err := e.state.NextLoanID()
	if err != nil {
		return nil, err
	}
	return e.drawWithID(id, program, policy, source, borrower, principal, terms, firstInstallmentID, installmentCount)
}

func (e *Engine) drawWithID(id uint64, program *Program, policy UnderwritingPolicy, source FundingSource, borrower Address, principal *big.Int, terms *Terms, firstInstallmentID, installmentCount uint64) (*Loan, error) {
	now := e.now()
	initial := new(big.Int).Add(principal, terms.Addon)
	loan := &Loan{
		ID:                 id,
		ProgramID:          program.ID,
		Borrower:           borrower,
		Principal:          copyBigInt(principal),
		InitialBalance:     initial,
		TrackedBalance:     new(big.Int).Set(initial),
		TrackedTimestamp:   now,
		StartTimestamp:     now,
		DurationPeriods:    terms.DurationPeriods,
		RatePrimary:        terms.RatePrimary,
		RateSecondary:      terms.RateSecondary,
		RepaidTotal:        big.NewInt(0),
		Status:             LoanActive,
		AutoRepayment:      terms.AutoRepayment,
		FirstInstallmentID: firstInstallmentID,
		InstallmentCount:   installmentCount,
	}
	if err := policy.OnBeforeDraw(loan.Clone()); err != nil {
		return nil, fmt.Errorf("%w: policy vetoed draw: %v", ErrCollaborator, err)
	}
	if err := source.OnBeforeDraw(loan.Clone()); err != nil {
		return nil, fmt.Errorf("%w: source vetoed draw: %v", ErrCollaborator, err)
	}
	if err := e.mover.Move(program.SourceRef, borrower, copyBigInt(principal)); err != nil {
		return nil, fmt.Errorf("lending engine: principal transfer: %w", err)
	}
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	e.emit(events.LoanOriginated{
		LoanID:             loan.ID,
		ProgramID:          loan.ProgramID,
		Borrower:           loan.Borrower,
		Principal:          copyBigInt(loan.Principal),
		InitialBalance:     copyBigInt(loan.InitialBalance),
		DurationPeriods:    loan.DurationPeriods,
		RatePrimary:        loan.RatePrimary,
		RateSecondary:      loan.RateSecondary,
		StartTimestamp:     loan.StartTimestamp,
		FirstInstallmentID: loan.FirstInstallmentID,
		InstallmentCount:   loan.InstallmentCount,
	})
	return loan, nil
}

// --- Repayment ---

// RepayLoan settles part or all of the outstanding balance and returns the
// settled amount. Passing RepayMax settles the full rounded payoff. Anyone
// may pay on a loan; when the caller is the program's funding source the
// payment is drawn from the borrower instead, which the loan must have been
// originated to permit.
func (e *Engine) RepayLoan(caller Address, loanID uint64, amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, fmt.Errorf("%w: caller required", ErrInvalidArgument)
	}
	if amount == nil {
		return nil, fmt.Errorf("%w: amount required", ErrInvalidAmount)
	}
	loan, ok, err := e.state.Loan(loanID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	if loan.Status.Closed() {
		return nil, ErrLoanClosed
	}
	program, policy, source, err := e.route(loan.ProgramID)
	if err != nil {
		return nil, err
	}
	payer := caller
	if caller == program.SourceRef {
		if !loan.AutoRepayment {
			return nil, fmt.Errorf("%w: loan does not permit source-initiated repayment", ErrNotAuthorized)
		}
		payer = loan.Borrower
	}

	now := e.now()
	raw, _ := e.projectBalance(loan, now)
	rounded := RoundToAccuracy(raw, e.params.AccuracyUnit)

	var settle *big.Int
	switch {
	case amount.Cmp(RepayMax) == 0:
		settle = new(big.Int).Set(rounded)
	case amount.Sign() <= 0:
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	case !IsAligned(amount, e.params.AccuracyUnit):
		return nil, fmt.Errorf("%w: amount must align to the accuracy unit", ErrInvalidAmount)
	case amount.Cmp(rounded) > 0:
		return nil, fmt.Errorf("%w: amount exceeds outstanding balance", ErrInvalidAmount)
	default:
		settle = new(big.Int).Set(amount)
	}
	full := settle.Cmp(rounded) == 0

	if settle.Sign() > 0 {
		if err := e.mover.Move(payer, program.SourceRef, new(big.Int).Set(settle)); err != nil {
			return nil, fmt.Errorf("lending engine: repayment transfer: %w", err)
		}
	}

	loan.TrackedTimestamp = now
	loan.RepaidTotal = new(big.Int).Add(loan.RepaidTotal, settle)
	if full {
		// Full settlement closes the obligation exactly, regardless of
		// the rounding delta between raw and rounded payoff.
		loan.TrackedBalance = big.NewInt(0)
		loan.Status = LoanRepaid
		loan.FreezeTimestamp = 0
	} else {
		loan.TrackedBalance = new(big.Int).Sub(raw, settle)
	}
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	if err := policy.OnAfterPayment(loan.Clone(), new(big.Int).Set(settle), payer); err != nil {
		return nil, fmt.Errorf("%w: policy payment hook: %v", ErrCollaborator, err)
	}
	if err := source.OnAfterPayment(loan.Clone(), new(big.Int).Set(settle), payer); err != nil {
		return nil, fmt.Errorf("%w: source payment hook: %v", ErrCollaborator, err)
	}
	e.emit(events.LoanRepaid{
		LoanID:           loan.ID,
		ProgramID:        loan.ProgramID,
		Payer:            payer,
		Amount:           copyBigInt(settle),
		RemainingBalance: copyBigInt(loan.TrackedBalance),
		Full:             full,
		Timestamp:        now,
	})
	return settle, nil
}

// --- Freezing ---

// FreezeLoan suspends accrual on an active loan. Only the program's lender or
// its alias may freeze.
func (e *Engine) FreezeLoan(caller Address, loanID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	loan, err := e.lenderLoan(caller, loanID)
	if err != nil {
		return err
	}
	if loan.Status.Closed() {
		return ErrLoanClosed
	}
	if loan.Status != LoanActive {
		return ErrLoanNotActive
	}
	now := e.now()
	loan.FreezeTimestamp = now
	loan.Status = LoanFrozen
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanFrozen{LoanID: loan.ID, ProgramID: loan.ProgramID, Timestamp: now})
	return nil
}

// UnfreezeLoan resumes accrual on a frozen loan. The balance carries over
// exactly as it stood at the freeze and the term is extended by the whole
// periods spent frozen, so the frozen window never costs the borrower
// interest or term.
func (e *Engine) UnfreezeLoan(caller Address, loanID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	loan, err := e.lenderLoan(caller, loanID)
	if err != nil {
		return err
	}
	if loan.Status.Closed() {
		return ErrLoanClosed
	}
	if loan.Status != LoanFrozen {
		return ErrLoanNotFrozen
	}
	now := e.now()
	frozenAt := loan.FreezeTimestamp
	raw, _ := e.projectBalance(loan, frozenAt)
	frozenPeriods := uint64(0)
	if now > frozenAt && e.params.PeriodSeconds > 0 {
		frozenPeriods = (now - frozenAt) / e.params.PeriodSeconds
	}
	loan.TrackedBalance = raw
	loan.TrackedTimestamp = now
	loan.DurationPeriods += frozenPeriods
	loan.FreezeTimestamp = 0
	loan.Status = LoanActive
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanUnfrozen{
		LoanID:          loan.ID,
		ProgramID:       loan.ProgramID,
		FrozenPeriods:   frozenPeriods,
		DurationPeriods: loan.DurationPeriods,
		Timestamp:       now,
	})
	return nil
}

// --- Revocation ---

// RevokeLoan unwinds a loan back to its principal: the borrower ends up
// having paid exactly the principal and the loan closes. Borrowers may revoke
// their own loans only inside the cooldown window after origination; the
// lender and its alias may revoke at any time. Revoking any member of an
// installment group unwinds every ongoing member.
func (e *Engine) RevokeLoan(caller Address, loanID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller.IsZero() {
		return fmt.Errorf("%w: caller required", ErrInvalidArgument)
	}
	loan, ok, err := e.state.Loan(loanID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLoanNotFound
	}

	members, err := e.groupMembers(loan)
	if err != nil {
		return err
	}
	ongoing := make([]*Loan, 0, len(members))
	for _, member := range members {
		if member.Status.Ongoing() {
			ongoing = append(ongoing, member)
		}
	}
	if len(ongoing) == 0 {
		return ErrLoanClosed
	}

	now := e.now()
	if caller == loan.Borrower {
		if PeriodIndex(loan.StartTimestamp, now, e.params.PeriodSeconds) >= e.params.CooldownPeriods {
			return ErrCooldownExpired
		}
	} else {
		authorized, err := e.programs.IsAuthorizedForProgram(loan.ProgramID, caller)
		if err != nil {
			return err
		}
		if !authorized {
			return ErrNotAuthorized
		}
	}

	program, policy, source, err := e.route(loan.ProgramID)
	if err != nil {
		return err
	}
	for _, member := range ongoing {
		if err := e.revokeOne(member, program, policy, source, caller, now); err != nil {
			return fmt.Errorf("loan %d: %w", member.ID, err)
		}
	}
	return nil
}

func (e *Engine) revokeOne(loan *Loan, program *Program, policy UnderwritingPolicy, source FundingSource, caller Address, now uint64) error {
	shortfall := big.NewInt(0)
	excess := big.NewInt(0)
	diff := new(big.Int).Sub(loan.Principal, loan.RepaidTotal)
	switch diff.Sign() {
	case 1:
		shortfall = diff
		if err := e.mover.Move(loan.Borrower, program.SourceRef, new(big.Int).Set(shortfall)); err != nil {
			return fmt.Errorf("lending engine: revocation transfer: %w", err)
		}
	case -1:
		excess = new(big.Int).Neg(diff)
		if err := e.mover.Move(program.SourceRef, loan.Borrower, new(big.Int).Set(excess)); err != nil {
			return fmt.Errorf("lending engine: revocation transfer: %w", err)
		}
	}
	loan.TrackedBalance = big.NewInt(0)
	loan.TrackedTimestamp = now
	loan.RepaidTotal = new(big.Int).Set(loan.Principal)
	loan.FreezeTimestamp = 0
	loan.Status = LoanRevoked
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	if err := policy.OnAfterRevocation(loan.Clone()); err != nil {
		return fmt.Errorf("%w: policy revocation hook: %v", ErrCollaborator, err)
	}
	if err := source.OnAfterRevocation(loan.Clone()); err != nil {
		return fmt.Errorf("%w: source revocation hook: %v", ErrCollaborator, err)
	}
	e.emit(events.LoanRevoked{
		LoanID:    loan.ID,
		ProgramID: loan.ProgramID,
		Initiator: caller,
		Shortfall: copyBigInt(shortfall),
		Excess:    copyBigInt(excess),
		Timestamp: now,
	})
	return nil
}

// --- Renegotiation ---

// UpdateLoanDuration extends the loan term. Accrued interest up to now is
// materialized under the old terms first; the new duration only shapes future
// periods. Durations may only grow.
func (e *Engine) UpdateLoanDuration(caller Address, loanID uint64, durationPeriods uint64) error {
	return e.renegotiate(caller, loanID, events.LoanChangeDuration, func(loan *Loan) (uint64, uint64, error) {
		if durationPeriods <= loan.DurationPeriods {
			return 0, 0, fmt.Errorf("%w: duration may only increase", ErrInvalidDuration)
		}
		old := loan.DurationPeriods
		loan.DurationPeriods = durationPeriods
		return old, durationPeriods, nil
	})
}

// UpdateLoanInterestRatePrimary lowers the pre-boundary rate. Rates may only
// decrease.
func (e *Engine) UpdateLoanInterestRatePrimary(caller Address, loanID uint64, rate uint64) error {
	return e.renegotiate(caller, loanID, events.LoanChangeRatePrimary, func(loan *Loan) (uint64, uint64, error) {
		if rate >= loan.RatePrimary {
			return 0, 0, fmt.Errorf("%w: rate may only decrease", ErrInvalidRate)
		}
		old := loan.RatePrimary
		loan.RatePrimary = rate
		return old, rate, nil
	})
}

// UpdateLoanInterestRateSecondary lowers the post-boundary rate. Rates may
// only decrease.
func (e *Engine) UpdateLoanInterestRateSecondary(caller Address, loanID uint64, rate uint64) error {
	return e.renegotiate(caller, loanID, events.LoanChangeRateSecondary, func(loan *Loan) (uint64, uint64, error) {
		if rate >= loan.RateSecondary {
			return 0, 0, fmt.Errorf("%w: rate may only decrease", ErrInvalidRate)
		}
		old := loan.RateSecondary
		loan.RateSecondary = rate
		return old, rate, nil
	})
}

func (e *Engine) renegotiate(caller Address, loanID uint64, change string, apply func(*Loan) (uint64, uint64, error)) error {
	if err := e.ready(); err != nil {
		return err
	}
	loan, err := e.lenderLoan(caller, loanID)
	if err != nil {
		return err
	}
	if loan.Status.Closed() {
		return ErrLoanClosed
	}

	// Materialize accrual under the outgoing terms so the change is
	// strictly forward-looking.
	now := e.now()
	raw, _ := e.projectBalance(loan, now)
	loan.TrackedBalance = raw
	loan.TrackedTimestamp = now

	oldValue, newValue, err := apply(loan)
	if err != nil {
		return err
	}
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanRenegotiated{
		LoanID:    loan.ID,
		ProgramID: loan.ProgramID,
		Change:    change,
		OldValue:  oldValue,
		NewValue:  newValue,
		Timestamp: now,
	})
	return nil
}

// lenderLoan loads the loan and verifies the caller holds lender authority on
// its program.
func (e *Engine) lenderLoan(caller Address, loanID uint64) (*Loan, error) {
	if caller.IsZero() {
		return nil, fmt.Errorf("%w: caller required", ErrInvalidArgument)
	}
	loan, ok, err := e.state.Loan(loanID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	authorized, err := e.programs.IsAuthorizedForProgram(loan.ProgramID, caller)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, ErrNotAuthorized
	}
	return loan, nil
}

// groupMembers returns the loan itself for standalone loans, or every member
// of its installment group in origination order. Member IDs are contiguous
// from the head because group origination draws them inside one serialized
// operation.
func (e *Engine) groupMembers(loan *Loan) ([]*Loan, error) {
	if !loan.Grouped() {
		return []*Loan{loan}, nil
	}
	members := make([]*Loan, 0, loan.InstallmentCount)
	for i := uint64(0); i < loan.InstallmentCount; i++ {
		id := loan.FirstInstallmentID + i
		if id == loan.ID {
			members = append(members, loan)
			continue
		}
		member, ok, err := e.state.Loan(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("lending engine: installment member %d missing", id)
		}
		members = append(members, member)
	}
	return members, nil
}

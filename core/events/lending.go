package events

import "math/big"

const (
	// TypeLoanOriginated is emitted when a new loan is drawn, including each
	// member of an installment group.
	TypeLoanOriginated = "lending.loan.originated"
	// TypeLoanRepaid is emitted for every settled repayment, partial or
	// full.
	TypeLoanRepaid = "lending.loan.repaid"
	// TypeLoanFrozen is emitted when accrual is suspended on a loan.
	TypeLoanFrozen = "lending.loan.frozen"
	// TypeLoanUnfrozen is emitted when a frozen loan resumes accrual.
	TypeLoanUnfrozen = "lending.loan.unfrozen"
	// TypeLoanRevoked is emitted for each loan closed by a revocation
	// unwind.
	TypeLoanRevoked = "lending.loan.revoked"
	// TypeLoanRenegotiated is emitted when a loan's duration or one of its
	// rates is adjusted.
	TypeLoanRenegotiated = "lending.loan.renegotiated"
	// TypeProgramCreated is emitted when a lender binds a policy and
	// funding source into a new program.
	TypeProgramCreated = "lending.program.created"
	// TypeProgramUpdated is emitted when a program is re-routed to new
	// collaborator references.
	TypeProgramUpdated = "lending.program.updated"
	// TypePolicyRegistered is emitted when an underwriting policy reference
	// passes its self check and is claimed by a lender.
	TypePolicyRegistered = "lending.policy.registered"
	// TypeSourceRegistered is emitted when a funding source reference
	// passes its self check and is claimed by a lender.
	TypeSourceRegistered = "lending.source.registered"
	// TypeAliasConfigured is emitted when a lender delegates operational
	// authority to an alias address.
	TypeAliasConfigured = "lending.alias.configured"
)

// Renegotiation change labels carried by LoanRenegotiated.
const (
	LoanChangeDuration      = "duration"
	LoanChangeRatePrimary   = "rate_primary"
	LoanChangeRateSecondary = "rate_secondary"
)

// LoanOriginated captures the obligation created by a draw.
type LoanOriginated struct {
	LoanID             uint64
	ProgramID          uint64
	Borrower           [20]byte
	Principal          *big.Int
	InitialBalance     *big.Int
	DurationPeriods    uint64
	RatePrimary        uint64
	RateSecondary      uint64
	StartTimestamp     uint64
	FirstInstallmentID uint64
	InstallmentCount   uint64
}

// EventType implements events.Event.
func (LoanOriginated) EventType() string { return TypeLoanOriginated }

// LoanRepaid records a settled repayment.
type LoanRepaid struct {
	LoanID           uint64
	ProgramID        uint64
	Payer            [20]byte
	Amount           *big.Int
	RemainingBalance *big.Int
	Full             bool
	Timestamp        uint64
}

// EventType implements events.Event.
func (LoanRepaid) EventType() string { return TypeLoanRepaid }

// LoanFrozen records the suspension of accrual.
type LoanFrozen struct {
	LoanID    uint64
	ProgramID uint64
	Timestamp uint64
}

// EventType implements events.Event.
func (LoanFrozen) EventType() string { return TypeLoanFrozen }

// LoanUnfrozen records the resumption of accrual and the duration extension
// covering the frozen window.
type LoanUnfrozen struct {
	LoanID          uint64
	ProgramID       uint64
	FrozenPeriods   uint64
	DurationPeriods uint64
	Timestamp       uint64
}

// EventType implements events.Event.
func (LoanUnfrozen) EventType() string { return TypeLoanUnfrozen }

// LoanRevoked records a revocation unwind for a single loan.
type LoanRevoked struct {
	LoanID    uint64
	ProgramID uint64
	Initiator [20]byte
	// Shortfall is the amount collected from the borrower to reach the
	// principal; Excess is the amount returned to the borrower beyond it.
	// At most one of the two is non-zero.
	Shortfall *big.Int
	Excess    *big.Int
	Timestamp uint64
}

// EventType implements events.Event.
func (LoanRevoked) EventType() string { return TypeLoanRevoked }

// LoanRenegotiated records a single-field renegotiation.
type LoanRenegotiated struct {
	LoanID    uint64
	ProgramID uint64
	Change    string
	OldValue  uint64
	NewValue  uint64
	Timestamp uint64
}

// EventType implements events.Event.
func (LoanRenegotiated) EventType() string { return TypeLoanRenegotiated }

// ProgramCreated captures a new lending route.
type ProgramCreated struct {
	ProgramID uint64
	Lender    [20]byte
	PolicyRef [20]byte
	SourceRef [20]byte
	Timestamp uint64
}

// EventType implements events.Event.
func (ProgramCreated) EventType() string { return TypeProgramCreated }

// ProgramUpdated captures a program re-route.
type ProgramUpdated struct {
	ProgramID uint64
	Lender    [20]byte
	PolicyRef [20]byte
	SourceRef [20]byte
	Timestamp uint64
}

// EventType implements events.Event.
func (ProgramUpdated) EventType() string { return TypeProgramUpdated }

// PolicyRegistered captures a claimed underwriting policy reference.
type PolicyRegistered struct {
	Ref       [20]byte
	Lender    [20]byte
	Timestamp uint64
}

// EventType implements events.Event.
func (PolicyRegistered) EventType() string { return TypePolicyRegistered }

// SourceRegistered captures a claimed funding source reference.
type SourceRegistered struct {
	Ref       [20]byte
	Lender    [20]byte
	Timestamp uint64
}

// EventType implements events.Event.
func (SourceRegistered) EventType() string { return TypeSourceRegistered }

// AliasConfigured captures a lender delegating authority to an alias.
type AliasConfigured struct {
	Lender    [20]byte
	Alias     [20]byte
	Timestamp uint64
}

// EventType implements events.Event.
func (AliasConfigured) EventType() string { return TypeAliasConfigured }

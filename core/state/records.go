package state

import (
	"fmt"
	"math/big"

	"loanledger/native/lending"
)

// storedLoan is the storage layout of a loan record. It is decoupled from the
// domain type so the schema can evolve without touching the engine.
type storedLoan struct {
	ID                 uint64
	ProgramID          uint64
	Borrower           [20]byte
	Principal          *big.Int
	InitialBalance     *big.Int
	TrackedBalance     *big.Int
	TrackedTimestamp   uint64
	StartTimestamp     uint64
	DurationPeriods    uint64
	RatePrimary        uint64
	RateSecondary      uint64
	FreezeTimestamp    uint64
	RepaidTotal        *big.Int
	Status             uint8
	AutoRepayment      bool
	FirstInstallmentID uint64
	InstallmentCount   uint64
}

func newStoredLoan(loan *lending.Loan) *storedLoan {
	if loan == nil {
		return nil
	}
	return &storedLoan{
		ID:                 loan.ID,
		ProgramID:          loan.ProgramID,
		Borrower:           [20]byte(loan.Borrower),
		Principal:          storedAmount(loan.Principal),
		InitialBalance:     storedAmount(loan.InitialBalance),
		TrackedBalance:     storedAmount(loan.TrackedBalance),
		TrackedTimestamp:   loan.TrackedTimestamp,
		StartTimestamp:     loan.StartTimestamp,
		DurationPeriods:    loan.DurationPeriods,
		RatePrimary:        loan.RatePrimary,
		RateSecondary:      loan.RateSecondary,
		FreezeTimestamp:    loan.FreezeTimestamp,
		RepaidTotal:        storedAmount(loan.RepaidTotal),
		Status:             uint8(loan.Status),
		AutoRepayment:      loan.AutoRepayment,
		FirstInstallmentID: loan.FirstInstallmentID,
		InstallmentCount:   loan.InstallmentCount,
	}
}

func (s *storedLoan) toLoan() (*lending.Loan, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil loan record")
	}
	status := lending.LoanStatus(s.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("state: loan %d: invalid status %d", s.ID, s.Status)
	}
	if s.ID == 0 {
		return nil, fmt.Errorf("state: loan record without id")
	}
	return &lending.Loan{
		ID:                 s.ID,
		ProgramID:          s.ProgramID,
		Borrower:           lending.Address(s.Borrower),
		Principal:          storedAmount(s.Principal),
		InitialBalance:     storedAmount(s.InitialBalance),
		TrackedBalance:     storedAmount(s.TrackedBalance),
		TrackedTimestamp:   s.TrackedTimestamp,
		StartTimestamp:     s.StartTimestamp,
		DurationPeriods:    s.DurationPeriods,
		RatePrimary:        s.RatePrimary,
		RateSecondary:      s.RateSecondary,
		FreezeTimestamp:    s.FreezeTimestamp,
		RepaidTotal:        storedAmount(s.RepaidTotal),
		Status:             status,
		AutoRepayment:      s.AutoRepayment,
		FirstInstallmentID: s.FirstInstallmentID,
		InstallmentCount:   s.InstallmentCount,
	}, nil
}

type storedProgram struct {
	ID        uint64
	Lender    [20]byte
	PolicyRef [20]byte
	SourceRef [20]byte
	CreatedAt uint64
	UpdatedAt uint64
}

func newStoredProgram(program *lending.Program) *storedProgram {
	if program == nil {
		return nil
	}
	return &storedProgram{
		ID:        program.ID,
		Lender:    [20]byte(program.Lender),
		PolicyRef: [20]byte(program.PolicyRef),
		SourceRef: [20]byte(program.SourceRef),
		CreatedAt: program.CreatedAt,
		UpdatedAt: program.UpdatedAt,
	}
}

func (s *storedProgram) toProgram() (*lending.Program, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil program record")
	}
	if s.ID == 0 {
		return nil, fmt.Errorf("state: program record without id")
	}
	return &lending.Program{
		ID:        s.ID,
		Lender:    lending.Address(s.Lender),
		PolicyRef: lending.Address(s.PolicyRef),
		SourceRef: lending.Address(s.SourceRef),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}, nil
}

func storedAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

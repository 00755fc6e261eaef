package state

import (
	"encoding/binary"
	"fmt"

	"loanledger/native/lending"
)

func loanKey(id uint64) []byte {
	buf := make([]byte, len(loanRecordPrefix)+8)
	copy(buf, loanRecordPrefix)
	binary.BigEndian.PutUint64(buf[len(loanRecordPrefix):], id)
	return buf
}

func programKey(id uint64) []byte {
	buf := make([]byte, len(programRecordPrefix)+8)
	copy(buf, programRecordPrefix)
	binary.BigEndian.PutUint64(buf[len(programRecordPrefix):], id)
	return buf
}

func policyOwnerKey(ref lending.Address) []byte {
	buf := make([]byte, len(policyOwnerPrefix)+len(ref))
	copy(buf, policyOwnerPrefix)
	copy(buf[len(policyOwnerPrefix):], ref[:])
	return buf
}

func sourceOwnerKey(ref lending.Address) []byte {
	buf := make([]byte, len(sourceOwnerPrefix)+len(ref))
	copy(buf, sourceOwnerPrefix)
	copy(buf[len(sourceOwnerPrefix):], ref[:])
	return buf
}

func aliasKey(lender lending.Address) []byte {
	buf := make([]byte, len(aliasRecordPrefix)+len(lender))
	copy(buf, aliasRecordPrefix)
	copy(buf[len(aliasRecordPrefix):], lender[:])
	return buf
}

// Loan loads one loan record. The second return reports existence.
func (m *Manager) Loan(id uint64) (*lending.Loan, bool, error) {
	stored := new(storedLoan)
	ok, err := m.readRecord(loanKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	loan, err := stored.toLoan()
	if err != nil {
		return nil, false, err
	}
	return loan, true, nil
}

// PutLoan stores the loan record under its id.
func (m *Manager) PutLoan(loan *lending.Loan) error {
	if loan == nil {
		return fmt.Errorf("state: nil loan")
	}
	if loan.ID == 0 {
		return fmt.Errorf("state: loan id required")
	}
	if !loan.Status.Valid() {
		return fmt.Errorf("state: loan %d: invalid status %d", loan.ID, loan.Status)
	}
	return m.writeRecord(loanKey(loan.ID), newStoredLoan(loan))
}

// NextLoanID hands out the next loan id and advances the counter.
func (m *Manager) NextLoanID() (uint64, error) {
	return m.nextSequence(loanSequenceKey)
}

// LoanSequence returns the next unassigned loan id without consuming it.
// Every existing loan id is strictly below this value.
func (m *Manager) LoanSequence() (uint64, error) {
	return m.peekSequence(loanSequenceKey)
}

// Program loads one program record. The second return reports existence.
func (m *Manager) Program(id uint64) (*lending.Program, bool, error) {
	stored := new(storedProgram)
	ok, err := m.readRecord(programKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	program, err := stored.toProgram()
	if err != nil {
		return nil, false, err
	}
	return program, true, nil
}

// PutProgram stores the program record under its id.
func (m *Manager) PutProgram(program *lending.Program) error {
	if program == nil {
		return fmt.Errorf("state: nil program")
	}
	if program.ID == 0 {
		return fmt.Errorf("state: program id required")
	}
	return m.writeRecord(programKey(program.ID), newStoredProgram(program))
}

// NextProgramID hands out the next program id and advances the counter.
func (m *Manager) NextProgramID() (uint64, error) {
	return m.nextSequence(programSequenceKey)
}

// ProgramSequence returns the next unassigned program id without consuming
// it.
func (m *Manager) ProgramSequence() (uint64, error) {
	return m.peekSequence(programSequenceKey)
}

// PolicyOwner returns the lender that claimed the policy reference.
func (m *Manager) PolicyOwner(ref lending.Address) (lending.Address, bool, error) {
	var owner [20]byte
	ok, err := m.readRecord(policyOwnerKey(ref), &owner)
	if err != nil || !ok {
		return lending.Address{}, false, err
	}
	return lending.Address(owner), true, nil
}

// SetPolicyOwner records the lender's claim on the policy reference.
func (m *Manager) SetPolicyOwner(ref, lender lending.Address) error {
	if ref.IsZero() || lender.IsZero() {
		return fmt.Errorf("state: reference and lender required")
	}
	return m.writeRecord(policyOwnerKey(ref), [20]byte(lender))
}

// SourceOwner returns the lender that claimed the funding source reference.
func (m *Manager) SourceOwner(ref lending.Address) (lending.Address, bool, error) {
	var owner [20]byte
	ok, err := m.readRecord(sourceOwnerKey(ref), &owner)
	if err != nil || !ok {
		return lending.Address{}, false, err
	}
	return lending.Address(owner), true, nil
}

// SetSourceOwner records the lender's claim on the funding source reference.
func (m *Manager) SetSourceOwner(ref, lender lending.Address) error {
	if ref.IsZero() || lender.IsZero() {
		return fmt.Errorf("state: reference and lender required")
	}
	return m.writeRecord(sourceOwnerKey(ref), [20]byte(lender))
}

// Alias returns the delegate address configured for the lender.
func (m *Manager) Alias(lender lending.Address) (lending.Address, bool, error) {
	var alias [20]byte
	ok, err := m.readRecord(aliasKey(lender), &alias)
	if err != nil || !ok {
		return lending.Address{}, false, err
	}
	return lending.Address(alias), true, nil
}

// SetAlias records the lender's delegate. The registry enforces the set-once
// rule; the state layer stores whatever it gets told.
func (m *Manager) SetAlias(lender, alias lending.Address) error {
	if lender.IsZero() || alias.IsZero() {
		return fmt.Errorf("state: lender and alias required")
	}
	return m.writeRecord(aliasKey(lender), [20]byte(alias))
}

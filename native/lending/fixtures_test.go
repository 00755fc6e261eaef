package lending

import (
	"fmt"
	"math/big"
	"testing"

	"loanledger/core/events"
)

const testDay = 86_400

// baseTime is an arbitrary origination instant; tests step the clock in whole
// days relative to it.
const baseTime = uint64(1_700_000_000)

func makeAddress(b byte) Address {
	var addr Address
	addr[19] = b
	return addr
}

var (
	testLender    = makeAddress(0x01)
	testAlias     = makeAddress(0x02)
	testBorrower  = makeAddress(0x03)
	testPolicyRef = makeAddress(0x04)
	testSourceRef = makeAddress(0x05)
	testStranger  = makeAddress(0x06)
)

// testParams keeps the rate scale small so expectations stay hand-checkable;
// the accuracy unit of one disables rounding except where a test overrides it.
func testParams() Params {
	return Params{
		PeriodSeconds:    testDay,
		RateScale:        1000,
		AccuracyUnit:     1,
		CooldownPeriods:  3,
		InstallmentLimit: 5,
	}
}

type mockEngineState struct {
	loans    map[uint64]*Loan
	nextLoan uint64
	putErr   error
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{loans: make(map[uint64]*Loan), nextLoan: 1}
}

// Loan returns a clone, mirroring the real state manager which decodes a
// fresh record on every load.
func (m *mockEngineState) Loan(id uint64) (*Loan, bool, error) {
	loan, ok := m.loans[id]
	if !ok {
		return nil, false, nil
	}
	return loan.Clone(), true, nil
}

func (m *mockEngineState) PutLoan(loan *Loan) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.loans[loan.ID] = loan.Clone()
	return nil
}

func (m *mockEngineState) NextLoanID() (uint64, error) {
	id := m.nextLoan
	m.nextLoan++
	return id, nil
}

type mockRegistryState struct {
	policyOwners map[Address]Address
	sourceOwners map[Address]Address
	programs     map[uint64]*Program
	aliases      map[Address]Address
	nextProgram  uint64
}

func newMockRegistryState() *mockRegistryState {
	return &mockRegistryState{
		policyOwners: make(map[Address]Address),
		sourceOwners: make(map[Address]Address),
		programs:     make(map[uint64]*Program),
		aliases:      make(map[Address]Address),
		nextProgram:  1,
	}
}

func (m *mockRegistryState) PolicyOwner(ref Address) (Address, bool, error) {
	owner, ok := m.policyOwners[ref]
	return owner, ok, nil
}

func (m *mockRegistryState) SetPolicyOwner(ref, lender Address) error {
	m.policyOwners[ref] = lender
	return nil
}

func (m *mockRegistryState) SourceOwner(ref Address) (Address, bool, error) {
	owner, ok := m.sourceOwners[ref]
	return owner, ok, nil
}

func (m *mockRegistryState) SetSourceOwner(ref, lender Address) error {
	m.sourceOwners[ref] = lender
	return nil
}

func (m *mockRegistryState) Program(id uint64) (*Program, bool, error) {
	program, ok := m.programs[id]
	if !ok {
		return nil, false, nil
	}
	return program.Clone(), true, nil
}

func (m *mockRegistryState) PutProgram(program *Program) error {
	m.programs[program.ID] = program.Clone()
	return nil
}

func (m *mockRegistryState) NextProgramID() (uint64, error) {
	id := m.nextProgram
	m.nextProgram++
	return id, nil
}

func (m *mockRegistryState) Alias(lender Address) (Address, bool, error) {
	alias, ok := m.aliases[lender]
	return alias, ok, nil
}

func (m *mockRegistryState) SetAlias(lender, alias Address) error {
	m.aliases[lender] = alias
	return nil
}

// fakePolicy implements UnderwritingPolicy with overridable hooks; unset
// hooks accept everything and price draws at 5/1000 then 8/1000 over the
// requested duration (30 periods when none is requested).
type fakePolicy struct {
	addr              Address
	determineTerms    func(req *TermsRequest) (*Terms, error)
	onBeforeDraw      func(loan *Loan) error
	onAfterPayment    func(loan *Loan, amount *big.Int, payer Address) error
	onAfterRevocation func(loan *Loan) error
}

func (f *fakePolicy) Address() Address { return f.addr }

func (f *fakePolicy) DetermineTerms(req *TermsRequest) (*Terms, error) {
	if f.determineTerms != nil {
		return f.determineTerms(req)
	}
	duration := req.RequestedDuration
	if duration == 0 {
		duration = 30
	}
	return &Terms{DurationPeriods: duration, RatePrimary: 5, RateSecondary: 8}, nil
}

func (f *fakePolicy) OnBeforeDraw(loan *Loan) error {
	if f.onBeforeDraw != nil {
		return f.onBeforeDraw(loan)
	}
	return nil
}

func (f *fakePolicy) OnAfterPayment(loan *Loan, amount *big.Int, payer Address) error {
	if f.onAfterPayment != nil {
		return f.onAfterPayment(loan, amount, payer)
	}
	return nil
}

func (f *fakePolicy) OnAfterRevocation(loan *Loan) error {
	if f.onAfterRevocation != nil {
		return f.onAfterRevocation(loan)
	}
	return nil
}

type fakeSource struct {
	addr              Address
	onBeforeDraw      func(loan *Loan) error
	onAfterPayment    func(loan *Loan, amount *big.Int, payer Address) error
	onAfterRevocation func(loan *Loan) error
}

func (f *fakeSource) Address() Address { return f.addr }

func (f *fakeSource) OnBeforeDraw(loan *Loan) error {
	if f.onBeforeDraw != nil {
		return f.onBeforeDraw(loan)
	}
	return nil
}

func (f *fakeSource) OnAfterPayment(loan *Loan, amount *big.Int, payer Address) error {
	if f.onAfterPayment != nil {
		return f.onAfterPayment(loan, amount, payer)
	}
	return nil
}

func (f *fakeSource) OnAfterRevocation(loan *Loan) error {
	if f.onAfterRevocation != nil {
		return f.onAfterRevocation(loan)
	}
	return nil
}

type mapResolver struct {
	policies map[Address]UnderwritingPolicy
	sources  map[Address]FundingSource
}

func (r *mapResolver) Policy(ref Address) (UnderwritingPolicy, error) {
	policy, ok := r.policies[ref]
	if !ok {
		return nil, fmt.Errorf("no policy at %s", ref)
	}
	return policy, nil
}

func (r *mapResolver) Source(ref Address) (FundingSource, error) {
	source, ok := r.sources[ref]
	if !ok {
		return nil, fmt.Errorf("no source at %s", ref)
	}
	return source, nil
}

type transferRecord struct {
	from   Address
	to     Address
	amount *big.Int
}

type recordingMover struct {
	moves  []transferRecord
	failOn func(from, to Address, amount *big.Int) error
}

func (m *recordingMover) Move(from, to Address, amount *big.Int) error {
	if m.failOn != nil {
		if err := m.failOn(from, to, amount); err != nil {
			return err
		}
	}
	m.moves = append(m.moves, transferRecord{from: from, to: to, amount: new(big.Int).Set(amount)})
	return nil
}

func (m *recordingMover) last(t *testing.T) transferRecord {
	t.Helper()
	if len(m.moves) == 0 {
		t.Fatalf("no transfers recorded")
	}
	return m.moves[len(m.moves)-1]
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *captureEmitter) types() []string {
	out := make([]string, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.EventType()
	}
	return out
}

// engineFixture wires an engine, a real registry over mock state, fake
// collaborators and a controllable clock into a ready-to-originate setup with
// program 1 owned by testLender.
type engineFixture struct {
	engine   *Engine
	registry *Registry
	state    *mockEngineState
	regState *mockRegistryState
	policy   *fakePolicy
	source   *fakeSource
	mover    *recordingMover
	emitted  *captureEmitter
	now      uint64
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	fix := &engineFixture{
		state:    newMockEngineState(),
		regState: newMockRegistryState(),
		policy:   &fakePolicy{addr: testPolicyRef},
		source:   &fakeSource{addr: testSourceRef},
		mover:    &recordingMover{},
		emitted:  &captureEmitter{},
		now:      baseTime,
	}
	resolver := &mapResolver{
		policies: map[Address]UnderwritingPolicy{testPolicyRef: fix.policy},
		sources:  map[Address]FundingSource{testSourceRef: fix.source},
	}
	clock := func() uint64 { return fix.now }

	fix.registry = NewRegistry()
	fix.registry.SetState(fix.regState)
	fix.registry.SetResolver(resolver)
	fix.registry.SetNowFunc(clock)
	if err := fix.registry.RegisterUnderwritingPolicy(testLender, testPolicyRef); err != nil {
		t.Fatalf("register policy: %v", err)
	}
	if err := fix.registry.RegisterFundingSource(testLender, testSourceRef); err != nil {
		t.Fatalf("register source: %v", err)
	}
	programID, err := fix.registry.CreateProgram(testLender, testPolicyRef, testSourceRef)
	if err != nil {
		t.Fatalf("create program: %v", err)
	}
	if programID != 1 {
		t.Fatalf("unexpected program id: got %d want 1", programID)
	}

	fix.engine = NewEngine()
	if err := fix.engine.SetParams(testParams()); err != nil {
		t.Fatalf("set params: %v", err)
	}
	fix.engine.SetState(fix.state)
	fix.engine.SetRegistry(fix.registry)
	fix.engine.SetResolver(resolver)
	fix.engine.SetValueMover(fix.mover)
	fix.engine.SetEmitter(fix.emitted)
	fix.engine.SetNowFunc(clock)
	return fix
}

// advanceDays moves the shared clock forward.
func (f *engineFixture) advanceDays(days uint64) {
	f.now += days * testDay
}

// originate draws a standard loan of 100 over 30 periods for testBorrower.
func (f *engineFixture) originate(t *testing.T) uint64 {
	t.Helper()
	id, err := f.engine.TakeLoan(testBorrower, 1, big.NewInt(100), 30)
	if err != nil {
		t.Fatalf("take loan: %v", err)
	}
	return id
}

func (f *engineFixture) loan(t *testing.T, id uint64) *Loan {
	t.Helper()
	loan, ok, err := f.state.Loan(id)
	if err != nil {
		t.Fatalf("load loan %d: %v", id, err)
	}
	if !ok {
		t.Fatalf("loan %d not found", id)
	}
	return loan
}

package lending

import (
	"fmt"
	"time"

	"loanledger/core/events"
)

// registryState is the narrow persistence surface the registry depends on.
// The concrete implementation lives in core/state.
type registryState interface {
	PolicyOwner(ref Address) (Address, bool, error)
	SetPolicyOwner(ref, lender Address) error
	SourceOwner(ref Address) (Address, bool, error)
	SetSourceOwner(ref, lender Address) error
	Program(id uint64) (*Program, bool, error)
	PutProgram(program *Program) error
	NextProgramID() (uint64, error)
	Alias(lender Address) (Address, bool, error)
	SetAlias(lender, alias Address) error
}

// Registry manages collaborator references, programs and lender aliases. A
// reference is claimed exactly once by the lender registering it; programs
// bind one policy reference and one funding source reference owned by the
// same lender into a route loans can be drawn through.
type Registry struct {
	state    registryState
	resolver CollaboratorResolver
	emitter  events.Emitter
	nowFn    func() uint64
}

// NewRegistry creates a registry with a no-op emitter and the wall clock.
func NewRegistry() *Registry {
	return &Registry{
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState wires the persistence backend.
func (r *Registry) SetState(state registryState) {
	if r == nil {
		return
	}
	r.state = state
}

// SetResolver wires the collaborator resolver used for registration self
// checks.
func (r *Registry) SetResolver(resolver CollaboratorResolver) {
	if r == nil {
		return
	}
	r.resolver = resolver
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if r == nil {
		return
	}
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the clock, primarily for deterministic tests. Passing
// nil restores the wall clock.
func (r *Registry) SetNowFunc(now func() uint64) {
	if r == nil {
		return
	}
	if now == nil {
		r.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	r.nowFn = now
}

func (r *Registry) emit(evt events.Event) {
	if r == nil || r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(evt)
}

// RegisterUnderwritingPolicy claims the policy reference for the caller. The
// live implementation must resolve and report the same reference as its own
// address before the claim is stored.
func (r *Registry) RegisterUnderwritingPolicy(caller, ref Address) error {
	if r.state == nil {
		return errNilState
	}
	if r.resolver == nil {
		return errNilResolver
	}
	if caller.IsZero() || ref.IsZero() {
		return fmt.Errorf("%w: caller and reference required", ErrInvalidArgument)
	}
	if _, claimed, err := r.state.PolicyOwner(ref); err != nil {
		return err
	} else if claimed {
		return ErrAlreadyRegistered
	}
	impl, err := r.resolver.Policy(ref)
	if err != nil {
		return fmt.Errorf("%w: resolve policy %s: %v", ErrSelfCheckFailed, ref, err)
	}
	if impl == nil || impl.Address() != ref {
		return fmt.Errorf("%w: policy does not answer for %s", ErrSelfCheckFailed, ref)
	}
	if err := r.state.SetPolicyOwner(ref, caller); err != nil {
		return err
	}
	r.emit(events.PolicyRegistered{Ref: ref, Lender: caller, Timestamp: r.nowFn()})
	return nil
}

// RegisterFundingSource claims the funding source reference for the caller
// after the same self check applied to policies.
func (r *Registry) RegisterFundingSource(caller, ref Address) error {
	if r.state == nil {
		return errNilState
	}
	if r.resolver == nil {
		return errNilResolver
	}
	if caller.IsZero() || ref.IsZero() {
		return fmt.Errorf("%w: caller and reference required", ErrInvalidArgument)
	}
	if _, claimed, err := r.state.SourceOwner(ref); err != nil {
		return err
	} else if claimed {
		return ErrAlreadyRegistered
	}
	impl, err := r.resolver.Source(ref)
	if err != nil {
		return fmt.Errorf("%w: resolve source %s: %v", ErrSelfCheckFailed, ref, err)
	}
	if impl == nil || impl.Address() != ref {
		return fmt.Errorf("%w: source does not answer for %s", ErrSelfCheckFailed, ref)
	}
	if err := r.state.SetSourceOwner(ref, caller); err != nil {
		return err
	}
	r.emit(events.SourceRegistered{Ref: ref, Lender: caller, Timestamp: r.nowFn()})
	return nil
}

// CreateProgram binds a policy reference and a funding source reference owned
// by the same lender into a new program. The caller must be that lender or
// its configured alias; the program is recorded under the lender either way.
func (r *Registry) CreateProgram(caller, policyRef, sourceRef Address) (uint64, error) {
	if r.state == nil {
		return 0, errNilState
	}
	if caller.IsZero() || policyRef.IsZero() || sourceRef.IsZero() {
		return 0, fmt.Errorf("%w: caller and references required", ErrInvalidArgument)
	}
	policyOwner, ok, err := r.state.PolicyOwner(policyRef)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: policy %s", ErrUnknownReference, policyRef)
	}
	sourceOwner, ok, err := r.state.SourceOwner(sourceRef)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: source %s", ErrUnknownReference, sourceRef)
	}
	if policyOwner != sourceOwner {
		return 0, fmt.Errorf("%w: references belong to different lenders", ErrNotAuthorized)
	}
	authorized, err := r.actsForLender(policyOwner, caller)
	if err != nil {
		return 0, err
	}
	if !authorized {
		return 0, ErrNotAuthorized
	}
	id, err := r.state.NextProgramID()
	if err != nil {
		return 0, err
	}
	now := r.nowFn()
	program := &Program{
		ID:        id,
		Lender:    policyOwner,
		PolicyRef: policyRef,
		SourceRef: sourceRef,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.state.PutProgram(program); err != nil {
		return 0, err
	}
	r.emit(events.ProgramCreated{
		ProgramID: id,
		Lender:    program.Lender,
		PolicyRef: policyRef,
		SourceRef: sourceRef,
		Timestamp: now,
	})
	return id, nil
}

// UpdateProgram re-routes an existing program to new references. Both new
// references must already be registered to the program's lender; the lender
// of a program never changes. Updating to the current route is a no-op.
func (r *Registry) UpdateProgram(caller Address, programID uint64, policyRef, sourceRef Address) error {
	if r.state == nil {
		return errNilState
	}
	if caller.IsZero() || policyRef.IsZero() || sourceRef.IsZero() {
		return fmt.Errorf("%w: caller and references required", ErrInvalidArgument)
	}
	program, ok, err := r.state.Program(programID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProgramNotFound
	}
	authorized, err := r.actsForLender(program.Lender, caller)
	if err != nil {
		return err
	}
	if !authorized {
		return ErrNotAuthorized
	}
	policyOwner, ok, err := r.state.PolicyOwner(policyRef)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: policy %s", ErrUnknownReference, policyRef)
	}
	sourceOwner, ok, err := r.state.SourceOwner(sourceRef)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: source %s", ErrUnknownReference, sourceRef)
	}
	if policyOwner != program.Lender || sourceOwner != program.Lender {
		return fmt.Errorf("%w: references not registered to program lender", ErrNotAuthorized)
	}
	if program.PolicyRef == policyRef && program.SourceRef == sourceRef {
		return nil
	}
	program.PolicyRef = policyRef
	program.SourceRef = sourceRef
	program.UpdatedAt = r.nowFn()
	if err := r.state.PutProgram(program); err != nil {
		return err
	}
	r.emit(events.ProgramUpdated{
		ProgramID: program.ID,
		Lender:    program.Lender,
		PolicyRef: policyRef,
		SourceRef: sourceRef,
		Timestamp: program.UpdatedAt,
	})
	return nil
}

// ConfigureAlias delegates the lender's operational authority to the alias
// address. An alias is configured at most once per lender.
func (r *Registry) ConfigureAlias(caller, alias Address) error {
	if r.state == nil {
		return errNilState
	}
	if caller.IsZero() || alias.IsZero() {
		return fmt.Errorf("%w: caller and alias required", ErrInvalidArgument)
	}
	if caller == alias {
		return fmt.Errorf("%w: alias must differ from lender", ErrInvalidArgument)
	}
	if _, ok, err := r.state.Alias(caller); err != nil {
		return err
	} else if ok {
		return ErrAlreadyConfigured
	}
	if err := r.state.SetAlias(caller, alias); err != nil {
		return err
	}
	r.emit(events.AliasConfigured{Lender: caller, Alias: alias, Timestamp: r.nowFn()})
	return nil
}

// GetProgram returns a copy of the program record.
func (r *Registry) GetProgram(id uint64) (*Program, error) {
	if r.state == nil {
		return nil, errNilState
	}
	program, ok, err := r.state.Program(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProgramNotFound
	}
	return program.Clone(), nil
}

// IsAuthorizedForProgram reports whether the address may act with lender
// authority on the program, either as the lender itself or as its alias.
func (r *Registry) IsAuthorizedForProgram(programID uint64, addr Address) (bool, error) {
	if r.state == nil {
		return false, errNilState
	}
	program, ok, err := r.state.Program(programID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrProgramNotFound
	}
	return r.actsForLender(program.Lender, addr)
}

func (r *Registry) actsForLender(lender, addr Address) (bool, error) {
	if addr == lender {
		return true, nil
	}
	alias, ok, err := r.state.Alias(lender)
	if err != nil {
		return false, err
	}
	return ok && addr == alias, nil
}

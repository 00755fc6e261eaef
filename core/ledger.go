package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"loanledger/audit"
	"loanledger/config"
	"loanledger/core/events"
	"loanledger/core/state"
	"loanledger/native/common"
	"loanledger/native/lending"
	"loanledger/observability"
	"loanledger/observability/logging"
	"loanledger/storage"
)

// Operation families that can be paused via configuration. Freezing and
// unfreezing stay available even when every family is paused; suspending
// accrual is a safety action, not a product surface.
const (
	familyOrigination   = "origination"
	familyRepayment     = "repayment"
	familyRevocation    = "revocation"
	familyRenegotiation = "renegotiation"
	familyRegistry      = "registry"
)

// Operation labels shared by metrics and the audit journal.
const (
	opTakeLoan            = "loan.take"
	opTakeLoanFor         = "loan.take_for"
	opTakeInstallments    = "loan.take_installments"
	opRepayLoan           = "loan.repay"
	opFreezeLoan          = "loan.freeze"
	opUnfreezeLoan        = "loan.unfreeze"
	opRevokeLoan          = "loan.revoke"
	opUpdateDuration      = "loan.update_duration"
	opUpdateRatePrimary   = "loan.update_rate_primary"
	opUpdateRateSecondary = "loan.update_rate_secondary"
	opRegisterPolicy      = "registry.register_policy"
	opRegisterSource      = "registry.register_source"
	opCreateProgram       = "registry.create_program"
	opUpdateProgram       = "registry.update_program"
	opConfigureAlias      = "registry.configure_alias"
	opGetLoan             = "loan.get"
	opGetLoanBatch        = "loan.get_batch"
	opGetProgram          = "registry.get_program"
	opPreviewBalance      = "loan.preview"
	opPreviewBalanceBatch = "loan.preview_batch"
	opPreviewGroup        = "loan.preview_group"
	opAuthorizeLoan       = "loan.is_authorized"
	opAuthorizeProgram    = "registry.is_authorized"
)

// quotaModule namespaces borrower origination counters in state.
const quotaModule = "lending"

// ErrNilDatabase is returned when the ledger is constructed without a backing
// store.
var ErrNilDatabase = errors.New("core: database required")

// Ledger is the embedding surface of the lending state machine. It serializes
// every operation, brackets mutations in a state transaction so failures roll
// back completely, releases events only after commit, and journals committed
// operations to the optional audit store.
type Ledger struct {
	mu       sync.Mutex
	db       storage.Database
	manager  *state.Manager
	engine   *lending.Engine
	registry *lending.Registry
	recorder *events.Recorder
	sink     events.Emitter
	pauses   common.PauseView
	quota    common.Quota
	journal  *audit.Store
	metrics  *observability.LedgerMetrics
	logger   *slog.Logger
	nowFn    func() uint64
}

// NewLedger wires a ledger over the supplied database using the configuration
// for parameters, pauses, quotas and the audit journal. Collaborator resolver
// and value mover are runtime dependencies; wire them with SetResolver and
// SetValueMover before the first operation.
func NewLedger(db storage.Database, cfg *config.Config) (*Ledger, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	manager := state.NewManager(db)
	if err := manager.EnsureSchemaVersion(cfg.Storage.AllowMigrate); err != nil {
		return nil, err
	}

	params := lending.Params{
		PeriodSeconds:    cfg.Ledger.PeriodSeconds,
		RateScale:        cfg.Ledger.RateScale,
		AccuracyUnit:     cfg.Ledger.AccuracyUnit,
		CooldownPeriods:  cfg.Ledger.CooldownPeriods,
		InstallmentLimit: cfg.Ledger.InstallmentLimit,
	}

	ledger := &Ledger{
		db:       db,
		manager:  manager,
		recorder: events.NewRecorder(),
		pauses:   common.NewStaticPauses(cfg.Pauses.Modules()...),
		quota: common.Quota{
			MaxRequestsPerEpoch: cfg.Quotas.Borrower.MaxRequestsPerEpoch,
			MaxValuePerEpoch:    cfg.Quotas.Borrower.MaxValuePerEpoch,
			EpochSeconds:        cfg.Quotas.Borrower.EpochSeconds,
		},
		metrics: observability.Ledger(),
		logger:  slog.Default(),
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}

	registry := lending.NewRegistry()
	registry.SetState(manager)
	registry.SetEmitter(ledger.recorder)
	registry.SetNowFunc(ledger.now)

	engine := lending.NewEngine()
	engine.SetState(manager)
	engine.SetRegistry(registry)
	engine.SetEmitter(ledger.recorder)
	engine.SetNowFunc(ledger.now)
	if err := engine.SetParams(params); err != nil {
		return nil, err
	}

	ledger.registry = registry
	ledger.engine = engine

	if cfg.Audit.Enabled {
		dsn, err := audit.FileDSN(cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		store, err := audit.Open(dsn)
		if err != nil {
			return nil, err
		}
		ledger.journal = store
	}
	return ledger, nil
}

// SetResolver wires the collaborator resolver into the engine and registry.
func (l *Ledger) SetResolver(resolver lending.CollaboratorResolver) {
	if l == nil {
		return
	}
	l.engine.SetResolver(resolver)
	l.registry.SetResolver(resolver)
}

// SetValueMover wires the transfer executor.
func (l *Ledger) SetValueMover(mover lending.ValueMover) {
	if l == nil {
		return
	}
	l.engine.SetValueMover(mover)
}

// SetEventSink installs the emitter that receives events after a successful
// commit, e.g. a webhook bridge or an indexer feed.
func (l *Ledger) SetEventSink(sink events.Emitter) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// SetAuditStore overrides the journal opened from configuration. Passing nil
// disables journalling.
func (l *Ledger) SetAuditStore(store *audit.Store) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal = store
}

// SetLogger replaces the structured logger.
func (l *Ledger) SetLogger(logger *slog.Logger) {
	if l == nil || logger == nil {
		return
	}
	l.logger = logger
}

// SetNowFunc overrides the ledger clock, primarily for tests.
func (l *Ledger) SetNowFunc(now func() uint64) {
	if l == nil {
		return
	}
	l.nowFn = now
	l.engine.SetNowFunc(now)
	l.registry.SetNowFunc(now)
}

// Close releases the audit journal. The backing database stays open; its
// owner closes it.
func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.journal == nil {
		return nil
	}
	err := l.journal.Close()
	l.journal = nil
	return err
}

// Journal exposes the audit store for history queries. Nil when auditing is
// disabled.
func (l *Ledger) Journal() *audit.Store {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.journal
}

// Params returns the active ledger parameters.
func (l *Ledger) Params() lending.Params { return l.engine.Params() }

// PeriodSeconds returns the length of one accrual period in seconds.
func (l *Ledger) PeriodSeconds() uint64 { return l.engine.Params().PeriodSeconds }

// RateScale returns the denominator per-period rates are expressed against.
func (l *Ledger) RateScale() uint64 { return l.engine.Params().RateScale }

// AccuracyUnit returns the granularity of externally visible amounts.
func (l *Ledger) AccuracyUnit() uint64 { return l.engine.Params().AccuracyUnit }

// CooldownPeriods returns the borrower self-revocation window in periods.
func (l *Ledger) CooldownPeriods() uint64 { return l.engine.Params().CooldownPeriods }

// InstallmentLimit returns the maximum member count of an installment group.
func (l *Ledger) InstallmentLimit() uint64 { return l.engine.Params().InstallmentLimit }

func (l *Ledger) now() uint64 {
	if l == nil || l.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return l.nowFn()
}

// mutate runs fn inside the operation envelope: pause guard, state
// transaction, commit-gated event flush, metrics and audit journalling. When
// fn fails, every state write and buffered event is discarded.
func (l *Ledger) mutate(op, family string, fn func() ([]audit.Entry, error)) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := time.Now()
	defer func() { l.metrics.Observe(op, time.Since(start), err) }()

	if err = common.Guard(l.pauses, family); err != nil {
		l.metrics.RecordThrottle(op, "paused")
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = l.manager.Begin(); err != nil {
		return err
	}
	entries, err := fn()
	if err != nil {
		l.manager.Discard()
		l.recorder.Reset()
		return err
	}
	if err = l.manager.Commit(); err != nil {
		l.manager.Discard()
		l.recorder.Reset()
		return err
	}
	l.flushEvents()
	l.record(op, entries)
	return nil
}

// view runs fn under the lock without opening a transaction; reads observe
// the last committed state.
func (l *Ledger) view(op string, fn func() error) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := time.Now()
	defer func() { l.metrics.Observe(op, time.Since(start), err) }()
	return fn()
}

func (l *Ledger) flushEvents() {
	for _, evt := range l.recorder.Pending() {
		observability.Events().RecordEvent(evt.EventType())
	}
	l.recorder.Flush(l.sink)
}

// record journals committed operations. Journal failures are logged and never
// unwind the commit.
func (l *Ledger) record(op string, entries []audit.Entry) {
	occurred := time.Unix(int64(l.now()), 0).UTC()
	for _, entry := range entries {
		l.logger.Info("ledger operation applied",
			"operation", op,
			"loan_id", entry.LoanID,
			"program_id", entry.ProgramID,
			logging.MaskField("actor", entry.Actor.Hex()),
		)
		if l.journal == nil {
			continue
		}
		entry.Operation = op
		entry.OccurredAt = occurred
		if err := l.journal.Record(context.Background(), entry); err != nil {
			l.logger.Warn("audit journal write failed", "operation", op, "error", err.Error())
		}
	}
}

// consumeQuota charges the borrower's origination quota inside the current
// transaction so a failed draw releases the charge with the rollback.
func (l *Ledger) consumeQuota(op string, borrower lending.Address, value *big.Int) error {
	if !l.quota.Enabled() {
		return nil
	}
	var nowEpoch uint64
	if l.quota.EpochSeconds > 0 {
		nowEpoch = l.now() / uint64(l.quota.EpochSeconds)
	}
	prev, _, err := l.manager.QuotaUsage(quotaModule, borrower)
	if err != nil {
		return err
	}
	var addValue uint64
	if l.quota.MaxValuePerEpoch > 0 && value != nil {
		if !value.IsUint64() {
			l.metrics.RecordThrottle(op, "quota_exceeded")
			return fmt.Errorf("%w: draw value overflows the quota counter", common.ErrQuotaValueExceeded)
		}
		addValue = value.Uint64()
	}
	usage, err := common.CheckQuota(l.quota, nowEpoch, prev, 1, addValue)
	if err != nil {
		l.metrics.RecordThrottle(op, "quota_exceeded")
		return err
	}
	return l.manager.SetQuotaUsage(quotaModule, borrower, usage)
}

// loanEntry builds the journal row for the loan as it stands inside the
// current transaction.
func (l *Ledger) loanEntry(loanID uint64, actor lending.Address, amount *big.Int) audit.Entry {
	entry := audit.Entry{LoanID: loanID, Actor: actor, Amount: amount}
	if loan, err := l.engine.GetLoan(loanID); err == nil {
		entry.ProgramID = loan.ProgramID
		entry.Balance = loan.TrackedBalance
	}
	return entry
}

// --- Origination ---

// TakeLoan originates a loan for the calling borrower. The underwriting
// policy bound to the program decides the terms; principal moves from the
// funding source to the borrower before the obligation is recorded.
func (l *Ledger) TakeLoan(borrower lending.Address, programID uint64, principal *big.Int, requestedDuration uint64) (uint64, error) {
	var loanID uint64
	err := l.mutate(opTakeLoan, familyOrigination, func() ([]audit.Entry, error) {
		if err := l.consumeQuota(opTakeLoan, borrower, principal); err != nil {
			return nil, err
		}
		id, err := l.engine.TakeLoan(borrower, programID, principal, requestedDuration)
		if err != nil {
			return nil, err
		}
		loanID = id
		return []audit.Entry{l.loanEntry(id, borrower, principal)}, nil
	})
	if err != nil {
		return 0, err
	}
	return loanID, nil
}

// TakeLoanFor originates a loan for the borrower on the lender's initiative.
// The caller must hold lender authority on the program.
func (l *Ledger) TakeLoanFor(caller, borrower lending.Address, programID uint64, principal *big.Int, requestedDuration uint64, addon *big.Int) (uint64, error) {
	var loanID uint64
	err := l.mutate(opTakeLoanFor, familyOrigination, func() ([]audit.Entry, error) {
		if err := l.consumeQuota(opTakeLoanFor, borrower, principal); err != nil {
			return nil, err
		}
		id, err := l.engine.TakeLoanFor(caller, borrower, programID, principal, requestedDuration, addon)
		if err != nil {
			return nil, err
		}
		loanID = id
		return []audit.Entry{l.loanEntry(id, caller, principal)}, nil
	})
	if err != nil {
		return 0, err
	}
	return loanID, nil
}

// TakeInstallmentLoan originates a group of draws atomically. Either every
// member lands or none does.
func (l *Ledger) TakeInstallmentLoan(borrower lending.Address, programID uint64, principals []*big.Int, requestedDurations []uint64) ([]uint64, error) {
	var loanIDs []uint64
	err := l.mutate(opTakeInstallments, familyOrigination, func() ([]audit.Entry, error) {
		total := big.NewInt(0)
		for _, principal := range principals {
			if principal != nil {
				total.Add(total, principal)
			}
		}
		if err := l.consumeQuota(opTakeInstallments, borrower, total); err != nil {
			return nil, err
		}
		ids, err := l.engine.TakeInstallmentLoan(borrower, programID, principals, requestedDurations)
		if err != nil {
			return nil, err
		}
		loanIDs = ids
		entries := make([]audit.Entry, 0, len(ids))
		for i, id := range ids {
			entries = append(entries, l.loanEntry(id, borrower, principals[i]))
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return loanIDs, nil
}

// --- Repayment ---

// RepayLoan settles amount against the loan and returns the amount actually
// settled. Passing lending.RepayMax settles the full rounded payoff.
func (l *Ledger) RepayLoan(caller lending.Address, loanID uint64, amount *big.Int) (*big.Int, error) {
	var settled *big.Int
	err := l.mutate(opRepayLoan, familyRepayment, func() ([]audit.Entry, error) {
		paid, err := l.engine.RepayLoan(caller, loanID, amount)
		if err != nil {
			return nil, err
		}
		settled = paid
		return []audit.Entry{l.loanEntry(loanID, caller, paid)}, nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// --- Freeze and revocation ---

// FreezeLoan suspends accrual on the loan. Lender authority required. The
// freeze surface stays available while operation families are paused.
func (l *Ledger) FreezeLoan(caller lending.Address, loanID uint64) error {
	return l.mutate(opFreezeLoan, "", func() ([]audit.Entry, error) {
		if err := l.engine.FreezeLoan(caller, loanID); err != nil {
			return nil, err
		}
		return []audit.Entry{l.loanEntry(loanID, caller, nil)}, nil
	})
}

// UnfreezeLoan resumes accrual and extends the duration by the frozen window.
func (l *Ledger) UnfreezeLoan(caller lending.Address, loanID uint64) error {
	return l.mutate(opUnfreezeLoan, "", func() ([]audit.Entry, error) {
		if err := l.engine.UnfreezeLoan(caller, loanID); err != nil {
			return nil, err
		}
		return []audit.Entry{l.loanEntry(loanID, caller, nil)}, nil
	})
}

// RevokeLoan unwinds the loan, or the whole installment group for a grouped
// loan, against its principal. Lender authority always suffices; the borrower
// may revoke within the cooldown window.
func (l *Ledger) RevokeLoan(caller lending.Address, loanID uint64) error {
	return l.mutate(opRevokeLoan, familyRevocation, func() ([]audit.Entry, error) {
		if err := l.engine.RevokeLoan(caller, loanID); err != nil {
			return nil, err
		}
		return []audit.Entry{l.loanEntry(loanID, caller, nil)}, nil
	})
}

// --- Renegotiation ---

// UpdateLoanDuration extends the loan's term. Interest accrued so far is
// materialized into the tracked balance first.
func (l *Ledger) UpdateLoanDuration(caller lending.Address, loanID uint64, durationPeriods uint64) error {
	return l.mutate(opUpdateDuration, familyRenegotiation, func() ([]audit.Entry, error) {
		if err := l.engine.UpdateLoanDuration(caller, loanID, durationPeriods); err != nil {
			return nil, err
		}
		return []audit.Entry{l.loanEntry(loanID, caller, nil)}, nil
	})
}

// UpdateLoanInterestRatePrimary lowers the in-term rate.
func (l *Ledger) UpdateLoanInterestRatePrimary(caller lending.Address, loanID uint64, rate uint64) error {
	return l.mutate(opUpdateRatePrimary, familyRenegotiation, func() ([]audit.Entry, error) {
		if err := l.engine.UpdateLoanInterestRatePrimary(caller, loanID, rate); err != nil {
			return nil, err
		}
		return []audit.Entry{l.loanEntry(loanID, caller, nil)}, nil
	})
}

// UpdateLoanInterestRateSecondary lowers the post-due rate.
func (l *Ledger) UpdateLoanInterestRateSecondary(caller lending.Address, loanID uint64, rate uint64) error {
	return l.mutate(opUpdateRateSecondary, familyRenegotiation, func() ([]audit.Entry, error) {
		if err := l.engine.UpdateLoanInterestRateSecondary(caller, loanID, rate); err != nil {
			return nil, err
		}
		return []audit.Entry{l.loanEntry(loanID, caller, nil)}, nil
	})
}

// --- Registry ---

// RegisterUnderwritingPolicy claims the policy reference for the caller after
// the live implementation passes its self check.
func (l *Ledger) RegisterUnderwritingPolicy(caller, ref lending.Address) error {
	return l.mutate(opRegisterPolicy, familyRegistry, func() ([]audit.Entry, error) {
		if err := l.registry.RegisterUnderwritingPolicy(caller, ref); err != nil {
			return nil, err
		}
		return []audit.Entry{{Actor: caller}}, nil
	})
}

// RegisterFundingSource claims the funding source reference for the caller
// after the live implementation passes its self check.
func (l *Ledger) RegisterFundingSource(caller, ref lending.Address) error {
	return l.mutate(opRegisterSource, familyRegistry, func() ([]audit.Entry, error) {
		if err := l.registry.RegisterFundingSource(caller, ref); err != nil {
			return nil, err
		}
		return []audit.Entry{{Actor: caller}}, nil
	})
}

// CreateProgram binds the caller's registered policy and funding source
// references into a new program and returns its id.
func (l *Ledger) CreateProgram(caller, policyRef, sourceRef lending.Address) (uint64, error) {
	var programID uint64
	err := l.mutate(opCreateProgram, familyRegistry, func() ([]audit.Entry, error) {
		id, err := l.registry.CreateProgram(caller, policyRef, sourceRef)
		if err != nil {
			return nil, err
		}
		programID = id
		return []audit.Entry{{ProgramID: id, Actor: caller}}, nil
	})
	if err != nil {
		return 0, err
	}
	return programID, nil
}

// UpdateProgram re-routes the program to new collaborator references owned by
// the same lender.
func (l *Ledger) UpdateProgram(caller lending.Address, programID uint64, policyRef, sourceRef lending.Address) error {
	return l.mutate(opUpdateProgram, familyRegistry, func() ([]audit.Entry, error) {
		if err := l.registry.UpdateProgram(caller, programID, policyRef, sourceRef); err != nil {
			return nil, err
		}
		return []audit.Entry{{ProgramID: programID, Actor: caller}}, nil
	})
}

// ConfigureAlias delegates the caller's operational authority to an alias
// address. The delegation is set once and permanent.
func (l *Ledger) ConfigureAlias(caller, alias lending.Address) error {
	return l.mutate(opConfigureAlias, familyRegistry, func() ([]audit.Entry, error) {
		if err := l.registry.ConfigureAlias(caller, alias); err != nil {
			return nil, err
		}
		return []audit.Entry{{Actor: caller}}, nil
	})
}

// --- Views ---

// GetLoan returns a copy of the loan.
func (l *Ledger) GetLoan(loanID uint64) (*lending.Loan, error) {
	var loan *lending.Loan
	err := l.view(opGetLoan, func() error {
		found, err := l.engine.GetLoan(loanID)
		if err != nil {
			return err
		}
		loan = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// GetLoanBatch returns copies of the requested loans in request order; unknown
// ids yield nil slots.
func (l *Ledger) GetLoanBatch(loanIDs []uint64) ([]*lending.Loan, error) {
	var loans []*lending.Loan
	err := l.view(opGetLoanBatch, func() error {
		found, err := l.engine.GetLoanBatch(loanIDs)
		if err != nil {
			return err
		}
		loans = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loans, nil
}

// GetProgram returns a copy of the program.
func (l *Ledger) GetProgram(programID uint64) (*lending.Program, error) {
	var program *lending.Program
	err := l.view(opGetProgram, func() error {
		found, err := l.registry.GetProgram(programID)
		if err != nil {
			return err
		}
		program = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return program, nil
}

// PreviewBalance projects the loan's balance at asOf without mutating state.
// asOf zero previews at the current time.
func (l *Ledger) PreviewBalance(loanID, asOf uint64) (*lending.BalancePreview, error) {
	var preview *lending.BalancePreview
	err := l.view(opPreviewBalance, func() error {
		found, err := l.engine.PreviewBalance(loanID, asOf)
		if err != nil {
			return err
		}
		preview = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return preview, nil
}

// PreviewBalanceBatch previews the requested loans in request order; unknown
// ids yield nil slots.
func (l *Ledger) PreviewBalanceBatch(loanIDs []uint64, asOf uint64) ([]*lending.BalancePreview, error) {
	var previews []*lending.BalancePreview
	err := l.view(opPreviewBalanceBatch, func() error {
		found, err := l.engine.PreviewBalanceBatch(loanIDs, asOf)
		if err != nil {
			return err
		}
		previews = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return previews, nil
}

// PreviewInstallmentGroup previews every member of the loan's installment
// group; standalone loans preview as a group of one.
func (l *Ledger) PreviewInstallmentGroup(loanID, asOf uint64) (*lending.InstallmentGroupPreview, error) {
	var preview *lending.InstallmentGroupPreview
	err := l.view(opPreviewGroup, func() error {
		found, err := l.engine.PreviewInstallmentGroup(loanID, asOf)
		if err != nil {
			return err
		}
		preview = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return preview, nil
}

// IsAuthorizedForLoan reports whether addr may act with lender authority on
// the loan's program.
func (l *Ledger) IsAuthorizedForLoan(loanID uint64, addr lending.Address) (bool, error) {
	var authorized bool
	err := l.view(opAuthorizeLoan, func() error {
		ok, err := l.engine.IsAuthorizedForLoan(loanID, addr)
		if err != nil {
			return err
		}
		authorized = ok
		return nil
	})
	if err != nil {
		return false, err
	}
	return authorized, nil
}

// IsAuthorizedForProgram reports whether addr is the program's lender or the
// lender's alias.
func (l *Ledger) IsAuthorizedForProgram(programID uint64, addr lending.Address) (bool, error) {
	var authorized bool
	err := l.view(opAuthorizeProgram, func() error {
		ok, err := l.registry.IsAuthorizedForProgram(programID, addr)
		if err != nil {
			return err
		}
		authorized = ok
		return nil
	})
	if err != nil {
		return false, err
	}
	return authorized, nil
}

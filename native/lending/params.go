package lending

import "fmt"

const (
	// DefaultPeriodSeconds sizes an accrual period at one day.
	DefaultPeriodSeconds = 86_400
	// DefaultRateScale is the denominator all per-period rates are
	// expressed against.
	DefaultRateScale = 1_000_000_000
	// DefaultAccuracyUnit is the granularity external amounts are rounded
	// to and must align with.
	DefaultAccuracyUnit = 10_000
	// DefaultCooldownPeriods bounds the window in which a borrower may
	// revoke their own loan.
	DefaultCooldownPeriods = 3
	// DefaultInstallmentLimit caps the number of draws in one installment
	// group.
	DefaultInstallmentLimit = 255
)

// Params groups the ledger-wide constants governing accrual and settlement.
// They are fixed at construction; changing them underneath live loans would
// silently rewrite every obligation.
type Params struct {
	// PeriodSeconds is the length of one accrual period in seconds.
	PeriodSeconds uint64
	// RateScale is the denominator for per-period interest rates.
	RateScale uint64
	// AccuracyUnit is the granularity of externally visible amounts.
	// Transfers, addons and repayments must be multiples of it.
	AccuracyUnit uint64
	// CooldownPeriods is the number of periods after origination during
	// which the borrower may unwind the loan themselves.
	CooldownPeriods uint64
	// InstallmentLimit caps the member count of an installment group.
	InstallmentLimit uint64
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		PeriodSeconds:    DefaultPeriodSeconds,
		RateScale:        DefaultRateScale,
		AccuracyUnit:     DefaultAccuracyUnit,
		CooldownPeriods:  DefaultCooldownPeriods,
		InstallmentLimit: DefaultInstallmentLimit,
	}
}

// Validate reports whether the parameter set is internally consistent.
func (p Params) Validate() error {
	if p.PeriodSeconds == 0 {
		return fmt.Errorf("lending: period seconds must be positive")
	}
	if p.RateScale == 0 {
		return fmt.Errorf("lending: rate scale must be positive")
	}
	if p.AccuracyUnit == 0 {
		return fmt.Errorf("lending: accuracy unit must be positive")
	}
	if p.InstallmentLimit == 0 {
		return fmt.Errorf("lending: installment limit must be positive")
	}
	return nil
}

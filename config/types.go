package config

// Ledger captures the accrual and lifecycle parameters of the lending
// ledger. They are fixed for the lifetime of a deployment; changing them
// under live loans would silently rewrite every obligation.
type Ledger struct {
	PeriodSeconds    uint64 `toml:"PeriodSeconds"`
	RateScale        uint64 `toml:"RateScale"`
	AccuracyUnit     uint64 `toml:"AccuracyUnit"`
	CooldownPeriods  uint64 `toml:"CooldownPeriods"`
	InstallmentLimit uint64 `toml:"InstallmentLimit"`
}

// Storage selects the persistence backend. An empty DataDir runs the ledger
// against the in-memory store, which is only useful for tests and demos.
type Storage struct {
	DataDir      string `toml:"DataDir"`
	AllowMigrate bool   `toml:"AllowMigrate"`
}

// Audit configures the operation history store.
type Audit struct {
	Enabled bool   `toml:"Enabled"`
	Path    string `toml:"Path"`
}

// WebhookEndpoint is one signed event subscriber.
type WebhookEndpoint struct {
	URL    string   `toml:"URL"`
	Secret string   `toml:"Secret"`
	Events []string `toml:"Events"`
}

// Webhooks groups the configured event subscribers.
type Webhooks struct {
	Endpoints []WebhookEndpoint `toml:"Endpoints"`
}

// Pauses switches whole operation families off. A paused family rejects
// every call with a pause error while the rest of the ledger keeps running.
type Pauses struct {
	Origination   bool `toml:"Origination"`
	Repayment     bool `toml:"Repayment"`
	Revocation    bool `toml:"Revocation"`
	Renegotiation bool `toml:"Renegotiation"`
	Registry      bool `toml:"Registry"`
}

// Modules returns the names of the paused operation families.
func (p Pauses) Modules() []string {
	var out []string
	if p.Origination {
		out = append(out, "origination")
	}
	if p.Repayment {
		out = append(out, "repayment")
	}
	if p.Revocation {
		out = append(out, "revocation")
	}
	if p.Renegotiation {
		out = append(out, "renegotiation")
	}
	if p.Registry {
		out = append(out, "registry")
	}
	return out
}

// Quota defines rate limits for ledger interactions on a per-address basis.
// Zero limits disable the corresponding check.
type Quota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	MaxValuePerEpoch    uint64 `toml:"MaxValuePerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds"`
}

// Quotas groups the per-role quotas.
type Quotas struct {
	Borrower Quota `toml:"Borrower"`
}

// Package creditline provides a reference underwriting policy for embedders
// and integration tests. Borrowers are mapped to pricing tiers loaded from a
// YAML book; the policy tracks outstanding principal per borrower and vetoes
// draws that would breach a tier's credit limit. The core ledger never
// imports this package.
package creditline

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"loanledger/native/lending"
)

// ErrTierNotFound indicates that no tier exists for the requested borrower.
var ErrTierNotFound = errors.New("creditline: tier not found")

// ErrDrawTooLarge reports a single draw above the tier's per-draw cap.
var ErrDrawTooLarge = errors.New("creditline: draw exceeds tier cap")

// ErrCreditLimitExceeded reports that a draw would push the borrower's
// outstanding principal above the tier's credit limit.
var ErrCreditLimitExceeded = errors.New("creditline: credit limit exceeded")

// ErrDurationOutOfBounds reports a requested term outside the tier's bounds.
var ErrDurationOutOfBounds = errors.New("creditline: duration out of bounds")

// Tier is one pricing row of the book. Nil caps are unenforced: a tier
// without a MaxPrincipal accepts draws of any size and a tier without a
// CreditLimit never vetoes on exposure.
type Tier struct {
	Name          string
	MaxPrincipal  *big.Int
	CreditLimit   *big.Int
	RatePrimary   uint64
	RateSecondary uint64
	MinDuration   uint64
	MaxDuration   uint64
	Addon         *big.Int
	AutoRepayment bool
}

// Book is a loaded tier set with borrower assignments. Borrowers without an
// assignment price at the default tier.
type Book struct {
	Tiers       []Tier
	Assignments map[lending.Address]string
	DefaultTier string
}

// tierFile mirrors the YAML representation of a tier entry.
type tierFile struct {
	Name          string `yaml:"name"`
	MaxPrincipal  string `yaml:"max_principal"`
	CreditLimit   string `yaml:"credit_limit"`
	RatePrimary   uint64 `yaml:"rate_primary"`
	RateSecondary uint64 `yaml:"rate_secondary"`
	MinDuration   uint64 `yaml:"min_duration"`
	MaxDuration   uint64 `yaml:"max_duration"`
	Addon         string `yaml:"addon"`
	AutoRepayment bool   `yaml:"auto_repayment"`
}

// bookFile mirrors the YAML representation of the book.
type bookFile struct {
	Tiers       []tierFile        `yaml:"tiers"`
	Borrowers   map[string]string `yaml:"borrowers"`
	DefaultTier string            `yaml:"default_tier"`
}

// LoadBook reads a tier book from the provided YAML file on disk.
func LoadBook(path string) (*Book, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open book: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	var raw bookFile
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode book: %w", err)
	}
	if len(raw.Tiers) == 0 {
		return nil, fmt.Errorf("creditline: at least one tier must be configured")
	}
	tiers := make([]Tier, 0, len(raw.Tiers))
	seen := make(map[string]struct{}, len(raw.Tiers))
	for _, entry := range raw.Tiers {
		name := strings.ToLower(strings.TrimSpace(entry.Name))
		if name == "" {
			return nil, fmt.Errorf("creditline: tier name required")
		}
		if _, exists := seen[name]; exists {
			return nil, fmt.Errorf("creditline: duplicate tier %s", name)
		}
		maxPrincipal, err := parseAmount(entry.MaxPrincipal)
		if err != nil {
			return nil, fmt.Errorf("tier %s max_principal: %w", name, err)
		}
		creditLimit, err := parseAmount(entry.CreditLimit)
		if err != nil {
			return nil, fmt.Errorf("tier %s credit_limit: %w", name, err)
		}
		addon, err := parseAmount(entry.Addon)
		if err != nil {
			return nil, fmt.Errorf("tier %s addon: %w", name, err)
		}
		if entry.MaxDuration == 0 {
			return nil, fmt.Errorf("creditline: tier %s max_duration must be positive", name)
		}
		if entry.MinDuration > entry.MaxDuration {
			return nil, fmt.Errorf("creditline: tier %s min_duration exceeds max_duration", name)
		}
		tiers = append(tiers, Tier{
			Name:          name,
			MaxPrincipal:  maxPrincipal,
			CreditLimit:   creditLimit,
			RatePrimary:   entry.RatePrimary,
			RateSecondary: entry.RateSecondary,
			MinDuration:   entry.MinDuration,
			MaxDuration:   entry.MaxDuration,
			Addon:         addon,
			AutoRepayment: entry.AutoRepayment,
		})
		seen[name] = struct{}{}
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Name < tiers[j].Name })

	assignments := make(map[lending.Address]string, len(raw.Borrowers))
	for key, tierName := range raw.Borrowers {
		addr, err := lending.AddressFromHex(key)
		if err != nil {
			return nil, fmt.Errorf("borrower %s: %w", key, err)
		}
		normalized := strings.ToLower(strings.TrimSpace(tierName))
		if _, ok := seen[normalized]; !ok {
			return nil, fmt.Errorf("creditline: borrower %s references unknown tier %s", key, tierName)
		}
		assignments[addr] = normalized
	}

	defaultTier := strings.ToLower(strings.TrimSpace(raw.DefaultTier))
	if defaultTier == "" {
		defaultTier = tiers[0].Name
	}
	if _, ok := seen[defaultTier]; !ok {
		return nil, fmt.Errorf("creditline: default tier %s not configured", raw.DefaultTier)
	}
	return &Book{Tiers: tiers, Assignments: assignments, DefaultTier: defaultTier}, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	return value, nil
}

// Policy prices draws from a tier book and enforces per-borrower credit
// limits. It implements lending.UnderwritingPolicy.
type Policy struct {
	addr lending.Address

	mu          sync.Mutex
	tiers       map[string]Tier
	assignments map[lending.Address]string
	defaultTier string
	// drawn tracks the outstanding principal share per loan, exposure the
	// per-borrower sum of those shares.
	drawn    map[uint64]*big.Int
	exposure map[lending.Address]*big.Int
	owners   map[uint64]lending.Address
}

// NewPolicy constructs a policy answering at addr for the supplied book.
func NewPolicy(addr lending.Address, book *Book) (*Policy, error) {
	if addr.IsZero() {
		return nil, fmt.Errorf("creditline: policy address required")
	}
	if book == nil || len(book.Tiers) == 0 {
		return nil, fmt.Errorf("creditline: at least one tier must be configured")
	}
	tiers := make(map[string]Tier, len(book.Tiers))
	for _, tier := range book.Tiers {
		name := strings.ToLower(strings.TrimSpace(tier.Name))
		if name == "" {
			return nil, fmt.Errorf("creditline: tier name required")
		}
		if _, exists := tiers[name]; exists {
			return nil, fmt.Errorf("creditline: duplicate tier %s", name)
		}
		if tier.MaxDuration == 0 || tier.MinDuration > tier.MaxDuration {
			return nil, fmt.Errorf("creditline: tier %s duration bounds invalid", name)
		}
		copied := tier
		copied.Name = name
		copied.MaxPrincipal = copyAmount(tier.MaxPrincipal)
		copied.CreditLimit = copyAmount(tier.CreditLimit)
		copied.Addon = copyAmount(tier.Addon)
		tiers[name] = copied
	}
	defaultTier := strings.ToLower(strings.TrimSpace(book.DefaultTier))
	if _, ok := tiers[defaultTier]; !ok {
		return nil, fmt.Errorf("creditline: default tier %s not configured", book.DefaultTier)
	}
	assignments := make(map[lending.Address]string, len(book.Assignments))
	for borrower, tierName := range book.Assignments {
		normalized := strings.ToLower(strings.TrimSpace(tierName))
		if _, ok := tiers[normalized]; !ok {
			return nil, fmt.Errorf("creditline: borrower %s references unknown tier %s", borrower, tierName)
		}
		assignments[borrower] = normalized
	}
	return &Policy{
		addr:        addr,
		tiers:       tiers,
		assignments: assignments,
		defaultTier: defaultTier,
		drawn:       make(map[uint64]*big.Int),
		exposure:    make(map[lending.Address]*big.Int),
		owners:      make(map[uint64]lending.Address),
	}, nil
}

// Address returns the reference the policy registers under.
func (p *Policy) Address() lending.Address {
	return p.addr
}

// TierFor returns a copy of the tier pricing the given borrower.
func (p *Policy) TierFor(borrower lending.Address) (Tier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tier, err := p.tierLocked(borrower)
	if err != nil {
		return Tier{}, err
	}
	tier.MaxPrincipal = copyAmount(tier.MaxPrincipal)
	tier.CreditLimit = copyAmount(tier.CreditLimit)
	tier.Addon = copyAmount(tier.Addon)
	return tier, nil
}

func (p *Policy) tierLocked(borrower lending.Address) (Tier, error) {
	name := p.defaultTier
	if assigned, ok := p.assignments[borrower]; ok {
		name = assigned
	}
	tier, ok := p.tiers[name]
	if !ok {
		return Tier{}, ErrTierNotFound
	}
	return tier, nil
}

// DetermineTerms prices a prospective draw against the borrower's tier. For
// installment originations the credit limit is checked against the aggregate
// principal so every member sees the same verdict.
func (p *Policy) DetermineTerms(req *lending.TermsRequest) (*lending.Terms, error) {
	if req == nil {
		return nil, fmt.Errorf("creditline: nil terms request")
	}
	if req.Principal == nil || req.Principal.Sign() <= 0 {
		return nil, fmt.Errorf("creditline: principal must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	tier, err := p.tierLocked(req.Borrower)
	if err != nil {
		return nil, err
	}
	if tier.MaxPrincipal != nil && req.Principal.Cmp(tier.MaxPrincipal) > 0 {
		return nil, fmt.Errorf("%w: %s over %s cap %s", ErrDrawTooLarge, req.Principal, tier.Name, tier.MaxPrincipal)
	}
	if tier.CreditLimit != nil {
		demand := req.Principal
		if req.TotalPrincipal != nil {
			demand = req.TotalPrincipal
		}
		projected := new(big.Int).Add(p.exposureLocked(req.Borrower), demand)
		if projected.Cmp(tier.CreditLimit) > 0 {
			return nil, fmt.Errorf("%w: %s over %s limit %s", ErrCreditLimitExceeded, projected, tier.Name, tier.CreditLimit)
		}
	}
	duration := req.RequestedDuration
	if duration == 0 {
		duration = tier.MaxDuration
	}
	if duration < tier.MinDuration || duration > tier.MaxDuration {
		return nil, fmt.Errorf("%w: %d outside [%d, %d]", ErrDurationOutOfBounds, duration, tier.MinDuration, tier.MaxDuration)
	}
	return &lending.Terms{
		DurationPeriods: duration,
		RatePrimary:     tier.RatePrimary,
		RateSecondary:   tier.RateSecondary,
		Addon:           copyAmount(tier.Addon),
		AutoRepayment:   tier.AutoRepayment,
	}, nil
}

// OnBeforeDraw records the drawn principal against the borrower's exposure.
func (p *Policy) OnBeforeDraw(loan *lending.Loan) error {
	if loan == nil || loan.Principal == nil {
		return fmt.Errorf("creditline: incomplete loan")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drawn[loan.ID] = new(big.Int).Set(loan.Principal)
	p.owners[loan.ID] = loan.Borrower
	exposure, ok := p.exposure[loan.Borrower]
	if !ok {
		exposure = big.NewInt(0)
		p.exposure[loan.Borrower] = exposure
	}
	exposure.Add(exposure, loan.Principal)
	return nil
}

// OnAfterPayment releases the paid portion of the loan's principal share.
// Payments beyond the remaining share settle interest and leave exposure
// unchanged.
func (p *Policy) OnAfterPayment(loan *lending.Loan, amount *big.Int, payer lending.Address) error {
	if loan == nil || amount == nil {
		return fmt.Errorf("creditline: incomplete payment")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked(loan.ID, amount)
	return nil
}

// OnAfterRevocation releases whatever principal share the loan still holds.
func (p *Policy) OnAfterRevocation(loan *lending.Loan) error {
	if loan == nil {
		return fmt.Errorf("creditline: incomplete loan")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if share, ok := p.drawn[loan.ID]; ok {
		p.releaseLocked(loan.ID, share)
	}
	delete(p.drawn, loan.ID)
	delete(p.owners, loan.ID)
	return nil
}

func (p *Policy) releaseLocked(loanID uint64, amount *big.Int) {
	share, ok := p.drawn[loanID]
	if !ok || amount == nil || amount.Sign() <= 0 {
		return
	}
	released := amount
	if share.Cmp(amount) < 0 {
		released = share
	}
	released = new(big.Int).Set(released)
	share.Sub(share, released)
	borrower := p.owners[loanID]
	if exposure := p.exposure[borrower]; exposure != nil {
		exposure.Sub(exposure, released)
		if exposure.Sign() < 0 {
			exposure.SetInt64(0)
		}
	}
	if share.Sign() == 0 {
		delete(p.drawn, loanID)
		delete(p.owners, loanID)
	}
}

// Exposure reports the borrower's tracked outstanding principal.
func (p *Policy) Exposure(borrower lending.Address) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.exposureLocked(borrower))
}

func (p *Policy) exposureLocked(borrower lending.Address) *big.Int {
	if exposure, ok := p.exposure[borrower]; ok {
		return exposure
	}
	return big.NewInt(0)
}

func copyAmount(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

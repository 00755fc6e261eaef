package config

import (
	"fmt"
	"net/url"
	"strings"
)

func ValidateConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if c.Ledger.PeriodSeconds == 0 {
		return fmt.Errorf("ledger: PeriodSeconds must be positive")
	}
	if c.Ledger.RateScale == 0 {
		return fmt.Errorf("ledger: RateScale must be positive")
	}
	if c.Ledger.AccuracyUnit == 0 {
		return fmt.Errorf("ledger: AccuracyUnit must be positive")
	}
	if c.Ledger.InstallmentLimit == 0 {
		return fmt.Errorf("ledger: InstallmentLimit must be positive")
	}
	if c.Audit.Enabled && strings.TrimSpace(c.Audit.Path) == "" {
		return fmt.Errorf("audit: Path required when enabled")
	}
	for i, endpoint := range c.Webhooks.Endpoints {
		parsed, err := url.Parse(endpoint.URL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("webhooks: endpoint %d: invalid URL %q", i, endpoint.URL)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("webhooks: endpoint %d: unsupported scheme %q", i, parsed.Scheme)
		}
		if strings.TrimSpace(endpoint.Secret) == "" {
			return fmt.Errorf("webhooks: endpoint %d: Secret required", i)
		}
	}
	if quota := c.Quotas.Borrower; (quota.MaxRequestsPerEpoch > 0 || quota.MaxValuePerEpoch > 0) && quota.EpochSeconds == 0 {
		return fmt.Errorf("quotas: Borrower.EpochSeconds required when limits are set")
	}
	return nil
}

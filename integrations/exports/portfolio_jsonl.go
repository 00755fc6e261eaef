package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"loanledger/native/lending"
)

// PortfolioJSONL builds a JSON Lines export for the supplied loan snapshots
// and returns the serialised payload alongside a SHA-256 checksum. A zero
// exportedAt stamps the rows with the current UTC time.
func PortfolioJSONL(loans []*lending.Loan, exportedAt time.Time) ([]byte, string, error) {
	if exportedAt.IsZero() {
		exportedAt = time.Now().UTC()
	}
	stamp := exportedAt.UTC().Format(time.RFC3339Nano)
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, loan := range loans {
		if loan == nil {
			continue
		}
		payload := map[string]interface{}{
			"loan_id":              loan.ID,
			"program_id":           loan.ProgramID,
			"borrower":             loan.Borrower.Hex(),
			"status":               loan.Status.String(),
			"principal":            amountString(loan.Principal),
			"initial_balance":      amountString(loan.InitialBalance),
			"tracked_balance":      amountString(loan.TrackedBalance),
			"repaid_total":         amountString(loan.RepaidTotal),
			"rate_primary":         loan.RatePrimary,
			"rate_secondary":       loan.RateSecondary,
			"duration_periods":     loan.DurationPeriods,
			"start_timestamp":      loan.StartTimestamp,
			"tracked_timestamp":    loan.TrackedTimestamp,
			"first_installment_id": loan.FirstInstallmentID,
			"installment_count":    loan.InstallmentCount,
			"exported_at":          stamp,
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"loanledger/native/lending"
)

var csvHeader = []string{
	"loan_id", "program_id", "borrower", "status",
	"principal", "initial_balance", "tracked_balance", "repaid_total",
	"rate_primary", "rate_secondary", "duration_periods",
	"start_timestamp", "tracked_timestamp",
	"first_installment_id", "installment_count", "exported_at",
}

// PortfolioCSV builds a CSV export for the supplied loan snapshots and returns
// the serialised data alongside a SHA-256 checksum of the payload. A zero
// exportedAt stamps the rows with the current UTC time.
func PortfolioCSV(loans []*lending.Loan, exportedAt time.Time) ([]byte, string, error) {
	if exportedAt.IsZero() {
		exportedAt = time.Now().UTC()
	}
	stamp := exportedAt.UTC().Format(time.RFC3339Nano)
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(csvHeader); err != nil {
		return nil, "", err
	}
	for _, loan := range loans {
		if loan == nil {
			continue
		}
		record := []string{
			fmt.Sprintf("%d", loan.ID),
			fmt.Sprintf("%d", loan.ProgramID),
			loan.Borrower.Hex(),
			loan.Status.String(),
			amountString(loan.Principal),
			amountString(loan.InitialBalance),
			amountString(loan.TrackedBalance),
			amountString(loan.RepaidTotal),
			fmt.Sprintf("%d", loan.RatePrimary),
			fmt.Sprintf("%d", loan.RateSecondary),
			fmt.Sprintf("%d", loan.DurationPeriods),
			fmt.Sprintf("%d", loan.StartTimestamp),
			fmt.Sprintf("%d", loan.TrackedTimestamp),
			fmt.Sprintf("%d", loan.FirstInstallmentID),
			fmt.Sprintf("%d", loan.InstallmentCount),
			stamp,
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

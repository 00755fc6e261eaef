package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"loanledger/native/lending"
)

// Store persists an append-only journal of ledger operations. Rows are written
// after the state transaction commits, so the journal trails the ledger and a
// journal failure never unwinds a committed operation.
type Store struct {
	db *sql.DB
}

var (
	// ErrPathRequired is returned when the backing store path is missing.
	ErrPathRequired = errors.New("audit: store path must be configured")

	// ErrNotConfigured is returned by methods invoked on an unopened store.
	ErrNotConfigured = errors.New("audit: store not configured")

	// ErrNoHistory is returned when a single-row lookup matches nothing.
	ErrNoHistory = errors.New("audit: no recorded history")
)

// OutcomeOK marks entries journalled for operations that committed.
const OutcomeOK = "ok"

// Entry is one journal row. Amount carries the value moved by the operation
// (drawn principal, repayment, shortfall or excess) and Balance the tracked
// balance after it; both are nil for operations that move no funds.
type Entry struct {
	ID         int64
	Operation  string
	LoanID     uint64
	ProgramID  uint64
	Actor      lending.Address
	Amount     *big.Int
	Balance    *big.Int
	Outcome    string
	OccurredAt time.Time
}

const filePragmas = "mode=rwc&_busy_timeout=5000&_journal_mode=WAL"

// FileDSN converts a filesystem path into an on-disk sqlite DSN. The journal
// keeps WAL mode so readers never block the ledger's append path.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", ErrPathRequired
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve audit path: %w", err)
	}
	return fmt.Sprintf("file:%s?%s", abs, filePragmas), nil
}

// Open initialises the journal using a sqlite-compatible DSN and applies the
// schema.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends a journal row. A zero OccurredAt is stamped with the current
// UTC time and an empty Outcome defaults to OutcomeOK.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	op := strings.TrimSpace(e.Operation)
	if op == "" {
		return fmt.Errorf("audit: operation name required")
	}
	outcome := strings.TrimSpace(e.Outcome)
	if outcome == "" {
		outcome = OutcomeOK
	}
	occurred := e.OccurredAt.UTC()
	if e.OccurredAt.IsZero() {
		occurred = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, `
        INSERT INTO ledger_operations(operation, loan_id, program_id, actor, amount, balance, outcome, occurred_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?)
    `, op, e.LoanID, e.ProgramID, e.Actor.Hex(), amountText(e.Amount), amountText(e.Balance), outcome, occurred); err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

// LoanHistory returns every journal row for the given loan in the order the
// operations were applied. Closed loans stay queryable for as long as the
// journal is retained.
func (s *Store) LoanHistory(ctx context.Context, loanID uint64) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, operation, loan_id, program_id, actor, amount, balance, outcome, occurred_at
        FROM ledger_operations
        WHERE loan_id = ?
        ORDER BY occurred_at ASC, id ASC
    `, loanID)
	if err != nil {
		return nil, fmt.Errorf("query loan history: %w", err)
	}
	return collectEntries(rows)
}

// LatestEntry returns the most recent journal row for the given loan,
// ErrNoHistory when the loan never produced one.
func (s *Store) LatestEntry(ctx context.Context, loanID uint64) (Entry, error) {
	if s == nil || s.db == nil {
		return Entry{}, ErrNotConfigured
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT id, operation, loan_id, program_id, actor, amount, balance, outcome, occurred_at
        FROM ledger_operations
        WHERE loan_id = ?
        ORDER BY occurred_at DESC, id DESC
        LIMIT 1
    `, loanID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNoHistory
	}
	if err != nil {
		return Entry{}, fmt.Errorf("query latest entry: %w", err)
	}
	return entry, nil
}

// ProgramActivity returns the journal rows attributed to a program at or after
// the provided cutoff.
func (s *Store) ProgramActivity(ctx context.Context, programID uint64, since time.Time) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, operation, loan_id, program_id, actor, amount, balance, outcome, occurred_at
        FROM ledger_operations
        WHERE program_id = ? AND occurred_at >= ?
        ORDER BY occurred_at ASC, id ASC
    `, programID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query program activity: %w", err)
	}
	return collectEntries(rows)
}

// ActorActivity returns the journal rows recorded for a caller address at or
// after the provided cutoff, newest last.
func (s *Store) ActorActivity(ctx context.Context, actor lending.Address, since time.Time) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, operation, loan_id, program_id, actor, amount, balance, outcome, occurred_at
        FROM ledger_operations
        WHERE actor = ? AND occurred_at >= ?
        ORDER BY occurred_at ASC, id ASC
    `, actor.Hex(), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query actor activity: %w", err)
	}
	return collectEntries(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry      Entry
		actorHex   string
		amountRaw  string
		balanceRaw string
	)
	if err := row.Scan(&entry.ID, &entry.Operation, &entry.LoanID, &entry.ProgramID, &actorHex, &amountRaw, &balanceRaw, &entry.Outcome, &entry.OccurredAt); err != nil {
		return Entry{}, err
	}
	actor, err := lending.AddressFromHex(actorHex)
	if err != nil {
		return Entry{}, fmt.Errorf("decode actor: %w", err)
	}
	entry.Actor = actor
	if entry.Amount, err = parseAmount(amountRaw); err != nil {
		return Entry{}, fmt.Errorf("decode amount: %w", err)
	}
	if entry.Balance, err = parseAmount(balanceRaw); err != nil {
		return Entry{}, fmt.Errorf("decode balance: %w", err)
	}
	return entry, nil
}

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func amountText(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func parseAmount(text string) (*big.Int, error) {
	if text == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", text)
	}
	return v, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS ledger_operations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    operation TEXT NOT NULL,
    loan_id INTEGER NOT NULL DEFAULT 0,
    program_id INTEGER NOT NULL DEFAULT 0,
    actor TEXT NOT NULL,
    amount TEXT NOT NULL DEFAULT '',
    balance TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    occurred_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_operations_loan ON ledger_operations(loan_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_ledger_operations_program ON ledger_operations(program_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_ledger_operations_actor ON ledger_operations(actor, occurred_at);
`

package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"loanledger/storage"
)

var (
	// ErrTransactionOpen is returned by Begin when a transaction is already
	// in progress.
	ErrTransactionOpen = errors.New("state: transaction already open")
	// ErrNoTransaction is returned by Commit when no transaction is open.
	ErrNoTransaction = errors.New("state: no open transaction")

	errNilDatabase = errors.New("state: database not configured")
)

// Manager persists ledger records in a key-value database using RLP encoded
// records under readable prefixed keys.
//
// Mutating operations are bracketed in a transaction: Begin buffers every
// write in an overlay, Commit flushes the overlay through a single storage
// batch, Discard drops it. Reads inside a transaction observe the overlay
// first, so an operation sees its own writes. Writes outside a transaction
// go straight to the database; that path is for bootstrap only.
//
// A Manager is not safe for concurrent use. The ledger facade serialises
// every operation before touching it.
type Manager struct {
	db      storage.Database
	pending map[string]pendingWrite
	open    bool
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a write transaction. Every write until Commit or Discard stays
// in the overlay and is invisible to the database.
func (m *Manager) Begin() error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	if m.open {
		return ErrTransactionOpen
	}
	m.pending = make(map[string]pendingWrite)
	m.open = true
	return nil
}

// Commit flushes the overlay through one storage batch. Either every buffered
// write lands or none does. On a batch failure the transaction stays open so
// the caller can Discard it.
func (m *Manager) Commit() error {
	if m == nil || !m.open {
		return ErrNoTransaction
	}
	if len(m.pending) > 0 {
		batch := m.db.NewBatch()
		for key, write := range m.pending {
			if write.deleted {
				batch.Delete([]byte(key))
				continue
			}
			batch.Put([]byte(key), write.value)
		}
		if err := batch.Write(); err != nil {
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	m.pending = nil
	m.open = false
	return nil
}

// Discard drops the overlay without writing anything.
func (m *Manager) Discard() {
	if m == nil {
		return
	}
	m.pending = nil
	m.open = false
}

// InTransaction reports whether a transaction is currently open.
func (m *Manager) InTransaction() bool {
	return m != nil && m.open
}

func (m *Manager) readRaw(key []byte) ([]byte, bool, error) {
	if m == nil || m.db == nil {
		return nil, false, errNilDatabase
	}
	if m.open {
		if write, ok := m.pending[string(key)]; ok {
			if write.deleted {
				return nil, false, nil
			}
			return append([]byte(nil), write.value...), true, nil
		}
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (m *Manager) writeRaw(key, value []byte) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	if m.open {
		m.pending[string(key)] = pendingWrite{value: append([]byte(nil), value...)}
		return nil
	}
	return m.db.Put(key, value)
}

func (m *Manager) deleteRaw(key []byte) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	if m.open {
		m.pending[string(key)] = pendingWrite{deleted: true}
		return nil
	}
	return m.db.Delete(key)
}

// readRecord decodes the RLP record stored under key into out. The boolean
// reports whether the key existed.
func (m *Manager) readRecord(key []byte, out interface{}) (bool, error) {
	data, ok, err := m.readRaw(key)
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

// writeRecord stores the RLP encoding of record under key.
func (m *Manager) writeRecord(key []byte, record interface{}) error {
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return m.writeRaw(key, encoded)
}

// nextSequence returns the current value of a monotonic counter and advances
// it. Counters start at one; an id is never handed out twice, even across a
// crash, because the advance is committed with the records that consumed it.
func (m *Manager) nextSequence(key []byte) (uint64, error) {
	var current uint64
	ok, err := m.readRecord(key, &current)
	if err != nil {
		return 0, err
	}
	if !ok || current == 0 {
		current = 1
	}
	if err := m.writeRecord(key, current+1); err != nil {
		return 0, err
	}
	return current, nil
}

// peekSequence reads a counter without advancing it.
func (m *Manager) peekSequence(key []byte) (uint64, error) {
	var current uint64
	ok, err := m.readRecord(key, &current)
	if err != nil {
		return 0, err
	}
	if !ok || current == 0 {
		return 1, nil
	}
	return current, nil
}

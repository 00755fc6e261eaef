package state

import (
	"errors"
	"fmt"
)

// SchemaVersion identifies the expected on-disk layout of the ledger state.
// Increment this constant whenever breaking changes are made to the stored
// records.
const SchemaVersion uint64 = 1

// ErrSchemaVersionMismatch indicates the stored schema version does not match
// the version supported by the current binary.
var ErrSchemaVersionMismatch = errors.New("state: schema version mismatch")

// SetSchemaVersion records the provided schema version. Callers invoke this
// after performing any required migrations.
func (m *Manager) SetSchemaVersion(version uint64) error {
	if m == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	return m.writeRecord(schemaVersionKey, version)
}

// StoredSchemaVersion returns the stored schema version and whether a value
// was present.
func (m *Manager) StoredSchemaVersion() (uint64, bool, error) {
	if m == nil {
		return 0, false, fmt.Errorf("state: manager unavailable")
	}
	var stored uint64
	ok, err := m.readRecord(schemaVersionKey, &stored)
	if err != nil {
		return 0, false, err
	}
	return stored, ok, nil
}

// EnsureSchemaVersion verifies the on-disk schema matches this binary. A
// fresh database is stamped with the current version; an older database is
// rejected unless allowMigrate is set, leaving operators room for manual
// migrations.
func (m *Manager) EnsureSchemaVersion(allowMigrate bool) error {
	version, ok, err := m.StoredSchemaVersion()
	if err != nil {
		return err
	}
	if !ok {
		return m.SetSchemaVersion(SchemaVersion)
	}
	if version == SchemaVersion || allowMigrate {
		return nil
	}
	return fmt.Errorf("%w: on-disk=%d expected=%d", ErrSchemaVersionMismatch, version, SchemaVersion)
}

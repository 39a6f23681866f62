package state

import (
	"errors"
	"fmt"

	"lendcore/storage"
)

// StateVersion is the snapshot layout this binary reads and writes.
const StateVersion uint32 = 1

var (
	stateVersionKey = []byte("state/version")

	ErrStateVersionMismatch = errors.New("state: schema version mismatch")
)

// SetStateVersion stamps the database with version.
func (m *Manager) SetStateVersion(version uint32) error {
	return m.KVPut(stateVersionKey, version)
}

// StateVersion returns the stamped version, or false on a fresh database.
func (m *Manager) StateVersion() (uint32, bool, error) {
	var stored uint32
	ok, err := m.KVGet(stateVersionKey, &stored)
	if err != nil || !ok {
		return 0, false, err
	}
	return stored, true, nil
}

// EnsureStateVersion stamps a fresh database and rejects one written by an
// incompatible binary unless allowMigrate is set.
func EnsureStateVersion(db storage.Database, allowMigrate bool) error {
	if db == nil {
		return errors.New("state: nil database")
	}
	m := NewManager(db)
	version, ok, err := m.StateVersion()
	switch {
	case err != nil:
		return err
	case !ok:
		return m.SetStateVersion(StateVersion)
	case version != StateVersion && !allowMigrate:
		return fmt.Errorf("%w: on-disk=%d expected=%d", ErrStateVersionMismatch, version, StateVersion)
	}
	return nil
}

package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"lendcore/storage"
)

var errEmptyKey = errors.New("kv: key must not be empty")

// Manager stores RLP records under keccak-hashed keys.
type Manager struct {
	db     storage.Database
	retain uint64
}

func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, retain: DefaultSnapshotRetention}
}

// kvBatch accumulates writes for a single atomic commit.
type kvBatch []storage.Write

func (b *kvBatch) put(key []byte, value any) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	*b = append(*b, storage.Write{Key: ethcrypto.Keccak256(key), Value: encoded})
	return nil
}

func (b *kvBatch) delete(key []byte) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	*b = append(*b, storage.Write{Key: ethcrypto.Keccak256(key)})
	return nil
}

func (m *Manager) commit(b kvBatch) error {
	return m.db.Apply(b)
}

// KVPut RLP-encodes value and stores it under the hashed key.
func (m *Manager) KVPut(key []byte, value any) error {
	var b kvBatch
	if err := b.put(key, value); err != nil {
		return err
	}
	return m.commit(b)
}

// KVGet decodes the record under key into out. It reports false when the key
// is absent; a nil out only checks presence.
func (m *Manager) KVGet(key []byte, out any) (bool, error) {
	if len(key) == 0 {
		return false, errEmptyKey
	}
	data, err := m.db.Get(ethcrypto.Keccak256(key))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("kv: read: %w", err)
	case len(data) == 0:
		return false, nil
	case out == nil:
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("kv: decode: %w", err)
	}
	return true, nil
}

func (m *Manager) KVDelete(key []byte) error {
	var b kvBatch
	if err := b.delete(key); err != nil {
		return err
	}
	return m.commit(b)
}

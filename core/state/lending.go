package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"lendcore/native/lending"
)

// DefaultSnapshotRetention is the number of historical snapshots kept next to
// the head record.
const DefaultSnapshotRetention uint64 = 16

var (
	lendingHeadKey          = []byte("lending/snapshot/head")
	lendingHistoryKeyFormat = "lending/snapshot/%020d"

	// ErrSnapshotCorrupt reports a record whose body does not match its digest.
	ErrSnapshotCorrupt = errors.New("state: lending snapshot digest mismatch")
)

// snapshotRecord is the RLP envelope around a JSON-encoded store snapshot.
type snapshotRecord struct {
	Sequence uint64
	SavedAt  uint64
	Digest   []byte
	Body     []byte
}

// SnapshotInfo describes a persisted snapshot.
type SnapshotInfo struct {
	Sequence uint64    `json:"sequence"`
	SavedAt  time.Time `json:"saved_at"`
	Digest   string    `json:"digest"`
	Size     int       `json:"size"`
}

func lendingHistoryKey(seq uint64) []byte {
	return []byte(fmt.Sprintf(lendingHistoryKeyFormat, seq))
}

// SetSnapshotRetention bounds the snapshot history. Zero keeps only the head.
func (m *Manager) SetSnapshotRetention(n uint64) {
	m.retain = n
}

// PutLendingSnapshot atomically replaces the head with snap, appends it to the
// history and prunes the entry that fell out of the retention window.
func (m *Manager) PutLendingSnapshot(snap *lending.Snapshot, savedAt time.Time) (*SnapshotInfo, error) {
	if snap == nil {
		return nil, fmt.Errorf("state: nil lending snapshot")
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("state: encode lending snapshot: %w", err)
	}
	var head snapshotRecord
	ok, err := m.KVGet(lendingHeadKey, &head)
	if err != nil {
		return nil, err
	}
	seq := uint64(1)
	if ok {
		seq = head.Sequence + 1
	}
	rec := snapshotRecord{
		Sequence: seq,
		SavedAt:  uint64(savedAt.Unix()),
		Digest:   ethcrypto.Keccak256(body),
		Body:     body,
	}
	var batch kvBatch
	if err := batch.put(lendingHeadKey, &rec); err != nil {
		return nil, err
	}
	if m.retain > 0 {
		if err := batch.put(lendingHistoryKey(seq), &rec); err != nil {
			return nil, err
		}
		if seq > m.retain {
			if err := batch.delete(lendingHistoryKey(seq - m.retain)); err != nil {
				return nil, err
			}
		}
	}
	if err := m.commit(batch); err != nil {
		return nil, fmt.Errorf("state: write lending snapshot %d: %w", seq, err)
	}
	return rec.info(), nil
}

// LendingSnapshot loads the head snapshot. The boolean is false when nothing
// has been persisted yet.
func (m *Manager) LendingSnapshot() (*lending.Snapshot, *SnapshotInfo, bool, error) {
	return m.loadSnapshot(lendingHeadKey)
}

// LendingSnapshotAt loads a retained historical snapshot.
func (m *Manager) LendingSnapshotAt(seq uint64) (*lending.Snapshot, *SnapshotInfo, bool, error) {
	return m.loadSnapshot(lendingHistoryKey(seq))
}

func (m *Manager) loadSnapshot(key []byte) (*lending.Snapshot, *SnapshotInfo, bool, error) {
	var rec snapshotRecord
	ok, err := m.KVGet(key, &rec)
	if err != nil || !ok {
		return nil, nil, false, err
	}
	if !bytes.Equal(ethcrypto.Keccak256(rec.Body), rec.Digest) {
		return nil, nil, false, fmt.Errorf("%w: sequence %d", ErrSnapshotCorrupt, rec.Sequence)
	}
	snap := new(lending.Snapshot)
	if err := json.Unmarshal(rec.Body, snap); err != nil {
		return nil, nil, false, fmt.Errorf("state: decode lending snapshot %d: %w", rec.Sequence, err)
	}
	return snap, rec.info(), true, nil
}

func (r *snapshotRecord) info() *SnapshotInfo {
	return &SnapshotInfo{
		Sequence: r.Sequence,
		SavedAt:  time.Unix(int64(r.SavedAt), 0).UTC(),
		Digest:   fmt.Sprintf("%x", r.Digest),
		Size:     len(r.Body),
	}
}

// Package outbox records committed token movements until an operator or a
// settlement worker acknowledges them.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"lendcore/native/lending"
)

var (
	ErrBatchNotFound = errors.New("outbox: batch not found")
	ErrEmptyBatch    = errors.New("outbox: batch has no effects")
)

// Batch is the set of effects one committed operation produced.
type Batch struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence     uint64     `gorm:"index" json:"sequence"`
	Operation    string     `gorm:"size:64;index" json:"operation"`
	Digest       string     `gorm:"size:64;uniqueIndex" json:"digest"`
	Effects      string     `gorm:"type:text" json:"-"`
	EffectCount  int        `json:"effect_count"`
	CreatedAt    time.Time  `json:"created_at"`
	DispatchedAt *time.Time `gorm:"index" json:"dispatched_at,omitempty"`
	Attempts     int        `json:"attempts"`
	LastError    string     `gorm:"size:512" json:"last_error,omitempty"`
}

// Decode returns the effects carried by the batch.
func (b *Batch) Decode() ([]lending.Effect, error) {
	var effects []lending.Effect
	if err := json.Unmarshal([]byte(b.Effects), &effects); err != nil {
		return nil, fmt.Errorf("outbox: decode batch %s: %w", b.ID, err)
	}
	return effects, nil
}

// Store persists batches through gorm.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to sqlite or postgres and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("outbox: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("outbox: open: %w", err)
	}
	return New(db)
}

// New wraps an existing connection.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Batch{}); err != nil {
		return nil, fmt.Errorf("outbox: migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Digest identifies a batch by snapshot sequence, operation and effects.
func Digest(seq uint64, op string, body []byte) string {
	h := blake3.New(32, nil)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(op))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Enqueue stores the effects of one commit. Re-enqueueing the same sequence,
// operation and effects is a no-op; the boolean reports whether a new batch
// was created.
func (s *Store) Enqueue(ctx context.Context, seq uint64, op string, effects []lending.Effect) (*Batch, bool, error) {
	if len(effects) == 0 {
		return nil, false, ErrEmptyBatch
	}
	body, err := json.Marshal(effects)
	if err != nil {
		return nil, false, fmt.Errorf("outbox: encode effects: %w", err)
	}
	batch := &Batch{
		ID:          uuid.New(),
		Sequence:    seq,
		Operation:   op,
		Digest:      Digest(seq, op, body),
		Effects:     string(body),
		EffectCount: len(effects),
		CreatedAt:   s.now().UTC(),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "digest"}},
		DoNothing: true,
	}).Create(batch)
	if res.Error != nil {
		return nil, false, fmt.Errorf("outbox: enqueue: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var existing Batch
		if err := s.db.WithContext(ctx).First(&existing, "digest = ?", batch.Digest).Error; err != nil {
			return nil, false, fmt.Errorf("outbox: load duplicate: %w", err)
		}
		meter().record(ctx, "duplicate", op)
		return &existing, false, nil
	}
	meter().record(ctx, "enqueued", op)
	return batch, true, nil
}

// Pending lists undispatched batches oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Batch
	err := s.db.WithContext(ctx).
		Where("dispatched_at IS NULL").
		Order("sequence asc, created_at asc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("outbox: pending: %w", err)
	}
	return out, nil
}

// PendingCount counts undispatched batches.
func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Batch{}).Where("dispatched_at IS NULL").Count(&n).Error
	return n, err
}

// Get loads one batch.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Batch, error) {
	var batch Batch
	err := s.db.WithContext(ctx).First(&batch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// MarkDispatched acknowledges a batch. Acknowledging twice keeps the first
// timestamp.
func (s *Store) MarkDispatched(ctx context.Context, id uuid.UUID) (*Batch, error) {
	batch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch.DispatchedAt != nil {
		return batch, nil
	}
	now := s.now().UTC()
	batch.DispatchedAt = &now
	batch.Attempts++
	batch.LastError = ""
	if err := s.db.WithContext(ctx).Save(batch).Error; err != nil {
		return nil, fmt.Errorf("outbox: ack: %w", err)
	}
	meter().record(ctx, "dispatched", batch.Operation)
	return batch, nil
}

// MarkFailed records a delivery failure so the batch is retried later.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
		if len(msg) > 512 {
			msg = msg[:512]
		}
	}
	res := s.db.WithContext(ctx).Model(&Batch{}).Where("id = ? AND dispatched_at IS NULL", id).
		Updates(map[string]any{"attempts": gorm.Expr("attempts + 1"), "last_error": msg})
	if res.Error != nil {
		return fmt.Errorf("outbox: mark failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrBatchNotFound
	}
	meter().record(ctx, "failed", "")
	return nil
}

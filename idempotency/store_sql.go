package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimRecord is the row layout of SQLStore.
type ClaimRecord struct {
	Key       string    `gorm:"column:claim_key;primaryKey;size:191"`
	State     string    `gorm:"column:state;size:16;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;index;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides the gorm default.
func (ClaimRecord) TableName() string {
	return "txgate_claims"
}

// SQLStore implements Store on any gorm dialect. The primary key on
// claim_key makes concurrent inserts of one key race on the database, so
// at most one Claim inserts a row.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// SQLOption configures an SQLStore.
type SQLOption func(*SQLStore)

// WithSQLClock replaces time.Now for expiry decisions.
func WithSQLClock(now func() time.Time) SQLOption {
	return func(s *SQLStore) {
		s.now = now
	}
}

// NewSQLStore creates the claims table if needed and returns a store on db.
func NewSQLStore(db *gorm.DB, opts ...SQLOption) (*SQLStore, error) {
	s := &SQLStore{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := db.AutoMigrate(&ClaimRecord{}); err != nil {
		return nil, fmt.Errorf("idempotency: migrate claims table: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}

	now := s.now().UTC()
	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// An expired row for the key counts as absent.
		err := tx.Where("claim_key = ? AND expires_at <= ?", key, now).
			Delete(&ClaimRecord{}).Error
		if err != nil {
			return err
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ClaimRecord{
			Key:       key,
			State:     string(StateProcessing),
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		})
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("idempotency: sql claim: %w", err)
	}
	return inserted, nil
}

func (s *SQLStore) Finalize(ctx context.Context, key string) error {
	res := s.db.WithContext(ctx).
		Model(&ClaimRecord{}).
		Where("claim_key = ? AND expires_at > ?", key, s.now().UTC()).
		Update("state", string(StateUsed))
	if res.Error != nil {
		return fmt.Errorf("idempotency: sql finalize: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrClaimNotFound
	}
	return nil
}

func (s *SQLStore) Release(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).
		Where("claim_key = ?", key).
		Delete(&ClaimRecord{}).Error
	if err != nil {
		return fmt.Errorf("idempotency: sql release: %w", err)
	}
	return nil
}

func (s *SQLStore) State(ctx context.Context, key string) (State, error) {
	var rec ClaimRecord
	err := s.db.WithContext(ctx).
		Where("claim_key = ? AND expires_at > ?", key, s.now().UTC()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StateNone, nil
	}
	if err != nil {
		return StateNone, fmt.Errorf("idempotency: sql state: %w", err)
	}
	return State(rec.State), nil
}

// Sweep deletes expired rows and returns how many were removed.
func (s *SQLStore) Sweep(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now().UTC()).
		Delete(&ClaimRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("idempotency: sql sweep: %w", res.Error)
	}
	return res.RowsAffected, nil
}

var _ Store = (*SQLStore)(nil)

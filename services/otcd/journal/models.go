package journal

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is one committed pool event. Records form a hash chain: each
// Hash covers the previous record's Hash.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	PrevHash   string    `gorm:"size:64"`
	Hash       string    `gorm:"size:64;uniqueIndex"`
	CreatedAt  time.Time
}

// NonceRecord marks a signed request nonce as consumed.
type NonceRecord struct {
	Address   string    `gorm:"size:64;primaryKey"`
	Nonce     string    `gorm:"size:128;primaryKey"`
	CreatedAt time.Time `gorm:"index"`
}

// IdempotencyRecord stores the response of a request carrying an
// Idempotency-Key so retries replay it.
type IdempotencyRecord struct {
	Key         string `gorm:"size:256;primaryKey"`
	RequestID   string `gorm:"size:64"`
	Method      string `gorm:"size:16"`
	Path        string `gorm:"size:256"`
	RequestHash string `gorm:"size:64"`
	Status      int
	Response    string `gorm:"type:text"`
	CreatedAt   time.Time
}

// AutoMigrate creates or updates the journal tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&EventRecord{},
		&NonceRecord{},
		&IdempotencyRecord{},
	)
}

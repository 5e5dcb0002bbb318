package journal

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"lukechampine.com/blake3"

	"otcpool/core/events"
	"otcpool/core/types"
)

var (
	// ErrNonceReused is returned when a signed request nonce was already consumed.
	ErrNonceReused = errors.New("journal: nonce already used")
	// ErrChainBroken is returned by Verify when a stored record does not hash
	// to its successor's PrevHash.
	ErrChainBroken = errors.New("journal: hash chain broken")
)

// Config selects the journal database.
type Config struct {
	// Driver is sqlite or postgres.
	Driver string
	DSN    string
	Logger *slog.Logger
	Now    func() time.Time
}

// Journal persists committed pool events as a hash chain and tracks request
// nonces and idempotency keys. It implements events.Emitter.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	seq       uint64
	head      string
	observers []func(EventRecord)
}

// Open connects to the configured database and migrates the journal tables.
func Open(cfg Config) (*Journal, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres", "postgresql":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	return New(db, cfg.Logger, cfg.Now)
}

// New wraps an open gorm handle.
func New(db *gorm.DB, logger *slog.Logger, now func() time.Time) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	j := &Journal{db: db, logger: logger, now: now}
	var last EventRecord
	err := db.Order("sequence desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("journal: load head: %w", err)
	}
	if last.Hash != "" {
		j.seq = last.Sequence
		j.head = last.Hash
	}
	return j, nil
}

// DB exposes the underlying handle.
func (j *Journal) DB() *gorm.DB { return j.db }

// Subscribe registers fn to receive every record after it is stored.
func (j *Journal) Subscribe(fn func(EventRecord)) {
	if fn == nil {
		return
	}
	j.mu.Lock()
	j.observers = append(j.observers, fn)
	j.mu.Unlock()
}

// Emit implements events.Emitter. Events without an attribute payload are
// journaled with their type only.
func (j *Journal) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	payload := &types.Event{Type: evt.EventType()}
	if p, ok := evt.(events.Payload); ok && p.Event() != nil {
		payload = p.Event()
	}
	if _, err := j.Append(context.Background(), payload); err != nil {
		j.logger.Error("journal append failed", "type", payload.Type, "error", err)
	}
}

// Append stores evt at the head of the chain.
func (j *Journal) Append(ctx context.Context, evt *types.Event) (EventRecord, error) {
	if evt == nil {
		return EventRecord{}, errors.New("journal: nil event")
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return EventRecord{}, fmt.Errorf("journal: encode attributes: %w", err)
	}

	j.mu.Lock()
	record := EventRecord{
		ID:         uuid.New(),
		Sequence:   j.seq + 1,
		Type:       evt.Type,
		Attributes: string(encoded),
		PrevHash:   j.head,
		CreatedAt:  j.now().UTC(),
	}
	record.Hash = chainHash(record.PrevHash, record.Sequence, record.Type, record.Attributes)
	if err := j.db.WithContext(ctx).Create(&record).Error; err != nil {
		j.mu.Unlock()
		return EventRecord{}, fmt.Errorf("journal: insert event: %w", err)
	}
	j.seq = record.Sequence
	j.head = record.Hash
	observers := append([]func(EventRecord){}, j.observers...)
	j.mu.Unlock()

	for _, fn := range observers {
		fn(record)
	}
	return record, nil
}

// Head returns the sequence and hash of the newest record.
func (j *Journal) Head() (uint64, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq, j.head
}

// Events returns up to limit records with a sequence greater than after.
func (j *Journal) Events(ctx context.Context, after uint64, limit int) ([]EventRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []EventRecord
	err := j.db.WithContext(ctx).
		Where("sequence > ?", after).
		Order("sequence asc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("journal: list events: %w", err)
	}
	return out, nil
}

// Verify walks the whole chain and recomputes every hash.
func (j *Journal) Verify(ctx context.Context) error {
	var (
		after uint64
		prev  string
	)
	for {
		page, err := j.Events(ctx, after, 500)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, record := range page {
			if record.Sequence != after+1 {
				return fmt.Errorf("%w: gap before sequence %d", ErrChainBroken, record.Sequence)
			}
			if record.PrevHash != prev {
				return fmt.Errorf("%w: sequence %d links to %s", ErrChainBroken, record.Sequence, record.PrevHash)
			}
			if want := chainHash(record.PrevHash, record.Sequence, record.Type, record.Attributes); record.Hash != want {
				return fmt.Errorf("%w: sequence %d hash mismatch", ErrChainBroken, record.Sequence)
			}
			after = record.Sequence
			prev = record.Hash
		}
	}
}

// Decode returns the attribute map of a record.
func (r EventRecord) Decode() (map[string]string, error) {
	attrs := map[string]string{}
	if r.Attributes == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
		return nil, fmt.Errorf("journal: decode attributes: %w", err)
	}
	return attrs, nil
}

// UseNonce consumes nonce for address. A second use fails with ErrNonceReused.
func (j *Journal) UseNonce(ctx context.Context, address, nonce string) error {
	record := NonceRecord{Address: address, Nonce: nonce, CreatedAt: j.now().UTC()}
	res := j.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if res.Error != nil {
		return fmt.Errorf("journal: store nonce: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNonceReused
	}
	return nil
}

// PruneNonces deletes nonces recorded before cutoff. Requests older than the
// allowed clock skew are rejected before their nonce is checked, so pruned
// nonces cannot be replayed.
func (j *Journal) PruneNonces(ctx context.Context, cutoff time.Time) (int64, error) {
	res := j.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&NonceRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("journal: prune nonces: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// LookupIdempotent returns the stored response for key.
func (j *Journal) LookupIdempotent(ctx context.Context, key string) (*IdempotencyRecord, bool, error) {
	var record IdempotencyRecord
	err := j.db.WithContext(ctx).First(&record, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("journal: lookup idempotency key: %w", err)
	}
	return &record, true, nil
}

// SaveIdempotent stores record unless the key already exists.
func (j *Journal) SaveIdempotent(ctx context.Context, record IdempotencyRecord) error {
	if record.RequestID == "" {
		record.RequestID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = j.now().UTC()
	}
	err := j.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("journal: save idempotency key: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func chainHash(prev string, seq uint64, eventType, attrs string) string {
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	h := blake3.New(32, nil)
	h.Write([]byte(prev))
	h.Write(seqBuf[:])
	h.Write([]byte(eventType))
	h.Write([]byte{0})
	h.Write([]byte(attrs))
	return hex.EncodeToString(h.Sum(nil))
}

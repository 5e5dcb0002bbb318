package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"otcpool/core/events"
	"otcpool/storage"
)

var errStoreClosed = errors.New("state: store closed")

// Store runs pool operations as transactions over a key-value database.
// Writers are serialised by a store-wide lock; each Update either commits
// every staged write in one batch or none of them. Events emitted while a
// transaction is open are held back and published only after its commit.
type Store struct {
	db storage.Database

	mu     sync.RWMutex
	closed bool

	emitMu  sync.Mutex
	inTx    bool
	pending []events.Event
	emitter events.Emitter
}

// NewStore wraps db. The caller keeps ownership of db.
func NewStore(db storage.Database) *Store {
	return &Store{db: db, emitter: events.NoopEmitter{}}
}

// SetEmitter configures where committed events are published.
func (s *Store) SetEmitter(emitter events.Emitter) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	s.emitter = emitter
}

// Emit implements events.Emitter. Inside an Update the event is buffered
// until commit; otherwise it is forwarded immediately.
func (s *Store) Emit(evt events.Event) {
	s.emitMu.Lock()
	if s.inTx {
		s.pending = append(s.pending, evt)
		s.emitMu.Unlock()
		return
	}
	emitter := s.emitter
	s.emitMu.Unlock()
	emitter.Emit(evt)
}

func (s *Store) beginEvents() {
	s.emitMu.Lock()
	s.inTx = true
	s.pending = nil
	s.emitMu.Unlock()
}

func (s *Store) endEvents(publish bool) {
	s.emitMu.Lock()
	pending := s.pending
	emitter := s.emitter
	s.inTx = false
	s.pending = nil
	s.emitMu.Unlock()
	if !publish {
		return
	}
	for _, evt := range pending {
		emitter.Emit(evt)
	}
}

// Update runs fn in a read-write transaction. fn's writes are committed only
// when it returns nil.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}
	s.beginEvents()
	committed := false
	defer func() {
		if r := recover(); r != nil {
			s.endEvents(false)
			panic(r)
		}
		s.endEvents(committed)
	}()

	tx := newTx(s.db, true)
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.commit(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	committed = true
	return nil
}

// View runs fn against committed state. Writes inside fn fail.
func (s *Store) View(fn func(tx *Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errStoreClosed
	}
	return fn(newTx(s.db, false))
}

// Close marks the store unusable. The underlying database is not closed.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

var errReadOnly = errors.New("state: write in read-only transaction")

// Tx is a transaction over the store. Reads see the transaction's own
// writes; nothing reaches the database until commit.
type Tx struct {
	db       storage.Database
	writable bool
	overlay  map[string][]byte
}

func newTx(db storage.Database, writable bool) *Tx {
	return &Tx{db: db, writable: writable, overlay: make(map[string][]byte)}
}

func (tx *Tx) get(key []byte) ([]byte, bool, error) {
	if value, ok := tx.overlay[string(key)]; ok {
		return value, true, nil
	}
	value, err := tx.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (tx *Tx) put(key, value []byte) error {
	if !tx.writable {
		return errReadOnly
	}
	tx.overlay[string(key)] = append([]byte(nil), value...)
	return nil
}

func (tx *Tx) getRecord(key []byte, v interface{}) (bool, error) {
	data, ok, err := tx.get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := decode(data, v); err != nil {
		return false, fmt.Errorf("state: decode record: %w", err)
	}
	return true, nil
}

func (tx *Tx) putRecord(key []byte, v interface{}) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	return tx.put(key, data)
}

// iterate visits committed keys merged with the transaction's own writes.
func (tx *Tx) iterate(prefix []byte, fn func(key, value []byte) bool) error {
	merged := make(map[string][]byte)
	if err := tx.db.Iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = value
		return true
	}); err != nil {
		return err
	}
	for key, value := range tx.overlay {
		if strings.HasPrefix(key, string(prefix)) {
			merged[key] = value
		}
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !fn([]byte(key), merged[key]) {
			return nil
		}
	}
	return nil
}

func (tx *Tx) commit() error {
	if len(tx.overlay) == 0 {
		return nil
	}
	batch := tx.db.NewBatch()
	for key, value := range tx.overlay {
		batch.Put([]byte(key), value)
	}
	return batch.Write()
}

package otc

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"otcpool/core/events"
	"otcpool/core/types"
	nativecommon "otcpool/native/common"
)

var errNilState = errors.New("otc engine: state not configured")

// State is the transactional view an operation runs against. Every call of an
// Engine method is expected to run inside one transaction so that a failure
// leaves no partial writes behind.
type State interface {
	PoolGet() (*Pool, bool, error)
	PoolPut(*Pool) error
	OfferGet(id [32]byte) (*Offer, bool, error)
	OfferPut(*Offer) error
	// EscrowRegister marks owner as protocol controlled so the ledger refuses
	// debits not backed by an escrow authority.
	EscrowRegister(owner Address) error
	Balance(acct Account) (uint64, error)
	Transfer(from, to Account, auth Authority, amount uint64) error
}

type otcEvent struct {
	evt *types.Event
}

func (e otcEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e otcEvent) Event() *types.Event { return e.evt }

// Engine applies pool governance and offer lifecycle transitions. It holds no
// pool state of its own; the Pool is loaded from the State on every call.
type Engine struct {
	emitter events.Emitter
	nowFn   func() int64
	logger  *slog.Logger
}

// NewEngine creates an engine with a no-op emitter and the system clock.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		logger:  slog.Default(),
	}
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger configures the logger used for operator warnings.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(otcEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) log() *slog.Logger {
	if e == nil || e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

func (e *Engine) loadPool(st State) (*Pool, error) {
	if st == nil {
		return nil, errNilState
	}
	pool, ok, err := st.PoolGet()
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return nil, ErrPoolNotInitialized
	}
	return pool, nil
}

func (e *Engine) loadOffer(st State, maker Address) (*Offer, error) {
	offer, ok, err := st.OfferGet(OfferID(maker))
	if err != nil {
		return nil, err
	}
	if !ok || offer == nil {
		return nil, ErrOfferNotFound
	}
	return offer, nil
}

// requireActive rejects trading while the pool is paused.
func requireActive(pool *Pool) error {
	if err := nativecommon.Guard(pool, ModuleName); err != nil {
		return ErrPoolPaused
	}
	return nil
}

func requireAuthority(pool *Pool, caller Address) error {
	if caller != pool.Authority {
		return ErrUnauthorized
	}
	return nil
}

func requirePartner(pool *Pool, addr Address) error {
	if !pool.IsPartner(addr) {
		return ErrUnauthorizedPartner
	}
	return nil
}

func requireMinimum(pool *Pool, amounts ...uint64) error {
	for _, amt := range amounts {
		if amt < pool.MinSwapAmount {
			return ErrSwapBelowMinimum
		}
	}
	return nil
}

// requireTradablePair checks both mints are whitelisted and the ordered pair
// is supported.
func requireTradablePair(pool *Pool, mintA, mintB Address) error {
	if !pool.IsWhitelisted(mintA) || !pool.IsWhitelisted(mintB) {
		return ErrMintNotWhitelisted
	}
	if !pool.SupportsPair(mintA, mintB) {
		return ErrPairNotSupported
	}
	return nil
}

func (e *Engine) requireExpiryWithinPolicy(pool *Pool, expiration int64) error {
	ceiling, err := addExpiry(e.now(), pool.MaxExpirationSecs)
	if err != nil {
		return err
	}
	if expiration > ceiling {
		return ErrExpirationTooLong
	}
	return nil
}

// requireFunds fails before any write when acct cannot cover amount.
func requireFunds(st State, acct Account, amount uint64) error {
	if amount == 0 {
		return nil
	}
	balance, err := st.Balance(acct)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: insufficient balance (have %d, need %d)", ErrTransferFailed, balance, amount)
	}
	return nil
}

func transfer(st State, from, to Account, auth Authority, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := st.Transfer(from, to, auth, amount); err != nil {
		if KindOf(err) == KindTransfer {
			return err
		}
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

package state

import (
	"errors"
	"fmt"
	"math"

	"otcpool/native/otc"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrMintMismatch is returned when source and destination differ in mint.
	ErrMintMismatch = errors.New("state: source and destination mint differ")
	// ErrNotPermitted is returned when the authority does not control the source.
	ErrNotPermitted = errors.New("state: authority does not control source account")
	// ErrEscrowLocked is returned when an escrow is debited without the
	// protocol capability, or credited from outside the engine.
	ErrEscrowLocked = errors.New("state: escrow account requires protocol authority")
	// ErrBalanceOverflow is returned when a credit would wrap.
	ErrBalanceOverflow = errors.New("state: balance overflow")
)

var _ otc.State = (*Tx)(nil)

// PoolGet loads the pool record.
func (tx *Tx) PoolGet() (*otc.Pool, bool, error) {
	var stored storedPool
	ok, err := tx.getRecord(poolKey, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	pool, err := stored.toPool()
	if err != nil {
		return nil, false, err
	}
	return pool, true, nil
}

// PoolPut stores the pool record.
func (tx *Tx) PoolPut(p *otc.Pool) error {
	if p == nil {
		return fmt.Errorf("state: nil pool")
	}
	return tx.putRecord(poolKey, newStoredPool(p))
}

// OfferGet loads the offer with the given slot identity.
func (tx *Tx) OfferGet(id [32]byte) (*otc.Offer, bool, error) {
	var stored storedOffer
	ok, err := tx.getRecord(offerKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	offer, err := stored.toOffer()
	if err != nil {
		return nil, false, err
	}
	return offer, true, nil
}

// OfferPut stores an offer record.
func (tx *Tx) OfferPut(o *otc.Offer) error {
	if o == nil {
		return fmt.Errorf("state: nil offer")
	}
	return tx.putRecord(offerKey(o.ID), newStoredOffer(o))
}

// Offers visits every stored offer in key order.
func (tx *Tx) Offers(fn func(*otc.Offer) bool) error {
	var decodeErr error
	err := tx.iterate(offerPrefix, func(_, value []byte) bool {
		var stored storedOffer
		if err := decode(value, &stored); err != nil {
			decodeErr = fmt.Errorf("state: decode offer: %w", err)
			return false
		}
		offer, err := stored.toOffer()
		if err != nil {
			decodeErr = err
			return false
		}
		return fn(offer)
	})
	if err != nil {
		return err
	}
	return decodeErr
}

// EscrowRegister marks owner as a protocol controlled escrow.
func (tx *Tx) EscrowRegister(owner otc.Address) error {
	return tx.put(escrowKey(owner), []byte{1})
}

// IsEscrow reports whether owner was registered as an escrow.
func (tx *Tx) IsEscrow(owner otc.Address) (bool, error) {
	_, ok, err := tx.get(escrowKey(owner))
	return ok, err
}

// Balance returns the amount held by acct.
func (tx *Tx) Balance(acct otc.Account) (uint64, error) {
	var stored storedBalance
	ok, err := tx.getRecord(balanceKey(acct), &stored)
	if err != nil || !ok {
		return 0, err
	}
	return stored.Amount, nil
}

func (tx *Tx) setBalance(acct otc.Account, amount uint64) error {
	return tx.putRecord(balanceKey(acct), &storedBalance{Owner: acct.Owner, Mint: acct.Mint, Amount: amount})
}

// Balances visits every ledger entry in key order.
func (tx *Tx) Balances(fn func(acct otc.Account, amount uint64) bool) error {
	var decodeErr error
	err := tx.iterate(balancePrefix, func(_, value []byte) bool {
		var stored storedBalance
		if err := decode(value, &stored); err != nil {
			decodeErr = fmt.Errorf("state: decode balance: %w", err)
			return false
		}
		return fn(otc.Account{Owner: stored.Owner, Mint: stored.Mint}, stored.Amount)
	})
	if err != nil {
		return err
	}
	return decodeErr
}

// Transfer moves amount between two sub-ledgers of the same mint. The debit
// must be authorised by auth; escrow accounts only accept the escrow
// capability. Nothing is written unless every check passes.
func (tx *Tx) Transfer(from, to otc.Account, auth otc.Authority, amount uint64) error {
	if from.Mint != to.Mint {
		return ErrMintMismatch
	}
	if !auth.Permits(from.Owner) {
		return ErrNotPermitted
	}
	escrow, err := tx.IsEscrow(from.Owner)
	if err != nil {
		return err
	}
	if escrow && !auth.IsEscrow() {
		return ErrEscrowLocked
	}
	if amount == 0 || from == to {
		return nil
	}
	fromBal, err := tx.Balance(from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return ErrInsufficientBalance
	}
	toBal, err := tx.Balance(to)
	if err != nil {
		return err
	}
	if toBal > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	if err := tx.setBalance(from, fromBal-amount); err != nil {
		return err
	}
	return tx.setBalance(to, toBal+amount)
}

// Credit mints amount into acct. It is the ledger's funding entry point for
// operators and tests; escrow accounts cannot be credited this way.
func (tx *Tx) Credit(acct otc.Account, amount uint64) error {
	escrow, err := tx.IsEscrow(acct.Owner)
	if err != nil {
		return err
	}
	if escrow {
		return ErrEscrowLocked
	}
	bal, err := tx.Balance(acct)
	if err != nil {
		return err
	}
	if bal > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	return tx.setBalance(acct, bal+amount)
}

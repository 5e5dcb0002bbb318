package otc

// CreateOfferParams describes a new standing offer: the maker locks AmountA of
// MintA in escrow and asks AmountB of MintB in exchange.
type CreateOfferParams struct {
	Maker        Address
	MintA        Address
	MintB        Address
	AmountA      uint64
	AmountB      uint64
	ExpirationTs int64
}

// CreateOffer opens an offer in the maker's slot and funds its escrow.
func (e *Engine) CreateOffer(st State, p CreateOfferParams) (*Offer, error) {
	pool, err := e.loadPool(st)
	if err != nil {
		return nil, err
	}
	if err := requireActive(pool); err != nil {
		return nil, err
	}
	if err := requireMinimum(pool, p.AmountA, p.AmountB); err != nil {
		return nil, err
	}
	if err := e.requireExpiryWithinPolicy(pool, p.ExpirationTs); err != nil {
		return nil, err
	}
	if err := requirePartner(pool, p.Maker); err != nil {
		return nil, err
	}
	if err := requireTradablePair(pool, p.MintA, p.MintB); err != nil {
		return nil, err
	}

	id := OfferID(p.Maker)
	escrow := EscrowAddress(id)
	existing, ok, err := st.OfferGet(id)
	if err != nil {
		return nil, err
	}
	if ok && existing.Live() {
		return nil, ErrOfferExists
	}
	if ok {
		// A terminal slot is recycled only once its escrow is empty.
		leftover, err := st.Balance(existing.EscrowAccount())
		if err != nil {
			return nil, err
		}
		if leftover > 0 {
			return nil, ErrEscrowNotEmpty
		}
	}
	source := Account{Owner: p.Maker, Mint: p.MintA}
	if err := requireFunds(st, source, p.AmountA); err != nil {
		return nil, err
	}

	offer := &Offer{
		ID:              id,
		Maker:           p.Maker,
		MintA:           p.MintA,
		MintB:           p.MintB,
		OriginalAmountA: p.AmountA,
		OriginalAmountB: p.AmountB,
		AmountA:         p.AmountA,
		AmountB:         p.AmountB,
		ExpirationTs:    p.ExpirationTs,
		Escrow:          escrow,
		CreatedAt:       e.now(),
	}
	if err := st.EscrowRegister(escrow); err != nil {
		return nil, err
	}
	if err := transfer(st, source, offer.EscrowAccount(), SignerAuthority(p.Maker), p.AmountA); err != nil {
		return nil, err
	}
	if err := st.OfferPut(offer); err != nil {
		return nil, err
	}
	e.emit(NewOfferCreatedEvent(offer))
	return offer.Clone(), nil
}

// quote prices a fill against the offer's original ratio.
func quote(pool *Pool, offer *Offer, fillB uint64) (*Quote, error) {
	if fillB == 0 || fillB > offer.AmountB {
		return nil, ErrInvalidFillAmount
	}
	takeA, err := ProRata(offer.OriginalAmountA, offer.OriginalAmountB, fillB)
	if err != nil {
		return nil, err
	}
	if takeA > offer.AmountA {
		return nil, ErrInvalidFillAmount
	}
	fee, net, err := ComputeFee(takeA, pool.FeeBps)
	if err != nil {
		return nil, err
	}
	remainingB := offer.AmountB - fillB
	return &Quote{
		FillAmountB:      fillB,
		TakeA:            takeA,
		Fee:              fee,
		NetA:             net,
		RemainingAmountA: offer.AmountA - takeA,
		RemainingAmountB: remainingB,
		Fulfills:         remainingB == 0,
	}, nil
}

// AcceptOffer fills fillB of the maker's offer on behalf of taker. The taker
// pays fillB of MintB to the maker and receives the pro-rata MintA less the
// pool fee from escrow.
func (e *Engine) AcceptOffer(st State, taker, maker Address, fillB uint64) (*Quote, error) {
	pool, err := e.loadPool(st)
	if err != nil {
		return nil, err
	}
	if err := requireActive(pool); err != nil {
		return nil, err
	}
	offer, err := e.loadOffer(st, maker)
	if err != nil {
		return nil, err
	}
	if !offer.Live() {
		return nil, ErrOfferAlreadyFulfilled
	}
	if e.now() > offer.ExpirationTs {
		return nil, ErrOfferExpired
	}
	if err := requirePartner(pool, taker); err != nil {
		return nil, err
	}
	q, err := quote(pool, offer, fillB)
	if err != nil {
		return nil, err
	}
	takerSource := Account{Owner: taker, Mint: offer.MintB}
	if err := requireFunds(st, takerSource, fillB); err != nil {
		return nil, err
	}
	if err := requireFunds(st, offer.EscrowAccount(), q.TakeA); err != nil {
		return nil, err
	}

	escrowAuth := escrowAuthority(offer)
	if err := transfer(st, takerSource, Account{Owner: offer.Maker, Mint: offer.MintB}, SignerAuthority(taker), fillB); err != nil {
		return nil, err
	}
	if err := transfer(st, offer.EscrowAccount(), Account{Owner: pool.Treasury, Mint: offer.MintA}, escrowAuth, q.Fee); err != nil {
		return nil, err
	}
	if err := transfer(st, offer.EscrowAccount(), Account{Owner: taker, Mint: offer.MintA}, escrowAuth, q.NetA); err != nil {
		return nil, err
	}

	next := offer.Clone()
	next.AmountB = q.RemainingAmountB
	next.AmountA = q.RemainingAmountA
	if next.AmountB == 0 {
		next.Fulfilled = true
		next.ClosedReason = CloseReasonFilled
	}
	if err := st.OfferPut(next); err != nil {
		return nil, err
	}
	e.emit(NewOfferExecutedEvent(next, taker, q))
	return q, nil
}

// CancelOffer withdraws the maker's offer before expiry. The pool fee is
// charged on the remaining escrow and the rest is refunded to the maker.
func (e *Engine) CancelOffer(st State, caller, maker Address) (*Quote, error) {
	pool, err := e.loadPool(st)
	if err != nil {
		return nil, err
	}
	offer, err := e.loadOffer(st, maker)
	if err != nil {
		return nil, err
	}
	if caller != offer.Maker {
		return nil, ErrUnauthorized
	}
	if !offer.Live() {
		return nil, ErrOfferAlreadyFulfilled
	}
	if e.now() > offer.ExpirationTs {
		return nil, ErrOfferExpired
	}
	fee, net, err := ComputeFee(offer.AmountA, pool.FeeBps)
	if err != nil {
		return nil, err
	}
	if err := requireFunds(st, offer.EscrowAccount(), offer.AmountA); err != nil {
		return nil, err
	}

	escrowAuth := escrowAuthority(offer)
	if err := transfer(st, offer.EscrowAccount(), Account{Owner: pool.Treasury, Mint: offer.MintA}, escrowAuth, fee); err != nil {
		return nil, err
	}
	if err := transfer(st, offer.EscrowAccount(), Account{Owner: offer.Maker, Mint: offer.MintA}, escrowAuth, net); err != nil {
		return nil, err
	}

	next := offer.Clone()
	next.Fulfilled = true
	next.ClosedReason = CloseReasonCancelled
	if err := st.OfferPut(next); err != nil {
		return nil, err
	}
	refund := &Quote{TakeA: offer.AmountA, Fee: fee, NetA: net, RemainingAmountA: next.AmountA, RemainingAmountB: next.AmountB}
	e.emit(NewOfferCancelledEvent(next, refund))
	return refund, nil
}

// ExtendOffer moves the offer's expiration forward.
func (e *Engine) ExtendOffer(st State, caller, maker Address, newExpiration int64) error {
	pool, err := e.loadPool(st)
	if err != nil {
		return err
	}
	offer, err := e.loadOffer(st, maker)
	if err != nil {
		return err
	}
	if caller != offer.Maker {
		return ErrUnauthorized
	}
	if !offer.Live() {
		return ErrOfferAlreadyFulfilled
	}
	if newExpiration <= offer.ExpirationTs {
		return ErrInvalidExtension
	}
	if err := e.requireExpiryWithinPolicy(pool, newExpiration); err != nil {
		return err
	}
	next := offer.Clone()
	next.ExpirationTs = newExpiration
	if err := st.OfferPut(next); err != nil {
		return err
	}
	e.emit(NewOfferExtendedEvent(next, offer.ExpirationTs))
	return nil
}

// CloseExpiredOffer marks a lapsed offer terminal. Anyone may call it. The
// escrow is not drained: whatever it still holds stays there and is reported
// in the expiry event.
func (e *Engine) CloseExpiredOffer(st State, maker Address) (*Offer, error) {
	if _, err := e.loadPool(st); err != nil {
		return nil, err
	}
	offer, err := e.loadOffer(st, maker)
	if err != nil {
		return nil, err
	}
	if !offer.Live() {
		return nil, ErrOfferAlreadyFulfilled
	}
	if e.now() <= offer.ExpirationTs {
		return nil, ErrOfferNotExpired
	}
	stranded, err := st.Balance(offer.EscrowAccount())
	if err != nil {
		return nil, err
	}
	next := offer.Clone()
	next.Fulfilled = true
	next.ClosedReason = CloseReasonExpired
	if err := st.OfferPut(next); err != nil {
		return nil, err
	}
	if stranded > 0 {
		e.log().Warn("expired offer closed with funds left in escrow",
			"maker", formatIdentity(offer.Maker),
			"escrow", formatIdentity(offer.Escrow),
			"mint", formatMint(offer.MintA),
			"stranded", stranded)
	}
	e.emit(NewOfferExpiredEvent(next, stranded))
	return next.Clone(), nil
}

// GetOffer returns the offer in the maker's slot.
func (e *Engine) GetOffer(st State, maker Address) (*Offer, error) {
	if st == nil {
		return nil, errNilState
	}
	offer, err := e.loadOffer(st, maker)
	if err != nil {
		return nil, err
	}
	return offer.Clone(), nil
}

// QuoteFill previews AcceptOffer for fillB without moving funds. Pool pause
// and expiry are not checked.
func (e *Engine) QuoteFill(st State, maker Address, fillB uint64) (*Quote, error) {
	pool, err := e.loadPool(st)
	if err != nil {
		return nil, err
	}
	offer, err := e.loadOffer(st, maker)
	if err != nil {
		return nil, err
	}
	if !offer.Live() {
		return nil, ErrOfferAlreadyFulfilled
	}
	return quote(pool, offer, fillB)
}

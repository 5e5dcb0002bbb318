package otc

// InitParams configures a new pool.
type InitParams struct {
	MaxPartners       uint8
	FeeBps            uint16
	Treasury          Address
	MinSwapAmount     uint64
	MaxExpirationSecs int64
	WhitelistedMints  []Address
}

// ValidateInitParams checks the parameters without touching state.
func ValidateInitParams(params InitParams) error {
	if params.MaxPartners == 0 {
		return ErrInvalidMaxPartners
	}
	if params.FeeBps > BasisPoints {
		return ErrInvalidFeeBps
	}
	if params.Treasury == (Address{}) {
		return ErrInvalidTreasury
	}
	if params.MaxExpirationSecs <= 0 {
		return ErrInvalidExpiryPolicy
	}
	if len(params.WhitelistedMints) > MaxMints {
		return ErrMintLimitReached
	}
	seen := make(map[Address]struct{}, len(params.WhitelistedMints))
	for _, mint := range params.WhitelistedMints {
		if _, dup := seen[mint]; dup {
			return ErrMintAlreadyWhitelisted
		}
		seen[mint] = struct{}{}
	}
	return nil
}

// InitializePool creates the pool with caller as its authority. It fails if a
// pool already exists.
func (e *Engine) InitializePool(st State, caller Address, params InitParams) (*Pool, error) {
	if st == nil {
		return nil, errNilState
	}
	if caller == (Address{}) {
		return nil, ErrUnauthorized
	}
	if _, exists, err := st.PoolGet(); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrPoolAlreadyInitialized
	}
	if err := ValidateInitParams(params); err != nil {
		return nil, err
	}
	pool := NewPool()
	pool.Authority = caller
	pool.MaxPartners = params.MaxPartners
	pool.FeeBps = params.FeeBps
	pool.Treasury = params.Treasury
	pool.MinSwapAmount = params.MinSwapAmount
	pool.MaxExpirationSecs = params.MaxExpirationSecs
	for _, mint := range params.WhitelistedMints {
		pool.WhitelistedMints[mint] = struct{}{}
	}
	if err := st.PoolPut(pool); err != nil {
		return nil, err
	}
	e.emit(NewPoolInitializedEvent(pool))
	return pool.Clone(), nil
}

// mutatePool loads the pool, verifies the caller is its authority, applies fn
// and persists the result.
func (e *Engine) mutatePool(st State, caller Address, fn func(*Pool) error) (*Pool, error) {
	pool, err := e.loadPool(st)
	if err != nil {
		return nil, err
	}
	if err := requireAuthority(pool, caller); err != nil {
		return nil, err
	}
	next := pool.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := st.PoolPut(next); err != nil {
		return nil, err
	}
	return next, nil
}

// TransferAuthority hands pool control to next.
func (e *Engine) TransferAuthority(st State, caller, next Address) error {
	var previous Address
	if _, err := e.mutatePool(st, caller, func(p *Pool) error {
		if next == (Address{}) {
			return ErrInvalidAuthority
		}
		previous = p.Authority
		p.Authority = next
		return nil
	}); err != nil {
		return err
	}
	e.emit(NewAuthorityTransferredEvent(previous, next))
	return nil
}

// UpdateTreasury changes the fee destination.
func (e *Engine) UpdateTreasury(st State, caller, treasury Address) error {
	var previous Address
	if _, err := e.mutatePool(st, caller, func(p *Pool) error {
		if treasury == (Address{}) {
			return ErrInvalidTreasury
		}
		previous = p.Treasury
		p.Treasury = treasury
		return nil
	}); err != nil {
		return err
	}
	e.emit(NewTreasuryUpdatedEvent(previous, treasury))
	return nil
}

// AddWhitelistedMint approves mint for use in pairs.
func (e *Engine) AddWhitelistedMint(st State, caller, mint Address) error {
	pool, err := e.mutatePool(st, caller, func(p *Pool) error {
		if p.IsWhitelisted(mint) {
			return ErrMintAlreadyWhitelisted
		}
		if len(p.WhitelistedMints) >= MaxMints {
			return ErrMintLimitReached
		}
		p.WhitelistedMints[mint] = struct{}{}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(NewMintWhitelistedEvent(mint, len(pool.WhitelistedMints)))
	return nil
}

// RemoveWhitelistedMint withdraws mint approval. Existing pairs and open
// offers referencing mint are left untouched.
func (e *Engine) RemoveWhitelistedMint(st State, caller, mint Address) error {
	pool, err := e.mutatePool(st, caller, func(p *Pool) error {
		if !p.IsWhitelisted(mint) {
			return ErrMintNotFound
		}
		delete(p.WhitelistedMints, mint)
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(NewMintRemovedEvent(mint, len(pool.WhitelistedMints)))
	return nil
}

// AddPartner admits partner to trading.
func (e *Engine) AddPartner(st State, caller, partner Address) error {
	pool, err := e.mutatePool(st, caller, func(p *Pool) error {
		if len(p.Partners) >= int(p.MaxPartners) {
			return ErrPartnerLimitReached
		}
		if p.IsPartner(partner) {
			return ErrPartnerAlreadyExists
		}
		p.Partners[partner] = struct{}{}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(NewPartnerAddedEvent(partner, len(pool.Partners)))
	return nil
}

// RemovePartner revokes trading rights. Open offers made by partner remain
// cancellable by their maker.
func (e *Engine) RemovePartner(st State, caller, partner Address) error {
	pool, err := e.mutatePool(st, caller, func(p *Pool) error {
		if !p.IsPartner(partner) {
			return ErrPartnerNotFound
		}
		delete(p.Partners, partner)
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(NewPartnerRemovedEvent(partner, len(pool.Partners)))
	return nil
}

// AddSupportedPair enables trading mintA against mintB in that direction.
func (e *Engine) AddSupportedPair(st State, caller, mintA, mintB Address) error {
	pool, err := e.mutatePool(st, caller, func(p *Pool) error {
		if !p.IsWhitelisted(mintA) || !p.IsWhitelisted(mintB) {
			return ErrMintNotWhitelisted
		}
		if p.SupportsPair(mintA, mintB) {
			return ErrPairAlreadyExists
		}
		if len(p.SupportedPairs) >= MaxPairs {
			return ErrPairLimitReached
		}
		p.SupportedPairs[Pair{MintA: mintA, MintB: mintB}] = struct{}{}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(NewPairAddedEvent(Pair{MintA: mintA, MintB: mintB}, len(pool.SupportedPairs)))
	return nil
}

// RemoveSupportedPair disables the exact ordered pair.
func (e *Engine) RemoveSupportedPair(st State, caller, mintA, mintB Address) error {
	pool, err := e.mutatePool(st, caller, func(p *Pool) error {
		pair := Pair{MintA: mintA, MintB: mintB}
		if _, ok := p.SupportedPairs[pair]; !ok {
			return ErrPairNotFound
		}
		delete(p.SupportedPairs, pair)
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(NewPairRemovedEvent(Pair{MintA: mintA, MintB: mintB}, len(pool.SupportedPairs)))
	return nil
}

// PausePool halts trading. Governance stays available.
func (e *Engine) PausePool(st State, caller Address) error {
	return e.setPaused(st, caller, true)
}

// ResumePool re-enables trading.
func (e *Engine) ResumePool(st State, caller Address) error {
	return e.setPaused(st, caller, false)
}

func (e *Engine) setPaused(st State, caller Address, paused bool) error {
	var was bool
	if _, err := e.mutatePool(st, caller, func(p *Pool) error {
		was = p.Paused
		p.Paused = paused
		return nil
	}); err != nil {
		return err
	}
	e.emit(NewPauseChangedEvent(caller, paused, was, e.now()))
	return nil
}

// GetPool returns a copy of the current pool.
func (e *Engine) GetPool(st State) (*Pool, error) {
	pool, err := e.loadPool(st)
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

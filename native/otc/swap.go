package otc

// SwapParams describes a direct two-party exchange. PartyA sends AmountA of
// PartyASource.Mint to PartyBDest; PartyB sends AmountB of PartyBSource.Mint
// to PartyADest. Both parties must have authenticated the request.
type SwapParams struct {
	PartyA       Address
	PartyB       Address
	PartyASource Account
	PartyBDest   Account
	PartyBSource Account
	PartyADest   Account
	AmountA      uint64
	AmountB      uint64
}

// SwapResult reports the legs of an executed swap.
type SwapResult struct {
	MintA   Address
	MintB   Address
	AmountA uint64
	AmountB uint64
}

func validateSwapAccounts(p SwapParams) error {
	switch {
	case p.PartyASource.Owner != p.PartyA, p.PartyADest.Owner != p.PartyA:
		return ErrInvalidAccount
	case p.PartyBSource.Owner != p.PartyB, p.PartyBDest.Owner != p.PartyB:
		return ErrInvalidAccount
	case p.PartyBDest.Mint != p.PartyASource.Mint, p.PartyADest.Mint != p.PartyBSource.Mint:
		return ErrInvalidAccount
	}
	return nil
}

// SwapDirect atomically exchanges both legs without escrow or fee.
func (e *Engine) SwapDirect(st State, p SwapParams) (*SwapResult, error) {
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
	if err := requirePartner(pool, p.PartyA); err != nil {
		return nil, err
	}
	if err := requirePartner(pool, p.PartyB); err != nil {
		return nil, err
	}
	if err := validateSwapAccounts(p); err != nil {
		return nil, err
	}
	mintA, mintB := p.PartyASource.Mint, p.PartyBSource.Mint
	if err := requireTradablePair(pool, mintA, mintB); err != nil {
		return nil, err
	}
	if err := requireFunds(st, p.PartyASource, p.AmountA); err != nil {
		return nil, err
	}
	if err := requireFunds(st, p.PartyBSource, p.AmountB); err != nil {
		return nil, err
	}

	if err := transfer(st, p.PartyASource, p.PartyBDest, SignerAuthority(p.PartyA), p.AmountA); err != nil {
		return nil, err
	}
	if err := transfer(st, p.PartyBSource, p.PartyADest, SignerAuthority(p.PartyB), p.AmountB); err != nil {
		return nil, err
	}

	result := &SwapResult{MintA: mintA, MintB: mintB, AmountA: p.AmountA, AmountB: p.AmountB}
	e.emit(NewSwapExecutedEvent(p.PartyA, p.PartyB, result))
	return result, nil
}

package otc

// Authority is the capability presented to the ledger when moving funds out
// of an account. Signer authorities come from authenticated callers. Escrow
// authorities can only be minted inside this package, scoped to one offer.
type Authority struct {
	signer  Address
	escrow  bool
	offerID [32]byte
}

// SignerAuthority wraps an authenticated caller identity.
func SignerAuthority(addr Address) Authority {
	return Authority{signer: addr}
}

func escrowAuthority(offer *Offer) Authority {
	return Authority{escrow: true, offerID: offer.ID, signer: offer.Escrow}
}

// IsEscrow reports whether the capability was issued for an escrow payout.
func (a Authority) IsEscrow() bool { return a.escrow }

// Permits reports whether the capability may debit accounts owned by owner.
func (a Authority) Permits(owner Address) bool {
	if a.escrow {
		return EscrowAddress(a.offerID) == owner
	}
	return a.signer != (Address{}) && a.signer == owner
}

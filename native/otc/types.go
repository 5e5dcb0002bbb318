package otc

import (
	"bytes"
	"sort"
)

const (
	// ModuleName identifies the pool for pause checks.
	ModuleName = "otc"

	// MaxPartners is the hard ceiling on the partner set.
	MaxPartners = 255
	// MaxMints is the whitelist capacity.
	MaxMints = 10
	// MaxPairs is the supported pair capacity.
	MaxPairs = 10

	// BasisPoints is the fee denominator.
	BasisPoints = 10_000
)

// Address is a 20-byte identity or asset identifier.
type Address = [20]byte

// Pair is a directional asset combination. (X,Y) and (Y,X) are distinct.
type Pair struct {
	MintA Address
	MintB Address
}

// Account references the sub-ledger of Owner denominated in Mint.
type Account struct {
	Owner Address
	Mint  Address
}

// Pool is the singleton governance record gating every trade.
type Pool struct {
	Authority         Address
	MaxPartners       uint8
	Partners          map[Address]struct{}
	WhitelistedMints  map[Address]struct{}
	SupportedPairs    map[Pair]struct{}
	Paused            bool
	FeeBps            uint16
	Treasury          Address
	MinSwapAmount     uint64
	MaxExpirationSecs int64
}

// NewPool returns an empty pool with initialised sets.
func NewPool() *Pool {
	return &Pool{
		Partners:         make(map[Address]struct{}),
		WhitelistedMints: make(map[Address]struct{}),
		SupportedPairs:   make(map[Pair]struct{}),
	}
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	out := *p
	out.Partners = make(map[Address]struct{}, len(p.Partners))
	for k := range p.Partners {
		out.Partners[k] = struct{}{}
	}
	out.WhitelistedMints = make(map[Address]struct{}, len(p.WhitelistedMints))
	for k := range p.WhitelistedMints {
		out.WhitelistedMints[k] = struct{}{}
	}
	out.SupportedPairs = make(map[Pair]struct{}, len(p.SupportedPairs))
	for k := range p.SupportedPairs {
		out.SupportedPairs[k] = struct{}{}
	}
	return &out
}

// IsPaused reports whether trading is halted. It satisfies common.PauseView.
func (p *Pool) IsPaused(module string) bool {
	if p == nil || module != ModuleName {
		return false
	}
	return p.Paused
}

// IsPartner reports partner membership.
func (p *Pool) IsPartner(addr Address) bool {
	_, ok := p.Partners[addr]
	return ok
}

// IsWhitelisted reports whether mint may appear in a pair.
func (p *Pool) IsWhitelisted(mint Address) bool {
	_, ok := p.WhitelistedMints[mint]
	return ok
}

// SupportsPair reports whether the exact ordered pair is tradable.
func (p *Pool) SupportsPair(mintA, mintB Address) bool {
	_, ok := p.SupportedPairs[Pair{MintA: mintA, MintB: mintB}]
	return ok
}

// SortedPartners returns the partner set in byte order.
func (p *Pool) SortedPartners() []Address { return sortedAddresses(p.Partners) }

// SortedMints returns the whitelist in byte order.
func (p *Pool) SortedMints() []Address { return sortedAddresses(p.WhitelistedMints) }

// SortedPairs returns the supported pairs ordered by (MintA, MintB).
func (p *Pool) SortedPairs() []Pair {
	out := make([]Pair, 0, len(p.SupportedPairs))
	for pair := range p.SupportedPairs {
		out = append(out, pair)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].MintA[:], out[j].MintA[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].MintB[:], out[j].MintB[:]) < 0
	})
	return out
}

func sortedAddresses(set map[Address]struct{}) []Address {
	out := make([]Address, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// CloseReason records why an offer became terminal.
type CloseReason string

const (
	CloseReasonNone      CloseReason = ""
	CloseReasonFilled    CloseReason = "filled"
	CloseReasonCancelled CloseReason = "cancelled"
	CloseReasonExpired   CloseReason = "expired"
)

// Offer is a standing, partially fillable proposal backed by an escrow.
type Offer struct {
	ID              [32]byte
	Maker           Address
	MintA           Address
	MintB           Address
	OriginalAmountA uint64
	OriginalAmountB uint64
	AmountA         uint64
	AmountB         uint64
	ExpirationTs    int64
	Fulfilled       bool
	Escrow          Address
	CreatedAt       int64
	ClosedReason    CloseReason
}

// Clone returns a copy of the offer.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	out := *o
	return &out
}

// Live reports whether the offer still accepts lifecycle operations.
func (o *Offer) Live() bool { return o != nil && !o.Fulfilled }

// EscrowAccount is the sub-ledger holding the offer's locked asset.
func (o *Offer) EscrowAccount() Account {
	return Account{Owner: o.Escrow, Mint: o.MintA}
}

// Quote previews a fill without mutating anything.
type Quote struct {
	FillAmountB      uint64
	TakeA            uint64
	Fee              uint64
	NetA             uint64
	RemainingAmountA uint64
	RemainingAmountB uint64
	Fulfills         bool
}

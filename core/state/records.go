package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"otcpool/native/otc"
)

type storedPair struct {
	MintA [20]byte
	MintB [20]byte
}

// storedPool is the canonical encoding of the pool. Sets are written in
// sorted order so identical pools encode identically.
type storedPool struct {
	Authority         [20]byte
	MaxPartners       uint8
	Partners          [][20]byte
	WhitelistedMints  [][20]byte
	SupportedPairs    []storedPair
	Paused            bool
	FeeBps            uint16
	Treasury          [20]byte
	MinSwapAmount     uint64
	MaxExpirationSecs uint64
}

func newStoredPool(p *otc.Pool) *storedPool {
	pairs := make([]storedPair, 0, len(p.SupportedPairs))
	for _, pair := range p.SortedPairs() {
		pairs = append(pairs, storedPair{MintA: pair.MintA, MintB: pair.MintB})
	}
	return &storedPool{
		Authority:         p.Authority,
		MaxPartners:       p.MaxPartners,
		Partners:          p.SortedPartners(),
		WhitelistedMints:  p.SortedMints(),
		SupportedPairs:    pairs,
		Paused:            p.Paused,
		FeeBps:            p.FeeBps,
		Treasury:          p.Treasury,
		MinSwapAmount:     p.MinSwapAmount,
		MaxExpirationSecs: uint64(p.MaxExpirationSecs),
	}
}

func (s *storedPool) toPool() (*otc.Pool, error) {
	if len(s.Partners) > int(s.MaxPartners) {
		return nil, fmt.Errorf("state: pool record holds %d partners, max %d", len(s.Partners), s.MaxPartners)
	}
	if len(s.WhitelistedMints) > otc.MaxMints || len(s.SupportedPairs) > otc.MaxPairs {
		return nil, fmt.Errorf("state: pool record exceeds capacity")
	}
	p := otc.NewPool()
	p.Authority = s.Authority
	p.MaxPartners = s.MaxPartners
	p.Paused = s.Paused
	p.FeeBps = s.FeeBps
	p.Treasury = s.Treasury
	p.MinSwapAmount = s.MinSwapAmount
	p.MaxExpirationSecs = int64(s.MaxExpirationSecs)
	for _, partner := range s.Partners {
		p.Partners[partner] = struct{}{}
	}
	for _, mint := range s.WhitelistedMints {
		p.WhitelistedMints[mint] = struct{}{}
	}
	for _, pair := range s.SupportedPairs {
		p.SupportedPairs[otc.Pair{MintA: pair.MintA, MintB: pair.MintB}] = struct{}{}
	}
	return p, nil
}

type storedOffer struct {
	ID              [32]byte
	Maker           [20]byte
	MintA           [20]byte
	MintB           [20]byte
	OriginalAmountA uint64
	OriginalAmountB uint64
	AmountA         uint64
	AmountB         uint64
	ExpirationTs    uint64
	Fulfilled       bool
	Escrow          [20]byte
	CreatedAt       uint64
	ClosedReason    string
}

func newStoredOffer(o *otc.Offer) *storedOffer {
	return &storedOffer{
		ID:              o.ID,
		Maker:           o.Maker,
		MintA:           o.MintA,
		MintB:           o.MintB,
		OriginalAmountA: o.OriginalAmountA,
		OriginalAmountB: o.OriginalAmountB,
		AmountA:         o.AmountA,
		AmountB:         o.AmountB,
		ExpirationTs:    uint64(o.ExpirationTs),
		Fulfilled:       o.Fulfilled,
		Escrow:          o.Escrow,
		CreatedAt:       uint64(o.CreatedAt),
		ClosedReason:    string(o.ClosedReason),
	}
}

func (s *storedOffer) toOffer() (*otc.Offer, error) {
	if s.AmountA > s.OriginalAmountA || s.AmountB > s.OriginalAmountB {
		return nil, fmt.Errorf("state: offer %x remaining exceeds original", s.ID[:4])
	}
	return &otc.Offer{
		ID:              s.ID,
		Maker:           s.Maker,
		MintA:           s.MintA,
		MintB:           s.MintB,
		OriginalAmountA: s.OriginalAmountA,
		OriginalAmountB: s.OriginalAmountB,
		AmountA:         s.AmountA,
		AmountB:         s.AmountB,
		ExpirationTs:    int64(s.ExpirationTs),
		Fulfilled:       s.Fulfilled,
		Escrow:          s.Escrow,
		CreatedAt:       int64(s.CreatedAt),
		ClosedReason:    otc.CloseReason(s.ClosedReason),
	}, nil
}

// storedBalance carries its owner and mint so a prefix scan can rebuild the
// ledger without a reverse index.
type storedBalance struct {
	Owner  [20]byte
	Mint   [20]byte
	Amount uint64
}

func encode(v interface{}) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

func decode(data []byte, v interface{}) error {
	return rlp.DecodeBytes(data, v)
}

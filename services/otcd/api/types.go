package api

import (
	"encoding/hex"

	"otcpool/native/otc"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Pair is a directional mint pair.
type Pair struct {
	MintA string `json:"mintA"`
	MintB string `json:"mintB"`
}

// Pool is the public view of the governance record.
type Pool struct {
	Authority         string   `json:"authority"`
	MaxPartners       uint8    `json:"maxPartners"`
	Partners          []string `json:"partners"`
	WhitelistedMints  []string `json:"whitelistedMints"`
	SupportedPairs    []Pair   `json:"supportedPairs"`
	Paused            bool     `json:"paused"`
	FeeBps            uint16   `json:"feeBps"`
	Treasury          string   `json:"treasury"`
	MinSwapAmount     uint64   `json:"minSwapAmount,string"`
	MaxExpirationSecs int64    `json:"maxExpirationSecs"`
}

// NewPool converts a pool record.
func NewPool(p *otc.Pool) Pool {
	out := Pool{
		Authority:         FormatIdentity(p.Authority),
		MaxPartners:       p.MaxPartners,
		Partners:          []string{},
		WhitelistedMints:  []string{},
		SupportedPairs:    []Pair{},
		Paused:            p.Paused,
		FeeBps:            p.FeeBps,
		Treasury:          FormatIdentity(p.Treasury),
		MinSwapAmount:     p.MinSwapAmount,
		MaxExpirationSecs: p.MaxExpirationSecs,
	}
	for _, partner := range p.SortedPartners() {
		out.Partners = append(out.Partners, FormatIdentity(partner))
	}
	for _, mint := range p.SortedMints() {
		out.WhitelistedMints = append(out.WhitelistedMints, FormatMint(mint))
	}
	for _, pair := range p.SortedPairs() {
		out.SupportedPairs = append(out.SupportedPairs, Pair{MintA: FormatMint(pair.MintA), MintB: FormatMint(pair.MintB)})
	}
	return out
}

// InitPoolRequest initializes the pool; the signer becomes its authority.
type InitPoolRequest struct {
	MaxPartners       uint8    `json:"maxPartners"`
	FeeBps            uint16   `json:"feeBps"`
	Treasury          string   `json:"treasury"`
	MinSwapAmount     uint64   `json:"minSwapAmount,string"`
	MaxExpirationSecs int64    `json:"maxExpirationSecs"`
	WhitelistedMints  []string `json:"whitelistedMints"`
}

// AddressRequest carries a single identity for authority and treasury updates.
type AddressRequest struct {
	Address string `json:"address"`
}

// SwapRequest describes a direct swap. Owners of the source and destination
// accounts are implied by the parties; only mints are named.
type SwapRequest struct {
	PartyA  string `json:"partyA"`
	PartyB  string `json:"partyB"`
	MintA   string `json:"mintA"`
	MintB   string `json:"mintB"`
	AmountA uint64 `json:"amountA,string"`
	AmountB uint64 `json:"amountB,string"`
}

// SwapResponse reports an executed swap.
type SwapResponse struct {
	MintA   string `json:"mintA"`
	MintB   string `json:"mintB"`
	AmountA uint64 `json:"amountA,string"`
	AmountB uint64 `json:"amountB,string"`
}

// CreateOfferRequest opens an offer for the signer.
type CreateOfferRequest struct {
	MintA        string `json:"mintA"`
	MintB        string `json:"mintB"`
	AmountA      uint64 `json:"amountA,string"`
	AmountB      uint64 `json:"amountB,string"`
	ExpirationTs int64  `json:"expirationTs"`
}

// AcceptOfferRequest fills part of an offer.
type AcceptOfferRequest struct {
	FillAmountB uint64 `json:"fillAmountB,string"`
}

// ExtendOfferRequest moves an offer's expiration forward.
type ExtendOfferRequest struct {
	ExpirationTs int64 `json:"expirationTs"`
}

// Offer is the public view of an offer record.
type Offer struct {
	ID              string `json:"id"`
	Maker           string `json:"maker"`
	Escrow          string `json:"escrow"`
	MintA           string `json:"mintA"`
	MintB           string `json:"mintB"`
	OriginalAmountA uint64 `json:"originalAmountA,string"`
	OriginalAmountB uint64 `json:"originalAmountB,string"`
	AmountA         uint64 `json:"amountA,string"`
	AmountB         uint64 `json:"amountB,string"`
	ExpirationTs    int64  `json:"expirationTs"`
	Fulfilled       bool   `json:"fulfilled"`
	CreatedAt       int64  `json:"createdAt"`
	ClosedReason    string `json:"closedReason,omitempty"`
}

// NewOffer converts an offer record.
func NewOffer(o *otc.Offer) Offer {
	return Offer{
		ID:              hex.EncodeToString(o.ID[:]),
		Maker:           FormatIdentity(o.Maker),
		Escrow:          FormatIdentity(o.Escrow),
		MintA:           FormatMint(o.MintA),
		MintB:           FormatMint(o.MintB),
		OriginalAmountA: o.OriginalAmountA,
		OriginalAmountB: o.OriginalAmountB,
		AmountA:         o.AmountA,
		AmountB:         o.AmountB,
		ExpirationTs:    o.ExpirationTs,
		Fulfilled:       o.Fulfilled,
		CreatedAt:       o.CreatedAt,
		ClosedReason:    string(o.ClosedReason),
	}
}

// Quote previews or reports a fill or a cancellation refund.
type Quote struct {
	FillAmountB      uint64 `json:"fillAmountB,string"`
	TakeAmountA      uint64 `json:"takeAmountA,string"`
	Fee              uint64 `json:"fee,string"`
	NetAmountA       uint64 `json:"netAmountA,string"`
	RemainingAmountA uint64 `json:"remainingAmountA,string"`
	RemainingAmountB uint64 `json:"remainingAmountB,string"`
	Fulfills         bool   `json:"fulfills"`
}

// NewQuote converts an engine quote.
func NewQuote(q *otc.Quote) Quote {
	return Quote{
		FillAmountB:      q.FillAmountB,
		TakeAmountA:      q.TakeA,
		Fee:              q.Fee,
		NetAmountA:       q.NetA,
		RemainingAmountA: q.RemainingAmountA,
		RemainingAmountB: q.RemainingAmountB,
		Fulfills:         q.Fulfills,
	}
}

// Balance is a single ledger entry.
type Balance struct {
	Owner  string `json:"owner"`
	Mint   string `json:"mint"`
	Amount uint64 `json:"amount,string"`
}

// CreditRequest funds a ledger account. Operator only.
type CreditRequest struct {
	Owner  string `json:"owner"`
	Mint   string `json:"mint"`
	Amount uint64 `json:"amount,string"`
}

// Event is a journaled pool event.
type Event struct {
	Sequence   uint64            `json:"sequence"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Hash       string            `json:"hash"`
	PrevHash   string            `json:"prevHash"`
	CreatedAt  int64             `json:"createdAt"`
}

// EventPage is one page of the journal.
type EventPage struct {
	Events []Event `json:"events"`
	Next   uint64  `json:"next"`
}

// ReconSummary reports a reconciliation run.
type ReconSummary struct {
	Offers      int      `json:"offers"`
	Anomalies   int      `json:"anomalies"`
	CSVPath     string   `json:"csvPath,omitempty"`
	ParquetPath string   `json:"parquetPath,omitempty"`
	Types       []string `json:"types,omitempty"`
}

package otc

import (
	"encoding/hex"
	"strconv"
	"strings"

	"otcpool/core/types"
	"otcpool/crypto"
)

const (
	EventTypePoolInitialized      = "otc.pool.initialized"
	EventTypeAuthorityTransferred = "otc.pool.authority_transferred"
	EventTypeTreasuryUpdated      = "otc.pool.treasury_updated"
	EventTypeMintWhitelisted      = "otc.pool.mint_whitelisted"
	EventTypeMintRemoved          = "otc.pool.mint_removed"
	EventTypePartnerAdded         = "otc.pool.partner_added"
	EventTypePartnerRemoved       = "otc.pool.partner_removed"
	EventTypePairAdded            = "otc.pool.pair_added"
	EventTypePairRemoved          = "otc.pool.pair_removed"
	EventTypePoolPaused           = "otc.pool.paused"
	EventTypePoolResumed          = "otc.pool.resumed"
	EventTypeSwapExecuted         = "otc.swap.executed"
	EventTypeOfferCreated         = "otc.offer.created"
	EventTypeOfferExecuted        = "otc.offer.executed"
	EventTypeOfferCancelled       = "otc.offer.cancelled"
	EventTypeOfferExtended        = "otc.offer.extended"
	EventTypeOfferExpired         = "otc.offer.expired"
)

func formatIdentity(addr Address) string {
	if addr == (Address{}) {
		return ""
	}
	return crypto.AddressFromArray(crypto.OTCPrefix, addr).String()
}

func formatMint(mint Address) string {
	if mint == (Address{}) {
		return ""
	}
	return crypto.AddressFromArray(crypto.MintPrefix, mint).String()
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

// NewPoolInitializedEvent returns the payload for a freshly created pool.
func NewPoolInitializedEvent(p *Pool) *types.Event {
	mints := make([]string, 0, len(p.WhitelistedMints))
	for _, mint := range p.SortedMints() {
		mints = append(mints, formatMint(mint))
	}
	return &types.Event{
		Type: EventTypePoolInitialized,
		Attributes: map[string]string{
			"authority":         formatIdentity(p.Authority),
			"treasury":          formatIdentity(p.Treasury),
			"maxPartners":       strconv.Itoa(int(p.MaxPartners)),
			"feeBps":            strconv.Itoa(int(p.FeeBps)),
			"minSwapAmount":     formatUint(p.MinSwapAmount),
			"maxExpirationSecs": formatInt(p.MaxExpirationSecs),
			"whitelistedMints":  strings.Join(mints, ","),
		},
	}
}

func NewAuthorityTransferredEvent(previous, next Address) *types.Event {
	return &types.Event{
		Type: EventTypeAuthorityTransferred,
		Attributes: map[string]string{
			"previous": formatIdentity(previous),
			"new":      formatIdentity(next),
		},
	}
}

func NewTreasuryUpdatedEvent(previous, next Address) *types.Event {
	return &types.Event{
		Type: EventTypeTreasuryUpdated,
		Attributes: map[string]string{
			"previous": formatIdentity(previous),
			"new":      formatIdentity(next),
		},
	}
}

func NewMintWhitelistedEvent(mint Address, count int) *types.Event {
	return newMintEvent(EventTypeMintWhitelisted, mint, count)
}

func NewMintRemovedEvent(mint Address, count int) *types.Event {
	return newMintEvent(EventTypeMintRemoved, mint, count)
}

func newMintEvent(eventType string, mint Address, count int) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"mint":      formatMint(mint),
			"mintCount": strconv.Itoa(count),
		},
	}
}

func NewPartnerAddedEvent(partner Address, count int) *types.Event {
	return newPartnerEvent(EventTypePartnerAdded, partner, count)
}

func NewPartnerRemovedEvent(partner Address, count int) *types.Event {
	return newPartnerEvent(EventTypePartnerRemoved, partner, count)
}

func newPartnerEvent(eventType string, partner Address, count int) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"partner":      formatIdentity(partner),
			"partnerCount": strconv.Itoa(count),
		},
	}
}

func NewPairAddedEvent(pair Pair, count int) *types.Event {
	return newPairEvent(EventTypePairAdded, pair, count)
}

func NewPairRemovedEvent(pair Pair, count int) *types.Event {
	return newPairEvent(EventTypePairRemoved, pair, count)
}

func newPairEvent(eventType string, pair Pair, count int) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"mintA":     formatMint(pair.MintA),
			"mintB":     formatMint(pair.MintB),
			"pairCount": strconv.Itoa(count),
		},
	}
}

// NewPauseChangedEvent covers both pause and resume. wasPaused records the
// prior flag since both operations succeed regardless of it.
func NewPauseChangedEvent(admin Address, paused, wasPaused bool, timestamp int64) *types.Event {
	eventType := EventTypePoolResumed
	if paused {
		eventType = EventTypePoolPaused
	}
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"admin":     formatIdentity(admin),
			"wasPaused": strconv.FormatBool(wasPaused),
			"timestamp": formatInt(timestamp),
		},
	}
}

func NewSwapExecutedEvent(partyA, partyB Address, r *SwapResult) *types.Event {
	return &types.Event{
		Type: EventTypeSwapExecuted,
		Attributes: map[string]string{
			"partyA":        formatIdentity(partyA),
			"partyB":        formatIdentity(partyB),
			"mintA":         formatMint(r.MintA),
			"mintB":         formatMint(r.MintB),
			"filledAmountA": formatUint(r.AmountA),
			"filledAmountB": formatUint(r.AmountB),
		},
	}
}

func offerAttributes(o *Offer) map[string]string {
	return map[string]string{
		"offerId":          hex.EncodeToString(o.ID[:]),
		"maker":            formatIdentity(o.Maker),
		"escrow":           formatIdentity(o.Escrow),
		"mintA":            formatMint(o.MintA),
		"mintB":            formatMint(o.MintB),
		"remainingAmountA": formatUint(o.AmountA),
		"remainingAmountB": formatUint(o.AmountB),
		"expirationTs":     formatInt(o.ExpirationTs),
	}
}

func NewOfferCreatedEvent(o *Offer) *types.Event {
	attrs := offerAttributes(o)
	attrs["amountA"] = formatUint(o.OriginalAmountA)
	attrs["amountB"] = formatUint(o.OriginalAmountB)
	return &types.Event{Type: EventTypeOfferCreated, Attributes: attrs}
}

func NewOfferExecutedEvent(o *Offer, taker Address, q *Quote) *types.Event {
	attrs := offerAttributes(o)
	attrs["taker"] = formatIdentity(taker)
	attrs["filledAmountA"] = formatUint(q.TakeA)
	attrs["filledAmountB"] = formatUint(q.FillAmountB)
	attrs["fee"] = formatUint(q.Fee)
	attrs["netAmountA"] = formatUint(q.NetA)
	attrs["fulfilled"] = strconv.FormatBool(o.Fulfilled)
	return &types.Event{Type: EventTypeOfferExecuted, Attributes: attrs}
}

func NewOfferCancelledEvent(o *Offer, refund *Quote) *types.Event {
	attrs := offerAttributes(o)
	attrs["fee"] = formatUint(refund.Fee)
	attrs["refundAmountA"] = formatUint(refund.NetA)
	return &types.Event{Type: EventTypeOfferCancelled, Attributes: attrs}
}

func NewOfferExtendedEvent(o *Offer, previous int64) *types.Event {
	attrs := offerAttributes(o)
	attrs["previousExpirationTs"] = formatInt(previous)
	return &types.Event{Type: EventTypeOfferExtended, Attributes: attrs}
}

func NewOfferExpiredEvent(o *Offer, stranded uint64) *types.Event {
	attrs := offerAttributes(o)
	attrs["strandedAmountA"] = formatUint(stranded)
	return &types.Event{Type: EventTypeOfferExpired, Attributes: attrs}
}

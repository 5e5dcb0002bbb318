package otc

import (
	"errors"
	"testing"
)

func (f *fixture) createOffer(t *testing.T, amountA, amountB uint64, expiration int64) *Offer {
	t.Helper()
	f.state.credit(maker, mintA, amountA)
	offer, err := f.engine.CreateOffer(f.state, CreateOfferParams{
		Maker:        maker,
		MintA:        mintA,
		MintB:        mintB,
		AmountA:      amountA,
		AmountB:      amountB,
		ExpirationTs: expiration,
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	return offer
}

func (f *fixture) offer(t *testing.T) *Offer {
	t.Helper()
	offer, err := f.engine.GetOffer(f.state, maker)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	return offer
}

func TestCreateOfferFundsEscrow(t *testing.T) {
	f := newFixture(t)
	offer := f.createOffer(t, 1_000, 500, testNow+100)
	if offer.ID != OfferID(maker) || offer.Escrow != EscrowAddress(offer.ID) {
		t.Fatalf("unexpected offer identity")
	}
	if offer.OriginalAmountA != 1_000 || offer.AmountA != 1_000 || offer.OriginalAmountB != 500 || offer.AmountB != 500 {
		t.Fatalf("unexpected amounts: %+v", offer)
	}
	if offer.CreatedAt != testNow || offer.Fulfilled {
		t.Fatalf("unexpected lifecycle fields: %+v", offer)
	}
	if got := f.state.balance(offer.Escrow, mintA); got != 1_000 {
		t.Fatalf("escrow balance = %d, want 1000", got)
	}
	if got := f.state.balance(maker, mintA); got != 0 {
		t.Fatalf("maker balance = %d, want 0", got)
	}
	attrs := f.emitter.last(t)
	if f.emitter.events[0].EventType() != EventTypeOfferCreated || attrs["amountA"] != "1000" || attrs["maker"] != formatIdentity(maker) {
		t.Fatalf("unexpected created event: %v", attrs)
	}
}

func TestCreateOfferPreconditions(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(*fixture)
		params CreateOfferParams
		want   error
	}{
		{
			name:   "paused",
			setup:  func(f *fixture) { _ = f.engine.PausePool(f.state, authority) },
			params: CreateOfferParams{Maker: maker, MintA: mintA, MintB: mintB, AmountA: 10, AmountB: 10, ExpirationTs: testNow + 10},
			want:   ErrPoolPaused,
		},
		{
			name:   "below minimum",
			params: CreateOfferParams{Maker: maker, MintA: mintA, MintB: mintB, AmountA: 10, AmountB: 0, ExpirationTs: testNow + 10},
			want:   ErrSwapBelowMinimum,
		},
		{
			name:   "expiration beyond policy",
			params: CreateOfferParams{Maker: maker, MintA: mintA, MintB: mintB, AmountA: 10, AmountB: 10, ExpirationTs: testNow + 3_601},
			want:   ErrExpirationTooLong,
		},
		{
			name:   "maker not partner",
			params: CreateOfferParams{Maker: outsider, MintA: mintA, MintB: mintB, AmountA: 10, AmountB: 10, ExpirationTs: testNow + 10},
			want:   ErrUnauthorizedPartner,
		},
		{
			name:   "mint not whitelisted",
			params: CreateOfferParams{Maker: maker, MintA: mintC, MintB: mintB, AmountA: 10, AmountB: 10, ExpirationTs: testNow + 10},
			want:   ErrMintNotWhitelisted,
		},
		{
			name:   "reverse pair unsupported",
			params: CreateOfferParams{Maker: maker, MintA: mintB, MintB: mintA, AmountA: 10, AmountB: 10, ExpirationTs: testNow + 10},
			want:   ErrPairNotSupported,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.setup != nil {
				tc.setup(f)
			}
			f.state.credit(tc.params.Maker, tc.params.MintA, 100)
			_, err := f.engine.CreateOffer(f.state, tc.params)
			expectErr(t, err, tc.want)
			if len(f.state.offers) != 0 {
				t.Fatalf("offer written on failure")
			}
			if f.state.transfers != 0 {
				t.Fatalf("funds moved on failure")
			}
		})
	}
}

func TestCreateOfferAtPolicyCeiling(t *testing.T) {
	f := newFixture(t)
	f.createOffer(t, 10, 10, testNow+3_600)
}

func TestCreateOfferInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.state.credit(maker, mintA, 5)
	_, err := f.engine.CreateOffer(f.state, CreateOfferParams{Maker: maker, MintA: mintA, MintB: mintB, AmountA: 10, AmountB: 10, ExpirationTs: testNow + 10})
	expectErr(t, err, ErrTransferFailed)
	if KindOf(err) != KindTransfer {
		t.Fatalf("expected transfer kind")
	}
	if len(f.state.offers) != 0 || f.state.balance(maker, mintA) != 5 {
		t.Fatalf("state changed on failed create")
	}
}

func TestCreateOfferSlotRules(t *testing.T) {
	f := newFixture(t)
	f.createOffer(t, 100, 100, testNow+100)
	f.state.credit(maker, mintA, 100)
	_, err := f.engine.CreateOffer(f.state, CreateOfferParams{Maker: maker, MintA: mintA, MintB: mintB, AmountA: 100, AmountB: 100, ExpirationTs: testNow + 100})
	expectErr(t, err, ErrOfferExists)

	if _, err := f.engine.CancelOffer(f.state, maker, maker); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	recycled := f.createOffer(t, 50, 50, testNow+100)
	if recycled.OriginalAmountA != 50 || recycled.Fulfilled || recycled.ClosedReason != CloseReasonNone {
		t.Fatalf("slot not recycled: %+v", recycled)
	}

	f.now = testNow + 101
	if _, err := f.engine.CloseExpiredOffer(f.state, maker); err != nil {
		t.Fatalf("close expired: %v", err)
	}
	f.state.credit(maker, mintA, 50)
	_, err = f.engine.CreateOffer(f.state, CreateOfferParams{Maker: maker, MintA: mintA, MintB: mintB, AmountA: 50, AmountB: 50, ExpirationTs: f.now + 100})
	expectErr(t, err, ErrEscrowNotEmpty)
	if KindOf(err) != KindState {
		t.Fatalf("expected state kind")
	}
}

func TestPartialFillsExhaustOffer(t *testing.T) {
	f := newFixture(t)
	f.state.credit(taker, mintB, 1_000)
	offer := f.createOffer(t, 1_000, 1_000, testNow+100)

	first, err := f.engine.AcceptOffer(f.state, taker, maker, 300)
	if err != nil {
		t.Fatalf("first fill: %v", err)
	}
	if first.TakeA != 300 || first.Fee != 7 || first.NetA != 293 {
		t.Fatalf("unexpected first fill: %+v", first)
	}
	if first.Fee+first.NetA != first.TakeA {
		t.Fatalf("fee and net must sum to take")
	}
	mid := f.offer(t)
	if mid.AmountA != 700 || mid.AmountB != 700 || mid.Fulfilled {
		t.Fatalf("unexpected offer after first fill: %+v", mid)
	}
	if got := f.state.balance(offer.Escrow, mintA); got != mid.AmountA {
		t.Fatalf("escrow %d does not track amountA %d", got, mid.AmountA)
	}

	second, err := f.engine.AcceptOffer(f.state, taker, maker, 700)
	if err != nil {
		t.Fatalf("second fill: %v", err)
	}
	if second.TakeA != 700 || second.Fee != 17 || second.NetA != 683 || !second.Fulfills {
		t.Fatalf("unexpected second fill: %+v", second)
	}
	final := f.offer(t)
	if final.AmountA != 0 || final.AmountB != 0 || !final.Fulfilled || final.ClosedReason != CloseReasonFilled {
		t.Fatalf("unexpected final offer: %+v", final)
	}
	if f.state.balance(offer.Escrow, mintA) != 0 {
		t.Fatalf("escrow not drained")
	}
	if f.state.balance(treasury, mintA) != 24 || f.state.balance(taker, mintA) != 976 {
		t.Fatalf("unexpected payouts: treasury=%d taker=%d", f.state.balance(treasury, mintA), f.state.balance(taker, mintA))
	}
	if f.state.balance(maker, mintB) != 1_000 || f.state.balance(taker, mintB) != 0 {
		t.Fatalf("maker not paid in full")
	}
	attrs := f.emitter.last(t)
	if attrs["filledAmountA"] != "700" || attrs["filledAmountB"] != "700" || attrs["fulfilled"] != "true" || attrs["taker"] != formatIdentity(taker) {
		t.Fatalf("unexpected executed event: %v", attrs)
	}
}

func TestAcceptOfferUsesOriginalRatio(t *testing.T) {
	f := newFixture(t)
	f.state.credit(taker, mintB, 10)
	f.createOffer(t, 10, 3, testNow+100)
	for i := 0; i < 3; i++ {
		q, err := f.engine.AcceptOffer(f.state, taker, maker, 1)
		if err != nil {
			t.Fatalf("fill %d: %v", i, err)
		}
		if q.TakeA != 3 {
			t.Fatalf("fill %d take = %d, want 3", i, q.TakeA)
		}
	}
	final := f.offer(t)
	if !final.Fulfilled || final.AmountA != 1 {
		t.Fatalf("rounding remainder should stay in the record: %+v", final)
	}
}

func TestAcceptOfferRejectsDrift(t *testing.T) {
	f := newFixture(t)
	f.state.credit(taker, mintB, 100)
	f.createOffer(t, 100, 100, testNow+100)
	stored := f.state.offers[OfferID(maker)]
	stored.AmountA = 40
	_, err := f.engine.AcceptOffer(f.state, taker, maker, 50)
	expectErr(t, err, ErrInvalidFillAmount)
	if f.state.transfers != 1 {
		t.Fatalf("funds moved on rejected fill")
	}
}

func TestAcceptOfferRejectsOverfill(t *testing.T) {
	f := newFixture(t)
	f.state.credit(taker, mintB, 5_000)
	f.createOffer(t, 1_000, 1_000, testNow+100)
	before := f.offer(t)
	for _, fill := range []uint64{0, 1_001} {
		_, err := f.engine.AcceptOffer(f.state, taker, maker, fill)
		expectErr(t, err, ErrInvalidFillAmount)
		if KindOf(err) != KindState {
			t.Fatalf("expected state kind")
		}
	}
	if after := f.offer(t); *after != *before {
		t.Fatalf("offer changed on rejected fill")
	}
	if f.state.balance(taker, mintB) != 5_000 {
		t.Fatalf("taker charged on rejected fill")
	}
}

func TestAcceptOfferPreconditions(t *testing.T) {
	f := newFixture(t)
	f.state.credit(taker, mintB, 100)
	f.state.credit(outsider, mintB, 100)
	f.createOffer(t, 100, 100, testNow+100)

	_, err := f.engine.AcceptOffer(f.state, outsider, maker, 10)
	expectErr(t, err, ErrUnauthorizedPartner)

	_, err = f.engine.AcceptOffer(f.state, taker, outsider, 10)
	expectErr(t, err, ErrOfferNotFound)

	if err := f.engine.PausePool(f.state, authority); err != nil {
		t.Fatalf("pause: %v", err)
	}
	_, err = f.engine.AcceptOffer(f.state, taker, maker, 10)
	expectErr(t, err, ErrPoolPaused)
	if err := f.engine.ResumePool(f.state, authority); err != nil {
		t.Fatalf("resume: %v", err)
	}

	f.now = testNow + 100
	if _, err := f.engine.AcceptOffer(f.state, taker, maker, 10); err != nil {
		t.Fatalf("accept at expiration should succeed: %v", err)
	}
	f.now = testNow + 101
	_, err = f.engine.AcceptOffer(f.state, taker, maker, 10)
	expectErr(t, err, ErrOfferExpired)
	if KindOf(err) != KindTemporal {
		t.Fatalf("expected temporal kind")
	}
}

func TestAcceptOfferTakerShortOfFunds(t *testing.T) {
	f := newFixture(t)
	f.state.credit(taker, mintB, 5)
	f.createOffer(t, 100, 100, testNow+100)
	_, err := f.engine.AcceptOffer(f.state, taker, maker, 10)
	expectErr(t, err, ErrTransferFailed)
	if off := f.offer(t); off.AmountB != 100 {
		t.Fatalf("offer changed on failed fill")
	}
}

func TestAcceptOfferPropagatesLedgerFailure(t *testing.T) {
	f := newFixture(t)
	f.state.credit(taker, mintB, 100)
	f.createOffer(t, 100, 100, testNow+100)
	f.state.failAfter = f.state.transfers
	_, err := f.engine.AcceptOffer(f.state, taker, maker, 10)
	expectErr(t, err, ErrTransferFailed)
	if KindOf(err) != KindTransfer {
		t.Fatalf("expected transfer kind, got %s", KindOf(err))
	}
	if off := f.offer(t); off.AmountB != 100 || off.AmountA != 100 {
		t.Fatalf("offer updated despite ledger failure")
	}
}

func TestCancelOfferWindow(t *testing.T) {
	f := newFixture(t)
	offer := f.createOffer(t, 1_000, 1_000, testNow+100)

	f.now = testNow + 101
	_, err := f.engine.CancelOffer(f.state, maker, maker)
	expectErr(t, err, ErrOfferExpired)
	if KindOf(err) != KindTemporal {
		t.Fatalf("expected temporal kind")
	}
	if !f.offer(t).Live() {
		t.Fatalf("offer must stay open after a late cancel")
	}

	f.now = testNow + 100
	refund, err := f.engine.CancelOffer(f.state, maker, maker)
	if err != nil {
		t.Fatalf("cancel at expiration: %v", err)
	}
	if refund.Fee != 25 || refund.NetA != 975 {
		t.Fatalf("unexpected refund split: %+v", refund)
	}
	if f.state.balance(maker, mintA) != 975 || f.state.balance(treasury, mintA) != 25 || f.state.balance(offer.Escrow, mintA) != 0 {
		t.Fatalf("unexpected balances after cancel")
	}
	cancelled := f.offer(t)
	if !cancelled.Fulfilled || cancelled.ClosedReason != CloseReasonCancelled {
		t.Fatalf("offer not terminal: %+v", cancelled)
	}
	if cancelled.AmountB == 0 {
		t.Fatalf("cancel must not zero the remaining amounts")
	}
	if attrs := f.emitter.last(t); attrs["refundAmountA"] != "975" || attrs["fee"] != "25" {
		t.Fatalf("unexpected cancel event: %v", attrs)
	}
}

func TestCancelOfferRequiresMakerAndWorksWhilePaused(t *testing.T) {
	f := newFixture(t)
	f.createOffer(t, 100, 100, testNow+100)
	_, err := f.engine.CancelOffer(f.state, taker, maker)
	expectErr(t, err, ErrUnauthorized)
	if err := f.engine.PausePool(f.state, authority); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.engine.CancelOffer(f.state, maker, maker); err != nil {
		t.Fatalf("cancel while paused: %v", err)
	}
}

func TestCloseExpiredOfferLeavesEscrow(t *testing.T) {
	f := newFixture(t)
	offer := f.createOffer(t, 1_000, 1_000, testNow+100)

	f.now = testNow + 100
	_, err := f.engine.CloseExpiredOffer(f.state, maker)
	expectErr(t, err, ErrOfferNotExpired)

	f.now = testNow + 101
	closed, err := f.engine.CloseExpiredOffer(f.state, maker)
	if err != nil {
		t.Fatalf("close expired: %v", err)
	}
	if !closed.Fulfilled || closed.ClosedReason != CloseReasonExpired {
		t.Fatalf("offer not terminal: %+v", closed)
	}
	if f.state.balance(offer.Escrow, mintA) != 1_000 || f.state.balance(maker, mintA) != 0 {
		t.Fatalf("close must not move escrowed funds")
	}
	attrs := f.emitter.last(t)
	if f.emitter.events[len(f.emitter.events)-1].EventType() != EventTypeOfferExpired || attrs["strandedAmountA"] != "1000" {
		t.Fatalf("unexpected expiry event: %v", attrs)
	}
}

func TestEscrowRefusesSignerAuthority(t *testing.T) {
	f := newFixture(t)
	offer := f.createOffer(t, 100, 100, testNow+100)
	for _, auth := range []Authority{SignerAuthority(maker), SignerAuthority(offer.Escrow)} {
		err := f.state.Transfer(offer.EscrowAccount(), Account{Owner: maker, Mint: mintA}, auth, 1)
		if err == nil {
			t.Fatalf("escrow debited without protocol authority")
		}
	}
	if escrowAuthority(offer).Permits(maker) {
		t.Fatalf("escrow authority must only cover its own escrow")
	}
}

func TestExtendOffer(t *testing.T) {
	f := newFixture(t)
	f.createOffer(t, 100, 100, testNow+100)
	expectErr(t, f.engine.ExtendOffer(f.state, taker, maker, testNow+200), ErrUnauthorized)
	expectErr(t, f.engine.ExtendOffer(f.state, maker, maker, testNow+100), ErrInvalidExtension)
	expectErr(t, f.engine.ExtendOffer(f.state, maker, maker, testNow+3_601), ErrExpirationTooLong)
	if err := f.engine.ExtendOffer(f.state, maker, maker, testNow+3_600); err != nil {
		t.Fatalf("extend: %v", err)
	}
	off := f.offer(t)
	if off.ExpirationTs != testNow+3_600 || off.AmountA != 100 {
		t.Fatalf("unexpected offer after extend: %+v", off)
	}
	if attrs := f.emitter.last(t); attrs["previousExpirationTs"] != "1100" || attrs["expirationTs"] != "4600" {
		t.Fatalf("unexpected extend event: %v", attrs)
	}
}

func TestTerminalOfferRejectsEverything(t *testing.T) {
	f := newFixture(t)
	f.state.credit(taker, mintB, 200)
	offer := f.createOffer(t, 100, 100, testNow+100)
	if _, err := f.engine.AcceptOffer(f.state, taker, maker, 100); err != nil {
		t.Fatalf("fill: %v", err)
	}
	eventsBefore := len(f.emitter.events)
	transfersBefore := f.state.transfers
	snapshot := f.offer(t)

	_, err := f.engine.AcceptOffer(f.state, taker, maker, 1)
	expectErr(t, err, ErrOfferAlreadyFulfilled)
	_, err = f.engine.CancelOffer(f.state, maker, maker)
	expectErr(t, err, ErrOfferAlreadyFulfilled)
	expectErr(t, f.engine.ExtendOffer(f.state, maker, maker, testNow+200), ErrOfferAlreadyFulfilled)
	f.now = testNow + 500
	_, err = f.engine.CloseExpiredOffer(f.state, maker)
	expectErr(t, err, ErrOfferAlreadyFulfilled)
	_, err = f.engine.QuoteFill(f.state, maker, 1)
	expectErr(t, err, ErrOfferAlreadyFulfilled)
	if KindOf(err) != KindState {
		t.Fatalf("expected state kind")
	}

	if len(f.emitter.events) != eventsBefore || f.state.transfers != transfersBefore {
		t.Fatalf("terminal offer produced side effects")
	}
	if after := f.offer(t); *after != *snapshot {
		t.Fatalf("terminal offer mutated")
	}
	if f.state.balance(offer.Escrow, mintA) != 0 {
		t.Fatalf("unexpected escrow balance")
	}
}

func TestQuoteFillMatchesAccept(t *testing.T) {
	f := newFixture(t)
	f.state.credit(taker, mintB, 1_000)
	f.createOffer(t, 999, 1_000, testNow+100)
	q, err := f.engine.QuoteFill(f.state, maker, 1_000)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.TakeA != 999 || q.Fee != 24 || q.NetA != 975 || !q.Fulfills {
		t.Fatalf("unexpected quote: %+v", q)
	}
	filled, err := f.engine.AcceptOffer(f.state, taker, maker, 1_000)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if *filled != *q {
		t.Fatalf("quote %+v differs from fill %+v", q, filled)
	}
	if _, err := f.engine.QuoteFill(f.state, outsider, 1); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("expected missing offer, got %v", err)
	}
}

package otc

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"otcpool/core/events"
)

type mockState struct {
	pool      *Pool
	offers    map[[32]byte]*Offer
	balances  map[Account]uint64
	escrows   map[Address]bool
	transfers int
	failAfter int
}

func newMockState() *mockState {
	return &mockState{
		offers:    make(map[[32]byte]*Offer),
		balances:  make(map[Account]uint64),
		escrows:   make(map[Address]bool),
		failAfter: -1,
	}
}

func (m *mockState) PoolGet() (*Pool, bool, error) {
	if m.pool == nil {
		return nil, false, nil
	}
	return m.pool.Clone(), true, nil
}

func (m *mockState) PoolPut(p *Pool) error {
	m.pool = p.Clone()
	return nil
}

func (m *mockState) OfferGet(id [32]byte) (*Offer, bool, error) {
	offer, ok := m.offers[id]
	if !ok {
		return nil, false, nil
	}
	return offer.Clone(), true, nil
}

func (m *mockState) OfferPut(o *Offer) error {
	m.offers[o.ID] = o.Clone()
	return nil
}

func (m *mockState) EscrowRegister(owner Address) error {
	m.escrows[owner] = true
	return nil
}

func (m *mockState) Balance(acct Account) (uint64, error) {
	return m.balances[acct], nil
}

func (m *mockState) Transfer(from, to Account, auth Authority, amount uint64) error {
	if m.failAfter >= 0 && m.transfers >= m.failAfter {
		return fmt.Errorf("ledger offline")
	}
	if from.Mint != to.Mint {
		return fmt.Errorf("mint mismatch")
	}
	if !auth.Permits(from.Owner) {
		return fmt.Errorf("authority does not control %x", from.Owner)
	}
	if m.escrows[from.Owner] && !auth.IsEscrow() {
		return fmt.Errorf("escrow requires protocol authority")
	}
	if m.balances[from] < amount {
		return fmt.Errorf("insufficient balance")
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	m.transfers++
	return nil
}

func (m *mockState) credit(owner, mint Address, amount uint64) {
	m.balances[Account{Owner: owner, Mint: mint}] += amount
}

func (m *mockState) balance(owner, mint Address) uint64 {
	return m.balances[Account{Owner: owner, Mint: mint}]
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *capturingEmitter) types() []string {
	out := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType())
	}
	return out
}

func (c *capturingEmitter) last(t *testing.T) map[string]string {
	t.Helper()
	if len(c.events) == 0 {
		t.Fatalf("expected an event")
	}
	payload, ok := c.events[len(c.events)-1].(events.Payload)
	if !ok {
		t.Fatalf("event does not expose payload")
	}
	return payload.Event().Attributes
}

func newTestAddress(fill byte) Address {
	var addr Address
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	authority = newTestAddress(0x01)
	treasury  = newTestAddress(0x02)
	maker     = newTestAddress(0x10)
	taker     = newTestAddress(0x11)
	outsider  = newTestAddress(0x20)
	mintA     = newTestAddress(0xA1)
	mintB     = newTestAddress(0xB1)
	mintC     = newTestAddress(0xC1)
)

const testNow = int64(1_000)

type fixture struct {
	engine  *Engine
	state   *mockState
	emitter *capturingEmitter
	now     int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{state: newMockState(), emitter: &capturingEmitter{}, now: testNow}
	f.engine = NewEngine()
	f.engine.SetNowFunc(func() int64 { return f.now })
	_, err := f.engine.InitializePool(f.state, authority, InitParams{
		MaxPartners:       3,
		FeeBps:            250,
		Treasury:          treasury,
		MinSwapAmount:     1,
		MaxExpirationSecs: 3_600,
		WhitelistedMints:  []Address{mintA, mintB},
	})
	if err != nil {
		t.Fatalf("initialize pool: %v", err)
	}
	for _, partner := range []Address{maker, taker} {
		if err := f.engine.AddPartner(f.state, authority, partner); err != nil {
			t.Fatalf("add partner: %v", err)
		}
	}
	if err := f.engine.AddSupportedPair(f.state, authority, mintA, mintB); err != nil {
		t.Fatalf("add pair: %v", err)
	}
	f.engine.SetEmitter(f.emitter)
	return f
}

func (f *fixture) pool(t *testing.T) *Pool {
	t.Helper()
	pool, err := f.engine.GetPool(f.state)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	return pool
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestInitializePoolRejectsSecondCall(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.InitializePool(f.state, authority, InitParams{MaxPartners: 1, Treasury: treasury, MaxExpirationSecs: 1})
	expectErr(t, err, ErrPoolAlreadyInitialized)
	if KindOf(err) != KindDuplicate {
		t.Fatalf("expected duplicate kind, got %s", KindOf(err))
	}
}

func TestInitializePoolValidatesParams(t *testing.T) {
	base := InitParams{MaxPartners: 2, FeeBps: 100, Treasury: treasury, MaxExpirationSecs: 60}
	cases := []struct {
		name   string
		mutate func(*InitParams)
		want   error
	}{
		{"fee above denominator", func(p *InitParams) { p.FeeBps = 10_001 }, ErrInvalidFeeBps},
		{"zero partners", func(p *InitParams) { p.MaxPartners = 0 }, ErrInvalidMaxPartners},
		{"missing treasury", func(p *InitParams) { p.Treasury = Address{} }, ErrInvalidTreasury},
		{"zero lifetime", func(p *InitParams) { p.MaxExpirationSecs = 0 }, ErrInvalidExpiryPolicy},
		{"duplicate mint", func(p *InitParams) { p.WhitelistedMints = []Address{mintA, mintA} }, ErrMintAlreadyWhitelisted},
		{"too many mints", func(p *InitParams) {
			p.WhitelistedMints = nil
			for i := 0; i <= MaxMints; i++ {
				p.WhitelistedMints = append(p.WhitelistedMints, newTestAddress(byte(0x40+i)))
			}
		}, ErrMintLimitReached},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := base
			tc.mutate(&params)
			st := newMockState()
			_, err := NewEngine().InitializePool(st, authority, params)
			expectErr(t, err, tc.want)
			if st.pool != nil {
				t.Fatalf("pool must not be written on failure")
			}
		})
	}
	if _, err := NewEngine().InitializePool(newMockState(), authority, InitParams{MaxPartners: 1, FeeBps: BasisPoints, Treasury: treasury, MaxExpirationSecs: 1}); err != nil {
		t.Fatalf("fee of exactly 10000 bps should be accepted: %v", err)
	}
}

func TestGovernanceRequiresAuthority(t *testing.T) {
	f := newFixture(t)
	before := f.pool(t)
	calls := map[string]func() error{
		"transfer":      func() error { return f.engine.TransferAuthority(f.state, outsider, outsider) },
		"treasury":      func() error { return f.engine.UpdateTreasury(f.state, outsider, outsider) },
		"addMint":       func() error { return f.engine.AddWhitelistedMint(f.state, outsider, mintC) },
		"removeMint":    func() error { return f.engine.RemoveWhitelistedMint(f.state, outsider, mintA) },
		"addPartner":    func() error { return f.engine.AddPartner(f.state, outsider, outsider) },
		"removePartner": func() error { return f.engine.RemovePartner(f.state, outsider, maker) },
		"addPair":       func() error { return f.engine.AddSupportedPair(f.state, outsider, mintB, mintA) },
		"removePair":    func() error { return f.engine.RemoveSupportedPair(f.state, outsider, mintA, mintB) },
		"pause":         func() error { return f.engine.PausePool(f.state, outsider) },
		"resume":        func() error { return f.engine.ResumePool(f.state, outsider) },
	}
	for name, call := range calls {
		err := call()
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", name, err)
		}
		if KindOf(err) != KindAuthorization {
			t.Fatalf("%s: expected authorization kind", name)
		}
	}
	after := f.pool(t)
	if after.Authority != before.Authority || after.Treasury != before.Treasury || len(after.Partners) != len(before.Partners) ||
		len(after.WhitelistedMints) != len(before.WhitelistedMints) || len(after.SupportedPairs) != len(before.SupportedPairs) || after.Paused {
		t.Fatalf("pool mutated by unauthorized calls")
	}
	if len(f.emitter.events) != 0 {
		t.Fatalf("unexpected events: %v", f.emitter.types())
	}
}

func TestTransferAuthorityAndTreasury(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.TransferAuthority(f.state, authority, outsider); err != nil {
		t.Fatalf("transfer authority: %v", err)
	}
	attrs := f.emitter.last(t)
	if attrs["previous"] != formatIdentity(authority) || attrs["new"] != formatIdentity(outsider) {
		t.Fatalf("unexpected authority event: %v", attrs)
	}
	if err := f.engine.PausePool(f.state, authority); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("previous authority should lose control, got %v", err)
	}
	if err := f.engine.TransferAuthority(f.state, outsider, Address{}); !errors.Is(err, ErrInvalidAuthority) {
		t.Fatalf("expected zero authority rejection, got %v", err)
	}
	if err := f.engine.UpdateTreasury(f.state, outsider, maker); err != nil {
		t.Fatalf("update treasury: %v", err)
	}
	if f.pool(t).Treasury != maker {
		t.Fatalf("treasury not updated")
	}
	if err := f.engine.UpdateTreasury(f.state, outsider, Address{}); !errors.Is(err, ErrInvalidTreasury) {
		t.Fatalf("expected zero treasury rejection, got %v", err)
	}
}

func TestPartnerCapacity(t *testing.T) {
	f := newFixture(t)
	third := newTestAddress(0x12)
	if err := f.engine.AddPartner(f.state, authority, third); err != nil {
		t.Fatalf("add third partner: %v", err)
	}
	err := f.engine.AddPartner(f.state, authority, newTestAddress(0x13))
	expectErr(t, err, ErrPartnerLimitReached)
	if KindOf(err) != KindCapacity {
		t.Fatalf("expected capacity kind")
	}
	if len(f.pool(t).Partners) != 3 {
		t.Fatalf("partner set changed on rejected add")
	}
	expectErr(t, f.engine.RemovePartner(f.state, authority, outsider), ErrPartnerNotFound)
	if len(f.pool(t).Partners) != 3 {
		t.Fatalf("partner set changed on rejected remove")
	}
	if err := f.engine.RemovePartner(f.state, authority, third); err != nil {
		t.Fatalf("remove partner: %v", err)
	}
	expectErr(t, f.engine.AddPartner(f.state, authority, maker), ErrPartnerAlreadyExists)
}

func TestMintWhitelist(t *testing.T) {
	f := newFixture(t)
	expectErr(t, f.engine.AddWhitelistedMint(f.state, authority, mintA), ErrMintAlreadyWhitelisted)
	expectErr(t, f.engine.RemoveWhitelistedMint(f.state, authority, mintC), ErrMintNotFound)
	for i := len(f.pool(t).WhitelistedMints); i < MaxMints; i++ {
		if err := f.engine.AddWhitelistedMint(f.state, authority, newTestAddress(byte(0x50+i))); err != nil {
			t.Fatalf("add mint %d: %v", i, err)
		}
	}
	expectErr(t, f.engine.AddWhitelistedMint(f.state, authority, mintC), ErrMintLimitReached)
}

func TestPairRequiresWhitelistedMints(t *testing.T) {
	f := newFixture(t)
	err := f.engine.AddSupportedPair(f.state, authority, mintA, mintC)
	expectErr(t, err, ErrMintNotWhitelisted)
	if KindOf(err) != KindPolicy {
		t.Fatalf("expected policy kind")
	}
	if f.pool(t).SupportsPair(mintA, mintC) {
		t.Fatalf("pair inserted despite missing mint")
	}
	expectErr(t, f.engine.AddSupportedPair(f.state, authority, mintA, mintB), ErrPairAlreadyExists)
	if err := f.engine.AddSupportedPair(f.state, authority, mintB, mintA); err != nil {
		t.Fatalf("reverse direction is a distinct pair: %v", err)
	}
	expectErr(t, f.engine.RemoveSupportedPair(f.state, authority, mintA, mintC), ErrPairNotFound)
	if err := f.engine.RemoveSupportedPair(f.state, authority, mintB, mintA); err != nil {
		t.Fatalf("remove pair: %v", err)
	}
	if !f.pool(t).SupportsPair(mintA, mintB) {
		t.Fatalf("removing reverse pair must not touch forward pair")
	}
}

func TestPairCapacity(t *testing.T) {
	f := newFixture(t)
	extra := make([]Address, 0, 4)
	for i := 0; i < 4; i++ {
		mint := newTestAddress(byte(0x60 + i))
		extra = append(extra, mint)
		if err := f.engine.AddWhitelistedMint(f.state, authority, mint); err != nil {
			t.Fatalf("add mint: %v", err)
		}
	}
	added := len(f.pool(t).SupportedPairs)
	for _, a := range extra {
		for _, b := range extra {
			if a == b || added >= MaxPairs {
				continue
			}
			if err := f.engine.AddSupportedPair(f.state, authority, a, b); err != nil {
				t.Fatalf("add pair: %v", err)
			}
			added++
		}
	}
	expectErr(t, f.engine.AddSupportedPair(f.state, authority, mintB, mintA), ErrPairLimitReached)
}

func TestRemoveMintDoesNotCascade(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.RemoveWhitelistedMint(f.state, authority, mintA); err != nil {
		t.Fatalf("remove mint: %v", err)
	}
	pool := f.pool(t)
	if !pool.SupportsPair(mintA, mintB) {
		t.Fatalf("pair must survive mint removal")
	}
	f.state.credit(maker, mintA, 100)
	_, err := f.engine.CreateOffer(f.state, CreateOfferParams{Maker: maker, MintA: mintA, MintB: mintB, AmountA: 10, AmountB: 10, ExpirationTs: testNow + 10})
	expectErr(t, err, ErrMintNotWhitelisted)
}

func TestPauseResumeAlwaysSucceed(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		if err := f.engine.PausePool(f.state, authority); err != nil {
			t.Fatalf("pause: %v", err)
		}
	}
	if !f.pool(t).Paused {
		t.Fatalf("expected paused pool")
	}
	if attrs := f.emitter.last(t); attrs["wasPaused"] != "true" {
		t.Fatalf("second pause should report prior state: %v", attrs)
	}
	if err := f.engine.AddPartner(f.state, authority, outsider); err != nil {
		t.Fatalf("governance must stay available while paused: %v", err)
	}
	if err := f.engine.ResumePool(f.state, authority); err != nil {
		t.Fatalf("resume: %v", err)
	}
	want := []string{EventTypePoolPaused, EventTypePoolPaused, EventTypePartnerAdded, EventTypePoolResumed}
	got := f.emitter.types()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestOperationsWithoutPool(t *testing.T) {
	e := NewEngine()
	st := newMockState()
	expectErr(t, e.AddPartner(st, authority, maker), ErrPoolNotInitialized)
	_, err := e.CreateOffer(st, CreateOfferParams{Maker: maker})
	expectErr(t, err, ErrPoolNotInitialized)
	if KindOf(err) != KindMissing {
		t.Fatalf("expected missing kind")
	}
}

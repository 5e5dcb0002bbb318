package server

import (
	"fmt"

	"otcpool/core/state"
	"otcpool/native/otc"
	"otcpool/services/otcd/api"
	"otcpool/services/otcd/config"
)

// ApplyGenesis initializes the pool from g when the store holds no pool yet.
// Partners, pairs and opening balances are written in the same transaction.
// It reports whether anything was applied.
func ApplyGenesis(store *state.Store, engine *otc.Engine, g *config.Genesis) (bool, error) {
	if store == nil || engine == nil || g == nil {
		return false, fmt.Errorf("genesis: store, engine and genesis are required")
	}
	var exists bool
	if err := store.View(func(tx *state.Tx) error {
		var err error
		_, exists, err = tx.PoolGet()
		return err
	}); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	authority, err := api.ParseIdentity(g.Pool.Authority)
	if err != nil {
		return false, fmt.Errorf("genesis: authority: %w", err)
	}
	treasury, err := api.ParseIdentity(g.Pool.Treasury)
	if err != nil {
		return false, fmt.Errorf("genesis: treasury: %w", err)
	}
	params := otc.InitParams{
		MaxPartners:       g.Pool.MaxPartners,
		FeeBps:            g.Pool.FeeBps,
		Treasury:          treasury,
		MinSwapAmount:     g.Pool.MinSwapAmount,
		MaxExpirationSecs: g.Pool.MaxExpirationSecs,
	}
	for _, raw := range g.Pool.WhitelistedMints {
		mint, err := api.ParseMint(raw)
		if err != nil {
			return false, fmt.Errorf("genesis: whitelisted mint %q: %w", raw, err)
		}
		params.WhitelistedMints = append(params.WhitelistedMints, mint)
	}
	partners := make([]otc.Address, 0, len(g.Partners))
	for _, raw := range g.Partners {
		partner, err := api.ParseIdentity(raw)
		if err != nil {
			return false, fmt.Errorf("genesis: partner %q: %w", raw, err)
		}
		partners = append(partners, partner)
	}
	pairs := make([]otc.Pair, 0, len(g.Pairs))
	for _, raw := range g.Pairs {
		mintA, errA := api.ParseMint(raw.MintA)
		mintB, errB := api.ParseMint(raw.MintB)
		if errA != nil || errB != nil {
			return false, fmt.Errorf("genesis: pair %s/%s: invalid mint", raw.MintA, raw.MintB)
		}
		pairs = append(pairs, otc.Pair{MintA: mintA, MintB: mintB})
	}
	credits := make([]genesisCredit, 0, len(g.Balances))
	for _, raw := range g.Balances {
		owner, errO := api.ParseIdentity(raw.Owner)
		mint, errM := api.ParseMint(raw.Mint)
		if errO != nil || errM != nil {
			return false, fmt.Errorf("genesis: balance %s/%s: invalid account", raw.Owner, raw.Mint)
		}
		credits = append(credits, genesisCredit{acct: otc.Account{Owner: owner, Mint: mint}, amount: raw.Amount})
	}

	err = store.Update(func(tx *state.Tx) error {
		if _, err := engine.InitializePool(tx, authority, params); err != nil {
			return fmt.Errorf("initialize pool: %w", err)
		}
		for _, partner := range partners {
			if err := engine.AddPartner(tx, authority, partner); err != nil {
				return fmt.Errorf("add partner %s: %w", api.FormatIdentity(partner), err)
			}
		}
		for _, pair := range pairs {
			if err := engine.AddSupportedPair(tx, authority, pair.MintA, pair.MintB); err != nil {
				return fmt.Errorf("add pair %s/%s: %w", api.FormatMint(pair.MintA), api.FormatMint(pair.MintB), err)
			}
		}
		for _, credit := range credits {
			if err := tx.Credit(credit.acct, credit.amount); err != nil {
				return fmt.Errorf("credit %s: %w", api.FormatIdentity(credit.acct.Owner), err)
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("genesis: %w", err)
	}
	return true, nil
}

type genesisCredit struct {
	acct   otc.Account
	amount uint64
}

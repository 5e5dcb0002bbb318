package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Genesis bootstraps the pool of a fresh data directory. It is applied only
// when no pool record exists. Identities use the otc bech32 prefix and
// assets the mint prefix.
type Genesis struct {
	Pool     GenesisPool      `toml:"pool"`
	Partners []string         `toml:"partners"`
	Pairs    []GenesisPair    `toml:"pairs"`
	Balances []GenesisBalance `toml:"balances"`
}

// GenesisPool holds the initialization parameters.
type GenesisPool struct {
	Authority         string   `toml:"authority"`
	Treasury          string   `toml:"treasury"`
	MaxPartners       uint8    `toml:"max_partners"`
	FeeBps            uint16   `toml:"fee_bps"`
	MinSwapAmount     uint64   `toml:"min_swap_amount"`
	MaxExpirationSecs int64    `toml:"max_expiration_secs"`
	WhitelistedMints  []string `toml:"whitelisted_mints"`
}

// GenesisPair is a directional supported pair.
type GenesisPair struct {
	MintA string `toml:"mint_a"`
	MintB string `toml:"mint_b"`
}

// GenesisBalance funds a ledger account.
type GenesisBalance struct {
	Owner  string `toml:"owner"`
	Mint   string `toml:"mint"`
	Amount uint64 `toml:"amount"`
}

// LoadGenesis decodes a genesis file. Unknown keys are rejected.
func LoadGenesis(path string) (*Genesis, error) {
	g := &Genesis{}
	meta, err := toml.DecodeFile(path, g)
	if err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("genesis %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if strings.TrimSpace(g.Pool.Authority) == "" {
		return nil, fmt.Errorf("genesis %s: pool.authority is required", path)
	}
	return g, nil
}

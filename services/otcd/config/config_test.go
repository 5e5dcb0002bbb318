package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, "otcd.yaml", "listen: \":9000\"\nauth:\n  max_skew: 30s\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9000" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.Auth.MaxSkew.Duration != 30*time.Second || cfg.Auth.NonceTTL.Duration != time.Minute {
		t.Fatalf("unexpected auth durations: %+v", cfg.Auth)
	}
	if cfg.Journal.Driver != "sqlite" || cfg.Journal.DSN == "" {
		t.Fatalf("journal defaults missing: %+v", cfg.Journal)
	}
	if cfg.Quota.Epoch.Duration != time.Hour {
		t.Fatalf("unexpected quota epoch %s", cfg.Quota.Epoch.Duration)
	}
}

func TestLoadOperatorSecretFromEnv(t *testing.T) {
	t.Setenv(OperatorSecretEnv, "from-env")
	path := writeFile(t, "otcd.yaml", "auth:\n  operator_secret: from-file\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.OperatorSecret != "from-env" {
		t.Fatalf("expected env override, got %q", cfg.Auth.OperatorSecret)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"driver":   "journal:\n  driver: mysql\n  dsn: x\n",
		"duration": "auth:\n  max_skew: soon\n",
		"unknown":  "listen_addr: \":1\"\n",
		"hour":     "recon:\n  run_hour: 24\n",
		"nonce":    "auth:\n  max_skew: 5m\n  nonce_ttl: 1m\n",
		"window":   "auth:\n  max_skew: 2m\n  nonce_ttl: 3m\n",
	}
	for name, body := range cases {
		if _, err := Load(writeFile(t, name+".yaml", body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadGenesis(t *testing.T) {
	path := writeFile(t, "genesis.toml", `
partners = ["otc1partner"]

[pool]
authority = "otc1authority"
treasury = "otc1treasury"
max_partners = 8
fee_bps = 250
min_swap_amount = 1
max_expiration_secs = 86400
whitelisted_mints = ["mint1a", "mint1b"]

[[pairs]]
mint_a = "mint1a"
mint_b = "mint1b"

[[balances]]
owner = "otc1partner"
mint = "mint1a"
amount = 1000
`)
	g, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("load genesis: %v", err)
	}
	if g.Pool.FeeBps != 250 || len(g.Pool.WhitelistedMints) != 2 || len(g.Pairs) != 1 || g.Balances[0].Amount != 1000 {
		t.Fatalf("unexpected genesis: %+v", g)
	}

	bad := writeFile(t, "bad.toml", "[pool]\nauthority = \"otc1a\"\nfee = 3\n")
	if _, err := LoadGenesis(bad); err == nil || !strings.Contains(err.Error(), "unknown keys") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"otcpool/services/otcd/api"
	"otcpool/services/otcd/client"
)

func runPool(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("pool", stderr)
	cf := bindCommon(fs, false)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	ctx, cancel := cf.context()
	defer cancel()
	pool, err := cf.client(nil).Pool(ctx)
	if err != nil {
		return handleCallError(stderr, err)
	}
	return writeResult(stdout, pool)
}

func runInitPool(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("init-pool", stderr)
	cf := bindCommon(fs, true)
	var (
		treasury    string
		mints       string
		minSwap     string
		maxPartners uint
		feeBps      uint
		maxExpiry   int64
	)
	fs.StringVar(&treasury, "treasury", "", "treasury identity receiving fees")
	fs.StringVar(&mints, "mints", "", "comma separated mints to whitelist")
	fs.StringVar(&minSwap, "min-swap", "1", "minimum amount per leg")
	fs.UintVar(&maxPartners, "max-partners", 0, "maximum number of partners (1-255)")
	fs.UintVar(&feeBps, "fee-bps", 0, "fee in basis points (0-10000)")
	fs.Int64Var(&maxExpiry, "max-expiration-secs", 0, "longest allowed offer lifetime in seconds")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(treasury) == "" {
		return printError(stderr, "--treasury is required")
	}
	if maxPartners == 0 || maxPartners > 255 {
		return printError(stderr, "--max-partners must be between 1 and 255")
	}
	if feeBps > 10_000 {
		return printError(stderr, "--fee-bps must be <= 10000")
	}
	minAmount, err := parseAmount("min-swap", minSwap)
	if err != nil {
		return printError(stderr, err.Error())
	}
	c, err := cf.signedClient()
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := cf.context()
	defer cancel()
	pool, err := c.InitPool(ctx, api.InitPoolRequest{
		MaxPartners:       uint8(maxPartners),
		FeeBps:            uint16(feeBps),
		Treasury:          strings.TrimSpace(treasury),
		MinSwapAmount:     minAmount,
		MaxExpirationSecs: maxExpiry,
		WhitelistedMints:  splitList(mints),
	})
	if err != nil {
		return handleCallError(stderr, err)
	}
	return writeResult(stdout, pool)
}

type govAction struct {
	args int
	call func(ctx context.Context, c *client.Client, args []string) (*api.Pool, error)
}

var govActions = map[string]govAction{
	"transfer-authority": {1, func(ctx context.Context, c *client.Client, a []string) (*api.Pool, error) { return c.TransferAuthority(ctx, a[0]) }},
	"update-treasury":    {1, func(ctx context.Context, c *client.Client, a []string) (*api.Pool, error) { return c.UpdateTreasury(ctx, a[0]) }},
	"add-mint":           {1, func(ctx context.Context, c *client.Client, a []string) (*api.Pool, error) { return c.AddMint(ctx, a[0]) }},
	"remove-mint":        {1, func(ctx context.Context, c *client.Client, a []string) (*api.Pool, error) { return c.RemoveMint(ctx, a[0]) }},
	"add-partner":        {1, func(ctx context.Context, c *client.Client, a []string) (*api.Pool, error) { return c.AddPartner(ctx, a[0]) }},
	"remove-partner":     {1, func(ctx context.Context, c *client.Client, a []string) (*api.Pool, error) { return c.RemovePartner(ctx, a[0]) }},
	"add-pair":           {2, func(ctx context.Context, c *client.Client, a []string) (*api.Pool, error) { return c.AddPair(ctx, a[0], a[1]) }},
	"remove-pair":        {2, func(ctx context.Context, c *client.Client, a []string) (*api.Pool, error) { return c.RemovePair(ctx, a[0], a[1]) }},
	"pause":              {0, func(ctx context.Context, c *client.Client, _ []string) (*api.Pool, error) { return c.Pause(ctx) }},
	"resume":             {0, func(ctx context.Context, c *client.Client, _ []string) (*api.Pool, error) { return c.Resume(ctx) }},
}

// runGov handles authority operations: otcctl gov <action> --key k [args...].
func runGov(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, govUsage())
		return 1
	}
	action, ok := govActions[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown gov action: %s\n", args[0])
		fmt.Fprintln(stderr, govUsage())
		return 1
	}
	fs := newFlagSet("gov "+args[0], stderr)
	cf := bindCommon(fs, true)
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if fs.NArg() != action.args {
		return printError(stderr, fmt.Sprintf("gov %s expects %d argument(s), got %d", args[0], action.args, fs.NArg()))
	}
	c, err := cf.signedClient()
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := cf.context()
	defer cancel()
	pool, err := action.call(ctx, c, fs.Args())
	if err != nil {
		return handleCallError(stderr, err)
	}
	return writeResult(stdout, pool)
}

func govUsage() string {
	return strings.Join([]string{
		"Usage: otcctl gov <action> --key <keystore> [args]",
		"",
		"Actions:",
		"  transfer-authority <otc1..>",
		"  update-treasury    <otc1..>",
		"  add-mint           <mint1..>",
		"  remove-mint        <mint1..>",
		"  add-partner        <otc1..>",
		"  remove-partner     <otc1..>",
		"  add-pair           <mintA> <mintB>",
		"  remove-pair        <mintA> <mintB>",
		"  pause",
		"  resume",
	}, "\n")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

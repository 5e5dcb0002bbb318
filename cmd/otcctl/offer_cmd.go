package main

import (
	"fmt"
	"io"
	"strings"

	"otcpool/services/otcd/api"
)

func runSwap(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("swap", stderr)
	cf := bindCommon(fs, true)
	var (
		counterKey  string
		counterPass string
		mintA       string
		mintB       string
		amountA     string
		amountB     string
	)
	fs.StringVar(&counterKey, "counterparty-key", "", "keystore of party B")
	fs.StringVar(&counterPass, "counterparty-pass-env", "OTC_COUNTERPARTY_PASS", "environment variable holding party B's passphrase")
	fs.StringVar(&mintA, "mint-a", "", "mint party A delivers")
	fs.StringVar(&mintB, "mint-b", "", "mint party B delivers")
	fs.StringVar(&amountA, "amount-a", "", "amount party A delivers")
	fs.StringVar(&amountB, "amount-b", "", "amount party B delivers")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(counterKey) == "" {
		return printError(stderr, "--counterparty-key is required")
	}
	if mintA == "" || mintB == "" {
		return printError(stderr, "--mint-a and --mint-b are required")
	}
	a, err := parseAmount("amount-a", amountA)
	if err != nil {
		return printError(stderr, err.Error())
	}
	b, err := parseAmount("amount-b", amountB)
	if err != nil {
		return printError(stderr, err.Error())
	}
	c, err := cf.signedClient()
	if err != nil {
		return printError(stderr, err.Error())
	}
	counterparty, err := loadSigner(counterKey, counterPass, "counterparty keystore")
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := cf.context()
	defer cancel()
	out, err := c.Swap(ctx, counterparty, api.SwapRequest{
		PartyA:  c.Signer().Address(),
		PartyB:  counterparty.Address(),
		MintA:   mintA,
		MintB:   mintB,
		AmountA: a,
		AmountB: b,
	})
	if err != nil {
		return handleCallError(stderr, err)
	}
	return writeResult(stdout, out)
}

func runOffer(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, offerUsage())
		return 1
	}
	switch args[0] {
	case "create":
		return runOfferCreate(args[1:], stdout, stderr)
	case "accept":
		return runOfferAccept(args[1:], stdout, stderr)
	case "cancel", "close":
		return runOfferTransition(args[0], args[1:], stdout, stderr)
	case "extend":
		return runOfferExtend(args[1:], stdout, stderr)
	case "get":
		return runOfferGet(args[1:], stdout, stderr)
	case "quote":
		return runOfferQuote(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown offer subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, offerUsage())
		return 1
	}
}

func offerUsage() string {
	return strings.Join([]string{
		"Usage: otcctl offer <subcommand> [flags]",
		"",
		"Subcommands:",
		"  create --key k --mint-a M --mint-b M --amount-a N --amount-b N --expires +1h",
		"  accept --key k --maker otc1.. --fill N",
		"  cancel --key k",
		"  extend --key k --expires +2h",
		"  close  --key k --maker otc1..",
		"  get    --maker otc1..",
		"  quote  --maker otc1.. --fill N",
	}, "\n")
}

func runOfferCreate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("offer create", stderr)
	cf := bindCommon(fs, true)
	var mintA, mintB, amountA, amountB, expires string
	fs.StringVar(&mintA, "mint-a", "", "mint escrowed by the maker")
	fs.StringVar(&mintB, "mint-b", "", "mint requested from takers")
	fs.StringVar(&amountA, "amount-a", "", "amount of mint A offered")
	fs.StringVar(&amountB, "amount-b", "", "amount of mint B requested")
	fs.StringVar(&expires, "expires", "", "expiration as +duration, unix seconds or RFC3339")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if mintA == "" || mintB == "" {
		return printError(stderr, "--mint-a and --mint-b are required")
	}
	a, err := parseAmount("amount-a", amountA)
	if err != nil {
		return printError(stderr, err.Error())
	}
	b, err := parseAmount("amount-b", amountB)
	if err != nil {
		return printError(stderr, err.Error())
	}
	expiration, err := parseExpiration(expires, cliNow())
	if err != nil {
		return printError(stderr, err.Error())
	}
	c, err := cf.signedClient()
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := cf.context()
	defer cancel()
	offer, err := c.CreateOffer(ctx, api.CreateOfferRequest{
		MintA: mintA, MintB: mintB, AmountA: a, AmountB: b, ExpirationTs: expiration,
	})
	if err != nil {
		return handleCallError(stderr, err)
	}
	return writeResult(stdout, offer)
}

func runOfferAccept(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("offer accept", stderr)
	cf := bindCommon(fs, true)
	var maker, fill string
	fs.StringVar(&maker, "maker", "", "maker of the offer")
	fs.StringVar(&fill, "fill", "", "amount of mint B to deliver")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(maker) == "" {
		return printError(stderr, "--maker is required")
	}
	amount, err := parseAmount("fill", fill)
	if err != nil {
		return printError(stderr, err.Error())
	}
	c, err := cf.signedClient()
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := cf.context()
	defer cancel()
	quote, err := c.AcceptOffer(ctx, maker, amount)
	if err != nil {
		return handleCallError(stderr, err)
	}
	return writeResult(stdout, quote)
}

// runOfferTransition covers cancel (the signer's own offer) and close (any
// expired offer named by --maker).
func runOfferTransition(action string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("offer "+action, stderr)
	cf := bindCommon(fs, true)
	maker := fs.String("maker", "", "maker of the offer; defaults to the signer")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	c, err := cf.signedClient()
	if err != nil {
		return printError(stderr, err.Error())
	}
	target := strings.TrimSpace(*maker)
	if target == "" {
		target = c.Signer().Address()
	}
	ctx, cancel := cf.context()
	defer cancel()
	if action == "cancel" {
		refund, err := c.CancelOffer(ctx, target)
		if err != nil {
			return handleCallError(stderr, err)
		}
		return writeResult(stdout, refund)
	}
	offer, err := c.CloseOffer(ctx, target)
	if err != nil {
		return handleCallError(stderr, err)
	}
	return writeResult(stdout, offer)
}

func runOfferExtend(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("offer extend", stderr)
	cf := bindCommon(fs, true)
	expires := fs.String("expires", "", "new expiration as +duration, unix seconds or RFC3339")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	expiration, err := parseExpiration(*expires, cliNow())
	if err != nil {
		return printError(stderr, err.Error())
	}
	c, err := cf.signedClient()
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := cf.context()
	defer cancel()
	offer, err := c.ExtendOffer(ctx, c.Signer().Address(), expiration)
	if err != nil {
		return handleCallError(stderr, err)
	}
	return writeResult(stdout, offer)
}

func runOfferGet(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("offer get", stderr)
	cf := bindCommon(fs, false)
	maker := fs.String("maker", "", "maker of the offer")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*maker) == "" {
		return printError(stderr, "--maker is required")
	}
	ctx, cancel := cf.context()
	defer cancel()
	offer, err := cf.client(nil).Offer(ctx, *maker)
	if err != nil {
		return handleCallError(stderr, err)
	}
	return writeResult(stdout, offer)
}

func runOfferQuote(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("offer quote", stderr)
	cf := bindCommon(fs, false)
	var maker, fill string
	fs.StringVar(&maker, "maker", "", "maker of the offer")
	fs.StringVar(&fill, "fill", "", "amount of mint B to deliver")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(maker) == "" {
		return printError(stderr, "--maker is required")
	}
	amount, err := parseAmount("fill", fill)
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := cf.context()
	defer cancel()
	quote, err := cf.client(nil).Quote(ctx, maker, amount)
	if err != nil {
		return handleCallError(stderr, err)
	}
	return writeResult(stdout, quote)
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	cf := bindCommon(fs, false)
	var owner, mint string
	fs.StringVar(&owner, "owner", "", "account owner")
	fs.StringVar(&mint, "mint", "", "account mint")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if owner == "" || mint == "" {
		return printError(stderr, "--owner and --mint are required")
	}
	ctx, cancel := cf.context()
	defer cancel()
	bal, err := cf.client(nil).Balance(ctx, owner, mint)
	if err != nil {
		return handleCallError(stderr, err)
	}
	return writeResult(stdout, bal)
}

func runEvents(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr)
	cf := bindCommon(fs, false)
	after := fs.Uint64("after", 0, "return events after this sequence")
	limit := fs.Int("limit", 100, "page size (max 500)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	ctx, cancel := cf.context()
	defer cancel()
	page, err := cf.client(nil).Events(ctx, *after, *limit)
	if err != nil {
		return handleCallError(stderr, err)
	}
	return writeResult(stdout, page)
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"otcpool/services/otcd/api"
	"otcpool/services/otcd/config"
	"otcpool/services/otcd/server"
)

func runOps(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, opsUsage())
		return 1
	}
	switch args[0] {
	case "credit":
		return runOpsCredit(args[1:], stdout, stderr)
	case "recon":
		return runOpsRecon(args[1:], stdout, stderr)
	case "token":
		return runOpsToken(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown ops subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, opsUsage())
		return 1
	}
}

func opsUsage() string {
	return strings.Join([]string{
		"Usage: otcctl ops <subcommand> [flags]",
		"",
		"Subcommands:",
		"  credit --owner otc1.. --mint mint1.. --amount N",
		"  recon  [--dry-run]",
		"  token  [--ttl 1h]   (signs with $" + config.OperatorSecretEnv + ")",
		"",
		"credit and recon read the bearer token from --token or $" + operatorToken + ".",
	}, "\n")
}

func bindToken(fsToken *string) string {
	if token := strings.TrimSpace(*fsToken); token != "" {
		return token
	}
	return strings.TrimSpace(os.Getenv(operatorToken))
}

func runOpsCredit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("ops credit", stderr)
	cf := bindCommon(fs, false)
	var owner, mint, amount, token string
	fs.StringVar(&owner, "owner", "", "account owner")
	fs.StringVar(&mint, "mint", "", "account mint")
	fs.StringVar(&amount, "amount", "", "amount to credit")
	fs.StringVar(&token, "token", "", "operator bearer token")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if owner == "" || mint == "" {
		return printError(stderr, "--owner and --mint are required")
	}
	value, err := parseAmount("amount", amount)
	if err != nil {
		return printError(stderr, err.Error())
	}
	bearer := bindToken(&token)
	if bearer == "" {
		return printError(stderr, "operator token required")
	}
	ctx, cancel := cf.context()
	defer cancel()
	bal, err := cf.client(nil).Credit(ctx, bearer, api.CreditRequest{Owner: owner, Mint: mint, Amount: value})
	if err != nil {
		return handleCallError(stderr, err)
	}
	return writeResult(stdout, bal)
}

func runOpsRecon(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("ops recon", stderr)
	cf := bindCommon(fs, false)
	token := fs.String("token", "", "operator bearer token")
	dryRun := fs.Bool("dry-run", false, "report without writing files")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	bearer := bindToken(token)
	if bearer == "" {
		return printError(stderr, "operator token required")
	}
	ctx, cancel := cf.context()
	defer cancel()
	summary, err := cf.client(nil).Recon(ctx, bearer, *dryRun)
	if err != nil {
		return handleCallError(stderr, err)
	}
	return writeResult(stdout, summary)
}

func runOpsToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("ops token", stderr)
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	issuer := fs.String("issuer", "otcd", "token issuer")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	secret := strings.TrimSpace(os.Getenv(config.OperatorSecretEnv))
	if secret == "" {
		return printError(stderr, config.OperatorSecretEnv+" is not set")
	}
	if *ttl <= 0 {
		return printError(stderr, "--ttl must be positive")
	}
	token, err := server.IssueOperatorToken(secret, *issuer, cliNow(), *ttl)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, token)
	return 0
}

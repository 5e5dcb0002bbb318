package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"otcpool/cmd/internal/passphrase"
	"otcpool/crypto"
	"otcpool/services/otcd/client"
)

const (
	defaultEndpoint = "http://localhost:7080"
	endpointEnv     = "OTCD_ENDPOINT"
	defaultPassEnv  = "OTC_KEYSTORE_PASS"
	operatorToken   = "OTCD_OPERATOR_TOKEN"
)

var (
	cliNow      = time.Now
	loadSigner  = loadKeystoreSigner
	dialTimeout = 15 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "generate-key":
		return runGenerateKey(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "pool":
		return runPool(args[1:], stdout, stderr)
	case "init-pool":
		return runInitPool(args[1:], stdout, stderr)
	case "gov":
		return runGov(args[1:], stdout, stderr)
	case "swap":
		return runSwap(args[1:], stdout, stderr)
	case "offer":
		return runOffer(args[1:], stdout, stderr)
	case "balance":
		return runBalance(args[1:], stdout, stderr)
	case "events":
		return runEvents(args[1:], stdout, stderr)
	case "ops":
		return runOps(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.Join([]string{
		"Usage: otcctl <command> [flags]",
		"",
		"Commands:",
		"  generate-key  --out <path> [--pass-env VAR]",
		"  address       --key <keystore>",
		"  pool          show the pool configuration",
		"  init-pool     --key <keystore> --treasury <otc1..> --fee-bps N --max-partners N ...",
		"  gov           <transfer-authority|update-treasury|add-mint|remove-mint|add-partner|remove-partner|add-pair|remove-pair|pause|resume>",
		"  swap          --key <party A keystore> --counterparty-key <party B keystore> ...",
		"  offer         <create|accept|cancel|extend|close|get|quote>",
		"  balance       --owner <otc1..> --mint <mint1..>",
		"  events        [--after N] [--limit N]",
		"  ops           <credit|recon|token>",
		"",
		"The endpoint defaults to $" + endpointEnv + " or " + defaultEndpoint + ".",
	}, "\n")
}

// commonFlags are shared by every command that talks to otcd.
type commonFlags struct {
	endpoint       string
	keyPath        string
	passEnv        string
	idempotencyKey string
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func bindCommon(fs *flag.FlagSet, signed bool) *commonFlags {
	cf := &commonFlags{}
	endpoint := strings.TrimSpace(os.Getenv(endpointEnv))
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	fs.StringVar(&cf.endpoint, "endpoint", endpoint, "otcd base URL")
	if signed {
		fs.StringVar(&cf.keyPath, "key", "", "keystore of the signing identity")
		fs.StringVar(&cf.passEnv, "pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
		fs.StringVar(&cf.idempotencyKey, "idempotency-key", "", "optional Idempotency-Key for safe retries")
	}
	return cf
}

func (cf *commonFlags) client(signer *client.Signer) *client.Client {
	return client.New(cf.endpoint, signer, client.WithClock(cliNow))
}

func (cf *commonFlags) signedClient() (*client.Client, error) {
	if strings.TrimSpace(cf.keyPath) == "" {
		return nil, errors.New("--key is required")
	}
	signer, err := loadSigner(cf.keyPath, cf.passEnv, "keystore")
	if err != nil {
		return nil, err
	}
	return cf.client(signer), nil
}

func (cf *commonFlags) context() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	if cf.idempotencyKey != "" {
		ctx = client.WithIdempotencyKey(ctx, cf.idempotencyKey)
	}
	return ctx, cancel
}

func loadKeystoreSigner(path, passEnv, label string) (*client.Signer, error) {
	pass, err := passphrase.NewSource(passEnv, label).Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore %s: %w", path, err)
	}
	return client.NewSigner(key), nil
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func handleCallError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var apiErr *client.Error
	if errors.As(err, &apiErr) {
		fmt.Fprintf(w, "otcd error %d %s (%s): %s\n", apiErr.Status, apiErr.Code, apiErr.Kind, apiErr.Message)
		return 1
	}
	fmt.Fprintf(w, "otcd call failed: %v\n", err)
	return 1
}

func writeResult(w io.Writer, v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "%v\n", v)
		return 0
	}
	fmt.Fprintln(w, string(data))
	return 0
}

func parseAmount(name, value string) (uint64, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if value == "" {
		return 0, fmt.Errorf("--%s is required", name)
	}
	amount, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("--%s must be an unsigned integer", name)
	}
	return amount, nil
}

// parseExpiration accepts +duration, a unix timestamp or RFC3339.
func parseExpiration(value string, now time.Time) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("--expires is required")
	}
	if strings.HasPrefix(trimmed, "+") {
		dur, err := time.ParseDuration(strings.TrimSpace(trimmed[1:]))
		if err != nil {
			return 0, fmt.Errorf("invalid expiration duration")
		}
		if dur <= 0 {
			return 0, fmt.Errorf("expiration duration must be positive")
		}
		return now.Add(dur).Unix(), nil
	}
	if unix, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return unix, nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid expiration; use +duration, unix seconds or RFC3339")
	}
	return ts.Unix(), nil
}

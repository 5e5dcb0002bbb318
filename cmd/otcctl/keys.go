package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"otcpool/cmd/internal/passphrase"
	"otcpool/crypto"
	"otcpool/services/otcd/client"
)

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("generate-key", stderr)
	out := fs.String("out", "", "path of the keystore to write")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	light := fs.Bool("light", false, "use a cheap scrypt cost (throwaway keys only)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*out) == "" {
		return printError(stderr, "--out is required")
	}
	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return printError(stderr, fmt.Sprintf("keystore %s already exists (use --force to overwrite)", *out))
		}
	}
	pass, err := passphrase.NewConfirmingSource(*passEnv, "new keystore").Get()
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := crypto.StandardKeystore
	if *light {
		params = crypto.LightKeystore
	}
	if err := crypto.SaveToKeystoreWithParams(*out, key, pass, params); err != nil {
		return printError(stderr, fmt.Sprintf("write keystore: %v", err))
	}
	fmt.Fprintf(stdout, "Address: %s\nKeystore: %s\n", client.NewSigner(key).Address(), *out)
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	keyPath := fs.String("key", "", "keystore path")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*keyPath) == "" {
		return printError(stderr, "--key is required")
	}
	signer, err := loadSigner(*keyPath, *passEnv, "keystore")
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, signer.Address())
	return 0
}

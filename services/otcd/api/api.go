// Package api holds the wire contract shared by otcd and its clients: the
// signed request scheme and the JSON bodies of every endpoint.
package api

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"otcpool/crypto"
	"otcpool/native/otc"
)

// Signed request headers.
const (
	HeaderAddress   = "X-OTC-Address"
	HeaderTimestamp = "X-OTC-Timestamp"
	HeaderNonce     = "X-OTC-Nonce"
	HeaderSignature = "X-OTC-Signature"

	// Counterparty headers carry party B's co-signature on a direct swap.
	HeaderCounterpartyAddress   = "X-OTC-Counterparty-Address"
	HeaderCounterpartySignature = "X-OTC-Counterparty-Signature"

	HeaderIdempotencyKey = "Idempotency-Key"
)

// RequestDigest is the keccak256 digest a caller signs:
// keccak256(method ‖ path ‖ timestamp ‖ nonce ‖ keccak256(body)).
func RequestDigest(method, path string, timestamp int64, nonce string, body []byte) []byte {
	return crypto.Keccak256(
		[]byte(strings.ToUpper(method)),
		[]byte(path),
		[]byte(strconv.FormatInt(timestamp, 10)),
		[]byte(nonce),
		crypto.Keccak256(body),
	)
}

// SignRequest returns the hex signature over the request digest.
func SignRequest(key *crypto.PrivateKey, method, path string, timestamp int64, nonce string, body []byte) (string, error) {
	if key == nil {
		return "", errors.New("api: signing key required")
	}
	sig, err := key.Sign(RequestDigest(method, path, timestamp, nonce, body))
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// DecodeSignature parses a hex signature with or without the 0x prefix.
func DecodeSignature(raw string) ([]byte, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	sig, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("api: decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("api: signature must be %d bytes", crypto.SignatureLength)
	}
	return sig, nil
}

// FormatIdentity renders an identity as an otc bech32 string.
func FormatIdentity(addr otc.Address) string {
	if addr == (otc.Address{}) {
		return ""
	}
	return crypto.AddressFromArray(crypto.OTCPrefix, addr).String()
}

// FormatMint renders an asset identifier as a mint bech32 string.
func FormatMint(mint otc.Address) string {
	if mint == (otc.Address{}) {
		return ""
	}
	return crypto.AddressFromArray(crypto.MintPrefix, mint).String()
}

// ParseIdentity decodes an otc bech32 identity.
func ParseIdentity(raw string) (otc.Address, error) {
	return crypto.ParseAddress(crypto.OTCPrefix, strings.TrimSpace(raw))
}

// ParseMint decodes a mint bech32 asset identifier.
func ParseMint(raw string) (otc.Address, error) {
	return crypto.ParseAddress(crypto.MintPrefix, strings.TrimSpace(raw))
}

package crypto

import (
	"path/filepath"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	if addr.Prefix() != OTCPrefix {
		t.Fatalf("unexpected prefix %q", addr.Prefix())
	}
	decoded, err := ParseAddress(OTCPrefix, addr.String())
	if err != nil {
		t.Fatalf("parse address: %v", err)
	}
	if decoded != addr.Array() {
		t.Fatalf("decoded address mismatch")
	}
	if _, err := ParseAddress(MintPrefix, addr.String()); err == nil {
		t.Fatalf("expected prefix mismatch error")
	}
}

func TestSignRecover(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := Keccak256([]byte("otc"), []byte("payload"))
	sig, err := key.Sign(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	signer, err := RecoverAddress(digest, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if signer != key.PubKey().Address().Array() {
		t.Fatalf("recovered signer mismatch")
	}
	if _, err := RecoverAddress(digest, sig[:10]); err == nil {
		t.Fatalf("expected short signature to fail")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "partner.json")
	if err := SaveToKeystoreWithParams(path, key, "secret", LightKeystore); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "secret")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if loaded.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("loaded key mismatch")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}

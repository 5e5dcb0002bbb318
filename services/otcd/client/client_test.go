package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"otcpool/crypto"
	"otcpool/services/otcd/api"
)

func TestSignedRequestCarriesVerifiableHeaders(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := NewSigner(key)
	var verified bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(api.HeaderAddress) != signer.Address() || r.Header.Get(api.HeaderNonce) != "n-1" {
			t.Errorf("unexpected headers %v", r.Header)
		}
		if r.Header.Get(api.HeaderIdempotencyKey) != "idem" {
			t.Errorf("missing idempotency key")
		}
		sig, err := api.DecodeSignature(r.Header.Get(api.HeaderSignature))
		if err != nil {
			t.Errorf("decode signature: %v", err)
		}
		digest := api.RequestDigest(r.Method, r.URL.Path, 1_700_000_000, "n-1", nil)
		if got, err := crypto.RecoverAddress(digest, sig); err == nil && crypto.AddressFromArray(crypto.OTCPrefix, got).String() == signer.Address() {
			verified = true
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"paused":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", signer,
		WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }),
		WithNonceFunc(func() string { return "n-1" }))
	pool, err := c.Pause(WithIdempotencyKey(context.Background(), "idem"))
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !pool.Paused || !verified {
		t.Fatalf("expected verified signed request, got paused=%v verified=%v", pool.Paused, verified)
	}
}

func TestErrorResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/pool" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"PoolNotInitialized","kind":"missing","message":"pool not initialized"}`))
			return
		}
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()
	c := New(srv.URL, nil)

	_, err := c.Pool(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Code != "PoolNotInitialized" {
		t.Fatalf("unexpected error %v", err)
	}
	_, err = c.Offer(context.Background(), "otc1x")
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusText(http.StatusBadGateway) || apiErr.Message != "upstream down" {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := c.Pause(context.Background()); err == nil {
		t.Fatalf("expected signing key error")
	}
	if _, err := c.Swap(context.Background(), nil, api.SwapRequest{}); err == nil {
		t.Fatalf("expected counterparty error")
	}
}

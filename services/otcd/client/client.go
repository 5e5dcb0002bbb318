// Package client is a thin HTTP client for otcd. Mutating calls are signed
// with the caller's key using the X-OTC header scheme.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"otcpool/crypto"
	"otcpool/services/otcd/api"
)

// Error is a non-2xx reply from otcd.
type Error struct {
	Status int
	api.ErrorResponse
}

func (e *Error) Error() string {
	return fmt.Sprintf("otcd: %d %s: %s", e.Status, e.Code, e.Message)
}

// Signer produces request signatures for one identity.
type Signer struct {
	key     *crypto.PrivateKey
	address string
}

// NewSigner wraps key.
func NewSigner(key *crypto.PrivateKey) *Signer {
	return &Signer{key: key, address: key.PubKey().Address().String()}
}

// Address returns the signer's otc identity.
func (s *Signer) Address() string { return s.address }

// Sign signs the request envelope.
func (s *Signer) Sign(method, path string, ts int64, nonce string, body []byte) (string, error) {
	return api.SignRequest(s.key, method, path, ts, nonce, body)
}

// Client talks to one otcd endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	signer  *Signer
	now     func() time.Time
	nonce   func() string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithNonceFunc overrides nonce generation.
func WithNonceFunc(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.nonce = fn
		}
	}
}

// New creates a client. signer may be nil for read-only use.
func New(baseURL string, signer *Signer, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		signer:  signer,
		now:     time.Now,
		nonce:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Signer returns the configured signer.
func (c *Client) Signer() *Signer { return c.signer }

type idempotencyKey struct{}

// WithIdempotencyKey attaches an Idempotency-Key to requests sent with ctx.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

type request struct {
	method   string
	path     string
	query    url.Values
	body     any
	sign     bool
	bearer   string
	cosigner *Signer
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	var raw []byte
	if req.body != nil {
		var err error
		if raw, err = json.Marshal(req.body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	if raw != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if key, ok := ctx.Value(idempotencyKey{}).(string); ok && key != "" {
		httpReq.Header.Set(api.HeaderIdempotencyKey, key)
	}
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	if req.sign {
		if c.signer == nil {
			return errors.New("client: signing key required")
		}
		ts := c.now().Unix()
		nonce := c.nonce()
		sig, err := c.signer.Sign(req.method, req.path, ts, nonce, raw)
		if err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
		httpReq.Header.Set(api.HeaderAddress, c.signer.Address())
		httpReq.Header.Set(api.HeaderTimestamp, strconv.FormatInt(ts, 10))
		httpReq.Header.Set(api.HeaderNonce, nonce)
		httpReq.Header.Set(api.HeaderSignature, sig)
		if req.cosigner != nil {
			cosig, err := req.cosigner.Sign(req.method, req.path, ts, nonce, raw)
			if err != nil {
				return fmt.Errorf("countersign request: %w", err)
			}
			httpReq.Header.Set(api.HeaderCounterpartyAddress, req.cosigner.Address())
			httpReq.Header.Set(api.HeaderCounterpartySignature, cosig)
		}
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(payload, &apiErr.ErrorResponse); jsonErr != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(payload))
		}
		return apiErr
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Pool fetches the pool configuration.
func (c *Client) Pool(ctx context.Context) (*api.Pool, error) {
	var out api.Pool
	if err := c.do(ctx, request{method: http.MethodGet, path: "/v1/pool"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitPool initializes the pool with the signer as its authority.
func (c *Client) InitPool(ctx context.Context, req api.InitPoolRequest) (*api.Pool, error) {
	return c.poolCall(ctx, http.MethodPost, "/v1/pool", req)
}

// TransferAuthority hands pool authority to next.
func (c *Client) TransferAuthority(ctx context.Context, next string) (*api.Pool, error) {
	return c.poolCall(ctx, http.MethodPost, "/v1/pool/authority", api.AddressRequest{Address: next})
}

// UpdateTreasury replaces the fee treasury.
func (c *Client) UpdateTreasury(ctx context.Context, treasury string) (*api.Pool, error) {
	return c.poolCall(ctx, http.MethodPost, "/v1/pool/treasury", api.AddressRequest{Address: treasury})
}

// AddMint whitelists mint.
func (c *Client) AddMint(ctx context.Context, mint string) (*api.Pool, error) {
	return c.poolCall(ctx, http.MethodPost, "/v1/pool/mints/"+url.PathEscape(mint), nil)
}

// RemoveMint removes mint from the whitelist.
func (c *Client) RemoveMint(ctx context.Context, mint string) (*api.Pool, error) {
	return c.poolCall(ctx, http.MethodDelete, "/v1/pool/mints/"+url.PathEscape(mint), nil)
}

// AddPartner admits partner.
func (c *Client) AddPartner(ctx context.Context, partner string) (*api.Pool, error) {
	return c.poolCall(ctx, http.MethodPost, "/v1/pool/partners/"+url.PathEscape(partner), nil)
}

// RemovePartner revokes partner.
func (c *Client) RemovePartner(ctx context.Context, partner string) (*api.Pool, error) {
	return c.poolCall(ctx, http.MethodDelete, "/v1/pool/partners/"+url.PathEscape(partner), nil)
}

// AddPair enables the directional pair mintA to mintB.
func (c *Client) AddPair(ctx context.Context, mintA, mintB string) (*api.Pool, error) {
	return c.poolCall(ctx, http.MethodPost, pairPath(mintA, mintB), nil)
}

// RemovePair disables the directional pair mintA to mintB.
func (c *Client) RemovePair(ctx context.Context, mintA, mintB string) (*api.Pool, error) {
	return c.poolCall(ctx, http.MethodDelete, pairPath(mintA, mintB), nil)
}

// Pause halts trading.
func (c *Client) Pause(ctx context.Context) (*api.Pool, error) {
	return c.poolCall(ctx, http.MethodPost, "/v1/pool/pause", nil)
}

// Resume re-enables trading.
func (c *Client) Resume(ctx context.Context) (*api.Pool, error) {
	return c.poolCall(ctx, http.MethodPost, "/v1/pool/resume", nil)
}

func pairPath(mintA, mintB string) string {
	return "/v1/pool/pairs/" + url.PathEscape(mintA) + "/" + url.PathEscape(mintB)
}

func (c *Client) poolCall(ctx context.Context, method, path string, body any) (*api.Pool, error) {
	var out api.Pool
	if err := c.do(ctx, request{method: method, path: path, body: body, sign: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Swap executes a direct swap signed by the client as party A and
// countersigned by counterparty as party B.
func (c *Client) Swap(ctx context.Context, counterparty *Signer, req api.SwapRequest) (*api.SwapResponse, error) {
	if counterparty == nil {
		return nil, errors.New("client: counterparty signer required")
	}
	var out api.SwapResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/v1/swaps", body: req, sign: true, cosigner: counterparty}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOffer opens an offer for the signer.
func (c *Client) CreateOffer(ctx context.Context, req api.CreateOfferRequest) (*api.Offer, error) {
	var out api.Offer
	if err := c.do(ctx, request{method: http.MethodPost, path: "/v1/offers", body: req, sign: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AcceptOffer fills part of maker's offer.
func (c *Client) AcceptOffer(ctx context.Context, maker string, fillAmountB uint64) (*api.Quote, error) {
	var out api.Quote
	body := api.AcceptOfferRequest{FillAmountB: fillAmountB}
	if err := c.do(ctx, request{method: http.MethodPost, path: offerPath(maker, "accept"), body: body, sign: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOffer cancels maker's offer and returns the refund.
func (c *Client) CancelOffer(ctx context.Context, maker string) (*api.Quote, error) {
	var out api.Quote
	if err := c.do(ctx, request{method: http.MethodPost, path: offerPath(maker, "cancel"), sign: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExtendOffer moves the offer's expiration to expirationTs.
func (c *Client) ExtendOffer(ctx context.Context, maker string, expirationTs int64) (*api.Offer, error) {
	var out api.Offer
	body := api.ExtendOfferRequest{ExpirationTs: expirationTs}
	if err := c.do(ctx, request{method: http.MethodPost, path: offerPath(maker, "extend"), body: body, sign: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CloseOffer closes an expired offer.
func (c *Client) CloseOffer(ctx context.Context, maker string) (*api.Offer, error) {
	var out api.Offer
	if err := c.do(ctx, request{method: http.MethodPost, path: offerPath(maker, "close"), sign: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Offer fetches maker's offer.
func (c *Client) Offer(ctx context.Context, maker string) (*api.Offer, error) {
	var out api.Offer
	if err := c.do(ctx, request{method: http.MethodGet, path: offerPath(maker, "")}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Quote previews a fill of fillAmountB against maker's offer.
func (c *Client) Quote(ctx context.Context, maker string, fillAmountB uint64) (*api.Quote, error) {
	var out api.Quote
	query := url.Values{"fill": []string{strconv.FormatUint(fillAmountB, 10)}}
	if err := c.do(ctx, request{method: http.MethodGet, path: offerPath(maker, "quote"), query: query}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func offerPath(maker, action string) string {
	path := "/v1/offers/" + url.PathEscape(maker)
	if action != "" {
		path += "/" + action
	}
	return path
}

// Balance reads a ledger account.
func (c *Client) Balance(ctx context.Context, owner, mint string) (*api.Balance, error) {
	var out api.Balance
	path := "/v1/balances/" + url.PathEscape(owner) + "/" + url.PathEscape(mint)
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events pages through the event journal after the given sequence.
func (c *Client) Events(ctx context.Context, after uint64, limit int) (*api.EventPage, error) {
	var out api.EventPage
	query := url.Values{"after": []string{strconv.FormatUint(after, 10)}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/v1/events", query: query}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Credit funds a ledger account using an operator token.
func (c *Client) Credit(ctx context.Context, token string, req api.CreditRequest) (*api.Balance, error) {
	var out api.Balance
	if err := c.do(ctx, request{method: http.MethodPost, path: "/ops/ledger/credit", body: req, bearer: token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Recon triggers a reconciliation run using an operator token.
func (c *Client) Recon(ctx context.Context, token string, dryRun bool) (*api.ReconSummary, error) {
	var out api.ReconSummary
	query := url.Values{}
	if dryRun {
		query.Set("dry_run", "true")
	}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/ops/recon", query: query, bearer: token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

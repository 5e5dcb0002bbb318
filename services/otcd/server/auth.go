package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"otcpool/crypto"
	"otcpool/native/otc"
	"otcpool/observability/logging"
	"otcpool/services/otcd/api"
)

type contextKey string

const contextKeySigned contextKey = "otcd.signed"

const operatorScope = "otc:ops"

// signedRequest is the verified envelope of an authenticated request.
type signedRequest struct {
	Caller    otc.Address
	Timestamp int64
	Nonce     string
	Body      []byte
}

func signedFromContext(ctx context.Context) (*signedRequest, bool) {
	req, ok := ctx.Value(contextKeySigned).(*signedRequest)
	return req, ok && req != nil
}

func callerFrom(r *http.Request) otc.Address {
	if req, ok := signedFromContext(r.Context()); ok {
		return req.Caller
	}
	return otc.Address{}
}

// verifySigner checks that sigHex was produced by want over the request digest.
func verifySigner(want otc.Address, sigHex, method, path string, ts int64, nonce string, body []byte) error {
	sig, err := api.DecodeSignature(sigHex)
	if err != nil {
		return errBadSignature
	}
	signer, err := crypto.RecoverAddress(api.RequestDigest(method, path, ts, nonce, body), sig)
	if err != nil || signer != want {
		return errBadSignature
	}
	return nil
}

// authenticate verifies the X-OTC signature headers and applies the
// per-identity rate limit. The nonce is consumed later, after any
// idempotent replay.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addrRaw := strings.TrimSpace(r.Header.Get(api.HeaderAddress))
		tsRaw := strings.TrimSpace(r.Header.Get(api.HeaderTimestamp))
		nonce := strings.TrimSpace(r.Header.Get(api.HeaderNonce))
		sigRaw := strings.TrimSpace(r.Header.Get(api.HeaderSignature))
		if addrRaw == "" || tsRaw == "" || nonce == "" || sigRaw == "" {
			s.writeError(w, errMissingSignature)
			return
		}
		if len(nonce) > 128 {
			s.writeError(w, badRequest("nonce too long"))
			return
		}
		caller, err := api.ParseIdentity(addrRaw)
		if err != nil {
			s.writeError(w, badRequest("invalid "+api.HeaderAddress))
			return
		}
		ts, err := strconv.ParseInt(tsRaw, 10, 64)
		if err != nil {
			s.writeError(w, badRequest("invalid "+api.HeaderTimestamp))
			return
		}
		skew := s.now().Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > s.cfg.Auth.MaxSkew {
			s.writeError(w, errStaleRequest)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			s.writeError(w, badRequest("read body"))
			return
		}
		if len(body) > maxBodyBytes {
			s.writeError(w, badRequest("body too large"))
			return
		}
		if err := verifySigner(caller, sigRaw, r.Method, r.URL.Path, ts, nonce, body); err != nil {
			s.logger.Warn("otcd: signature rejected",
				"caller", addrRaw,
				"route", r.URL.Path,
				logging.MaskField("signature", sigRaw))
			s.writeError(w, err)
			return
		}
		if !s.limiter.allow(caller) {
			s.metrics.RecordThrottle("rate")
			s.writeError(w, errRateLimited)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		ctx := context.WithValue(r.Context(), contextKeySigned, &signedRequest{Caller: caller, Timestamp: ts, Nonce: nonce, Body: body})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// consumeNonce marks the request nonce as used; a replayed nonce is refused.
func (s *Server) consumeNonce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, ok := signedFromContext(r.Context())
		if !ok {
			s.writeError(w, errMissingSignature)
			return
		}
		if err := s.journal.UseNonce(r.Context(), api.FormatIdentity(req.Caller), req.Nonce); err != nil {
			s.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// chargeQuota accounts one value-moving request of volume for caller.
func (s *Server) chargeQuota(caller otc.Address, volume uint64) error {
	if err := s.quota.Charge(caller, s.now().Unix(), volume); err != nil {
		s.metrics.RecordThrottle("quota")
		return err
	}
	return nil
}

// refundQuota hands back the volume of a request the engine refused.
func (s *Server) refundQuota(caller otc.Address, volume uint64) {
	s.quota.Refund(caller, s.now().Unix(), volume)
}

// operatorAuth validates HMAC signed operator JWTs carrying the ops scope.
type operatorAuth struct {
	secret []byte
	issuer string
	skew   time.Duration
}

func newOperatorAuth(secret, issuer string, skew time.Duration) *operatorAuth {
	return &operatorAuth{secret: []byte(strings.TrimSpace(secret)), issuer: strings.TrimSpace(issuer), skew: skew}
}

func (a *operatorAuth) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.secret) == 0 {
			writeAPIError(w, errOperatorDisabled)
			return
		}
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeAPIError(w, newAPIError(http.StatusUnauthorized, "MissingToken", "authentication", "missing bearer token"))
			return
		}
		claims, err := a.parse(tokenString)
		if err != nil {
			writeAPIError(w, newAPIError(http.StatusUnauthorized, "InvalidToken", "authentication", "invalid token"))
			return
		}
		if !hasScope(claims, operatorScope) {
			writeAPIError(w, newAPIError(http.StatusForbidden, "InsufficientScope", "authorization", "insufficient scope"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *operatorAuth) parse(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{jwt.WithLeeway(a.skew), jwt.WithExpirationRequired()}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

// IssueOperatorToken signs an operator token valid for ttl. Used by tooling
// and tests.
func IssueOperatorToken(secret, issuer string, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"scope": operatorScope,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func hasScope(claims jwt.MapClaims, want string) bool {
	switch v := claims["scope"].(type) {
	case string:
		for _, scope := range strings.Fields(v) {
			if scope == want {
				return true
			}
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func writeAPIError(w http.ResponseWriter, e *apiError) {
	writeJSON(w, e.status, api.ErrorResponse{Code: e.code, Kind: e.kind, Message: e.msg})
}

func bodyHash(body []byte) string {
	return hex.EncodeToString(crypto.Keccak256(body))
}

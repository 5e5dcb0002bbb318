package server

import (
	"errors"
	"net/http"

	"otcpool/core/state"
	"otcpool/native/common"
	"otcpool/native/otc"
	"otcpool/services/otcd/api"
	"otcpool/services/otcd/journal"
)

// apiError is a transport failure that is not a pool error.
type apiError struct {
	status int
	code   string
	kind   string
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func newAPIError(status int, code, kind, msg string) *apiError {
	return &apiError{status: status, code: code, kind: kind, msg: msg}
}

var (
	errMissingSignature  = newAPIError(http.StatusUnauthorized, "MissingSignature", "authentication", "signed request headers required")
	errBadSignature      = newAPIError(http.StatusUnauthorized, "InvalidSignature", "authentication", "signature does not match address")
	errStaleRequest      = newAPIError(http.StatusUnauthorized, "StaleRequest", "authentication", "request timestamp outside allowed skew")
	errNonceReused       = newAPIError(http.StatusConflict, "NonceReused", "authentication", "nonce already used")
	errRateLimited       = newAPIError(http.StatusTooManyRequests, "RateLimited", "throttle", "rate limit exceeded")
	errQuotaExceeded     = newAPIError(http.StatusTooManyRequests, "QuotaExceeded", "throttle", "quota exceeded")
	errIdempotencyReused = newAPIError(http.StatusUnprocessableEntity, "IdempotencyKeyReused", "request", "idempotency key reused with a different request")
	errOperatorDisabled  = newAPIError(http.StatusServiceUnavailable, "OperatorDisabled", "authentication", "operator access not configured")
	errReconDisabled     = newAPIError(http.StatusServiceUnavailable, "ReconDisabled", "request", "reconciliation not configured")
)

func badRequest(msg string) *apiError {
	return newAPIError(http.StatusBadRequest, "BadRequest", "request", msg)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind otc.Kind) int {
	switch kind {
	case otc.KindAuthorization:
		return http.StatusForbidden
	case otc.KindCapacity, otc.KindDuplicate, otc.KindState:
		return http.StatusConflict
	case otc.KindMissing:
		return http.StatusNotFound
	case otc.KindPolicy, otc.KindTemporal, otc.KindArithmetic, otc.KindTransfer:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var apiErr *apiError
	switch {
	case errors.As(err, &apiErr):
		writeJSON(w, apiErr.status, api.ErrorResponse{Code: apiErr.code, Kind: apiErr.kind, Message: apiErr.msg})
		return
	case errors.Is(err, journal.ErrNonceReused):
		s.writeError(w, errNonceReused)
		return
	case errors.Is(err, common.ErrQuotaRequestsExceeded), errors.Is(err, common.ErrQuotaVolumeExceeded), errors.Is(err, common.ErrQuotaCounterOverflow):
		writeJSON(w, http.StatusTooManyRequests, api.ErrorResponse{Code: errQuotaExceeded.code, Kind: errQuotaExceeded.kind, Message: err.Error()})
		return
	case errors.Is(err, state.ErrEscrowLocked), errors.Is(err, state.ErrNotPermitted):
		writeJSON(w, http.StatusForbidden, api.ErrorResponse{Code: "LedgerRefused", Kind: otc.KindAuthorization.String(), Message: err.Error()})
		return
	case errors.Is(err, state.ErrBalanceOverflow):
		writeJSON(w, http.StatusUnprocessableEntity, api.ErrorResponse{Code: "BalanceOverflow", Kind: otc.KindArithmetic.String(), Message: err.Error()})
		return
	}
	kind := otc.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("otcd: request failed", "error", err)
		writeJSON(w, status, api.ErrorResponse{Code: "Internal", Kind: kind.String(), Message: "internal error"})
		return
	}
	writeJSON(w, status, api.ErrorResponse{Code: otc.CodeOf(err), Kind: kind.String(), Message: err.Error()})
}

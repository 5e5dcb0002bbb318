package otc

import "errors"

// Kind classifies a failure so callers can distinguish causes.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindCapacity
	KindDuplicate
	KindMissing
	KindPolicy
	KindTemporal
	KindState
	KindArithmetic
	KindTransfer
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	KindAuthorization: "authorization",
	KindCapacity:      "capacity",
	KindDuplicate:     "duplicate",
	KindMissing:       "missing",
	KindPolicy:        "policy",
	KindTemporal:      "temporal",
	KindState:         "state",
	KindArithmetic:    "arithmetic",
	KindTransfer:      "transfer",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is a classified pool failure. Sentinels are compared by identity so
// errors.Is works through wrapping.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return "otc: " + e.Msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	ErrUnauthorized        = newError(KindAuthorization, "Unauthorized", "unauthorized")
	ErrUnauthorizedPartner = newError(KindAuthorization, "UnauthorizedPartner", "caller is not a partner")

	ErrPartnerLimitReached = newError(KindCapacity, "PartnerLimitReached", "partner limit reached")
	ErrMintLimitReached    = newError(KindCapacity, "MintLimitReached", "mint whitelist full")
	ErrPairLimitReached    = newError(KindCapacity, "PairLimitReached", "supported pair limit reached")

	ErrPoolAlreadyInitialized = newError(KindDuplicate, "PoolAlreadyInitialized", "pool already initialized")
	ErrPartnerAlreadyExists   = newError(KindDuplicate, "PartnerAlreadyExists", "partner already exists")
	ErrMintAlreadyWhitelisted = newError(KindDuplicate, "MintAlreadyWhitelisted", "mint already whitelisted")
	ErrPairAlreadyExists      = newError(KindDuplicate, "PairAlreadyExists", "pair already exists")
	ErrOfferExists            = newError(KindDuplicate, "OfferExists", "maker already has a live offer")

	ErrPoolNotInitialized = newError(KindMissing, "PoolNotInitialized", "pool not initialized")
	ErrPartnerNotFound    = newError(KindMissing, "PartnerNotFound", "partner not found")
	ErrMintNotFound       = newError(KindMissing, "MintNotFound", "mint not whitelisted")
	ErrPairNotFound       = newError(KindMissing, "PairNotFound", "pair not found")
	ErrOfferNotFound      = newError(KindMissing, "OfferNotFound", "offer not found")

	ErrPoolPaused          = newError(KindPolicy, "PoolIsPaused", "pool is paused")
	ErrMintNotWhitelisted  = newError(KindPolicy, "MintNotWhitelisted", "mint not whitelisted")
	ErrPairNotSupported    = newError(KindPolicy, "PairNotSupported", "pair not supported")
	ErrSwapBelowMinimum    = newError(KindPolicy, "SwapBelowMinimum", "amount below minimum swap size")
	ErrInvalidFeeBps       = newError(KindPolicy, "InvalidFeeBps", "fee bps exceeds 10000")
	ErrInvalidMaxPartners  = newError(KindPolicy, "InvalidMaxPartners", "max partners must be positive")
	ErrInvalidExpiryPolicy = newError(KindPolicy, "InvalidExpirationPolicy", "max expiration must be positive")
	ErrInvalidAccount      = newError(KindPolicy, "InvalidTokenAccount", "token account owner or mint mismatch")
	ErrInvalidTreasury     = newError(KindPolicy, "InvalidTreasuryAccount", "treasury must be set")
	ErrInvalidAuthority    = newError(KindPolicy, "InvalidAuthority", "authority must be set")

	ErrOfferExpired      = newError(KindTemporal, "OfferExpired", "offer expired")
	ErrOfferNotExpired   = newError(KindTemporal, "OfferNotExpired", "offer not expired")
	ErrExpirationTooLong = newError(KindTemporal, "ExpirationTooLong", "expiration exceeds maximum lifetime")
	ErrInvalidExtension  = newError(KindTemporal, "InvalidExtension", "extension must move expiration forward")

	ErrOfferAlreadyFulfilled = newError(KindState, "OfferAlreadyFulfilled", "offer already fulfilled")
	ErrInvalidFillAmount     = newError(KindState, "InvalidFillAmount", "invalid fill amount")
	ErrEscrowNotEmpty        = newError(KindState, "EscrowNotEmpty", "previous offer escrow still holds funds")

	ErrArithmeticOverflow = newError(KindArithmetic, "ArithmeticOverflow", "arithmetic overflow")

	ErrTransferFailed = newError(KindTransfer, "TransferFailed", "token transfer failed")
)

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the stable error code of err, or an empty string.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

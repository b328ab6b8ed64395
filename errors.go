package wyvern

import (
	"errors"

	"github.com/kaifufi/wyvern-exchange-go/ledger"
	"github.com/kaifufi/wyvern-exchange-go/registry"
)

var (
	// ErrOrderInvalid marks orders that are not listed yet, expired, cancelled or malformed
	ErrOrderInvalid = errors.New("order invalid")

	// ErrAuthorizationFailed marks orders their maker did not authorize
	ErrAuthorizationFailed = errors.New("authorization failed")

	// ErrFillExceeded marks fills past an order's maximum
	ErrFillExceeded = ledger.ErrFillExceeded

	// ErrPredicateRejected marks call pairs that do not satisfy the orders
	ErrPredicateRejected = errors.New("predicate rejected")

	// ErrCallExecutionFailed marks settlement calls that failed
	ErrCallExecutionFailed = errors.New("call execution failed")

	// ErrProxyUnauthorized marks proxies refusing the caller
	ErrProxyUnauthorized = registry.ErrUnauthorized

	// ErrFingerprintMismatch marks supplied fingerprints that differ from the order
	ErrFingerprintMismatch = errors.New("fingerprint mismatch")

	ErrUnknownRegistry     = errors.New("unknown registry")
	ErrUnknownStaticTarget = errors.New("unknown static target")
	ErrNotMaker            = errors.New("sender is not the order maker")
	ErrNotCallable         = errors.New("exchange does not accept direct calls")
)

// Match failure reasons
const (
	ReasonFirstInvalid        = "First order has invalid parameters."
	ReasonSecondInvalid       = "Second order has invalid parameters."
	ReasonSelfMatch           = "Self-matching orders is prohibited."
	ReasonFirstAuthorization  = "First order failed authorization."
	ReasonSecondAuthorization = "Second order failed authorization."
	ReasonFirstFingerprint    = "First order fingerprint mismatch."
	ReasonSecondFingerprint   = "Second order fingerprint mismatch."
	ReasonStaticCallFailed    = "Static call failed."
	ReasonFirstCallFailed     = "First call failed."
	ReasonSecondCallFailed    = "Second call failed."
)

// InvalidParamError represents an invalid parameter error with context
type InvalidParamError struct {
	Message string
}

func (e *InvalidParamError) Error() string {
	return e.Message
}

// MatchError is returned by AtomicMatch. Reason is the human-readable
// rejection, Kind the failure class and Err the underlying cause.
type MatchError struct {
	Reason string
	Kind   error
	Err    error
}

func (e *MatchError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Reason + " (" + e.Err.Error() + ")"
}

// Unwrap exposes both the failure class and the cause to errors.Is
func (e *MatchError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func matchError(reason string, kind, err error) *MatchError {
	return &MatchError{Reason: reason, Kind: kind, Err: err}
}

// MatchReason returns the rejection reason of a match error, or ""
func MatchReason(err error) string {
	var me *MatchError
	if errors.As(err, &me) {
		return me.Reason
	}
	return ""
}

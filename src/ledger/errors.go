package ledger

import "fmt"

// RejectType enumerates the reasons for which the runtime refuses to commit a
// call. The zero value is SignatureInvalid so an unset reason never reads as
// an accept.
type RejectType uint32

const (
	// SignatureInvalid means a proof is missing, malformed, or does not
	// verify against its key.
	SignatureInvalid RejectType = iota
	// StaleReference means the call's checkpoint anchor fell out of the
	// freshness window, or its hash does not match the window entry.
	StaleReference
	// ReplayedOrStale means the call's version does not exceed the caller
	// page's version.
	ReplayedOrStale
	// InsufficientFee means the caller page cannot cover the declared fee.
	InsufficientFee
	// NoSuchEntryPoint means no handler is registered for the program and
	// method.
	NoSuchEntryPoint
	// ConservationViolation means the handler created or destroyed balance
	// across the touched pages.
	ConservationViolation
	// UnauthorizedDebit means the handler reduced the balance of a page it
	// had no authority over.
	UnauthorizedDebit
	// ResourceExhausted means the handler ran over its execution budget.
	ResourceExhausted
)

var rejectTypes = []string{
	"SignatureInvalid",
	"StaleReference",
	"ReplayedOrStale",
	"InsufficientFee",
	"NoSuchEntryPoint",
	"ConservationViolation",
	"UnauthorizedDebit",
	"ResourceExhausted",
}

// String returns the string representation of a RejectType, as reported in
// receipts.
func (t RejectType) String() string {
	return rejectTypes[t]
}

// CallErr qualifies the rejection of one call.
type CallErr struct {
	callHex string
	errType RejectType
	detail  string
}

// NewCallErr ...
func NewCallErr(callHex string, errType RejectType, detail string) CallErr {
	return CallErr{
		callHex: callHex,
		errType: errType,
		detail:  detail,
	}
}

// Type returns the RejectType carried by the error.
func (e CallErr) Type() RejectType {
	return e.errType
}

// Error ...
func (e CallErr) Error() string {
	return fmt.Sprintf("%s, %s, %s", e.callHex, e.errType, e.detail)
}

// IsReject checks that an error is of type CallErr and that its code matches
// the provided RejectType.
func IsReject(err error, t RejectType) bool {
	callErr, ok := err.(CallErr)
	return ok && callErr.errType == t
}

// RejectReason extracts the RejectType from an error, if it is a CallErr.
func RejectReason(err error) (RejectType, bool) {
	callErr, ok := err.(CallErr)
	if !ok {
		return 0, false
	}
	return callErr.errType, true
}

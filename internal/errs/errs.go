// Package errs implements the tagged-variant error taxonomy used across the
// multisig core (spec section 7). Errors carry a Kind rather than being
// identified by message text, so callers can branch on errors.Is against
// the exported sentinel Kind values.
package errs

import "fmt"

// Kind tags the category of failure.
type Kind string

const (
	InputMalformed      Kind = "input_malformed"
	UnknownSigner       Kind = "unknown_signer"
	InsufficientSigners Kind = "insufficient_signers"
	EraMismatch         Kind = "era_mismatch"
	ProofFailure        Kind = "proof_failure"
	StateViolation      Kind = "state_violation"
	NonceUnavailable    Kind = "nonce_unavailable"
	SemanticsException  Kind = "semantics_exception"
)

// Error is the concrete error type returned throughout the core.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a Kind sentinel matching e.Kind, so that
// errors.Is(err, errs.ProofFailure) works without a type assertion.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}

// Error lets Kind values themselves be used as errors.Is targets, e.g.
// errors.Is(err, errs.ProofFailure).
func (k Kind) Error() string { return string(k) }

// New builds an *Error tagged with kind, identifying the failing operation.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Newf is New with a formatted cause message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

package issuer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TEENet-io/splminter-go/agreement"
)

// Kind groups failures by what the caller can do about them.
type Kind string

const (
	KindConnection          Kind = "connection"           // no wallet or owner identity, nothing was sent
	KindBuild               Kind = "build"                // malformed request or workflow state, nothing was sent
	KindSubmission          Kind = "submission"           // wallet or network refused the tx
	KindConfirmationTimeout Kind = "confirmation_timeout" // sent, but not confirmed in time
	KindCanceled            Kind = "canceled"             // the caller gave up
)

var (
	ErrMintInitFailed      = errors.New("mint account initialization failed")
	ErrInitialMintFailed   = errors.New("initial supply mint failed, mint exists with zero supply")
	ErrDestinationMissing  = errors.New("destination token account does not exist")
	ErrRejected            = errors.New("transaction rejected")
	ErrConfirmationTimeout = errors.New("transaction not confirmed in time")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrWalletUnavailable   = errors.New("wallet unavailable")
	ErrIssuanceIncomplete  = errors.New("issuance has not finished minting its initial supply")
	ErrIssuanceNotFound    = errors.New("issuance not found")

	errTxFailed         = errors.New("transaction failed on chain")
	errBlockhashExpired = errors.New("blockhash expired before the transaction landed")
)

// Error is returned by every Issuer operation.
type Error struct {
	Kind   Kind
	Reason error // one of the Err* sentinels above

	// Set once the mint exists on chain, even if the operation failed.
	Mint string
	// Last submitted tx, if any.
	Signature string

	Err error // cause
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.Kind, e.Reason)
	if e.Mint != "" {
		fmt.Fprintf(&b, " (mint=%s)", e.Mint)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Reason}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the Kind of err, or "" if err did not come from the Issuer.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, reason error, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: cause}
}

// classify turns a failure of one step into an Error. reason names the step.
func classify(ctx context.Context, reason error, cause error) *Error {
	switch {
	case ctx.Err() != nil:
		return newError(KindCanceled, reason, cause)
	case errors.Is(cause, agreement.ErrWalletNotConnected):
		return newError(KindConnection, reason, cause)
	case errors.Is(cause, ErrConfirmationTimeout):
		return newError(KindConfirmationTimeout, reason, cause)
	case errors.Is(cause, agreement.ErrInvalidRequest),
		errors.Is(cause, agreement.ErrInvalidDecimals),
		errors.Is(cause, agreement.ErrInvalidAmount):
		return newError(KindBuild, reason, cause)
	default:
		return newError(KindSubmission, reason, cause)
	}
}

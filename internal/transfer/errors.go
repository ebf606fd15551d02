package transfer

import (
	"context"
	"errors"
	"fmt"

	"dualwallet/internal/network"
	"dualwallet/internal/provider"
)

// Error kinds. Every error returned by this package matches exactly one of
// these (or a provider kind) through errors.Is.
var (
	ErrValidation           = errors.New("validation failed")
	ErrNetworkMismatch      = network.ErrNetworkMismatch
	ErrNetworkUnresolved    = errors.New("no network selected")
	ErrWalletDisconnected   = errors.New("wallet disconnected")
	ErrTransferInFlight     = errors.New("a transfer is already in flight for this wallet")
	ErrGasEstimationFailed  = errors.New("gas estimation failed")
	ErrSubmissionFailed     = errors.New("transaction submission failed")
	ErrSubmissionUnknown    = errors.New("transaction outcome unknown")
	ErrTransactionIdMissing = errors.New("transaction id missing")
	ErrPersistenceFailed    = errors.New("transfer could not be recorded")
	ErrLoadTimeout          = errors.New("loading transfers timed out")

	ErrProviderUnavailable = provider.ErrProviderUnavailable
	ErrUserRejected        = provider.ErrUserRejected
)

// Error is a classified transfer failure. Message is user facing; Hint, when
// set, tells the user what to do next.
type Error struct {
	Kind    error
	Message string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, message, hint string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Hint: hint, Err: cause}
}

func validationError(format string, args ...any) *Error {
	return newError(ErrValidation, fmt.Sprintf(format, args...), "", nil)
}

// KindOf returns the kind of err, or nil when err was not produced by this
// package.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// submissionError classifies a failed provider submission.
func submissionError(chain string, err error) *Error {
	switch {
	case errors.Is(err, provider.ErrUserRejected):
		return newError(ErrUserRejected, "transfer cancelled in the wallet", "", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return newError(ErrSubmissionUnknown, "the request ended before the "+chain+" wallet answered",
			"the transfer may still have been sent; check the "+chain+" wallet activity or the chain explorer before retrying", err)
	case errors.Is(err, provider.ErrProviderUnavailable):
		return newError(ErrProviderUnavailable, "the "+chain+" wallet is not available",
			"install or open the "+chain+" wallet extension and connect it", err)
	case errors.Is(err, provider.ErrInsufficientBalance):
		return newError(ErrSubmissionFailed, err.Error(), submissionHint(chain, true), err)
	default:
		return newError(ErrSubmissionFailed, err.Error(), submissionHint(chain, false), err)
	}
}

func submissionHint(chain string, insufficient bool) string {
	switch {
	case chain == "L1" && insufficient:
		return "the L1 wallet needs enough confirmed balance to cover the amount and the network fee"
	case chain == "L1":
		return "wait for pending L1 transactions to confirm, then try again"
	case insufficient:
		return "the L2 account needs enough native balance for the amount plus gas"
	default:
		return "check the L2 wallet for a pending transaction or a stuck nonce before retrying"
	}
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"dualwallet/internal/constant"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
)

var (
	ErrProviderUnavailable = errors.New("wallet provider unavailable")
	ErrUserRejected        = errors.New("request rejected by user")
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrTransport marks a call that failed on the way to or from the wallet,
	// without any answer from it. It always comes with ErrProviderUnavailable.
	ErrTransport = errors.New("wallet transport failed")
)

// Wallet error codes shared by EIP-1193 providers and the L1 wallet bridge.
const (
	CodeUserRejected = 4001
	CodeUnauthorized = 4100
	CodeDisconnected = 4900
)

// RPCError is a provider error that does not map onto a known condition.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// EventKind distinguishes out-of-band wallet notifications.
type EventKind string

const (
	AccountsChanged EventKind = "accountsChanged"
	ChainChanged    EventKind = "chainChanged"
)

// Event is delivered by a provider whenever the wallet changes under us.
// Payload is informational only; consumers re-derive full state.
type Event struct {
	Chain   constant.Chain
	Kind    EventKind
	Payload any
}

// WalletProvider is the capability shared by both wallet families.
type WalletProvider interface {
	Chain() constant.Chain
	// GetAccounts never prompts; an empty slice means not connected.
	GetAccounts(ctx context.Context) ([]string, error)
	// RequestAccounts asks the user to approve the connection.
	RequestAccounts(ctx context.Context) ([]string, error)
	// GetBalance returns the balance in base units.
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	// SubscribeEvents delivers wallet events to ch until unsubscribed.
	SubscribeEvents(ch chan<- Event) event.Subscription
}

// UtxoWalletProvider reaches the L1 wallet.
type UtxoWalletProvider interface {
	WalletProvider
	// SendNative submits a transfer and returns the wallet's raw response.
	SendNative(ctx context.Context, to string, amount *big.Int) (any, error)
}

// CallMsg describes a value transfer for gas estimation.
type CallMsg struct {
	From  string
	To    string
	Value *big.Int
	Data  []byte
}

// TransactionArgs is the eth_sendTransaction parameter object. Exactly one of
// GasPrice or MaxFeePerGas/MaxPriorityFeePerGas is set.
type TransactionArgs struct {
	From                 string          `json:"from"`
	To                   string          `json:"to"`
	Value                *hexutil.Big    `json:"value"`
	Gas                  *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
}

// IsDynamicFee reports whether the args carry EIP-1559 pricing.
func (a TransactionArgs) IsDynamicFee() bool {
	return a.MaxFeePerGas != nil
}

// EvmWalletProvider reaches the L2 wallet through JSON-RPC style requests.
type EvmWalletProvider interface {
	WalletProvider
	// ChainID returns the chain id as reported, hex or decimal.
	ChainID(ctx context.Context) (string, error)
	// LatestBaseFee returns nil without error when the latest block has no base fee.
	LatestBaseFee(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg CallMsg) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	Call(ctx context.Context, to string, data []byte) ([]byte, error)
	// SendTransaction submits a transfer and returns the wallet's raw response.
	SendTransaction(ctx context.Context, args TransactionArgs) (any, error)
}

// classify maps a coded wallet error onto the shared failure surface.
func classify(code int, message string) error {
	switch code {
	case CodeUserRejected:
		return fmt.Errorf("%w: %s", ErrUserRejected, message)
	case CodeUnauthorized, CodeDisconnected:
		return fmt.Errorf("%w: %s", ErrProviderUnavailable, message)
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "user rejected"), strings.Contains(lower, "user denied"), strings.Contains(lower, "user canceled"), strings.Contains(lower, "user cancelled"):
		return fmt.Errorf("%w: %s", ErrUserRejected, message)
	case strings.Contains(lower, "insufficient"):
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, message)
	}
	return &RPCError{Code: code, Message: message}
}

// IsRetryable reports whether a submission error may be retried with another
// fee strategy. Rejections, cancellations and missing wallets are final; a
// transport failure got no answer, so no id was returned and a retry is
// allowed.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrUserRejected),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrTransport):
		return true
	}
	return !errors.Is(err, ErrProviderUnavailable)
}

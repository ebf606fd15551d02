package constant

import (
	"strings"
	"time"
)

// Chain identifies one of the two wallet slots. It doubles as the network mode
// a transfer is sent through.
type Chain string

const (
	ChainL1 Chain = "L1" // UTXO base chain
	ChainL2 Chain = "L2" // EVM sidechain
)

// SupportedChains lists the wallet slots in display order.
var SupportedChains = []Chain{
	ChainL1,
	ChainL2,
}

const (
	// L1Decimals is the number of fractional digits of one sompi.
	L1Decimals int32 = 8
	// L2Decimals is the number of fractional digits of one wei.
	L2Decimals int32 = 18

	DefaultL1AddressPrefix = "kaspa:"
	DefaultMinTransfer     = "0.01"
	DefaultFlatFeeRate     = "0.001"

	// MinTransferGas is the intrinsic gas of a plain value transfer.
	MinTransferGas uint64 = 21000
	// PriorityFeeWei is the fixed EIP-1559 tip, 1.5 gwei.
	PriorityFeeWei int64 = 1_500_000_000
	// GasHeadroomPercent is applied to estimated gas limits and legacy gas prices.
	GasHeadroomPercent = 120

	DefaultPollInterval   = 10 * time.Second
	DefaultRefreshTimeout = 15 * time.Second
	DefaultHistoryTimeout = 30 * time.Second
	DefaultHistoryBackoff = time.Second
	DefaultHistoryRetries = 3

	// DefaultSettleTimeout bounds recording and refreshing after a wallet
	// accepted a transfer.
	DefaultSettleTimeout = 30 * time.Second
	// DefaultSendTimeout covers waiting for the user to approve in the wallet.
	DefaultSendTimeout = 5 * time.Minute
)

// ParseChain accepts "L1"/"L2" in any case.
func ParseChain(s string) (Chain, bool) {
	for _, c := range SupportedChains {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, true
		}
	}
	return "", false
}

// IsChainSupported checks if a given chain is one of the wallet slots.
func IsChainSupported(chain string) bool {
	_, ok := ParseChain(chain)
	return ok
}

// Decimals returns the base unit precision of the slot's native asset.
func (c Chain) Decimals() int32 {
	if c == ChainL2 {
		return L2Decimals
	}
	return L1Decimals
}

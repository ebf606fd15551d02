package fee

import (
	"math/big"

	"dualwallet/internal/provider"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindFlatPercent Kind = "flat_percent"
	KindEip1559     Kind = "eip1559"
	KindLegacy      Kind = "legacy"
)

// Quote is a fee estimate. For L1 only Fee is set; L2 quotes carry either the
// EIP-1559 pair or GasPrice, plus the gas limit to send with.
type Quote struct {
	Kind Kind
	// Fee is the estimated cost in display units of the native asset.
	Fee decimal.Decimal

	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasPrice             *big.Int
	GasLimit             uint64
	// GasEstimated is false when the provider could not estimate gas and the
	// minimum transfer gas was used instead.
	GasEstimated bool
}

// Apply copies the gas parameters into args, clearing the other pricing model.
func (q *Quote) Apply(args *provider.TransactionArgs) {
	gas := hexutil.Uint64(q.GasLimit)
	args.Gas = &gas
	args.GasPrice = nil
	args.MaxFeePerGas = nil
	args.MaxPriorityFeePerGas = nil

	switch q.Kind {
	case KindEip1559:
		args.MaxFeePerGas = (*hexutil.Big)(new(big.Int).Set(q.MaxFeePerGas))
		args.MaxPriorityFeePerGas = (*hexutil.Big)(new(big.Int).Set(q.MaxPriorityFeePerGas))
	case KindLegacy:
		args.GasPrice = (*hexutil.Big)(new(big.Int).Set(q.GasPrice))
	}
}

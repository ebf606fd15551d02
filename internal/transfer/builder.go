package transfer

import (
	"context"

	"dualwallet/internal/fee"
	"dualwallet/internal/provider"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Builder turns a validated intent into exactly one wallet call per chain
// family (two for L2 when the EIP-1559 attempt fails and legacy is retried).
type Builder struct {
	estimator *fee.Estimator
}

func NewBuilder(estimator *fee.Estimator) *Builder {
	return &Builder{estimator: estimator}
}

// SubmitL1 sends the intent's base unit amount through the L1 wallet.
func (b *Builder) SubmitL1(ctx context.Context, p provider.UtxoWalletProvider, intent *Intent) (any, error) {
	return p.SendNative(ctx, intent.Recipient, intent.BaseAmount)
}

// SubmitL2 sends an eth_sendTransaction priced by the L2 strategy and returns
// the raw response with the quote that was actually used.
func (b *Builder) SubmitL2(ctx context.Context, p provider.EvmWalletProvider, intent *Intent) (any, *fee.Quote, error) {
	req := fee.GasRequest{From: intent.From, To: intent.Recipient, Value: intent.BaseAmount}
	return b.estimator.L2().Submit(ctx, p, req, func(ctx context.Context, q *fee.Quote) (any, error) {
		args := provider.TransactionArgs{
			From:  intent.From,
			To:    intent.Recipient,
			Value: (*hexutil.Big)(intent.BaseAmount),
		}
		q.Apply(&args)
		return p.SendTransaction(ctx, args)
	})
}

package fee

import (
	"context"

	"dualwallet/internal/constant"
	"dualwallet/internal/provider"

	"github.com/shopspring/decimal"
)

// L2Strategy is the L2 pricing policy: EIP-1559 first, legacy once on failure.
type L2Strategy = PreferredThenFallback[Eip1559Strategy, LegacyStrategy]

type Estimator struct {
	flatRate decimal.Decimal
	l2       L2Strategy
}

// NewEstimator creates an estimator charging flatRate on L1 transfers. A zero
// rate selects the default 0.1%.
func NewEstimator(flatRate decimal.Decimal) *Estimator {
	if flatRate.IsZero() {
		flatRate = decimal.RequireFromString(constant.DefaultFlatFeeRate)
	}
	return &Estimator{flatRate: flatRate}
}

func (e *Estimator) FlatRate() decimal.Decimal {
	return e.flatRate
}

// EstimateL1 returns the advisory L1 fee, amount * rate. The real fee is set
// by the chain.
func (e *Estimator) EstimateL1(amount decimal.Decimal) *Quote {
	return &Quote{
		Kind: KindFlatPercent,
		Fee:  amount.Mul(e.flatRate),
	}
}

func (e *Estimator) EstimateL2(ctx context.Context, p provider.EvmWalletProvider, req GasRequest) (*Quote, error) {
	return e.l2.Quote(ctx, p, req)
}

// L2 returns the strategy used to price and submit L2 transfers.
func (e *Estimator) L2() L2Strategy {
	return e.l2
}

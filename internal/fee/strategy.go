package fee

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"dualwallet/internal/chain"
	"dualwallet/internal/constant"
	"dualwallet/internal/provider"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
)

var ErrBaseFeeUnavailable = errors.New("latest block has no base fee")

// GasRequest describes the transfer a gas quote is for.
type GasRequest struct {
	From  string
	To    string
	Value *big.Int
}

// Strategy prices an L2 transfer.
type Strategy interface {
	Name() Kind
	Quote(ctx context.Context, p provider.EvmWalletProvider, req GasRequest) (*Quote, error)
}

// Eip1559Strategy prices with max fee = 2 * base fee + a fixed 1.5 gwei tip.
type Eip1559Strategy struct{}

func (Eip1559Strategy) Name() Kind {
	return KindEip1559
}

func (Eip1559Strategy) Quote(ctx context.Context, p provider.EvmWalletProvider, req GasRequest) (*Quote, error) {
	baseFee, err := p.LatestBaseFee(ctx)
	if err != nil {
		return nil, fmt.Errorf("read base fee: %w", err)
	}
	if baseFee == nil {
		return nil, ErrBaseFeeUnavailable
	}

	tip := big.NewInt(constant.PriorityFeeWei)
	maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)

	gasLimit, estimated := EstimateGasLimit(ctx, p, req)
	return &Quote{
		Kind:                 KindEip1559,
		Fee:                  weiCost(gasLimit, maxFee),
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: tip,
		GasLimit:             gasLimit,
		GasEstimated:         estimated,
	}, nil
}

// LegacyStrategy prices with the node's gas price plus 20% headroom.
type LegacyStrategy struct{}

func (LegacyStrategy) Name() Kind {
	return KindLegacy
}

func (LegacyStrategy) Quote(ctx context.Context, p provider.EvmWalletProvider, req GasRequest) (*Quote, error) {
	price, err := p.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("read gas price: %w", err)
	}
	price = withHeadroom(price)

	gasLimit, estimated := EstimateGasLimit(ctx, p, req)
	return &Quote{
		Kind:         KindLegacy,
		Fee:          weiCost(gasLimit, price),
		GasPrice:     price,
		GasLimit:     gasLimit,
		GasEstimated: estimated,
	}, nil
}

// EstimateGasLimit asks the provider for the transfer's gas and adds 20%
// headroom. When estimation fails the minimum transfer gas is returned with
// estimated=false.
func EstimateGasLimit(ctx context.Context, p provider.EvmWalletProvider, req GasRequest) (gasLimit uint64, estimated bool) {
	gas, err := p.EstimateGas(ctx, provider.CallMsg{From: req.From, To: req.To, Value: req.Value})
	if err != nil {
		logx.WithContext(ctx).Errorf("gas estimation failed, using %d: %v", constant.MinTransferGas, err)
		return constant.MinTransferGas, false
	}

	gasLimit = gas * constant.GasHeadroomPercent / 100
	if gasLimit < constant.MinTransferGas {
		gasLimit = constant.MinTransferGas
	}
	return gasLimit, true
}

func withHeadroom(v *big.Int) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(constant.GasHeadroomPercent))
	return out.Div(out, big.NewInt(100))
}

func weiCost(gasLimit uint64, pricePerGas *big.Int) decimal.Decimal {
	cost := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), pricePerGas)
	return chain.FromBaseUnits(cost, constant.L2Decimals)
}

// PreferredThenFallback quotes and submits with Preferred, falling back to
// Fallback once. The fallback never runs after a submission that succeeded, so
// at most one submission is accepted by the wallet.
type PreferredThenFallback[P, F Strategy] struct {
	Preferred P
	Fallback  F
}

// Quote returns the preferred quote, or the fallback quote when the preferred
// one is unavailable.
func (s PreferredThenFallback[P, F]) Quote(ctx context.Context, p provider.EvmWalletProvider, req GasRequest) (*Quote, error) {
	q, err := s.Preferred.Quote(ctx, p, req)
	if err == nil {
		return q, nil
	}
	logx.WithContext(ctx).Infof("%s quote unavailable, using %s: %v", s.Preferred.Name(), s.Fallback.Name(), err)

	q, ferr := s.Fallback.Quote(ctx, p, req)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	return q, nil
}

// SubmitFunc sends one transaction priced by q and returns the wallet's raw
// response.
type SubmitFunc func(ctx context.Context, q *Quote) (any, error)

// Submit sends with the preferred strategy. If that submission fails with a
// retryable error, the same transfer is priced with the fallback strategy and
// sent exactly once more. Rejections, missing wallets and cancellation are
// returned as is.
func (s PreferredThenFallback[P, F]) Submit(ctx context.Context, p provider.EvmWalletProvider, req GasRequest, submit SubmitFunc) (any, *Quote, error) {
	logger := logx.WithContext(ctx)

	q, err := s.Preferred.Quote(ctx, p, req)
	if err != nil {
		logger.Infof("%s quote unavailable, submitting with %s: %v", s.Preferred.Name(), s.Fallback.Name(), err)
		fq, ferr := s.Fallback.Quote(ctx, p, req)
		if ferr != nil {
			return nil, nil, errors.Join(err, ferr)
		}
		resp, serr := submit(ctx, fq)
		return resp, fq, serr
	}

	resp, err := submit(ctx, q)
	if err == nil {
		return resp, q, nil
	}
	if !provider.IsRetryable(err) {
		return nil, q, err
	}

	logger.Errorf("%s submission failed, retrying once with %s: %v", s.Preferred.Name(), s.Fallback.Name(), err)
	fq, ferr := s.Fallback.Quote(ctx, p, req)
	if ferr != nil {
		return nil, q, errors.Join(err, ferr)
	}
	resp, err = submit(ctx, fq)
	return resp, fq, err
}

package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dualwallet/internal/constant"
	"dualwallet/internal/fee"
	"dualwallet/internal/model"
	"dualwallet/internal/svc"
	"dualwallet/internal/transfer"
	"dualwallet/internal/types"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
)

type TransactionLogic struct {
	ctx    context.Context
	svcCtx *svc.ServiceContext
	logx.Logger
}

func NewTransactionLogic(ctx context.Context, svcCtx *svc.ServiceContext) *TransactionLogic {
	return &TransactionLogic{
		ctx:    ctx,
		svcCtx: svcCtx,
		Logger: logx.WithContext(ctx),
	}
}

// Estimate validates the order and quotes its fee.
func (l *TransactionLogic) Estimate(req *types.TransferReq) (*types.EstimateResp, error) {
	r, err := toRequest(req)
	if err != nil {
		return nil, err
	}
	intent, err := l.svcCtx.Orchestrator.Estimate(l.ctx, r)
	if err != nil {
		l.Infof("estimate rejected: %v", err)
		return nil, err
	}

	resp := &types.EstimateResp{
		Network:     string(intent.Mode),
		NetworkName: intent.Network,
		From:        intent.From,
		Recipient:   intent.Recipient,
		Amount:      intent.Amount.String(),
		Fee:         intent.EstimatedFee.String(),
		Total:       intent.Amount.Add(intent.EstimatedFee).String(),
		Symbol:      intent.Symbol,
		Warnings:    intent.Warnings,
	}
	if intent.Quote != nil {
		resp.Quote = *toQuote(intent.Quote)
	}
	return resp, nil
}

// Send runs one transfer through the orchestrator. A transfer the wallet
// accepted but the store could not record is still a success, reported with
// a warning.
func (l *TransactionLogic) Send(req *types.TransferReq) (*types.SendResp, error) {
	l.Infof("--- transfer request: network=%q recipient=%s amount=%s ---", req.Network, req.Recipient, req.Amount)
	r, err := toRequest(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(l.ctx, l.svcCtx.SendTimeout())
	defer cancel()
	result, err := l.svcCtx.Orchestrator.Send(ctx, r)
	if err != nil && !(errors.Is(err, transfer.ErrPersistenceFailed) && result != nil) {
		return nil, err
	}
	if err != nil {
		l.Errorf("transfer %s sent without a record: %v", result.TxID, err)
	}

	resp := &types.SendResp{
		Network:       string(result.Chain),
		Phase:         string(result.Phase),
		TxId:          result.TxID,
		ExplorerUrl:   result.ExplorerUrl,
		FormatWarning: result.FormatWarning,
		Recorded:      result.Recorded,
		Warnings:      result.Warnings,
	}
	if result.Quote != nil {
		resp.Quote = toQuote(result.Quote)
	}
	if result.Record != nil {
		item := toItem(result.Record)
		resp.Transfer = &item
	}
	return resp, nil
}

// History lists recorded transfers, newest first. A store failure yields an
// empty list flagged as failed rather than an error.
func (l *TransactionLogic) History(req *types.HistoryReq) (*types.HistoryResp, error) {
	q := transfer.HistoryQuery{
		Filter: model.TransferFilter{
			FromAddress: strings.TrimSpace(req.FromAddress),
			ToAddress:   strings.TrimSpace(req.ToAddress),
			FromNetwork: strings.TrimSpace(req.Network),
			Status:      strings.TrimSpace(req.Status),
		},
		Limit: req.Limit,
	}
	h, err := l.svcCtx.History.Load(l.ctx, q)
	if h == nil {
		return nil, err
	}

	resp := &types.HistoryResp{
		Items:    make([]types.TransferItem, 0, len(h.Records)),
		Failed:   h.Failed,
		Attempts: h.Attempts,
	}
	if err != nil {
		l.Errorf("load transfer history after %d attempts: %v", h.Attempts, err)
		resp.Message = "transfer history is unavailable right now"
		if errors.Is(err, transfer.ErrLoadTimeout) {
			resp.Message = "loading transfer history timed out"
		}
	}
	for _, rec := range h.Records {
		resp.Items = append(resp.Items, toItem(rec))
	}
	return resp, nil
}

func (l *TransactionLogic) Detail(req *types.DetailReq) (*types.TransferItem, error) {
	hash := strings.TrimSpace(req.TxHash)
	if hash == "" {
		return nil, &transfer.Error{Kind: transfer.ErrValidation, Message: "tx_hash is required"}
	}
	rec, err := l.svcCtx.TransfersDao.FindOneByTxHash(l.ctx, hash)
	if err != nil {
		return nil, err
	}
	item := toItem(rec)
	return &item, nil
}

func toRequest(req *types.TransferReq) (transfer.Request, error) {
	raw := strings.TrimSpace(req.Amount)
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return transfer.Request{}, &transfer.Error{
			Kind:    transfer.ErrValidation,
			Message: fmt.Sprintf("amount %q is not a number", raw),
			Err:     err,
		}
	}
	return transfer.Request{
		Mode:      constant.Chain(strings.TrimSpace(req.Network)),
		Recipient: req.Recipient,
		Amount:    amount,
	}, nil
}

func toQuote(q *fee.Quote) *types.FeeQuote {
	out := &types.FeeQuote{
		Kind:         string(q.Kind),
		Fee:          q.Fee.String(),
		GasLimit:     q.GasLimit,
		GasEstimated: q.GasEstimated,
	}
	if q.MaxFeePerGas != nil {
		out.MaxFeePerGas = q.MaxFeePerGas.String()
	}
	if q.MaxPriorityFeePerGas != nil {
		out.MaxPriorityFeePerGas = q.MaxPriorityFeePerGas.String()
	}
	if q.GasPrice != nil {
		out.GasPrice = q.GasPrice.String()
	}
	return out
}

func toItem(rec *model.TransferRecord) types.TransferItem {
	return types.TransferItem{
		Id:            rec.Id,
		FromNetwork:   rec.FromNetwork,
		ToNetwork:     rec.ToNetwork,
		FromAddress:   rec.FromAddress,
		ToAddress:     rec.ToAddress,
		Amount:        rec.Amount,
		TokenSymbol:   rec.TokenSymbol,
		Status:        rec.Status,
		TxHash:        rec.TxHash,
		Fee:           rec.Fee,
		EstimatedTime: rec.EstimatedTime,
		ExplorerUrl:   rec.ExplorerUrl,
		CreatedAt:     rec.CreatedAt.Unix(),
	}
}

package handler

import (
	"context"
	"errors"
	"net/http"

	"dualwallet/internal/model"
	"dualwallet/internal/transfer"
	"dualwallet/internal/types"
	"dualwallet/internal/walletstate"

	"github.com/zeromicro/go-zero/core/logx"
)

var errBadRequest = errors.New("bad request")

type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }

func (e requestError) Unwrap() []error { return []error{errBadRequest, e.err} }

func badRequest(err error) error {
	return requestError{err: err}
}

type errorKind struct {
	err    error
	status int
	name   string
}

// kinds is matched in order; the first match decides the response.
var kinds = []errorKind{
	{errBadRequest, http.StatusBadRequest, "bad_request"},
	{transfer.ErrValidation, http.StatusBadRequest, "validation"},
	{walletstate.ErrUnsupportedChain, http.StatusBadRequest, "validation"},
	{transfer.ErrNetworkMismatch, http.StatusConflict, "network_mismatch"},
	{transfer.ErrNetworkUnresolved, http.StatusConflict, "network_unresolved"},
	{transfer.ErrWalletDisconnected, http.StatusConflict, "wallet_disconnected"},
	{transfer.ErrTransferInFlight, http.StatusConflict, "transfer_in_flight"},
	{transfer.ErrUserRejected, http.StatusUnprocessableEntity, "user_rejected"},
	{transfer.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable"},
	{transfer.ErrGasEstimationFailed, http.StatusBadGateway, "gas_estimation_failed"},
	{transfer.ErrSubmissionFailed, http.StatusBadGateway, "submission_failed"},
	{transfer.ErrSubmissionUnknown, http.StatusGatewayTimeout, "submission_outcome_unknown"},
	{transfer.ErrTransactionIdMissing, http.StatusBadGateway, "transaction_id_missing"},
	{transfer.ErrPersistenceFailed, http.StatusInternalServerError, "persistence_failed"},
	{transfer.ErrLoadTimeout, http.StatusGatewayTimeout, "load_timeout"},
	{model.ErrNotFound, http.StatusNotFound, "not_found"},
}

// ErrorHandler renders every error as an ErrorResp. Transfer errors keep
// their kind, message and hint.
func ErrorHandler(ctx context.Context, err error) (int, any) {
	resp := types.ErrorResp{
		Code:    http.StatusInternalServerError,
		Kind:    "internal",
		Message: err.Error(),
	}

	var te *transfer.Error
	if errors.As(err, &te) {
		resp.Message = te.Message
		resp.Hint = te.Hint
	}

	kind := transfer.KindOf(err)
	for _, k := range kinds {
		if (kind != nil && kind == k.err) || (kind == nil && errors.Is(err, k.err)) {
			resp.Code = k.status
			resp.Kind = k.name
			break
		}
	}
	if resp.Code >= http.StatusInternalServerError {
		logx.WithContext(ctx).Errorf("request failed: %v", err)
	}
	return resp.Code, resp
}

package handler

import (
	"net/http"

	"dualwallet/internal/logic/wallet"
	"dualwallet/internal/svc"
	"dualwallet/internal/types"

	"github.com/zeromicro/go-zero/rest/httpx"
)

func WalletConnectHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return chainHandler(svcCtx, (*wallet.WalletLogic).Connect)
}

func WalletDisconnectHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return chainHandler(svcCtx, (*wallet.WalletLogic).Disconnect)
}

func WalletSelectHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return chainHandler(svcCtx, (*wallet.WalletLogic).Select)
}

func WalletRefreshHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return chainHandler(svcCtx, (*wallet.WalletLogic).Refresh)
}

// chainHandler parses a ChainReq and runs one wallet operation on it.
func chainHandler(svcCtx *svc.ServiceContext,
	op func(*wallet.WalletLogic, *types.ChainReq) (*types.WalletStateResp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.ChainReq
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, badRequest(err))
			return
		}

		l := wallet.NewWalletLogic(r.Context(), svcCtx)
		resp, err := op(l, &req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}

func WalletStateHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := wallet.NewWalletLogic(r.Context(), svcCtx)
		resp, err := l.State()
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}

func NetworkDetectHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := wallet.NewWalletLogic(r.Context(), svcCtx)
		resp, err := l.DetectNetwork()
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}

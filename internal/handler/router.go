package handler

import (
	"net/http"
	"time"

	"dualwallet/internal/svc"

	"github.com/zeromicro/go-zero/rest"
	"github.com/zeromicro/go-zero/rest/httpx"
)

const (
	defaultTimeout = 30000 * time.Millisecond
	// responseMargin lets a handler whose own deadline fired still write its
	// error before the route timeout cuts it off.
	responseMargin = 5 * time.Second
)

// routeTimeouts bounds each route group. A send waits for the user to approve
// in the wallet, and history may retry several slow attempts.
type routeTimeouts struct {
	Default time.Duration
	Send    time.Duration
	History time.Duration
}

func timeoutsFor(serverCtx *svc.ServiceContext) routeTimeouts {
	return routeTimeouts{
		Default: defaultTimeout,
		Send:    serverCtx.SendTimeout() + responseMargin,
		History: serverCtx.History.Budget() + responseMargin,
	}
}

func RegisterHandlers(server *rest.Server, serverCtx *svc.ServiceContext) {
	httpx.SetErrorHandlerCtx(ErrorHandler)
	timeouts := timeoutsFor(serverCtx)

	server.AddRoutes(
		[]rest.Route{
			// --- Wallet Routes ---
			{
				Method:  http.MethodPost,
				Path:    "/wallet/connect",
				Handler: WalletConnectHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/wallet/disconnect",
				Handler: WalletDisconnectHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/wallet/select",
				Handler: WalletSelectHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/wallet/refresh",
				Handler: WalletRefreshHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/wallet/state",
				Handler: WalletStateHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/network/detect",
				Handler: NetworkDetectHandler(serverCtx),
			},
			// --- Transfer Routes ---
			{
				Method:  http.MethodPost,
				Path:    "/transfer/estimate",
				Handler: TransferEstimateHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/transfer/detail",
				Handler: TransferDetailHandler(serverCtx),
			},
		},
		rest.WithPrefix("/api/"),
		rest.WithTimeout(timeouts.Default),
	)

	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodPost,
				Path:    "/transfer/send",
				Handler: TransferSendHandler(serverCtx),
			},
		},
		rest.WithPrefix("/api/"),
		rest.WithTimeout(timeouts.Send),
	)

	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodGet,
				Path:    "/transfer/history",
				Handler: TransferHistoryHandler(serverCtx),
			},
		},
		rest.WithPrefix("/api/"),
		rest.WithTimeout(timeouts.History),
	)
}

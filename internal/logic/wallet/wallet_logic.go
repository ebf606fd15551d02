package wallet

import (
	"context"
	"fmt"

	"dualwallet/internal/constant"
	"dualwallet/internal/svc"
	"dualwallet/internal/transfer"
	"dualwallet/internal/types"
	"dualwallet/internal/walletstate"

	"github.com/zeromicro/go-zero/core/logx"
)

type WalletLogic struct {
	ctx    context.Context
	svcCtx *svc.ServiceContext
	logx.Logger
}

func NewWalletLogic(ctx context.Context, svcCtx *svc.ServiceContext) *WalletLogic {
	return &WalletLogic{
		ctx:    ctx,
		svcCtx: svcCtx,
		Logger: logx.WithContext(ctx),
	}
}

// Connect asks the wallet for accounts and stores the derived connection.
func (l *WalletLogic) Connect(req *types.ChainReq) (*types.WalletStateResp, error) {
	c, err := parseChain(req.Chain)
	if err != nil {
		return nil, err
	}
	l.Infof("connecting %s wallet", c)
	conn, err := l.svcCtx.Wallets.Connect(l.ctx, c)
	if err != nil {
		l.Errorf("connect %s wallet failed: %v", c, err)
		return nil, err
	}
	l.Infof("%s wallet connected: %s", c, conn.Address)
	return l.State()
}

func (l *WalletLogic) Disconnect(req *types.ChainReq) (*types.WalletStateResp, error) {
	c, err := parseChain(req.Chain)
	if err != nil {
		return nil, err
	}
	if err := l.svcCtx.Wallets.Disconnect(l.ctx, c); err != nil {
		l.Errorf("disconnect %s wallet failed: %v", c, err)
		return nil, err
	}
	l.Infof("%s wallet disconnected", c)
	return l.State()
}

// Select pins the network mode when both wallets are connected.
func (l *WalletLogic) Select(req *types.ChainReq) (*types.WalletStateResp, error) {
	c, err := parseChain(req.Chain)
	if err != nil {
		return nil, err
	}
	if err := l.svcCtx.Wallets.Select(l.ctx, c); err != nil {
		return nil, err
	}
	return l.State()
}

func (l *WalletLogic) State() (*types.WalletStateResp, error) {
	snap := l.svcCtx.Wallets.Snapshot()
	resp := &types.WalletStateResp{
		L1:           l.connection(snap.L1),
		L2:           l.connection(snap.L2),
		Selected:     string(snap.Selected),
		ModeResolved: snap.ModeResolved,
	}
	if snap.ModeResolved {
		resp.Mode = string(snap.Mode)
	}
	return resp, nil
}

// Refresh re-derives one slot, or both when no chain is given.
func (l *WalletLogic) Refresh(req *types.ChainReq) (*types.WalletStateResp, error) {
	if req.Chain == "" {
		if err := l.svcCtx.Wallets.RefreshAll(l.ctx); err != nil {
			l.Errorf("refresh wallets: %v", err)
			return nil, err
		}
		return l.State()
	}
	c, err := parseChain(req.Chain)
	if err != nil {
		return nil, err
	}
	if _, err := l.svcCtx.Wallets.Refresh(l.ctx, c); err != nil {
		l.Errorf("refresh %s wallet: %v", c, err)
		return nil, err
	}
	return l.State()
}

// DetectNetwork reports which registered network the L2 wallet is on.
func (l *WalletLogic) DetectNetwork() (*types.NetworkDetectResp, error) {
	if l.svcCtx.L2 == nil {
		return nil, &transfer.Error{
			Kind:    transfer.ErrProviderUnavailable,
			Message: "the L2 wallet is not available",
			Hint:    "install or open the L2 wallet extension and connect it",
		}
	}
	det, err := l.svcCtx.Detector.Detect(l.ctx, l.svcCtx.L2)
	if err != nil {
		l.Errorf("detect L2 network: %v", err)
		return nil, &transfer.Error{Kind: transfer.ErrProviderUnavailable, Message: "could not read the L2 chain id", Err: err}
	}

	registry := l.svcCtx.Registry
	target := registry.Primary()
	if n, ok := registry.ByLabel(l.svcCtx.Config.L2.TargetNetwork); ok {
		target = n
	}
	resp := &types.NetworkDetectResp{
		Label:    det.Network.Label,
		Name:     det.Network.Name,
		ChainId:  det.Network.HexChainID(),
		Reported: det.ChainID,
		Known:    det.Known,
		Target:   target.Label,
		OnTarget: det.Known && det.Network.Label == target.Label,
		Symbol:   det.Network.NativeCurrency.Symbol,
	}
	if len(det.Network.ExplorerUrls) > 0 {
		resp.ExplorerUrl = det.Network.ExplorerUrls[0]
	}
	return resp, nil
}

func (l *WalletLogic) connection(conn walletstate.Connection) types.WalletConnection {
	wc := types.WalletConnection{
		Chain:     string(conn.Chain),
		Connected: conn.Connected,
		Address:   conn.Address,
		Balance:   conn.Balance.String(),
		ChainId:   conn.ChainID,
		Phase:     string(l.svcCtx.Orchestrator.Phase(conn.Chain)),
	}
	if conn.NativeBalance.Valid {
		wc.NativeBalance = conn.NativeBalance.Decimal.String()
	}
	if conn.WrappedBalance.Valid {
		wc.WrappedBalance = conn.WrappedBalance.Decimal.String()
	}
	if !conn.UpdatedAt.IsZero() {
		wc.UpdatedAt = conn.UpdatedAt.Unix()
	}
	return wc
}

func parseChain(s string) (constant.Chain, error) {
	c, ok := constant.ParseChain(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", walletstate.ErrUnsupportedChain, s)
	}
	return c, nil
}

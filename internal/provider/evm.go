package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"dualwallet/internal/constant"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/zeromicro/go-zero/core/logx"
)

// EvmRPC is an EvmWalletProvider speaking EIP-1193 style JSON-RPC to a wallet
// endpoint that holds the accounts and signs eth_sendTransaction.
type EvmRPC struct {
	url    string
	dialMu sync.Mutex
	client *rpc.Client
	closed bool
	feed   event.Feed

	mu       sync.Mutex
	primed   bool
	chainID  string
	accounts []string
	logx.Logger
}

// OpenEvm returns a provider for the wallet endpoint without dialing it. The
// connection is made on first use and retried on every later call until it
// succeeds.
func OpenEvm(url string) *EvmRPC {
	return &EvmRPC{
		url:    url,
		Logger: logx.WithContext(context.Background()),
	}
}

// DialEvm connects to the wallet endpoint. An empty url yields
// ErrProviderUnavailable, the equivalent of a wallet that is not injected.
func DialEvm(ctx context.Context, url string) (*EvmRPC, error) {
	p := OpenEvm(url)
	if _, err := p.rpcClient(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func NewEvmRPC(client *rpc.Client) *EvmRPC {
	return &EvmRPC{
		client: client,
		Logger: logx.WithContext(context.Background()),
	}
}

func (p *EvmRPC) Chain() constant.Chain {
	return constant.ChainL2
}

func (p *EvmRPC) Close() {
	p.dialMu.Lock()
	defer p.dialMu.Unlock()
	p.closed = true
	if p.client != nil {
		p.client.Close()
	}
}

func (p *EvmRPC) rpcClient(ctx context.Context) (*rpc.Client, error) {
	p.dialMu.Lock()
	defer p.dialMu.Unlock()
	switch {
	case p.closed:
		return nil, fmt.Errorf("%w: L2 wallet provider closed", ErrProviderUnavailable)
	case p.client != nil:
		return p.client, nil
	case p.url == "":
		return nil, fmt.Errorf("%w: no L2 wallet endpoint configured", ErrProviderUnavailable)
	}
	client, err := rpc.DialContext(ctx, p.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	p.client = client
	return client, nil
}

func (p *EvmRPC) call(ctx context.Context, result any, method string, args ...any) error {
	client, err := p.rpcClient(ctx)
	if err != nil {
		return err
	}
	err = client.CallContext(ctx, result, method, args...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return classify(rpcErr.ErrorCode(), rpcErr.Error())
	}
	return fmt.Errorf("%w: %w: %s: %v", ErrProviderUnavailable, ErrTransport, method, err)
}

func (p *EvmRPC) GetAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.call(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *EvmRPC) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.call(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *EvmRPC) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	var balance hexutil.Big
	if err := p.call(ctx, &balance, "eth_getBalance", address, "latest"); err != nil {
		return nil, err
	}
	return balance.ToInt(), nil
}

// ChainID returns the id exactly as the wallet reported it. Some wallets answer
// with a JSON number instead of a hex quantity.
func (p *EvmRPC) ChainID(ctx context.Context) (string, error) {
	var raw json.RawMessage
	if err := p.call(ctx, &raw, "eth_chainId"); err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", &RPCError{Message: fmt.Sprintf("unexpected eth_chainId result %s", string(raw))}
}

func (p *EvmRPC) LatestBaseFee(ctx context.Context) (*big.Int, error) {
	var head *struct {
		Number  *hexutil.Big `json:"number"`
		BaseFee *hexutil.Big `json:"baseFeePerGas"`
	}
	if err := p.call(ctx, &head, "eth_getBlockByNumber", "latest", false); err != nil {
		return nil, err
	}
	if head == nil {
		return nil, &RPCError{Message: "latest block not available"}
	}
	if head.BaseFee == nil {
		return nil, nil
	}
	return head.BaseFee.ToInt(), nil
}

func (p *EvmRPC) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	arg := map[string]any{
		"from": msg.From,
		"to":   msg.To,
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	if len(msg.Data) > 0 {
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	var gas hexutil.Uint64
	if err := p.call(ctx, &gas, "eth_estimateGas", arg); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

func (p *EvmRPC) GasPrice(ctx context.Context) (*big.Int, error) {
	var price hexutil.Big
	if err := p.call(ctx, &price, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return price.ToInt(), nil
}

func (p *EvmRPC) Call(ctx context.Context, to string, data []byte) ([]byte, error) {
	var out hexutil.Bytes
	arg := map[string]any{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	if err := p.call(ctx, &out, "eth_call", arg, "latest"); err != nil {
		return nil, err
	}
	return out, nil
}

// SendTransaction returns the decoded JSON result untouched: usually a hash
// string, but wallets are free to answer with an object.
func (p *EvmRPC) SendTransaction(ctx context.Context, args TransactionArgs) (any, error) {
	var raw json.RawMessage
	if err := p.call(ctx, &raw, "eth_sendTransaction", args); err != nil {
		return nil, err
	}
	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return string(raw), nil
	}
	return result, nil
}

func (p *EvmRPC) SubscribeEvents(ch chan<- Event) event.Subscription {
	return p.feed.Subscribe(ch)
}

// Watch polls eth_chainId and eth_accounts and emits chainChanged and
// accountsChanged whenever either differs from the previous poll. It returns
// when ctx is done.
func (p *EvmRPC) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = constant.DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *EvmRPC) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	chainID, err := p.ChainID(pollCtx)
	if err != nil {
		p.Errorf("L2 wallet watch: chain id query failed: %v", err)
		return
	}
	accounts, err := p.GetAccounts(pollCtx)
	if err != nil {
		p.Errorf("L2 wallet watch: accounts query failed: %v", err)
		return
	}

	p.mu.Lock()
	chainChanged := p.primed && !strings.EqualFold(p.chainID, chainID)
	accountsChanged := p.primed && !sameAccounts(p.accounts, accounts)
	p.primed = true
	p.chainID = chainID
	p.accounts = accounts
	p.mu.Unlock()

	if chainChanged {
		p.Infof("L2 wallet switched chain to %s", chainID)
		p.feed.Send(Event{Chain: constant.ChainL2, Kind: ChainChanged, Payload: chainID})
	}
	if accountsChanged {
		p.Infof("L2 wallet accounts changed: %v", accounts)
		p.feed.Send(Event{Chain: constant.ChainL2, Kind: AccountsChanged, Payload: accounts})
	}
}

func sameAccounts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"dualwallet/internal/constant"

	"github.com/ethereum/go-ethereum/event"
	"github.com/gorilla/websocket"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"
)

const (
	bridgeConnectTimeout = 10 * time.Second
	bridgeWriteTimeout   = 10 * time.Second
	eventQueueSize       = 64
)

type bridgeRequest struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params,omitempty"`
}

type bridgeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// bridgeMessage is either a response (ID set) or a pushed event (Event set).
type bridgeMessage struct {
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *bridgeError    `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// L1Balance is the getBalance answer of the L1 wallet, in sompi.
type L1Balance struct {
	Confirmed   json.Number `json:"confirmed"`
	Unconfirmed json.Number `json:"unconfirmed"`
	Total       json.Number `json:"total"`
}

// UtxoBridge relays requests to the L1 wallet over a websocket: one JSON
// request per call, responses matched by id, wallet events pushed unsolicited.
// A bridge opened from a url redials on the next call after the connection
// drops.
type UtxoBridge struct {
	url     string
	connMu  sync.Mutex
	cur     *bridgeConn
	stopped bool
	writeMu sync.Mutex

	nextID  atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]chan bridgeMessage

	feed     event.Feed
	events   chan Event
	done     chan struct{}
	doneOnce sync.Once
	logx.Logger
}

// bridgeConn is one websocket session; closed is closed when it ends.
type bridgeConn struct {
	ws        *websocket.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *bridgeConn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

func (c *bridgeConn) alive() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// OpenUtxoBridge returns a bridge for url without dialing it. The connection
// is made on first use.
func OpenUtxoBridge(url string) *UtxoBridge {
	return newBridge(url)
}

// DialUtxoBridge connects to the L1 wallet bridge. An empty url yields
// ErrProviderUnavailable.
func DialUtxoBridge(ctx context.Context, url string) (*UtxoBridge, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: no L1 wallet bridge configured", ErrProviderUnavailable)
	}
	b := newBridge(url)
	if _, err := b.connection(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// NewUtxoBridge wraps an established connection. Such a bridge cannot redial.
func NewUtxoBridge(conn *websocket.Conn) *UtxoBridge {
	b := newBridge("")
	b.cur = b.attach(conn)
	return b
}

func newBridge(url string) *UtxoBridge {
	b := &UtxoBridge{
		url:     url,
		pending: make(map[uint64]chan bridgeMessage),
		events:  make(chan Event, eventQueueSize),
		done:    make(chan struct{}),
		Logger:  logx.WithContext(context.Background()),
	}
	threading.GoSafe(b.fanOut)
	return b
}

func (b *UtxoBridge) Chain() constant.Chain {
	return constant.ChainL1
}

// Connect dials the bridge unless a connection is already up.
func (b *UtxoBridge) Connect(ctx context.Context) error {
	_, err := b.connection(ctx)
	return err
}

func (b *UtxoBridge) Close() error {
	b.connMu.Lock()
	b.stopped = true
	if b.cur != nil {
		b.cur.shutdown()
	}
	b.connMu.Unlock()
	b.doneOnce.Do(func() {
		close(b.done)
	})
	return nil
}

// connection returns the live session, dialing a new one when there is none.
func (b *UtxoBridge) connection(ctx context.Context) (*bridgeConn, error) {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	switch {
	case b.stopped:
		return nil, fmt.Errorf("%w: L1 wallet bridge closed", ErrProviderUnavailable)
	case b.cur != nil && b.cur.alive():
		return b.cur, nil
	case b.url == "":
		return nil, fmt.Errorf("%w: L1 wallet bridge connection lost", ErrProviderUnavailable)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: bridgeConnectTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, b.url, http.Header{})
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("%w: bridge handshake failed with status %d: %v", ErrProviderUnavailable, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if b.cur != nil {
		b.Infof("L1 wallet bridge reconnected to %s", b.url)
	}
	b.cur = b.attach(ws)
	return b.cur, nil
}

func (b *UtxoBridge) attach(ws *websocket.Conn) *bridgeConn {
	c := &bridgeConn{ws: ws, closed: make(chan struct{})}
	threading.GoSafe(func() {
		b.readLoop(c)
	})
	return c
}

func (b *UtxoBridge) readLoop(c *bridgeConn) {
	defer c.shutdown()

	for {
		var msg bridgeMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if c.alive() {
				b.Errorf("L1 wallet bridge read failed: %v", err)
			}
			return
		}

		if msg.Event != "" {
			b.dispatchEvent(msg)
			continue
		}

		b.mu.Lock()
		ch, ok := b.pending[msg.ID]
		delete(b.pending, msg.ID)
		b.mu.Unlock()
		if !ok {
			b.Infof("L1 wallet bridge: dropping response for unknown request %d", msg.ID)
			continue
		}
		ch <- msg
	}
}

// dispatchEvent queues the event for fan-out and never blocks the read loop.
// Every event triggers a full re-derivation, so a dropped one is caught up by
// the next event or poll.
func (b *UtxoBridge) dispatchEvent(msg bridgeMessage) {
	var kind EventKind
	switch msg.Event {
	case "accountsChanged":
		kind = AccountsChanged
	case "networkChanged", "chainChanged":
		kind = ChainChanged
	default:
		b.Infof("L1 wallet bridge: ignoring event %q", msg.Event)
		return
	}

	var payload any
	if len(msg.Data) > 0 {
		_ = json.Unmarshal(msg.Data, &payload)
	}
	select {
	case b.events <- Event{Chain: constant.ChainL1, Kind: kind, Payload: payload}:
	default:
		b.Errorf("L1 wallet bridge: event queue full, dropping %s", kind)
	}
}

func (b *UtxoBridge) fanOut() {
	for {
		select {
		case <-b.done:
			return
		case ev := <-b.events:
			b.feed.Send(ev)
		}
	}
}

func (b *UtxoBridge) request(ctx context.Context, result any, method string, params ...any) error {
	id := b.nextID.Add(1)
	ch := make(chan bridgeMessage, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	c, err := b.connection(ctx)
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(bridgeWriteTimeout))
	err = c.ws.WriteJSON(bridgeRequest{ID: id, Method: method, Params: params})
	b.writeMu.Unlock()
	if err != nil {
		c.shutdown()
		return fmt.Errorf("%w: %w: %s: %v", ErrProviderUnavailable, ErrTransport, method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return fmt.Errorf("%w: %w: bridge connection closed", ErrProviderUnavailable, ErrTransport)
	case msg := <-ch:
		if msg.Error != nil {
			return classify(msg.Error.Code, msg.Error.Message)
		}
		if result == nil {
			return nil
		}
		if len(msg.Result) == 0 {
			return &RPCError{Message: method + " returned no result"}
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

func (b *UtxoBridge) GetAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := b.request(ctx, &accounts, "getAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (b *UtxoBridge) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := b.request(ctx, &accounts, "requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

// GetBalance returns the wallet's total balance. The L1 wallet always reports
// the active account, so address is only used for logging.
func (b *UtxoBridge) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	var balance L1Balance
	if err := b.request(ctx, &balance, "getBalance"); err != nil {
		return nil, err
	}
	total, ok := new(big.Int).SetString(balance.Total.String(), 10)
	if !ok {
		return nil, &RPCError{Message: fmt.Sprintf("invalid balance %q for %s", balance.Total, address)}
	}
	return total, nil
}

// SendNative calls sendKaspa. Depending on the wallet version the answer is a
// txid, a JSON encoded transaction, or an object.
func (b *UtxoBridge) SendNative(ctx context.Context, to string, amount *big.Int) (any, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("amount must be positive")
	}
	var raw json.RawMessage
	if err := b.request(ctx, &raw, "sendKaspa", to, json.Number(amount.String())); err != nil {
		return nil, err
	}
	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return string(raw), nil
	}
	return result, nil
}

func (b *UtxoBridge) SubscribeEvents(ch chan<- Event) event.Subscription {
	return b.feed.Subscribe(ch)
}

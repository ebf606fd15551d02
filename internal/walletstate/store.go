package walletstate

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"dualwallet/internal/chain"
	"dualwallet/internal/constant"
	"dualwallet/internal/provider"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
)

const (
	keySelected     = "selected"
	keyDisconnected = "disconnected:"
)

// balanceOfSelector is the ERC-20 balanceOf(address) selector.
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

var ErrUnsupportedChain = errors.New("unsupported chain")

// Connection is the latest known state of one wallet slot. Balances are in
// display units.
type Connection struct {
	Chain          constant.Chain
	Connected      bool
	Address        string
	Balance        decimal.Decimal
	NativeBalance  decimal.NullDecimal
	WrappedBalance decimal.NullDecimal
	// ChainID is the L2 chain id as reported by the wallet.
	ChainID   string
	UpdatedAt time.Time
}

// Spendable is the balance a native transfer may draw from.
func (c Connection) Spendable() decimal.Decimal {
	if c.NativeBalance.Valid {
		return c.NativeBalance.Decimal
	}
	return c.Balance
}

// Snapshot is a consistent view of both slots and the network mode.
type Snapshot struct {
	L1       Connection
	L2       Connection
	Selected constant.Chain
	Mode     constant.Chain
	// ModeResolved is false when neither or both wallets are connected and
	// nothing was selected.
	ModeResolved bool
}

type Options struct {
	L1 provider.UtxoWalletProvider
	L2 provider.EvmWalletProvider
	// WrappedToken is the L2 ERC-20 whose balance is added to the native one.
	WrappedToken string
	Session      SessionStore
	PollInterval time.Duration
	// RefreshTimeout bounds every re-derivation started by Run.
	RefreshTimeout time.Duration
}

// Store owns both wallet connections. Every write re-derives a slot from the
// provider; nothing is patched incrementally.
type Store struct {
	l1             provider.UtxoWalletProvider
	l2             provider.EvmWalletProvider
	wrappedToken   string
	session        SessionStore
	pollInterval   time.Duration
	refreshTimeout time.Duration

	// slots serialize re-derivations of one slot from polling, events and
	// callers. A waiter gives up when its context ends.
	slots map[constant.Chain]chan struct{}

	mu           sync.RWMutex
	conns        map[constant.Chain]Connection
	selected     constant.Chain
	disconnected map[constant.Chain]bool

	feed event.Feed
	logx.Logger
}

func NewStore(opts Options) *Store {
	if opts.PollInterval <= 0 {
		opts.PollInterval = constant.DefaultPollInterval
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = constant.DefaultRefreshTimeout
	}
	s := &Store{
		l1:             opts.L1,
		l2:             opts.L2,
		wrappedToken:   opts.WrappedToken,
		session:        opts.Session,
		pollInterval:   opts.PollInterval,
		refreshTimeout: opts.RefreshTimeout,
		slots:          make(map[constant.Chain]chan struct{}, len(constant.SupportedChains)),
		conns:          make(map[constant.Chain]Connection, len(constant.SupportedChains)),
		disconnected:   make(map[constant.Chain]bool, len(constant.SupportedChains)),
		Logger:         logx.WithContext(context.Background()),
	}
	for _, c := range constant.SupportedChains {
		s.conns[c] = Connection{Chain: c}
		s.slots[c] = make(chan struct{}, 1)
	}
	return s
}

// Restore loads the session's disconnect flags and selection.
func (s *Store) Restore(ctx context.Context) error {
	if s.session == nil {
		return nil
	}
	var errs []error
	for _, c := range constant.SupportedChains {
		_, found, err := s.session.Get(ctx, keyDisconnected+string(c))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.mu.Lock()
		s.disconnected[c] = found
		s.mu.Unlock()
	}

	selected, found, err := s.session.Get(ctx, keySelected)
	if err != nil {
		errs = append(errs, err)
	} else if found {
		if c, ok := constant.ParseChain(selected); ok {
			s.mu.Lock()
			s.selected = c
			s.mu.Unlock()
		}
	}
	return errors.Join(errs...)
}

// Connect asks the slot's wallet for account access and re-derives the slot.
// It clears a previous user disconnect.
func (s *Store) Connect(ctx context.Context, c constant.Chain) (Connection, error) {
	p, err := s.walletFor(c)
	if err != nil {
		return Connection{}, err
	}

	accounts, err := p.RequestAccounts(ctx)
	if err != nil {
		return Connection{}, err
	}
	if len(accounts) == 0 {
		return Connection{}, fmt.Errorf("%w: the %s wallet granted no accounts", provider.ErrUserRejected, c)
	}

	s.mu.Lock()
	s.disconnected[c] = false
	s.mu.Unlock()
	if s.session != nil {
		if err := s.session.Del(ctx, keyDisconnected+string(c)); err != nil {
			s.Errorf("clear %s disconnect flag: %v", c, err)
		}
	}
	return s.Refresh(ctx, c)
}

// Disconnect clears the slot immediately and remembers the choice for the
// session, so polling does not reconnect it.
func (s *Store) Disconnect(ctx context.Context, c constant.Chain) error {
	if !isSupported(c) {
		return fmt.Errorf("%w: %q", ErrUnsupportedChain, c)
	}

	s.mu.Lock()
	s.disconnected[c] = true
	s.conns[c] = Connection{Chain: c, UpdatedAt: time.Now()}
	if s.selected == c {
		s.selected = ""
	}
	s.mu.Unlock()
	s.notify()

	if s.session == nil {
		return nil
	}
	if err := s.session.Set(ctx, keyDisconnected+string(c), "1"); err != nil {
		return err
	}
	return s.session.Del(ctx, keySelected)
}

// Select makes c the network mode. An empty chain clears the selection so the
// mode is inferred again.
func (s *Store) Select(ctx context.Context, c constant.Chain) error {
	if c != "" && !isSupported(c) {
		return fmt.Errorf("%w: %q", ErrUnsupportedChain, c)
	}

	s.mu.Lock()
	s.selected = c
	s.mu.Unlock()
	s.notify()

	if s.session == nil {
		return nil
	}
	if c == "" {
		return s.session.Del(ctx, keySelected)
	}
	return s.session.Set(ctx, keySelected, string(c))
}

// Mode returns the explicit selection, else the only connected slot.
func (s *Store) Mode() (constant.Chain, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modeLocked()
}

func (s *Store) modeLocked() (constant.Chain, bool) {
	if s.selected != "" {
		return s.selected, true
	}
	l1, l2 := s.conns[constant.ChainL1].Connected, s.conns[constant.ChainL2].Connected
	switch {
	case l1 && !l2:
		return constant.ChainL1, true
	case l2 && !l1:
		return constant.ChainL2, true
	default:
		return "", false
	}
}

func (s *Store) Connection(c constant.Chain) Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conns[c]
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mode, ok := s.modeLocked()
	return Snapshot{
		L1:           s.conns[constant.ChainL1],
		L2:           s.conns[constant.ChainL2],
		Selected:     s.selected,
		Mode:         mode,
		ModeResolved: ok,
	}
}

// Subscribe delivers a snapshot after every change. The channel should be
// buffered and drained; a slow subscriber delays writers.
func (s *Store) Subscribe(ch chan<- Snapshot) event.Subscription {
	return s.feed.Subscribe(ch)
}

func (s *Store) notify() {
	s.feed.Send(s.Snapshot())
}

// Refresh re-derives the slot from its wallet. On a query error the previous
// state is kept and the error returned; when the wallet itself is gone the
// slot is reset to disconnected.
func (s *Store) Refresh(ctx context.Context, c constant.Chain) (Connection, error) {
	if !isSupported(c) {
		return Connection{}, fmt.Errorf("%w: %q", ErrUnsupportedChain, c)
	}

	if err := s.lockSlot(ctx, c); err != nil {
		return s.Connection(c), err
	}
	defer s.unlockSlot(c)

	s.mu.RLock()
	disconnected := s.disconnected[c]
	s.mu.RUnlock()

	p, err := s.walletFor(c)
	if disconnected || err != nil {
		return s.store(Connection{Chain: c, UpdatedAt: time.Now()}), nil
	}

	conn, err := s.derive(ctx, c, p)
	switch {
	case err == nil:
		return s.store(conn), nil
	case ctx.Err() == nil && errors.Is(err, provider.ErrProviderUnavailable):
		s.Errorf("%s wallet unavailable, resetting slot: %v", c, err)
		return s.store(Connection{Chain: c, UpdatedAt: time.Now()}), err
	default:
		return s.Connection(c), err
	}
}

func (s *Store) lockSlot(ctx context.Context, c constant.Chain) error {
	select {
	case s.slots[c] <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for %s refresh: %w", c, ctx.Err())
	}
}

func (s *Store) unlockSlot(c constant.Chain) {
	<-s.slots[c]
}

// RefreshAll re-derives both slots.
func (s *Store) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, c := range constant.SupportedChains {
		if _, err := s.Refresh(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("refresh %s: %w", c, err))
		}
	}
	return errors.Join(errs...)
}

// store writes conn unless the user disconnected the slot meanwhile.
func (s *Store) store(conn Connection) Connection {
	s.mu.Lock()
	if s.disconnected[conn.Chain] {
		conn = Connection{Chain: conn.Chain, UpdatedAt: conn.UpdatedAt}
	}
	s.conns[conn.Chain] = conn
	s.mu.Unlock()
	s.notify()
	return conn
}

func (s *Store) derive(ctx context.Context, c constant.Chain, p provider.WalletProvider) (Connection, error) {
	accounts, err := p.GetAccounts(ctx)
	if err != nil {
		return Connection{}, fmt.Errorf("get %s accounts: %w", c, err)
	}
	if len(accounts) == 0 {
		return Connection{Chain: c, UpdatedAt: time.Now()}, nil
	}
	address := accounts[0]

	balance, err := p.GetBalance(ctx, address)
	if err != nil {
		return Connection{}, fmt.Errorf("get %s balance: %w", c, err)
	}
	native := chain.FromBaseUnits(balance, c.Decimals())

	conn := Connection{
		Chain:     c,
		Connected: true,
		Address:   address,
		Balance:   native,
		UpdatedAt: time.Now(),
	}
	if c != constant.ChainL2 {
		return conn, nil
	}

	conn.NativeBalance = decimal.NewNullDecimal(native)
	chainID, err := s.l2.ChainID(ctx)
	if err != nil {
		return Connection{}, fmt.Errorf("get L2 chain id: %w", err)
	}
	conn.ChainID = chainID

	if s.wrappedToken != "" {
		wrapped, err := s.wrappedBalance(ctx, address)
		if err != nil {
			s.Errorf("read wrapped balance of %s: %v", address, err)
		} else {
			conn.WrappedBalance = decimal.NewNullDecimal(wrapped)
			conn.Balance = native.Add(wrapped)
		}
	}
	return conn, nil
}

func (s *Store) wrappedBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	data := make([]byte, 0, 4+32)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32)...)

	out, err := s.l2.Call(ctx, s.wrappedToken, data)
	if err != nil {
		return decimal.Zero, err
	}
	return chain.FromBaseUnits(new(big.Int).SetBytes(out), constant.L2Decimals), nil
}

func (s *Store) walletFor(c constant.Chain) (provider.WalletProvider, error) {
	switch c {
	case constant.ChainL1:
		if s.l1 != nil {
			return s.l1, nil
		}
	case constant.ChainL2:
		if s.l2 != nil {
			return s.l2, nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChain, c)
	}
	return nil, fmt.Errorf("%w: no %s wallet", provider.ErrProviderUnavailable, c)
}

// Run is the single dispatcher: it re-derives a slot on every wallet event and
// both slots on every poll tick until ctx is done.
func (s *Store) Run(ctx context.Context) {
	events := make(chan provider.Event, 16)
	var subs []event.Subscription
	if s.l1 != nil {
		subs = append(subs, s.l1.SubscribeEvents(events))
	}
	if s.l2 != nil {
		subs = append(subs, s.l2.SubscribeEvents(events))
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	if err := s.refreshAllWithin(ctx); err != nil {
		s.Errorf("initial wallet refresh: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.Infof("%s wallet event %s: %v", ev.Chain, ev.Kind, ev.Payload)
			rctx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
			_, err := s.Refresh(rctx, ev.Chain)
			cancel()
			if err != nil {
				s.Errorf("refresh after %s event: %v", ev.Kind, err)
			}
		case <-ticker.C:
			if err := s.refreshAllWithin(ctx); err != nil {
				s.Errorf("wallet poll: %v", err)
			}
		}
	}
}

// refreshAllWithin gives each slot its own refresh timeout, so one hung wallet
// does not starve the other.
func (s *Store) refreshAllWithin(ctx context.Context) error {
	var errs []error
	for _, c := range constant.SupportedChains {
		rctx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
		_, err := s.Refresh(rctx, c)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("refresh %s: %w", c, err))
		}
	}
	return errors.Join(errs...)
}

func isSupported(c constant.Chain) bool {
	for _, sc := range constant.SupportedChains {
		if sc == c {
			return true
		}
	}
	return false
}

package walletstate

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dualwallet/internal/constant"
	"dualwallet/internal/provider"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

func TestMain(m *testing.M) {
	logx.Disable()
	m.Run()
}

// fakeWallet serves as either the L1 or the L2 wallet.
type fakeWallet struct {
	mu         sync.Mutex
	chain      constant.Chain
	accounts   []string
	balance    *big.Int
	balanceErr error
	requestErr error
	chainID    string
	wrapped    *big.Int
	callData   []byte
	feed       event.Feed

	// block makes GetBalance wait for its context.
	block   bool
	waiting atomic.Int32
}

func (f *fakeWallet) Chain() constant.Chain { return f.chain }

func (f *fakeWallet) GetAccounts(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.accounts...), nil
}

func (f *fakeWallet) RequestAccounts(ctx context.Context) ([]string, error) {
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return f.GetAccounts(ctx)
}

func (f *fakeWallet) GetBalance(ctx context.Context, _ string) (*big.Int, error) {
	f.mu.Lock()
	if f.block {
		f.mu.Unlock()
		f.waiting.Add(1)
		defer f.waiting.Add(-1)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeWallet) SubscribeEvents(ch chan<- provider.Event) event.Subscription {
	return f.feed.Subscribe(ch)
}

func (f *fakeWallet) SendNative(context.Context, string, *big.Int) (any, error) {
	return nil, errors.New("not used")
}

func (f *fakeWallet) ChainID(context.Context) (string, error) { return f.chainID, nil }

func (f *fakeWallet) LatestBaseFee(context.Context) (*big.Int, error) { return nil, nil }

func (f *fakeWallet) EstimateGas(context.Context, provider.CallMsg) (uint64, error) {
	return 21000, nil
}

func (f *fakeWallet) GasPrice(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeWallet) Call(_ context.Context, _ string, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callData = data
	if f.wrapped == nil {
		return nil, errors.New("execution reverted")
	}
	out := make([]byte, 32)
	f.wrapped.FillBytes(out)
	return out, nil
}

func (f *fakeWallet) SendTransaction(context.Context, provider.TransactionArgs) (any, error) {
	return nil, errors.New("not used")
}

func (f *fakeWallet) setAccounts(accounts ...string) {
	f.mu.Lock()
	f.accounts = accounts
	f.mu.Unlock()
}

const (
	l1Address = "kaspa:qz0s9f8xqz8c9a4k7"
	l2Address = "0x52908400098527886E0F7030069857D2E4169EE7"
)

func newWallets() (*fakeWallet, *fakeWallet) {
	l1 := &fakeWallet{chain: constant.ChainL1, accounts: []string{l1Address}, balance: big.NewInt(500_000_000)}
	l2 := &fakeWallet{
		chain:    constant.ChainL2,
		accounts: []string{l2Address},
		balance:  new(big.Int).Mul(big.NewInt(2), big.NewInt(1_000_000_000_000_000_000)),
		chainID:  "0x31d9b",
	}
	return l1, l2
}

func newTestSession(t *testing.T) SessionStore {
	session, err := NewMemorySession(time.Hour)
	require.NoError(t, err)
	return session
}

func TestConnectAndModeInference(t *testing.T) {
	l1, l2 := newWallets()
	s := NewStore(Options{L1: l1, L2: l2, Session: newTestSession(t)})
	ctx := context.Background()

	_, ok := s.Mode()
	assert.False(t, ok)

	conn, err := s.Connect(ctx, constant.ChainL1)
	require.NoError(t, err)
	assert.True(t, conn.Connected)
	assert.Equal(t, l1Address, conn.Address)
	assert.Equal(t, "5", conn.Balance.String())
	assert.False(t, conn.NativeBalance.Valid)

	mode, ok := s.Mode()
	require.True(t, ok)
	assert.Equal(t, constant.ChainL1, mode)

	_, err = s.Connect(ctx, constant.ChainL2)
	require.NoError(t, err)
	_, ok = s.Mode()
	assert.False(t, ok, "both connected without a selection is ambiguous")

	require.NoError(t, s.Select(ctx, constant.ChainL2))
	snap := s.Snapshot()
	assert.True(t, snap.ModeResolved)
	assert.Equal(t, constant.ChainL2, snap.Mode)
	assert.Equal(t, "0x31d9b", snap.L2.ChainID)

	require.NoError(t, s.Select(ctx, ""))
	_, ok = s.Mode()
	assert.False(t, ok)

	assert.ErrorIs(t, s.Select(ctx, "L3"), ErrUnsupportedChain)
}

func TestConnectFailures(t *testing.T) {
	l1, _ := newWallets()
	l1.requestErr = provider.ErrUserRejected
	s := NewStore(Options{L1: l1})

	_, err := s.Connect(context.Background(), constant.ChainL1)
	assert.ErrorIs(t, err, provider.ErrUserRejected)

	_, err = s.Connect(context.Background(), constant.ChainL2)
	assert.ErrorIs(t, err, provider.ErrProviderUnavailable)

	conn, err := s.Refresh(context.Background(), constant.ChainL2)
	require.NoError(t, err)
	assert.False(t, conn.Connected)
}

func TestWrappedBalance(t *testing.T) {
	_, l2 := newWallets()
	l2.wrapped = big.NewInt(500_000_000_000_000_000)
	s := NewStore(Options{L2: l2, WrappedToken: "0x8617E340B3D01FA5F11F306F4090FD50E238070D"})

	conn, err := s.Refresh(context.Background(), constant.ChainL2)
	require.NoError(t, err)
	assert.Equal(t, "2.5", conn.Balance.String())
	assert.Equal(t, "2", conn.NativeBalance.Decimal.String())
	assert.Equal(t, "0.5", conn.WrappedBalance.Decimal.String())
	assert.Equal(t, "2", conn.Spendable().String())

	require.Len(t, l2.callData, 36)
	assert.Equal(t, balanceOfSelector, l2.callData[:4])

	// a failing token call degrades to the native balance
	l2.wrapped = nil
	conn, err = s.Refresh(context.Background(), constant.ChainL2)
	require.NoError(t, err)
	assert.Equal(t, "2", conn.Balance.String())
	assert.False(t, conn.WrappedBalance.Valid)
}

func TestRefreshResetsOnZeroAccountsAndKeepsStateOnError(t *testing.T) {
	l1, _ := newWallets()
	s := NewStore(Options{L1: l1})
	ctx := context.Background()

	_, err := s.Refresh(ctx, constant.ChainL1)
	require.NoError(t, err)

	l1.mu.Lock()
	l1.balanceErr = errors.New("bridge timeout")
	l1.mu.Unlock()
	conn, err := s.Refresh(ctx, constant.ChainL1)
	require.Error(t, err)
	assert.True(t, conn.Connected, "previous state is kept on error")

	l1.setAccounts()
	conn, err = s.Refresh(ctx, constant.ChainL1)
	require.NoError(t, err)
	assert.False(t, conn.Connected)
	assert.True(t, conn.Balance.IsZero())
}

func TestRefreshResetsSlotWhenWalletIsGone(t *testing.T) {
	l1, l2 := newWallets()
	s := NewStore(Options{L1: l1, L2: l2})
	ctx := context.Background()
	require.NoError(t, s.RefreshAll(ctx))

	l1.mu.Lock()
	l1.balanceErr = fmt.Errorf("%w: bridge connection closed", provider.ErrProviderUnavailable)
	l1.mu.Unlock()
	conn, err := s.Refresh(ctx, constant.ChainL1)
	assert.ErrorIs(t, err, provider.ErrProviderUnavailable)
	assert.False(t, conn.Connected)
	assert.Empty(t, conn.Address)
	mode, ok := s.Mode()
	require.True(t, ok)
	assert.Equal(t, constant.ChainL2, mode)

	// the wallet comes back; no user disconnect was recorded
	l1.mu.Lock()
	l1.balanceErr = nil
	l1.mu.Unlock()
	conn, err = s.Refresh(ctx, constant.ChainL1)
	require.NoError(t, err)
	assert.True(t, conn.Connected)
	assert.Equal(t, l1Address, conn.Address)
}

func TestRefreshDoesNotWaitForStuckDispatcher(t *testing.T) {
	l1, _ := newWallets()
	l1.block = true
	s := NewStore(Options{L1: l1, PollInterval: time.Hour, RefreshTimeout: 2 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// the dispatcher holds the L1 slot inside a balance query
	require.Eventually(t, func() bool {
		return l1.waiting.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	rctx, rcancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer rcancel()
	start := time.Now()
	_, err := s.Refresh(rctx, constant.ChainL1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	// once its own timeout fires the dispatcher is free again
	l1.mu.Lock()
	l1.block = false
	l1.mu.Unlock()
	l1.feed.Send(provider.Event{Chain: constant.ChainL1, Kind: provider.AccountsChanged})
	require.Eventually(t, func() bool {
		return s.Connection(constant.ChainL1).Connected
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDisconnectSurvivesRestore(t *testing.T) {
	l1, l2 := newWallets()
	session := newTestSession(t)
	ctx := context.Background()

	s := NewStore(Options{L1: l1, L2: l2, Session: session})
	require.NoError(t, s.RefreshAll(ctx))
	require.NoError(t, s.Select(ctx, constant.ChainL1))
	require.NoError(t, s.Disconnect(ctx, constant.ChainL1))

	assert.False(t, s.Connection(constant.ChainL1).Connected)
	mode, ok := s.Mode()
	require.True(t, ok)
	assert.Equal(t, constant.ChainL2, mode)

	// polling does not bring the slot back
	conn, err := s.Refresh(ctx, constant.ChainL1)
	require.NoError(t, err)
	assert.False(t, conn.Connected)

	restarted := NewStore(Options{L1: l1, L2: l2, Session: session})
	require.NoError(t, restarted.Restore(ctx))
	require.NoError(t, restarted.RefreshAll(ctx))
	assert.False(t, restarted.Connection(constant.ChainL1).Connected)
	assert.True(t, restarted.Connection(constant.ChainL2).Connected)

	_, err = restarted.Connect(ctx, constant.ChainL1)
	require.NoError(t, err)
	assert.True(t, restarted.Connection(constant.ChainL1).Connected)

	again := NewStore(Options{L1: l1, L2: l2, Session: session})
	require.NoError(t, again.Restore(ctx))
	require.NoError(t, again.RefreshAll(ctx))
	assert.True(t, again.Connection(constant.ChainL1).Connected)
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	l1, _ := newWallets()
	s := NewStore(Options{L1: l1})

	ch := make(chan Snapshot, 8)
	sub := s.Subscribe(ch)
	defer sub.Unsubscribe()

	_, err := s.Refresh(context.Background(), constant.ChainL1)
	require.NoError(t, err)

	select {
	case snap := <-ch:
		assert.True(t, snap.L1.Connected)
		assert.Equal(t, constant.ChainL1, snap.Mode)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestRunReactsToWalletEvents(t *testing.T) {
	l1, l2 := newWallets()
	s := NewStore(Options{L1: l1, L2: l2, PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return s.Connection(constant.ChainL2).Connected
	}, 2*time.Second, 10*time.Millisecond)

	const switched = "0x8617E340B3D01FA5F11F306F4090FD50E238070D"
	l2.setAccounts(switched)
	l2.feed.Send(provider.Event{Chain: constant.ChainL2, Kind: provider.AccountsChanged, Payload: []string{switched}})

	require.Eventually(t, func() bool {
		return s.Connection(constant.ChainL2).Address == switched
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	// unsubscribed on exit, so sending no longer blocks on the dispatcher
	assert.Equal(t, 0, l2.feed.Send(provider.Event{Chain: constant.ChainL2, Kind: provider.ChainChanged}))
}

func TestRedisSession(t *testing.T) {
	mr := miniredis.RunT(t)
	rds := redis.MustNewRedis(redis.RedisConf{Host: mr.Addr(), Type: redis.NodeType})
	session := NewRedisSession(rds, "wallet:", time.Minute)
	ctx := context.Background()

	_, found, err := session.Get(ctx, "selected")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, session.Set(ctx, "selected", "L2"))
	v, found, err := session.Get(ctx, "selected")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "L2", v)
	assert.True(t, mr.Exists("wallet:selected"))

	mr.FastForward(2 * time.Minute)
	_, found, err = session.Get(ctx, "selected")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, session.Set(ctx, "disconnected:L1", "1"))
	require.NoError(t, session.Del(ctx, "disconnected:L1"))
	assert.False(t, mr.Exists("wallet:disconnected:L1"))
}

func TestStoreWithRedisSession(t *testing.T) {
	mr := miniredis.RunT(t)
	rds := redis.MustNewRedis(redis.RedisConf{Host: mr.Addr(), Type: redis.NodeType})
	session := NewRedisSession(rds, "wallet:", time.Hour)
	l1, l2 := newWallets()
	ctx := context.Background()

	s := NewStore(Options{L1: l1, L2: l2, Session: session})
	require.NoError(t, s.Disconnect(ctx, constant.ChainL2))
	assert.True(t, mr.Exists("wallet:disconnected:L2"))

	restarted := NewStore(Options{L1: l1, L2: l2, Session: session})
	require.NoError(t, restarted.Restore(ctx))
	require.NoError(t, restarted.RefreshAll(ctx))
	assert.False(t, restarted.Connection(constant.ChainL2).Connected)
	assert.True(t, restarted.Connection(constant.ChainL1).Connected)
}

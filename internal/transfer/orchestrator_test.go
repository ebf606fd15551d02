package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"dualwallet/internal/chain"
	"dualwallet/internal/constant"
	"dualwallet/internal/fee"
	"dualwallet/internal/model"
	"dualwallet/internal/network"
	"dualwallet/internal/provider"
	"dualwallet/internal/walletstate"

	"github.com/ethereum/go-ethereum/event"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/logx"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	logx.Disable()
	m.Run()
}

const (
	l1From      = "kaspa:qpsender0000000000000000000000000000000000000000000"
	l1To        = "kaspa:qprecipient000000000000000000000000000000000000000"
	l2From      = "0x52908400098527886E0F7030069857D2E4169EE7"
	l2To        = "0x8617E340B3D01FA5F11F306F4090FD50E238070D"
	l1TxHash    = "4c0f7d7cbf1b1fb0a4e2ae3d55b2a3b5a2f0e6c1d3b4a5968778695a4b3c2d1e"
	l2TxHashHex = "0x9fc76417374aa880d4449a1f7f31ec597f00b1f6f3dd2d66f4c9c6c445836d8b"
)

type fakeState struct {
	mu        sync.Mutex
	conns     map[constant.Chain]walletstate.Connection
	selected  constant.Chain
	refreshes int
}

func newFakeState() *fakeState {
	return &fakeState{conns: map[constant.Chain]walletstate.Connection{
		constant.ChainL1: {Chain: constant.ChainL1},
		constant.ChainL2: {Chain: constant.ChainL2},
	}}
}

func (s *fakeState) connectL1(balance string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[constant.ChainL1] = walletstate.Connection{
		Chain:     constant.ChainL1,
		Connected: true,
		Address:   l1From,
		Balance:   decimal.RequireFromString(balance),
	}
}

func (s *fakeState) connectL2(native string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := decimal.RequireFromString(native)
	s.conns[constant.ChainL2] = walletstate.Connection{
		Chain:          constant.ChainL2,
		Connected:      true,
		Address:        l2From,
		Balance:        d.Add(decimal.NewFromInt(100)),
		NativeBalance:  decimal.NewNullDecimal(d),
		WrappedBalance: decimal.NewNullDecimal(decimal.NewFromInt(100)),
	}
}

func (s *fakeState) disconnect(c constant.Chain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = walletstate.Connection{Chain: c}
}

func (s *fakeState) Mode() (constant.Chain, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected != "" {
		return s.selected, true
	}
	l1, l2 := s.conns[constant.ChainL1].Connected, s.conns[constant.ChainL2].Connected
	if l1 != l2 {
		if l1 {
			return constant.ChainL1, true
		}
		return constant.ChainL2, true
	}
	return "", false
}

func (s *fakeState) Connection(c constant.Chain) walletstate.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[c]
}

func (s *fakeState) Refresh(_ context.Context, c constant.Chain) (walletstate.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	return s.conns[c], nil
}

type fakeRecords struct {
	mu      sync.Mutex
	err     error
	records []*model.TransferRecord
}

func (r *fakeRecords) Insert(_ context.Context, data *model.TransferRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	data.Id = int64(len(r.records) + 1)
	r.records = append(r.records, data)
	return nil
}

func (r *fakeRecords) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func subscribeNothing() event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	})
}

type fakeL1 struct {
	mu    sync.Mutex
	sent  []*big.Int
	sendF func(ctx context.Context, to string, amount *big.Int) (any, error)
}

func (f *fakeL1) Chain() constant.Chain                          { return constant.ChainL1 }
func (f *fakeL1) GetAccounts(context.Context) ([]string, error)     { return []string{l1From}, nil }
func (f *fakeL1) RequestAccounts(context.Context) ([]string, error) { return []string{l1From}, nil }
func (f *fakeL1) GetBalance(context.Context, string) (*big.Int, error) {
	return big.NewInt(500_000_000), nil
}
func (f *fakeL1) SubscribeEvents(chan<- provider.Event) event.Subscription { return subscribeNothing() }

func (f *fakeL1) SendNative(ctx context.Context, to string, amount *big.Int) (any, error) {
	f.mu.Lock()
	f.sent = append(f.sent, amount)
	sendF := f.sendF
	f.mu.Unlock()
	if sendF != nil {
		return sendF(ctx, to, amount)
	}
	return map[string]any{"id": l1TxHash}, nil
}

func (f *fakeL1) sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeL2 struct {
	mu       sync.Mutex
	chainID  string
	baseFee  *big.Int
	gasPrice *big.Int
	gasErr   error
	sent     []provider.TransactionArgs
	sendF    func(args provider.TransactionArgs) (any, error)
}

func (f *fakeL2) Chain() constant.Chain                          { return constant.ChainL2 }
func (f *fakeL2) GetAccounts(context.Context) ([]string, error)     { return []string{l2From}, nil }
func (f *fakeL2) RequestAccounts(context.Context) ([]string, error) { return []string{l2From}, nil }
func (f *fakeL2) GetBalance(context.Context, string) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeL2) SubscribeEvents(chan<- provider.Event) event.Subscription { return subscribeNothing() }
func (f *fakeL2) ChainID(context.Context) (string, error)                  { return f.chainID, nil }
func (f *fakeL2) LatestBaseFee(context.Context) (*big.Int, error)          { return f.baseFee, nil }
func (f *fakeL2) EstimateGas(context.Context, provider.CallMsg) (uint64, error) {
	if f.gasErr != nil {
		return 0, f.gasErr
	}
	return 21000, nil
}
func (f *fakeL2) GasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }
func (f *fakeL2) Call(context.Context, string, []byte) ([]byte, error) {
	return make([]byte, 32), nil
}

func (f *fakeL2) SendTransaction(_ context.Context, args provider.TransactionArgs) (any, error) {
	f.mu.Lock()
	f.sent = append(f.sent, args)
	sendF := f.sendF
	f.mu.Unlock()
	if sendF != nil {
		return sendF(args)
	}
	return l2TxHashHex, nil
}

type fixture struct {
	state   *fakeState
	records *fakeRecords
	l1      *fakeL1
	l2      *fakeL2
	orch    *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		state:   newFakeState(),
		records: &fakeRecords{},
		l1:      &fakeL1{},
		l2: &fakeL2{
			chainID:  "0x31D9B",
			baseFee:  big.NewInt(1_000_000_000),
			gasPrice: big.NewInt(2_000_000_000),
		},
	}
	f.orch = NewOrchestrator(Deps{
		Config: Config{
			L1ExplorerUrl:   "https://explorer.kaspa.org/",
			L1EstimatedTime: "~10 seconds",
			L2EstimatedTime: "~15 seconds",
		},
		Validator: chain.NewValidator(""),
		Estimator: fee.NewEstimator(decimal.Zero),
		Detector:  network.NewDetector(network.MustNewRegistry(network.LabelMainnet, network.Builtin()...)),
		State:     f.state,
		Records:   f.records,
		L1:        f.l1,
		L2:        f.l2,
	})
	return f
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSendL1Completes(t *testing.T) {
	f := newFixture()
	f.state.connectL1("5.0")

	res, err := f.orch.Send(context.Background(), Request{Recipient: l1To, Amount: amount("1.5")})
	require.NoError(t, err)

	assert.Equal(t, PhaseCompleted, res.Phase)
	assert.Equal(t, constant.ChainL1, res.Chain)
	assert.Equal(t, l1TxHash, res.TxID)
	assert.False(t, res.FormatWarning)
	assert.True(t, res.Recorded)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "https://explorer.kaspa.org/txs/"+l1TxHash, res.ExplorerUrl)

	require.Len(t, f.l1.sent, 1)
	assert.Equal(t, int64(150_000_000), f.l1.sent[0].Int64())

	require.Len(t, f.records.records, 1)
	rec := f.records.records[0]
	assert.Equal(t, "kaspa-mainnet", rec.FromNetwork)
	assert.Equal(t, rec.FromNetwork, rec.ToNetwork)
	assert.Equal(t, l1From, rec.FromAddress)
	assert.Equal(t, l1To, rec.ToAddress)
	assert.Equal(t, "1.5", rec.Amount)
	assert.Equal(t, "0.0015", rec.Fee)
	assert.Equal(t, "KAS", rec.TokenSymbol)
	assert.Equal(t, model.TransferStatusCompleted, rec.Status)
	assert.Equal(t, "~10 seconds", rec.EstimatedTime)

	assert.Equal(t, 1, f.state.refreshes)
	assert.Equal(t, PhaseCompleted, f.orch.Phase(constant.ChainL1))
	assert.Equal(t, PhaseIdle, f.orch.Phase(constant.ChainL2))
}

func TestSendRejectsBelowMinimumBeforeProviderCall(t *testing.T) {
	f := newFixture()
	f.state.connectL1("5.0")

	res, err := f.orch.Send(context.Background(), Request{Recipient: l1To, Amount: amount("0.005")})
	require.ErrorIs(t, err, ErrValidation)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "below the minimum of 0.01")
	assert.Zero(t, f.l1.sends())
	assert.Zero(t, f.records.count())
	assert.Equal(t, PhaseFailed, f.orch.Phase(constant.ChainL1))
}

func TestSendValidation(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		req   Request
		kind  error
	}{
		{
			name:  "no network",
			setup: func(*fixture) {},
			req:   Request{Recipient: l1To, Amount: amount("1")},
			kind:  ErrNetworkUnresolved,
		},
		{
			name:  "not connected",
			setup: func(f *fixture) { f.state.connectL1("5") },
			req:   Request{Mode: constant.ChainL2, Recipient: l2To, Amount: amount("1")},
			kind:  ErrWalletDisconnected,
		},
		{
			name:  "unsupported mode",
			setup: func(f *fixture) { f.state.connectL1("5") },
			req:   Request{Mode: "L3", Recipient: l1To, Amount: amount("1")},
			kind:  ErrValidation,
		},
		{
			name:  "bad L1 address",
			setup: func(f *fixture) { f.state.connectL1("5") },
			req:   Request{Recipient: "kaspatest:qqqq", Amount: amount("1")},
			kind:  ErrValidation,
		},
		{
			name:  "bad L2 address",
			setup: func(f *fixture) { f.state.connectL2("5") },
			req:   Request{Recipient: "0x1234", Amount: amount("1")},
			kind:  ErrValidation,
		},
		{
			name:  "exceeds balance",
			setup: func(f *fixture) { f.state.connectL1("5") },
			req:   Request{Recipient: l1To, Amount: amount("5.00000001")},
			kind:  ErrValidation,
		},
		{
			name:  "wrapped balance is not spendable",
			setup: func(f *fixture) { f.state.connectL2("5") },
			req:   Request{Recipient: l2To, Amount: amount("50")},
			kind:  ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)
			_, err := f.orch.Send(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.kind)
			assert.Zero(t, f.l1.sends())
			assert.Empty(t, f.l2.sent)
		})
	}
}

func TestSendRejectsConcurrentSubmission(t *testing.T) {
	f := newFixture()
	f.state.connectL1("5")

	entered := make(chan struct{})
	release := make(chan struct{})
	f.l1.sendF = func(ctx context.Context, to string, amount *big.Int) (any, error) {
		close(entered)
		<-release
		return l1TxHash, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.Send(context.Background(), Request{Recipient: l1To, Amount: amount("1")})
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first transfer never reached the wallet")
	}
	assert.Equal(t, PhaseSubmitting, f.orch.Phase(constant.ChainL1))

	_, err := f.orch.Send(context.Background(), Request{Recipient: l1To, Amount: amount("1")})
	require.ErrorIs(t, err, ErrTransferInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.l1.sends())
	assert.Equal(t, 1, f.records.count())

	// the slot is free again once the first transfer settled
	f.l1.sendF = nil
	_, err = f.orch.Send(context.Background(), Request{Recipient: l1To, Amount: amount("1")})
	require.NoError(t, err)
	assert.Equal(t, 2, f.records.count())
}

func TestSendL2ProceedsOnTargetNetwork(t *testing.T) {
	f := newFixture()
	f.state.connectL2("5")

	res, err := f.orch.Send(context.Background(), Request{Recipient: l2To, Amount: amount("1.25")})
	require.NoError(t, err)
	assert.Equal(t, l2TxHashHex, res.TxID)
	assert.Equal(t, fee.KindEip1559, res.Quote.Kind)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "https://explorer.kasplex.org/tx/"+l2TxHashHex, res.ExplorerUrl)

	require.Len(t, f.l2.sent, 1)
	args := f.l2.sent[0]
	assert.True(t, args.IsDynamicFee())
	assert.Equal(t, l2From, args.From)
	assert.Equal(t, l2To, args.To)
	assert.Equal(t, "1250000000000000000", args.Value.ToInt().String())
	assert.Equal(t, uint64(25200), uint64(*args.Gas))

	require.Len(t, f.records.records, 1)
	rec := f.records.records[0]
	assert.Equal(t, "Kasplex L2 Mainnet", rec.FromNetwork)
	assert.Equal(t, "KAS", rec.TokenSymbol)
	assert.Equal(t, "~15 seconds", rec.EstimatedTime)
}

func TestSendL2NetworkMismatchBlocksSubmission(t *testing.T) {
	f := newFixture()
	f.state.connectL2("5")
	f.l2.chainID = "0x28D74"

	_, err := f.orch.Send(context.Background(), Request{Recipient: l2To, Amount: amount("1")})
	require.ErrorIs(t, err, ErrNetworkMismatch)
	assert.Contains(t, err.Error(), "mainnet")

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Hint, "mainnet")
	assert.Empty(t, f.l2.sent)
	assert.Zero(t, f.records.count())
}

func TestSendL2UnknownNetworkWarns(t *testing.T) {
	f := newFixture()
	f.state.connectL2("5")
	f.l2.chainID = "0x1"

	res, err := f.orch.Send(context.Background(), Request{Recipient: l2To, Amount: amount("1")})
	require.NoError(t, err)
	assert.Contains(t, res.Warnings, WarningVerifyNetwork)
	assert.True(t, res.Recorded)
}

func TestSendL2FallbackCreatesOneRecord(t *testing.T) {
	f := newFixture()
	f.state.connectL2("5")
	f.l2.sendF = func(args provider.TransactionArgs) (any, error) {
		if args.IsDynamicFee() {
			return nil, &provider.RPCError{Code: -32000, Message: "eip-1559 transactions not supported"}
		}
		return map[string]any{"hash": l2TxHashHex}, nil
	}

	res, err := f.orch.Send(context.Background(), Request{Recipient: l2To, Amount: amount("1")})
	require.NoError(t, err)
	assert.Equal(t, fee.KindLegacy, res.Quote.Kind)
	assert.Equal(t, l2TxHashHex, res.TxID)

	require.Len(t, f.l2.sent, 2)
	assert.NotNil(t, f.l2.sent[1].GasPrice)
	assert.Equal(t, "2400000000", f.l2.sent[1].GasPrice.ToInt().String())
	assert.Equal(t, 1, f.records.count())
}

func TestSendL2GasEstimationFailureWarns(t *testing.T) {
	f := newFixture()
	f.state.connectL2("5")
	f.l2.gasErr = errors.New("execution reverted")

	res, err := f.orch.Send(context.Background(), Request{Recipient: l2To, Amount: amount("1")})
	require.NoError(t, err)
	require.Len(t, f.l2.sent, 1)
	assert.Equal(t, uint64(21000), uint64(*f.l2.sent[0].Gas))
	require.Len(t, res.Warnings, 1)
	assert.True(t, strings.HasPrefix(res.Warnings[0], ErrGasEstimationFailed.Error()))
}

func TestSendPersistenceFailureIsNotATransferFailure(t *testing.T) {
	f := newFixture()
	f.state.connectL1("5")
	f.records.err = errors.New("connection refused")

	res, err := f.orch.Send(context.Background(), Request{Recipient: l1To, Amount: amount("1")})
	require.ErrorIs(t, err, ErrPersistenceFailed)
	require.NotNil(t, res)
	assert.Equal(t, PhaseCompleted, res.Phase)
	assert.False(t, res.Recorded)
	assert.Equal(t, l1TxHash, res.TxID)
	assert.Contains(t, res.Warnings, WarningNotRecorded)
	assert.Equal(t, 1, f.state.refreshes)
	assert.Equal(t, PhaseCompleted, f.orch.Phase(constant.ChainL1))
}

func TestSendWalletDisconnectedMidFlight(t *testing.T) {
	f := newFixture()
	f.state.connectL1("5")
	f.l1.sendF = func(ctx context.Context, to string, amount *big.Int) (any, error) {
		f.state.disconnect(constant.ChainL1)
		return l1TxHash, nil
	}

	res, err := f.orch.Send(context.Background(), Request{Recipient: l1To, Amount: amount("1")})
	require.ErrorIs(t, err, ErrWalletDisconnected)
	require.NotNil(t, res)
	assert.Equal(t, PhaseFailed, res.Phase)
	assert.Equal(t, l1TxHash, res.TxID)
	assert.Zero(t, f.records.count())
	assert.Equal(t, PhaseFailed, f.orch.Phase(constant.ChainL1))
}

func TestSendUserRejectionIsNotRetried(t *testing.T) {
	f := newFixture()
	f.state.connectL2("5")
	f.l2.sendF = func(provider.TransactionArgs) (any, error) {
		return nil, fmt.Errorf("%w: User denied transaction signature", provider.ErrUserRejected)
	}

	_, err := f.orch.Send(context.Background(), Request{Recipient: l2To, Amount: amount("1")})
	require.ErrorIs(t, err, ErrUserRejected)
	assert.Equal(t, ErrUserRejected, KindOf(err))
	assert.Len(t, f.l2.sent, 1)
	assert.Zero(t, f.records.count())
}

func TestSendSubmissionFailureCarriesHint(t *testing.T) {
	f := newFixture()
	f.state.connectL1("5")
	f.l1.sendF = func(context.Context, string, *big.Int) (any, error) {
		return nil, fmt.Errorf("%w: not enough mature utxos", provider.ErrInsufficientBalance)
	}

	_, err := f.orch.Send(context.Background(), Request{Recipient: l1To, Amount: amount("1")})
	require.ErrorIs(t, err, ErrSubmissionFailed)
	require.ErrorIs(t, err, provider.ErrInsufficientBalance)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Message, "not enough mature utxos")
	assert.Contains(t, terr.Hint, "L1")
}

func TestSendMissingTransactionID(t *testing.T) {
	f := newFixture()
	f.state.connectL1("5")
	f.l1.sendF = func(context.Context, string, *big.Int) (any, error) {
		return map[string]any{}, nil
	}

	res, err := f.orch.Send(context.Background(), Request{Recipient: l1To, Amount: amount("1")})
	require.ErrorIs(t, err, ErrTransactionIdMissing)
	require.NotNil(t, res)
	assert.Equal(t, PhaseFailed, res.Phase)
	assert.Zero(t, f.records.count())
}

func TestSendFlagsMalformedID(t *testing.T) {
	f := newFixture()
	f.state.connectL1("5")
	f.l1.sendF = func(context.Context, string, *big.Int) (any, error) {
		return "%7B%22txid%22%3A%22abc%22%7D", nil
	}

	res, err := f.orch.Send(context.Background(), Request{Recipient: l1To, Amount: amount("1")})
	require.NoError(t, err)
	assert.Equal(t, "abc", res.TxID)
	assert.True(t, res.FormatWarning)
	assert.Len(t, res.Warnings, 1)
	assert.True(t, res.Recorded)
}

func TestEstimate(t *testing.T) {
	f := newFixture()
	f.state.connectL1("5")
	f.state.connectL2("5")
	f.l2.baseFee = nil

	intent, err := f.orch.Estimate(context.Background(), Request{Mode: constant.ChainL1, Recipient: l1To, Amount: amount("2")})
	require.NoError(t, err)
	assert.Equal(t, fee.KindFlatPercent, intent.Quote.Kind)
	assert.Equal(t, "0.002", intent.EstimatedFee.String())
	assert.Equal(t, int64(200_000_000), intent.BaseAmount.Int64())

	intent, err = f.orch.Estimate(context.Background(), Request{Mode: constant.ChainL2, Recipient: l2To, Amount: amount("2")})
	require.NoError(t, err)
	assert.Equal(t, fee.KindLegacy, intent.Quote.Kind)
	assert.Equal(t, "2400000000", intent.Quote.GasPrice.String())
	assert.Equal(t, network.LabelMainnet, intent.Detected.Network.Label)

	assert.Zero(t, f.l1.sends())
	assert.Empty(t, f.l2.sent)
	assert.Equal(t, PhaseIdle, f.orch.Phase(constant.ChainL1))
}

func TestProviderUnavailable(t *testing.T) {
	state := newFakeState()
	state.connectL1("5")
	orch := NewOrchestrator(Deps{
		Validator: chain.NewValidator(""),
		Estimator: fee.NewEstimator(decimal.Zero),
		Detector:  network.NewDetector(network.MustNewRegistry(network.LabelMainnet, network.Builtin()...)),
		State:     state,
		Records:   &fakeRecords{},
	})

	_, err := orch.Send(context.Background(), Request{Recipient: l1To, Amount: amount("1")})
	require.ErrorIs(t, err, ErrProviderUnavailable)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Hint, "wallet extension")
}

func TestSendRecordsWhenCallerCancelsAfterAcceptance(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.TransferRecord{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	dao := model.NewTransfersDao(db)

	f := newFixture()
	f.orch.records = dao
	f.state.connectL1("5.0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// the wallet accepts, then the client goes away
	f.l1.sendF = func(context.Context, string, *big.Int) (any, error) {
		cancel()
		return map[string]any{"id": l1TxHash}, nil
	}

	res, err := f.orch.Send(ctx, Request{Recipient: l1To, Amount: amount("1.5")})
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	assert.Equal(t, PhaseCompleted, res.Phase)
	assert.Equal(t, 1, f.state.refreshes)

	records, err := dao.List(context.Background(), model.ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, l1TxHash, records[0].TxHash)

	stored, err := dao.FindOneByTxHash(context.Background(), l1TxHash)
	require.NoError(t, err)
	assert.Equal(t, "1.5", stored.Amount)
}

func TestSendDeadlineBeforeWalletAnswers(t *testing.T) {
	f := newFixture()
	f.state.connectL1("5.0")
	f.l1.sendF = func(ctx context.Context, _ string, _ *big.Int) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := f.orch.Send(ctx, Request{Recipient: l1To, Amount: amount("1.5")})
	require.ErrorIs(t, err, ErrSubmissionUnknown)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, res)
	assert.Zero(t, f.records.count())

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Hint, "explorer")

	// the slot is free again
	f.l1.mu.Lock()
	f.l1.sendF = nil
	f.l1.mu.Unlock()
	_, err = f.orch.Send(context.Background(), Request{Recipient: l1To, Amount: amount("1.5")})
	require.NoError(t, err)
}

func TestSettleTimeoutDefault(t *testing.T) {
	f := newFixture()
	assert.Equal(t, constant.DefaultSettleTimeout, f.orch.cfg.SettleTimeout)
}

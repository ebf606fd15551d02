package svc

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"dualwallet/internal/chain"
	"dualwallet/internal/config"
	"dualwallet/internal/constant"
	"dualwallet/internal/fee"
	"dualwallet/internal/model"
	"dualwallet/internal/network"
	"dualwallet/internal/provider"
	"dualwallet/internal/transfer"
	"dualwallet/internal/walletstate"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/threading"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const dialTimeout = 10 * time.Second

type ServiceContext struct {
	Config       config.Config
	DB           *gorm.DB
	TransfersDao model.TransfersDao

	Registry     *network.Registry
	Detector     *network.Detector
	Validator    *chain.Validator
	Estimator    *fee.Estimator
	Wallets      *walletstate.Store
	Orchestrator *transfer.Orchestrator
	History      *transfer.HistoryLoader

	// L1 and L2 are nil when no wallet endpoint is configured. A configured
	// wallet that is down is redialed on use.
	L1 provider.UtxoWalletProvider
	L2 provider.EvmWalletProvider

	bridge *provider.UtxoBridge
	evm    *provider.EvmRPC
	cancel context.CancelFunc
}

func NewServiceContext(c config.Config) *ServiceContext {
	db, err := initDB(c.Postgres.DSN)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}
	if err := db.AutoMigrate(&model.TransferRecord{}); err != nil {
		log.Fatalf("failed to migrate transfers table: %v", err)
	}

	registry, err := NewRegistry(c)
	if err != nil {
		log.Fatalf("invalid network configuration: %v", err)
	}

	session, err := newSession(c)
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}

	svcCtx := &ServiceContext{
		Config:       c,
		DB:           db,
		TransfersDao: model.NewTransfersDao(db),
		Registry:     registry,
		Detector:     network.NewDetector(registry),
		Validator:    chain.NewValidator(c.L1.AddressPrefix),
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if c.L1.BridgeUrl == "" {
		logx.Error("L1 wallet unavailable: no bridge configured")
	} else {
		bridge := provider.OpenUtxoBridge(c.L1.BridgeUrl)
		if err := bridge.Connect(ctx); err != nil {
			logx.Errorf("L1 wallet not reachable yet, will redial on use: %v", err)
		}
		svcCtx.bridge = bridge
		svcCtx.L1 = bridge
	}
	if c.L2.RpcUrl == "" {
		logx.Error("L2 wallet unavailable: no endpoint configured")
	} else {
		evm := provider.OpenEvm(c.L2.RpcUrl)
		if _, err := evm.ChainID(ctx); err != nil {
			logx.Errorf("L2 wallet not reachable yet, will redial on use: %v", err)
		}
		svcCtx.evm = evm
		svcCtx.L2 = evm
	}

	if err := svcCtx.wire(session); err != nil {
		log.Fatalf("invalid transfer configuration: %v", err)
	}
	if err := svcCtx.Wallets.Restore(context.Background()); err != nil {
		logx.Errorf("restore wallet session: %v", err)
	}
	return svcCtx
}

// wire builds the wallet store, the orchestrator and the history loader on top
// of the providers and the DAO already set on svcCtx.
func (s *ServiceContext) wire(session walletstate.SessionStore) error {
	c := s.Config

	minAmount, err := parseDecimal(c.Transfer.MinAmount)
	if err != nil {
		return fmt.Errorf("Transfer.MinAmount: %w", err)
	}
	rate, err := parseDecimal(c.Transfer.FlatFeeRate)
	if err != nil {
		return fmt.Errorf("Transfer.FlatFeeRate: %w", err)
	}

	s.Estimator = fee.NewEstimator(rate)
	s.Wallets = walletstate.NewStore(walletstate.Options{
		L1:             s.L1,
		L2:             s.L2,
		WrappedToken:   c.L2.WrappedToken,
		Session:        session,
		PollInterval:   time.Duration(c.Transfer.PollIntervalSeconds) * time.Second,
		RefreshTimeout: time.Duration(c.Transfer.RefreshTimeoutSeconds) * time.Second,
	})
	s.Orchestrator = transfer.NewOrchestrator(transfer.Deps{
		Config: transfer.Config{
			MinAmount:       minAmount,
			L1Symbol:        c.L1.Symbol,
			L1Network:       c.L1.Network,
			L1ExplorerUrl:   c.L1.ExplorerUrl,
			L1EstimatedTime: c.L1.EstimatedTime,
			L2EstimatedTime: c.L2.EstimatedTime,
			TargetNetwork:   c.L2.TargetNetwork,
			SettleTimeout:   time.Duration(c.Transfer.SettleTimeoutSeconds) * time.Second,
		},
		Validator: s.Validator,
		Estimator: s.Estimator,
		Detector:  s.Detector,
		State:     s.Wallets,
		Records:   s.TransfersDao,
		L1:        s.L1,
		L2:        s.L2,
	})
	s.History = transfer.NewHistoryLoader(s.TransfersDao, transfer.HistoryConfig{
		Attempts: c.Transfer.HistoryAttempts,
		Backoff:  time.Duration(c.Transfer.HistoryBackoffMillis) * time.Millisecond,
		Timeout:  time.Duration(c.Transfer.HistoryTimeoutSeconds) * time.Second,
	})
	return nil
}

// NewTestServiceContext wires a service context from already constructed
// parts, skipping database and wallet dialing.
func NewTestServiceContext(c config.Config, dao model.TransfersDao, l1 provider.UtxoWalletProvider,
	l2 provider.EvmWalletProvider, session walletstate.SessionStore) (*ServiceContext, error) {
	registry, err := NewRegistry(c)
	if err != nil {
		return nil, err
	}
	s := &ServiceContext{
		Config:       c,
		TransfersDao: dao,
		Registry:     registry,
		Detector:     network.NewDetector(registry),
		Validator:    chain.NewValidator(c.L1.AddressPrefix),
		L1:           l1,
		L2:           l2,
	}
	if err := s.wire(session); err != nil {
		return nil, err
	}
	return s, nil
}

// SendTimeout bounds a transfer submission, including the wait for the user's
// approval in the wallet.
func (s *ServiceContext) SendTimeout() time.Duration {
	if d := time.Duration(s.Config.Transfer.SendTimeoutSeconds) * time.Second; d > 0 {
		return d
	}
	return constant.DefaultSendTimeout
}

// Start runs the wallet dispatcher and the L2 watcher until Stop.
func (s *ServiceContext) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	threading.GoSafe(func() {
		s.Wallets.Run(ctx)
	})
	if s.evm != nil {
		interval := time.Duration(s.Config.L2.WatchIntervalSeconds) * time.Second
		threading.GoSafe(func() {
			s.evm.Watch(ctx, interval)
		})
	}
}

// Stop ends the background loops and closes the wallet connections.
func (s *ServiceContext) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.bridge != nil {
		_ = s.bridge.Close()
	}
	if s.evm != nil {
		s.evm.Close()
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// NewRegistry builds the network table from the built-in networks and the
// configured overrides.
func NewRegistry(c config.Config) (*network.Registry, error) {
	byLabel := make(map[string]network.Network)
	var order []string
	for _, n := range network.Builtin() {
		byLabel[n.Label] = n
		order = append(order, n.Label)
	}
	for label, nc := range c.Networks {
		label = strings.ToLower(label)
		n := network.Network{
			Label:   label,
			Name:    nc.Name,
			ChainID: nc.ChainId,
			NativeCurrency: network.Currency{
				Name:     nc.CurrencyName,
				Symbol:   nc.CurrencySymbol,
				Decimals: 18,
			},
			RpcUrls:      nc.RpcUrls,
			ExplorerUrls: nc.ExplorerUrls,
		}
		if n.Name == "" {
			n.Name = label
		}
		if _, ok := byLabel[label]; !ok {
			order = append(order, label)
		}
		byLabel[label] = n
	}

	networks := make([]network.Network, 0, len(order))
	for _, label := range order {
		networks = append(networks, byLabel[label])
	}
	return network.NewRegistry(c.L2.TargetNetwork, networks...)
}

// parseDecimal treats an empty setting as zero, which selects the default.
func parseDecimal(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("must not be negative, got %s", s)
	}
	return d, nil
}

func newSession(c config.Config) (walletstate.SessionStore, error) {
	ttl := time.Duration(c.Session.TTLSeconds) * time.Second
	if c.Session.Redis.Host == "" {
		return walletstate.NewMemorySession(ttl)
	}
	rds, err := redis.NewRedis(c.Session.Redis)
	if err != nil {
		return nil, err
	}
	return walletstate.NewRedisSession(rds, c.Session.KeyPrefix, ttl), nil
}

func initDB(dsn string) (*gorm.DB, error) {
	newLogger := logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	return db, nil
}

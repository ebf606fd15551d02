package config

import (
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/rest"
)

// NetworkConf describes an L2 network. Entries override or extend the built-in
// mainnet/testnet table, keyed by label.
type NetworkConf struct {
	Name           string   `json:",optional"`
	ChainId        uint64   `json:"ChainId"`
	CurrencyName   string   `json:",default=Kaspa"`
	CurrencySymbol string   `json:",default=KAS"`
	RpcUrls        []string `json:",optional"`
	ExplorerUrls   []string `json:",optional"`
}

type Config struct {
	rest.RestConf
	Postgres struct {
		DSN string
	}
	Session struct {
		// Redis is optional; without a host the session lives in process memory.
		Redis      redis.RedisConf `json:",optional"`
		TTLSeconds int             `json:",default=86400"`
		KeyPrefix  string          `json:",default=dualwallet:session:"`
	}
	L1 struct {
		// BridgeUrl is the websocket endpoint of the L1 wallet bridge.
		BridgeUrl     string `json:",optional"`
		AddressPrefix string `json:",default=kaspa:"`
		Symbol        string `json:",default=KAS"`
		Network       string `json:",default=kaspa-mainnet"`
		ExplorerUrl   string `json:",default=https://explorer.kaspa.org"`
		EstimatedTime string `json:",default=~10 seconds"`
	}
	L2 struct {
		// RpcUrl is the JSON-RPC endpoint of the L2 wallet.
		RpcUrl               string `json:",optional"`
		TargetNetwork        string `json:",default=mainnet"`
		WrappedToken         string `json:",optional"`
		EstimatedTime        string `json:",default=~15 seconds"`
		WatchIntervalSeconds int    `json:",default=5"`
	}
	// Networks maps a network label (e.g., "mainnet") to its configuration.
	Networks map[string]NetworkConf `json:",optional"`
	Transfer struct {
		MinAmount             string `json:",default=0.01"`
		FlatFeeRate           string `json:",default=0.001"`
		PollIntervalSeconds   int    `json:",default=10"`
		RefreshTimeoutSeconds int    `json:",default=15"`
		HistoryAttempts       int    `json:",default=3"`
		HistoryBackoffMillis  int    `json:",default=1000"`
		HistoryTimeoutSeconds int    `json:",default=30"`
		// SendTimeoutSeconds bounds a send request, which waits for the user
		// to approve in the wallet.
		SendTimeoutSeconds   int `json:",default=300"`
		SettleTimeoutSeconds int `json:",default=30"`
	}
}

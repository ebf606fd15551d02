package network

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	LabelMainnet = "mainnet"
	LabelTestnet = "testnet"

	MainnetChainID uint64 = 0x31D9B
	TestnetChainID uint64 = 0x28D74
)

type Currency struct {
	Name     string
	Symbol   string
	Decimals int32
}

// Network describes one EVM network the L2 wallet may be connected to.
type Network struct {
	Label          string
	Name           string
	ChainID        uint64
	NativeCurrency Currency
	RpcUrls        []string
	ExplorerUrls   []string
}

// HexChainID returns the canonical 0x form of the chain id.
func (n Network) HexChainID() string {
	return hexutil.EncodeUint64(n.ChainID)
}

// TxURL links a transaction on the network's first explorer, or "" when none
// is configured.
func (n Network) TxURL(hash string) string {
	if len(n.ExplorerUrls) == 0 || hash == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerUrls[0], "/") + "/tx/" + hash
}

// Builtin returns the networks known without configuration. The first entry is
// the primary network.
func Builtin() []Network {
	return []Network{
		{
			Label:          LabelMainnet,
			Name:           "Kasplex L2 Mainnet",
			ChainID:        MainnetChainID,
			NativeCurrency: Currency{Name: "Kaspa", Symbol: "KAS", Decimals: 18},
			RpcUrls:        []string{"https://evmrpc.kasplex.org"},
			ExplorerUrls:   []string{"https://explorer.kasplex.org"},
		},
		{
			Label:          LabelTestnet,
			Name:           "Kasplex L2 Testnet",
			ChainID:        TestnetChainID,
			NativeCurrency: Currency{Name: "Kaspa", Symbol: "KAS", Decimals: 18},
			RpcUrls:        []string{"https://rpc.kasplextest.xyz"},
			ExplorerUrls:   []string{"https://explorer.testnet.kasplextest.xyz"},
		},
	}
}

// Registry maps chain ids, in both hex and decimal form, to networks.
type Registry struct {
	primary string
	byKey   map[string]Network
	byLabel map[string]Network
}

// NewRegistry indexes networks. primary names the network unknown chain ids
// degrade to; empty means the first network given.
func NewRegistry(primary string, networks ...Network) (*Registry, error) {
	if len(networks) == 0 {
		return nil, fmt.Errorf("network registry needs at least one network")
	}
	r := &Registry{
		byKey:   make(map[string]Network, len(networks)*2),
		byLabel: make(map[string]Network, len(networks)),
	}
	for _, n := range networks {
		if n.Label == "" {
			return nil, fmt.Errorf("network with chain id %d has no label", n.ChainID)
		}
		if n.ChainID == 0 {
			return nil, fmt.Errorf("network %q has no chain id", n.Label)
		}
		label := strings.ToLower(n.Label)
		n.Label = label
		if n.NativeCurrency.Decimals == 0 {
			n.NativeCurrency.Decimals = 18
		}
		r.byLabel[label] = n
		r.byKey[n.HexChainID()] = n
		r.byKey[strconv.FormatUint(n.ChainID, 10)] = n
	}

	if primary == "" {
		primary = networks[0].Label
	}
	primary = strings.ToLower(primary)
	if _, ok := r.byLabel[primary]; !ok {
		return nil, fmt.Errorf("primary network %q is not registered", primary)
	}
	r.primary = primary
	return r, nil
}

// MustNewRegistry is NewRegistry for static tables.
func MustNewRegistry(primary string, networks ...Network) *Registry {
	r, err := NewRegistry(primary, networks...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup resolves a chain id as a provider reports it: 0x-prefixed hex of any
// case and padding, or a decimal string.
func (r *Registry) Lookup(chainID string) (Network, bool) {
	key, ok := normalizeChainID(chainID)
	if !ok {
		return Network{}, false
	}
	n, ok := r.byKey[key]
	return n, ok
}

func (r *Registry) ByLabel(label string) (Network, bool) {
	n, ok := r.byLabel[strings.ToLower(strings.TrimSpace(label))]
	return n, ok
}

func (r *Registry) Primary() Network {
	return r.byLabel[r.primary]
}

// Networks lists the registered networks ordered by label.
func (r *Registry) Networks() []Network {
	out := make([]Network, 0, len(r.byLabel))
	for _, n := range r.byLabel {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// normalizeChainID returns the hex key for hex input and the decimal key for
// decimal input. Both forms are indexed, so either resolves.
func normalizeChainID(chainID string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(chainID))
	if s == "" {
		return "", false
	}
	if strings.HasPrefix(s, "0x") {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok || !v.IsUint64() {
			return "", false
		}
		return hexutil.EncodeUint64(v.Uint64()), true
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatUint(v, 10), true
}

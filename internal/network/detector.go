package network

import (
	"context"
	"errors"
	"fmt"

	"dualwallet/internal/provider"

	"github.com/zeromicro/go-zero/core/logx"
)

var ErrNetworkMismatch = errors.New("network mismatch")

// ChainIDSource is the part of an EVM wallet the detector needs.
type ChainIDSource interface {
	ChainID(ctx context.Context) (string, error)
}

var _ ChainIDSource = (provider.EvmWalletProvider)(nil)

// Detection is the outcome of resolving the wallet's chain id. When Known is
// false, Network is the primary network and the user should verify manually.
type Detection struct {
	Network Network
	ChainID string
	Known   bool
}

type Detector struct {
	registry *Registry
}

func NewDetector(registry *Registry) *Detector {
	return &Detector{registry: registry}
}

func (d *Detector) Registry() *Registry {
	return d.registry
}

// Detect queries the wallet's chain id and resolves it. Unknown chain ids are
// not an error: they resolve to the primary network with Known=false.
func (d *Detector) Detect(ctx context.Context, src ChainIDSource) (Detection, error) {
	chainID, err := src.ChainID(ctx)
	if err != nil {
		return Detection{}, fmt.Errorf("query chain id: %w", err)
	}

	if n, ok := d.registry.Lookup(chainID); ok {
		return Detection{Network: n, ChainID: chainID, Known: true}, nil
	}

	primary := d.registry.Primary()
	logx.WithContext(ctx).Infof("unknown network with chain id %s, assuming %s", chainID, primary.Label)
	return Detection{Network: primary, ChainID: chainID, Known: false}, nil
}

// Check detects the wallet's network and fails with ErrNetworkMismatch when
// it is not the target network.
func (d *Detector) Check(ctx context.Context, src ChainIDSource, target string) (Detection, error) {
	want, ok := d.registry.ByLabel(target)
	if !ok {
		return Detection{}, fmt.Errorf("target network %q is not registered", target)
	}

	det, err := d.Detect(ctx, src)
	if err != nil {
		return det, err
	}
	if det.Network.Label != want.Label {
		return det, fmt.Errorf("%w: wallet is on %s (chain id %s), switch it to %s (chain id %s)",
			ErrNetworkMismatch, det.Network.Label, det.ChainID, want.Label, want.HexChainID())
	}
	return det, nil
}

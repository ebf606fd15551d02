package chain

import (
	"errors"
	"fmt"
	"strings"

	"dualwallet/internal/constant"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidAddress = errors.New("invalid address")

// Validator performs syntactic address checks per chain family.
type Validator struct {
	l1Prefix string
}

func NewValidator(l1Prefix string) *Validator {
	if l1Prefix == "" {
		l1Prefix = constant.DefaultL1AddressPrefix
	}
	return &Validator{l1Prefix: l1Prefix}
}

// L1Prefix returns the human-readable prefix L1 addresses must carry.
func (v *Validator) L1Prefix() string {
	return v.l1Prefix
}

// Validate checks address against the format of the given chain. L1 addresses
// only need the prefix and a payload; checksum validation is left to the wallet.
func (v *Validator) Validate(address string, c constant.Chain) error {
	switch c {
	case constant.ChainL1:
		if !strings.HasPrefix(address, v.l1Prefix) || len(address) == len(v.l1Prefix) {
			return fmt.Errorf("%w: L1 address must start with %q", ErrInvalidAddress, v.l1Prefix)
		}
		return nil
	case constant.ChainL2:
		if !strings.HasPrefix(address, "0x") || len(address) != 42 || !common.IsHexAddress(address) {
			return fmt.Errorf("%w: L2 address must be 0x followed by 40 hex characters", ErrInvalidAddress)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported chain %q", ErrInvalidAddress, c)
	}
}

package message

import (
	"math/big"
	"reflect"

	"github.com/pkg/errors"
)

// ChainID identifies an EVM network.
type ChainID = BigInt

// ReflectChainIDType is the reflection type of ChainID used by config decode hooks.
var ReflectChainIDType = reflect.TypeOf(ChainID{})

// MakeChainID makes a ChainID for the given id.
func MakeChainID(i *big.Int) ChainID {
	return MakeBigInt(i)
}

// ChainIDFromUint64 makes a ChainID from a plain network number.
func ChainIDFromUint64(id uint64) ChainID {
	return MakeChainID(new(big.Int).SetUint64(id))
}

// ParseChainID converts a string to a ChainID.
// The string can be in either decimal or hexadecimal format.
func ParseChainID(s string) (ChainID, error) {
	chainID := new(big.Int)

	// `0` automatically detects base (10 or 16).
	if _, ok := chainID.SetString(s, 0); !ok {
		return ChainID{}, errors.Errorf("invalid chain ID %q", s)
	}
	if chainID.Sign() <= 0 {
		return ChainID{}, errors.Errorf("chain ID must be positive, got %q", s)
	}
	return ChainID{chainID}, nil
}

// ChainKey is a comparable representation of a ChainID, usable as map key.
type ChainKey string

// MapKey converts a ChainID to a ChainKey.
func (i ChainID) MapKey() ChainKey {
	if i.Int == nil {
		return ""
	}
	return ChainKey(i.Int.String())
}

// Package contract invokes smart-contract methods through a wallet
// provider: reads go through eth_call, state changes through
// eth_sendTransaction signed by the connected wallet.
package contract

import (
	"strings"

	xerrors "WalletBridge/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Descriptor identifies a deployed contract and its interface.
type Descriptor struct {
	Name    string
	Address common.Address
	ABI     abi.ABI
}

// NewDescriptor validates the address and parses the ABI JSON.
func NewDescriptor(name, address, abiJSON string) (Descriptor, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return Descriptor{}, xerrors.Newf(xerrors.CodeInvalidArgument, "invalid contract address %q", address)
	}
	addr := common.HexToAddress(address)
	if addr == (common.Address{}) {
		return Descriptor{}, xerrors.New(xerrors.CodeInvalidArgument, "contract address is zero")
	}
	if strings.TrimSpace(abiJSON) == "" {
		return Descriptor{}, xerrors.New(xerrors.CodeInvalidArgument, "contract ABI is empty")
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return Descriptor{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse contract ABI")
	}
	return Descriptor{Name: name, Address: addr, ABI: parsed}, nil
}

// NewBuiltinDescriptor binds one of the built-in ABIs to an address.
func NewBuiltinDescriptor(kind, address string) (Descriptor, error) {
	abiJSON, ok := BuiltinABI(kind)
	if !ok {
		return Descriptor{}, xerrors.Newf(xerrors.CodeInvalidArgument, "unknown builtin ABI %q", kind)
	}
	return NewDescriptor(kind, address, abiJSON)
}

// Method looks up a method by name.
func (d Descriptor) Method(name string) (abi.Method, error) {
	m, ok := d.ABI.Methods[name]
	if !ok {
		return abi.Method{}, xerrors.Newf(xerrors.CodeInvalidArgument, "method %q not found in ABI", name)
	}
	return m, nil
}

// Label is the contract name if set, otherwise its address.
func (d Descriptor) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Address.Hex()
}

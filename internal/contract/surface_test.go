package contract

import (
	"context"

	"WalletBridge/internal/wallet"

	"github.com/ethereum/go-ethereum/common"
)

// Compile-time checks on the exported entry points used by the service layer.
var (
	_ func(*wallet.Connector, context.Context) ([]common.Address, error)                     = (*wallet.Connector).Connect
	_ func(*Invoker, context.Context, Descriptor, string, TxOptions, ...any) (Result, error) = (*Invoker).Execute
	_ func(*Invoker, context.Context, Descriptor, string, ...any) ([]any, error)             = (*Invoker).Call
)

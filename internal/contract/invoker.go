package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	xerrors "WalletBridge/internal/errors"
	"WalletBridge/internal/observability/metrics"
	"WalletBridge/internal/wallet"
	"WalletBridge/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Kind tells whether an invocation was a read or a transaction.
type Kind string

const (
	KindCall        Kind = "call"
	KindTransaction Kind = "transaction"
)

const defaultPollInterval = time.Second

// TxOptions tunes a state-changing invocation.
type TxOptions struct {
	Value    *big.Int
	GasLimit uint64
	// Wait blocks Execute until the receipt is available.
	Wait bool
}

// Result is the outcome of Execute.
type Result struct {
	Method  string
	Kind    Kind
	From    common.Address
	Outputs []any
	TxHash  common.Hash
	Receipt *types.Receipt
}

// Invoker calls contract methods through a wallet provider. Transactions
// are signed by the connector's primary account.
type Invoker struct {
	provider     wallet.Provider
	connector    *wallet.Connector
	pollInterval time.Duration
	logger       *slog.Logger
	audit        *slog.Logger
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithPollInterval sets how often WaitReceipt polls.
func WithPollInterval(d time.Duration) InvokerOption {
	return func(i *Invoker) {
		if d > 0 {
			i.pollInterval = d
		}
	}
}

// WithInvokerLogger overrides the component logger.
func WithInvokerLogger(l *slog.Logger) InvokerOption {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewInvoker builds an invoker sharing the connector's provider. A nil
// connector behaves like one without a provider.
func NewInvoker(connector *wallet.Connector, opts ...InvokerOption) *Invoker {
	if connector == nil {
		connector = wallet.NewConnector(nil)
	}
	i := &Invoker{
		connector:    connector,
		pollInterval: defaultPollInterval,
		logger:       logger.Named("contract"),
		audit:        logger.Audit(),
		provider:     connector.Provider(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// Call executes a read-only method with eth_call and returns the unpacked
// outputs.
func (i *Invoker) Call(ctx context.Context, desc Descriptor, method string, args ...any) ([]any, error) {
	outputs, err := i.call(ctx, desc, method, args)
	metrics.ObserveContractInvocation(string(KindCall), outcome(err))
	return outputs, err
}

func (i *Invoker) call(ctx context.Context, desc Descriptor, method string, args []any) ([]any, error) {
	if i.provider == nil {
		return nil, xerrors.New(xerrors.CodeNoProvider, "")
	}
	m, err := desc.Method(method)
	if err != nil {
		return nil, err
	}
	data, err := desc.ABI.Pack(method, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "pack arguments")
	}

	msg := map[string]any{
		"to":   desc.Address,
		"data": hexutil.Bytes(data),
	}
	if from, err := i.connector.Primary(); err == nil {
		msg["from"] = from
	}

	raw, err := i.provider.Request(ctx, wallet.RequestArguments{Method: "eth_call", Params: []any{msg, "latest"}})
	if err != nil {
		return nil, classify(err, fmt.Sprintf("call %s.%s", desc.Label(), method))
	}
	var out hexutil.Bytes
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeContractCallFailed, err, "decode call result")
	}
	if len(out) == 0 && len(m.Outputs) > 0 {
		return nil, xerrors.Newf(xerrors.CodeContractCallFailed, "no contract code at %s", desc.Address.Hex())
	}
	values, err := m.Outputs.Unpack(out)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeContractCallFailed, err, "unpack call result")
	}
	return values, nil
}

// Transact submits a state-changing method with eth_sendTransaction from
// the connected account, connecting first when needed, and returns the
// transaction hash.
func (i *Invoker) Transact(ctx context.Context, desc Descriptor, method string, opts TxOptions, args ...any) (common.Hash, error) {
	hash, _, err := i.transact(ctx, desc, method, opts, args)
	metrics.ObserveContractInvocation(string(KindTransaction), outcome(err))
	return hash, err
}

func (i *Invoker) transact(ctx context.Context, desc Descriptor, method string, opts TxOptions, args []any) (common.Hash, common.Address, error) {
	if i.provider == nil {
		return common.Hash{}, common.Address{}, xerrors.New(xerrors.CodeNoProvider, "")
	}
	if _, err := desc.Method(method); err != nil {
		return common.Hash{}, common.Address{}, err
	}
	data, err := desc.ABI.Pack(method, args...)
	if err != nil {
		return common.Hash{}, common.Address{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "pack arguments")
	}
	from, err := i.connector.EnsureConnected(ctx)
	if err != nil {
		return common.Hash{}, common.Address{}, err
	}

	tx := map[string]any{
		"from": from,
		"to":   desc.Address,
		"data": hexutil.Bytes(data),
	}
	if opts.Value != nil && opts.Value.Sign() > 0 {
		tx["value"] = (*hexutil.Big)(opts.Value)
	}
	if opts.GasLimit > 0 {
		tx["gas"] = hexutil.Uint64(opts.GasLimit)
	}

	raw, err := i.provider.Request(ctx, wallet.RequestArguments{Method: "eth_sendTransaction", Params: []any{tx}})
	if err != nil {
		return common.Hash{}, from, classify(err, fmt.Sprintf("send %s.%s", desc.Label(), method))
	}
	var hash common.Hash
	if err := json.Unmarshal(raw, &hash); err != nil {
		return common.Hash{}, from, xerrors.Wrap(xerrors.CodeContractCallFailed, err, "decode transaction hash")
	}

	i.audit.Info("transaction submitted",
		"contract", desc.Label(),
		"address", desc.Address.Hex(),
		"method", method,
		"from", from.Hex(),
		"tx_hash", hash.Hex(),
	)
	return hash, from, nil
}

// WaitReceipt polls eth_getTransactionReceipt until the receipt is
// available or ctx ends.
func (i *Invoker) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if i.provider == nil {
		return nil, xerrors.New(xerrors.CodeNoProvider, "")
	}
	ticker := time.NewTicker(i.pollInterval)
	defer ticker.Stop()

	for {
		raw, err := i.provider.Request(ctx, wallet.RequestArguments{Method: "eth_getTransactionReceipt", Params: []any{hash}})
		if err != nil {
			return nil, classify(err, "fetch receipt")
		}
		if len(raw) > 0 && string(raw) != "null" {
			var receipt types.Receipt
			if err := json.Unmarshal(raw, &receipt); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeContractCallFailed, err, "decode receipt")
			}
			return &receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, xerrors.Wrapf(xerrors.CodeTimeout, ctx.Err(), "receipt for %s not available", hash.Hex())
		case <-ticker.C:
		}
	}
}

// Execute runs method on the contract. View and pure methods are read with
// Call; all others are sent as transactions and, with opts.Wait, followed
// until mined. A reverted receipt is returned together with an
// EXECUTION_REVERTED error.
func (i *Invoker) Execute(ctx context.Context, desc Descriptor, method string, opts TxOptions, args ...any) (Result, error) {
	m, err := desc.Method(method)
	if err != nil {
		return Result{}, err
	}
	if m.IsConstant() {
		outputs, err := i.Call(ctx, desc, method, args...)
		if err != nil {
			return Result{}, err
		}
		return Result{Method: method, Kind: KindCall, Outputs: outputs}, nil
	}

	hash, from, err := i.transact(ctx, desc, method, opts, args)
	metrics.ObserveContractInvocation(string(KindTransaction), outcome(err))
	if err != nil {
		return Result{}, err
	}
	result := Result{Method: method, Kind: KindTransaction, From: from, TxHash: hash}
	if !opts.Wait {
		return result, nil
	}

	receipt, err := i.WaitReceipt(ctx, hash)
	if err != nil {
		return result, err
	}
	result.Receipt = receipt
	if receipt.Status != types.ReceiptStatusSuccessful {
		i.logger.Warn("transaction reverted", "tx_hash", hash.Hex(), "method", method)
		return result, xerrors.Newf(xerrors.CodeExecutionReverted, "transaction %s reverted", hash.Hex())
	}
	return result, nil
}

// codeExecutionReverted is the JSON-RPC code nodes use for reverted calls.
const codeExecutionReverted = 3

func classify(err error, message string) error {
	if code, ok := wallet.ProviderErrorCode(err); ok && code == codeExecutionReverted {
		return xerrors.Wrap(xerrors.CodeExecutionReverted, err, message)
	}
	return wallet.Classify(err, xerrors.CodeContractCallFailed, message)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(xerrors.CodeOf(err))
}

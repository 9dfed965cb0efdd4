// Package keyed is an in-process wallet provider backed by a single private
// key. It answers account and signing requests itself and forwards chain
// reads to a backend such as an ethclient.Client.
package keyed

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"WalletBridge/internal/wallet"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Backend is the chain access the provider needs. Both ethclient.Client and
// the simulated backend client satisfy it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call gethcore.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// TransactionRequest is what the user is asked to confirm.
type TransactionRequest struct {
	From  common.Address
	To    *common.Address
	Value *big.Int
	Data  []byte
	Gas   uint64
}

// Approver is consulted whenever the wallet needs user consent. A false
// answer is reported to the caller as a 4001 user rejection.
type Approver interface {
	ApproveAccounts(ctx context.Context, account common.Address) bool
	ApproveTransaction(ctx context.Context, tx TransactionRequest) bool
}

// AutoApprove grants every request.
type AutoApprove struct{}

func (AutoApprove) ApproveAccounts(context.Context, common.Address) bool         { return true }
func (AutoApprove) ApproveTransaction(context.Context, TransactionRequest) bool { return true }

// Provider implements wallet.Provider with a local key.
type Provider struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	backend  Backend
	approver Approver

	// sendMu serializes nonce assignment through broadcast.
	sendMu sync.Mutex

	mu         sync.Mutex
	authorized bool
	chainID    *big.Int
}

// New builds a provider. A nil approver approves everything.
func New(key *ecdsa.PrivateKey, backend Backend, approver Approver) (*Provider, error) {
	if key == nil {
		return nil, errors.New("keyed wallet requires a private key")
	}
	if backend == nil {
		return nil, errors.New("keyed wallet requires a chain backend")
	}
	if approver == nil {
		approver = AutoApprove{}
	}
	return &Provider{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		backend:  backend,
		approver: approver,
	}, nil
}

// NewFromHex parses a hex encoded private key, with or without 0x prefix.
func NewFromHex(hexKey string, backend Backend, approver Approver) (*Provider, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return New(key, backend, approver)
}

// Address returns the account controlled by the provider.
func (p *Provider) Address() common.Address {
	return p.address
}

// Request implements wallet.Provider.
func (p *Provider) Request(ctx context.Context, args wallet.RequestArguments) (json.RawMessage, error) {
	switch args.Method {
	case "eth_requestAccounts":
		if !p.approver.ApproveAccounts(ctx, p.address) {
			return nil, wallet.NewProviderError(wallet.CodeUserRejectedRequest, "User rejected the request.")
		}
		p.mu.Lock()
		p.authorized = true
		p.mu.Unlock()
		return json.Marshal([]common.Address{p.address})
	case "eth_accounts":
		if !p.isAuthorized() {
			return json.Marshal([]common.Address{})
		}
		return json.Marshal([]common.Address{p.address})
	case "eth_chainId":
		id, err := p.chain(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal((*hexutil.Big)(id))
	case "eth_blockNumber":
		n, err := p.backend.BlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(hexutil.Uint64(n))
	case "eth_getBalance":
		var addr common.Address
		if err := decodeParam(args.Params, 0, &addr); err != nil {
			return nil, err
		}
		balance, err := p.backend.BalanceAt(ctx, addr, nil)
		if err != nil {
			return nil, err
		}
		return json.Marshal((*hexutil.Big)(balance))
	case "eth_call":
		return p.call(ctx, args.Params)
	case "eth_estimateGas":
		var tx txArgs
		if err := decodeParam(args.Params, 0, &tx); err != nil {
			return nil, err
		}
		gas, err := p.backend.EstimateGas(ctx, tx.callMsg(p.address))
		if err != nil {
			return nil, err
		}
		return json.Marshal(hexutil.Uint64(gas))
	case "eth_sendTransaction":
		return p.sendTransaction(ctx, args.Params)
	case "eth_getTransactionReceipt":
		var hash common.Hash
		if err := decodeParam(args.Params, 0, &hash); err != nil {
			return nil, err
		}
		receipt, err := p.backend.TransactionReceipt(ctx, hash)
		if errors.Is(err, gethcore.NotFound) {
			return json.RawMessage("null"), nil
		}
		if err != nil {
			return nil, err
		}
		return json.Marshal(receipt)
	default:
		return nil, wallet.NewProviderError(wallet.CodeUnsupportedMethod, fmt.Sprintf("method %s is not supported", args.Method))
	}
}

func (p *Provider) call(ctx context.Context, params []any) (json.RawMessage, error) {
	var tx txArgs
	if err := decodeParam(params, 0, &tx); err != nil {
		return nil, err
	}
	from := p.address
	if tx.From != nil {
		from = *tx.From
	}
	out, err := p.backend.CallContract(ctx, tx.callMsg(from), nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(hexutil.Bytes(out))
}

func (p *Provider) sendTransaction(ctx context.Context, params []any) (json.RawMessage, error) {
	if !p.isAuthorized() {
		return nil, wallet.NewProviderError(wallet.CodeUnauthorized, "account not authorized")
	}
	var args txArgs
	if err := decodeParam(params, 0, &args); err != nil {
		return nil, err
	}
	if args.From != nil && *args.From != p.address {
		return nil, wallet.NewProviderError(wallet.CodeUnauthorized, fmt.Sprintf("unknown account %s", args.From.Hex()))
	}

	chainID, err := p.chain(ctx)
	if err != nil {
		return nil, err
	}
	gas := uint64(0)
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	}
	if gas == 0 {
		gas, err = p.backend.EstimateGas(ctx, args.callMsg(p.address))
		if err != nil {
			return nil, err
		}
	}

	request := TransactionRequest{From: p.address, To: args.To, Value: args.value(), Data: args.data(), Gas: gas}
	if !p.approver.ApproveTransaction(ctx, request) {
		return nil, wallet.NewProviderError(wallet.CodeUserRejectedRequest, "User denied transaction signature.")
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	nonce, err := p.backend.PendingNonceAt(ctx, p.address)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	tip, err := p.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip: %w", err)
	}
	head, err := p.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        request.To,
		Value:     request.Value,
		Data:      request.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), p.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	return json.Marshal(signed.Hash())
}

func (p *Provider) isAuthorized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authorized
}

func (p *Provider) chain(ctx context.Context) (*big.Int, error) {
	p.mu.Lock()
	id := p.chainID
	p.mu.Unlock()
	if id != nil {
		return id, nil
	}
	id, err := p.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	p.mu.Lock()
	p.chainID = id
	p.mu.Unlock()
	return id, nil
}

// txArgs mirrors the JSON-RPC transaction object.
type txArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Gas   *hexutil.Uint64 `json:"gas"`
	Value *hexutil.Big    `json:"value"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

func (a txArgs) data() []byte {
	if a.Input != nil {
		return *a.Input
	}
	if a.Data != nil {
		return *a.Data
	}
	return nil
}

func (a txArgs) value() *big.Int {
	if a.Value == nil {
		return new(big.Int)
	}
	return a.Value.ToInt()
}

func (a txArgs) callMsg(from common.Address) gethcore.CallMsg {
	msg := gethcore.CallMsg{From: from, To: a.To, Value: a.value(), Data: a.data()}
	if a.Gas != nil {
		msg.Gas = uint64(*a.Gas)
	}
	return msg
}

// decodeParam round-trips a positional parameter through JSON, the same way
// it would arrive over the wire.
func decodeParam(params []any, index int, out any) error {
	if index >= len(params) {
		return wallet.NewProviderError(-32602, fmt.Sprintf("missing parameter %d", index))
	}
	raw, err := json.Marshal(params[index])
	if err != nil {
		return wallet.NewProviderError(-32602, err.Error())
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return wallet.NewProviderError(-32602, err.Error())
	}
	return nil
}

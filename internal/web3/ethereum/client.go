package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"WalletBridge/internal/wallet"
	"WalletBridge/internal/web3"

	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// codeMethodNotFound is the JSON-RPC error for an unknown method.
const codeMethodNotFound = -32601

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name    string
	RPCURL  string
	ChainID uint64
	Notes   string
}

// Client forwards wallet requests to a JSON-RPC endpoint. Nodes that do not
// implement eth_requestAccounts are answered with eth_accounts, which is how
// an unlocked node account behaves.
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	mu        sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	client := NewClientFromRPC(cfg.Name, cfg.Notes, rpcClient)
	if cfg.ChainID > 0 {
		id, err := client.eth.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("获取链 ID 失败: %w", err)
		}
		if id.Cmp(new(big.Int).SetUint64(cfg.ChainID)) != 0 {
			client.Close()
			return nil, fmt.Errorf("链 %s 的链 ID 为 %s, 与配置 %d 不一致", cfg.Name, id, cfg.ChainID)
		}
	}
	return client, nil
}

// NewClientFromRPC wraps an existing RPC connection, e.g. an in-process one.
func NewClientFromRPC(name, notes string, rpcClient *gethrpc.Client) *Client {
	return &Client{
		name:      name,
		notes:     notes,
		rpcClient: rpcClient,
		eth:       ethclient.NewClient(rpcClient),
	}
}

// Name returns the chain name the client was registered under.
func (c *Client) Name() string {
	return c.name
}

// Request implements wallet.Provider.
func (c *Client) Request(ctx context.Context, args wallet.RequestArguments) (json.RawMessage, error) {
	rpcClient := c.rpc()
	if rpcClient == nil {
		return nil, wallet.NewProviderError(wallet.CodeDisconnected, "client closed")
	}
	if strings.TrimSpace(args.Method) == "" {
		return nil, errors.New("链上方法不能为空")
	}

	var raw json.RawMessage
	err := rpcClient.CallContext(ctx, &raw, args.Method, args.Params...)
	if err != nil && args.Method == "eth_requestAccounts" {
		if code, ok := wallet.ProviderErrorCode(err); ok && code == codeMethodNotFound {
			err = rpcClient.CallContext(ctx, &raw, "eth_accounts")
		}
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	return raw, nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	c.mu.Lock()
	eth := c.eth
	c.mu.Unlock()
	if eth == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的以太坊客户端")
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	blockNumber, err := eth.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		Name:        c.name,
		ChainID:     toHexBig(chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

// Backend exposes the typed ethclient for components that sign locally.
func (c *Client) Backend() *ethclient.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eth
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	c.rpcClient = nil
}

func (c *Client) rpc() *gethrpc.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rpcClient
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}

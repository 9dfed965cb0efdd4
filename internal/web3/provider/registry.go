package provider

import (
	"context"
	"sort"
	"strings"

	"WalletBridge/internal/config"
	xerrors "WalletBridge/internal/errors"
	"WalletBridge/internal/web3"
	"WalletBridge/internal/web3/ethereum"
)

// Dialer opens a client for one chain definition.
type Dialer func(ctx context.Context, name string, def web3.ChainDefinition) (web3.Client, error)

// DialEVM connects to an EVM JSON-RPC endpoint.
func DialEVM(ctx context.Context, name string, def web3.ChainDefinition) (web3.Client, error) {
	return ethereum.NewClient(ctx, ethereum.Config{
		Name:    name,
		RPCURL:  def.RPCURL,
		ChainID: def.ChainID,
		Notes:   def.Description,
	})
}

// Option customises NewRegistry.
type Option func(map[string]Dialer)

// WithDialer registers or replaces the dialer for a chain type.
func WithDialer(chainType string, d Dialer) Option {
	return func(dialers map[string]Dialer) {
		dialers[strings.ToLower(chainType)] = d
	}
}

// Registry holds one client per configured chain, keyed by chain name.
type Registry struct {
	defaultChain string
	clients      map[string]web3.Client
	names        []string
}

// NewRegistry dials every chain in cfg.ChainConfig. When the file defines no
// chains, cfg.RPCURL is registered as "default". Chains without a type are
// treated as evm.
func NewRegistry(ctx context.Context, cfg config.Web3Config, opts ...Option) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "加载链配置失败")
	}
	if len(defs.Chains) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		defs.Chains["default"] = web3.ChainDefinition{RPCURL: cfg.RPCURL}
		if cfg.DefaultChain == "" {
			cfg.DefaultChain = "default"
		}
	}

	dialers := map[string]Dialer{"evm": DialEVM}
	for _, opt := range opts {
		opt(dialers)
	}

	clients := make(map[string]web3.Client, len(defs.Chains))
	for name, def := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(def.Type))
		if chainType == "" {
			chainType = "evm"
		}
		dial, ok := dialers[chainType]
		if !ok {
			closeAll(clients)
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "链 %s 使用了不支持的类型 %s", name, def.Type)
		}
		client, err := dial(ctx, name, def)
		if err != nil {
			closeAll(clients)
			return nil, xerrors.Wrapf(xerrors.CodeConnectionFailed, err, "初始化链 %s 失败", name)
		}
		clients[name] = client
	}
	return NewStaticRegistry(cfg.DefaultChain, clients)
}

// NewStaticRegistry builds a registry from already constructed clients. An
// empty defaultChain selects the first chain in name order. On error all
// clients are closed.
func NewStaticRegistry(defaultChain string, clients map[string]web3.Client) (*Registry, error) {
	if len(clients) == 0 {
		return nil, xerrors.New(xerrors.CodeNoProvider, "未配置任何链的 RPC 端点")
	}
	names := make([]string, 0, len(clients))
	for name := range clients {
		names = append(names, name)
	}
	sort.Strings(names)
	if defaultChain == "" {
		defaultChain = names[0]
	}
	if _, ok := clients[defaultChain]; !ok {
		closeAll(clients)
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "默认链 %s 未在配置中找到", defaultChain)
	}
	return &Registry{defaultChain: defaultChain, clients: clients, names: names}, nil
}

// DefaultChain returns the name of the default chain.
func (r *Registry) DefaultChain() string {
	return r.defaultChain
}

// Chains returns the registered chain names in sorted order.
func (r *Registry) Chains() []string {
	return append([]string(nil), r.names...)
}

// Resolve returns the named client, or the default one when name is empty.
func (r *Registry) Resolve(name string) (web3.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.defaultChain
	}
	client, ok := r.clients[name]
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeNotFound, "未知的链 %s", name)
	}
	return client, nil
}

// Close releases all clients.
func (r *Registry) Close() {
	closeAll(r.clients)
}

func closeAll(clients map[string]web3.Client) {
	for _, client := range clients {
		if client != nil {
			client.Close()
		}
	}
}

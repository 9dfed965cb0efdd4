package provider

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"WalletBridge/internal/config"
	xerrors "WalletBridge/internal/errors"
	"WalletBridge/internal/wallet"
	"WalletBridge/internal/web3"
)

type stubClient struct {
	name   string
	closed bool
}

func (s *stubClient) Request(context.Context, wallet.RequestArguments) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func (s *stubClient) FetchChainSnapshot(context.Context) (web3.ChainSnapshot, error) {
	return web3.ChainSnapshot{Name: s.name}, nil
}

func (s *stubClient) Close() { s.closed = true }

func TestStaticRegistryResolve(t *testing.T) {
	t.Parallel()

	a, b := &stubClient{name: "a"}, &stubClient{name: "b"}
	reg, err := NewStaticRegistry("b", map[string]web3.Client{"a": a, "b": b})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	def, err := reg.Resolve("")
	if err != nil || def != b {
		t.Fatalf("expected default client b, got %v (%v)", def, err)
	}
	named, err := reg.Resolve("a")
	if err != nil || named != a {
		t.Fatalf("expected client a, got %v (%v)", named, err)
	}
	if _, err := reg.Resolve("missing"); !errors.Is(err, xerrors.New(xerrors.CodeNotFound, "")) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if got := reg.Chains(); len(got) != 2 || got[0] != "a" {
		t.Fatalf("unexpected chain list %v", got)
	}

	reg.Close()
	if !a.closed || !b.closed {
		t.Fatalf("expected clients to be closed")
	}
}

func TestStaticRegistryUnknownDefault(t *testing.T) {
	t.Parallel()

	a := &stubClient{name: "a"}
	if _, err := NewStaticRegistry("x", map[string]web3.Client{"a": a}); err == nil {
		t.Fatalf("expected error for unknown default chain")
	}
	if !a.closed {
		t.Fatalf("clients should be released on failure")
	}
}

func TestNewRegistryWithoutEndpoints(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(context.Background(), config.Web3Config{})
	if xerrors.CodeOf(err) != xerrors.CodeNoProvider {
		t.Fatalf("expected NO_PROVIDER without endpoints, got %v", err)
	}
}

func TestNewRegistryDialsChainDefinitions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chains.yaml")
	yaml := "chains:\n  sepolia:\n    rpc_url: http://sepolia\n    chain_id: 11155111\n  local:\n    type: sim\n    rpc_url: http://local\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write chain config: %v", err)
	}

	var dialed []string
	stub := func(_ context.Context, name string, def web3.ChainDefinition) (web3.Client, error) {
		dialed = append(dialed, name+"="+def.RPCURL)
		return &stubClient{name: name}, nil
	}
	reg, err := NewRegistry(context.Background(), config.Web3Config{ChainConfig: path},
		WithDialer("evm", stub), WithDialer("SIM", stub))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	defer reg.Close()

	sort.Strings(dialed)
	if len(dialed) != 2 || dialed[0] != "local=http://local" {
		t.Fatalf("unexpected dial calls %v", dialed)
	}
	if reg.DefaultChain() != "local" {
		t.Fatalf("expected first chain as default, got %s", reg.DefaultChain())
	}
}

func TestNewRegistryClosesOnDialFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chains.yaml")
	yaml := "chains:\n  a:\n    rpc_url: http://a\n  b:\n    type: cosmos\n    rpc_url: http://b\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write chain config: %v", err)
	}

	_, err := NewRegistry(context.Background(), config.Web3Config{ChainConfig: path},
		WithDialer("evm", func(_ context.Context, name string, _ web3.ChainDefinition) (web3.Client, error) {
			return &stubClient{name: name}, nil
		}))
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT for unsupported type, got %v", err)
	}
}

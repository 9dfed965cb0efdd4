// Package simchain spins up an in-memory chain for tests. Transactions are
// mined as soon as they are sent.
package simchain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

// StorageABI describes the contract deployed at StorageAddress.
// get() returns the stored word, set(uint256) stores it and reset() always
// reverts.
const StorageABI = `[
	{"type":"function","name":"get","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"set","inputs":[{"name":"value","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"reset","inputs":[],"outputs":[],"stateMutability":"nonpayable"}
]`

// storageRuntime dispatches on get() 0x6d4ce63c and set(uint256) 0x60fe47b1
// and reverts on any other selector.
const storageRuntime = "0x600035" + "60e01c" + "80" + "636d4ce63c14" + "601e57" + "80" + "6360fe47b114" + "602a57" +
	"600080fd" + "5b600054600052" + "60206000f3" + "5b600435600055" + "00"

// StorageAddress is where the storage contract lives in genesis.
var StorageAddress = common.HexToAddress("0x00000000000000000000000000000000000c0de1")

// Chain is a running simulated chain with one funded account.
type Chain struct {
	Sim     *simulated.Backend
	Key     *ecdsa.PrivateKey
	Account common.Address
}

// New starts a chain, funds a fresh key and deploys the storage contract.
// The chain is closed when the test finishes.
func New(tb testing.TB) *Chain {
	tb.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		tb.Fatalf("generate key: %v", err)
	}
	account := crypto.PubkeyToAddress(key.PublicKey)
	balance, _ := new(big.Int).SetString("100000000000000000000", 10)

	sim := simulated.NewBackend(types.GenesisAlloc{
		account:        {Balance: balance},
		StorageAddress: {Code: common.FromHex(storageRuntime), Balance: new(big.Int)},
	})
	tb.Cleanup(func() { _ = sim.Close() })

	return &Chain{Sim: sim, Key: key, Account: account}
}

// Client returns a client that commits a block after every sent transaction.
func (c *Chain) Client() *AutoMine {
	return &AutoMine{Client: c.Sim.Client(), sim: c.Sim}
}

// AutoMine wraps the simulated client and mines on send.
type AutoMine struct {
	simulated.Client
	sim *simulated.Backend
}

// SendTransaction sends tx and commits it into a new block.
func (a *AutoMine) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := a.Client.SendTransaction(ctx, tx); err != nil {
		return err
	}
	a.sim.Commit()
	return nil
}

package web3

import (
	"context"

	"WalletBridge/internal/wallet"
)

// ChainSnapshot represents summarized network metadata for UI/reporting.
type ChainSnapshot struct {
	Name        string `json:"name"`
	ChainID     string `json:"chain_id"`
	BlockNumber string `json:"block_number"`
	Notes       string `json:"notes,omitempty"`
}

// Client is a wallet provider bound to one chain. Higher layers use it as a
// wallet.Provider and for chain metadata.
type Client interface {
	wallet.Provider
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	Close()
}

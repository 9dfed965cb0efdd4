// Package web3 holds chain connectivity shared by the wallet bridge: chain
// definitions loaded from YAML and the Client interface that every chain
// backend exposes to the wallet and contract layers.
package web3

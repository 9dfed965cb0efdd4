// Package config loads the WalletBridge JSON configuration: API address,
// logging, chain endpoints, wallet mode, journal storage, receipt tracker
// queue and notification channels.
package config

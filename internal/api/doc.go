// Package api exposes the wallet and contract operations over REST:
// connecting the wallet, executing contract methods, browsing the
// invocation journal and scraping metrics.
package api

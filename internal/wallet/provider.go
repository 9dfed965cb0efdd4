// Package wallet connects the application to a wallet provider: an object
// with an EIP-1193 style request/response API for account access and
// transaction signing. The provider is always injected explicitly.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	xerrors "WalletBridge/internal/errors"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejectedRequest = 4001
	CodeUnauthorized        = 4100
	CodeUnsupportedMethod   = 4200
	CodeDisconnected        = 4900
	CodeChainDisconnected   = 4901
)

// RequestArguments is the payload passed to Provider.Request.
type RequestArguments struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// Provider is the handle to a wallet. Implementations resolve the request
// or return an error; a *ProviderError carries the wallet's error code.
type Provider interface {
	Request(ctx context.Context, args RequestArguments) (json.RawMessage, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, args RequestArguments) (json.RawMessage, error)

// Request implements Provider.
func (f ProviderFunc) Request(ctx context.Context, args RequestArguments) (json.RawMessage, error) {
	return f(ctx, args)
}

// ProviderError is a coded failure reported by a wallet provider.
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewProviderError builds a ProviderError.
func NewProviderError(code int, message string) *ProviderError {
	return &ProviderError{Code: code, Message: message}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode matches the go-ethereum rpc.Error interface.
func (e *ProviderError) ErrorCode() int { return e.Code }

// ErrorData matches the go-ethereum rpc.DataError interface.
func (e *ProviderError) ErrorData() any { return e.Data }

type codedError interface {
	ErrorCode() int
}

// ProviderErrorCode extracts the provider or JSON-RPC error code from err.
func ProviderErrorCode(err error) (int, bool) {
	var coded codedError
	if errors.As(err, &coded) {
		return coded.ErrorCode(), true
	}
	return 0, false
}

// Classify maps a provider failure onto the error taxonomy. User rejection
// is always USER_REJECTED and a missing account authorization is
// NOT_CONNECTED; everything else gets the fallback code.
func Classify(err error, fallback xerrors.Code, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := xerrors.From(err); ok {
		return err
	}
	if code, ok := ProviderErrorCode(err); ok {
		switch code {
		case CodeUserRejectedRequest:
			return xerrors.Wrap(xerrors.CodeUserRejected, err, "")
		case CodeUnauthorized:
			return xerrors.Wrap(xerrors.CodeNotConnected, err, "")
		}
	}
	return xerrors.Wrap(fallback, err, message)
}

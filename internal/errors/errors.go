// Package errors 定义 WalletBridge 统一的错误码及其默认属性。
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于通知和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeNoProvider         Code = "NO_PROVIDER"
	CodeUserRejected       Code = "USER_REJECTED"
	CodeConnectionFailed   Code = "CONNECTION_FAILED"
	CodeNotConnected       Code = "NOT_CONNECTED"
	CodeContractCallFailed Code = "CONTRACT_CALL_FAILED"
	CodeExecutionReverted  Code = "EXECUTION_REVERTED"
	CodeStorageFailure     Code = "STORAGE_FAILURE"
	CodeQueueFailure       Code = "QUEUE_FAILURE"
	CodeTimeout            Code = "TIMEOUT"
)

// Attributes 为错误码提供默认行为。HTTPStatus 为 0 时按 500 处理。
type Attributes struct {
	Message    string
	Severity   Severity
	Retryable  bool
	HTTPStatus int
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:            {Message: "unknown error", Severity: SeverityCritical, HTTPStatus: http.StatusInternalServerError},
		CodeInvalidArgument:    {Message: "invalid argument", Severity: SeverityInfo, HTTPStatus: http.StatusBadRequest},
		CodeNotFound:           {Message: "resource not found", Severity: SeverityInfo, HTTPStatus: http.StatusNotFound},
		CodeNoProvider:         {Message: "no wallet provider available", Severity: SeverityWarning, HTTPStatus: http.StatusServiceUnavailable},
		CodeUserRejected:       {Message: "user rejected the request", Severity: SeverityInfo, HTTPStatus: http.StatusForbidden},
		CodeConnectionFailed:   {Message: "wallet connection failed", Severity: SeverityWarning, Retryable: true, HTTPStatus: http.StatusBadGateway},
		CodeNotConnected:       {Message: "wallet not connected", Severity: SeverityInfo, HTTPStatus: http.StatusConflict},
		CodeContractCallFailed: {Message: "contract call failed", Severity: SeverityWarning, Retryable: true, HTTPStatus: http.StatusBadGateway},
		CodeExecutionReverted:  {Message: "execution reverted", Severity: SeverityWarning, HTTPStatus: http.StatusUnprocessableEntity},
		CodeStorageFailure:     {Message: "storage failure", Severity: SeverityCritical, Retryable: true, HTTPStatus: http.StatusInternalServerError},
		CodeQueueFailure:       {Message: "queue failure", Severity: SeverityCritical, Retryable: true, HTTPStatus: http.StatusInternalServerError},
		CodeTimeout:            {Message: "operation timed out", Severity: SeverityWarning, Retryable: true, HTTPStatus: http.StatusGatewayTimeout},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// HTTPStatus 返回错误码映射的 HTTP 状态码。
func (c Code) HTTPStatus() int {
	if status := AttributesOf(c).HTTPStatus; status > 0 {
		return status
	}
	return http.StatusInternalServerError
}

// Error 是系统内统一的错误类型，按错误码参与 errors.Is 比较。
type Error struct {
	code      Code
	message   string
	cause     error
	retryable *bool
}

// Option 定义可选配置。
type Option func(*Error)

// WithRetryable 覆盖错误码默认的可重试属性。
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// New 创建错误；message 为空时使用错误码的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Newf 按格式创建错误。
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Wrapf 按格式包裹错误。
func Wrapf(code Code, cause error, format string, args ...any) *Error {
	return Wrap(code, cause, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 只比较错误码，因此 New(code, "") 可作为哨兵使用。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含 cause 的错误描述，可直接返回给调用方。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Retryable 判断是否可重试。
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	if e.retryable != nil {
		return *e.retryable
	}
	return AttributesOf(e.code).Retryable
}

// From 尝试从 error 链中取出统一错误类型。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码，非统一错误返回 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// HTTPStatusOf 返回错误映射的 HTTP 状态码。
func HTTPStatusOf(err error) int {
	return CodeOf(err).HTTPStatus()
}

// RetryableError 判断任意 error 是否可重试。
func RetryableError(err error) bool {
	e, ok := From(err)
	return ok && e.Retryable()
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	return AttributesOf(CodeOf(err)).Severity
}

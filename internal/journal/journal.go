// Package journal 记录每一次合约调用及其最终状态。
package journal

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	xerrors "WalletBridge/internal/errors"

	"github.com/google/uuid"
)

// Kind 区分只读调用与交易。
type Kind string

const (
	KindCall        Kind = "call"
	KindTransaction Kind = "transaction"
)

// Status 表示调用在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusReverted  Status = "reverted"
)

// Terminal 判断状态是否已经不会再变化。
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusReverted
}

// Invocation 描述一次合约调用记录。
type Invocation struct {
	ID           string          `json:"id"`
	Chain        string          `json:"chain,omitempty"`
	Contract     string          `json:"contract"`
	ContractName string          `json:"contract_name,omitempty"`
	Method       string          `json:"method"`
	Args         json.RawMessage `json:"args,omitempty"`
	Kind         Kind            `json:"kind"`
	From         string          `json:"from,omitempty"`
	TxHash       string          `json:"tx_hash,omitempty"`
	Status       Status          `json:"status"`
	Output       json.RawMessage `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	BlockNumber  uint64          `json:"block_number,omitempty"`
	CreatedAt    int64           `json:"created_at"`
	UpdatedAt    int64           `json:"updated_at"`
}

func (inv *Invocation) clone() *Invocation {
	if inv == nil {
		return nil
	}
	c := *inv
	c.Args = cloneRaw(inv.Args)
	c.Output = cloneRaw(inv.Output)
	return &c
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

// CodeInvocationConflict 表示调用 ID 已存在。
const CodeInvocationConflict xerrors.Code = "INVOCATION_CONFLICT"

func init() {
	xerrors.Register(CodeInvocationConflict, xerrors.Attributes{
		Message:    "invocation already exists",
		Severity:   xerrors.SeverityWarning,
		HTTPStatus: http.StatusConflict,
	})
}

var (
	// ErrInvocationNotFound 表示指定的调用记录不存在。
	ErrInvocationNotFound = xerrors.New(xerrors.CodeNotFound, "invocation not found")
	// ErrInvocationConflict 表示调用 ID 重复。
	ErrInvocationConflict = xerrors.New(CodeInvocationConflict, "invocation already exists")
)

// ListOptions 控制 ListLatest 的筛选条件。
type ListOptions struct {
	Limit  int
	Status Status
	Chain  string
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	opts.Chain = strings.TrimSpace(opts.Chain)
}

func (opts ListOptions) match(inv *Invocation) bool {
	if opts.Status != "" && inv.Status != opts.Status {
		return false
	}
	if opts.Chain != "" && inv.Chain != opts.Chain {
		return false
	}
	return true
}

// Store 定义调用记录的持久化接口。
type Store interface {
	Create(ctx context.Context, inv *Invocation) error
	Get(ctx context.Context, id string) (*Invocation, error)
	Update(ctx context.Context, inv *Invocation) error
	ListLatest(ctx context.Context, opts ListOptions) ([]*Invocation, error)
	Stats(ctx context.Context, opts ListOptions) (Stats, error)
	Close() error
}

// NewID 生成新的调用 ID。
func NewID() string {
	return uuid.NewString()
}

func prepareCreate(inv *Invocation, now int64) error {
	if inv == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "invocation 不能为空")
	}
	if strings.TrimSpace(inv.ID) == "" {
		inv.ID = NewID()
	} else if _, err := uuid.Parse(inv.ID); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "调用 ID 必须是 UUID")
	}
	if strings.TrimSpace(inv.Method) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "调用方法不能为空")
	}
	if inv.Kind == "" {
		inv.Kind = KindCall
	}
	if inv.Status == "" {
		inv.Status = StatusPending
	}
	if inv.CreatedAt == 0 {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now
	return nil
}

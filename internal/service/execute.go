package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"WalletBridge/internal/contract"
	xerrors "WalletBridge/internal/errors"
	"WalletBridge/internal/journal"
	"WalletBridge/internal/notify"
	"WalletBridge/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ExecuteRequest 描述一次合约调用。ABI 与 Builtin 二选一。
type ExecuteRequest struct {
	Chain    string            `json:"chain,omitempty"`
	Contract string            `json:"contract"`
	Name     string            `json:"name,omitempty"`
	ABI      json.RawMessage   `json:"abi,omitempty"`
	Builtin  string            `json:"builtin,omitempty"`
	Method   string            `json:"method"`
	Args     []json.RawMessage `json:"args,omitempty"`
	Value    string            `json:"value,omitempty"`
	GasLimit uint64            `json:"gas_limit,omitempty"`
	Wait     bool              `json:"wait,omitempty"`
}

func (req ExecuteRequest) descriptor() (contract.Descriptor, error) {
	builtin := strings.TrimSpace(req.Builtin)
	abiJSON := strings.TrimSpace(string(req.ABI))
	// ABI 也可以是 JSON 字符串形式。
	if strings.HasPrefix(abiJSON, `"`) {
		var s string
		if err := json.Unmarshal(req.ABI, &s); err != nil {
			return contract.Descriptor{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析 ABI 字符串失败")
		}
		abiJSON = s
	}
	switch {
	case builtin != "" && abiJSON != "":
		return contract.Descriptor{}, xerrors.New(xerrors.CodeInvalidArgument, "abi 与 builtin 不能同时指定")
	case builtin != "":
		desc, err := contract.NewBuiltinDescriptor(builtin, req.Contract)
		if err != nil {
			return contract.Descriptor{}, err
		}
		if req.Name != "" {
			desc.Name = req.Name
		}
		return desc, nil
	default:
		return contract.NewDescriptor(req.Name, req.Contract, abiJSON)
	}
}

func parseValue(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(raw, 0)
	if !ok || v.Sign() < 0 {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "无效的转账金额 %q", raw)
	}
	return v, nil
}

// Execute 校验请求、写入调用记录并执行合约方法。
//
// 只读方法直接返回结果；交易在提交后记为 pending，未等待回执时交给
// 跟踪队列。出错时仍返回已写入的调用记录（若有）。
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*journal.Invocation, error) {
	sess, err := s.Session(req.Chain)
	if err != nil {
		return nil, err
	}
	desc, err := req.descriptor()
	if err != nil {
		return nil, err
	}
	method, err := desc.Method(req.Method)
	if err != nil {
		return nil, err
	}
	args, err := contract.ConvertArgs(method, req.Args)
	if err != nil {
		return nil, err
	}
	value, err := parseValue(req.Value)
	if err != nil {
		return nil, err
	}

	rawArgs, err := json.Marshal(req.Args)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码调用参数失败")
	}
	if len(req.Args) == 0 {
		rawArgs = nil
	}
	inv := &journal.Invocation{
		Chain:        sess.Chain,
		Contract:     desc.Address.Hex(),
		ContractName: desc.Name,
		Method:       req.Method,
		Args:         rawArgs,
		Kind:         journal.KindTransaction,
	}
	if method.IsConstant() {
		inv.Kind = journal.KindCall
	}
	if err := s.store.Create(ctx, inv); err != nil {
		return nil, err
	}

	result, execErr := sess.Invoker.Execute(ctx, desc, req.Method, contract.TxOptions{
		Value:    value,
		GasLimit: req.GasLimit,
		Wait:     req.Wait,
	}, args...)

	s.apply(inv, result, execErr)
	if err := s.store.Update(ctx, inv); err != nil {
		s.logger.Error("回写调用记录失败", slog.Any("error", err), slog.String("invocation_id", inv.ID))
		if execErr == nil {
			return inv, err
		}
	}

	if inv.TxHash != "" {
		s.afterSubmit(ctx, inv)
	}
	return inv, execErr
}

func (s *Service) apply(inv *journal.Invocation, result contract.Result, execErr error) {
	if result.From != (common.Address{}) {
		inv.From = result.From.Hex()
	}
	if result.TxHash != (common.Hash{}) {
		inv.TxHash = result.TxHash.Hex()
	}
	if result.Receipt != nil {
		if result.Receipt.BlockNumber != nil {
			inv.BlockNumber = result.Receipt.BlockNumber.Uint64()
		}
		if raw, err := json.Marshal(result.Receipt); err == nil {
			inv.Output = raw
		}
	}

	switch {
	case execErr == nil && result.Kind == contract.KindCall:
		inv.Status = journal.StatusSucceeded
		if raw, err := json.Marshal(contract.FormatOutputs(result.Outputs)); err == nil {
			inv.Output = raw
		}
	case execErr == nil && result.Receipt != nil:
		inv.Status = journal.StatusSucceeded
	case execErr == nil:
		inv.Status = journal.StatusPending
	case result.Receipt != nil && result.Receipt.Status != types.ReceiptStatusSuccessful:
		inv.Status = journal.StatusReverted
	case inv.TxHash != "":
		// 已提交但等待回执失败，交给跟踪器继续处理。
		inv.Status = journal.StatusPending
	default:
		inv.Status = journal.StatusFailed
	}
	if execErr != nil {
		inv.Error = execErr.Error()
		inv.ErrorCode = string(xerrors.CodeOf(execErr))
	}
}

func (s *Service) afterSubmit(ctx context.Context, inv *journal.Invocation) {
	logger.Audit().Info("合约交易已记录",
		slog.String("invocation_id", inv.ID),
		slog.String("chain", inv.Chain),
		slog.String("tx_hash", inv.TxHash),
		slog.String("status", string(inv.Status)),
	)
	if err := s.notifier.Notify(ctx, notify.Event{
		Kind:         notify.KindTxSubmitted,
		Message:      fmt.Sprintf("transaction %s submitted for %s.%s", inv.TxHash, labelOf(inv), inv.Method),
		Severity:     xerrors.SeverityInfo,
		InvocationID: inv.ID,
		TxHash:       inv.TxHash,
		Metadata:     map[string]string{"chain": inv.Chain, "from": inv.From},
	}); err != nil {
		s.logger.Warn("发送交易通知失败", slog.Any("error", err), slog.String("invocation_id", inv.ID))
	}

	if inv.Status != journal.StatusPending || s.producer == nil {
		return
	}
	if err := s.producer.Publish(ctx, inv.ID); err != nil {
		s.logger.Error("调用入队失败", slog.Any("error", err), slog.String("invocation_id", inv.ID))
	}
}

func labelOf(inv *journal.Invocation) string {
	if inv.ContractName != "" {
		return inv.ContractName
	}
	return inv.Contract
}

func hexAccounts(in []common.Address) []string {
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = a.Hex()
	}
	return out
}

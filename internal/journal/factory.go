package journal

import (
	"context"
	"strings"

	"WalletBridge/internal/config"
	xerrors "WalletBridge/internal/errors"
)

// Open 按配置的 driver 创建调用记录存储。
func Open(ctx context.Context, cfg config.JournalConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "mysql":
		return NewMySQLStore(ctx, cfg)
	default:
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "不支持的 journal driver: %s", cfg.Driver)
	}
}

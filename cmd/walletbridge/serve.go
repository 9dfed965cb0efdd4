package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"WalletBridge/internal/api"
	"WalletBridge/internal/config"
	"WalletBridge/internal/journal"
	"WalletBridge/internal/notify"
	"WalletBridge/internal/observability/metrics"
	"WalletBridge/internal/service"
	"WalletBridge/internal/tracker"
	"WalletBridge/internal/wallet"
	"WalletBridge/internal/wallet/keyed"
	"WalletBridge/internal/web3"
	"WalletBridge/internal/web3/provider"
	"WalletBridge/pkg/logger"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "start the walletbridge API server and receipt tracker",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "path to the JSON configuration file",
			EnvVars: []string{config.EnvConfigPath},
		},
		&cli.StringFlag{Name: "listen", Usage: "override server.address from the configuration"},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := config.Load(config.ResolvePath(cctx.String("config")))
		if err != nil {
			return err
		}
		if listen := cctx.String("listen"); listen != "" {
			cfg.Server.Address = listen
		}
		return run(cctx.Context, cfg)
	},
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()
	log := logger.Named("walletbridge")

	registry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer registry.Close()

	notifier, closeNotifier, err := buildNotifier(ctx, cfg.Notify)
	if err != nil {
		return err
	}
	defer closeNotifier()

	sessions, err := buildSessions(ctx, cfg, registry, notifier)
	if err != nil {
		return err
	}

	store, err := journal.Open(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	queue, err := tracker.OpenQueue(ctx, cfg.Tracker)
	if err != nil {
		_ = store.Close()
		return err
	}

	svc, err := service.New(registry.DefaultChain(), sessions, store, queue, service.WithNotifier(notifier))
	if err != nil {
		_ = queue.Close()
		_ = store.Close()
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warn("关闭服务资源失败", slog.Any("error", err))
		}
	}()

	processor := tracker.NewProcessor(store, queue, queue, svc.WaiterResolver(),
		tracker.WithWorkerCount(cfg.Tracker.Workers),
		tracker.WithNotifier(notifier),
	)
	// 先停止跟踪器再关闭 store 与队列。
	stopProcessor := startBackground(ctx, processor, log)
	defer stopProcessor()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("metrics 服务异常退出", slog.Any("error", err))
			}
		}()
	}

	log.Info("walletbridge 已启动",
		slog.String("address", cfg.Server.Address),
		slog.String("wallet_mode", cfg.Wallet.Mode),
		slog.Any("chains", svc.Chains()),
		slog.String("default_chain", svc.DefaultChain()),
	)
	if err := api.NewServer(cfg.Server.Address, svc).Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type starter interface {
	Start(ctx context.Context) error
}

// startBackground 在后台运行 s，返回的函数取消其 ctx 并等待其退出。
func startBackground(ctx context.Context, s starter, log *slog.Logger) func() {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("回执跟踪器异常退出", slog.Any("error", err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

type backendSource interface {
	Backend() *ethclient.Client
}

func buildSessions(ctx context.Context, cfg *config.Config, registry *provider.Registry, notifier notify.Notifier) ([]*service.Session, error) {
	var privateKey string
	if cfg.Wallet.Mode == "keyed" {
		privateKey = strings.TrimSpace(os.Getenv(cfg.Wallet.PrivateKeyEnv))
		if privateKey == "" {
			return nil, fmt.Errorf("环境变量 %s 未设置私钥", cfg.Wallet.PrivateKeyEnv)
		}
	}

	sessionCfg := service.SessionConfig{
		RequestTimeout: cfg.Wallet.RequestTimeout(),
		PollInterval:   cfg.Wallet.ReceiptPollInterval(),
		Notifier:       notifier,
	}
	sessions := make([]*service.Session, 0, len(registry.Chains()))
	for _, name := range registry.Chains() {
		client, err := registry.Resolve(name)
		if err != nil {
			return nil, err
		}
		logSnapshot(ctx, client)

		var p wallet.Provider = client
		if cfg.Wallet.Mode == "keyed" {
			src, ok := client.(backendSource)
			if !ok {
				return nil, fmt.Errorf("链 %s 不支持本地签名", name)
			}
			kp, err := keyed.NewFromHex(privateKey, src.Backend(), nil)
			if err != nil {
				return nil, err
			}
			p = kp
		}
		sessions = append(sessions, service.NewSession(name, p, sessionCfg))
	}
	return sessions, nil
}

func logSnapshot(ctx context.Context, client web3.Client) {
	snapshot, err := client.FetchChainSnapshot(ctx)
	if err != nil {
		logger.L().Warn("获取链状态失败", slog.Any("error", err))
		return
	}
	logger.L().Info("链已就绪",
		slog.String("chain", snapshot.Name),
		slog.String("chain_id", snapshot.ChainID),
		slog.String("block_number", snapshot.BlockNumber),
	)
}

func buildNotifier(ctx context.Context, cfg config.NotifyConfig) (notify.Notifier, func(), error) {
	var notifiers []notify.Notifier
	closeFn := func() {}
	if cfg.Log {
		notifiers = append(notifiers, notify.NewLogNotifier(logger.Named("notify")))
	}
	if cfg.Redis.Enabled {
		rn, err := notify.NewRedisNotifier(ctx, notify.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, rn)
		closeFn = func() { _ = rn.Close() }
	}
	if len(notifiers) == 0 {
		return notify.Nop, closeFn, nil
	}
	return notify.NewFanout(notifiers...), closeFn, nil
}

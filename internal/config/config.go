package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"WalletBridge/pkg/logger"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "WALLETBRIDGE_CONFIG"

// DefaultPath 是未指定路径时使用的配置文件。
var DefaultPath = filepath.Join("configs", "walletbridge.json")

// Config 描述了 WalletBridge 在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging logger.Config `json:"logging"`
	Web3    Web3Config    `json:"web3"`
	Wallet  WalletConfig  `json:"wallet"`
	Journal JournalConfig `json:"journal"`
	Tracker TrackerConfig `json:"tracker"`
	Notify  NotifyConfig  `json:"notify"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
//
// MetricsAddress 非空时额外启动独立的 /metrics 监听。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// Web3Config 包含访问区块链节点所需的 RPC 地址。
type Web3Config struct {
	RPCURL       string `json:"rpc_url"`
	ChainConfig  string `json:"chain_config"`
	DefaultChain string `json:"default_chain"`
}

// WalletConfig 决定使用哪种钱包 provider。
//
// mode 为 rpc 时直接转发到节点；为 keyed 时使用本地私钥签名，
// 私钥从 PrivateKeyEnv 指定的环境变量读取。
type WalletConfig struct {
	Mode                  string `json:"mode"`
	PrivateKeyEnv         string `json:"private_key_env"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
	ReceiptPollMillis     int    `json:"receipt_poll_ms"`
}

// RequestTimeout 返回钱包请求的超时时间。
func (w WalletConfig) RequestTimeout() time.Duration {
	return time.Duration(w.RequestTimeoutSeconds) * time.Second
}

// ReceiptPollInterval 返回查询交易回执的间隔。
func (w WalletConfig) ReceiptPollInterval() time.Duration {
	return time.Duration(w.ReceiptPollMillis) * time.Millisecond
}

// JournalConfig 描述调用记录的存储后端。
type JournalConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// TrackerConfig 描述交易回执跟踪队列。
type TrackerConfig struct {
	Driver   string         `json:"driver"`
	Workers  int            `json:"workers"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 连接。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 连接。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// NotifyConfig 控制状态通知的投递渠道。
type NotifyConfig struct {
	Log   bool              `json:"log"`
	Redis NotifyRedisConfig `json:"redis"`
}

// NotifyRedisConfig 启用时通过 Redis PUBLISH 广播事件。
type NotifyRedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
}

// ResolvePath 按参数、环境变量、默认值的顺序确定配置文件路径。
func ResolvePath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
		return env
	}
	return DefaultPath
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查互相依赖的配置项。
func (c *Config) Validate() error {
	switch c.Wallet.Mode {
	case "rpc":
	case "keyed":
		if strings.TrimSpace(c.Wallet.PrivateKeyEnv) == "" {
			return errors.New("keyed 钱包模式需要配置 private_key_env")
		}
	default:
		return fmt.Errorf("未知的钱包模式: %s", c.Wallet.Mode)
	}
	switch c.Journal.Driver {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Journal.DSN) == "" {
			return errors.New("mysql 调用记录需要配置 dsn")
		}
	default:
		return fmt.Errorf("未知的调用记录驱动: %s", c.Journal.Driver)
	}
	switch c.Tracker.Driver {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.Tracker.Driver)
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}

	if c.Wallet.Mode == "" {
		c.Wallet.Mode = "rpc"
	}
	if c.Wallet.RequestTimeoutSeconds <= 0 {
		c.Wallet.RequestTimeoutSeconds = 120
	}
	if c.Wallet.ReceiptPollMillis <= 0 {
		c.Wallet.ReceiptPollMillis = 1000
	}

	if c.Journal.Driver == "" {
		c.Journal.Driver = "memory"
	}

	if c.Tracker.Driver == "" {
		c.Tracker.Driver = "memory"
	}
	if c.Tracker.Workers <= 0 {
		c.Tracker.Workers = 2
	}

	if c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}
}

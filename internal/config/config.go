// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/spf13/viper"

	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
	"github.com/smartdevs17/coinwatch-gateway/pkg/validation"
)

// DefaultContractAddress is the deployed watch contract used when none is
// configured
const DefaultContractAddress = "0x83c5541a6c8d2dbad642f385d8d06ca9b6c731ee"

// Config holds all configuration for the application
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Node          NodeConfig         `mapstructure:"node"`
	Contract      ContractConfig     `mapstructure:"contract"`
	Poller        PollerConfig       `mapstructure:"poller"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// NodeConfig contains Ethereum node connection configuration
type NodeConfig struct {
	NodeURL        string        `mapstructure:"node_url" validate:"required,url"`
	NetworkID      uint64        `mapstructure:"network_id"`
	BackupNodes    []string      `mapstructure:"backup_nodes" validate:"dive,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	RetryAttempts  int           `mapstructure:"retry_attempts" validate:"gte=1"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// ContractConfig identifies the watch contract and how to transact with it
type ContractConfig struct {
	Address   string `mapstructure:"address" validate:"required,eth_addr"`
	SenderKey string `mapstructure:"sender_key"`
	GasLimit  uint64 `mapstructure:"gas_limit" validate:"gt=0"`
	// GasPrice in wei; empty uses the node's suggested price
	GasPrice string `mapstructure:"gas_price" validate:"omitempty,number"`
}

// PollerConfig contains owner updater configuration
type PollerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Interval       time.Duration `mapstructure:"interval" validate:"gt=0"`
	UpdateInterval time.Duration `mapstructure:"update_interval" validate:"gt=0"`
	Confirmations  int           `mapstructure:"confirmations" validate:"gte=0"`
	BalanceAPIURL  string        `mapstructure:"balance_api_url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	RetryMax       int           `mapstructure:"retry_max" validate:"gte=0"`
}

// StorageConfig contains journal database configuration
type StorageConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Type             string        `mapstructure:"type" validate:"oneof=sqlite postgres postgresql"`
	ConnectionString string        `mapstructure:"connection_string" validate:"required_if=Enabled true"`
	MaxConnections   int           `mapstructure:"max_connections" validate:"gte=1"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// NotificationConfig contains user notification configuration
type NotificationConfig struct {
	WebhookURL string        `mapstructure:"webhook_url" validate:"omitempty,url"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RetryMax   int           `mapstructure:"retry_max" validate:"gte=0"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port" validate:"gte=1,lte=65535"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
	Output string `mapstructure:"output" validate:"oneof=stdout stderr file"`
	File   string `mapstructure:"file" validate:"required_if=Output file"`
}

// Load loads configuration from file and environment variables. Variables
// are named COINWATCH_<SECTION>_<KEY>, e.g. COINWATCH_NODE_NODE_URL.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("COINWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, utils.WrapError(utils.ErrCodeConfiguration, "Error reading config file", err)
		}
		utils.ComponentLogger("config").Debug("Config file not found, using defaults and environment variables")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, utils.WrapError(utils.ErrCodeConfiguration, "Error unmarshaling config", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "coinwatch-gateway")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	v.SetDefault("node.node_url", "http://127.0.0.1:8545")
	v.SetDefault("node.network_id", 0)
	v.SetDefault("node.backup_nodes", []string{})
	v.SetDefault("node.request_timeout", "30s")
	v.SetDefault("node.retry_attempts", 3)
	v.SetDefault("node.retry_delay", "5s")

	v.SetDefault("contract.address", DefaultContractAddress)
	v.SetDefault("contract.sender_key", "")
	// below params.TxGas; deployments on current nodes must raise it
	v.SetDefault("contract.gas_limit", 10000)
	v.SetDefault("contract.gas_price", "")

	v.SetDefault("poller.enabled", false)
	v.SetDefault("poller.interval", "10m")
	v.SetDefault("poller.update_interval", "1h")
	v.SetDefault("poller.confirmations", 6)
	v.SetDefault("poller.balance_api_url", "https://blockchain.info")
	v.SetDefault("poller.request_timeout", "10s")
	v.SetDefault("poller.retry_max", 2)

	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", "./data/coinwatch.db")
	v.SetDefault("storage.max_connections", 10)
	v.SetDefault("storage.max_idle_time", "15m")

	v.SetDefault("notifications.webhook_url", "")
	v.SetDefault("notifications.timeout", "10s")
	v.SetDefault("notifications.retry_max", 2)

	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_health", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file", "")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	if _, err := c.Contract.GasPriceWei(); err != nil {
		return err
	}
	return nil
}

// ContractAddress returns the configured contract address
func (c *ContractConfig) ContractAddress() common.Address {
	return common.HexToAddress(c.Address)
}

// GasPriceWei parses the configured gas price. It returns nil when the node
// price should be used.
func (c *ContractConfig) GasPriceWei() (*big.Int, error) {
	if c.GasPrice == "" {
		return nil, nil
	}
	price, ok := new(big.Int).SetString(c.GasPrice, 10)
	if !ok || price.Sign() < 0 {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid gas price", c.GasPrice)
	}
	return price, nil
}

// BelowIntrinsicGas reports whether GasLimit is under the gas every plain
// transaction costs. Current nodes reject such transactions.
func (c *ContractConfig) BelowIntrinsicGas() bool {
	return c.GasLimit < params.TxGas
}

// String renders the configuration without secrets
func (c *ContractConfig) String() string {
	sender := "unset"
	if c.SenderKey != "" {
		sender = "set"
	}
	return fmt.Sprintf("contract=%s gas_limit=%d gas_price=%q sender_key=%s", c.Address, c.GasLimit, c.GasPrice, sender)
}

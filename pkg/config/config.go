// Package config loads service configuration from YAML files.
//
// Files may reference environment variables as ${VAR}; a .env file in the
// working directory is loaded first when present. Struct tags supply
// defaults and validation rules.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" default:"60s"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host" default:"localhost" validate:"required"`
	Port     int    `yaml:"port" default:"5432"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database" default:"htlc_relayer" validate:"required"`
	SSLMode  string `yaml:"ssl_mode" default:"disable"`

	MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	DialTimeout     time.Duration `yaml:"dial_timeout" default:"5s"`
}

// ChainConfig describes one chain a watcher or resolver serves
type ChainConfig struct {
	// ID is the chain id orders refer to in src_chain_id / dst_chain_id.
	ID   string `yaml:"id" validate:"required"`
	Name string `yaml:"name"`
	// Type selects the chain adapter.
	Type              string        `yaml:"type" default:"evm" validate:"oneof=evm sim"`
	RPCURL            string        `yaml:"rpc_url" validate:"required_if=Type evm"`
	EscrowContract    string        `yaml:"escrow_contract" validate:"omitempty,eth_addr"`
	ConfirmationDepth uint64        `yaml:"confirmation_depth" default:"12"`
	StartBlock        uint64        `yaml:"start_block"`
	MaxBlockSpan      uint64        `yaml:"max_block_span" default:"1000" validate:"gt=0"`
	PollingInterval   time.Duration `yaml:"polling_interval" default:"5s" validate:"gt=0"`
	GasLimit          uint64        `yaml:"gas_limit" default:"500000"`
	MaxGasPrice       string        `yaml:"max_gas_price"`
	// SupportedAssets lists token addresses the resolver will trade on this chain.
	SupportedAssets []string `yaml:"supported_assets" validate:"dive,eth_addr"`
	// TxRate caps transaction submissions per second.
	TxRate  float64 `yaml:"tx_rate" default:"2" validate:"gt=0"`
	TxBurst int     `yaml:"tx_burst" default:"1" validate:"gt=0"`
	// DeferralTimeout bounds how long an event may wait for its order, e.g. a
	// destination escrow seen before the source chain confirmed its escrow.
	DeferralTimeout time.Duration `yaml:"deferral_timeout" default:"1h" validate:"gt=0"`
}

// EscrowConfig holds escrow timelock and deposit constants
type EscrowConfig struct {
	WithdrawTimelock uint64 `yaml:"withdraw_timelock" default:"5"`
	RescueTimelock   uint64 `yaml:"rescue_timelock" default:"20"`
	SecurityDeposit  string `yaml:"security_deposit" default:"0"`
	DepositPolicy    string `yaml:"deposit_policy" default:"additive" validate:"oneof=additive prefunded"`
}

// KafkaConfig configures the transition publisher
type KafkaConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Brokers  string `yaml:"brokers" validate:"required_if=Enabled true"`
	Topic    string `yaml:"topic" default:"swap.transitions"`
	ClientID string `yaml:"client_id" default:"htlc-watcher"`
}

// AuthConfig holds service-token settings
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer" default:"htlc-relayer"`
	TokenTTL  time.Duration `yaml:"token_ttl" default:"1h"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" default:"info"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	OutputPath string `yaml:"output_path" default:"stdout"`
}

// RegistryClientConfig tells a service how to reach the relayer API
type RegistryClientConfig struct {
	URL         string        `yaml:"url" validate:"required,url"`
	Timeout     time.Duration `yaml:"timeout" default:"10s"`
	ServiceName string        `yaml:"service_name" validate:"required"`
}

// RegistryConfig tunes the order registry
type RegistryConfig struct {
	DefaultPageLimit int `yaml:"default_page_limit" default:"100" validate:"gt=0"`
	MaxPageLimit     int `yaml:"max_page_limit" default:"500" validate:"gtefield=DefaultPageLimit"`
}

// RelayerConfig is the configuration of the order registry service
type RelayerConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Registry   RegistryConfig   `yaml:"registry"`
	Auth       AuthConfig       `yaml:"auth"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// WatcherConfig is the configuration of the chain watcher
type WatcherConfig struct {
	Server   ServerConfig         `yaml:"server"`
	Database DatabaseConfig       `yaml:"database"`
	Registry RegistryClientConfig `yaml:"registry"`
	Chains   []ChainConfig        `yaml:"chains" validate:"required,min=1,dive"`
	Kafka    KafkaConfig          `yaml:"kafka"`
	Auth     AuthConfig           `yaml:"auth"`
	// ExpiryInterval is how often unmatched orders past their deadline are expired.
	ExpiryInterval time.Duration    `yaml:"expiry_interval" default:"30s" validate:"gt=0"`
	Monitoring     MonitoringConfig `yaml:"monitoring"`
	Logging        LoggingConfig    `yaml:"logging"`
}

// ExecutorConfig tunes the resolver executor
type ExecutorConfig struct {
	PrivateKey   string `yaml:"private_key"`
	EncryptedKey string `yaml:"encrypted_key"`
	MasterKey    string `yaml:"master_key"`

	Workers       int           `yaml:"workers" default:"8" validate:"gt=0"`
	PollInterval  time.Duration `yaml:"poll_interval" default:"5s" validate:"gt=0"`
	PageSize      int           `yaml:"page_size" default:"100" validate:"gt=0"`
	ActionTimeout time.Duration `yaml:"action_timeout" default:"2m"`
	// MaxElapsedTime bounds retries of one action.
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time" default:"1m"`
	InitialInterval time.Duration `yaml:"initial_interval" default:"500ms"`
	MaxInterval     time.Duration `yaml:"max_interval" default:"10s"`
	RescueInterval  time.Duration `yaml:"rescue_interval" default:"1m" validate:"gt=0"`
}

// ResolverConfig is the configuration of the resolver executor service
type ResolverConfig struct {
	Server     ServerConfig         `yaml:"server"`
	Registry   RegistryClientConfig `yaml:"registry"`
	Chains     []ChainConfig        `yaml:"chains" validate:"required,min=1,dive"`
	Escrow     EscrowConfig         `yaml:"escrow"`
	Executor   ExecutorConfig       `yaml:"executor"`
	Auth       AuthConfig           `yaml:"auth"`
	Monitoring MonitoringConfig     `yaml:"monitoring"`
	Logging    LoggingConfig        `yaml:"logging"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadRelayer loads the relayer configuration from file
func LoadRelayer(path string) (*RelayerConfig, error) {
	cfg := &RelayerConfig{}
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWatcher loads the watcher configuration from file
func LoadWatcher(path string) (*WatcherConfig, error) {
	cfg := &WatcherConfig{}
	if err := load(path, cfg, chainDefaults(&cfg.Chains)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadResolver loads the resolver configuration from file
func LoadResolver(path string) (*ResolverConfig, error) {
	cfg := &ResolverConfig{}
	if err := load(path, cfg, chainDefaults(&cfg.Chains)); err != nil {
		return nil, err
	}
	if cfg.Executor.PrivateKey == "" && cfg.Executor.EncryptedKey == "" {
		return nil, errors.New("config validation failed: executor.private_key or executor.encrypted_key is required")
	}
	return cfg, nil
}

// chainDefaults fills defaults of chain entries created by the YAML decoder
// and checks per-type requirements.
func chainDefaults(chains *[]ChainConfig) func() error {
	return func() error {
		seen := make(map[string]bool)
		for i := range *chains {
			c := &(*chains)[i]
			if err := defaults.Set(c); err != nil {
				return fmt.Errorf("chain %d: %w", i, err)
			}
			if c.Type == "evm" && c.EscrowContract == "" {
				return fmt.Errorf("chain %s: escrow_contract is required for evm chains", c.ID)
			}
			if seen[c.ID] {
				return fmt.Errorf("chain %s configured twice", c.ID)
			}
			seen[c.ID] = true
		}
		return nil
	}
}

func load(path string, cfg any, post ...func() error) error {
	if err := loadDotEnv(); err != nil {
		return err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return parse(raw, cfg, post...)
}

func parse(raw []byte, cfg any, post ...func() error) error {
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for _, fn := range post {
		if err := fn(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Addr returns host:port
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Chain returns the chain with the given id
func Chain(chains []ChainConfig, id string) (ChainConfig, bool) {
	for _, c := range chains {
		if c.ID == id {
			return c, true
		}
	}
	return ChainConfig{}, false
}

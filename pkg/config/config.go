package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the permit audit configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Networks   []NetworkConfig  `yaml:"networks" validate:"required,min=1,unique=ChainID,dive"`
	Audit      AuditConfig      `yaml:"audit"`
	Identity   IdentityConfig   `yaml:"identity"`
	Report     ReportConfig     `yaml:"report"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig contains connection settings of the permit database
type DatabaseConfig struct {
	Host     string `yaml:"host" default:"localhost" validate:"required"`
	Port     int    `yaml:"port" default:"5432" validate:"min=1,max=65535"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database" validate:"required"`
	SSLMode  string `yaml:"ssl_mode" default:"disable"`
	// PageSize is the number of permit rows fetched per query.
	PageSize int `yaml:"page_size" default:"1000" validate:"min=1"`
}

// NetworkConfig maps a chain id to its RPC endpoint and Permit2 deployment
type NetworkConfig struct {
	ChainID        uint64        `yaml:"chain_id" validate:"required"`
	RPCURL         string        `yaml:"rpc_url" validate:"required,url"`
	Permit2Address string        `yaml:"permit2_address" default:"0x000000000022D473030F116dDEE9F6B43aC78BA3" validate:"eth_addr"`
	CallTimeout    time.Duration `yaml:"call_timeout" default:"15s"`
}

// AuditConfig contains batch verification settings
type AuditConfig struct {
	// Concurrency limits in-flight verifications. Zero dispatches every permit at once.
	Concurrency int `yaml:"concurrency" default:"0" validate:"min=0"`
	// RetryDelay is the pause between the first pass and the retry pass.
	RetryDelay       time.Duration `yaml:"retry_delay" default:"1s"`
	PartnerAllowlist []string      `yaml:"partner_allowlist" validate:"dive,eth_addr"`
}

// IdentityConfig contains settings of the GitHub identity resolver
type IdentityConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BaseURL     string        `yaml:"base_url" default:"https://api.github.com" validate:"url"`
	Token       string        `yaml:"token"`
	Timeout     time.Duration `yaml:"timeout" default:"10s"`
	Concurrency int           `yaml:"concurrency" default:"8" validate:"min=1"`
}

// ReportConfig contains report rendering settings
type ReportConfig struct {
	OutputDir       string           `yaml:"output_dir" default:"reports"`
	Format          string           `yaml:"format" default:"markdown" validate:"oneof=markdown csv both"`
	DefaultDecimals int32            `yaml:"default_decimals" default:"18" validate:"min=0,max=77"`
	Decimals        map[string]int32 `yaml:"decimals"`
}

// MonitoringConfig contains settings of the optional monitoring server
type MonitoringConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"9090" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"5s"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" default:"info"`
	Format     string `yaml:"format" default:"json"`
	OutputPath string `yaml:"output_path" default:"stdout"`
}

// Load loads configuration from a YAML file. ${VAR} references are
// expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes, defaults and validates a YAML configuration document
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	for i := range cfg.Networks {
		if err := defaults.Set(&cfg.Networks[i]); err != nil {
			return nil, fmt.Errorf("failed to apply network defaults: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Network returns the configuration of chainID
func (c *Config) Network(chainID uint64) (NetworkConfig, bool) {
	for _, n := range c.Networks {
		if n.ChainID == chainID {
			return n, true
		}
	}
	return NetworkConfig{}, false
}

// Validate checks the struct tags of the whole configuration. Call it again
// after applying command line overrides.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// SetPartnerAllowlist replaces the allowlist with a comma separated list of addresses
func (c *AuditConfig) SetPartnerAllowlist(list string) {
	c.PartnerAllowlist = c.PartnerAllowlist[:0]
	for _, addr := range strings.Split(list, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			c.PartnerAllowlist = append(c.PartnerAllowlist, addr)
		}
	}
}

// DecimalsFor returns the number of decimals configured for a token symbol
func (c *ReportConfig) DecimalsFor(symbol string) int32 {
	if d, ok := c.Decimals[symbol]; ok {
		return d
	}
	return c.DefaultDecimals
}

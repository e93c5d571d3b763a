package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/custodia-project/custodia/internal/core"
	"github.com/custodia-project/custodia/internal/validation"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Audit   AuditConfig   `yaml:"audit"`
	Engine  EngineConfig  `yaml:"engine"`

	Rules        []core.Rule        `yaml:"rules"`
	Policies     []core.Policy      `yaml:"policies"`
	Entitlements []core.Entitlement `yaml:"entitlements"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// AdminSecret signs and verifies the admin JWTs. Empty disables the
	// admin surface.
	AdminSecret string `yaml:"admin_secret"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Type string `yaml:"type"` // "memory" or "postgres"
	DSN  string `yaml:"dsn"`
}

// AuditConfig holds configuration for the audit ledger.
type AuditConfig struct {
	// ChainDimension partitions the ledger: "tenant", "org", or "global".
	ChainDimension string `yaml:"chain_dimension"`

	// MirrorPath, when set, additionally appends every committed entry to a
	// JSONL file.
	MirrorPath string `yaml:"mirror_path"`

	// HMACKey signs checkpoints. Empty means unsigned checkpoints.
	HMACKey   string `yaml:"hmac_key"`
	HMACKeyID string `yaml:"hmac_key_id"`
}

// EngineConfig tunes evaluation behavior.
type EngineConfig struct {
	// TieBreak is "deny_wins" (default) or "policy_priority".
	TieBreak string `yaml:"tie_break"`
}

// Load reads and parses the configuration file at the given path.
// It returns a Config struct or an error if loading/parsing/validation fails.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8420"
	}

	switch c.Storage.Type {
	case "", "memory":
		c.Storage.Type = "memory"
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage type 'postgres' requires a dsn")
		}
	default:
		return fmt.Errorf("unknown storage type '%s'", c.Storage.Type)
	}

	switch c.Audit.ChainDimension {
	case "":
		c.Audit.ChainDimension = "tenant"
	case "tenant", "org", "global":
	default:
		return fmt.Errorf("unknown audit chain_dimension '%s'", c.Audit.ChainDimension)
	}
	if c.Audit.HMACKey != "" && c.Audit.HMACKeyID == "" {
		return fmt.Errorf("audit hmac_key requires hmac_key_id")
	}

	switch c.Engine.TieBreak {
	case "":
		c.Engine.TieBreak = "deny_wins"
	case "deny_wins", "policy_priority":
	default:
		return fmt.Errorf("unknown engine tie_break '%s'", c.Engine.TieBreak)
	}

	validRules, err := validation.ValidateRules(c.Rules)
	if err != nil {
		return fmt.Errorf("validating rules: %w", err)
	}
	c.Rules = validRules

	validPolicies, err := validation.ValidatePolicies(c.Policies, validRules)
	if err != nil {
		return fmt.Errorf("validating policies: %w", err)
	}
	c.Policies = validPolicies

	if err := validation.ValidateEntitlements(c.Entitlements); err != nil {
		return fmt.Errorf("validating entitlements: %w", err)
	}

	return nil
}

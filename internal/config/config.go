// Package config handles configuration loading for the EBICS command line
// client.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). This allows secrets like the
// keyring password and database credentials to be injected at runtime.
//
// # Configuration Sections
//
//   - bank: bank endpoint (URL, host ID, protocol version)
//   - subscriber: partner, user and system IDs plus product identification
//   - keyring: where the protected keyring is stored (file or mongodb)
//   - transport: HTTP timeouts and TLS settings
//   - transaction: segment size and bank key verification policy
//   - logging: log level and format
//
// # Example Configuration
//
//	bank:
//	  url: https://ebics.example.com/ebicsweb
//	  hostId: EBIXHOST
//	  version: H004
//
//	subscriber:
//	  partnerId: PARTNER1
//	  userId: USER1
//
//	keyring:
//	  store: mongodb
//	  passwordEnv: EBICS_KEYRING_PASSWORD
//	  mongodb:
//	    uri: ${MONGODB_URI}
//
// See [Load] for loading configuration from a file.
package config

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sirosfoundation/go-ebics/pkg/codec"
	"github.com/sirosfoundation/go-ebics/pkg/subscriber"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

// Config is the root configuration structure
type Config struct {
	Bank        BankConfig        `yaml:"bank"`
	Subscriber  SubscriberConfig  `yaml:"subscriber"`
	KeyRing     KeyRingConfig     `yaml:"keyring"`
	Transport   TransportConfig   `yaml:"transport"`
	Transaction TransactionConfig `yaml:"transaction"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// BankConfig identifies the bank endpoint
type BankConfig struct {
	URL     string `yaml:"url"`
	HostID  string `yaml:"hostId"`
	Version string `yaml:"version"` // H003, H004 or H005 (2.4, 2.5 and 3.0 are accepted too)

	// CertificateRoots is a PEM file of CAs the EBICS 3.0 bank certificates
	// must chain to. Empty accepts self-signed bank certificates.
	CertificateRoots string `yaml:"certificateRoots"`
}

// SubscriberConfig identifies the subscriber at the bank
type SubscriberConfig struct {
	PartnerID string `yaml:"partnerId"`
	UserID    string `yaml:"userId"`
	SystemID  string `yaml:"systemId"`
	Product   string `yaml:"product"`
	Language  string `yaml:"language"`
}

// KeyRingConfig holds keyring storage settings
type KeyRingConfig struct {
	// Store selects the backend
	// - "file": one JSON document per subscriber in Dir
	// - "mongodb": one document per subscriber in a MongoDB collection
	Store string `yaml:"store"`

	// PasswordEnv names the environment variable holding the keyring password
	PasswordEnv string `yaml:"passwordEnv"`

	// KDFCost is the scrypt cost parameter used when sealing private keys
	KDFCost int `yaml:"kdfCost"`

	File    FileStoreConfig    `yaml:"file"`
	MongoDB MongoDBStoreConfig `yaml:"mongodb"`
}

// FileStoreConfig holds file keyring settings
type FileStoreConfig struct {
	Dir string `yaml:"dir"`
}

// MongoDBStoreConfig holds MongoDB keyring settings
type MongoDBStoreConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// TransportConfig holds HTTP client settings
type TransportConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	IdleConnTimeout time.Duration `yaml:"idleConnTimeout"`
	MinTLSVersion   string        `yaml:"minTLSVersion"` // "1.2" or "1.3"
	CAFile          string        `yaml:"caFile"`
}

// TransactionConfig holds transaction engine settings
type TransactionConfig struct {
	MaxSegmentSize          int  `yaml:"maxSegmentSize"`
	RequireVerifiedBankKeys bool `yaml:"requireVerifiedBankKeys"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration from YAML bytes
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bank.Version == "" {
		c.Bank.Version = version.V25.String()
	}
	if c.Subscriber.Product == "" {
		c.Subscriber.Product = "go-ebics"
	}
	if c.Subscriber.Language == "" {
		c.Subscriber.Language = "en"
	}
	if c.KeyRing.Store == "" {
		c.KeyRing.Store = "file"
	}
	if c.KeyRing.PasswordEnv == "" {
		c.KeyRing.PasswordEnv = "EBICS_KEYRING_PASSWORD"
	}
	if c.KeyRing.File.Dir == "" {
		c.KeyRing.File.Dir = "keyrings"
	}
	if c.KeyRing.MongoDB.Database == "" {
		c.KeyRing.MongoDB.Database = "ebics"
	}
	if c.KeyRing.MongoDB.Collection == "" {
		c.KeyRing.MongoDB.Collection = "keyrings"
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 60 * time.Second
	}
	if c.Transport.IdleConnTimeout == 0 {
		c.Transport.IdleConnTimeout = 90 * time.Second
	}
	if c.Transport.MinTLSVersion == "" {
		c.Transport.MinTLSVersion = "1.2"
	}
	if c.Transaction.MaxSegmentSize == 0 {
		c.Transaction.MaxSegmentSize = codec.DefaultMaxSegmentSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c *Config) validate() error {
	if c.Bank.URL == "" {
		return fmt.Errorf("bank.url is required")
	}
	if _, err := version.Parse(c.Bank.Version); err != nil {
		return fmt.Errorf("bank.version: %w", err)
	}
	if err := c.Identity().Validate(); err != nil {
		return err
	}

	switch c.KeyRing.Store {
	case "file", "mongodb":
		// Valid stores
	default:
		return fmt.Errorf("keyring.store must be 'file' or 'mongodb', got '%s'", c.KeyRing.Store)
	}

	if c.KeyRing.Store == "mongodb" && c.KeyRing.MongoDB.URI == "" {
		return fmt.Errorf("keyring.mongodb.uri is required when store is 'mongodb'")
	}

	if _, err := c.TLSMinVersion(); err != nil {
		return err
	}
	if c.Transaction.MaxSegmentSize < 0 {
		return fmt.Errorf("transaction.maxSegmentSize must not be negative")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be 'text' or 'json', got '%s'", c.Logging.Format)
	}

	return nil
}

// Version returns the configured protocol version
func (c *Config) Version() version.Version {
	v, _ := version.Parse(c.Bank.Version)
	return v
}

// Identity returns the subscriber identity described by the config
func (c *Config) Identity() subscriber.Subscriber {
	return subscriber.Subscriber{
		HostID:    c.Bank.HostID,
		PartnerID: c.Subscriber.PartnerID,
		UserID:    c.Subscriber.UserID,
		SystemID:  c.Subscriber.SystemID,
		Product:   c.Subscriber.Product,
		Language:  c.Subscriber.Language,
	}
}

// Password reads the keyring password from the configured environment variable
func (c *Config) Password() (string, error) {
	password := os.Getenv(c.KeyRing.PasswordEnv)
	if password == "" {
		return "", fmt.Errorf("environment variable %s is not set", c.KeyRing.PasswordEnv)
	}
	return password, nil
}

// TLSMinVersion maps transport.minTLSVersion to a crypto/tls constant
func (c *Config) TLSMinVersion() (uint16, error) {
	switch c.Transport.MinTLSVersion {
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("transport.minTLSVersion must be '1.2' or '1.3', got '%s'", c.Transport.MinTLSVersion)
	}
}

// LogLevel maps logging.level to a slog level
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Logging.Level))); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

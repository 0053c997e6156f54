// Package config defines the trust configuration that governs update
// verification: signing key tiers, allowed download domains, certificate
// trust, freshness and rollback policy.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxUpdateSize caps downloads at 500 MiB unless configured.
	DefaultMaxUpdateSize = 500 * 1024 * 1024
	// DefaultVerificationTimeout bounds a single verification pass.
	DefaultVerificationTimeout = 30 * time.Second
	// DefaultMaxTimestampSkew is the tolerated descriptor clock skew before
	// a warning is raised.
	DefaultMaxTimestampSkew = 5 * time.Minute
	// DefaultMaxTimestampAge is the descriptor age past which verification
	// fails hard.
	DefaultMaxTimestampAge = 24 * time.Hour
	// DefaultMaxRollbackVersions bounds the retained backup history.
	DefaultMaxRollbackVersions = 5
)

// TrustConfig is the root configuration for the update pipeline.
type TrustConfig struct {
	// Keys holds the tiered signing public keys, tried in order.
	Keys KeyConfig `yaml:"keys"`

	// AllowedDomains lists hostnames updates may be fetched from.
	AllowedDomains []string `yaml:"allowed_domains"`

	// MaxUpdateSize is the maximum accepted descriptor size in bytes.
	MaxUpdateSize int64 `yaml:"max_update_size"`

	// VerificationTimeout bounds a verification pass; exceeding it is a
	// hard verification failure.
	VerificationTimeout time.Duration `yaml:"verification_timeout"`

	// TrustedCertificates is the set of PEM certificates accepted during
	// chain validation.
	TrustedCertificates []string `yaml:"trusted_certificates"`

	CodeSigning CodeSigningPolicy `yaml:"code_signing"`
	Integrity   IntegrityPolicy   `yaml:"integrity"`
	Rollback    RollbackPolicy    `yaml:"rollback"`

	// PolicyScript is an optional path to a Lua policy hook evaluated
	// during verification.
	PolicyScript string `yaml:"policy_script,omitempty"`
}

// KeyConfig holds PEM-encoded public keys per trust tier. Empty tiers are
// skipped during key selection.
type KeyConfig struct {
	Primary   string `yaml:"primary,omitempty"`
	Backup    string `yaml:"backup,omitempty"`
	Emergency string `yaml:"emergency,omitempty"`
}

// CodeSigningPolicy configures certificate chain handling.
type CodeSigningPolicy struct {
	RequireValidChain bool          `yaml:"require_valid_chain"`
	AllowSelfSigned   bool          `yaml:"allow_self_signed"`
	MaxCertAge        time.Duration `yaml:"max_cert_age"`
	RequiredKeyUsage  []string      `yaml:"required_key_usage,omitempty"`
}

// IntegrityPolicy configures content hash and freshness checks.
type IntegrityPolicy struct {
	EnableDoubleHashing        bool          `yaml:"enable_double_hashing"`
	RequireTimestampValidation bool          `yaml:"require_timestamp_validation"`
	MaxTimestampSkew           time.Duration `yaml:"max_timestamp_skew"`
	MaxTimestampAge            time.Duration `yaml:"max_timestamp_age"`
}

// RollbackPolicy configures monotonic-version protection.
type RollbackPolicy struct {
	Enabled             bool `yaml:"enabled"`
	AllowDowngrade      bool `yaml:"allow_downgrade"`
	MaxRollbackVersions int  `yaml:"max_rollback_versions"`
}

// Default returns a TrustConfig with conservative defaults: timestamp
// validation and rollback protection on, downgrades off.
func Default() *TrustConfig {
	return &TrustConfig{
		MaxUpdateSize:       DefaultMaxUpdateSize,
		VerificationTimeout: DefaultVerificationTimeout,
		CodeSigning: CodeSigningPolicy{
			RequireValidChain: true,
			AllowSelfSigned:   false,
		},
		Integrity: IntegrityPolicy{
			EnableDoubleHashing:        true,
			RequireTimestampValidation: true,
			MaxTimestampSkew:           DefaultMaxTimestampSkew,
			MaxTimestampAge:            DefaultMaxTimestampAge,
		},
		Rollback: RollbackPolicy{
			Enabled:             true,
			AllowDowngrade:      false,
			MaxRollbackVersions: DefaultMaxRollbackVersions,
		},
	}
}

// Load reads a TrustConfig from a YAML file, applying defaults for any
// unset policy fields, and validates it.
func Load(path string) (*TrustConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills zero-valued limits so a sparse config file cannot
// accidentally disable them.
func (c *TrustConfig) applyDefaults() {
	if c.MaxUpdateSize == 0 {
		c.MaxUpdateSize = DefaultMaxUpdateSize
	}
	if c.VerificationTimeout == 0 {
		c.VerificationTimeout = DefaultVerificationTimeout
	}
	if c.Integrity.MaxTimestampSkew == 0 {
		c.Integrity.MaxTimestampSkew = DefaultMaxTimestampSkew
	}
	if c.Integrity.MaxTimestampAge == 0 {
		c.Integrity.MaxTimestampAge = DefaultMaxTimestampAge
	}
	if c.Rollback.MaxRollbackVersions == 0 {
		c.Rollback.MaxRollbackVersions = DefaultMaxRollbackVersions
	}
}

// Validate checks internal consistency of the configuration.
func (c *TrustConfig) Validate() error {
	if c.MaxUpdateSize <= 0 {
		return fmt.Errorf("max_update_size must be positive, got %d", c.MaxUpdateSize)
	}
	if c.VerificationTimeout <= 0 {
		return fmt.Errorf("verification_timeout must be positive, got %s", c.VerificationTimeout)
	}
	if c.Integrity.MaxTimestampSkew > c.Integrity.MaxTimestampAge {
		return fmt.Errorf("max_timestamp_skew (%s) exceeds max_timestamp_age (%s)",
			c.Integrity.MaxTimestampSkew, c.Integrity.MaxTimestampAge)
	}
	if c.Rollback.MaxRollbackVersions < 0 {
		return fmt.Errorf("max_rollback_versions must not be negative, got %d", c.Rollback.MaxRollbackVersions)
	}

	for _, domain := range c.AllowedDomains {
		if domain == "" {
			return fmt.Errorf("allowed_domains contains an empty entry")
		}
		if strings.Contains(domain, "/") {
			return fmt.Errorf("allowed_domains entry %q must be a hostname, not a URL", domain)
		}
	}

	return nil
}

// DomainAllowed reports whether the host of rawURL is in the allow-list.
// An empty allow-list rejects everything: the pipeline fails closed.
func (c *TrustConfig) DomainAllowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}

	for _, domain := range c.AllowedDomains {
		if strings.EqualFold(host, domain) {
			return true
		}
		// Allow subdomains of an allowed domain.
		if strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(domain)) {
			return true
		}
	}

	return false
}

// TierKeys returns the configured PEM keys in trust order. Empty tiers are
// included so callers can report which tier was missing.
func (c *TrustConfig) TierKeys() []string {
	return []string{c.Keys.Primary, c.Keys.Backup, c.Keys.Emergency}
}

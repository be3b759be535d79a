// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/lockvault/lib/custody"
	"github.com/bureau-foundation/lockvault/lib/identity"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// EnvVar names the environment variable read by [Load].
const EnvVar = "LOCKVAULT_CONFIG"

// Config is the daemon configuration.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Vault names the vault whose ledger this daemon serves.
	Vault VaultConfig `yaml:"vault"`

	// Owner configures who may sign permissions, rage quit, and make
	// external calls.
	Owner OwnerConfig `yaml:"owner"`

	// Paths configures file locations.
	Paths PathsConfig `yaml:"paths"`

	// Log configures the daemon's slog handler.
	Log LogConfig `yaml:"log"`

	// RageQuit configures delegate notification on forced release.
	RageQuit RageQuitConfig `yaml:"rage_quit"`

	// ExternalCall configures the gated executor.
	ExternalCall ExternalCallConfig `yaml:"external_call"`

	// Auth configures caller-token checking on the socket.
	Auth AuthConfig `yaml:"auth"`

	// GenesisSection lists tokens and balances minted on first start.
	GenesisSection GenesisConfig `yaml:"genesis"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths    *PathsConfig    `yaml:"paths,omitempty"`
	Log      *LogConfig      `yaml:"log,omitempty"`
	RageQuit *RageQuitConfig `yaml:"rage_quit,omitempty"`
}

// VaultConfig identifies the vault.
type VaultConfig struct {
	// Name derives the vault address via [identity.Named] when Address
	// is empty.
	Name string `yaml:"name"`

	// Address is an explicit 0x-prefixed vault address.
	Address string `yaml:"address"`
}

// OwnerConfig selects the owner's authorizer. Exactly one of
// PublicKey, Threshold, or Remote must be set.
type OwnerConfig struct {
	// PublicKey is a hex ed25519 public key. The owner address is
	// derived from it.
	PublicKey string `yaml:"public_key"`

	// Threshold makes the owner an m-of-n key set.
	Threshold *ThresholdConfig `yaml:"threshold,omitempty"`

	// Remote delegates signature checks to another service.
	Remote *RemoteConfig `yaml:"remote,omitempty"`
}

// ThresholdConfig describes an m-of-n owner.
type ThresholdConfig struct {
	// Name derives the owner's address.
	Name string `yaml:"name"`

	// Keys are hex ed25519 public keys, addressed by position.
	Keys []string `yaml:"keys"`

	// Required is m.
	Required int `yaml:"required"`
}

// RemoteConfig describes an owner validated by another service.
type RemoteConfig struct {
	// Name derives the owner's address.
	Name string `yaml:"name"`

	// Socket is the validator service's Unix socket.
	Socket string `yaml:"socket"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// State holds the database and the daemon's lock file.
	State string `yaml:"state"`

	// Socket is where the daemon listens.
	Socket string `yaml:"socket"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Format is "text" or "json".
	Format string `yaml:"format"`

	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`
}

// RageQuitConfig configures rage-quit hooks.
type RageQuitConfig struct {
	// HookTimeout bounds each delegate hook call, as a Go duration.
	// Default: 2s
	HookTimeout string `yaml:"hook_timeout"`

	// Hooks maps a delegate address to the Unix socket of its hook
	// service.
	Hooks map[string]string `yaml:"hooks,omitempty"`
}

// ExternalCallConfig configures the gated executor.
type ExternalCallConfig struct {
	// DenySelectors are added to the built-in deny list. Each entry is
	// 8 hex digits or a method signature such as
	// "transferFrom(address,address,uint64)".
	DenySelectors []string `yaml:"deny_selectors,omitempty"`
}

// AuthConfig configures caller-token checking.
type AuthConfig struct {
	// ReplayCleanup is how often expired token IDs are dropped.
	// Default: 1m
	ReplayCleanup string `yaml:"replay_cleanup"`
}

// GenesisConfig lists initial custody state.
type GenesisConfig struct {
	Tokens   []GenesisToken   `yaml:"tokens,omitempty"`
	Balances []GenesisBalance `yaml:"balances,omitempty"`
}

// GenesisToken registers a token. Its address is identity.Named(Name).
type GenesisToken struct {
	Name   string `yaml:"name"`
	Symbol string `yaml:"symbol"`
}

// GenesisBalance mints Amount of Token to Holder.
type GenesisBalance struct {
	Token  string `yaml:"token"`
	Holder string `yaml:"holder"`
	Amount uint64 `yaml:"amount"`
}

// Default returns the default configuration, used as a base before
// loading the config file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultState := filepath.Join(homeDir, ".local", "state", "lockvault")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			State:  defaultState,
			Socket: "${LOCKVAULT_STATE}/lockvault.sock",
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		RageQuit: RageQuitConfig{
			HookTimeout: "2s",
		},
		Auth: AuthConfig{
			ReplayCleanup: "1m",
		},
	}
}

// Load loads configuration from the LOCKVAULT_CONFIG environment
// variable. It fails if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your lockvault.yaml config file, or use --config flag", EnvVar)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// Parse loads configuration from YAML bytes, as LoadFile does.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &ConfigOverrides{
				Log: &LogConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
		if overrides.Paths.Socket != "" {
			c.Paths.Socket = overrides.Paths.Socket
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
	}

	if overrides.RageQuit != nil {
		if overrides.RageQuit.HookTimeout != "" {
			c.RageQuit.HookTimeout = overrides.RageQuit.HookTimeout
		}
		for delegate, socket := range overrides.RageQuit.Hooks {
			if c.RageQuit.Hooks == nil {
				c.RageQuit.Hooks = make(map[string]string)
			}
			c.RageQuit.Hooks[delegate] = socket
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["LOCKVAULT_STATE"] = c.Paths.State

	c.Paths.Socket = expandVars(c.Paths.Socket, vars)
	if c.Owner.Remote != nil {
		c.Owner.Remote.Socket = expandVars(c.Owner.Remote.Socket, vars)
	}
	for delegate, socket := range c.RageQuit.Hooks {
		c.RageQuit.Hooks[delegate] = expandVars(socket, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// DatabasePath is the ledger database inside the state directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.State, "lockvault.db")
}

// LockPath is the file flocked by a running daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.State, "lockvault.lock")
}

// VaultAddress resolves the vault's address.
func (c *Config) VaultAddress() (identity.Address, error) {
	if c.Vault.Address != "" {
		address, err := identity.Parse(c.Vault.Address)
		if err != nil {
			return identity.Address{}, fmt.Errorf("vault.address: %w", err)
		}
		return address, nil
	}
	if c.Vault.Name == "" {
		return identity.Address{}, errors.New("vault.name or vault.address is required")
	}
	return identity.Named(c.Vault.Name), nil
}

// HookTimeout parses rage_quit.hook_timeout.
func (c *Config) HookTimeout() (time.Duration, error) {
	return parsePositiveDuration("rage_quit.hook_timeout", c.RageQuit.HookTimeout)
}

// ReplayCleanupInterval parses auth.replay_cleanup.
func (c *Config) ReplayCleanupInterval() (time.Duration, error) {
	return parsePositiveDuration("auth.replay_cleanup", c.Auth.ReplayCleanup)
}

func parsePositiveDuration(field, raw string) (time.Duration, error) {
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, raw)
	}
	return duration, nil
}

// DenySelectors parses external_call.deny_selectors.
func (c *Config) DenySelectors() ([]custody.Selector, error) {
	selectors := make([]custody.Selector, 0, len(c.ExternalCall.DenySelectors))
	for i, raw := range c.ExternalCall.DenySelectors {
		selector, err := custody.ParseSelector(raw)
		if err != nil {
			return nil, fmt.Errorf("external_call.deny_selectors[%d]: %w", i, err)
		}
		selectors = append(selectors, selector)
	}
	return selectors, nil
}

// HookSockets resolves rage_quit.hooks into delegate addresses.
func (c *Config) HookSockets() (map[identity.Address]string, error) {
	hooks := make(map[identity.Address]string, len(c.RageQuit.Hooks))
	for raw, socket := range c.RageQuit.Hooks {
		delegate, err := identity.ParseRef(raw)
		if err != nil {
			return nil, fmt.Errorf("rage_quit.hooks[%q]: %w", raw, err)
		}
		if socket == "" {
			return nil, fmt.Errorf("rage_quit.hooks[%q]: socket path is empty", raw)
		}
		hooks[delegate] = socket
	}
	return hooks, nil
}

// Genesis resolves the genesis section into custody terms.
func (c *Config) Genesis() (custody.Genesis, error) {
	var genesis custody.Genesis
	for i, token := range c.GenesisSection.Tokens {
		if token.Name == "" {
			return custody.Genesis{}, fmt.Errorf("genesis.tokens[%d]: name is required", i)
		}
		genesis.Tokens = append(genesis.Tokens, custody.Token{
			Address: identity.Named(token.Name),
			Symbol:  token.Symbol,
		})
	}
	for i, balance := range c.GenesisSection.Balances {
		token, err := identity.ParseRef(balance.Token)
		if err != nil {
			return custody.Genesis{}, fmt.Errorf("genesis.balances[%d].token: %w", i, err)
		}
		holder, err := identity.ParseRef(balance.Holder)
		if err != nil {
			return custody.Genesis{}, fmt.Errorf("genesis.balances[%d].holder: %w", i, err)
		}
		if balance.Amount > custody.MaxAmount {
			return custody.Genesis{}, fmt.Errorf("genesis.balances[%d].amount: %w", i, custody.ErrAmountOverflow)
		}
		genesis.Balances = append(genesis.Balances, custody.GenesisBalance{
			Token:  token,
			Holder: holder,
			Amount: balance.Amount,
		})
	}
	return genesis, nil
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if _, err := c.VaultAddress(); err != nil {
		errs = append(errs, err)
	}

	owners := 0
	if c.Owner.PublicKey != "" {
		owners++
	}
	if c.Owner.Threshold != nil {
		owners++
		if c.Owner.Threshold.Name == "" {
			errs = append(errs, fmt.Errorf("owner.threshold.name is required"))
		}
		if c.Owner.Threshold.Required < 1 || c.Owner.Threshold.Required > len(c.Owner.Threshold.Keys) {
			errs = append(errs, fmt.Errorf("owner.threshold.required must be between 1 and %d", len(c.Owner.Threshold.Keys)))
		}
	}
	if c.Owner.Remote != nil {
		owners++
		if c.Owner.Remote.Name == "" {
			errs = append(errs, fmt.Errorf("owner.remote.name is required"))
		}
		if c.Owner.Remote.Socket == "" {
			errs = append(errs, fmt.Errorf("owner.remote.socket is required"))
		}
	}
	if owners != 1 {
		errs = append(errs, fmt.Errorf("exactly one of owner.public_key, owner.threshold, owner.remote must be set"))
	}

	if c.Paths.State == "" {
		errs = append(errs, fmt.Errorf("paths.state is required"))
	}
	if c.Paths.Socket == "" {
		errs = append(errs, fmt.Errorf("paths.socket is required"))
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be one of: [text json]"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.HookTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ReplayCleanupInterval(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.DenySelectors(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.HookSockets(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Genesis(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the state directory and the socket's parent.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.State,
		filepath.Dir(c.Paths.Socket),
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

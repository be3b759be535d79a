// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/lockvault/lib/custody"
	"github.com/bureau-foundation/lockvault/lib/identity"
)

const ownerKey = "3b6a27bcceb6a42d62a3a8d02a6f0d73653215771de243a63ac048a18b59da29"

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("expected log.format=text, got %s", cfg.Log.Format)
	}
	if cfg.RageQuit.HookTimeout != "2s" {
		t.Errorf("expected rage_quit.hook_timeout=2s, got %s", cfg.RageQuit.HookTimeout)
	}
}

func TestLoad_RequiresEnvVar(t *testing.T) {
	t.Setenv(EnvVar, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when LOCKVAULT_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "LOCKVAULT_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestLoad_WithEnvVar(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "lockvault.yaml")
	content := `
environment: staging
vault:
  name: treasury
owner:
  public_key: ` + ownerKey + `
paths:
  state: /test/state
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv(EnvVar, configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Paths.Socket != "/test/state/lockvault.sock" {
		t.Errorf("expected socket under state dir, got %s", cfg.Paths.Socket)
	}
	if cfg.DatabasePath() != "/test/state/lockvault.db" {
		t.Errorf("DatabasePath = %s", cfg.DatabasePath())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
environment: development
rage_quit:
  hook_timeout: 5s
development:
  rage_quit:
    hook_timeout: 500ms
  log:
    level: debug
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	timeout, err := cfg.HookTimeout()
	if err != nil {
		t.Fatalf("HookTimeout: %v", err)
	}
	if timeout != 500*time.Millisecond {
		t.Errorf("hook timeout = %s, want 500ms", timeout)
	}
	level, err := cfg.LogLevel()
	if err != nil {
		t.Fatalf("LogLevel: %v", err)
	}
	if level != slog.LevelDebug {
		t.Errorf("log level = %s, want DEBUG", level)
	}
}

func TestProductionDefaultsToJSON(t *testing.T) {
	cfg, err := Parse([]byte("environment: production\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("production log.format = %s, want json", cfg.Log.Format)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("LOCKVAULT_TEST_RUN", "/run/test")

	vars := map[string]string{"HOME": "/home/test"}
	tests := []struct {
		input string
		want  string
	}{
		{"${HOME}/state", "/home/test/state"},
		{"${LOCKVAULT_TEST_RUN}/vault.sock", "/run/test/vault.sock"},
		{"${LOCKVAULT_TEST_UNSET:-/fallback}/x", "/fallback/x"},
		{"/plain/path", "/plain/path"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestResolvers(t *testing.T) {
	delegate := identity.Named("alice")
	cfg, err := Parse([]byte(`
vault:
  name: treasury
owner:
  public_key: ` + ownerKey + `
paths:
  state: /tmp/lockvault-test
rage_quit:
  hooks:
    "@alice": /run/alice.sock
external_call:
  deny_selectors:
    - "transferFrom(address,address,uint64)"
genesis:
  tokens:
    - name: X
      symbol: XT
  balances:
    - token: "@X"
      holder: "@treasury"
      amount: 100
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	vault, err := cfg.VaultAddress()
	if err != nil {
		t.Fatalf("VaultAddress: %v", err)
	}
	if vault != identity.Named("treasury") {
		t.Errorf("vault = %s, want named treasury", vault)
	}

	hooks, err := cfg.HookSockets()
	if err != nil {
		t.Fatalf("HookSockets: %v", err)
	}
	if hooks[delegate] != "/run/alice.sock" {
		t.Errorf("hook for alice = %q", hooks[delegate])
	}

	selectors, err := cfg.DenySelectors()
	if err != nil {
		t.Fatalf("DenySelectors: %v", err)
	}
	if len(selectors) != 1 || selectors[0] != custody.SelectorTransferFrom {
		t.Errorf("deny selectors = %v, want [transferFrom]", selectors)
	}

	genesis, err := cfg.Genesis()
	if err != nil {
		t.Fatalf("Genesis: %v", err)
	}
	if len(genesis.Tokens) != 1 || genesis.Tokens[0].Address != identity.Named("X") {
		t.Errorf("genesis tokens = %+v", genesis.Tokens)
	}
	if len(genesis.Balances) != 1 || genesis.Balances[0].Holder != vault || genesis.Balances[0].Amount != 100 {
		t.Errorf("genesis balances = %+v", genesis.Balances)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing vault",
			yaml:    "owner:\n  public_key: " + ownerKey + "\n",
			wantErr: "vault.name or vault.address is required",
		},
		{
			name:    "no owner",
			yaml:    "vault:\n  name: v\n",
			wantErr: "exactly one of owner.public_key",
		},
		{
			name: "two owners",
			yaml: "vault:\n  name: v\nowner:\n  public_key: " + ownerKey +
				"\n  remote:\n    name: r\n    socket: /x.sock\n",
			wantErr: "exactly one of owner.public_key",
		},
		{
			name: "threshold too high",
			yaml: "vault:\n  name: v\nowner:\n  threshold:\n    name: t\n    keys: [" + ownerKey +
				"]\n    required: 2\n",
			wantErr: "owner.threshold.required must be between 1 and 1",
		},
		{
			name:    "bad log format",
			yaml:    "vault:\n  name: v\nowner:\n  public_key: " + ownerKey + "\nlog:\n  format: xml\n",
			wantErr: "log.format",
		},
		{
			name:    "bad hook timeout",
			yaml:    "vault:\n  name: v\nowner:\n  public_key: " + ownerKey + "\nrage_quit:\n  hook_timeout: -1s\n",
			wantErr: "rage_quit.hook_timeout must be positive",
		},
		{
			name: "bad genesis holder",
			yaml: "vault:\n  name: v\nowner:\n  public_key: " + ownerKey +
				"\ngenesis:\n  balances:\n    - token: \"@X\"\n      holder: nope\n      amount: 1\n",
			wantErr: "genesis.balances[0].holder",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := Parse([]byte(test.yaml))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			err = cfg.Validate()
			if err == nil {
				t.Fatalf("Validate succeeded, want error containing %q", test.wantErr)
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate error %q does not contain %q", err.Error(), test.wantErr)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Paths.State = filepath.Join(root, "state")
	cfg.Paths.Socket = filepath.Join(root, "run", "lockvault.sock")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	for _, dir := range []string{cfg.Paths.State, filepath.Join(root, "run")} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("Stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

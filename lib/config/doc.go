// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the lockvault
// daemon.
//
// Configuration is loaded from a single file specified by either the
// LOCKVAULT_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production uses a shorter rage-quit
// hook timeout and JSON logs unless the file says otherwise.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${LOCKVAULT_STATE}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// Addresses in the file are written either as 0x-prefixed hex or as
// "@name" references to named identities (see [identity.ParseRef]).
// The resolving accessors ([Config.VaultAddress], [Config.Genesis],
// [Config.DenySelectors], [Config.HookSockets]) turn those strings into
// typed values; [Config.Validate] runs all of them so a bad file fails
// at startup.
package config

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for ember.
//
// Configuration lives in ~/.ember/config.toml with sensible defaults,
// environment variable overrides, and validation. The file can be watched
// for changes so edits take effect without a restart.
//
// # Key Types
//
//   - Config: the complete configuration tree
//   - Load: defaults, then file, then environment, then validation
//   - Watcher: fsnotify-based hot reload of the config file
package config

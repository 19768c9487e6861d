// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads gateway client configuration files. Files are
// YAML by default; files ending in .json or .jsonc are parsed as JSON
// extended with // line comments, /* block comments */, and trailing
// commas.
package config

// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

// Package plugin provides attachment descriptors for the stock Janus
// plugins. Each descriptor carries a classifier that turns the
// plugin's raw event frames into named gateway.PluginEvent values;
// events the classifier does not recognize fall through to the raw
// frame delivery, so nothing is lost.
package plugin

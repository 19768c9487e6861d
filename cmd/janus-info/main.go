// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

// janus-info connects to a Janus gateway, prints the server's version
// and plugin inventory as JSON, and exits. It is the quickest way to
// verify that a configuration file, its failover pool, and its
// credentials actually reach a gateway.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/januskit/januskit/gateway"
	"github.com/januskit/januskit/lib/config"
	"github.com/januskit/januskit/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var url string
	var timeout time.Duration
	var verbose bool

	flagSet := pflag.NewFlagSet("janus-info", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $"+config.EnvConfigPath+")")
	flagSet.StringVar(&url, "url", "", "gateway URL; overrides the config file's address pool")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline for connect and query")
	flagSet.BoolVar(&verbose, "verbose", false, "log connection progress to stderr")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var transportConfig transport.Config
	if url != "" {
		transportConfig.Addresses = []transport.Address{{URL: url}}
	} else {
		path, err := config.ResolvePath(configPath)
		if err != nil {
			return err
		}
		file, err := config.Load(path)
		if err != nil {
			return err
		}
		transportConfig = file.TransportConfig()
	}
	transportConfig.Logger = logger

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	conn, err := gateway.Connect(ctx, transportConfig, gateway.Options{
		Logger:            logger,
		KeepAliveInterval: -1,
	})
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close(context.Background())

	info, err := conn.Info(ctx)
	if err != nil {
		return fmt.Errorf("querying server info: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

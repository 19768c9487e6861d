// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

// janus-admin inspects a running Janus gateway through its admin API:
// it lists sessions and handles, dumps per-handle diagnostics, and
// starts or stops packet captures. The configured addresses must
// point at the gateway's admin endpoint and carry the admin secret.
//
// Usage:
//
//	janus-admin --config admin.yaml sessions
//	janus-admin --config admin.yaml handles <session-id>
//	janus-admin --config admin.yaml handle-info <session-id> <handle-id>
//	janus-admin --config admin.yaml start-pcap <session-id> <handle-id> --folder /tmp --filename h.pcap
//	janus-admin --config admin.yaml stop-pcap <session-id> <handle-id>
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/januskit/januskit/gateway"
	"github.com/januskit/januskit/lib/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var timeout time.Duration
	var pcapFolder string
	var pcapFilename string
	var pcapTruncate int

	flagSet := pflag.NewFlagSet("janus-admin", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $"+config.EnvConfigPath+")")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline for connect and query")
	flagSet.StringVar(&pcapFolder, "folder", "", "directory on the gateway host for pcap files")
	flagSet.StringVar(&pcapFilename, "filename", "", "pcap file name")
	flagSet.IntVar(&pcapTruncate, "truncate", 0, "cap captured packets to this many bytes (0 keeps whole packets)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	args := flagSet.Args()
	if len(args) == 0 {
		return fmt.Errorf("missing command (sessions, handles, handle-info, start-pcap, stop-pcap)")
	}

	path, err := config.ResolvePath(configPath)
	if err != nil {
		return err
	}
	file, err := config.Load(path)
	if err != nil {
		return err
	}
	if !file.Admin {
		return fmt.Errorf("config %s does not set admin: true", path)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	transportConfig := file.TransportConfig()
	transportConfig.Logger = logger
	conn, err := gateway.Connect(ctx, transportConfig, gateway.Options{
		Logger:            logger,
		KeepAliveInterval: -1,
	})
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close(context.Background())

	switch command := args[0]; command {
	case "sessions":
		ids, err := conn.ListSessions(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"sessions": ids})

	case "handles":
		sessionID, err := parseID(args, 1, "session-id")
		if err != nil {
			return err
		}
		ids, err := conn.ListHandles(ctx, sessionID)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"session_id": sessionID, "handles": ids})

	case "handle-info":
		sessionID, handleID, err := parseIDPair(args)
		if err != nil {
			return err
		}
		info, err := conn.HandleInfo(ctx, sessionID, handleID)
		if err != nil {
			return err
		}
		return printJSON(info)

	case "start-pcap":
		sessionID, handleID, err := parseIDPair(args)
		if err != nil {
			return err
		}
		if pcapFolder == "" || pcapFilename == "" {
			return fmt.Errorf("start-pcap requires --folder and --filename")
		}
		return conn.StartPCap(ctx, sessionID, handleID, gateway.PCapOptions{
			Folder:   pcapFolder,
			Filename: pcapFilename,
			Truncate: pcapTruncate,
		})

	case "stop-pcap":
		sessionID, handleID, err := parseIDPair(args)
		if err != nil {
			return err
		}
		return conn.StopPCap(ctx, sessionID, handleID)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func parseID(args []string, index int, name string) (uint64, error) {
	if len(args) <= index {
		return 0, fmt.Errorf("missing %s argument", name)
	}
	id, err := strconv.ParseUint(args[index], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, args[index], err)
	}
	return id, nil
}

func parseIDPair(args []string) (uint64, uint64, error) {
	sessionID, err := parseID(args, 1, "session-id")
	if err != nil {
		return 0, 0, err
	}
	handleID, err := parseID(args, 2, "handle-id")
	if err != nil {
		return 0, 0, err
	}
	return sessionID, handleID, nil
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

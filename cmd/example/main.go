// Example program exercising the tool-server client.
//
// Usage:
//
//	# Connect everything in servers.json, print the catalog, wait for Ctrl-C
//	go run ./cmd/example/ -config servers.json
//
//	# Invoke one tool synchronously and exit
//	go run ./cmd/example/ -config servers.json -call mcp_memory_search_nodes -args '{"query":"foo"}'
//
//	# Hot-reload the server set when the config file changes
//	go run ./cmd/example/ -config servers.json -watch
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atomikhq/atomd/pkg/mcp"
	"github.com/atomikhq/atomd/pkg/tools"
)

func main() {
	configPath := flag.String("config", "servers.json", "Path to the server configuration file")
	call := flag.String("call", "", "Qualified tool to invoke (e.g. mcp_memory_search_nodes)")
	argsJSON := flag.String("args", "{}", "Tool arguments as a JSON object")
	timeout := flag.Duration("timeout", 2*time.Minute, "Tool call timeout")
	watch := flag.Bool("watch", false, "Reconcile connections when the config file changes")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *configPath, *call, *argsJSON, *timeout, *watch); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath, call, argsJSON string, timeout time.Duration, watch bool) error {
	cfg, err := mcp.LoadConfig(configPath)
	if err != nil {
		return err
	}

	cache, err := mcp.NewToolCache(configPath)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	manager := mcp.NewManager(
		mcp.WithLogger(logger),
		mcp.WithRegistry(registry),
		mcp.WithCatalogCache(cache),
		mcp.WithCallTimeout(timeout),
	)
	defer manager.DisconnectAll()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	connected := manager.ConnectAll(ctx, cfg)
	fmt.Printf("Connected %d/%d servers\n", connected, len(cfg.Servers))

	decls := registry.Declarations()
	fmt.Printf("Catalog (%d tools):\n", len(decls))
	for _, d := range decls {
		fmt.Printf("  %s: %s\n", d.Name, d.Description)
	}

	if call != "" {
		var args map[string]any
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return fmt.Errorf("parse -args: %w", err)
		}
		text, err := manager.CallSync(call, args, timeout)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	}

	if watch {
		go func() {
			if err := manager.WatchConfig(ctx, configPath); err != nil && ctx.Err() == nil {
				logger.Warn("config watch stopped", "error", err)
			}
		}()
	}

	fmt.Println("Running; Ctrl-C to stop.")
	<-ctx.Done()
	return nil
}

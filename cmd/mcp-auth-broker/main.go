// Command mcp-auth-broker is the CLI entry point for the broker.
//
// Sub-commands: run (default), health, ready, tools, smoke-e2e, version. All
// output is
// single-line JSON with sorted keys on stdout; operational logs go to stderr
// so the audit stream stays machine-readable.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bdobrica/mcp-auth-broker/common/version"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/audit"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/config"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/server"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/smoke"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	// Best-effort: a missing .env is the normal case outside development.
	_ = godotenv.Load()

	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if err := run(command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string) error {
	if command == "version" {
		return printJSON(map[string]any{
			"version":    version.Version,
			"git_commit": version.GitCommit,
			"build_time": version.BuildTime,
		})
	}

	if command == "smoke-e2e" {
		result, err := smoke.Run(context.Background())
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"status":       result.Status,
			"checks":       result.Checks,
			"token_source": result.TokenSource,
		})
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	sinks := []audit.Sink{audit.NewLineSink(os.Stdout)}
	var auditDB *audit.SQLiteSink
	if cfg.AuditDBPath != "" {
		auditDB, err = audit.NewSQLiteSink(cfg.AuditDBPath)
		if err != nil {
			return err
		}
		defer auditDB.Close()
		sinks = append(sinks, auditDB)
	}

	srv, err := server.New(cfg, server.Options{Audit: audit.NewEmitter(sinks...)})
	if err != nil {
		return err
	}

	switch command {
	case "health":
		return printJSON(srv.Health())
	case "ready":
		return printJSON(srv.Readiness())
	case "tools":
		var tools []map[string]any
		for _, def := range srv.DiscoverTools() {
			tools = append(tools, map[string]any{
				"name":         def.Name,
				"description":  def.Description,
				"input_schema": def.InputSchema,
			})
		}
		return printJSON(tools)
	case "run":
		if err := printJSON(map[string]any{
			"status":      "started",
			"service":     cfg.ServiceName,
			"environment": cfg.Environment,
		}); err != nil {
			return err
		}
		if cfg.HTTPAddr != "" {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := server.NewHealthServer(cfg.HTTPAddr, srv).Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q (expected run, health, ready, tools, smoke-e2e or version)", command)
	}
}

// printJSON writes one line of JSON with sorted keys. Maps keep the keys
// sorted courtesy of encoding/json.
func printJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

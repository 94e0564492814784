package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/siteray/siteray-agent/internal/config"
	"github.com/siteray/siteray-agent/internal/database"
	"github.com/siteray/siteray-agent/internal/gateway"
	"github.com/siteray/siteray-agent/internal/storage"
)

var gatewayPort int
var gatewayLogDir string

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the siteray gateway daemon",
	Long: `Starts the siteray gateway: the long-running agent the browser extension
connects to. It owns the session, the lookup cache, the toolbar badge of
every tab and the scan poller.

The extension shell reports tab events and applies the icons and trust bar
updates the gateway pushes back. The popup talks to it with the same
messages the extension popup uses.

Scans that are still running when the gateway stops are resumed on the next
start.

Quick API reference:
  GET  /health                    liveness check
  GET  /api/status                tracked scans, cache size, animations
  POST /api/messages              popup/content message (body: {"type":"..."})
  POST /api/host/events           tab events from the extension shell
  GET  /events                    SSE stream of icon, bar and tab commands
  GET  /ws/scans/{id}/progress    websocket relay of scan progress`,
	RunE: runGateway,
}

func init() {
	gatewayCmd.Flags().IntVar(&gatewayPort, "port", 0,
		fmt.Sprintf("HTTP port to listen on (default %d, overrides config)", config.DefaultPort))
	gatewayCmd.Flags().StringVar(&gatewayLogDir, "log-dir", "logs",
		"directory to write gateway logs for later inspection")
}

func runGateway(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nShutting down gateway gracefully...")
		cancel()
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logFilePath, closeLog, err := setupGatewayFileLogger(gatewayLogDir)
	if err != nil {
		return fmt.Errorf("initialising gateway logger: %w", err)
	}
	defer closeLog()

	if gatewayPort > 0 {
		cfg.Gateway.Port = gatewayPort
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = config.DefaultPort
	}

	kv, closeDB, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	gw, err := gateway.New(cfg, kv)
	if err != nil {
		return err
	}

	fmt.Printf("siteray gateway starting\n")
	fmt.Printf("  Remote API : %s\n", cfg.API.BaseURL)
	fmt.Printf("  Storage    : %s\n", storageLabel(cfg.Database))
	fmt.Printf("  API        : http://127.0.0.1:%d\n", cfg.Gateway.Port)
	fmt.Printf("  Events     : http://127.0.0.1:%d/events\n\n", cfg.Gateway.Port)
	fmt.Printf("  Logs       : %s\n\n", logFilePath)
	fmt.Println("Press Ctrl+C to stop gracefully.")
	fmt.Println()

	slog.Info("gateway logger initialised", "file", logFilePath)
	return gw.Start(ctx)
}

// openStore opens the configured database, applies migrations and returns
// the key/value store over it.
func openStore(ctx context.Context, cfg *config.Config) (storage.KV, func(), error) {
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return storage.NewDB(db), func() { _ = db.Close() }, nil
}

func storageLabel(c config.DatabaseConfig) string {
	if c.Driver == "mysql" {
		return "mysql"
	}
	return "sqlite (" + c.Path + ")"
}

func setupGatewayFileLogger(logDir string) (string, func(), error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating log dir %s: %w", logDir, err)
	}

	ts := time.Now().UTC().Format("20060102-150405")
	runLogPath := filepath.Join(logDir, fmt.Sprintf("gateway-%s.log", ts))
	runFile, err := os.OpenFile(runLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("opening run log file: %w", err)
	}

	latestPath := filepath.Join(logDir, "gateway.log")
	latestFile, err := os.OpenFile(latestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = runFile.Close()
		return "", nil, fmt.Errorf("opening latest log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, runFile, latestFile), &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(handler))
	slog.SetLogLoggerLevel(level)

	cleanup := func() {
		_ = latestFile.Close()
		_ = runFile.Close()
	}
	return runLogPath, cleanup, nil
}

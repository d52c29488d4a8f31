// ABOUTME: Entry point for the squall homeserver
// ABOUTME: Serves the Matrix client-server authentication API

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/squall-im/squall/internal/config"
	"github.com/squall-im/squall/internal/server"
	"github.com/squall-im/squall/internal/store"
	"github.com/squall-im/squall/internal/tokens"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                            _ _
  ___  __ _ _   _  __ _  | | |
 / __|/ _' | | | |/ _' | | | |
 \__ \ (_| | |_| | (_| | | | |
 |___/\__, |\__,_|\__,_| |_|_|
         |_|
`

// getConfigPath returns the path to the squall config file.
// Priority: SQUALL_CONFIG env var > XDG_CONFIG_HOME/squall/config.yaml > ~/.config/squall/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SQUALL_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "squall", "config.yaml")
}

// getDataPath returns the path to the squall data directory.
// Priority: XDG_DATA_HOME/squall > ~/.local/share/squall
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "squall")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: squall <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the homeserver")
		fmt.Println("  init     Create a config file and signing key")
		fmt.Println("  keygen   Generate a new signing key")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "keygen":
		err = runKeygen()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listen:   %s\n", cfg.Server.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Hostname: ")
	cyan.Println(cfg.Server.Hostname)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Driver)
	fmt.Println()

	logger.Info("starting squall",
		"config", configPath,
		"addr", cfg.Server.Addr,
		"hostname", cfg.Server.Hostname,
	)

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	srv, err := server.New(cfg, st, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.ListenAndServe(ctx)
}

// openStore opens the store named by the database config.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "sqlite", "":
		dsn := cfg.Database.DSN
		if dsn == "" {
			dsn = filepath.Join(getDataPath(), "squall.db")
		}
		st, err := store.NewSQLiteStore(dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := store.NewPostgresStore(cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// runInit creates a config file and signing key for a fresh install.
func runInit() error {
	configPath := getConfigPath()
	dataPath := getDataPath()
	keyPath := filepath.Join(dataPath, "signing.pem")
	dbPath := filepath.Join(dataPath, "squall.db")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	if _, err := tokens.GenerateSigningKey(keyPath); err != nil {
		return fmt.Errorf("generating signing key: %w", err)
	}
	green.Printf("  ✓ Created signing key: %s\n", keyPath)

	configContent := fmt.Sprintf(`# squall configuration
# Generated by squall init

server:
  addr: ":8008"
  hostname: "localhost"
  base_url: "http://localhost:8008"

database:
  driver: "sqlite"
  dsn: "%s"

auth:
  key_file: "%s"
  auth_token_ttl: "1h"
  session_ttl: "5m"
  flows:
    - "m.login.password"
    - "m.login.token"
  # Registration stages. The token stage validates an admin-issued
  # one-time code; a password flow only works for accounts provisioned
  # ahead of first login.
  interactive_flows:
    - ["m.login.token"]

logging:
  level: "info"
  format: "text"
`, dbPath, keyPath)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	green.Printf("  ✓ Created config: %s\n", configPath)

	fmt.Println()
	cyan.Println("  Edit the hostname and base_url before exposing the server, then run: squall serve")
	return nil
}

// runKeygen generates a new signing key. The path defaults to the data
// directory and may be overridden as the final argument.
func runKeygen() error {
	keyPath := filepath.Join(getDataPath(), "signing.pem")
	if len(os.Args) > 2 {
		keyPath = os.Args[2]
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0755); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	if _, err := tokens.GenerateSigningKey(keyPath); err != nil {
		return fmt.Errorf("generating signing key: %w", err)
	}

	color.New(color.FgGreen).Printf("  ✓ Created signing key: %s\n", keyPath)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu    sync.Mutex
	level slog.Level
	attrs []slog.Attr
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level: h.level,
		attrs: newAttrs,
	}
}

// WithGroup is a no-op; the flat attr format has no group nesting.
func (h *colorHandler) WithGroup(string) slog.Handler {
	return h
}

// ABOUTME: Entry point for the authgate token and permission gateway
// ABOUTME: Dispatches serve, init, register, health, and pubkey subcommands

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/authgate/internal/config"
	"github.com/2389/authgate/internal/gateway"
	"github.com/2389/authgate/internal/login"
	"github.com/2389/authgate/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
              _   _                 _
   __ _ _   _| |_| |__   __ _  __ _| |_ ___
  / _' | | | | __| '_ \ / _' |/ _' | __/ _ \
 | (_| | |_| | |_| | | | (_| | (_| | ||  __/
  \__,_|\__,_|\__|_| |_|\__, |\__,_|\__\___|
                        |___/
`

// getDataPath returns the path to the authgate data directory.
// Priority: XDG_DATA_HOME/authgate > ~/.local/share/authgate
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "authgate")
}

func usage() {
	fmt.Println("Usage: authgate <command> [--config PATH]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                              Start the gateway server")
	fmt.Println("  init                               Create a new config file interactively")
	fmt.Println("  register --username U --password P Create a user account")
	fmt.Println("  health                             Check gateway health")
	fmt.Println("  pubkey                             Print the running gateway's public key (PEM)")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "init":
		err = runInit(args)
	case "register":
		err = runRegister(ctx, args)
	case "health":
		err = runHealth(ctx, args)
	case "pubkey":
		err = runPubkey(ctx, args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commandFlags returns a flag set with the shared --config flag registered.
func commandFlags(name string, configPath *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("authgate "+name, pflag.ContinueOnError)
	fs.StringVarP(configPath, "config", "c", "", "config file (default: $AUTHGATE_CONFIG or ~/.config/authgate/gateway.yaml)")
	return fs
}

// loadConfig resolves and loads the config file for a subcommand.
func loadConfig(flagValue string) (*config.Config, string, error) {
	configPath := config.ResolvePath(flagValue)
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context, args []string) error {
	var configFlag string
	if err := commandFlags("serve", &configFlag).Parse(args); err != nil {
		return err
	}

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig(configFlag)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Tokens:    %s", cfg.Auth.Binding)
	if cfg.Auth.Binding == config.DefaultBinding {
		gray.Printf(" (%s)", cfg.Auth.CookieName)
	} else {
		gray.Printf(" (%s: %s)", cfg.Auth.HeaderName, cfg.Auth.HeaderScheme)
	}
	fmt.Println()

	// Tailscale status
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting authgate",
		"config", configPath,
		"grpc_addr", cfg.Server.GRPCAddr,
		"http_addr", cfg.Server.HTTPAddr,
		"binding", cfg.Auth.Binding,
	)

	// Key generation failure is fatal: nothing may be served without key material
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// runRegister creates an account directly in the configured database.
func runRegister(ctx context.Context, args []string) error {
	var configFlag, username, password string
	var roles []string
	fs := commandFlags("register", &configFlag)
	fs.StringVarP(&username, "username", "u", "", "username for the new account")
	fs.StringVarP(&password, "password", "p", "", "password (default: $AUTHGATE_PASSWORD)")
	fs.StringSliceVar(&roles, "role", nil, "role to grant (repeatable, default USER)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if username == "" {
		return fmt.Errorf("--username is required")
	}
	if password == "" {
		password = os.Getenv("AUTHGATE_PASSWORD")
	}
	if password == "" {
		return fmt.Errorf("--password or AUTHGATE_PASSWORD is required")
	}

	cfg, _, err := loadConfig(configFlag)
	if err != nil {
		return err
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	// Registration never issues tokens, so no issuer is needed
	svc := login.NewService(s, nil, login.Config{}, setupLogger(cfg.Logging))
	user, err := svc.Register(ctx, username, password, roles)
	if err != nil {
		return fmt.Errorf("registering user: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created user: %s\n", user.Username)
	fmt.Printf("  ID:    %s\n", user.ID)
	fmt.Printf("  Roles: %s\n", strings.Join(user.Roles, ", "))
	return nil
}

func runHealth(ctx context.Context, args []string) error {
	var configFlag string
	if err := commandFlags("health", &configFlag).Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(configFlag)
	if err != nil {
		return err
	}

	if _, err := getText(ctx, fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Println("healthy")
	return nil
}

// runPubkey prints the public key of the running gateway. The key changes on
// every restart, so it is fetched rather than read from disk.
func runPubkey(ctx context.Context, args []string) error {
	var configFlag string
	if err := commandFlags("pubkey", &configFlag).Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(configFlag)
	if err != nil {
		return err
	}

	body, err := getText(ctx, fmt.Sprintf("http://%s/public/key?format=pem", cfg.Server.HTTPAddr))
	if err != nil {
		return fmt.Errorf("fetching public key: %w", err)
	}

	fmt.Print(body)
	return nil
}

// getText performs a GET and returns the body, failing on non-200 statuses.
func getText(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return string(body), nil
}

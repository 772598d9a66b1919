// ABOUTME: Interactive config file generation for authgate init
// ABOUTME: Writes a YAML config that seeds the default user/password account

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/authgate/internal/config"
)

// initOptions are the answers collected by runInit.
type initOptions struct {
	GRPCAddr  string
	HTTPAddr  string
	DBPath    string
	Binding   string
	Issuer    string
	Tailscale bool
	Hostname  string
	AuthKey   string
	Ephemeral bool
	Funnel    bool
	LogLevel  string
	LogFormat string
	SeedUser  bool
}

func runInit(args []string) error {
	var configFlag string
	if err := commandFlags("init", &configFlag).Parse(args); err != nil {
		return err
	}
	return initInteractive(os.Stdin, config.ResolvePath(configFlag))
}

func initInteractive(in io.Reader, defaultConfigPath string) error {
	reader := bufio.NewReader(in)

	fmt.Println("authgate configuration setup")
	fmt.Println("============================")
	fmt.Println()

	defaultDBPath := filepath.Join(getDataPath(), "users.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var opts initOptions

	fmt.Println("\n--- Server Configuration ---")
	opts.GRPCAddr = prompt(reader, "gRPC address", "localhost:50051")
	opts.HTTPAddr = prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Database Configuration ---")
	opts.DBPath = prompt(reader, "SQLite database path", defaultDBPath)

	fmt.Println("\n--- Token Configuration ---")
	opts.Binding = prompt(reader, "Token binding (cookie/header)", config.DefaultBinding)
	opts.Issuer = prompt(reader, "Token issuer", "authgate")
	opts.SeedUser = yes(prompt(reader, "Seed default user/password account?", "yes"))

	fmt.Println("\n--- Tailscale Configuration ---")
	opts.Tailscale = yes(prompt(reader, "Enable Tailscale?", "no"))
	if opts.Tailscale {
		opts.Hostname = prompt(reader, "Tailscale hostname", "authgate")
		opts.AuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		opts.Ephemeral = yes(prompt(reader, "Ephemeral node?", "no"))
		opts.Funnel = yes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	opts.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	opts.LogFormat = prompt(reader, "Log format (text/json)", "text")

	content := renderConfig(opts)
	if _, err := config.Parse([]byte(content), false); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Seeded credentials live in the file, so keep it private
	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(opts.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	if opts.SeedUser {
		fmt.Println("Default account: user / password (change it before exposing the gateway)")
	}
	fmt.Println("\nTo start the server:")
	fmt.Printf("  authgate serve --config %s\n", outputFile)

	return nil
}

// renderConfig produces the YAML config file for opts.
func renderConfig(opts initOptions) string {
	var cfg strings.Builder
	cfg.WriteString("# authgate configuration\n")
	cfg.WriteString("# Generated by authgate init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  grpc_addr: %q\n", opts.GRPCAddr)
	fmt.Fprintf(&cfg, "  http_addr: %q\n", opts.HTTPAddr)
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n", opts.DBPath)
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	fmt.Fprintf(&cfg, "  binding: %q\n", opts.Binding)
	fmt.Fprintf(&cfg, "  cookie_name: %q\n", config.DefaultCookieName)
	fmt.Fprintf(&cfg, "  header_name: %q\n", config.DefaultHeaderName)
	fmt.Fprintf(&cfg, "  header_scheme: %q\n", config.DefaultHeaderScheme)
	fmt.Fprintf(&cfg, "  issuer: %q\n", opts.Issuer)
	fmt.Fprintf(&cfg, "  set_cookie: %t\n", opts.Binding == config.DefaultBinding)
	cfg.WriteString("  token_ttl: \"1h\"\n")
	cfg.WriteString("  order_token_ttl: \"1h\"\n")
	cfg.WriteString("  leeway: \"30s\"\n")
	cfg.WriteString("\n")

	if opts.SeedUser {
		cfg.WriteString("users:\n")
		cfg.WriteString("  - username: \"user\"\n")
		cfg.WriteString("    password: \"password\"\n")
		cfg.WriteString("    roles: [\"USER\"]\n")
		cfg.WriteString("\n")
	}

	cfg.WriteString("tailscale:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", opts.Tailscale)
	if opts.Tailscale {
		fmt.Fprintf(&cfg, "  hostname: %q\n", opts.Hostname)
		if opts.AuthKey != "" {
			fmt.Fprintf(&cfg, "  auth_key: %q\n", opts.AuthKey)
		} else {
			cfg.WriteString("  auth_key: \"${TS_AUTHKEY}\"\n")
		}
		fmt.Fprintf(&cfg, "  ephemeral: %t\n", opts.Ephemeral)
		fmt.Fprintf(&cfg, "  funnel: %t\n", opts.Funnel)
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", opts.LogLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", opts.LogFormat)

	return cfg.String()
}

func yes(answer string) bool {
	a := strings.ToLower(answer)
	return a == "yes" || a == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

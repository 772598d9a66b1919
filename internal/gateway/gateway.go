// ABOUTME: Gateway orchestrator that coordinates GRPC and HTTP servers
// ABOUTME: Owns the process keypair, the permission guard, and the server lifecycle

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/authgate/internal/auth"
	"github.com/2389/authgate/internal/config"
	"github.com/2389/authgate/internal/login"
	"github.com/2389/authgate/internal/store"
)

// Gateway orchestrates the authgate server components.
// It serves login and protected order endpoints over HTTP and gRPC.
type Gateway struct {
	config      *config.Config
	store       store.UserStore
	keys        *auth.KeyPair
	issuer      *auth.Issuer
	verifier    *auth.Verifier
	guard       *auth.Guard
	login       *login.Service
	grpcServer  *grpc.Server
	health      *health.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// initStore creates and returns a store based on config and environment.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("AUTHGATE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// BindingFromConfig builds the token transport binding the deployment uses.
// Unknown modes produce a binding that fails Validate.
func BindingFromConfig(a config.AuthConfig) auth.TokenBinding {
	switch auth.BindingMode(a.Binding) {
	case auth.BindingHeader:
		return auth.HeaderBinding(a.HeaderName, a.HeaderScheme)
	case auth.BindingCookie, "":
		return auth.CookieBinding(a.CookieName)
	default:
		return auth.TokenBinding{Mode: auth.BindingMode(a.Binding)}
	}
}

// seedAccounts converts configured users into login accounts.
func seedAccounts(users []config.UserSeed) []login.Account {
	accounts := make([]login.Account, 0, len(users))
	for _, u := range users {
		accounts = append(accounts, login.Account{Username: u.Username, Password: u.Password, Roles: u.Roles})
	}
	return accounts
}

// createGRPCServer creates a gRPC server with the permission interceptors.
func createGRPCServer(guard *auth.Guard, policy auth.MethodPolicy) *grpc.Server {
	return grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(auth.UnaryInterceptor(guard, policy)),
		grpc.ChainStreamInterceptor(auth.StreamInterceptor(guard, policy)),
	)
}

// New creates a new Gateway instance with the given configuration.
// A fresh signing keypair is generated, so tokens issued by a previous
// process are rejected.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	keys, err := auth.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gw, err := newWithStore(cfg, s, keys, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// newWithStore wires the gateway around an already-open store.
func newWithStore(cfg *config.Config, s store.UserStore, keys *auth.KeyPair, logger *slog.Logger) (*Gateway, error) {
	binding := BindingFromConfig(cfg.Auth)
	if err := binding.Validate(); err != nil {
		return nil, fmt.Errorf("token binding: %w", err)
	}

	issuer := auth.NewIssuer(keys, cfg.Auth.Issuer)
	verifier := auth.NewVerifier(keys.PublicKey(), auth.VerifierConfig{
		Issuer: cfg.Auth.Issuer,
		Leeway: cfg.Auth.Leeway,
	})
	guard := auth.NewGuard(verifier, binding, logger.With("component", "auth"))

	loginSvc := login.NewService(s, issuer, login.Config{
		TokenTTL:      cfg.Auth.TokenTTL,
		OrderTokenTTL: cfg.Auth.OrderTokenTTL,
	}, logger)

	seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := loginSvc.Seed(seedCtx, seedAccounts(cfg.Users)); err != nil {
		return nil, fmt.Errorf("seeding users: %w", err)
	}

	gw := &Gateway{
		config:   cfg,
		store:    s,
		keys:     keys,
		issuer:   issuer,
		verifier: verifier,
		guard:    guard,
		login:    loginSvc,
		logger:   logger.With("component", "gateway"),
	}

	// Register gRPC services
	gw.grpcServer = createGRPCServer(guard, orderMethodPolicy())
	RegisterOrderServiceServer(gw.grpcServer, newOrderServer(logger.With("component", "grpc")))
	gw.health = health.NewServer()
	gw.health.SetServingStatus(orderServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gw.grpcServer, gw.health)
	logger.Info("permission interceptors enabled", "binding", binding.Mode, "protected_methods", len(orderMethodPolicy()))

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Keys returns the process signing keypair.
func (g *Gateway) Keys() *auth.KeyPair {
	return g.keys
}

// setupTCPListeners creates standard TCP listeners for gRPC and HTTP.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return grpcLn, httpLn, nil
}

// warnIgnoredAddresses logs a warning if server addresses are configured but Tailscale is enabled.
func (g *Gateway) warnIgnoredAddresses() {
	if g.config.Server.GRPCAddr != "" || g.config.Server.HTTPAddr != "" {
		g.logger.Warn("server.grpc_addr and server.http_addr are ignored when tailscale is enabled",
			"grpc_addr", g.config.Server.GRPCAddr,
			"http_addr", g.config.Server.HTTPAddr,
		)
	}
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		g.warnIgnoredAddresses()
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// startServers starts gRPC and HTTP servers in goroutines, returning error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := g.grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the gateway servers and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if a server fails.
func (g *Gateway) Run(ctx context.Context) error {
	grpcListener, httpListener, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServers(grpcListener, httpListener)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The original context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "authgate", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// tailnetGRPCAddr is the gRPC listen address on the tailnet node.
const tailnetGRPCAddr = ":50051"

// tailnetExposure describes how the HTTP API is reachable on the tailnet.
type tailnetExposure struct {
	Addr   string // listen address on the tailnet node
	Scheme string
	Funnel bool // public internet via Tailscale Funnel, TLS terminated by tsnet
	TLS    bool // TLS terminated here with tailnet certs
}

// exposureFor picks the HTTP exposure. Funnel implies HTTPS.
func exposureFor(ts config.TailscaleConfig) tailnetExposure {
	switch {
	case ts.Funnel:
		return tailnetExposure{Addr: ":443", Scheme: "https", Funnel: true}
	case ts.HTTPS:
		return tailnetExposure{Addr: ":443", Scheme: "https", TLS: true}
	default:
		return tailnetExposure{Addr: ":80", Scheme: "http"}
	}
}

// keyURL returns where verifiers can fetch the public key, or "" when the
// node has no DNS name yet.
func (e tailnetExposure) keyURL(dnsName string) string {
	host := strings.TrimSuffix(dnsName, ".")
	if host == "" {
		return ""
	}
	return e.Scheme + "://" + host + "/public/key"
}

// setupTailscaleListeners joins the tailnet and returns listeners for gRPC and HTTP.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale
	exposure := exposureFor(tsCfg)

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("joining tailnet", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailnetStatus(exposure, status)

	grpcLn, err = g.tsnetServer.Listen("tcp", tailnetGRPCAddr)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailnet gRPC port: %w", err)
	}

	httpLn, err = g.listenTailnetHTTP(exposure)
	if err != nil {
		_ = grpcLn.Close()
		_ = g.tsnetServer.Close()
		return nil, nil, err
	}
	return grpcLn, httpLn, nil
}

// logTailnetStatus logs the node address and where the public key is served,
// so operators can point verifiers at it.
func (g *Gateway) logTailnetStatus(exposure tailnetExposure, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailnet ready",
		"tailscale_ip", tsAddr,
		"dns_name", dnsName,
		"funnel", exposure.Funnel,
		"key_url", exposure.keyURL(dnsName),
	)
}

// listenTailnetHTTP opens the HTTP listener for exposure.
func (g *Gateway) listenTailnetHTTP(exposure tailnetExposure) (net.Listener, error) {
	if exposure.Funnel {
		ln, err := g.tsnetServer.ListenFunnel("tcp", exposure.Addr)
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	}

	ln, err := g.tsnetServer.Listen("tcp", exposure.Addr)
	if err != nil {
		return nil, fmt.Errorf("listening on tailnet HTTP port %s: %w", exposure.Addr, err)
	}
	if !exposure.TLS {
		return ln, nil
	}

	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops all gateway servers and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.health.Shutdown()
	g.shutdownGRPCServer(ctx)

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// ABOUTME: Tests for Gateway orchestrator lifecycle and listeners
// ABOUTME: Runs real TCP servers and exercises login plus the protected order over both transports

package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/2389/authgate/internal/config"
)

// testConfig creates a minimal config for testing with available ports.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	// Find available ports
	grpcListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available gRPC port: %v", err)
	}
	grpcAddr := grpcListener.Addr().String()
	grpcListener.Close()

	httpListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available HTTP port: %v", err)
	}
	httpAddr := httpListener.Addr().String()
	httpListener.Close()

	return &config.Config{
		Server: config.ServerConfig{
			GRPCAddr: grpcAddr,
			HTTPAddr: httpAddr,
		},
		Database: config.DatabaseConfig{
			Path: ":memory:",
		},
		Auth: config.AuthConfig{
			Binding:       config.DefaultBinding,
			CookieName:    config.DefaultCookieName,
			HeaderName:    config.DefaultHeaderName,
			HeaderScheme:  config.DefaultHeaderScheme,
			Issuer:        "authgate-test",
			SetCookie:     true,
			TokenTTL:      time.Hour,
			OrderTokenTTL: 10 * time.Minute,
		},
		Users: []config.UserSeed{
			{Username: "user", Password: "password", Roles: []string{"USER"}},
		},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runGateway starts gw in the background and waits until /health answers.
func runGateway(t *testing.T, gw *Gateway, cfg *config.Config) {
	t.Helper()

	go func() {
		_ = gw.Run(t.Context())
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + cfg.Server.HTTPAddr + "/health")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("gateway did not start in time")
}

func TestGatewayNew(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	if gw.config != cfg {
		t.Error("gateway config mismatch")
	}
	if gw.keys == nil || gw.issuer == nil || gw.verifier == nil || gw.guard == nil {
		t.Fatal("auth components should be initialized")
	}
	if gw.Keys() != gw.keys {
		t.Error("Keys() should return the process keypair")
	}

	count, err := gw.store.CountUsers(context.Background())
	if err != nil {
		t.Fatalf("CountUsers() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("seeded users = %d, want 1", count)
	}
}

func TestGatewayNew_FreshKeyPerInstance(t *testing.T) {
	first, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer first.Shutdown(context.Background())

	second, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer second.Shutdown(context.Background())

	tok, err := first.login.LoginOrder(context.Background(), "user", "password")
	if err != nil {
		t.Fatalf("LoginOrder() failed: %v", err)
	}

	// A restarted process has a new key, so old tokens no longer verify
	if _, err := second.verifier.Verify(tok.Value); err == nil {
		t.Error("token from a previous keypair should be rejected")
	}
}

func TestGatewayNew_InvalidBinding(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Binding = "query"

	_, err := New(cfg, testLogger())
	if err == nil {
		t.Fatal("New() should fail with an invalid token binding")
	}
}

func TestGatewayNew_InvalidSeedUser(t *testing.T) {
	cfg := testConfig(t)
	cfg.Users = []config.UserSeed{{Username: "user", Password: "short"}}

	_, err := New(cfg, testLogger())
	if err == nil {
		t.Fatal("New() should fail when a seed user is invalid")
	}
}

func TestGatewayRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Run gateway in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()

	// Give it time to start
	time.Sleep(100 * time.Millisecond)

	// Shutdown via context cancel
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("gateway did not shutdown in time")
	}
}

func TestGatewayRun_AddressInUse(t *testing.T) {
	cfg := testConfig(t)

	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer occupied.Close()
	cfg.Server.HTTPAddr = occupied.Addr().String()

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	if err := gw.Run(t.Context()); err == nil {
		t.Error("Run() should fail when the HTTP address is taken")
	}
}

func TestHealthEndpoint(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	runGateway(t, gw, cfg)

	for _, path := range []string{"/health", "/health/ready"} {
		resp, err := http.Get("http://" + cfg.Server.HTTPAddr + path)
		if err != nil {
			t.Fatalf("%s request failed: %v", path, err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

func TestGatewayHTTP_LoginThenAuthorizedOrder(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	runGateway(t, gw, cfg)

	base := "http://" + cfg.Server.HTTPAddr
	resp, err := http.Post(base+"/public/loginAsOrderUser", "application/json",
		strings.NewReader(`{"username":"user","password":"password"}`))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == config.DefaultCookieName {
			session = c
		}
	}
	if session == nil {
		t.Fatal("login should set the session cookie")
	}

	req, _ := http.NewRequest(http.MethodGet, base+"/public/authorized-order", nil)
	req.AddCookie(&http.Cookie{Name: session.Name, Value: session.Value})
	orderResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("order request failed: %v", err)
	}
	defer orderResp.Body.Close()

	body, _ := io.ReadAll(orderResp.Body)
	if orderResp.StatusCode != http.StatusOK {
		t.Fatalf("order status = %d, want %d", orderResp.StatusCode, http.StatusOK)
	}
	if string(body) != AuthorizedOrderMessage {
		t.Errorf("order body = %q, want %q", body, AuthorizedOrderMessage)
	}
}

func TestGatewayGRPC_AuthorizedOrderOverTCP(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	runGateway(t, gw, cfg)

	conn, err := grpc.NewClient(cfg.Server.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer conn.Close()
	client := NewOrderServiceClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = client.GetAuthorizedOrder(ctx, &emptypb.Empty{})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("without token: code = %v, want Unauthenticated", status.Code(err))
	}

	tok, err := gw.login.LoginOrder(ctx, "user", "password")
	if err != nil {
		t.Fatalf("LoginOrder() failed: %v", err)
	}
	authed := metadata.AppendToOutgoingContext(ctx, "cookie", config.DefaultCookieName+"="+tok.Value)

	resp, err := client.GetAuthorizedOrder(authed, &emptypb.Empty{})
	if err != nil {
		t.Fatalf("GetAuthorizedOrder() failed: %v", err)
	}
	if resp.GetValue() != AuthorizedOrderMessage {
		t.Errorf("response = %q, want %q", resp.GetValue(), AuthorizedOrderMessage)
	}
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")
	if _, err := resolveTailscaleAuthKey(""); err == nil {
		t.Error("missing auth key should be an error")
	}

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err := resolveTailscaleAuthKey("")
	if err != nil || key != "tskey-env" {
		t.Errorf("resolveTailscaleAuthKey() = %q, %v; want env key", key, err)
	}

	key, err = resolveTailscaleAuthKey("tskey-config")
	if err != nil || key != "tskey-config" {
		t.Errorf("resolveTailscaleAuthKey() = %q, %v; want configured key", key, err)
	}
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/var/lib/authgate/ts")
	if err != nil || dir != "/var/lib/authgate/ts" {
		t.Errorf("resolveTailscaleStateDir() = %q, %v; want configured dir", dir, err)
	}

	t.Setenv("HOME", "/home/tester")
	dir, err = resolveTailscaleStateDir("")
	if err != nil {
		t.Fatalf("resolveTailscaleStateDir() failed: %v", err)
	}
	if !strings.HasSuffix(dir, ".local/share/authgate/tailscale") {
		t.Errorf("default state dir = %q", dir)
	}
}

func TestAppendCloseError(t *testing.T) {
	errs := appendCloseError(nil, "first", nil)
	if len(errs) != 0 {
		t.Fatalf("nil error should not be appended, got %v", errs)
	}

	cause := errors.New("boom")
	errs = appendCloseError(errs, "store close", cause)
	if len(errs) != 1 || !errors.Is(errs[0], cause) {
		t.Fatalf("appendCloseError() = %v, want wrapped cause", errs)
	}
	if !strings.HasPrefix(errs[0].Error(), "store close: ") {
		t.Errorf("error label missing: %v", errs[0])
	}
}

func TestExposureFor(t *testing.T) {
	tests := []struct {
		name string
		ts   config.TailscaleConfig
		want tailnetExposure
	}{
		{"plain", config.TailscaleConfig{}, tailnetExposure{Addr: ":80", Scheme: "http"}},
		{"https", config.TailscaleConfig{HTTPS: true}, tailnetExposure{Addr: ":443", Scheme: "https", TLS: true}},
		{"funnel", config.TailscaleConfig{Funnel: true}, tailnetExposure{Addr: ":443", Scheme: "https", Funnel: true}},
		{"funnel wins over https", config.TailscaleConfig{Funnel: true, HTTPS: true}, tailnetExposure{Addr: ":443", Scheme: "https", Funnel: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exposureFor(tt.ts); got != tt.want {
				t.Errorf("exposureFor() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTailnetExposureKeyURL(t *testing.T) {
	tests := []struct {
		name    string
		ts      config.TailscaleConfig
		dnsName string
		want    string
	}{
		{"plain", config.TailscaleConfig{}, "authgate.tail1234.ts.net.", "http://authgate.tail1234.ts.net/public/key"},
		{"https", config.TailscaleConfig{HTTPS: true}, "authgate.tail1234.ts.net.", "https://authgate.tail1234.ts.net/public/key"},
		{"funnel", config.TailscaleConfig{Funnel: true}, "authgate.tail1234.ts.net", "https://authgate.tail1234.ts.net/public/key"},
		{"no dns name", config.TailscaleConfig{HTTPS: true}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exposureFor(tt.ts).keyURL(tt.dnsName); got != tt.want {
				t.Errorf("keyURL(%q) = %q, want %q", tt.dnsName, got, tt.want)
			}
		})
	}
}

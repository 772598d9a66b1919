// ABOUTME: End-to-end scenario tests for issue, verify, and enforce
// ABOUTME: Runs the full flow with real keys and no mocking

package auth

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestScenario_IssueVerifyEnforce(t *testing.T) {
	keys, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	issuer := NewIssuer(keys, "")
	verifier := NewVerifier(keys.PublicKey(), VerifierConfig{})
	guard := NewGuard(verifier, HeaderBinding("", DefaultHeaderScheme), nil)

	// Step 1: issue for alice
	token, err := issuer.IssuePermissions("alice", []string{"order"}, 3600*time.Second)
	if err != nil {
		t.Fatalf("IssuePermissions() error = %v", err)
	}

	// Step 2: verify straight away
	identity, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if identity.Username != "alice" || !slices.Equal(identity.Permissions, []string{"order"}) {
		t.Fatalf("identity = %+v, want alice/[order]", identity)
	}

	// Step 3: an operation requiring order proceeds and returns its result
	var result string
	err = guard.Enforce(context.Background(), token, Require("order"), func(ctx context.Context) error {
		result = "get authorized order for " + MustFromContext(ctx).Username
		return nil
	})
	if err != nil {
		t.Fatalf("Enforce(order) error = %v", err)
	}
	if result != "get authorized order for alice" {
		t.Errorf("result = %q", result)
	}

	// Step 4: an operation requiring order and admin is forbidden
	err = guard.Enforce(context.Background(), token, Require("order", "admin"), func(ctx context.Context) error {
		t.Error("admin operation should not run")
		return nil
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("Enforce(order,admin) error = %v, want ErrForbidden", err)
	}
}

func TestScenario_InterceptorRoundTrip(t *testing.T) {
	keys, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	issuer := NewIssuer(keys, "authgate")
	guard := NewGuard(NewVerifier(keys.PublicKey(), VerifierConfig{Issuer: "authgate"}), HeaderBinding("", DefaultHeaderScheme), nil)

	policy := MethodPolicy{
		"/authgate.v1.OrderService/GetAuthorizedOrder": Require("order"),
		"/authgate.v1.AdminService/Purge":              Require("order", "admin"),
	}
	interceptor := UnaryInterceptor(guard, policy)

	token, err := issuer.IssuePermissions("alice", []string{"order"}, time.Hour)
	if err != nil {
		t.Fatalf("IssuePermissions() error = %v", err)
	}
	ctx := contextWithAuth(token)

	handler := func(ctx context.Context, req any) (any, error) {
		return "ok:" + MustFromContext(ctx).Username, nil
	}

	resp, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/authgate.v1.OrderService/GetAuthorizedOrder"}, handler)
	if err != nil {
		t.Fatalf("GetAuthorizedOrder error = %v", err)
	}
	if resp != "ok:alice" {
		t.Errorf("resp = %v, want ok:alice", resp)
	}

	_, err = interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/authgate.v1.AdminService/Purge"}, handler)
	if status.Code(err) != codes.PermissionDenied {
		t.Errorf("Purge code = %v, want PermissionDenied", status.Code(err))
	}

	// A token from a previous process (different key) no longer verifies
	restarted, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	stale := NewGuard(NewVerifier(restarted.PublicKey(), VerifierConfig{Issuer: "authgate"}), HeaderBinding("", DefaultHeaderScheme), nil)
	_, err = UnaryInterceptor(stale, policy)(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/authgate.v1.OrderService/GetAuthorizedOrder"}, handler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("stale token code = %v, want Unauthenticated", status.Code(err))
	}
}

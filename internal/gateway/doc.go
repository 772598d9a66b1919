// Package gateway orchestrates the authgate server components.
//
// # Overview
//
// The gateway owns the process signing keypair, the user store, the login
// service, and the permission guard, and serves them over HTTP and gRPC.
// The keypair is generated in New and never persisted, so every restart
// invalidates previously issued tokens.
//
// # HTTP API
//
//	POST /public/loginJwt           credentials -> token with the user's roles as authorities
//	POST /public/loginAsOrderUser   credentials -> token with the "order" permission
//	POST /public/logout             logs the caller, clears the cookie
//	POST /register                  creates a USER account
//	GET  /public/authorized-order   requires "order"
//	GET  /public/normal-order       open
//	GET  /public/key                ES256 public key (base64 DER, or ?format=pem)
//	GET  /health, /health/ready
//
// Protected routes are registered with guard.Protect, so the required
// permissions are fixed when the mux is built.
//
// # gRPC
//
// authgate.v1.OrderService mirrors the order endpoints. Its MethodPolicy
// protects GetAuthorizedOrder; methods without a policy entry, including the
// standard health service, are public.
//
// # Listeners
//
// Without Tailscale the servers listen on server.grpc_addr and
// server.http_addr. With tailscale.enabled the gateway joins the tailnet via
// tsnet and serves gRPC on :50051 and HTTP on :80, or :443 when https or
// funnel is set.
package gateway

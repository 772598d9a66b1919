// Package config handles configuration loading for authgate.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. The package applies defaults and validates the result.
//
// # Configuration File
//
// Location (first match wins):
//
//  1. --config flag
//  2. Path from AUTHGATE_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/authgate/gateway.yaml (~/.config when unset)
//
// Files ending in .toml are decoded as TOML, everything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	users:
//	  - username: "ops"
//	    password: "${AUTHGATE_OPS_PASSWORD}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  grpc_addr: "0.0.0.0:50051"
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/authgate/users.db"
//
// Token settings. Durations use time.ParseDuration syntax:
//
//	auth:
//	  binding: "cookie"        # or "header"
//	  cookie_name: "SESSIONID"
//	  header_name: "Authorization"
//	  header_scheme: "Bearer"
//	  issuer: "authgate"
//	  token_ttl: "1h"
//	  order_token_ttl: "1h"
//	  leeway: "0s"
//	  set_cookie: true         # login responses also set the cookie
//
// Accounts seeded at startup:
//
//	users:
//	  - username: "user"
//	    password: "password"
//	    roles: ["USER"]
//
// Tailscale (optional):
//
//	tailscale:
//	  enabled: true
//	  hostname: "authgate"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//
// When Tailscale is enabled, server addresses are ignored.
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config

// Package main (cmd/vaultserver) implements the account service server.
//
// The server exposes the passphrase-gated account API over HTTP: inspecting
// an account, changing its passphrase and destroying it together with its
// documents. Credentials are checked per request via HTTP Basic auth;
// there is no session state.
//
// The identity store backend is selected through a location URI, so the
// same binary runs against an in-memory store for development, a local
// file tree or Badger database for single-node deployments, or S3 or
// HashiCorp Vault for shared ones.
//
// The server implements graceful shutdown on termination signals
// (SIGINT/SIGTERM) and supports health checks, drain/undrain for rolling
// deploys, Prometheus metrics and optional profiling endpoints.
//
// Example usage:
//
//	vaultserver --store=badger:///var/lib/vaultserver \
//	    --listen-addr=0.0.0.0:8080 \
//	    --metrics-addr=0.0.0.0:8090
package main

// Package main (cmd/accountctl) is the operator CLI for the account
// service.
//
// The create command writes directly to an identity store through its
// location URI, because account provisioning is deliberately not exposed
// over the service API. The show, passwd and delete commands go through
// the HTTP API and authenticate exactly like any other caller.
package main

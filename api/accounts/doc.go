// Package accounts implements the HTTP boundary for the account service.
//
// The handler exposes three authenticated operations on
// /api/v1/accounts/{account_id}: GET inspects an account, PUT changes its
// passphrase, DELETE destroys it together with its documents. Credentials
// travel as HTTP Basic auth on every request; there is no session state.
//
// The handler maps the access-control error taxonomy onto HTTP statuses and
// keeps the challenge response identical in shape for every
// authentication-failure cause. A typed Client mirrors the handler for
// programmatic callers.
package accounts

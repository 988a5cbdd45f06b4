// Package httpserver provides the HTTP server shell for the account
// service: request logging, health and drain endpoints, optional pprof, a
// side-channel metrics listener and graceful shutdown. The API surface
// itself is mounted through a RouteRegistrar so the shell stays free of
// account semantics.
package httpserver

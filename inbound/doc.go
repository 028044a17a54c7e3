// Package inbound exposes the connector over HTTP.
//
// Routes authenticate with a bearer token, execute the command and query
// handlers, and answer failures with a {"error": {...}} JSON envelope. The
// OAuth callback always ends in a redirect once the caller is authenticated.
package inbound

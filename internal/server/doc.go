// ABOUTME: HTTP server wiring the client-server auth API
// ABOUTME: Routes, handlers, protocol error envelope, metrics and throttling

// Package server exposes the client-server authentication API over HTTP:
// login, logout, interactive registration, account introspection and
// profile endpoints, plus the protocol discovery documents.
//
// Every error leaves the server as the protocol envelope
// {"errcode":"M_*","error":"..."}. Storage failures are logged with detail
// server-side and always surface to clients as the generic M_UNKNOWN.
package server

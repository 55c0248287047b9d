// Package api provides the REST server fronting the relational engine.
//
// Implements a small HTTP API using the Gin framework: a single SQL batch
// endpoint, a health check, and a metrics snapshot, all guarded by the
// token-bucket rate limiter.
package api

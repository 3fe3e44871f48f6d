// Package provider contains playlist providers.
//
// The Resolver interface is defined in internal/metadata (metadata.Resolver),
// following the Go convention of defining interfaces where they are consumed.
// Each sub-package here implements that interface for a specific service.
package provider

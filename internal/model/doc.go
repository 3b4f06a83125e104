// Package model defines the data structures shared by the transport,
// liveness and investigation layers of onionwatch.
//
// This package contains the following main types:
//   - FetchResult: The outcome of a single fetch through any transport
//   - FetchError: A classified fetch failure (timeout, connection, TLS, ...)
//   - Target: A link whose liveness is checked
//   - LivenessRecord: The per-target outcome of a liveness check
//   - TransportMode: Which transport backs a fetch client
//
// Models live in their own package because the gateway, fetch, liveness and
// database packages all exchange them, and centralizing them prevents import
// cycles.
package model

// Package database provides SQLite-based storage for onionwatch.
//
// The Store keeps:
//   - Onion links and their latest liveness state
//   - A history of every liveness check
//   - Investigation results serialized as JSON
//
// modernc.org/sqlite is CGO-free, so the binary cross-compiles without a C
// toolchain. The connection pool is limited to one connection because SQLite
// allows a single writer, and WAL mode keeps readers from blocking it.
package database

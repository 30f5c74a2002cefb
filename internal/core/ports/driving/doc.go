// Package driving provides interfaces exposed to entry-point adapters
// (primary/inbound ports). The CLI depends on these interfaces; the
// core services implement them.
package driving

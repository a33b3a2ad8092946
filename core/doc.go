// Package core provides the foundational domain types and collaborator
// contracts used by turnmesh. It defines:
//
//   - Messages and queued messages (immutable inbound chat records)
//   - Task classification (closed task type set, anchored groups, results)
//   - Lock scopes and the lock / queue store contracts
//   - The invocation engine, ingestion and session controller contracts
//   - Context budget levels and measurements
//   - Session transcripts consumed by the invocation engine
//
// The package keeps implementation concerns (persistence, scheduling, model
// providers) out of scope, exposing small interfaces so backends can be
// swapped at wiring time.
package core

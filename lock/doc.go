// Package lock houses concrete implementations of core.LockAcquirer.
//
// A lock that sees no activity (acquire or Touch) for longer than its TTL is
// stale. Stale locks still report as locked until CleanupStaleLocks reclaims
// them; the drain loop sweeps on every tick.
package lock

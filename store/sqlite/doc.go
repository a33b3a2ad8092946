// Package sqlite provides a durable lock and queue store on a single SQLite
// file. Parked messages and held locks survive a process restart; a lock
// left behind by a crashed worker is reclaimed by the drain loop's stale
// sweep once its TTL elapses.
//
// The schema is managed with golang-migrate using migrations embedded in the
// binary. The database must be a file; ":memory:" is not supported because
// migrations run on their own connection.
package sqlite

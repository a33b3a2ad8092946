// Package drain implements the background loop that returns parked messages
// to the ingestion path.
//
// On every poll tick the loop first reclaims stale locks across all scopes,
// then, for each conversation with a backlog whose own lock is free, removes
// the whole backlog and resubmits each message in order through the same
// Ingestor live traffic uses. Conversations whose lock is held are left for a
// later tick; one conversation's contention never stalls another's drain.
//
// Failures are logged and the tick moves on. A single bad tick never ends
// the loop.
package drain

// Package ingest groups inbound messages into per-conversation batches.
//
// A Batcher holds each conversation's messages in a debounce window; every
// new message restarts that conversation's window. When a window expires the
// whole batch is handed to a BatchHandler. Live traffic and drained backlogs
// share this entry point through core.Ingestor.
package ingest

// Package session houses the transcript store used by the invocation engine
// and the controller that owns a conversation's resumable session id.
//
// The Controller observes budget signals: on handoff it persists a summary
// of the working session to a core.MemoryStore, forgets the resumable id so
// the next turn starts fresh, and resets the budget tracker through an
// injected hook.
package session

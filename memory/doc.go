// Package memory contains concrete core.MemoryStore implementations.
//
// Memories outlive a working session: when a conversation's context budget
// runs out, the session controller persists a summary record here before
// clearing the resumable session, so the next session can recall it.
// Scopes are conversation ids.
package memory

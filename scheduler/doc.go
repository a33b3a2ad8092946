// Package scheduler executes classified task groups against the invocation
// engine.
//
// A batch that is a single conversational group takes the fast path: one
// synchronous call resuming the working session. Anything else fans out one
// concurrent call per group. The conversational group (if any) still resumes
// the working session; every other group runs with no session id, so it has
// no access to or effect on shared conversational state.
//
// Results are collected as (anchor, type, response) and sorted by anchor
// before they are returned, so output order never depends on completion
// order. A failing branch fails the whole call. Sibling branches already in
// flight are not cancelled and their side effects are not undone.
package scheduler

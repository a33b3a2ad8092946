// Package invoker adapts a model.Model into the core.Invoker contract the
// scheduler dispatches to.
//
// Each call renders the batch as one user turn. A call with a resume id
// continues that session's transcript; a call without one always starts a
// brand new session, so isolated tasks never see prior turns.
package invoker

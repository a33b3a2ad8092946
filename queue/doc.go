// Package queue houses concrete implementations of core.QueueWriter: per
// conversation FIFO backlogs of messages that arrived while their
// conversation was locked.
package queue

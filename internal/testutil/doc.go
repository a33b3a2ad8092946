// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing messages, queued backlogs and scripted
// invocation engines. They are not intended for production usage.
package testutil

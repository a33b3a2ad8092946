package core

import (
	"context"
	"strings"
)

// LockScope identifies a unit of mutual exclusion: either the whole system or
// a single conversation. Scopes are independent; holding one never blocks
// another. The zero value is the global scope.
type LockScope struct {
	conversation bool
	chatID       string
}

// GlobalScope returns the system-wide scope.
func GlobalScope() LockScope { return LockScope{} }

// ConversationScope returns the scope of a single conversation. An empty
// chatID still names a conversation, never the global scope.
func ConversationScope(chatID string) LockScope {
	return LockScope{conversation: true, chatID: chatID}
}

// IsGlobal reports whether s is the global scope.
func (s LockScope) IsGlobal() bool { return !s.conversation }

// ChatID returns the conversation id, or "" for the global scope.
func (s LockScope) ChatID() string { return s.chatID }

// String renders the scope as "global" or "chat:<id>".
func (s LockScope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "chat:" + s.chatID
}

// ParseLockScope is the inverse of LockScope.String.
func ParseLockScope(key string) LockScope {
	if strings.HasPrefix(key, "chat:") {
		return ConversationScope(key[5:])
	}
	return GlobalScope()
}

// LockStore is the part of a lock backend the drain loop depends on. A lock
// held past the store's staleness TTL stays locked until CleanupStaleLocks
// reclaims it.
type LockStore interface {
	IsLocked(ctx context.Context, scope LockScope) (bool, error)
	// CleanupStaleLocks reclaims every lock idle past its TTL and returns
	// how many were reclaimed. It is idempotent.
	CleanupStaleLocks(ctx context.Context) (int, error)
	// Release frees scope whoever holds it.
	Release(ctx context.Context, scope LockScope) error
}

// LockAcquirer extends LockStore with admission of fresh traffic.
type LockAcquirer interface {
	LockStore
	// TryAcquire takes the scope for holder if it is free. It never blocks.
	TryAcquire(ctx context.Context, scope LockScope, holder string) (bool, error)
	// Touch records activity on a lock holder still owns. It returns an
	// error when the scope is free or owned by someone else.
	Touch(ctx context.Context, scope LockScope, holder string) error
	// ReleaseHeld frees scope only while holder owns it and reports whether
	// it did. A lock reclaimed and taken over by another holder is left
	// alone.
	ReleaseHeld(ctx context.Context, scope LockScope, holder string) (bool, error)
}

package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/internal/clock"
	"github.com/hupe1980/turnmesh/lock"
	"github.com/hupe1980/turnmesh/logging"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Options configures a Store.
type Options struct {
	// TTL is the idle time after which a lock is stale. Defaults to
	// lock.DefaultTTL.
	TTL    time.Duration
	Clock  clock.Clock
	Logger logging.Logger
}

// Store implements core.LockAcquirer and core.QueueWriter on SQLite.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	clock  clock.Clock
	logger logging.Logger
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{TTL: lock.DefaultTTL}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TTL <= 0 {
		opts.TTL = lock.DefaultTTL
	}
	if path == "" || path == ":memory:" {
		return nil, fmt.Errorf("sqlite: a database file path is required, got %q", path)
	}

	if err := runMigrations(path); err != nil {
		return nil, fmt.Errorf("sqlite: migrate %s: %w", path, err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		ttl:    opts.TTL,
		clock:  clock.OrReal(opts.Clock),
		logger: logging.OrNoOp(opts.Logger),
	}, nil
}

func runMigrations(path string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite3://"+path)
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// TTL returns the staleness timeout.
func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// TryAcquire takes scope for holder when free. Re-acquiring by the same
// holder refreshes activity and succeeds.
func (s *Store) TryAcquire(ctx context.Context, scope core.LockScope, holder string) (bool, error) {
	now := s.clock.Now().UnixNano()
	acquired := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT holder FROM locks WHERE scope = ?`, scope.String()).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx,
				`INSERT INTO locks (scope, holder, acquired_at, last_active) VALUES (?, ?, ?, ?)`,
				scope.String(), holder, now, now)
			acquired = err == nil
			return err
		case err != nil:
			return err
		case current != holder:
			return nil
		}
		_, err = tx.ExecContext(ctx, `UPDATE locks SET last_active = ? WHERE scope = ?`, now, scope.String())
		acquired = err == nil
		return err
	})
	if err != nil {
		return false, fmt.Errorf("sqlite: acquire %s: %w", scope, err)
	}
	return acquired, nil
}

// Touch records activity on a lock held by holder.
func (s *Store) Touch(ctx context.Context, scope core.LockScope, holder string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE locks SET last_active = ? WHERE scope = ? AND holder = ?`,
		s.clock.Now().UnixNano(), scope.String(), holder)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lock.ErrNotHeld
	}
	return nil
}

// IsLocked reports whether scope is held, stale or not.
func (s *Store) IsLocked(ctx context.Context, scope core.LockScope) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM locks WHERE scope = ?`, scope.String()).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Release frees scope. Releasing a free scope is a no-op.
func (s *Store) Release(ctx context.Context, scope core.LockScope) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE scope = ?`, scope.String())
	return err
}

// ReleaseHeld frees scope if holder still owns it.
func (s *Store) ReleaseHeld(ctx context.Context, scope core.LockScope, holder string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE scope = ? AND holder = ?`, scope.String(), holder)
	if err != nil {
		return false, fmt.Errorf("sqlite: release %s: %w", scope, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CleanupStaleLocks reclaims every lock idle for longer than the TTL.
func (s *Store) CleanupStaleLocks(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.ttl).UnixNano()
	reclaimed := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT scope, holder FROM locks WHERE last_active < ?`, cutoff)
		if err != nil {
			return err
		}
		var stale [][2]string
		for rows.Next() {
			var scope, holder string
			if err := rows.Scan(&scope, &holder); err != nil {
				_ = rows.Close()
				return err
			}
			stale = append(stale, [2]string{scope, holder})
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM locks WHERE last_active < ?`, cutoff); err != nil {
			return err
		}
		for _, st := range stale {
			s.logger.Warn("Reclaimed stale lock", "scope", st[0], "holder", st[1])
		}
		reclaimed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep stale locks: %w", err)
	}
	return reclaimed, nil
}

// Enqueue appends msg to its conversation backlog.
func (s *Store) Enqueue(ctx context.Context, msg core.Message) error {
	handles, err := json.Marshal(msg.Handles)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO queued_messages (chat_id, message_id, body, sent_at, handles, enqueued_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ChatID, msg.ID, msg.Text, msg.Timestamp.UnixNano(), string(handles), s.clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite: enqueue %s: %w", msg.ChatID, err)
	}
	return nil
}

// IsEmpty reports whether no conversation has a backlog.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM queued_messages)`).Scan(&exists); err != nil {
		return false, err
	}
	return exists == 0, nil
}

// QueuedChats lists conversations with a backlog, oldest backlog first.
func (s *Store) QueuedChats(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM queued_messages GROUP BY chat_id ORDER BY MIN(seq)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chats []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		chats = append(chats, id)
	}
	return chats, rows.Err()
}

// Dequeue atomically removes and returns the backlog of chatID in arrival
// order.
func (s *Store) Dequeue(ctx context.Context, chatID string) ([]core.QueuedMessage, error) {
	var out []core.QueuedMessage
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = selectQueued(ctx, tx, `WHERE chat_id = ?`, chatID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM queued_messages WHERE chat_id = ?`, chatID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: dequeue %s: %w", chatID, err)
	}
	return out, nil
}

// DequeueAll removes and returns every backlog.
//
// Deprecated: drain per conversation with Dequeue so a held lock on one
// conversation does not force its messages through.
func (s *Store) DequeueAll(ctx context.Context) ([]core.QueuedMessage, error) {
	var out []core.QueuedMessage
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = selectQueued(ctx, tx, ``)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM queued_messages`)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: dequeue all: %w", err)
	}
	return out, nil
}

func selectQueued(ctx context.Context, tx *sql.Tx, where string, args ...any) ([]core.QueuedMessage, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT chat_id, message_id, body, sent_at, handles, enqueued_at FROM queued_messages `+where+`
		 ORDER BY (SELECT MIN(q.seq) FROM queued_messages q WHERE q.chat_id = queued_messages.chat_id), seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.QueuedMessage
	for rows.Next() {
		var (
			qm               core.QueuedMessage
			sentAt, queuedAt int64
			handles          string
		)
		if err := rows.Scan(&qm.ChatID, &qm.ID, &qm.Text, &sentAt, &handles, &queuedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(handles), &qm.Handles); err != nil {
			return nil, err
		}
		qm.Timestamp = time.Unix(0, sentAt).UTC()
		qm.EnqueuedAt = time.Unix(0, queuedAt).UTC()
		out = append(out, qm)
	}
	return out, rows.Err()
}

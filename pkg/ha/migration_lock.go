package ha

import (
	"context"
	"database/sql"
	"fmt"
	"hash/crc32"
	"time"

	"gorm.io/gorm"
)

// MigrationLocker is the interface for acquiring a lock around database
// migrations to prevent concurrent migrations from multiple replicas.
type MigrationLocker interface {
	// WithLock executes fn while holding the migration lock.
	// It blocks until the lock is acquired, then releases it after fn returns.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLocker creates a MigrationLocker appropriate for the database
// dialect. PostgreSQL uses advisory locks, MySQL uses named locks, and other
// databases use a table-based fallback whose table is created immediately.
// A nil cfg uses DefaultHAConfig.
func NewMigrationLocker(db *gorm.DB, cfg *HAConfig) MigrationLocker {
	if cfg == nil {
		cfg = DefaultHAConfig()
	}
	if db == nil || !cfg.MigrationLockEnabled {
		return &noopMigrationLock{}
	}
	switch db.Dialector.Name() {
	case "postgres":
		return &sessionLock{
			db:      db,
			lock:    "SELECT pg_advisory_lock($1)",
			unlock:  "SELECT pg_advisory_unlock($1)",
			lockArg: int64(crc32.ChecksumIEEE([]byte(cfg.LockName))),
		}
	case "mysql":
		return &sessionLock{
			db:      db,
			lock:    "SELECT GET_LOCK(?, -1)",
			unlock:  "SELECT RELEASE_LOCK(?)",
			lockArg: cfg.LockName,
		}
	}
	lock := &fallbackMigrationLock{db: db, cfg: cfg}
	// Create the lock table immediately so that concurrent callers never
	// hit "no such table" errors on their first WithLock call.
	_ = db.AutoMigrate(&migrationLockRecord{})
	return lock
}

// noopMigrationLock is used when no database is configured or locking is
// disabled.
type noopMigrationLock struct{}

func (n *noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

// sessionLock holds a session-scoped database lock. Lock and unlock must
// run on the same connection, so it pins one from the pool.
type sessionLock struct {
	db      *gorm.DB
	lock    string
	unlock  string
	lockArg any
}

func (l *sessionLock) WithLock(ctx context.Context, fn func() error) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to reserve connection for migration lock: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, l.lock, l.lockArg); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	// Release even if ctx was cancelled during fn.
	defer func(conn *sql.Conn) {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), l.unlock, l.lockArg)
	}(conn)

	return fn()
}

// migrationLockRecord is the table-based lock row for databases without
// session locks (SQLite).
type migrationLockRecord struct {
	ID       string    `gorm:"primaryKey;column:id"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (migrationLockRecord) TableName() string { return "migration_lock" }

// fallbackMigrationLock uses INSERT-or-fail semantics on a lock table to
// ensure only one holder at a time, with stale lock cleanup for crash
// recovery.
type fallbackMigrationLock struct {
	db  *gorm.DB
	cfg *HAConfig
}

func (l *fallbackMigrationLock) WithLock(ctx context.Context, fn func() error) error {
	lockRow := migrationLockRecord{
		ID:       l.cfg.LockName,
		LockedBy: l.cfg.Identity,
	}

	retries := max(l.cfg.LockRetries, 1)
	acquired := false
	for i := 0; i < retries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.db.WithContext(ctx).
			Where("id = ? AND locked_at < ?", lockRow.ID, time.Now().Add(-l.cfg.StaleLockAge)).
			Delete(&migrationLockRecord{})

		lockRow.LockedAt = time.Now()
		result := l.db.WithContext(ctx).Create(&lockRow)
		if result.Error == nil {
			acquired = true
			break
		}

		if i == retries-1 {
			return fmt.Errorf("failed to acquire migration lock after %d retries: %w", retries, result.Error)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.LockRetryInterval):
		}
	}

	if !acquired {
		return fmt.Errorf("failed to acquire migration lock")
	}

	defer func() {
		l.db.Where("id = ?", lockRow.ID).Delete(&migrationLockRecord{})
	}()

	return fn()
}

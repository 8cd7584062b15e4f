// Package sqlite is the embedded, file-backed Store backend. It keeps a
// fixed-size zombiezen connection pool with WAL journaling and foreign
// key enforcement, and writes plain SQL against the schema in schema.go.
package sqlite

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/internal/store"
)

const dateLayout = "2006-01-02"

// Config holds the parameters for opening the database. Path is
// required and its parent directory must exist.
type Config struct {
	Path string

	// PoolSize defaults to max(runtime.NumCPU(), 4).
	PoolSize int

	Logger *logrus.Logger

	// Now overrides the clock used for created/uploaded timestamps.
	Now func() time.Time
}

type Store struct {
	pool *sqlitex.Pool
	log  *logrus.Entry
	path string
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open creates the pool, applies connection pragmas and creates the
// schema if it does not exist yet.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite store: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 4 {
			poolSize = 4
		}
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: opening %s: %w", cfg.Path, err)
	}

	s := &Store{
		pool: pool,
		log:  logger.WithField("component", "sqlite-store"),
		path: cfg.Path,
		now:  now,
	}

	err = s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, schema, nil)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlite store: creating schema: %w", err)
	}

	s.log.WithFields(logrus.Fields{"path": cfg.Path, "pool_size": poolSize}).Info("sqlite store opened")
	return s, nil
}

// prepareConnection runs once per pooled connection on first use.
// Foreign keys are enforced so project, document and assignment rows
// cascade with their parents.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlite store: closing %s: %w", s.path, err)
	}
	s.log.WithField("path", s.path).Info("sqlite store closed")
	return nil
}

func (s *Store) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("take connection: %w", err)
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

// exec runs a single statement; resultFn, when non-nil, is called for
// every returned row.
func (s *Store) exec(ctx context.Context, query string, args []any, resultFn func(stmt *sqlite.Stmt) error) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args:       args,
			ResultFunc: resultFn,
		})
	})
}

// insert runs an INSERT and returns the new row id.
func (s *Store) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
			return err
		}
		id = conn.LastInsertRowID()
		return nil
	})
	return id, err
}

// update runs an UPDATE or DELETE and reports apperr.ErrNotFound when
// no row changed.
func (s *Store) update(ctx context.Context, query string, args ...any) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return apperr.ErrNotFound
		}
		return nil
	})
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := s.exec(ctx, query, args, func(stmt *sqlite.Stmt) error {
		n = stmt.ColumnInt64(0)
		return nil
	})
	return n, err
}

// translate maps sqlite constraint failures onto apperr kinds. unique
// is returned for UNIQUE violations.
func translate(err error, unique error) error {
	if err == nil {
		return nil
	}
	code := sqlite.ErrCode(err)
	switch {
	case code == sqlite.ResultConstraintUnique && unique != nil:
		return fmt.Errorf("%w: %v", unique, err)
	case code.ToPrimary() == sqlite.ResultConstraint:
		return fmt.Errorf("%w: %v", apperr.ErrConstraintViolation, err)
	}
	return err
}

func nullableID(id uint) any {
	if id == 0 {
		return nil
	}
	return int64(id)
}

func nullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func columnDate(stmt *sqlite.Stmt, col string) *time.Time {
	idx := stmt.ColumnIndex(col)
	if idx < 0 || stmt.ColumnIsNull(idx) {
		return nil
	}
	t, err := time.Parse(dateLayout, stmt.ColumnText(idx))
	if err != nil {
		return nil
	}
	return &t
}

func columnTime(stmt *sqlite.Stmt, col string) time.Time {
	return time.Unix(0, stmt.GetInt64(col)).UTC()
}

func columnID(stmt *sqlite.Stmt, col string) uint {
	return uint(stmt.GetInt64(col))
}

func notFound(what string, id uint) error {
	return fmt.Errorf("%s %d: %w", what, id, apperr.ErrNotFound)
}

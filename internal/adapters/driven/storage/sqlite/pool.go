package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultMaxConnections bounds concurrent database connections.
const DefaultMaxConnections = 5

// connDSNParams tunes every physical connection once at creation: WAL
// journalling, a generous busy timeout, foreign keys, a larger page
// cache and in-memory temp storage.
const connDSNParams = "?_pragma=journal_mode(WAL)" +
	"&_pragma=busy_timeout(30000)" +
	"&_pragma=foreign_keys(1)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=cache_size(-64000)" +
	"&_pragma=temp_store(MEMORY)"

// Pool bounds concurrent connections to one SQLite database. Acquire
// blocks when all slots are in use; there is no over-limit fallback, so
// exhaustion is backpressure rather than silent pool growth.
type Pool struct {
	db  *sql.DB
	sem chan struct{}

	acquired  atomic.Int64 // lifetime acquisitions
	closeOnce sync.Once
	closeErr  error
}

// PoolStats describes pool usage.
type PoolStats struct {
	// Idle is the number of pooled, unused connections.
	Idle int

	// InUse is the number of connections currently acquired.
	InUse int

	// TotalAcquired is the lifetime number of acquisitions.
	TotalAcquired int64

	// MaxConnections is the configured bound.
	MaxConnections int
}

// NewPool opens a bounded connection pool for the database at dbPath.
func NewPool(dbPath string, maxConns int) (*Pool, error) {
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}

	db, err := sql.Open("sqlite", dbPath+connDSNParams)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	return &Pool{
		db:  db,
		sem: make(chan struct{}, maxConns),
	}, nil
}

// Acquire returns a connection, blocking while the pool is exhausted.
// It fails only when ctx is done first. Callers must pair every Acquire
// with Release; prefer WithConn, which guarantees the pairing.
func (p *Pool) Acquire(ctx context.Context) (*sql.Conn, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		<-p.sem
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	p.acquired.Add(1)
	return conn, nil
}

// Release returns a connection to the pool.
func (p *Pool) Release(conn *sql.Conn) {
	if conn == nil {
		return
	}
	_ = conn.Close() // returns the physical connection to the pool
	<-p.sem
}

// WithConn runs fn with an acquired connection, releasing it even when
// fn fails or panics.
func (p *Pool) WithConn(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)

	return fn(conn)
}

// Stats returns current pool usage.
func (p *Pool) Stats() PoolStats {
	inUse := len(p.sem)
	dbStats := p.db.Stats()

	return PoolStats{
		Idle:           dbStats.Idle,
		InUse:          inUse,
		TotalAcquired:  p.acquired.Load(),
		MaxConnections: cap(p.sem),
	}
}

// Close shuts the pool down. It is idempotent and safe to call during
// shutdown while connections are still in use; in-flight connections
// are closed as they are released.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.db.Close()
	})
	return p.closeErr
}

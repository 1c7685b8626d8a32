// Package database persists shared scenes behind database/sql. The
// engine is chosen by flags: modernc SQLite by default, genji or chai
// for document-style files, DuckDB behind build tags, or PostgreSQL
// through pgx. File engines run over one serialized connection so the
// store never needs a mutex; all coordination is channels.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"
)

// Database wraps the SQL connection together with the channel-fed id
// generator and a write gate that serializes mutations on file-backed
// engines.
type Database struct {
	DB          *sql.DB
	Driver      string // normalized driver name so SQL builders can stay declarative
	idGenerator chan int64
	writeGate   chan struct{}
}

// Workload classifies a database call so the serialization helper can
// decide whether it has to take the write gate. Reads go straight
// through; writes on single-connection engines queue behind the gate.
type Workload int

const (
	WorkloadRead Workload = iota
	WorkloadWrite
)

// Config holds the connection details collected from flags.
type Config struct {
	DBType    string // sqlite, chai, genji, duckdb, or pgx
	DBPath    string // file path for file-based engines
	DBConn    string // raw DSN for pgx when provided directly
	DBHost    string
	DBPort    int
	DBUser    string
	DBPass    string
	DBName    string
	PGSSLMode string
	Port      int // server port, used in default database file names
}

// startIDGenerator launches the goroutine that hands out unique row
// ids. A channel of ints is all the synchronization the store needs.
func startIDGenerator(initialID int64) chan int64 {
	idChannel := make(chan int64)
	go func(next int64) {
		for {
			idChannel <- next
			next++
		}
	}(initialID)
	return idChannel
}

// NewDatabase opens the configured engine and tunes its connection
// pool. File engines are forced to a single physical connection so no
// two statements ever interleave at the driver level.
func NewDatabase(config Config) (*Database, error) {
	driverName := strings.ToLower(strings.TrimSpace(config.DBType))
	var (
		dsn                string
		applySQLitePragmas bool
	)

	switch driverName {
	case "sqlite":
		applySQLitePragmas = true
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("scenes-%d.%s", config.Port, driverName)
		}
	case "chai", "genji":
		// Document-style engines reuse file DSNs but manage their own
		// transaction and caching strategy, so SQLite pragmas stay off.
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("scenes-%d.%s", config.Port, driverName)
		}
	case "duckdb":
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("scenes-%d.duckdb", config.Port)
		}
	case "pgx":
		if strings.TrimSpace(config.DBConn) != "" {
			dsn = config.DBConn
		} else {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				config.DBUser, config.DBPass, config.DBHost, config.DBPort, config.DBName, config.PGSSLMode)
		}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.DBType)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	switch driverName {
	case "sqlite", "chai", "genji", "duckdb":
		// One physical connection; no concurrent statements at the DB
		// layer. The connection is never recycled so it stays stable
		// for the whole process.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if applySQLitePragmas {
			tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := tuneSQLiteConnection(tuneCtx, db, log.Printf); err != nil {
				log.Printf("sqlite tuning skipped: %v", err)
			}
			cancel()
		} else if driverName == "duckdb" {
			tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := tuneDuckDBConnection(tuneCtx, db, log.Printf); err != nil {
				log.Printf("duckdb tuning skipped: %v", err)
			}
			cancel()
		}
	case "pgx":
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	// Cheap liveness probe with a timeout so startup never hangs on a
	// wedged engine.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
	}

	log.Printf("Using database driver: %s with DSN: %s", driverName, dsn)

	// Bootstrap the id generator from the highest stored id. Errors are
	// ignored so startup stays robust when the table does not exist yet.
	var maxID sql.NullInt64
	_ = db.QueryRow(`SELECT MAX(id) FROM scenes`).Scan(&maxID)
	initialID := int64(1)
	if maxID.Valid && maxID.Int64 >= initialID {
		initialID = maxID.Int64 + 1
	}

	gate := make(chan struct{}, 1)
	gate <- struct{}{}

	return &Database{
		DB:          db,
		Driver:      driverName,
		idGenerator: startIDGenerator(initialID),
		writeGate:   gate,
	}, nil
}

// withSerializedConnectionFor funnels database work through the write
// gate when the workload mutates a single-connection engine. Reads and
// pgx traffic pass straight through; the pool already handles those.
func (db *Database) withSerializedConnectionFor(ctx context.Context, w Workload, fn func(context.Context, *sql.DB) error) error {
	if w == WorkloadWrite && db.Driver != "pgx" {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case token := <-db.writeGate:
			defer func() { db.writeGate <- token }()
		}
	}
	return fn(ctx, db.DB)
}

// tuneSQLiteConnection applies WAL/synchronous/busy pragmas. The steps
// run through a small channel pipeline so the work happens outside the
// caller goroutine, keeping the no-mutex rule intact even here.
func tuneSQLiteConnection(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	type pragma struct {
		label     string
		query     string
		expectRow bool
	}

	steps := []pragma{
		{label: "journal_mode", query: "PRAGMA journal_mode=WAL;", expectRow: true},
		{label: "synchronous", query: "PRAGMA synchronous=NORMAL;"},
		{label: "temp_store", query: "PRAGMA temp_store=MEMORY;"},
		{label: "cache_size", query: "PRAGMA cache_size=-20000;"},
		{label: "busy_timeout", query: "PRAGMA busy_timeout=5000;"},
	}

	jobs := make(chan pragma)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		for step := range jobs {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			default:
			}

			if step.expectRow {
				var mode string
				if err := db.QueryRowContext(ctx, step.query).Scan(&mode); err != nil {
					errs <- fmt.Errorf("apply %s: %w", step.label, err)
					return
				}
				logf("SQLite tuning %s -> %s", step.label, mode)
				continue
			}

			if _, err := db.ExecContext(ctx, step.query); err != nil {
				errs <- fmt.Errorf("apply %s: %w", step.label, err)
				return
			}
			logf("SQLite tuning %s applied", step.label)
		}
		errs <- nil
	}()

	go func() {
		defer close(jobs)
		for _, step := range steps {
			jobs <- step
		}
	}()

	return <-errs
}

// tuneDuckDBConnection raises thread count and checkpoint threshold so
// share bursts stay CPU-bound instead of pausing on checkpoints.
func tuneDuckDBConnection(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	threads := runtime.NumCPU()
	if threads < 1 {
		threads = 1
	}

	steps := []struct {
		label string
		query string
	}{
		{label: "threads", query: fmt.Sprintf("PRAGMA threads=%d;", threads)},
		{label: "checkpoint_threshold", query: "PRAGMA checkpoint_threshold='1GB';"},
	}

	for _, step := range steps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := db.ExecContext(ctx, step.query); err != nil {
			return fmt.Errorf("apply %s: %w", step.label, err)
		}
		logf("DuckDB tuning %s applied", step.label)
	}
	return nil
}

// InitSchema creates the scenes table synchronously so the app can
// accept traffic immediately. Secondary indexes are built later by
// EnsureIndexesAsync in the background.
func (db *Database) InitSchema(cfg Config) error {
	var schema string
	switch strings.ToLower(cfg.DBType) {
	case "pgx":
		schema = `
CREATE TABLE IF NOT EXISTS scenes (
  id          BIGINT PRIMARY KEY,
  code        TEXT UNIQUE NOT NULL,
  params_key  TEXT UNIQUE NOT NULL,
  params      TEXT NOT NULL,
  circles     INTEGER NOT NULL,
  overlap     DOUBLE PRECISION NOT NULL,
  created_at  BIGINT NOT NULL
);`
	case "duckdb":
		schema = `
CREATE TABLE IF NOT EXISTS scenes (
  id          BIGINT PRIMARY KEY,
  code        TEXT UNIQUE NOT NULL,
  params_key  TEXT UNIQUE NOT NULL,
  params      TEXT NOT NULL,
  circles     INTEGER NOT NULL,
  overlap     DOUBLE NOT NULL,
  created_at  BIGINT NOT NULL
);`
	default:
		// SQLite, chai, genji.
		schema = `
CREATE TABLE IF NOT EXISTS scenes (
  id          INTEGER PRIMARY KEY,
  code        TEXT UNIQUE NOT NULL,
  params_key  TEXT UNIQUE NOT NULL,
  params      TEXT NOT NULL,
  circles     INTEGER NOT NULL,
  overlap     REAL NOT NULL,
  created_at  INTEGER NOT NULL
);`
	}

	if _, err := db.DB.Exec(schema); err != nil {
		return fmt.Errorf("create scenes table: %w", err)
	}
	return nil
}

// EnsureIndexesAsync builds non-critical indexes in background.
//   - No pinned connections (important with MaxOpenConns(1)).
//   - No pre-checks: just CREATE INDEX IF NOT EXISTS.
//   - Retries with backoff on "database is locked"/"SQLITE_BUSY".
func (db *Database) EnsureIndexesAsync(ctx context.Context, cfg Config, logf func(string, ...any)) {
	indexes := []struct{ name, sql string }{
		{"idx_scenes_created_at",
			`CREATE INDEX IF NOT EXISTS idx_scenes_created_at ON scenes (created_at)`},
		{"idx_scenes_circles",
			`CREATE INDEX IF NOT EXISTS idx_scenes_circles ON scenes (circles)`},
	}

	go func() {
		logf("⏳ background index build scheduled (engine=%s). Listeners are up; pages may be slower until indexes are ready.", cfg.DBType)

		for _, it := range indexes {
			start := time.Now()
			logf("▶️  start index %s", it.name)

			backoff := 50 * time.Millisecond
			for {
				select {
				case <-ctx.Done():
					logf("⏹️  stop index builder due to context cancel: %v", ctx.Err())
					return
				default:
				}

				_, err := db.DB.ExecContext(ctx, it.sql)
				if err == nil {
					logf("✅ index %s ready in %s", it.name, time.Since(start).Truncate(time.Millisecond))
					break
				}

				msg := strings.ToLower(err.Error())
				if strings.Contains(msg, "already exists") {
					logf("⏭️  index %s appears to exist. continue.", it.name)
					break
				}

				if strings.Contains(msg, "database is locked") ||
					strings.Contains(msg, "sqlite_busy") ||
					strings.Contains(msg, "locked") {
					time.Sleep(backoff)
					if backoff < time.Second {
						backoff *= 2
						if backoff > time.Second {
							backoff = time.Second
						}
					}
					continue
				}

				logf("❌ index %s failed after %s: %v", it.name, time.Since(start).Truncate(time.Millisecond), err)
				break
			}
		}
	}()
}

package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"veinlocate.ai/internal/sim/catalogs"
	"veinlocate.ai/internal/sim/command"
	"veinlocate.ai/internal/sim/tuning"
)

// SQLiteIndex is a read model of executed queries. Writes are queued to a
// single writer goroutine and dropped when the queue is full; the JSONL log
// remains the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	// mu orders sends against close(ch).
	mu     sync.RWMutex
	ch     chan command.QueryRecord
	closed bool
	wg     sync.WaitGroup
	once   sync.Once

	dropped atomic.Uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan command.QueryRecord, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS queries (
			id TEXT PRIMARY KEY,
			at TEXT NOT NULL,
			source TEXT NOT NULL,
			origin_x REAL NOT NULL,
			origin_y REAL NOT NULL,
			origin_z REAL NOT NULL,
			vein TEXT NOT NULL,
			radius INTEGER NOT NULL,
			status INTEGER NOT NULL,
			code TEXT NOT NULL,
			found INTEGER NOT NULL,
			nearest TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			distance REAL NOT NULL,
			in_range INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_queries_at ON queries(at);`,
		`CREATE INDEX IF NOT EXISTS idx_queries_nearest ON queries(nearest, at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts records discarded because the writer fell behind.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) WriteQuery(r command.QueryRecord) error {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, veins *catalogs.Veins, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	rows, err := catalogRows(configDir, veins, tune)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('seed',?)`, fmt.Sprint(tune.Seed)); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	insert, _ := s.db.Prepare(`INSERT OR REPLACE INTO queries(id,at,source,origin_x,origin_y,origin_z,vein,radius,status,code,found,nearest,x,y,z,distance,in_range) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insert != nil {
			_ = insert.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil || insert == nil {
			continue
		}
		if _, err := tx.Stmt(insert).Exec(
			r.ID, r.At, r.Source,
			r.Origin[0], r.Origin[1], r.Origin[2],
			r.Vein, r.Radius, r.Status, r.Code,
			boolInt(r.Found), r.Nearest,
			r.Pos[0], r.Pos[1], r.Pos[2],
			r.Distance, r.InRange,
		); err != nil {
			_ = tx.Rollback()
			tx = nil
			continue
		}
		opCount++
		// An empty queue also commits, so readers see recent queries promptly.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}

// Recent returns the newest limit queries, newest first.
func Recent(ctx context.Context, db *sql.DB, limit int) ([]command.QueryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `SELECT id,at,source,origin_x,origin_y,origin_z,vein,radius,status,code,found,nearest,x,y,z,distance,in_range FROM queries ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []command.QueryRecord
	for rows.Next() {
		var (
			r     command.QueryRecord
			found int
		)
		if err := rows.Scan(
			&r.ID, &r.At, &r.Source,
			&r.Origin[0], &r.Origin[1], &r.Origin[2],
			&r.Vein, &r.Radius, &r.Status, &r.Code,
			&found, &r.Nearest,
			&r.Pos[0], &r.Pos[1], &r.Pos[2],
			&r.Distance, &r.InRange,
		); err != nil {
			return out, err
		}
		r.Found = found != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Recent reads through the index's own connection.
func (s *SQLiteIndex) Recent(ctx context.Context, limit int) ([]command.QueryRecord, error) {
	return Recent(ctx, s.db, limit)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

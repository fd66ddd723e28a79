// Package indexdb maintains a queryable SQLite read model of host
// activity: resolution attempts and session audit rows. Writes are
// funneled through a single goroutine with batched transactions; the
// compressed JSONL logs remain the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	plog "emberhost.ai/internal/persistence/log"
	"emberhost.ai/internal/session"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqResolution reqKind = iota + 1
	reqAudit
	reqSync
)

type req struct {
	kind reqKind

	resolution plog.ResolutionEntry
	audit      session.AuditEntry
	done       chan struct{}
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
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
		// Generous buffer so bursty audit writes never stall a session.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS resolutions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			registry TEXT NOT NULL,
			token_id TEXT NOT NULL,
			card_uri TEXT,
			manifest_uri TEXT,
			outcome TEXT NOT NULL,
			detail TEXT,
			recorded_at TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_resolutions_token ON resolutions(registry, token_id);`,
		`CREATE TABLE IF NOT EXISTS session_audits (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			widget_id TEXT NOT NULL,
			op TEXT NOT NULL,
			surface_id TEXT,
			event_type TEXT,
			accepted INTEGER NOT NULL,
			code TEXT,
			recorded_at TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_session_audits_widget ON session_audits(widget_id);`,
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
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteResolution(e plog.ResolutionEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqResolution, resolution: e}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
	}
	return nil
}

func (s *SQLiteIndex) WriteSessionAudit(e session.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: e}:
	default:
	}
	return nil
}

// Sync blocks until every write queued before it has been committed.
// Intended for tests and shutdown, not the hot path.
func (s *SQLiteIndex) Sync() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqSync, done: done}
	<-done
}

// ResolutionRow is one indexed resolution attempt.
type ResolutionRow struct {
	Registry    string
	TokenID     string
	CardURI     string
	ManifestURI string
	Outcome     string
	Detail      string
	RecordedAt  string
}

// Resolutions returns the indexed attempts for a token reference, oldest
// first.
func (s *SQLiteIndex) Resolutions(registry, tokenID string) ([]ResolutionRow, error) {
	rows, err := s.db.Query(
		`SELECT registry, token_id, COALESCE(card_uri,''), COALESCE(manifest_uri,''),
		        outcome, COALESCE(detail,''), recorded_at
		 FROM resolutions WHERE registry = ? AND token_id = ? ORDER BY id`,
		registry, tokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResolutionRow
	for rows.Next() {
		var r ResolutionRow
		if err := rows.Scan(&r.Registry, &r.TokenID, &r.CardURI, &r.ManifestURI, &r.Outcome, &r.Detail, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SessionAudits returns the audit trail for one session in write order.
func (s *SQLiteIndex) SessionAudits(sessionID string) ([]session.AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT raw_json FROM session_audits WHERE session_id = ? ORDER BY seq`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.AuditEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e session.AuditEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertResolution, _ := s.db.Prepare(`INSERT INTO resolutions(registry,token_id,card_uri,manifest_uri,outcome,detail,recorded_at,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO session_audits(session_id,seq,widget_id,op,surface_id,event_type,accepted,code,recorded_at,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertResolution != nil {
			_ = insertResolution.Close()
		}
		if insertAudit != nil {
			_ = insertAudit.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second

		auditSeq = map[string]int{} // per-session, sessions interleave
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
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	now := func() string { return time.Now().UTC().Format(time.RFC3339Nano) }

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			if r.done != nil {
				close(r.done)
			}
			continue
		}
		switch r.kind {
		case reqResolution:
			e := r.resolution
			if e.RecordedAt == "" {
				e.RecordedAt = now()
			}
			raw, _ := json.Marshal(e)
			if insertResolution != nil {
				if _, err := tx.Stmt(insertResolution).Exec(
					e.Registry,
					e.TokenID,
					e.CardURI,
					e.ManifestURI,
					e.Outcome,
					e.Detail,
					e.RecordedAt,
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqAudit:
			a := r.audit
			seq := auditSeq[a.SessionID]
			auditSeq[a.SessionID] = seq + 1
			raw, _ := json.Marshal(a)
			if insertAudit != nil {
				accepted := 0
				if a.Accepted {
					accepted = 1
				}
				if _, err := tx.Stmt(insertAudit).Exec(
					a.SessionID,
					seq,
					a.WidgetID,
					a.Op,
					a.SurfaceID,
					a.EventType,
					accepted,
					a.Code,
					now(),
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}

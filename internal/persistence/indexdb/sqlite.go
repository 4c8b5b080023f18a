package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"steading.world/internal/sim/catalogs"
	"steading.world/internal/sim/tuning"
	"steading.world/internal/sim/world"
)

type SQLiteConfig struct {
	Path string

	// CommitEvery and CommitMaxWait bound how long batched rows sit in an
	// open transaction. Zero values fall back to 2000 rows / 2s.
	CommitEvery   int
	CommitMaxWait time.Duration
}

type SQLiteIndex struct {
	cfg SQLiteConfig
	db  *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropDays   atomic.Uint64
	dropWeeks  atomic.Uint64
	flushFails atomic.Uint64
}

func OpenSQLite(cfg SQLiteConfig) (*SQLiteIndex, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if cfg.CommitEvery <= 0 {
		cfg.CommitEvery = 2000
	}
	if cfg.CommitMaxWait <= 0 {
		cfg.CommitMaxWait = 2 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
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
		cfg: cfg,
		db:  db,
		// Day records arrive once per simulated day, which is slow in real
		// time but bursty under batch runs. 4096 absorbs the bursts.
		ch: make(chan req, 4096),
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
	for _, s := range schemaStmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// SchemaSQL returns the sqlite DDL, one statement per line group, for
// operators who want to inspect or pre-create the index.
func SchemaSQL() string {
	out := ""
	for _, s := range schemaStmts {
		out += s + "\n"
	}
	return out
}

var schemaStmts = []string{
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
	`CREATE TABLE IF NOT EXISTS days (
		day INTEGER PRIMARY KEY,
		week INTEGER NOT NULL,
		farms INTEGER NOT NULL,
		productions INTEGER NOT NULL,
		spends INTEGER NOT NULL,
		farm_events INTEGER NOT NULL,
		digest TEXT NOT NULL,
		raw_json TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS productions (
		day INTEGER NOT NULL,
		steward TEXT NOT NULL,
		week INTEGER NOT NULL,
		sum INTEGER NOT NULL,
		farms INTEGER NOT NULL,
		PRIMARY KEY (day, steward)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_productions_steward_day ON productions(steward, day);`,
	`CREATE TABLE IF NOT EXISTS spends (
		day INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		steward TEXT NOT NULL,
		amount INTEGER NOT NULL,
		source TEXT NOT NULL,
		ok INTEGER NOT NULL,
		available INTEGER NOT NULL,
		code TEXT,
		PRIMARY KEY (day, seq)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_spends_steward_day ON spends(steward, day);`,
	`CREATE TABLE IF NOT EXISTS farm_events (
		day INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		farm_id TEXT NOT NULL,
		steward TEXT NOT NULL,
		kind TEXT,
		cell_x INTEGER NOT NULL,
		cell_y INTEGER NOT NULL,
		active INTEGER NOT NULL,
		yield INTEGER NOT NULL,
		ok INTEGER NOT NULL,
		code TEXT,
		PRIMARY KEY (day, seq)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_farm_events_farm_day ON farm_events(farm_id, day);`,
	`CREATE INDEX IF NOT EXISTS idx_farm_events_cell_day ON farm_events(cell_x, cell_y, day);`,
	`CREATE TABLE IF NOT EXISTS weeks (
		week INTEGER PRIMARY KEY,
		first_day INTEGER NOT NULL,
		last_day INTEGER NOT NULL,
		digest TEXT NOT NULL,
		raw_json TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS week_stewards (
		week INTEGER NOT NULL,
		steward TEXT NOT NULL,
		baseline INTEGER NOT NULL,
		spent INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		PRIMARY KEY (week, steward)
	);`,
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

// WriteDay implements world.DayLogger.
func (s *SQLiteIndex) WriteDay(rec world.DayRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqDay, day: rec}:
	default:
		// Drop if the indexer falls behind; the journal remains the source of truth.
		s.dropDays.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordWeek(rec world.WeekRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqWeek, week: rec}:
	default:
		s.dropWeeks.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropDayTotal:   s.dropDays.Load(),
		DropWeekTotal:  s.dropWeeks.Load(),
		FlushFailTotal: s.flushFails.Load(),
	}
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil || cats == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range catalogRows(configDir, cats, tune) {
		if _, err := stmt.Exec(r.name, r.digest, string(r.data), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type catalogRow struct {
	name   string
	digest string
	data   []byte
}

// catalogRows prefers the raw on-disk bytes so the stored JSON matches the
// digests computed at load; tuning is stored as the values actually applied.
func catalogRows(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) []catalogRow {
	var rows []catalogRow
	read := func(name string) []byte {
		if configDir == "" {
			return nil
		}
		b, err := os.ReadFile(filepath.Join(configDir, name))
		if err != nil {
			return nil
		}
		return b
	}
	if b := read("crops.json"); len(b) > 0 {
		rows = append(rows, catalogRow{name: "crops", digest: cats.Crops.Digest, data: b})
	}
	if b := read("steading.json"); len(b) > 0 {
		rows = append(rows, catalogRow{name: "scenario", digest: cats.Scenario.Digest, data: b})
	}
	if b, err := json.Marshal(tune); err == nil && len(b) > 0 {
		sum := sha256.Sum256(b)
		rows = append(rows, catalogRow{name: "tuning", digest: hex.EncodeToString(sum[:]), data: b})
	}
	return rows
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx         *sql.Tx
		opCount    int
		lastCommit = time.Now()
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
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
		s.flushFails.Add(1)
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= s.cfg.CommitEvery || time.Since(lastCommit) >= s.cfg.CommitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		var err error
		var ops int
		switch r.kind {
		case reqDay:
			ops, err = insertDay(tx, r.day)
		case reqWeek:
			ops, err = insertWeek(tx, r.week)
		}
		if err != nil {
			rollback()
			continue
		}
		opCount += ops
		flushIfNeeded()
	}

	commit()
}

func insertDay(tx *sql.Tx, rec world.DayRecord) (int, error) {
	raw, _ := json.Marshal(rec)
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO days(day,week,farms,productions,spends,farm_events,digest,raw_json) VALUES(?,?,?,?,?,?,?,?)`,
		rec.Day, rec.Week, rec.Farms,
		len(rec.Productions), len(rec.Spends), len(rec.FarmEvents),
		rec.Digest, string(raw),
	); err != nil {
		return 0, err
	}
	ops := 1
	for _, p := range rec.Productions {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO productions(day,steward,week,sum,farms) VALUES(?,?,?,?,?)`,
			rec.Day, p.Steward, p.Week, p.Sum, p.Farms,
		); err != nil {
			return ops, err
		}
		ops++
	}
	for i, sp := range rec.Spends {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO spends(day,seq,steward,amount,source,ok,available,code) VALUES(?,?,?,?,?,?,?,?)`,
			rec.Day, i, sp.Steward, sp.Amount, sp.Source, sp.OK, sp.Available, sp.Code,
		); err != nil {
			return ops, err
		}
		ops++
	}
	for i, fe := range rec.FarmEvents {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO farm_events(day,seq,farm_id,steward,kind,cell_x,cell_y,active,yield,ok,code) VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
			rec.Day, i, fe.ID, fe.Steward, fe.Kind, fe.Cell[0], fe.Cell[1], fe.Active, fe.Yield, fe.OK, fe.Code,
		); err != nil {
			return ops, err
		}
		ops++
	}
	return ops, nil
}

func insertWeek(tx *sql.Tx, rec world.WeekRecord) (int, error) {
	raw, _ := json.Marshal(rec)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO weeks(week,first_day,last_day,digest,raw_json,recorded_at) VALUES(?,?,?,?,?,?)`,
		rec.Week, rec.FirstDay, rec.LastDay, rec.Digest, string(raw), now,
	); err != nil {
		return 0, err
	}
	ops := 1
	for _, st := range rec.Stewards {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO week_stewards(week,steward,baseline,spent,remaining) VALUES(?,?,?,?,?)`,
			rec.Week, st.Steward, st.Baseline, st.Spent, st.Remaining,
		); err != nil {
			return ops, err
		}
		ops++
	}
	return ops, nil
}

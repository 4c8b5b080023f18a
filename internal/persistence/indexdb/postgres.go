package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"steading.world/internal/sim/catalogs"
	"steading.world/internal/sim/tuning"
	"steading.world/internal/sim/world"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

type PGConfig struct {
	DSN      string
	Steading string

	BatchSize     int
	FlushInterval time.Duration
	Logger        *log.Logger
}

// PGIndex mirrors the day journal into a shared Postgres, scoped by
// steading id so several steadings can index into one database.
type PGIndex struct {
	cfg PGConfig
	db  *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropDays   atomic.Uint64
	dropWeeks  atomic.Uint64
	flushFails atomic.Uint64
}

func OpenPG(cfg PGConfig) (*PGIndex, error) {
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	cfg.Steading = strings.TrimSpace(cfg.Steading)
	if cfg.DSN == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}
	if cfg.Steading == "" {
		return nil, fmt.Errorf("empty steading id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}

	openMu.Lock()
	db, err := sqlOpen("pgx", cfg.DSN)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := initPGSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	p := &PGIndex{
		cfg: cfg,
		db:  db,
		ch:  make(chan req, 4096),
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop()
	}()
	return p, nil
}

func initPGSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS catalogs (
			steading TEXT NOT NULL,
			name TEXT NOT NULL,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (steading, name)
		)`,
		`CREATE TABLE IF NOT EXISTS days (
			steading TEXT NOT NULL,
			day BIGINT NOT NULL,
			week BIGINT NOT NULL,
			farms INTEGER NOT NULL,
			productions INTEGER NOT NULL,
			spends INTEGER NOT NULL,
			farm_events INTEGER NOT NULL,
			digest TEXT NOT NULL,
			raw_json JSONB NOT NULL,
			PRIMARY KEY (steading, day)
		)`,
		`CREATE TABLE IF NOT EXISTS productions (
			steading TEXT NOT NULL,
			day BIGINT NOT NULL,
			steward TEXT NOT NULL,
			week BIGINT NOT NULL,
			sum INTEGER NOT NULL,
			farms INTEGER NOT NULL,
			PRIMARY KEY (steading, day, steward)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_productions_steward_day ON productions(steading, steward, day)`,
		`CREATE TABLE IF NOT EXISTS spends (
			steading TEXT NOT NULL,
			day BIGINT NOT NULL,
			seq INTEGER NOT NULL,
			steward TEXT NOT NULL,
			amount INTEGER NOT NULL,
			source TEXT NOT NULL,
			ok BOOLEAN NOT NULL,
			available INTEGER NOT NULL,
			code TEXT,
			PRIMARY KEY (steading, day, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spends_steward_day ON spends(steading, steward, day)`,
		`CREATE TABLE IF NOT EXISTS farm_events (
			steading TEXT NOT NULL,
			day BIGINT NOT NULL,
			seq INTEGER NOT NULL,
			farm_id TEXT NOT NULL,
			steward TEXT NOT NULL,
			kind TEXT,
			cell_x INTEGER NOT NULL,
			cell_y INTEGER NOT NULL,
			active BOOLEAN NOT NULL,
			yield INTEGER NOT NULL,
			ok BOOLEAN NOT NULL,
			code TEXT,
			PRIMARY KEY (steading, day, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_farm_events_farm_day ON farm_events(steading, farm_id, day)`,
		`CREATE TABLE IF NOT EXISTS weeks (
			steading TEXT NOT NULL,
			week BIGINT NOT NULL,
			first_day BIGINT NOT NULL,
			last_day BIGINT NOT NULL,
			digest TEXT NOT NULL,
			raw_json JSONB NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (steading, week)
		)`,
		`CREATE TABLE IF NOT EXISTS week_stewards (
			steading TEXT NOT NULL,
			week BIGINT NOT NULL,
			steward TEXT NOT NULL,
			baseline INTEGER NOT NULL,
			spent INTEGER NOT NULL,
			remaining INTEGER NOT NULL,
			PRIMARY KEY (steading, week, steward)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func (p *PGIndex) Close() error {
	if p == nil {
		return nil
	}
	var err error
	p.once.Do(func() {
		p.closed.Store(true)
		close(p.ch)
		p.wg.Wait()
		err = p.db.Close()
	})
	return err
}

// WriteDay implements world.DayLogger.
func (p *PGIndex) WriteDay(rec world.DayRecord) error {
	if p == nil || p.closed.Load() {
		return nil
	}
	select {
	case p.ch <- req{kind: reqDay, day: rec}:
	default:
		p.dropDays.Add(1)
		p.printf("pg index queue full; drop day=%d steading=%s", rec.Day, p.cfg.Steading)
	}
	return nil
}

func (p *PGIndex) RecordWeek(rec world.WeekRecord) {
	if p == nil || p.closed.Load() {
		return
	}
	select {
	case p.ch <- req{kind: reqWeek, week: rec}:
	default:
		p.dropWeeks.Add(1)
		p.printf("pg index queue full; drop week=%d steading=%s", rec.Week, p.cfg.Steading)
	}
}

func (p *PGIndex) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(p.ch),
		QueueCapacity:  cap(p.ch),
		DropDayTotal:   p.dropDays.Load(),
		DropWeekTotal:  p.dropWeeks.Load(),
		FlushFailTotal: p.flushFails.Load(),
	}
}

func (p *PGIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if p == nil || p.closed.Load() || cats == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	ctx := context.Background()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, r := range catalogRows(configDir, cats, tune) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO catalogs(steading,name,digest,json,updated_at) VALUES($1,$2,$3,$4,$5)
			 ON CONFLICT (steading,name) DO UPDATE SET digest=EXCLUDED.digest, json=EXCLUDED.json, updated_at=EXCLUDED.updated_at`,
			p.cfg.Steading, r.name, r.digest, string(r.data), now,
		); err != nil {
			return fmt.Errorf("upsert catalog %s: %w", r.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func (p *PGIndex) loop() {
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]req, 0, p.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := p.sendBatch(batch); err != nil {
			p.flushFails.Add(1)
			p.printf("pg index flush failed batch=%d err=%v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case r, ok := <-p.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, r)
			if len(batch) >= p.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (p *PGIndex) sendBatch(reqs []req) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := p.applyBatch(reqs); err != nil {
			lastErr = err
			time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
			continue
		}
		return nil
	}
	return lastErr
}

func (p *PGIndex) applyBatch(reqs []req) error {
	ctx := context.Background()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, r := range reqs {
		switch r.kind {
		case reqDay:
			if err := p.insertDay(ctx, tx, r.day); err != nil {
				return err
			}
		case reqWeek:
			if err := p.insertWeek(ctx, tx, r.week); err != nil {
				return err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func (p *PGIndex) insertDay(ctx context.Context, tx *sql.Tx, rec world.DayRecord) error {
	raw, _ := json.Marshal(rec)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO days(steading,day,week,farms,productions,spends,farm_events,digest,raw_json) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (steading,day) DO UPDATE SET week=EXCLUDED.week, farms=EXCLUDED.farms, productions=EXCLUDED.productions, spends=EXCLUDED.spends, farm_events=EXCLUDED.farm_events, digest=EXCLUDED.digest, raw_json=EXCLUDED.raw_json`,
		p.cfg.Steading, rec.Day, rec.Week, rec.Farms,
		len(rec.Productions), len(rec.Spends), len(rec.FarmEvents),
		rec.Digest, string(raw),
	); err != nil {
		return fmt.Errorf("upsert day %d: %w", rec.Day, err)
	}
	for _, pr := range rec.Productions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO productions(steading,day,steward,week,sum,farms) VALUES($1,$2,$3,$4,$5,$6)
			 ON CONFLICT (steading,day,steward) DO UPDATE SET week=EXCLUDED.week, sum=EXCLUDED.sum, farms=EXCLUDED.farms`,
			p.cfg.Steading, rec.Day, pr.Steward, pr.Week, pr.Sum, pr.Farms,
		); err != nil {
			return fmt.Errorf("upsert production %s day %d: %w", pr.Steward, rec.Day, err)
		}
	}
	for i, sp := range rec.Spends {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO spends(steading,day,seq,steward,amount,source,ok,available,code) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
			 ON CONFLICT (steading,day,seq) DO UPDATE SET steward=EXCLUDED.steward, amount=EXCLUDED.amount, source=EXCLUDED.source, ok=EXCLUDED.ok, available=EXCLUDED.available, code=EXCLUDED.code`,
			p.cfg.Steading, rec.Day, i, sp.Steward, sp.Amount, sp.Source, sp.OK, sp.Available, sp.Code,
		); err != nil {
			return fmt.Errorf("upsert spend day %d seq %d: %w", rec.Day, i, err)
		}
	}
	for i, fe := range rec.FarmEvents {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO farm_events(steading,day,seq,farm_id,steward,kind,cell_x,cell_y,active,yield,ok,code) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			 ON CONFLICT (steading,day,seq) DO UPDATE SET farm_id=EXCLUDED.farm_id, steward=EXCLUDED.steward, kind=EXCLUDED.kind, cell_x=EXCLUDED.cell_x, cell_y=EXCLUDED.cell_y, active=EXCLUDED.active, yield=EXCLUDED.yield, ok=EXCLUDED.ok, code=EXCLUDED.code`,
			p.cfg.Steading, rec.Day, i, fe.ID, fe.Steward, fe.Kind, fe.Cell[0], fe.Cell[1], fe.Active, fe.Yield, fe.OK, fe.Code,
		); err != nil {
			return fmt.Errorf("upsert farm event day %d seq %d: %w", rec.Day, i, err)
		}
	}
	return nil
}

func (p *PGIndex) insertWeek(ctx context.Context, tx *sql.Tx, rec world.WeekRecord) error {
	raw, _ := json.Marshal(rec)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO weeks(steading,week,first_day,last_day,digest,raw_json,recorded_at) VALUES($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (steading,week) DO UPDATE SET first_day=EXCLUDED.first_day, last_day=EXCLUDED.last_day, digest=EXCLUDED.digest, raw_json=EXCLUDED.raw_json, recorded_at=EXCLUDED.recorded_at`,
		p.cfg.Steading, rec.Week, rec.FirstDay, rec.LastDay, rec.Digest, string(raw), now,
	); err != nil {
		return fmt.Errorf("upsert week %d: %w", rec.Week, err)
	}
	for _, st := range rec.Stewards {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO week_stewards(steading,week,steward,baseline,spent,remaining) VALUES($1,$2,$3,$4,$5,$6)
			 ON CONFLICT (steading,week,steward) DO UPDATE SET baseline=EXCLUDED.baseline, spent=EXCLUDED.spent, remaining=EXCLUDED.remaining`,
			p.cfg.Steading, rec.Week, st.Steward, st.Baseline, st.Spent, st.Remaining,
		); err != nil {
			return fmt.Errorf("upsert week steward %s: %w", st.Steward, err)
		}
	}
	return nil
}

func (p *PGIndex) printf(format string, args ...any) {
	if p != nil && p.cfg.Logger != nil {
		p.cfg.Logger.Printf(format, args...)
	}
}

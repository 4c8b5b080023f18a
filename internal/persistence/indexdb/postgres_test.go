package indexdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"steading.world/internal/sim/world"
)

func TestOpenPG_Validation(t *testing.T) {
	if _, err := OpenPG(PGConfig{Steading: "s1"}); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
	if _, err := OpenPG(PGConfig{DSN: "postgres://localhost/x"}); err == nil {
		t.Fatalf("expected error for empty steading id")
	}
}

func TestPGIndex_FlushesBatchedRecords(t *testing.T) {
	st := &pgStub{}
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return newPGStubDB(st), nil })
	defer restore()

	idx, err := OpenPG(PGConfig{
		DSN:           "stub",
		Steading:      "greenhollow",
		BatchSize:     2,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("OpenPG: %v", err)
	}

	rec := world.DayRecord{
		Day:  1,
		Week: 0,
		Productions: []world.RecordedProduction{
			{Steward: "ashford", Week: 0, Sum: 35, Farms: 2},
		},
		Digest: "d1",
	}
	if err := idx.WriteDay(rec); err != nil {
		t.Fatalf("WriteDay: %v", err)
	}
	idx.RecordWeek(world.WeekRecord{
		Week:     0,
		FirstDay: 1,
		LastDay:  6,
		Stewards: []world.WeekSteward{{Steward: "ashford", Baseline: 35, Spent: 0, Remaining: 35}},
		Digest:   "d1",
	})

	// BatchSize 2 is reached, so the flush happens without the ticker.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if st.rows("days") >= 1 && st.rows("weeks") >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := st.rows("days"); got != 1 {
		t.Fatalf("days rows=%d want 1", got)
	}
	if got := st.rows("productions"); got != 1 {
		t.Fatalf("productions rows=%d want 1", got)
	}
	if got := st.rows("weeks"); got != 1 {
		t.Fatalf("weeks rows=%d want 1", got)
	}
	if got := st.rows("week_stewards"); got != 1 {
		t.Fatalf("week_stewards rows=%d want 1", got)
	}
	if got := idx.Stats().FlushFailTotal; got != 0 {
		t.Fatalf("FlushFailTotal=%d want 0", got)
	}
}

func TestPGIndex_RetriesFailedFlush(t *testing.T) {
	st := &pgStub{failInserts: 2}
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return newPGStubDB(st), nil })
	defer restore()

	idx, err := OpenPG(PGConfig{
		DSN:           "stub",
		Steading:      "greenhollow",
		BatchSize:     1,
		FlushInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("OpenPG: %v", err)
	}
	if err := idx.WriteDay(world.DayRecord{Day: 1, Digest: "d1"}); err != nil {
		t.Fatalf("WriteDay: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if st.rows("days") >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := st.rows("days"); got != 1 {
		t.Fatalf("days rows=%d want 1 after retries", got)
	}
	if got := st.tries(); got < 3 {
		t.Fatalf("insert tries=%d want >=3", got)
	}
	if got := idx.Stats().FlushFailTotal; got != 0 {
		t.Fatalf("FlushFailTotal=%d want 0; retries should have recovered", got)
	}
}

// pgStub counts inserts per table and can fail the first N insert attempts.
type pgStub struct {
	mu          sync.Mutex
	inserts     map[string]int
	insertTries int
	failInserts int
}

func (s *pgStub) rows(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts[table]
}

func (s *pgStub) tries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTries
}

var pgStubSeq atomic.Int64

func newPGStubDB(st *pgStub) *sql.DB {
	name := fmt.Sprintf("pgstub%d", pgStubSeq.Add(1))
	sql.Register(name, &pgStubDriver{conn: &pgStubConn{st: st}})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db
}

type pgStubDriver struct {
	conn *pgStubConn
}

func (d *pgStubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

type pgStubConn struct {
	st *pgStub
}

func (c *pgStubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }
func (c *pgStubConn) Close() error                        { return nil }
func (c *pgStubConn) Ping(context.Context) error          { return nil }

func (c *pgStubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *pgStubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return pgStubTx{}, nil
}

func (c *pgStubConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	up := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(up, "INSERT INTO") {
		return driver.RowsAffected(0), nil
	}
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	c.st.insertTries++
	if c.st.failInserts > 0 {
		c.st.failInserts--
		return nil, fmt.Errorf("exec fail")
	}
	if c.st.inserts == nil {
		c.st.inserts = map[string]int{}
	}
	c.st.inserts[insertTable(query)]++
	return driver.RowsAffected(1), nil
}

type pgStubTx struct{}

func (pgStubTx) Commit() error   { return nil }
func (pgStubTx) Rollback() error { return nil }

func insertTable(query string) string {
	rest := query[strings.Index(strings.ToUpper(query), "INTO ")+len("INTO "):]
	if open := strings.Index(rest, "("); open >= 0 {
		rest = rest[:open]
	}
	return strings.ToLower(strings.TrimSpace(rest))
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"steading.world/internal/sim/world"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	rec := world.DayRecord{
		Day:   8,
		Week:  1,
		Farms: 3,
		Productions: []world.RecordedProduction{
			{Steward: "ashford", Week: 1, Sum: 35, Farms: 3},
		},
		Spends: []world.RecordedSpend{
			{Steward: "ashford", Amount: 5, Source: "admin", OK: true, Available: 30},
			{Steward: "ashford", Amount: 99, Source: "admin", OK: false, Available: 30, Code: "E_INSUFFICIENT"},
			{Steward: "ashford", Amount: 2, Source: "upkeep", OK: true, Available: 28},
		},
		FarmEvents: []world.RecordedFarm{
			{ID: "f3", Steward: "ashford", Kind: "barley", Cell: [2]int{4, 2}, Active: true, Yield: 20, OK: true},
		},
		Digest: "abc",
	}

	c := NewCollector()
	if err := c.WriteDay(rec); err != nil {
		t.Fatalf("WriteDay: %v", err)
	}
	c.RecordWeek(world.WeekRecord{
		Week:     1,
		FirstDay: 7,
		LastDay:  13,
		Stewards: []world.WeekSteward{
			{Steward: "ashford", Baseline: 35, Spent: 7, Remaining: 28},
		},
		Digest: "abc",
	})

	if got := testutil.ToFloat64(simDay); got != 8 {
		t.Fatalf("sim day gauge = %v, want 8", got)
	}
	if got := testutil.ToFloat64(simFarms); got != 3 {
		t.Fatalf("sim farms gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(productionPop.WithLabelValues("ashford")); got != 35 {
		t.Fatalf("production pop = %v, want 35", got)
	}
	if got := testutil.ToFloat64(spendsTotal.WithLabelValues("ashford", "admin", "false")); got != 1 {
		t.Fatalf("denied admin spends = %v, want 1", got)
	}
	if got := testutil.ToFloat64(spentPopTotal.WithLabelValues("ashford", "admin")); got != 5 {
		t.Fatalf("spent pop via admin = %v, want 5", got)
	}
	if got := testutil.ToFloat64(spentPopTotal.WithLabelValues("ashford", "upkeep")); got != 2 {
		t.Fatalf("spent pop via upkeep = %v, want 2", got)
	}
	if got := testutil.ToFloat64(farmEventsTotal.WithLabelValues("ashford", "true")); got != 1 {
		t.Fatalf("farm events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(weeksClosedTotal); got != 1 {
		t.Fatalf("weeks closed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(weekRemainingPop.WithLabelValues("ashford")); got != 28 {
		t.Fatalf("week remaining pop = %v, want 28", got)
	}

	RecordQueue("index_sqlite", 12, 4096, 3)
	if got := testutil.ToFloat64(queueDepth.WithLabelValues("index_sqlite")); got != 12 {
		t.Fatalf("queue depth = %v, want 12", got)
	}
	if got := testutil.ToFloat64(queueDrops.WithLabelValues("index_sqlite")); got != 3 {
		t.Fatalf("queue drops = %v, want 3", got)
	}

	if Handler() == nil {
		t.Fatal("expected a metrics handler")
	}
}

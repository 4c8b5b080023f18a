package worldtest

import (
	"testing"

	"steading.world/internal/sim/catalogs"
	world "steading.world/internal/sim/world"
)

// Harness drives a world through its exported API only: intake goes in via
// StepOnce the way the server loop feeds it, days advance via StepDay, and
// the emitted day and week records are collected for assertions. Tests
// never reach into world internals.
type Harness struct {
	T    *testing.T
	Cats *catalogs.Catalogs
	W    *world.World

	Days  []world.DayRecord
	Weeks []world.WeekRecord

	weekCh chan world.WeekRecord
}

func NewHarness(t *testing.T, cfg world.Config, cats *catalogs.Catalogs) *Harness {
	t.Helper()

	w, err := world.New(cfg, cats)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}

	h := &Harness{
		T:      t,
		Cats:   cats,
		W:      w,
		weekCh: make(chan world.WeekRecord, 16),
	}
	w.SetDayLogger(h)
	w.SetWeekSink(h.weekCh)
	return h
}

func (h *Harness) WriteDay(rec world.DayRecord) error {
	h.Days = append(h.Days, rec)
	return nil
}

func (h *Harness) AdvanceDay() world.DayRecord {
	h.T.Helper()
	rec := h.W.StepDay()
	h.drainWeeks()
	return rec
}

func (h *Harness) AdvanceDays(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.AdvanceDay()
	}
}

// Spend routes a spend through the tick intake path, as the admin surface
// would. It costs one tick.
func (h *Harness) Spend(steward string, amount int) world.SpendResult {
	h.T.Helper()
	resp := make(chan world.SpendResult, 1)
	_, _ = h.W.StepOnce([]world.SpendRequest{{
		Steward: steward,
		Amount:  amount,
		Source:  "admin",
		Resp:    resp,
	}}, nil)
	return <-resp
}

// UpsertFarm routes a farm registration through the tick intake path. It
// costs one tick.
func (h *Harness) UpsertFarm(spec world.FarmSpec) world.FarmResult {
	h.T.Helper()
	resp := make(chan world.FarmResult, 1)
	_, _ = h.W.StepOnce(nil, []world.FarmUpsertRequest{{Farm: spec, Resp: resp}})
	return <-resp
}

func (h *Harness) Available(steward string) int {
	h.T.Helper()
	for _, st := range h.W.Status().Stewards {
		if st.ID == steward {
			return st.Available
		}
	}
	h.T.Fatalf("steward %q not in status", steward)
	return 0
}

func (h *Harness) drainWeeks() {
	for {
		select {
		case rec := <-h.weekCh:
			h.Weeks = append(h.Weeks, rec)
			continue
		default:
		}
		break
	}
}

package world

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"steading.world/internal/sim/calendar"
	"steading.world/internal/sim/catalogs"
	"steading.world/internal/sim/farm"
	"steading.world/internal/sim/ledger"
	"steading.world/internal/sim/production"
	"steading.world/internal/watchproto"
)

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      Config
	catalogs *catalogs.Catalogs

	tick atomic.Uint64

	clock *calendar.Clock
	farms *farm.Registry

	stewards   map[string]*stewardState
	stewardIDs []string // sorted; fixes upkeep, digest, and recompute order

	spends      chan SpendRequest
	farmUpserts chan FarmUpsertRequest
	stop        chan struct{}

	// Accumulators for the day record in progress.
	curProductions []RecordedProduction
	curSpends      []RecordedSpend
	curFarms       []RecordedFarm

	// Optional day logger (may be nil). Implemented in internal/persistence/*.
	dayLogger DayLogger

	// Optional week sink (may be nil). Week closes are rare and feed the
	// weekly archive, so sends block instead of dropping.
	weekSink chan<- WeekRecord

	stats *WorldStats

	lastStatus atomic.Value // Status
}

type stewardState struct {
	ID     string
	Upkeep int
	Pop    *ledger.Ledger
	Svc    *production.Service

	spentThisWeek int
}

func New(cfg Config, cats *catalogs.Catalogs) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	if len(cats.Scenario.Stewards) == 0 {
		return nil, fmt.Errorf("world: scenario has no stewards")
	}
	if cfg.StatsWindowDays <= 0 {
		cfg.StatsWindowDays = 30
	}

	w := &World{
		cfg:         cfg,
		catalogs:    cats,
		clock:       calendar.NewClock(),
		farms:       farm.NewRegistry(),
		stewards:    map[string]*stewardState{},
		spends:      make(chan SpendRequest, 256),
		farmUpserts: make(chan FarmUpsertRequest, 64),
		stop:        make(chan struct{}),
		stats:       NewWorldStats(cfg.StatsWindowDays),
	}

	for _, def := range cats.Scenario.Stewards {
		w.stewards[def.ID] = &stewardState{
			ID:     def.ID,
			Upkeep: def.DailyUpkeep,
			Pop:    ledger.New(),
		}
		w.stewardIDs = append(w.stewardIDs, def.ID)
	}
	sort.Strings(w.stewardIDs)

	// Bind production in steward id order so recompute delivery is stable.
	for _, id := range w.stewardIDs {
		st := w.stewards[id]
		st.Svc = production.Bind(w.clock, w.farms, st.Pop, st.ID)
		st.Svc.SetApplyHook(func(ap production.Applied) {
			st.spentThisWeek = 0
			w.curProductions = append(w.curProductions, RecordedProduction{
				Steward: st.ID,
				Week:    ap.Week,
				Sum:     ap.Sum,
				Farms:   ap.Farms,
			})
			w.stats.RecordProduction(ap.Day)
		})
	}

	for _, def := range cats.Scenario.Farms {
		w.farms.Upsert(farm.Record{
			ID:      def.ID,
			Pos:     def.Pos,
			Cell:    def.Cell,
			Active:  def.Active,
			Steward: def.Steward,
			Yield:   def.ResolvedYield,
		})
	}

	w.publishStatus()
	return w, nil
}

func (w *World) SetDayLogger(l DayLogger)         { w.dayLogger = l }
func (w *World) SetWeekSink(ch chan<- WeekRecord) { w.weekSink = ch }

func (w *World) Spends() chan<- SpendRequest           { return w.spends }
func (w *World) FarmUpserts() chan<- FarmUpsertRequest { return w.farmUpserts }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Config() Config { return w.cfg }

// Catalogs returns the boot catalogs. They are never mutated after New, so
// they are safe to read from any goroutine.
func (w *World) Catalogs() *catalogs.Catalogs { return w.catalogs }

// Status returns the snapshot published at the last day boundary. Safe to
// call from any goroutine.
func (w *World) Status() Status {
	st, _ := w.lastStatus.Load().(Status)
	return st
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingSpends []SpendRequest
	var pendingFarms []FarmUpsertRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.spends:
			pendingSpends = append(pendingSpends, req)
		case req := <-w.farmUpserts:
			pendingFarms = append(pendingFarms, req)
		case <-ticker.C:
			w.step(pendingSpends, pendingFarms)
			pendingSpends = pendingSpends[:0]
			pendingFarms = pendingFarms[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

func (w *World) step(spends []SpendRequest, farms []FarmUpsertRequest) {
	nowTick := w.tick.Load()

	// Day rollover first so intake applied this tick lands in the new day.
	if w.cfg.TicksPerDay > 0 && nowTick != 0 && nowTick%uint64(w.cfg.TicksPerDay) == 0 {
		w.StepDay()
	}

	// Apply intake at the tick boundary, farm changes before spends.
	for _, req := range farms {
		res := w.ApplyFarm(req.Farm)
		if req.Resp != nil {
			req.Resp <- res
		}
	}
	for _, req := range spends {
		res := w.ApplySpend(req.Steward, req.Amount, req.Source)
		if req.Resp != nil {
			req.Resp <- res
		}
	}

	w.tick.Add(1)
}

// StepOnce advances the world by a single tick using the same ordering
// semantics as the server loop. It is primarily intended for tests.
func (w *World) StepOnce(spends []SpendRequest, farms []FarmUpsertRequest) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.step(spends, farms)
	return tick, w.stateDigest()
}

// ApplySpend deducts amount from one steward's population pool. Callers
// outside the world goroutine must go through Spends() instead.
func (w *World) ApplySpend(steward string, amount int, source string) SpendResult {
	if source == "" {
		source = "admin"
	}
	day := w.clock.Day()

	st := w.stewards[steward]
	if st == nil {
		res := SpendResult{Code: watchproto.E_UNKNOWN_STEWARD}
		w.recordSpend(day, steward, amount, source, res)
		return res
	}
	if amount < 0 {
		res := SpendResult{Available: st.Pop.Available(), Code: watchproto.E_BAD_AMOUNT}
		w.recordSpend(day, steward, amount, source, res)
		return res
	}
	if !st.Pop.TrySpend(amount) {
		res := SpendResult{Available: st.Pop.Available(), Code: watchproto.E_INSUFFICIENT}
		w.recordSpend(day, steward, amount, source, res)
		return res
	}
	st.spentThisWeek += amount
	res := SpendResult{OK: true, Available: st.Pop.Available()}
	w.recordSpend(day, steward, amount, source, res)
	return res
}

func (w *World) recordSpend(day int, steward string, amount int, source string, res SpendResult) {
	w.curSpends = append(w.curSpends, RecordedSpend{
		Steward:   steward,
		Amount:    amount,
		Source:    source,
		OK:        res.OK,
		Available: res.Available,
		Code:      res.Code,
	})
	w.stats.RecordSpend(day, res.OK)
}

// ApplyFarm registers or updates a farm. Callers outside the world
// goroutine must go through FarmUpserts() instead.
func (w *World) ApplyFarm(spec FarmSpec) FarmResult {
	day := w.clock.Day()

	deny := func(code string) FarmResult {
		res := FarmResult{Code: code}
		w.recordFarm(day, spec, 0, res)
		return res
	}
	if spec.ID == "" || spec.Steward == "" {
		return deny(watchproto.E_BAD_REQUEST)
	}
	if w.stewards[spec.Steward] == nil {
		return deny(watchproto.E_UNKNOWN_STEWARD)
	}
	yield := 0
	if spec.Yield != nil {
		yield = *spec.Yield
		if yield < 0 {
			return deny(watchproto.E_BAD_AMOUNT)
		}
	} else {
		def, ok := w.catalogs.Crops.Defs[spec.Kind]
		if !ok {
			return deny(watchproto.E_BAD_REQUEST)
		}
		yield = def.Yield
	}

	w.farms.Upsert(farm.Record{
		ID:      spec.ID,
		Pos:     spec.Pos,
		Cell:    spec.Cell,
		Active:  spec.Active,
		Steward: spec.Steward,
		Yield:   yield,
	})
	res := FarmResult{OK: true}
	w.recordFarm(day, spec, yield, res)
	return res
}

func (w *World) recordFarm(day int, spec FarmSpec, yield int, res FarmResult) {
	w.curFarms = append(w.curFarms, RecordedFarm{
		ID:      spec.ID,
		Steward: spec.Steward,
		Kind:    spec.Kind,
		Pos:     spec.Pos,
		Cell:    spec.Cell,
		Active:  spec.Active,
		Yield:   yield,
		OK:      res.OK,
		Code:    res.Code,
	})
	w.stats.RecordFarmEvent(day, res.OK)
}

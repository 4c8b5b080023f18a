package world

import "steading.world/internal/sim/calendar"

// StepDay advances the simulation by one day and returns the emitted
// record. Order per boundary: close the ending week if the week index
// changes, advance the calendar (weekly recomputes fire through the
// production services), charge daily upkeep, then emit the day record.
func (w *World) StepDay() DayRecord {
	newDay := w.clock.Day() + 1
	if newDay > 1 && calendar.WeekOf(newDay) != calendar.WeekOf(newDay-1) {
		w.closeWeek(calendar.WeekOf(newDay - 1))
	}

	w.curProductions = w.curProductions[:0]
	day := w.clock.AdvanceDay()

	for _, id := range w.stewardIDs {
		st := w.stewards[id]
		if st.Upkeep <= 0 {
			continue
		}
		w.ApplySpend(st.ID, st.Upkeep, "upkeep")
	}

	rec := DayRecord{
		Day:         day,
		Week:        w.clock.Week(),
		Farms:       w.farms.Len(),
		Productions: append([]RecordedProduction(nil), w.curProductions...),
		Spends:      append([]RecordedSpend(nil), w.curSpends...),
		FarmEvents:  append([]RecordedFarm(nil), w.curFarms...),
		Digest:      w.stateDigest(),
	}
	if w.dayLogger != nil {
		_ = w.dayLogger.WriteDay(rec)
	}

	w.curSpends = w.curSpends[:0]
	w.curFarms = w.curFarms[:0]
	w.publishStatus()
	return rec
}

func (w *World) StepDays(n int) {
	for i := 0; i < n; i++ {
		w.StepDay()
	}
}

// closeWeek captures each steward's ledger before the next week's
// recompute overwrites it. Week 0 starts on day 1; day 0 precedes the
// calendar.
func (w *World) closeWeek(week int) {
	firstDay := week * calendar.DaysPerWeek
	if week == 0 {
		firstDay = 1
	}
	rec := WeekRecord{
		Week:     week,
		FirstDay: firstDay,
		LastDay:  week*calendar.DaysPerWeek + calendar.DaysPerWeek - 1,
		Digest:   w.stateDigest(),
	}
	for _, id := range w.stewardIDs {
		st := w.stewards[id]
		rec.Stewards = append(rec.Stewards, WeekSteward{
			Steward:   id,
			Baseline:  st.Pop.Baseline(),
			Spent:     st.spentThisWeek,
			Remaining: st.Pop.Available(),
		})
	}
	if w.weekSink != nil {
		w.weekSink <- rec
	}
}

func (w *World) publishStatus() {
	day := w.clock.Day()
	st := Status{
		Steading: w.cfg.ID,
		Tick:     w.tick.Load(),
		Day:      day,
		Week:     w.clock.Week(),
		Farms:    w.farms.Len(),
		Stats:    w.stats.Summarize(day),
		Digest:   w.stateDigest(),
	}
	for _, id := range w.stewardIDs {
		s := w.stewards[id]
		week, ok := s.Svc.LastProcessedWeek()
		st.Stewards = append(st.Stewards, StewardStatus{
			ID:            id,
			Available:     s.Pop.Available(),
			Baseline:      s.Pop.Baseline(),
			SpentWeek:     s.spentThisWeek,
			ProcessedWeek: week,
			Processed:     ok,
		})
	}
	w.lastStatus.Store(st)
}

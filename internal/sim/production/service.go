package production

import (
	"steading.world/internal/sim/calendar"
	"steading.world/internal/sim/farm"
	"steading.world/internal/sim/ledger"
)

// Applied describes one weekly recompute, for observers outside the
// simulation core (journal, metrics). The core never reads it back.
type Applied struct {
	Day   int
	Week  int
	Sum   int
	Farms int
}

// Service recomputes a steward's weekly population pool. It subscribes to
// the calendar and, on the first day change it ever sees or on any day
// change whose week index differs from the last processed one, sums the
// yield of the steward's active farms and resets the ledger to that sum.
//
// The "never processed" flag is authoritative: the first observed day
// change always recomputes, regardless of week arithmetic. Afterwards only
// a changed week index triggers.
type Service struct {
	clock   *calendar.Clock
	farms   *farm.Registry
	pop     *ledger.Ledger
	steward string

	processed bool
	week      int

	subID      int
	subscribed bool

	onApply func(Applied)
}

// Bind wires the service to its collaborators and subscribes it to day
// changes. The returned service is enabled.
func Bind(clock *calendar.Clock, farms *farm.Registry, pop *ledger.Ledger, steward string) *Service {
	s := &Service{
		clock:   clock,
		farms:   farms,
		pop:     pop,
		steward: steward,
	}
	s.Enable()
	return s
}

func (s *Service) Steward() string {
	return s.steward
}

// Enable subscribes to day-changed notifications. Idempotent: an enabled
// service stays subscribed exactly once, so no day change is ever
// delivered (and no reset applied) twice.
func (s *Service) Enable() {
	if s.subscribed {
		return
	}
	s.subID = s.clock.Subscribe(s.onDayChanged)
	s.subscribed = true
}

// Disable unsubscribes. Idempotent.
func (s *Service) Disable() {
	if !s.subscribed {
		return
	}
	s.clock.Unsubscribe(s.subID)
	s.subscribed = false
}

func (s *Service) Enabled() bool {
	return s.subscribed
}

// LastProcessedWeek reports the week of the most recent recompute. ok is
// false while the service has not processed any day change yet.
func (s *Service) LastProcessedWeek() (week int, ok bool) {
	return s.week, s.processed
}

// SetApplyHook installs fn to run after every recompute. A nil fn removes
// the hook.
func (s *Service) SetApplyHook(fn func(Applied)) {
	s.onApply = fn
}

func (s *Service) onDayChanged(day int) {
	week := calendar.WeekOf(day)
	if s.processed && week == s.week {
		return
	}

	active := s.farms.ActiveBySteward(s.steward)
	sum := 0
	for _, rec := range active {
		sum += rec.Yield
	}
	s.pop.ResetTo(sum)
	s.processed = true
	s.week = week

	if s.onApply != nil {
		s.onApply(Applied{Day: day, Week: week, Sum: sum, Farms: len(active)})
	}
}

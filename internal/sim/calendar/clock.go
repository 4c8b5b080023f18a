package calendar

// DaysPerWeek is fixed by the settlement calendar; the weekly production
// cycle and all week arithmetic depend on it.
const DaysPerWeek = 7

// WeekOf maps a day index to the 7-day block it belongs to.
func WeekOf(day int) int {
	return day / DaysPerWeek
}

// DayObserver receives the new day index after every advance.
type DayObserver func(day int)

type observerEntry struct {
	id int
	fn DayObserver
}

// Clock holds the current simulated day count. Day 0 is the pre-start state;
// each AdvanceDay moves the calendar forward by exactly one day and delivers
// the new index to every observer synchronously, in subscription order,
// before returning.
type Clock struct {
	day       int
	nextObsID int
	observers []observerEntry
}

func NewClock() *Clock {
	return &Clock{}
}

// Day returns the current day index.
func (c *Clock) Day() int {
	return c.day
}

// Week returns the week index of the current day.
func (c *Clock) Week() int {
	return WeekOf(c.day)
}

// Subscribe registers fn for day-changed notifications and returns a handle
// for Unsubscribe. Delivery order is subscription order.
func (c *Clock) Subscribe(fn DayObserver) int {
	c.nextObsID++
	c.observers = append(c.observers, observerEntry{id: c.nextObsID, fn: fn})
	return c.nextObsID
}

// Unsubscribe removes the observer registered under id. Unknown ids are a
// no-op, so callers can disable unconditionally.
func (c *Clock) Unsubscribe(id int) {
	for i, e := range c.observers {
		if e.id == id {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			return
		}
	}
}

// AdvanceDay increments the day index and notifies observers with the new
// value. Delivery iterates a snapshot of the observer list, so an observer
// may unsubscribe itself (or others) from within its callback without
// corrupting the walk.
func (c *Clock) AdvanceDay() int {
	c.day++
	day := c.day
	snapshot := make([]observerEntry, len(c.observers))
	copy(snapshot, c.observers)
	for _, e := range snapshot {
		if !c.subscribed(e.id) {
			continue
		}
		e.fn(day)
	}
	return day
}

func (c *Clock) subscribed(id int) bool {
	for _, e := range c.observers {
		if e.id == id {
			return true
		}
	}
	return false
}

package calendar

import "testing"

func TestAdvanceDayIncrementsAndNotifiesInOrder(t *testing.T) {
	c := NewClock()
	if got := c.Day(); got != 0 {
		t.Fatalf("initial day: got %d want 0", got)
	}

	var order []int
	c.Subscribe(func(day int) { order = append(order, day*10+1) })
	c.Subscribe(func(day int) { order = append(order, day*10+2) })

	if got := c.AdvanceDay(); got != 1 {
		t.Fatalf("advance: got %d want 1", got)
	}
	if got := c.Day(); got != 1 {
		t.Fatalf("day after advance: got %d want 1", got)
	}
	if len(order) != 2 || order[0] != 11 || order[1] != 12 {
		t.Fatalf("delivery order: got %v want [11 12]", order)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c := NewClock()
	calls := 0
	id := c.Subscribe(func(int) { calls++ })
	c.AdvanceDay()
	c.Unsubscribe(id)
	c.AdvanceDay()
	if calls != 1 {
		t.Fatalf("calls after unsubscribe: got %d want 1", calls)
	}
	// Unknown ids are a no-op.
	c.Unsubscribe(999)
}

func TestUnsubscribeDuringDeliveryIsSafe(t *testing.T) {
	c := NewClock()
	var fired []string
	var selfID int
	selfID = c.Subscribe(func(int) {
		fired = append(fired, "self")
		c.Unsubscribe(selfID)
	})
	var otherID int
	otherID = c.Subscribe(func(int) {
		fired = append(fired, "other")
	})

	c.AdvanceDay()
	if len(fired) != 2 || fired[0] != "self" || fired[1] != "other" {
		t.Fatalf("first advance: got %v want [self other]", fired)
	}

	fired = fired[:0]
	c.AdvanceDay()
	if len(fired) != 1 || fired[0] != "other" {
		t.Fatalf("second advance: got %v want [other]", fired)
	}
	c.Unsubscribe(otherID)
}

func TestWeekOfBoundaries(t *testing.T) {
	cases := []struct {
		day, week int
	}{
		{0, 0}, {1, 0}, {6, 0}, {7, 1}, {8, 1}, {13, 1}, {14, 2}, {20, 2}, {21, 3},
	}
	for _, tc := range cases {
		if got := WeekOf(tc.day); got != tc.week {
			t.Fatalf("WeekOf(%d): got %d want %d", tc.day, got, tc.week)
		}
	}
}

func TestClockWeekTracksDay(t *testing.T) {
	c := NewClock()
	for i := 0; i < 15; i++ {
		c.AdvanceDay()
	}
	if got := c.Day(); got != 15 {
		t.Fatalf("day: got %d want 15", got)
	}
	if got := c.Week(); got != 2 {
		t.Fatalf("week: got %d want 2", got)
	}
}

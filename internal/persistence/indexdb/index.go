package indexdb

import (
	"steading.world/internal/sim/world"
)

// Stats reports queue pressure and loss counters for an index backend.
// Dropped records are gone from the index only; the day journal remains
// the source of truth.
type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropDayTotal   uint64 `json:"drop_day_total"`
	DropWeekTotal  uint64 `json:"drop_week_total"`
	FlushFailTotal uint64 `json:"flush_fail_total"`
}

type reqKind int

const (
	reqDay reqKind = iota + 1
	reqWeek
)

type req struct {
	kind reqKind

	day  world.DayRecord
	week world.WeekRecord
}

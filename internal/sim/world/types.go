package world

type Config struct {
	ID          string
	TickRateHz  int
	TicksPerDay int

	// StatsWindowDays bounds the rolling ops counters. Zero means 30.
	StatsWindowDays int
}

// SpendRequest asks the world to deduct population from one steward's pool.
// The world applies it at a tick boundary and answers on Resp if non-nil.
type SpendRequest struct {
	Steward string
	Amount  int
	Source  string
	Resp    chan SpendResult
}

type SpendResult struct {
	OK        bool   `json:"ok"`
	Available int    `json:"available"`
	Code      string `json:"code,omitempty"`
}

// FarmSpec describes a farm to register or update. Yield, when set,
// overrides the crop kind's base yield; otherwise Kind must name a known
// crop.
type FarmSpec struct {
	ID      string     `json:"id"`
	Steward string     `json:"steward"`
	Kind    string     `json:"kind,omitempty"`
	Pos     [2]float64 `json:"pos"`
	Cell    [2]int     `json:"cell"`
	Active  bool       `json:"active"`
	Yield   *int       `json:"yield,omitempty"`
}

type FarmUpsertRequest struct {
	Farm FarmSpec
	Resp chan FarmResult
}

type FarmResult struct {
	OK   bool   `json:"ok"`
	Code string `json:"code,omitempty"`
}

// DayRecord is the journal entry for one simulated day. Replaying the
// successful farm events and admin spends of each record in order, then
// advancing the day, reproduces Digest from the prior record's state.
type DayRecord struct {
	Day         int                  `json:"day"`
	Week        int                  `json:"week"`
	Farms       int                  `json:"farms"`
	Productions []RecordedProduction `json:"productions,omitempty"`
	Spends      []RecordedSpend      `json:"spends,omitempty"`
	FarmEvents  []RecordedFarm       `json:"farm_events,omitempty"`
	Digest      string               `json:"digest"`
}

type RecordedProduction struct {
	Steward string `json:"steward"`
	Week    int    `json:"week"`
	Sum     int    `json:"sum"`
	Farms   int    `json:"farms"`
}

type RecordedSpend struct {
	Steward   string `json:"steward"`
	Amount    int    `json:"amount"`
	Source    string `json:"source"`
	OK        bool   `json:"ok"`
	Available int    `json:"available"`
	Code      string `json:"code,omitempty"`
}

type RecordedFarm struct {
	ID      string     `json:"id"`
	Steward string     `json:"steward"`
	Kind    string     `json:"kind,omitempty"`
	Pos     [2]float64 `json:"pos"`
	Cell    [2]int     `json:"cell"`
	Active  bool       `json:"active"`
	Yield   int        `json:"yield"`
	OK      bool       `json:"ok"`
	Code    string     `json:"code,omitempty"`
}

// WeekRecord captures each steward's ledger at the end of a week, before
// the next week's recompute overwrites it.
type WeekRecord struct {
	Week     int           `json:"week"`
	FirstDay int           `json:"first_day"`
	LastDay  int           `json:"last_day"`
	Stewards []WeekSteward `json:"stewards"`
	Digest   string        `json:"digest"`
}

type WeekSteward struct {
	Steward   string `json:"steward"`
	Baseline  int    `json:"baseline"`
	Spent     int    `json:"spent"`
	Remaining int    `json:"remaining"`
}

type DayLogger interface {
	WriteDay(rec DayRecord) error
}

// Status is a read-only snapshot for the ops surfaces. It is published
// atomically at each day boundary and safe to read from any goroutine.
type Status struct {
	Steading string          `json:"steading"`
	Tick     uint64          `json:"tick"`
	Day      int             `json:"day"`
	Week     int             `json:"week"`
	Farms    int             `json:"farms"`
	Stewards []StewardStatus `json:"stewards"`
	Stats    StatsBucket     `json:"stats"`
	Digest   string          `json:"digest"`
}

type StewardStatus struct {
	ID            string `json:"id"`
	Available     int    `json:"available"`
	Baseline      int    `json:"baseline"`
	SpentWeek     int    `json:"spent_week"`
	ProcessedWeek int    `json:"processed_week"`
	Processed     bool   `json:"processed"`
}

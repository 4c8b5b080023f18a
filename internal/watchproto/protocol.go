package watchproto

// Version is the watch stream protocol version. The watch WS is an
// operator-only tap; it carries simulation telemetry out and never carries
// simulation mutations in.
const Version = "0.1"

const (
	TypeSubscribe  = "SUBSCRIBE"
	TypeWelcome    = "WELCOME"
	TypeDay        = "DAY"
	TypeProduction = "PRODUCTION"
	TypeSpend      = "SPEND"
	TypeFarm       = "FARM"
	TypeWeek       = "WEEK"
	TypeError      = "ERROR"
)

// Client -> Server. First message on the watch connection; may be re-sent
// to change the steward filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Steward limits PRODUCTION/SPEND frames to one steward. Empty means all.
	Steward string `json:"steward,omitempty"`
}

// Server -> Client. Reply to the first SUBSCRIBE.
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	Steading    string   `json:"steading"`
	Day         int      `json:"day"`
	Week        int      `json:"week"`
	TickRateHz  int      `json:"tick_rate_hz"`
	TicksPerDay int      `json:"ticks_per_day"`
	Stewards    []string `json:"stewards"`

	CropsDigest    string `json:"crops_digest"`
	ScenarioDigest string `json:"scenario_digest"`
}

// Server -> Client. One per simulated day.
type DayMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	Day    int    `json:"day"`
	Week   int    `json:"week"`
	Farms  int    `json:"farms"`
	Digest string `json:"digest"`
}

// Server -> Client. One per weekly recompute applied to a steward's ledger.
type ProductionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	Day     int    `json:"day"`
	Week    int    `json:"week"`
	Steward string `json:"steward"`
	Sum     int    `json:"sum"`
	Farms   int    `json:"farms"`
}

// Server -> Client. One per spend attempt, successful or not.
type SpendMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	Day       int    `json:"day"`
	Steward   string `json:"steward"`
	Amount    int    `json:"amount"`
	OK        bool   `json:"ok"`
	Available int    `json:"available"`
	Source    string `json:"source,omitempty"`
}

// Server -> Client. One per farm registration or update.
type FarmMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	Day     int    `json:"day"`
	FarmID  string `json:"farm_id"`
	Steward string `json:"steward"`
	Kind    string `json:"kind,omitempty"`
	Active  bool   `json:"active"`
	Yield   int    `json:"yield"`
	Reason  string `json:"reason,omitempty"`
}

// Server -> Client. One per closed week.
type WeekMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	Week     int                `json:"week"`
	FirstDay int                `json:"first_day"`
	LastDay  int                `json:"last_day"`
	Stewards []WeekStewardState `json:"stewards"`
	Digest   string             `json:"digest"`
}

type WeekStewardState struct {
	Steward   string `json:"steward"`
	Baseline  int    `json:"baseline"`
	Spent     int    `json:"spent"`
	Remaining int    `json:"remaining"`
}

// Server -> Client.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

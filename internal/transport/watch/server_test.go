package watch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"steading.world/internal/sim/catalogs"
	"steading.world/internal/sim/world"
	"steading.world/internal/watchproto"
)

func testWorld(t *testing.T) *world.World {
	t.Helper()
	cats := &catalogs.Catalogs{
		Crops: catalogs.CropCatalog{
			Palette: []string{"BARLEY", "WHEAT"},
			Defs: map[string]catalogs.CropDef{
				"WHEAT":  {ID: "WHEAT", Name: "Wheat", Yield: 20},
				"BARLEY": {ID: "BARLEY", Name: "Barley", Yield: 15},
			},
			Digest: "crops-test",
		},
		Scenario: catalogs.Scenario{
			Stewards: []catalogs.StewardDef{{ID: "ashford"}, {ID: "briar"}},
			Digest:   "scenario-test",
		},
	}
	w, err := world.New(world.Config{ID: "greenhollow", TickRateHz: 5, TicksPerDay: 3}, cats)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

func dialWatch(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if err := json.Unmarshal(msg, v); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
}

func subscribe(t *testing.T, conn *websocket.Conn, steward string) watchproto.WelcomeMsg {
	t.Helper()
	writeFrame(t, conn, watchproto.SubscribeMsg{
		Type:            watchproto.TypeSubscribe,
		ProtocolVersion: watchproto.Version,
		Steward:         steward,
	})
	var welcome watchproto.WelcomeMsg
	readFrame(t, conn, &welcome)
	if welcome.Type != watchproto.TypeWelcome {
		t.Fatalf("handshake reply type = %q, want WELCOME", welcome.Type)
	}
	return welcome
}

func TestWatchStreamsDayFrames(t *testing.T) {
	s := NewServer(testWorld(t), 64, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	all := dialWatch(t, srv.URL)
	welcome := subscribe(t, all, "")
	if welcome.Steading != "greenhollow" || welcome.Day != 0 || welcome.Week != 0 {
		t.Fatalf("welcome = %+v", welcome)
	}
	if welcome.CropsDigest != "crops-test" || welcome.ScenarioDigest != "scenario-test" {
		t.Fatalf("welcome digests = %q/%q", welcome.CropsDigest, welcome.ScenarioDigest)
	}
	if len(welcome.Stewards) != 2 {
		t.Fatalf("welcome stewards = %v, want 2", welcome.Stewards)
	}

	briar := dialWatch(t, srv.URL)
	subscribe(t, briar, "briar")

	rec := world.DayRecord{
		Day: 7, Week: 1, Farms: 2,
		Productions: []world.RecordedProduction{
			{Steward: "ashford", Week: 1, Sum: 35, Farms: 2},
			{Steward: "briar", Week: 1, Sum: 18, Farms: 1},
		},
		Spends: []world.RecordedSpend{
			{Steward: "ashford", Amount: 5, Source: "admin", OK: true, Available: 30},
		},
		FarmEvents: []world.RecordedFarm{
			{ID: "F9", Steward: "briar", Kind: "WHEAT", Active: true, Yield: 20, OK: true},
		},
		Digest: "d7",
	}
	if err := s.WriteDay(rec); err != nil {
		t.Fatalf("WriteDay: %v", err)
	}

	type base struct {
		Type    string `json:"type"`
		Steward string `json:"steward"`
	}

	wantAll := []string{
		watchproto.TypeDay,
		watchproto.TypeProduction,
		watchproto.TypeProduction,
		watchproto.TypeSpend,
		watchproto.TypeFarm,
	}
	for i, want := range wantAll {
		var fr base
		readFrame(t, all, &fr)
		if fr.Type != want {
			t.Fatalf("unfiltered frame %d type = %q, want %q", i, fr.Type, want)
		}
	}

	// The briar filter drops ashford's production and spend; DAY and FARM
	// frames are always delivered.
	wantBriar := []base{
		{Type: watchproto.TypeDay},
		{Type: watchproto.TypeProduction, Steward: "briar"},
		{Type: watchproto.TypeFarm, Steward: "briar"},
	}
	for i, want := range wantBriar {
		var fr base
		readFrame(t, briar, &fr)
		if fr.Type != want.Type || fr.Steward != want.Steward {
			t.Fatalf("filtered frame %d = %+v, want %+v", i, fr, want)
		}
	}

	st := s.Stats()
	if st.Subscribers != 2 {
		t.Fatalf("subscribers = %d, want 2", st.Subscribers)
	}
}

func TestWatchStreamsWeekFrames(t *testing.T) {
	s := NewServer(testWorld(t), 8, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialWatch(t, srv.URL)
	subscribe(t, conn, "")

	s.RecordWeek(world.WeekRecord{
		Week:     1,
		FirstDay: 7,
		LastDay:  13,
		Stewards: []world.WeekSteward{
			{Steward: "ashford", Baseline: 35, Spent: 7, Remaining: 28},
		},
		Digest: "w1",
	})

	var wk watchproto.WeekMsg
	readFrame(t, conn, &wk)
	if wk.Type != watchproto.TypeWeek || wk.Week != 1 || wk.FirstDay != 7 || wk.LastDay != 13 {
		t.Fatalf("week frame = %+v", wk)
	}
	if len(wk.Stewards) != 1 || wk.Stewards[0].Remaining != 28 {
		t.Fatalf("week stewards = %+v", wk.Stewards)
	}
}

func TestWatchRejectsWrongProtocolVersion(t *testing.T) {
	s := NewServer(testWorld(t), 8, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialWatch(t, srv.URL)
	writeFrame(t, conn, watchproto.SubscribeMsg{
		Type:            watchproto.TypeSubscribe,
		ProtocolVersion: "9.9",
	})

	var errMsg watchproto.ErrorMsg
	readFrame(t, conn, &errMsg)
	if errMsg.Type != watchproto.TypeError || errMsg.Code != watchproto.E_PROTO_BAD_REQUEST {
		t.Fatalf("error frame = %+v", errMsg)
	}
	if s.Stats().Subscribers != 0 {
		t.Fatalf("refused connection must not subscribe")
	}
}

func TestWatchForbidsNonLoopback(t *testing.T) {
	s := NewServer(testWorld(t), 8, nil)

	req := httptest.NewRequest(http.MethodGet, "/watch/v1", nil)
	req.RemoteAddr = "203.0.113.9:4444"
	rec := httptest.NewRecorder()
	s.Handler()(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

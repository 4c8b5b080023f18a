package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"

	"steading.world/internal/watchproto"
)

func main() {
	var (
		url     = flag.String("url", "ws://127.0.0.1:8090/watch/v1", "watch ws url")
		steward = flag.String("steward", "", "limit PRODUCTION/SPEND frames to one steward")
		raw     = flag.Bool("json", false, "print raw frames instead of summaries")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[steadingwatch] ", log.LstdFlags|log.Lmicroseconds)

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := watchproto.SubscribeMsg{
		Type:            watchproto.TypeSubscribe,
		ProtocolVersion: watchproto.Version,
		Steward:         strings.TrimSpace(*steward),
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if *raw {
			os.Stdout.Write(append(msg, '\n'))
			continue
		}
		printFrame(logger, msg)
	}
}

func printFrame(logger *log.Logger, msg []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &base); err != nil {
		return
	}
	switch base.Type {
	case watchproto.TypeWelcome:
		var w watchproto.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		logger.Printf("WELCOME steading=%s day=%d week=%d stewards=%s", w.Steading, w.Day, w.Week, strings.Join(w.Stewards, ","))

	case watchproto.TypeDay:
		var d watchproto.DayMsg
		if err := json.Unmarshal(msg, &d); err != nil {
			return
		}
		logger.Printf("DAY day=%d week=%d farms=%d digest=%.12s", d.Day, d.Week, d.Farms, d.Digest)

	case watchproto.TypeProduction:
		var p watchproto.ProductionMsg
		if err := json.Unmarshal(msg, &p); err != nil {
			return
		}
		logger.Printf("PRODUCTION week=%d steward=%s sum=%d farms=%d", p.Week, p.Steward, p.Sum, p.Farms)

	case watchproto.TypeSpend:
		var s watchproto.SpendMsg
		if err := json.Unmarshal(msg, &s); err != nil {
			return
		}
		verdict := "ok"
		if !s.OK {
			verdict = "denied"
		}
		logger.Printf("SPEND day=%d steward=%s amount=%d %s available=%d source=%s", s.Day, s.Steward, s.Amount, verdict, s.Available, s.Source)

	case watchproto.TypeFarm:
		var f watchproto.FarmMsg
		if err := json.Unmarshal(msg, &f); err != nil {
			return
		}
		logger.Printf("FARM day=%d id=%s steward=%s active=%t yield=%d", f.Day, f.FarmID, f.Steward, f.Active, f.Yield)

	case watchproto.TypeWeek:
		var w watchproto.WeekMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		for _, st := range w.Stewards {
			logger.Printf("WEEK week=%d days=%d..%d steward=%s baseline=%d spent=%d remaining=%d",
				w.Week, w.FirstDay, w.LastDay, st.Steward, st.Baseline, st.Spent, st.Remaining)
		}

	case watchproto.TypeError:
		var e watchproto.ErrorMsg
		if err := json.Unmarshal(msg, &e); err != nil {
			return
		}
		logger.Printf("ERROR code=%s message=%s", e.Code, e.Message)
	}
}

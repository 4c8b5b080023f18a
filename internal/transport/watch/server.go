package watch

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"steading.world/internal/sim/world"
	"steading.world/internal/watchproto"
)

// Server is the operator watch tap. Day and week records fan out to
// websocket subscribers as read-only frames; nothing received on a watch
// connection ever reaches the simulation.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader  websocket.Upgrader
	nextID    atomic.Uint64
	outBuffer int

	mu   sync.Mutex
	subs map[uint64]*subscriber

	dropped atomic.Uint64
}

type subscriber struct {
	id  uint64
	out chan []byte

	mu      sync.Mutex
	steward string
}

// Stats reports subscriber and queue state for the ops surfaces.
type Stats struct {
	Subscribers   int    `json:"subscribers"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTotal     uint64 `json:"drop_total"`
}

func NewServer(w *world.World, outBuffer int, logger *log.Logger) *Server {
	if outBuffer <= 0 {
		outBuffer = 64
	}
	return &Server{
		world:     w,
		log:       logger,
		outBuffer: outBuffer,
		subs:      map[uint64]*subscriber{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sub := s.handshake(conn)
		if sub == nil {
			return
		}
		defer s.unsubscribe(sub.id)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-sub.out:
					if !ok {
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: watchers are read-mostly, so no deadline past the
		// handshake. Further SUBSCRIBE frames retarget the steward filter.
		_ = conn.SetReadDeadline(time.Time{})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var req watchproto.SubscribeMsg
			if err := json.Unmarshal(msg, &req); err != nil {
				continue
			}
			if req.Type != watchproto.TypeSubscribe || req.ProtocolVersion != watchproto.Version {
				continue
			}
			sub.setSteward(strings.TrimSpace(req.Steward))
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// handshake reads the first SUBSCRIBE, answers WELCOME, and registers the
// subscriber. A nil return means the connection is already dead or refused.
func (s *Server) handshake(conn *websocket.Conn) *subscriber {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	var req watchproto.SubscribeMsg
	if err := json.Unmarshal(msg, &req); err != nil || req.Type != watchproto.TypeSubscribe {
		s.refuse(conn, watchproto.E_PROTO_BAD_REQUEST, "expected SUBSCRIBE")
		return nil
	}
	if req.ProtocolVersion != watchproto.Version {
		s.refuse(conn, watchproto.E_PROTO_BAD_REQUEST, "bad protocol_version")
		return nil
	}

	st := s.world.Status()
	cfg := s.world.Config()
	cats := s.world.Catalogs()
	stewards := make([]string, 0, len(st.Stewards))
	for _, ss := range st.Stewards {
		stewards = append(stewards, ss.ID)
	}

	welcome := watchproto.WelcomeMsg{
		Type:            watchproto.TypeWelcome,
		ProtocolVersion: watchproto.Version,
		Steading:        st.Steading,
		Day:             st.Day,
		Week:            st.Week,
		TickRateHz:      cfg.TickRateHz,
		TicksPerDay:     cfg.TicksPerDay,
		Stewards:        stewards,
		CropsDigest:     cats.Crops.Digest,
		ScenarioDigest:  cats.Scenario.Digest,
	}

	sub := &subscriber{
		id:      s.nextID.Add(1),
		out:     make(chan []byte, s.outBuffer),
		steward: strings.TrimSpace(req.Steward),
	}

	// Register before WELCOME goes out: once the client has read it, every
	// later record is guaranteed to reach this subscriber.
	s.mu.Lock()
	s.subs[sub.id] = sub
	s.mu.Unlock()
	if err := writeJSON(conn, welcome); err != nil {
		s.unsubscribe(sub.id)
		return nil
	}
	return sub
}

func (s *Server) refuse(conn *websocket.Conn, code, msg string) {
	b, err := json.Marshal(watchproto.ErrorMsg{
		Type:            watchproto.TypeError,
		ProtocolVersion: watchproto.Version,
		Code:            code,
		Message:         msg,
	})
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
}

func (s *Server) unsubscribe(id uint64) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
	// The out channel stays open for the GC; closing it would race an
	// in-flight broadcast.
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Subscribers: len(s.subs), DropTotal: s.dropped.Load()}
	for _, sub := range s.subs {
		st.QueueDepth += len(sub.out)
		st.QueueCapacity += cap(sub.out)
	}
	return st
}

// WriteDay implements world.DayLogger. Each record becomes a DAY frame plus
// per-entry PRODUCTION, SPEND, and FARM frames.
func (s *Server) WriteDay(rec world.DayRecord) error {
	frames := make([]taggedFrame, 0, 1+len(rec.Productions)+len(rec.Spends)+len(rec.FarmEvents))
	frames = appendFrame(frames, "", watchproto.DayMsg{
		Type:            watchproto.TypeDay,
		ProtocolVersion: watchproto.Version,
		Day:             rec.Day,
		Week:            rec.Week,
		Farms:           rec.Farms,
		Digest:          rec.Digest,
	})
	for _, p := range rec.Productions {
		frames = appendFrame(frames, p.Steward, watchproto.ProductionMsg{
			Type:            watchproto.TypeProduction,
			ProtocolVersion: watchproto.Version,
			Day:             rec.Day,
			Week:            p.Week,
			Steward:         p.Steward,
			Sum:             p.Sum,
			Farms:           p.Farms,
		})
	}
	for _, sp := range rec.Spends {
		frames = appendFrame(frames, sp.Steward, watchproto.SpendMsg{
			Type:            watchproto.TypeSpend,
			ProtocolVersion: watchproto.Version,
			Day:             rec.Day,
			Steward:         sp.Steward,
			Amount:          sp.Amount,
			OK:              sp.OK,
			Available:       sp.Available,
			Source:          sp.Source,
		})
	}
	for _, fe := range rec.FarmEvents {
		frames = appendFrame(frames, "", watchproto.FarmMsg{
			Type:            watchproto.TypeFarm,
			ProtocolVersion: watchproto.Version,
			Day:             rec.Day,
			FarmID:          fe.ID,
			Steward:         fe.Steward,
			Kind:            fe.Kind,
			Active:          fe.Active,
			Yield:           fe.Yield,
			Reason:          fe.Code,
		})
	}
	s.broadcast(frames)
	return nil
}

func (s *Server) RecordWeek(rec world.WeekRecord) {
	stewards := make([]watchproto.WeekStewardState, 0, len(rec.Stewards))
	for _, st := range rec.Stewards {
		stewards = append(stewards, watchproto.WeekStewardState{
			Steward:   st.Steward,
			Baseline:  st.Baseline,
			Spent:     st.Spent,
			Remaining: st.Remaining,
		})
	}
	s.broadcast(appendFrame(nil, "", watchproto.WeekMsg{
		Type:            watchproto.TypeWeek,
		ProtocolVersion: watchproto.Version,
		Week:            rec.Week,
		FirstDay:        rec.FirstDay,
		LastDay:         rec.LastDay,
		Stewards:        stewards,
		Digest:          rec.Digest,
	}))
}

// taggedFrame carries a marshaled frame plus the steward it concerns.
// An empty steward means the frame is delivered regardless of filter.
type taggedFrame struct {
	steward string
	data    []byte
}

func appendFrame(frames []taggedFrame, steward string, v any) []taggedFrame {
	b, err := json.Marshal(v)
	if err != nil {
		return frames
	}
	return append(frames, taggedFrame{steward: steward, data: b})
}

func (s *Server) broadcast(frames []taggedFrame) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		filter := sub.stewardFilter()
		for _, fr := range frames {
			if filter != "" && fr.steward != "" && fr.steward != filter {
				continue
			}
			sub.send(fr.data, &s.dropped)
		}
	}
}

// send never blocks the world loop. On a full buffer the oldest frame is
// evicted so the tap stays current.
func (sub *subscriber) send(b []byte, droppedTotal *atomic.Uint64) {
	select {
	case sub.out <- b:
		return
	default:
	}
	select {
	case <-sub.out:
		droppedTotal.Add(1)
	default:
	}
	select {
	case sub.out <- b:
	default:
		droppedTotal.Add(1)
	}
}

func (sub *subscriber) setSteward(id string) {
	sub.mu.Lock()
	sub.steward = id
	sub.mu.Unlock()
}

func (sub *subscriber) stewardFilter() string {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.steward
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

package main

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"steading.world/internal/persistence/indexdb"
	"steading.world/internal/persistence/mirror"
	"steading.world/internal/sim/world"
	"steading.world/internal/transport/watch"
	"steading.world/internal/watchproto"
)

// intakeTimeout bounds how long an admin request waits on the world loop.
const intakeTimeout = 2 * time.Second

type adminAPI struct {
	world    *world.World
	steading string
	token    string

	crops    string
	scenario string

	index  runtimeIndex
	mirror *mirrorRuntime
	watch  *watch.Server

	logger *log.Logger
}

type queuesPayload struct {
	Index  *indexdb.Stats `json:"index,omitempty"`
	Mirror *mirror.Stats  `json:"mirror,omitempty"`
	Watch  *watch.Stats   `json:"watch,omitempty"`
}

func (a *adminAPI) queues() queuesPayload {
	var q queuesPayload
	if a.index != nil {
		s := a.index.Stats()
		q.Index = &s
	}
	if s, ok := a.mirror.Stats(); ok {
		q.Mirror = &s
	}
	if a.watch != nil {
		s := a.watch.Stats()
		q.Watch = &s
	}
	return q
}

func (a *adminAPI) healthz(rw http.ResponseWriter, r *http.Request) {
	st := a.world.Status()
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(struct {
		OK             bool          `json:"ok"`
		Steading       string        `json:"steading"`
		Tick           uint64        `json:"tick"`
		Day            int           `json:"day"`
		Week           int           `json:"week"`
		CropsDigest    string        `json:"crops_digest"`
		ScenarioDigest string        `json:"scenario_digest"`
		Queues         queuesPayload `json:"queues"`
	}{true, a.steading, a.world.CurrentTick(), st.Day, st.Week, a.crops, a.scenario, a.queues()})
}

func (a *adminAPI) status(rw http.ResponseWriter, r *http.Request) {
	if !a.guard(rw, r) {
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(struct {
		world.Status
		Queues queuesPayload `json:"queues"`
	}{a.world.Status(), a.queues()})
}

func (a *adminAPI) spend(rw http.ResponseWriter, r *http.Request) {
	if !a.guard(rw, r) {
		return
	}
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Steward string `json:"steward"`
		Amount  int    `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(rw, http.StatusBadRequest, watchproto.E_BAD_REQUEST, "bad json")
		return
	}

	// HTTP spends always carry the admin source; the verifier replays the
	// journal under the same label.
	resp := make(chan world.SpendResult, 1)
	sreq := world.SpendRequest{Steward: req.Steward, Amount: req.Amount, Source: "admin", Resp: resp}
	select {
	case a.world.Spends() <- sreq:
	case <-time.After(intakeTimeout):
		a.writeError(rw, http.StatusServiceUnavailable, watchproto.E_INTERNAL, "intake saturated")
		return
	}
	select {
	case res := <-resp:
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(res)
	case <-time.After(intakeTimeout):
		a.writeError(rw, http.StatusServiceUnavailable, watchproto.E_INTERNAL, "world busy")
	case <-r.Context().Done():
	}
}

func (a *adminAPI) farm(rw http.ResponseWriter, r *http.Request) {
	if !a.guard(rw, r) {
		return
	}
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var spec world.FarmSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		a.writeError(rw, http.StatusBadRequest, watchproto.E_BAD_REQUEST, "bad json")
		return
	}

	resp := make(chan world.FarmResult, 1)
	select {
	case a.world.FarmUpserts() <- world.FarmUpsertRequest{Farm: spec, Resp: resp}:
	case <-time.After(intakeTimeout):
		a.writeError(rw, http.StatusServiceUnavailable, watchproto.E_INTERNAL, "intake saturated")
		return
	}
	select {
	case res := <-resp:
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(res)
	case <-time.After(intakeTimeout):
		a.writeError(rw, http.StatusServiceUnavailable, watchproto.E_INTERNAL, "world busy")
	case <-r.Context().Done():
	}
}

func (a *adminAPI) guard(rw http.ResponseWriter, r *http.Request) bool {
	if !isLoopbackRemote(r.RemoteAddr) {
		a.writeError(rw, http.StatusForbidden, watchproto.E_FORBIDDEN, "loopback only")
		return false
	}
	if a.token == "" {
		return true
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(auth, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")) != a.token {
		a.writeError(rw, http.StatusForbidden, watchproto.E_FORBIDDEN, "bad token")
		return false
	}
	return true
}

func (a *adminAPI) writeError(rw http.ResponseWriter, status int, code, msg string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "code": code, "error": msg})
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

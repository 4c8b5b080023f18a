package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"steading.world/internal/metrics"
	"steading.world/internal/persistence/journal"
	"steading.world/internal/persistence/weekly"
	"steading.world/internal/sim/catalogs"
	"steading.world/internal/sim/tuning"
	"steading.world/internal/sim/world"
	"steading.world/internal/transport/watch"
)

func main() {
	var (
		listenAddr = flag.String("listen", "127.0.0.1:8080", "admin http listen address")
		watchAddr  = flag.String("watch", "127.0.0.1:8090", "watch websocket listen address (empty to disable)")
		steadingID = flag.String("steading", "steading_1", "steading id")
		configDir  = flag.String("config", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <config>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the day/week index backend")
		batchDays  = flag.Int("days", 0, "batch mode: advance this many days with no listeners, then exit")
		verbose    = flag.Bool("v", false, "log each day record")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[steadingd] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	// Read-model index backend (does not affect sim determinism).
	idx, err := openIndexBackend(*dataDir, *steadingID, tune, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}

	mirrorRt, err := buildMirrorRuntime(context.Background(), *dataDir, tune, logger)
	if err != nil {
		logger.Fatalf("init mirror: %v", err)
	}

	if idx != nil {
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	w, err := world.New(world.Config{
		ID:              *steadingID,
		TickRateHz:      tune.TickRateHz,
		TicksPerDay:     tune.TicksPerDay,
		StatsWindowDays: tune.StatsWindowDays,
	}, cats)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	dayLog := journal.NewDayLogger(*dataDir, tune.JournalRotateLayout, journal.Meta{
		Steading:       *steadingID,
		CropsDigest:    cats.Crops.Digest,
		ScenarioDigest: cats.Scenario.Digest,
	})
	if mirrorRt.enabled {
		dayLog.SetRotateHook(mirrorRt.Enqueue)
	}

	var watchSrv *watch.Server
	if *batchDays == 0 && strings.TrimSpace(*watchAddr) != "" {
		watchSrv = watch.NewServer(w, tune.WatchOutBuffer, logger)
	}

	sinks := multiDayLogger{dayLog}
	if idx != nil {
		sinks = append(sinks, idx)
	}
	if watchSrv != nil {
		sinks = append(sinks, watchSrv)
	}
	sinks = append(sinks, metrics.NewCollector())
	if *verbose {
		sinks = append(sinks, dayLoggerFunc(func(rec world.DayRecord) error {
			logger.Printf("day=%d week=%d farms=%d productions=%d spends=%d farm_events=%d digest=%s",
				rec.Day, rec.Week, rec.Farms, len(rec.Productions), len(rec.Spends), len(rec.FarmEvents), rec.Digest)
			return nil
		}))
	}
	w.SetDayLogger(sinks)

	// Week records fan out to the report dir, the index, the watch tap,
	// and metrics from one consumer.
	weekCh := make(chan world.WeekRecord, 8)
	w.SetWeekSink(weekCh)
	weeklyDone := make(chan struct{})
	go func() {
		defer close(weeklyDone)
		for rec := range weekCh {
			path, err := weekly.WriteReport(*dataDir, rec)
			if err != nil {
				logger.Printf("weekly report: %v", err)
			} else {
				mirrorRt.Enqueue(path)
			}
			if idx != nil {
				idx.RecordWeek(rec)
			}
			if watchSrv != nil {
				watchSrv.RecordWeek(rec)
			}
			metrics.RecordWeek(rec)
		}
	}()

	if *batchDays > 0 {
		logger.Printf("batch: advancing %d days", *batchDays)
		w.StepDays(*batchDays)
		close(weekCh)
		<-weeklyDone
		shutdownSinks(dayLog, idx, mirrorRt, logger)
		st := w.Status()
		logger.Printf("batch done: day=%d week=%d digest=%s", st.Day, st.Week, st.Digest)
		return
	}

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	// Republish sink queue stats on the prometheus surface.
	go func() {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				recordQueueMetrics(idx, mirrorRt, watchSrv)
			}
		}
	}()

	var watchHTTP *http.Server
	if watchSrv != nil {
		watchMux := http.NewServeMux()
		watchMux.HandleFunc("/watch/v1", watchSrv.Handler())
		watchHTTP = &http.Server{
			Addr:              strings.TrimSpace(*watchAddr),
			Handler:           watchMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("watch listening on %s", watchHTTP.Addr)
			if err := watchHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatalf("watch ListenAndServe: %v", err)
			}
		}()
	}

	admin := &adminAPI{
		world:    w,
		steading: *steadingID,
		token:    strings.TrimSpace(os.Getenv("STEADING_ADMIN_TOKEN")),
		crops:    cats.Crops.Digest,
		scenario: cats.Scenario.Digest,
		index:    idx,
		mirror:   mirrorRt,
		watch:    watchSrv,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", admin.healthz)
	mux.Handle("/metrics", metrics.Handler())

	enableAdminHTTP := envBool("STEADING_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("STEADING_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		mux.HandleFunc("/admin/v1/status", admin.status)
		mux.HandleFunc("/admin/v1/spend", admin.spend)
		mux.HandleFunc("/admin/v1/farm", admin.farm)
	} else {
		logger.Printf("admin endpoints disabled (STEADING_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (STEADING_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              strings.TrimSpace(*listenAddr),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
		if watchHTTP != nil {
			_ = watchHTTP.Shutdown(ctx2)
		}
	}()

	logger.Printf("steading=%s listening on %s", *steadingID, srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Drain in dependency order: the world stops first, then the week
	// stream, then the sinks its records feed.
	<-worldDone
	close(weekCh)
	<-weeklyDone
	shutdownSinks(dayLog, idx, mirrorRt, logger)
}

func shutdownSinks(dayLog *journal.DayLogger, idx runtimeIndex, mirrorRt *mirrorRuntime, logger *log.Logger) {
	// Closing the journal fires the rotate hook, so the mirror must still
	// be accepting work here; it closes last.
	if err := dayLog.Close(); err != nil {
		logger.Printf("close journal: %v", err)
	}
	if idx != nil {
		if err := idx.Close(); err != nil {
			logger.Printf("close index: %v", err)
		}
	}
	mirrorRt.Close()
}

func recordQueueMetrics(idx runtimeIndex, mirrorRt *mirrorRuntime, watchSrv *watch.Server) {
	if idx != nil {
		s := idx.Stats()
		metrics.RecordQueue("index", s.QueueDepth, s.QueueCapacity, s.DropDayTotal+s.DropWeekTotal)
	}
	if s, ok := mirrorRt.Stats(); ok {
		metrics.RecordQueue("mirror", s.QueueDepth, s.QueueCapacity, s.DroppedTotal)
	}
	if watchSrv != nil {
		s := watchSrv.Stats()
		metrics.RecordQueue("watch", s.QueueDepth, s.QueueCapacity, s.DropTotal)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

type multiDayLogger []world.DayLogger

func (m multiDayLogger) WriteDay(rec world.DayRecord) error {
	for _, l := range m {
		if l != nil {
			_ = l.WriteDay(rec)
		}
	}
	return nil
}

type dayLoggerFunc func(world.DayRecord) error

func (f dayLoggerFunc) WriteDay(rec world.DayRecord) error { return f(rec) }

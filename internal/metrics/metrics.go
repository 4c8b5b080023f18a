package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"steading.world/internal/sim/world"
)

var (
	registerOnce sync.Once

	simDay = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "steading",
		Subsystem: "sim",
		Name:      "day",
		Help:      "Current simulated day.",
	})
	simWeek = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "steading",
		Subsystem: "sim",
		Name:      "week",
		Help:      "Current simulated week.",
	})
	simFarms = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "steading",
		Subsystem: "sim",
		Name:      "farms",
		Help:      "Registered farms.",
	})
	productionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steading",
			Subsystem: "sim",
			Name:      "productions_total",
			Help:      "Weekly production recomputes applied.",
		},
		[]string{"steward"},
	)
	productionPop = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "steading",
			Subsystem: "sim",
			Name:      "production_pop",
			Help:      "Population pool set by the latest weekly recompute.",
		},
		[]string{"steward"},
	)
	spendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steading",
			Subsystem: "sim",
			Name:      "spends_total",
			Help:      "Spend requests applied, by source and outcome.",
		},
		[]string{"steward", "source", "ok"},
	)
	spentPopTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steading",
			Subsystem: "sim",
			Name:      "spent_pop_total",
			Help:      "Population deducted by accepted spends.",
		},
		[]string{"steward", "source"},
	)
	farmEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steading",
			Subsystem: "sim",
			Name:      "farm_events_total",
			Help:      "Farm registration events, by outcome.",
		},
		[]string{"steward", "ok"},
	)
	weeksClosedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "steading",
		Subsystem: "sim",
		Name:      "weeks_closed_total",
		Help:      "Weeks closed with a week record.",
	})
	weekRemainingPop = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "steading",
			Subsystem: "sim",
			Name:      "week_remaining_pop",
			Help:      "Population left when the week closed.",
		},
		[]string{"steward"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "steading",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Buffered records in the named sink queue.",
		},
		[]string{"queue"},
	)
	queueCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "steading",
			Subsystem: "queue",
			Name:      "capacity",
			Help:      "Capacity of the named sink queue.",
		},
		[]string{"queue"},
	)
	queueDrops = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "steading",
			Subsystem: "queue",
			Name:      "drops",
			Help:      "Records dropped by the named sink queue since boot.",
		},
		[]string{"queue"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			simDay, simWeek, simFarms,
			productionsTotal, productionPop,
			spendsTotal, spentPopTotal,
			farmEventsTotal,
			weeksClosedTotal, weekRemainingPop,
			queueDepth, queueCapacity, queueDrops,
		)
	})
}

// Handler serves the default registry, for mounting at /metrics.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordDay(rec world.DayRecord) {
	RegisterMetrics()
	simDay.Set(float64(rec.Day))
	simWeek.Set(float64(rec.Week))
	simFarms.Set(float64(rec.Farms))
	for _, p := range rec.Productions {
		productionsTotal.WithLabelValues(p.Steward).Inc()
		productionPop.WithLabelValues(p.Steward).Set(float64(p.Sum))
	}
	for _, sp := range rec.Spends {
		ok := strconv.FormatBool(sp.OK)
		spendsTotal.WithLabelValues(sp.Steward, sp.Source, ok).Inc()
		if sp.OK {
			spentPopTotal.WithLabelValues(sp.Steward, sp.Source).Add(float64(sp.Amount))
		}
	}
	for _, fe := range rec.FarmEvents {
		farmEventsTotal.WithLabelValues(fe.Steward, strconv.FormatBool(fe.OK)).Inc()
	}
}

func RecordWeek(rec world.WeekRecord) {
	RegisterMetrics()
	weeksClosedTotal.Inc()
	for _, st := range rec.Stewards {
		weekRemainingPop.WithLabelValues(st.Steward).Set(float64(st.Remaining))
	}
}

// RecordQueue mirrors one sink queue's stats. Drops is the authoritative
// counter held by the sink; the gauge just republishes it.
func RecordQueue(queue string, depth, capacity int, drops uint64) {
	RegisterMetrics()
	queueDepth.WithLabelValues(queue).Set(float64(depth))
	queueCapacity.WithLabelValues(queue).Set(float64(capacity))
	queueDrops.WithLabelValues(queue).Set(float64(drops))
}

// Collector adapts the record helpers to the world's sink interfaces.
type Collector struct{}

func NewCollector() *Collector {
	RegisterMetrics()
	return &Collector{}
}

// WriteDay implements world.DayLogger.
func (*Collector) WriteDay(rec world.DayRecord) error {
	RecordDay(rec)
	return nil
}

func (*Collector) RecordWeek(rec world.WeekRecord) {
	RecordWeek(rec)
}

// Package metrics holds the prometheus collectors for the population
// scheduler. Labels are bounded (demotion reason only). A nil *Collector is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	promotions      prometheus.Counter
	demotions       *prometheus.CounterVec
	evictions       prometheus.Counter
	deaths          prometheus.Counter
	reconciles      prometheus.Counter
	poolExhausted   prometheus.Counter
	replenished     prometheus.Counter
	spawnValidation prometheus.Counter
	spawned         prometheus.Counter

	activeActors  prometheus.Gauge
	freeActors    prometheus.Gauge
	liveEntities  prometheus.Gauge
	agentsRunning prometheus.Gauge

	tickDuration prometheus.Histogram
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		promotions: f.NewCounter(prometheus.CounterOpts{
			Name: "horde_promotions_total",
			Help: "Entities promoted to actors",
		}),
		demotions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "horde_demotions_total",
			Help: "Actors demoted back to entities",
		}, []string{"reason"}), // Bounded: "out_of_range", "soft_cap", "retired"
		evictions: f.NewCounter(prometheus.CounterOpts{
			Name: "horde_soft_cap_evictions_total",
			Help: "Actors force-demoted by the soft cap",
		}),
		deaths: f.NewCounter(prometheus.CounterOpts{
			Name: "horde_deaths_total",
			Help: "Entities removed after their actor died",
		}),
		reconciles: f.NewCounter(prometheus.CounterOpts{
			Name: "horde_stale_reconciles_total",
			Help: "Entities whose actor vanished outside the pool while alive",
		}),
		poolExhausted: f.NewCounter(prometheus.CounterOpts{
			Name: "horde_pool_exhausted_total",
			Help: "Promotion attempts that found the free list empty",
		}),
		replenished: f.NewCounter(prometheus.CounterOpts{
			Name: "horde_pool_replenished_total",
			Help: "Actors rebuilt after external destruction",
		}),
		spawnValidation: f.NewCounter(prometheus.CounterOpts{
			Name: "horde_spawn_validation_failures_total",
			Help: "Spawn candidates with no navigable point nearby",
		}),
		spawned: f.NewCounter(prometheus.CounterOpts{
			Name: "horde_spawned_entities_total",
			Help: "Entities created by the spawner",
		}),
		activeActors: f.NewGauge(prometheus.GaugeOpts{
			Name: "horde_active_actors",
			Help: "Actors currently active",
		}),
		freeActors: f.NewGauge(prometheus.GaugeOpts{
			Name: "horde_free_actors",
			Help: "Actors waiting in the free list",
		}),
		liveEntities: f.NewGauge(prometheus.GaugeOpts{
			Name: "horde_live_entities",
			Help: "Live entities in the store",
		}),
		agentsRunning: f.NewGauge(prometheus.GaugeOpts{
			Name: "horde_agents_running",
			Help: "Actors whose agent logic is running",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "horde_tick_duration_seconds",
			Help:    "Time spent in one simulation tick",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		}),
	}
}

func (c *Collector) Promoted() {
	if c != nil {
		c.promotions.Inc()
	}
}

func (c *Collector) Demoted(reason string) {
	if c != nil {
		c.demotions.WithLabelValues(reason).Inc()
	}
}

func (c *Collector) Evicted() {
	if c != nil {
		c.evictions.Inc()
	}
}

func (c *Collector) Died() {
	if c != nil {
		c.deaths.Inc()
	}
}

func (c *Collector) Reconciled() {
	if c != nil {
		c.reconciles.Inc()
	}
}

func (c *Collector) PoolExhausted() {
	if c != nil {
		c.poolExhausted.Inc()
	}
}

func (c *Collector) Replenished(n int) {
	if c != nil && n > 0 {
		c.replenished.Add(float64(n))
	}
}

func (c *Collector) SpawnValidationFailed() {
	if c != nil {
		c.spawnValidation.Inc()
	}
}

func (c *Collector) Spawned(n int) {
	if c != nil && n > 0 {
		c.spawned.Add(float64(n))
	}
}

// Population sets the occupancy gauges.
func (c *Collector) Population(active, free, live int) {
	if c == nil {
		return
	}
	c.activeActors.Set(float64(active))
	c.freeActors.Set(float64(free))
	c.liveEntities.Set(float64(live))
}

func (c *Collector) AgentStarted() {
	if c != nil {
		c.agentsRunning.Inc()
	}
}

func (c *Collector) AgentStopped() {
	if c != nil {
		c.agentsRunning.Dec()
	}
}

func (c *Collector) ObserveTick(d time.Duration) {
	if c != nil {
		c.tickDuration.Observe(d.Seconds())
	}
}

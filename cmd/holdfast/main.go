package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/holdfast/server/internal/actor"
	"github.com/holdfast/server/internal/admin"
	"github.com/holdfast/server/internal/config"
	"github.com/holdfast/server/internal/core/ecs"
	"github.com/holdfast/server/internal/core/event"
	coresys "github.com/holdfast/server/internal/core/system"
	"github.com/holdfast/server/internal/data"
	"github.com/holdfast/server/internal/metrics"
	"github.com/holdfast/server/internal/persist"
	"github.com/holdfast/server/internal/pool"
	"github.com/holdfast/server/internal/scripting"
	"github.com/holdfast/server/internal/spawn"
	"github.com/holdfast/server/internal/system"
	"github.com/holdfast/server/internal/world"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("HOLDFAST_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if stop := startProfile(cfg.Profile); stop != nil {
		defer stop()
	}

	printBanner(cfg.Server.Name)

	// 3. Load static data
	printSection("data")
	classes, err := data.LoadAgentClassTable(cfg.Data.ClassesPath, cfg.Simulation)
	if err != nil {
		return fmt.Errorf("agent classes: %w", err)
	}
	rings, err := data.LoadSpawnList(cfg.Data.SpawnListPath)
	if err != nil {
		return fmt.Errorf("spawn list: %w", err)
	}
	batches, err := spawnBatches(rings, classes)
	if err != nil {
		return err
	}
	queued := 0
	for _, b := range batches {
		queued += b.Count
	}
	printStat("agent classes", classes.Count())
	printStat("spawn rings", len(rings))
	printStat("entities queued", queued)
	fmt.Println()

	// 4. Metrics registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// 5. Lua scripting: nav surface and agent logic
	printSection("scripting")
	var nav spawn.NavQuery
	logic := actor.LogicChain{agentGauge{m}}
	if cfg.Scripting.Enabled {
		engine, err := scripting.NewEngine(cfg.Scripting.Dir, log)
		if err != nil {
			return fmt.Errorf("lua engine: %w", err)
		}
		defer engine.Close()
		printOK(fmt.Sprintf("lua scripts loaded from %s", cfg.Scripting.Dir))
		if engine.HasFunction("is_navigable") {
			nav = engine
		} else {
			printSkip("no is_navigable hook, spawn points unvalidated")
		}
		if engine.HasFunction("on_agent_start") || engine.HasFunction("on_agent_stop") {
			logic = append(logic, engine)
		}
	} else {
		printSkip("scripting disabled, spawn points unvalidated")
	}
	fmt.Println()

	// 6. Actor pool
	printSection("actor pool")
	actors, err := pool.New(pool.Config{
		Capacity:  cfg.Pool.Capacity,
		Class:     cfg.Pool.Class,
		MaxHealth: cfg.Pool.MaxHealth,
		Sentinel:  mgl64.Vec3(cfg.Pool.Sentinel),
	}, nil, nil, logic, log, m)
	if err != nil {
		return fmt.Errorf("actor pool: %w", err)
	}
	actors.Initialize()
	printStat("pooled actors", actors.Capacity())
	printStat("concurrent actor cap", cfg.Simulation.MaxConcurrentActors)
	fmt.Println()

	// 7. Simulation state
	store := ecs.NewEntityStore()
	bus := event.NewBus()
	observers := world.NewObserverSet()
	for _, o := range cfg.Observers {
		observers.Set(o.ID, mgl64.Vec3(o.Position))
	}
	bus.Died.Subscribe(func(ev event.Died) error {
		log.Debug("agent died", zap.Stringer("entity", ev.Entity), zap.Int32("class", ev.ClassID))
		return nil
	})

	// 8. Create systems and register with runner
	policy, err := spawn.ParseFailurePolicy(cfg.Spawn.FailurePolicy)
	if err != nil {
		return err
	}
	gen := spawn.NewGenerator(nav, spawn.Options{
		Tolerance:     cfg.Spawn.NavTolerance,
		RetryStep:     cfg.Spawn.RetryStep,
		RetryAttempts: cfg.Spawn.RetryAttempts,
		Policy:        policy,
	}, log, m)

	runner := coresys.NewRunner()
	spawner := system.NewSpawnSystem(store, gen, batches, cfg.Spawn.StartDelay, log, m)
	spawner.Arm(runner)
	runner.Register(spawner)

	moveCfg, goal := system.MovementFromConfig(cfg.Movement)
	runner.Register(system.NewMovementSystem(store, moveCfg, goal))

	promotion, err := system.NewPromotionSystem(store, actors, observers, bus,
		system.PromotionFromConfig(cfg.Simulation), log, m)
	if err != nil {
		return fmt.Errorf("promotion: %w", err)
	}
	runner.Register(promotion)
	runner.Register(system.NewReplenishSystem(actors, cfg.Pool.ReplenishInterval))
	snapshots := system.NewSnapshotSystem(store, actors, observers, cfg.Simulation.SnapshotInterval)
	runner.Register(snapshots)
	runner.Register(system.NewCleanupSystem(store))

	// 9. Kill ledger (optional PostgreSQL)
	printSection("kill ledger")
	var ledger *system.LedgerSystem
	var writer *persist.LedgerWriter
	var kills *persist.KillRepo
	runID := uuid.New()
	if cfg.Database.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		version, err := persist.RunMigrations(ctx, db.Pool)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK(fmt.Sprintf("schema at version %d", version))

		kills = persist.NewKillRepo(db)
		writer = persist.NewLedgerWriter(kills, cfg.Database.LedgerQueue, cfg.Database.WriteTimeout, log)
		writer.Start(context.Background())
		ledger = system.NewLedgerSystem(bus, writer, runID, cfg.Database.FlushInterval, log)
		runner.Register(ledger)
		printOK(fmt.Sprintf("run %s", runID))
	} else {
		printSkip("database disabled, deaths are not recorded")
	}
	fmt.Println()

	// 10. Admin HTTP
	var adminSrv *admin.Server
	if cfg.Admin.Enabled {
		router := admin.NewRouter(admin.RouterConfig{
			Snapshots:    snapshots,
			Retirer:      promotion,
			Observers:    observers,
			Gatherer:     reg,
			Log:          log,
			CORSOrigins:  cfg.Admin.CORSOrigins,
			WriteLimiter: rate.NewLimiter(rate.Limit(cfg.Admin.WriteRate), cfg.Admin.WriteBurst),
		})
		adminSrv = admin.NewServer(cfg.Admin.BindAddress, router, log)
		if err := adminSrv.Start(); err != nil {
			return fmt.Errorf("admin server: %w", err)
		}
	}

	// 11. Start game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Simulation.TickRate)
	defer ticker.Stop()

	printSection("ready")
	if adminSrv != nil {
		printReady(fmt.Sprintf("admin API on %s", cfg.Admin.BindAddress))
	}
	printReady(fmt.Sprintf("game loop started (tick: %s)", cfg.Simulation.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			runner.Tick(cfg.Simulation.TickRate)
			m.ObserveTick(time.Since(start))
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			if adminSrv != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := adminSrv.Shutdown(ctx); err != nil {
					log.Warn("admin shutdown", zap.Error(err))
				}
				cancel()
			}
			if ledger != nil {
				ledger.Flush()
				ledger.Close()
				writer.Close()
				written, dropped := writer.Stats()
				ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.WriteTimeout)
				recorded, err := kills.CountRun(ctx, runID)
				cancel()
				if err != nil {
					log.Warn("kill ledger count", zap.Error(err))
				}
				log.Info("kill ledger closed",
					zap.Stringer("run", runID),
					zap.Int("written", written),
					zap.Int("dropped", dropped),
					zap.Int64("recorded", recorded))
			}
			log.Info("server stopped",
				zap.Uint64("ticks", runner.Ticks()),
				zap.Int("entities", store.Len()),
				zap.Int("active_actors", actors.ActiveCount()))
			return nil
		}
	}
}

// agentGauge tracks running agent logic on the metrics collector.
type agentGauge struct{ m *metrics.Collector }

func (g agentGauge) StartAgentLogic(*actor.Actor) { g.m.AgentStarted() }
func (g agentGauge) StopAgentLogic(*actor.Actor)  { g.m.AgentStopped() }

// spawnBatches resolves each spawn ring's class into the agent configuration
// its entities start with.
func spawnBatches(rings []data.SpawnRing, classes *data.AgentClassTable) ([]system.SpawnBatch, error) {
	out := make([]system.SpawnBatch, 0, len(rings))
	for i, r := range rings {
		class := classes.Get(r.ClassID)
		if class == nil {
			return nil, fmt.Errorf("%w: spawn ring %d uses unknown class %d", config.ErrConfigurationInvalid, i, r.ClassID)
		}
		out = append(out, system.SpawnBatch{
			Center: mgl64.Vec3(r.Center),
			Radius: r.Radius,
			Count:  r.Count,
			Config: class.AgentConfig(),
		})
	}
	return out, nil
}

// startProfile starts pkg/profile when configured and returns its stop func.
func startProfile(cfg config.ProfileConfig) func() {
	var mode func(*profile.Profile)
	switch cfg.Mode {
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfile
	default:
		return nil
	}
	p := profile.Start(mode, profile.ProfilePath(cfg.Path), profile.NoShutdownHook, profile.Quiet)
	return p.Stop
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

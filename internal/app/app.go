package app

import (
	"context"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"campusgate/internal/attendance"
	"campusgate/internal/config"
	"campusgate/internal/cooldown"
	"campusgate/internal/directory"
	"campusgate/internal/gate"
	"campusgate/internal/handler"
	"campusgate/internal/metrics"
	"campusgate/internal/pass"
	"campusgate/internal/queue"
	"campusgate/internal/store"
)

// App is the wired gate service shared by the API and the worker.
type App struct {
	Config     config.App
	Logger     *log.Logger
	DB         *store.DB
	Redis      *store.Redis
	Engine     *gate.Engine
	Attendance *attendance.Service
	Scans      queue.Queue
	Results    queue.Queue
	Registry   *prometheus.Registry

	// directory is nil when identities come from a seed file.
	directory *directory.CachedSource
}

// New connects the configured backends and builds the decision engine.
func New(ctx context.Context, cfg config.App, logger *log.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.QueueBackend == "redis" || cfg.CooldownBackend == "redis" {
		a.Redis = store.NewRedis(cfg.RedisAddr)
	}

	var (
		source    directory.Source
		records   attendance.Store
		terminals attendance.TerminalStore
		passes    pass.Store
	)
	switch cfg.StoreBackend {
	case "memory":
		seed, err := LoadSeed(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		mem := attendance.NewMemory()
		passMem := pass.NewMemory()
		for _, p := range seed.PassRequests() {
			passMem.Add(p)
		}
		source = directory.StaticSource{Snap: directory.NewSnapshot(seed.Identities(), seed.LoadedAt)}
		records, terminals, passes = mem, mem, passMem
		logger.Printf("memory store: %d identities seeded", len(seed.People))
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			if db != nil {
				_ = db.Close()
			}
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.DB = db
		if cfg.Migrate {
			if err := db.Migrate(ctx); err != nil {
				a.Close()
				return nil, err
			}
		}
		identities := directory.NewRepository(db.Client)
		if cfg.SeedFile != "" {
			if err := importSeed(ctx, cfg.SeedFile, identities, logger); err != nil {
				a.Close()
				return nil, err
			}
		}
		repo := attendance.NewRepository(db.Client)
		a.directory = directory.NewCachedSource(identities, cfg.DirectoryRefresh)
		source = a.directory
		records, terminals, passes = repo, repo, pass.NewRepository(db.Client)
	}

	var tracker cooldown.Tracker
	if cfg.CooldownBackend == "redis" {
		tracker = cooldown.NewRedis(a.Redis.Client, cfg.CooldownWindow, "")
	} else {
		tracker = cooldown.NewMemory(cfg.CooldownWindow)
	}

	switch cfg.QueueBackend {
	case "memory":
		a.Scans = queue.NewInMemory(64)
		a.Results = queue.NewInMemory(64)
	case "redis":
		a.Scans = queue.NewRedisQueue(a.Redis.Client, cfg.ScanQueueKey)
		a.Results = queue.NewRedisQueue(a.Redis.Client, cfg.ResultQueueKey)
	}

	loc := cfg.Location()
	a.Engine = gate.NewEngine(gate.Deps{
		Source:   source,
		Matcher:  directory.NewMatcher(cfg.DescriptorDim, cfg.MatchThreshold, cfg.MatchWorkers),
		Cooldown: tracker,
		Records:  records,
		Writer:   attendance.NewWriter(records, loc),
		Approver: pass.NewChecker(passes),
		Location: loc,
		Logger:   logger,
		Metrics:  metrics.New(a.Registry),
		Window:   cfg.CooldownWindow,
		MaxSkew:  cfg.MaxClockSkew,
	})
	a.Attendance = attendance.NewService(records, terminals, loc)
	return a, nil
}

// importSeed upserts the people of a seed file into the identity table.
func importSeed(ctx context.Context, path string, dst IdentityWriter, logger *log.Logger) error {
	seed, err := LoadSeed(path)
	if err != nil {
		return err
	}
	n, err := seed.Import(ctx, dst)
	if err != nil {
		return err
	}
	logger.Printf("seed: %d identities imported into postgres", n)
	return nil
}

// Directory returns the cache to invalidate on refresh, or nil.
func (a *App) Directory() handler.Invalidator {
	if a.directory == nil {
		return nil
	}
	return a.directory
}

// HealthChecks lists the dependencies /healthz reports on.
func (a *App) HealthChecks() map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{}
	if a.DB != nil {
		checks["db"] = a.DB.Healthy
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Healthy
	}
	return checks
}

// Close releases connections.
func (a *App) Close() {
	if err := a.DB.Close(); err != nil {
		a.Logger.Printf("close postgres: %v", err)
	}
	if err := a.Redis.Close(); err != nil {
		a.Logger.Printf("close redis: %v", err)
	}
}

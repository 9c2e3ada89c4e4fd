package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/typepilot/internal/action"
	"github.com/nerrad567/typepilot/internal/api"
	"github.com/nerrad567/typepilot/internal/audit"
	"github.com/nerrad567/typepilot/internal/capture"
	"github.com/nerrad567/typepilot/internal/delivery"
	"github.com/nerrad567/typepilot/internal/engine"
	"github.com/nerrad567/typepilot/internal/generation"
	"github.com/nerrad567/typepilot/internal/infrastructure/config"
	"github.com/nerrad567/typepilot/internal/infrastructure/database"
	"github.com/nerrad567/typepilot/internal/infrastructure/influxdb"
	"github.com/nerrad567/typepilot/internal/infrastructure/logging"
	"github.com/nerrad567/typepilot/internal/infrastructure/mqtt"
	"github.com/nerrad567/typepilot/internal/learning"
	"github.com/nerrad567/typepilot/internal/orchestrator"
	"github.com/nerrad567/typepilot/internal/process"
	"github.com/nerrad567/typepilot/internal/session"
	"github.com/nerrad567/typepilot/internal/settings"
	"github.com/nerrad567/typepilot/migrations"
)

// reviewExpiryInterval is how often pending reviews are checked for expiry.
const reviewExpiryInterval = 15 * time.Second

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting TypePilot",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	defaultProfile, err := session.ParseProfile(cfg.Session.DefaultProfile)
	if err != nil {
		return fmt.Errorf("session.default_profile: %w", err)
	}

	// Open database
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(ctx, cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Supervise the entry engine (if managed)
	var engineProcess *process.Manager
	if cfg.Engine.Managed {
		engineProcess = process.NewManager(process.EngineConfig(cfg.Engine))
		engineProcess.SetLogger(log)
		if startErr := engineProcess.Start(ctx); startErr != nil {
			return fmt.Errorf("starting entry engine: %w", startErr)
		}
		defer func() {
			log.Info("stopping entry engine")
			if stopErr := engineProcess.Stop(); stopErr != nil {
				log.Error("error stopping entry engine", "error", stopErr)
			}
		}()
		log.Info("entry engine started", "binary", cfg.Engine.Binary)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	c, err := buildCore(cfg, coreInfra{
		db:            db,
		bus:           mqttClient,
		influx:        influxClient,
		engineProcess: engineProcess,
		log:           log,
	}, defaultProfile)
	if err != nil {
		return err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return c.machine.Run(gctx) })
	g.Go(func() error {
		c.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		c.router.RunExpiry(gctx, reviewExpiryInterval)
		return nil
	})
	g.Go(func() error {
		c.mirror.Run(gctx)
		return nil
	})

	if err := c.engine.Start(c.machine.HandleProgress); err != nil {
		return errors.Join(fmt.Errorf("starting engine client: %w", err), shutdown(c, g, stop, log))
	}
	if err := c.hotkeys.Start(gctx); err != nil {
		return errors.Join(fmt.Errorf("starting hotkey source: %w", err), shutdown(c, g, stop, log))
	}
	if err := c.server.Start(gctx); err != nil {
		return errors.Join(fmt.Errorf("starting API server: %w", err), shutdown(c, g, stop, log))
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"target", cfg.Target.ID,
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := shutdown(c, g, stop, log); err != nil {
		return err
	}
	log.Info("TypePilot stopped")
	return nil
}

// core holds the wired components of a running core.
type core struct {
	hub        *api.Hub
	server     *api.Server
	machine    *session.Machine
	router     *delivery.Router
	dispatcher *orchestrator.Dispatcher
	engine     *engine.Client
	hotkeys    *action.HotkeySource
	pipeline   *generation.Pipeline
	mirror     *sessionMirror
}

// coreInfra is the infrastructure buildCore wires onto.
type coreInfra struct {
	db            *database.DB
	bus           *mqtt.Client
	influx        *influxdb.Client
	engineProcess *process.Manager
	log           *logging.Logger
}

// buildCore wires the domain components. Nothing is started.
func buildCore(cfg *config.Config, infra coreInfra, defaultProfile session.SpeedProfile) (*core, error) {
	log := infra.log
	target := cfg.Target.ID

	hub := api.NewHub(cfg.WebSocket, log)
	mirror := newSessionMirror(infra.bus, log)

	engineClient := engine.New(infra.bus, engine.Options{
		QoS:            byte(cfg.MQTT.QoS),
		RequestTimeout: time.Duration(cfg.Engine.RequestTimeout) * time.Second,
	}, log)

	sessionRepo := session.NewSQLiteRepository(infra.db.DB)
	machine := session.NewMachine(session.Config{
		Countdown:     cfg.CountdownDuration(),
		EngineTimeout: cfg.EngineCallTimeout(),
	}, engineClient, sessionFanout{hub, mirror}, sessionRepo, log)

	learningStore := learning.NewStore(infra.db.DB)

	var humanizer generation.Humanizer
	if cfg.Humanizer.URL != "" {
		humanizer = generation.NewHTTPHumanizer(generation.HTTPHumanizerConfig{
			URL:        cfg.Humanizer.URL,
			APIKey:     cfg.Humanizer.APIKey,
			HTTPClient: &http.Client{Timeout: cfg.HumanizerTimeout()},
		})
	} else {
		log.Info("humanizer not configured, humanize toggles are ignored")
	}

	pipeline := generation.NewPipeline(generation.Config{
		Timeout:          cfg.GenerationTimeout(),
		HumanizerTimeout: cfg.HumanizerTimeout(),
	}, generation.NewOpenAIGenerator(generation.OpenAIConfig{
		BaseURL:   cfg.Generation.BaseURL,
		APIKey:    cfg.Generation.APIKey,
		Model:     cfg.Generation.Model,
		MaxTokens: cfg.Generation.MaxTokens,
	}), humanizer, learningStore, log)

	if infra.influx != nil {
		machine.SetMetrics(infra.influx)
		pipeline.SetMetrics(infra.influx)
	}

	system := capture.SystemProvider{}
	reviews := delivery.NewReviews(cfg.ReviewTTL())
	router := delivery.NewRouter(machine, delivery.NewPaster(system, engineClient, log), reviews, hub, log)

	settingsProvider := settings.NewFileProvider(cfg.Settings.Path, defaultProfile)

	dispatcher := orchestrator.NewDispatcher(target, orchestrator.Deps{
		Sessions:  machine,
		Capture:   capture.NewResolver(system, log),
		Settings:  settingsProvider,
		Generator: pipeline,
		Router:    router,
		Notifier:  hub,
		Debouncer: action.NewDebouncer(cfg.HotkeyDebounce()),
		Logger:    log,
	})

	hotkeys := action.NewHotkeySource(infra.bus, target, settingsProvider.Bindings, dispatcher.HandleAction)
	hotkeys.SetLogger(log)

	deps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Target:     target,
		Sessions:   machine,
		Dispatcher: dispatcher,
		Reviews:    reviews,
		History:    sessionRepo,
		Learning:   learningStore,
		Audit:      audit.NewSQLiteRepository(infra.db.DB),
		Engine:     engineClient,
		Hub:        hub,
		Version:    version,
	}
	if infra.engineProcess != nil {
		deps.Process = infra.engineProcess
	}
	server, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	return &core{
		hub:        hub,
		server:     server,
		machine:    machine,
		router:     router,
		dispatcher: dispatcher,
		engine:     engineClient,
		hotkeys:    hotkeys,
		pipeline:   pipeline,
		mirror:     mirror,
	}, nil
}

// shutdown stops the trigger surfaces first, then waits for the background
// loops.
func shutdown(c *core, g *errgroup.Group, stop context.CancelFunc, log *logging.Logger) error {
	if err := c.server.Close(); err != nil {
		log.Error("error closing API server", "error", err)
	}
	if err := c.hotkeys.Stop(); err != nil {
		log.Warn("error stopping hotkey source", "error", err)
	}
	c.dispatcher.Close()
	c.pipeline.Wait()
	stop()

	// The machine stops any running engine session on exit, so the engine
	// client outlives the background loops.
	err := g.Wait()
	c.engine.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("background task: %w", err)
	}
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

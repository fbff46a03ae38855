package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iroh-home/iroh-core/internal/api"
	"github.com/iroh-home/iroh-core/internal/audio"
	"github.com/iroh-home/iroh-core/internal/audit"
	"github.com/iroh-home/iroh-core/internal/dtmf"
	"github.com/iroh-home/iroh-core/internal/eventbus"
	"github.com/iroh-home/iroh-core/internal/hub"
	"github.com/iroh-home/iroh-core/internal/infrastructure/config"
	"github.com/iroh-home/iroh-core/internal/infrastructure/database"
	"github.com/iroh-home/iroh-core/internal/infrastructure/influxdb"
	"github.com/iroh-home/iroh-core/internal/infrastructure/logging"
	"github.com/iroh-home/iroh-core/internal/infrastructure/mqtt"
	"github.com/iroh-home/iroh-core/internal/metrics"
	"github.com/iroh-home/iroh-core/internal/operator"
	"github.com/iroh-home/iroh-core/internal/phone"
	"github.com/iroh-home/iroh-core/internal/timer"
	"github.com/iroh-home/iroh-core/migrations"
)

// historyRetention is how long audit entries and timer history are kept.
const historyRetention = 30 * 24 * time.Hour

// pruneInterval is how often persisted history is pruned.
const pruneInterval = time.Hour

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the phone listener, state machine and API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			// Cancel on Ctrl+C and SIGTERM for a graceful shutdown.
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return run(ctx, configPath)
		},
	}
}

// run wires every component and blocks until ctx is cancelled or a
// background task fails. Components are closed in reverse order of
// creation by the deferred calls.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Iroh Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	// A broken command table is fatal; load it before touching anything else.
	defs, err := dtmf.LoadFile(cfg.DTMF.CommandsFile)
	if err != nil {
		return fmt.Errorf("loading command table: %w", err)
	}
	log.Info("command table loaded", "path", cfg.DTMF.CommandsFile, "states", len(defs))

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	timerHistory := timer.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, log, 0)

	m := metrics.New(prometheus.NewRegistry())

	mqttClient, err := connectMQTT(cfg.MQTT, log)
	if err != nil {
		return err
	}
	defer func() {
		if mqttClient != nil {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}
	}()

	influxClient, err := connectInfluxDB(cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	defer func() {
		if influxClient != nil {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Event fan-out. Only configured sinks are passed so the bus never
	// holds a typed nil.
	wsHub := api.NewHub(cfg.WebSocket, log)
	busOpts := []eventbus.Option{eventbus.WithLogger(log), eventbus.WithBroadcaster(wsHub)}
	if mqttClient != nil {
		busOpts = append(busOpts, eventbus.WithPublisher(mqttClient))
	}
	if influxClient != nil {
		busOpts = append(busOpts, eventbus.WithPointWriter(influxClient))
	}
	bus := eventbus.New(busOpts...)

	// Outbound services.
	phoneClient := phone.NewClient(cfg.Phone.API.RESTURL, nil)
	speaker := audio.New(audio.Config{
		RESTURL: cfg.Phone.API.RESTURL,
		Enabled: cfg.Audio.EnableTTS,
		Voice:   cfg.Audio.Voice,
		Volume:  cfg.Audio.Volume,
		Logger:  log,
	}, phoneClient)

	homeHub := hub.New(hub.Config{
		URL:     cfg.HomeAssistant.URL,
		Token:   cfg.HomeAssistant.Token,
		Timeout: time.Duration(cfg.HomeAssistant.Timeout) * time.Second,
		Logger:  log,
	})
	if cfg.HomeAssistant.Enabled {
		// Failure leaves the client degraded; commands are skipped.
		_ = homeHub.Connect(ctx) //nolint:errcheck // logged by the client
		defer homeHub.Disconnect()
	} else {
		log.Info("Home Assistant disabled")
	}

	// The operator needs the timer manager and the manager reports to the
	// operator, so the operator's listener is bound after both exist. No
	// timer can be created before that.
	onTimer := func(context.Context, timer.Event, timer.Info) {}
	timers := timer.NewManager(
		timer.WithLogger(log),
		timer.WithAnnouncer(speaker),
		timer.WithSweepInterval(cfg.Timers.SweepInterval),
		timer.WithRetention(cfg.Timers.Retention),
		timer.WithListener(timer.RecordingListener(timerHistory, log)),
		timer.WithListener(m.TimerListener()),
		timer.WithListener(bus.TimerListener()),
		timer.WithListener(func(ctx context.Context, ev timer.Event, info timer.Info) {
			onTimer(ctx, ev, info)
		}),
	)

	var pipeline *phone.Pipeline
	op := operator.New(operator.Config{
		Timers:      timers,
		Hub:         homeHub,
		Audio:       speaker,
		Ringer:      phoneClient,
		RingPattern: cfg.Phone.Ring.Pattern,
		RingRepeat:  cfg.Phone.Ring.Repeat,
		OffHook: func() bool {
			return pipeline != nil && pipeline.Line().OffHook
		},
		Logger: log,
	})
	onTimer = op.TimerListener()

	engine := dtmf.NewEngine(op.Capabilities(),
		dtmf.WithLogger(log),
		dtmf.WithObserver(dtmf.Observers{recorder, m, bus}),
		dtmf.WithHandlerErrorHook(op.HandlerErrorHook),
		dtmf.WithStrictBindings(cfg.DTMF.Strict),
	)
	if err := engine.Load(defs); err != nil {
		return fmt.Errorf("binding command table: %w", err)
	}

	pipeline = phone.NewPipeline(engine, phone.PipelineConfig{
		DTMFTimeout:   cfg.DTMFTimeout(),
		ResetOnHangUp: cfg.Phone.ResetOnHangUp,
		Logger:        log,
		Listeners:     []phone.EventListener{bus.PhoneListener()},
	})
	stream := phone.NewStream(phone.StreamConfig{
		URL:            cfg.Phone.API.WSURL,
		ReconnectDelay: cfg.Phone.ReconnectDelay,
		Logger:         log,
		Metrics:        m,
	}, pipeline.Handle)

	// Shutdown runs bottom-up: countdowns first, then the engine, then the
	// operator's in-flight announcements.
	defer func() {
		log.Info("stopping timers")
		if closeErr := timers.Close(); closeErr != nil {
			log.Error("error stopping timers", "error", closeErr)
		}
		if closeErr := engine.Close(); closeErr != nil {
			log.Error("error stopping state machine", "error", closeErr)
		}
		op.Wait()
	}()

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("starting state machine: %w", err)
	}

	if mqttClient != nil {
		if err := eventbus.SubscribeCommands(ctx, mqttClient, engine, log); err != nil {
			return err
		}
	}

	deps := api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Logger:       log,
		Timers:       timers,
		TimerHistory: timerHistory,
		Audit:        auditRepo,
		Engine:       engine,
		Line:         pipeline,
		Phone:        stream,
		Metrics:      m.Handler(),
		ExternalHub:  wsHub,
		Version:      version,
	}
	if cfg.HomeAssistant.Enabled {
		deps.HomeHub = homeHub
	}
	if mqttClient != nil {
		deps.Broker = mqttClient
	}
	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return recorder.Run(gctx) })
	g.Go(func() error { return bus.Run(gctx) })
	g.Go(func() error { return timers.Run(gctx) })
	g.Go(func() error { return stream.Run(gctx) })
	g.Go(func() error {
		return pruneHistory(gctx, pruneInterval, historyRetention, log, auditRepo, timerHistory)
	})

	log.Info("initialisation complete, waiting for shutdown signal",
		"api", apiServer.Addr(),
		"phone", cfg.Phone.API.WSURL,
	)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("background task failed: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")
	log.Info("Iroh Core stopped")
	return nil
}

// connectMQTT returns nil when MQTT is disabled.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client, nil
}

// connectInfluxDB returns nil when InfluxDB is disabled.
func connectInfluxDB(cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
}

// healthCheck verifies infrastructure connections. Disabled clients are nil
// and skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// pruner deletes persisted history older than a cutoff.
type pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneHistory prunes every store once per interval until ctx is cancelled.
// Failures are logged and retried on the next tick.
func pruneHistory(ctx context.Context, every, retention time.Duration, log *logging.Logger, stores ...pruner) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, s := range stores {
				n, err := s.Prune(ctx, retention)
				if err != nil {
					log.Warn("history prune failed", "error", err)
					continue
				}
				if n > 0 {
					log.Debug("pruned history", "rows", n)
				}
			}
		}
	}
}

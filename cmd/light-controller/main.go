package main

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/light-controller/db"
	"github.com/thatsimonsguy/light-controller/internal/api"
	"github.com/thatsimonsguy/light-controller/internal/balancer"
	"github.com/thatsimonsguy/light-controller/internal/config"
	"github.com/thatsimonsguy/light-controller/internal/controllers/roomcontroller"
	"github.com/thatsimonsguy/light-controller/internal/datadog"
	"github.com/thatsimonsguy/light-controller/internal/env"
	"github.com/thatsimonsguy/light-controller/internal/logging"
	"github.com/thatsimonsguy/light-controller/internal/notifications"
	"github.com/thatsimonsguy/light-controller/internal/simulator"
	"github.com/thatsimonsguy/light-controller/system/shutdown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to load configuration")
		return
	}
	env.Cfg = cfg

	logging.Init(cfg.LogLevel, cfg.Log.JSON, cfg.Log.File)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("simulator", cfg.Simulator.URL).
		Str("database", cfg.Database.Path).
		Msg("Starting light controller")

	if cfg.ResetLedger {
		if err := db.ResetLedger(cfg.Database.Path); err != nil {
			shutdown.ShutdownWithError(err, "Failed to reset event ledger")
			return
		}
	}

	dbConn, err := db.Open(cfg.Database.Path)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to open event ledger")
		return
	}
	shutdown.OnShutdown(func() {
		if err := dbConn.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close event ledger")
		}
	})

	datadog.InitMetrics()
	shutdown.OnShutdown(datadog.Close)
	notifications.Init()

	client := simulator.NewClient(simulator.Options{
		BaseURL:      cfg.Simulator.URL,
		StatePath:    cfg.Simulator.StatePath,
		ControlPath:  cfg.Simulator.ControlPath,
		Timeout:      cfg.Simulator.Timeout.Duration(),
		RateLimitRPS: cfg.Simulator.RateLimitRPS,
	})
	shutdown.OnShutdown(client.Close)

	ledger := db.NewLedger(dbConn)
	minBrightness, maxBrightness, deadband := cfg.Control.Brightness()

	controller := roomcontroller.New(roomcontroller.Settings{
		PollInterval: cfg.Control.PollInterval.Duration(),
		LeadWindow:   cfg.Control.LeadBeforeMeeting.Duration(),
		TurnOffDelay: cfg.Control.TurnOffDelay.Duration(),
		Balancer: balancer.Settings{
			MinLux:         cfg.Control.MinIlluminationLux,
			MaxLuxPerLight: cfg.Control.MaxLuxPerLight,
			MinBrightness:  minBrightness,
			MaxBrightness:  maxBrightness,
			Deadband:       deadband,
		},
	}, roomcontroller.Deps{
		Source:   client,
		Actuator: client,
		Recorder: ledger,
	})

	ctx, cancel := context.WithCancel(shutdown.SignalContext())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ledger.RunCleanup(ctx, cfg.Database.CleanupInterval.Duration(), cfg.Database.Retention.Duration())
	}()

	if cfg.API.Enabled {
		server := api.NewServer(dbConn, controller)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(ctx, cfg.API.Port); err != nil {
				log.Error().Err(err).Msg("REST API server failed")
				cancel()
			}
		}()
	}

	controller.Run(ctx)

	cancel()
	wg.Wait()

	shutdown.Shutdown()
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/minbiocabanon/pepettebox/internal/config"
	"github.com/minbiocabanon/pepettebox/internal/controller"
	"github.com/minbiocabanon/pepettebox/internal/datadog"
	"github.com/minbiocabanon/pepettebox/internal/drivers"
	"github.com/minbiocabanon/pepettebox/internal/logging"
	"github.com/minbiocabanon/pepettebox/internal/notifications"
	"github.com/minbiocabanon/pepettebox/internal/store"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("db_file", cfg.DBFile).
		Msg("Starting pepettebox controller")

	datadog.InitMetrics(&cfg)
	notifications.Init(cfg.NtfyTopic)

	st, err := store.Open(cfg.DBFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open parameter store")
	}
	defer st.Close()

	params, err := st.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load parameters")
	}

	log.Info().
		Str("operator", params.PhoneNumber).
		Int("radius_m", params.RadiusMeters).
		Bool("alarm_geofence", params.AlarmGeofence).
		Bool("periodic_status", params.PeriodicStatus).
		Msg("Loaded parameters")

	// Bench driver set; real radio/GPS/ADC drivers slot in behind the same
	// interfaces.
	gps := drivers.NewSimGPS(params.BaseLat, params.BaseLatDir, params.BaseLon, params.BaseLonDir)
	modem := drivers.NewSimModem(cfg.SimInboundSpool, cfg.SimOutboundLog)
	adc := drivers.NewSimADC()

	ctrl := controller.New(&cfg, &params, st, gps, modem, adc, drivers.SimUpdater{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	ctrl.Run(ctx)
}

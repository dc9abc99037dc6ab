package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/minbiocabanon/pepettebox/internal/model"
)

// Intervals carries the per-task periods. The GPS, battery, analog and SMS
// periods are fixed by the hardware; the rest are tunable per deployment.
type Intervals struct {
	GeofenceMinutes     int `json:"geofence_minutes"`
	FloodMinutes        int `json:"flood_minutes"`
	AutotestMinutes     int `json:"autotest_minutes"`
	InputVoltageMinutes int `json:"input_voltage_minutes"`
}

// Calibration holds the analog front-end constants.
type Calibration struct {
	ADCReferenceVolts float64 `json:"adc_reference_volts"` // 4.97 on the reference board
	VoltDividerRatio  float64 `json:"volt_divider_ratio"`  // input supply divider
	AnalogSamples     int     `json:"analog_samples"`      // samples averaged per read
	FloodActiveHigh   bool    `json:"flood_active_high"`   // true: wet sensor reads high
}

type Config struct {
	DBFile     string
	ConfigFile string
	LogFile    string
	LogLevel   zerolog.Level

	SIMNumber string `json:"sim_number"` // number of the SIM in the device, self-test target

	Intervals   Intervals       `json:"intervals"`
	Calibration Calibration     `json:"calibration"`
	StatusAt    model.TimeOfDay `json:"status_at"`   // daily status SMS time
	FirmwareAt  model.TimeOfDay `json:"firmware_at"` // daily firmware check time

	LoopTickMillis int `json:"loop_tick_millis"`

	// Optional secondary alert channel (ntfy push mirror of alarm SMS).
	NtfyTopic string `json:"ntfy_topic"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	// Inbound/outbound SMS spool files for the bench modem (no real radio).
	SimInboundSpool string `json:"sim_inbound_spool"`
	SimOutboundLog  string `json:"sim_outbound_log"`
	Simulate        bool   `json:"simulate"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.DBFile, "db-file", "data/pepettebox.db", "Path to the persisted parameter database")
	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&cfg.LogFile, "log-file", "", "Log file path (empty logs to stderr)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Intervals.GeofenceMinutes == 0 {
		cfg.Intervals.GeofenceMinutes = 60
	}
	if cfg.Intervals.FloodMinutes == 0 {
		cfg.Intervals.FloodMinutes = 60
	}
	if cfg.Intervals.AutotestMinutes == 0 {
		cfg.Intervals.AutotestMinutes = 60
	}
	if cfg.Intervals.InputVoltageMinutes == 0 {
		cfg.Intervals.InputVoltageMinutes = 60
	}
	if cfg.Calibration.ADCReferenceVolts == 0 {
		cfg.Calibration.ADCReferenceVolts = 4.97
	}
	if cfg.Calibration.VoltDividerRatio == 0 {
		cfg.Calibration.VoltDividerRatio = 10.54123
	}
	if cfg.Calibration.AnalogSamples == 0 {
		cfg.Calibration.AnalogSamples = 16
	}
	if cfg.StatusAt.Hour == 0 && cfg.StatusAt.Minute == 0 {
		cfg.StatusAt = model.TimeOfDay{Hour: 12, Minute: 0}
	}
	if cfg.FirmwareAt.Hour == 0 && cfg.FirmwareAt.Minute == 0 {
		cfg.FirmwareAt = model.TimeOfDay{Hour: 3, Minute: 0}
	}
	if cfg.LoopTickMillis == 0 {
		cfg.LoopTickMillis = 250
	}
}

func (cfg *Config) validate() {
	// The self-test timeout (5 min) must stay strictly below the autotest
	// interval or a pending test would be re-armed before it can expire.
	if cfg.Intervals.AutotestMinutes <= 5 {
		panic(fmt.Sprintf("autotest_minutes must be greater than 5, got %d", cfg.Intervals.AutotestMinutes))
	}
	for name, m := range map[string]int{
		"geofence_minutes":      cfg.Intervals.GeofenceMinutes,
		"flood_minutes":         cfg.Intervals.FloodMinutes,
		"input_voltage_minutes": cfg.Intervals.InputVoltageMinutes,
	} {
		if m < 1 {
			panic(fmt.Sprintf("%s must be at least 1, got %d", name, m))
		}
	}
	if cfg.SIMNumber != "" {
		if err := model.ValidatePhoneNumber(cfg.SIMNumber); err != nil {
			panic("invalid sim_number: " + err.Error())
		}
	}
	if cfg.StatusAt.Hour < 0 || cfg.StatusAt.Hour > 23 || cfg.StatusAt.Minute < 0 || cfg.StatusAt.Minute > 59 {
		panic("status_at out of range")
	}
	if cfg.FirmwareAt.Hour < 0 || cfg.FirmwareAt.Hour > 23 || cfg.FirmwareAt.Minute < 0 || cfg.FirmwareAt.Minute > 59 {
		panic("firmware_at out of range")
	}
}

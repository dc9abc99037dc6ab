package config

import (
	"testing"
)

func validConfig() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	cfg.validate() // should not panic
}

func TestValidate_AutotestIntervalTooShort(t *testing.T) {
	// The self-test round-trip window is 5 minutes; an autotest interval at
	// or below that would re-arm a test that can never expire.
	cfg := validConfig()
	cfg.Intervals.AutotestMinutes = 5

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic due to autotest interval at the self-test window, but got none")
		}
	}()

	cfg.validate()
}

func TestValidate_ZeroIntervalRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Intervals.FloodMinutes = 0

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic due to zero flood interval, but got none")
		}
	}()

	cfg.validate()
}

func TestValidate_BadSIMNumber(t *testing.T) {
	cfg := validConfig()
	cfg.SIMNumber = "not-a-number"

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic due to malformed SIM number, but got none")
		}
	}()

	cfg.validate()
}

func TestValidate_StatusTimeOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.StatusAt.Hour = 24

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic due to out-of-range status time, but got none")
		}
	}()

	cfg.validate()
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	if cfg.Intervals.GeofenceMinutes != 60 {
		t.Errorf("geofence interval default = %d, want 60", cfg.Intervals.GeofenceMinutes)
	}
	if cfg.Calibration.AnalogSamples != 16 {
		t.Errorf("analog samples default = %d, want 16", cfg.Calibration.AnalogSamples)
	}
	if cfg.StatusAt.Hour != 12 || cfg.StatusAt.Minute != 0 {
		t.Errorf("status time default = %02d:%02d, want 12:00", cfg.StatusAt.Hour, cfg.StatusAt.Minute)
	}
	if cfg.LoopTickMillis != 250 {
		t.Errorf("loop tick default = %d, want 250", cfg.LoopTickMillis)
	}
}

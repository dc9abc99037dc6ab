package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/minbiocabanon/pepettebox/internal/model"
)

func newTestRegistry() *Registry {
	return New(5*time.Second, 2*time.Minute, 2*time.Minute, time.Hour)
}

func TestGPSValidity(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		quality model.FixQuality
		want    bool
	}{
		{"gps fix", model.FixGPS, true},
		{"dgps fix", model.FixDGPS, true},
		{"invalid fix", model.FixInvalid, false},
		{"error fix", model.FixError, false},
		{"out of enum", model.FixQuality(42), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry()
			r.SetGPS(model.GPSFix{Latitude: 43.5, LatitudeDir: 'N', Longitude: 7.1, LongitudeDir: 'E', Quality: tt.quality}, now)
			_, ok := r.GPS(now)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestStaleReadingsAreUnusable(t *testing.T) {
	now := time.Now()
	r := newTestRegistry()

	r.SetGPS(model.GPSFix{Quality: model.FixGPS}, now)
	_, ok := r.GPS(now.Add(10 * time.Second))
	assert.True(t, ok, "within 2x interval")

	_, ok = r.GPS(now.Add(11 * time.Second))
	assert.False(t, ok, "older than 2x interval")

	// The value itself is still returned for display.
	fix, _ := r.GPS(now.Add(time.Hour))
	assert.Equal(t, model.FixGPS, fix.Quality)
}

func TestNeverSetIsUnusable(t *testing.T) {
	r := newTestRegistry()
	now := time.Now()

	_, ok := r.GPS(now)
	assert.False(t, ok)
	_, ok = r.Battery(now)
	assert.False(t, ok)
	_, ok = r.Supply(now)
	assert.False(t, ok)
	_, ok = r.Flood(now)
	assert.False(t, ok)
}

func TestBatteryPlausibility(t *testing.T) {
	now := time.Now()

	for _, level := range model.BatteryLevels {
		r := newTestRegistry()
		r.SetBattery(model.Battery{Level: level}, now)
		_, ok := r.Battery(now)
		assert.True(t, ok, "level %d", level)
	}

	r := newTestRegistry()
	r.SetBattery(model.Battery{Level: 50}, now)
	_, ok := r.Battery(now)
	assert.False(t, ok, "levels between hardware steps are sensor faults")
}

func TestSupplyPlausibility(t *testing.T) {
	now := time.Now()

	tests := []struct {
		volts float64
		want  bool
	}{
		{12.6, true},
		{0, true},
		{36, true},
		{-0.5, false},
		{48.2, false},
	}

	for _, tt := range tests {
		r := newTestRegistry()
		r.SetSupply(model.SupplyReading{InputVoltage: tt.volts}, now)
		_, ok := r.Supply(now)
		assert.Equal(t, tt.want, ok, "voltage %v", tt.volts)
	}
}

func TestFloodClamped(t *testing.T) {
	now := time.Now()
	r := newTestRegistry()

	r.SetFlood(model.FloodReading{Raw: 1500, RawDivider: -3}, now)
	f, ok := r.Flood(now)
	assert.True(t, ok)
	assert.Equal(t, model.MaxFloodRaw, f.Raw)
	assert.Equal(t, model.MinFloodRaw, f.RawDivider)
}

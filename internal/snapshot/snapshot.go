package snapshot

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/minbiocabanon/pepettebox/internal/model"
)

type entry struct {
	at    time.Time
	valid bool
}

// Registry holds the most recent reading of each monitored quantity. Each
// setter runs a plausibility check; implausible values are kept for display
// but flagged invalid so alarm evaluation skips them. A reading older than
// twice its poll interval is reported stale the same way.
type Registry struct {
	mu sync.RWMutex

	gps     model.GPSFix
	gpsMeta entry

	battery     model.Battery
	batteryMeta entry

	supply     model.SupplyReading
	supplyMeta entry

	flood     model.FloodReading
	floodMeta entry

	gpsWindow     time.Duration
	batteryWindow time.Duration
	supplyWindow  time.Duration
	floodWindow   time.Duration
}

// New builds a registry with staleness windows of twice each task interval.
func New(gpsInterval, batteryInterval, supplyInterval, floodInterval time.Duration) *Registry {
	return &Registry{
		gpsWindow:     2 * gpsInterval,
		batteryWindow: 2 * batteryInterval,
		supplyWindow:  2 * supplyInterval,
		floodWindow:   2 * floodInterval,
	}
}

func (r *Registry) SetGPS(fix model.GPSFix, now time.Time) {
	valid := fix.Quality.Valid() && fix.Quality != model.FixInvalid && fix.Quality != model.FixError
	if !valid {
		log.Debug().
			Str("quality", fix.Quality.String()).
			Msg("GPS sample has no usable fix")
	}
	r.mu.Lock()
	r.gps = fix
	r.gpsMeta = entry{at: now, valid: valid}
	r.mu.Unlock()
}

func (r *Registry) SetBattery(b model.Battery, now time.Time) {
	valid := false
	for _, l := range model.BatteryLevels {
		if b.Level == l {
			valid = true
			break
		}
	}
	if !valid {
		log.Warn().Int("level", b.Level).Msg("Battery level outside hardware steps, treating as sensor fault")
	}
	r.mu.Lock()
	r.battery = b
	r.batteryMeta = entry{at: now, valid: valid}
	r.mu.Unlock()
}

func (r *Registry) SetSupply(s model.SupplyReading, now time.Time) {
	valid := s.InputVoltage >= model.MinInputVoltage && s.InputVoltage <= model.MaxInputVoltage
	if !valid {
		log.Warn().
			Float64("input_voltage", s.InputVoltage).
			Msg("Supply voltage implausible, treating as sensor fault")
	}
	r.mu.Lock()
	r.supply = s
	r.supplyMeta = entry{at: now, valid: valid}
	r.mu.Unlock()
}

func (r *Registry) SetFlood(f model.FloodReading, now time.Time) {
	f.Raw = model.ClampFloodRaw(f.Raw)
	f.RawDivider = model.ClampFloodRaw(f.RawDivider)
	r.mu.Lock()
	r.flood = f
	r.floodMeta = entry{at: now, valid: true}
	r.mu.Unlock()
}

// GPS returns the latest fix and whether it is usable for geofencing.
func (r *Registry) GPS(now time.Time) (model.GPSFix, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gps, usable(r.gpsMeta, r.gpsWindow, now)
}

func (r *Registry) Battery(now time.Time) (model.Battery, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.battery, usable(r.batteryMeta, r.batteryWindow, now)
}

func (r *Registry) Supply(now time.Time) (model.SupplyReading, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.supply, usable(r.supplyMeta, r.supplyWindow, now)
}

func (r *Registry) Flood(now time.Time) (model.FloodReading, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flood, usable(r.floodMeta, r.floodWindow, now)
}

func usable(e entry, window time.Duration, now time.Time) bool {
	if e.at.IsZero() || !e.valid {
		return false
	}
	return now.Sub(e.at) <= window
}

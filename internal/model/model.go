package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Hardware limits for plausibility checks on sensor readings. Values outside
// these ranges are treated as sensor faults, not alarms.
const (
	MinInputVoltage = 0.0
	MaxInputVoltage = 36.0

	MinFloodRaw = 0.0
	MaxFloodRaw = 1000.0

	SecretLength   = 4
	MaxPhoneDigits = 12
)

// BatteryLevels are the only charge percentages the modem hardware reports.
var BatteryLevels = []int{0, 33, 66, 100}

type FixQuality int

const (
	FixInvalid FixQuality = iota
	FixGPS
	FixDGPS
	FixPPS
	FixRTK
	FixFloatRTK
	FixDeadReckoning
	FixManual
	FixSimulation
	FixError
)

func (q FixQuality) String() string {
	switch q {
	case FixInvalid:
		return "invalid"
	case FixGPS:
		return "gps"
	case FixDGPS:
		return "dgps"
	case FixPPS:
		return "pps"
	case FixRTK:
		return "rtk"
	case FixFloatRTK:
		return "float-rtk"
	case FixDeadReckoning:
		return "dead-reckoning"
	case FixManual:
		return "manual"
	case FixSimulation:
		return "simulation"
	case FixError:
		return "error"
	default:
		return "unknown"
	}
}

// Valid reports whether q is one of the defined NMEA fix quality values.
func (q FixQuality) Valid() bool {
	return q >= FixInvalid && q <= FixError
}

// GPSFix is the latest position sample produced by the NMEA parser.
// Latitude and longitude are unsigned; the hemisphere letters carry the sign.
type GPSFix struct {
	Latitude     float64    `json:"latitude"`
	LatitudeDir  byte       `json:"latitude_dir"`
	Longitude    float64    `json:"longitude"`
	LongitudeDir byte       `json:"longitude_dir"`
	Hour         int        `json:"hour"`
	Minute       int        `json:"minute"`
	Second       int        `json:"second"`
	Satellites   int        `json:"satellites"`
	Quality      FixQuality `json:"quality"`
}

// SignedLatitude returns latitude in degrees, negative in the southern
// hemisphere.
func (f GPSFix) SignedLatitude() float64 {
	if f.LatitudeDir == 'S' {
		return -f.Latitude
	}
	return f.Latitude
}

// SignedLongitude returns longitude in degrees, negative in the western
// hemisphere.
func (f GPSFix) SignedLongitude() float64 {
	if f.LongitudeDir == 'W' {
		return -f.Longitude
	}
	return f.Longitude
}

type Battery struct {
	Level    int  `json:"level"` // percent, one of 0/33/66/100
	Charging bool `json:"charging"`
}

// SupplyReading is one sampled measurement of the external supply input.
type SupplyReading struct {
	Raw           float64 `json:"raw"`            // averaged ADC counts
	AnalogVoltage float64 `json:"analog_voltage"` // at the ADC pin
	InputVoltage  float64 `json:"input_voltage"`  // after divider calibration
}

// FloodReading is one sampled measurement of the flood sensor, both direct
// and behind the divider.
type FloodReading struct {
	Raw                  float64 `json:"raw"`
	AnalogVoltage        float64 `json:"analog_voltage"`
	RawDivider           float64 `json:"raw_divider"`
	AnalogVoltageDivider float64 `json:"analog_voltage_divider"`
}

// Params is the persisted Configuration Record: every user-tunable setting
// that survives power loss. Mutated only through validated menu commands and
// written back transactionally by the store.
type Params struct {
	Initialized bool `json:"initialized"`

	SMSSecret   string `json:"sms_secret"`   // exactly 4 characters
	PhoneNumber string `json:"phone_number"` // operator number, "+" then up to 12 digits

	AlarmGeofence   bool `json:"alarm_geofence"`
	PeriodicStatus  bool `json:"periodic_status"`
	AlarmLowBattery bool `json:"alarm_low_battery"`
	AlarmFlood      bool `json:"alarm_flood"`
	LowPowerMode    bool `json:"low_power_mode"`

	BaseLat      float64 `json:"base_lat"`
	BaseLatDir   byte    `json:"base_lat_dir"`
	BaseLon      float64 `json:"base_lon"`
	BaseLonDir   byte    `json:"base_lon_dir"`
	RadiusMeters int     `json:"radius_meters"`

	BatteryLevelTrig int     `json:"battery_level_trig"` // percent, 33 or 66
	InputVoltageTrig float64 `json:"input_voltage_trig"` // volts
	FloodSensorTrig  float64 `json:"flood_sensor_trig"`  // raw ADC counts
}

// DefaultParams returns the compiled-in defaults used on very first boot and
// after a restore-defaults command.
func DefaultParams() Params {
	return Params{
		Initialized:      true,
		SMSSecret:        "1234",
		PhoneNumber:      "+33000000000",
		AlarmGeofence:    true,
		PeriodicStatus:   true,
		AlarmLowBattery:  true,
		AlarmFlood:       true,
		LowPowerMode:     false,
		BaseLat:          43.56457,
		BaseLatDir:       'N',
		BaseLon:          7.0751,
		BaseLonDir:       'E',
		RadiusMeters:     150,
		BatteryLevelTrig: 33,
		InputVoltageTrig: 11.6,
		FloodSensorTrig:  600,
	}
}

func (p Params) SignedBaseLat() float64 {
	if p.BaseLatDir == 'S' {
		return -p.BaseLat
	}
	return p.BaseLat
}

func (p Params) SignedBaseLon() float64 {
	if p.BaseLonDir == 'W' {
		return -p.BaseLon
	}
	return p.BaseLon
}

// Validate checks the record invariants. A record that fails validation is
// never persisted.
func (p Params) Validate() error {
	if err := ValidateSecret(p.SMSSecret); err != nil {
		return err
	}
	if err := ValidatePhoneNumber(p.PhoneNumber); err != nil {
		return err
	}
	if err := ValidateRadius(p.RadiusMeters); err != nil {
		return err
	}
	if err := ValidateCoordinates(p.BaseLat, p.BaseLatDir, p.BaseLon, p.BaseLonDir); err != nil {
		return err
	}
	if err := ValidateBatteryTrigger(p.BatteryLevelTrig); err != nil {
		return err
	}
	if err := ValidateFloodTrigger(p.FloodSensorTrig); err != nil {
		return err
	}
	return nil
}

func ValidateSecret(secret string) error {
	if len(secret) != SecretLength {
		return fmt.Errorf("secret must be exactly %d characters", SecretLength)
	}
	return nil
}

func ValidatePhoneNumber(number string) error {
	if !strings.HasPrefix(number, "+") {
		return fmt.Errorf("phone number must start with '+'")
	}
	digits := number[1:]
	if len(digits) == 0 || len(digits) > MaxPhoneDigits {
		return fmt.Errorf("phone number must have 1 to %d digits after '+'", MaxPhoneDigits)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("phone number contains non-digit %q", r)
		}
	}
	return nil
}

func ValidateRadius(meters int) error {
	if meters <= 0 {
		return fmt.Errorf("radius must be a positive integer, got %d", meters)
	}
	return nil
}

func ValidateCoordinates(lat float64, latDir byte, lon float64, lonDir byte) error {
	if latDir != 'N' && latDir != 'S' {
		return fmt.Errorf("latitude hemisphere must be N or S, got %q", latDir)
	}
	if lonDir != 'E' && lonDir != 'W' {
		return fmt.Errorf("longitude hemisphere must be E or W, got %q", lonDir)
	}
	if lat < 0 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [0,90]", lat)
	}
	if lon < 0 || lon > 180 {
		return fmt.Errorf("longitude %v out of range [0,180]", lon)
	}
	return nil
}

func ValidateBatteryTrigger(level int) error {
	if level != 33 && level != 66 {
		return fmt.Errorf("battery trigger must be 33 or 66, got %d", level)
	}
	return nil
}

func ValidateFloodTrigger(raw float64) error {
	if raw < MinFloodRaw || raw > MaxFloodRaw || math.IsNaN(raw) {
		return fmt.Errorf("flood trigger %v out of range [%v,%v]", raw, MinFloodRaw, MaxFloodRaw)
	}
	return nil
}

// ClampFloodRaw clamps a raw flood sensor value into the physical sensor
// range.
func ClampFloodRaw(raw float64) float64 {
	if raw < MinFloodRaw {
		return MinFloodRaw
	}
	if raw > MaxFloodRaw {
		return MaxFloodRaw
	}
	return raw
}

// TimeOfDay is a wall-clock target (hh:mm) used for the daily status SMS and
// the firmware check window.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (t TimeOfDay) Matches(now time.Time) bool {
	return now.Hour() == t.Hour && now.Minute() == t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

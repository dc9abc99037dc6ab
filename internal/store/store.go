package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/minbiocabanon/pepettebox/internal/model"
)

// SchemaVersion is bumped whenever the params table layout changes. A stored
// record with a different version is discarded and replaced with defaults,
// which is the same policy the EEPROM layout marker enforced.
const SchemaVersion = 1

// Store persists the Configuration Record in a single-row sqlite table.
// A save either fully commits or leaves the previous record in effect.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS params (
		id INTEGER PRIMARY KEY CHECK(id=1),
		schema_version INTEGER NOT NULL,
		initialized BOOLEAN NOT NULL,
		sms_secret TEXT NOT NULL,
		phone_number TEXT NOT NULL,
		alarm_geofence BOOLEAN NOT NULL,
		periodic_status BOOLEAN NOT NULL,
		alarm_low_battery BOOLEAN NOT NULL,
		alarm_flood BOOLEAN NOT NULL,
		low_power_mode BOOLEAN NOT NULL,
		base_lat REAL NOT NULL,
		base_lat_dir TEXT NOT NULL,
		base_lon REAL NOT NULL,
		base_lon_dir TEXT NOT NULL,
		radius_meters INTEGER NOT NULL,
		battery_level_trig INTEGER NOT NULL,
		input_voltage_trig REAL NOT NULL,
		flood_sensor_trig REAL NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create params table: %w", err)
	}
	return nil
}

// Load returns the persisted record. A missing row, an unset initialized
// marker or a schema version mismatch all seed the compiled-in defaults and
// write them back immediately.
func (s *Store) Load() (model.Params, error) {
	var (
		p       model.Params
		version int
		latDir  string
		lonDir  string
	)
	err := s.db.QueryRow(`SELECT schema_version, initialized, sms_secret, phone_number,
		alarm_geofence, periodic_status, alarm_low_battery, alarm_flood, low_power_mode,
		base_lat, base_lat_dir, base_lon, base_lon_dir, radius_meters,
		battery_level_trig, input_voltage_trig, flood_sensor_trig
		FROM params WHERE id = 1`).Scan(
		&version, &p.Initialized, &p.SMSSecret, &p.PhoneNumber,
		&p.AlarmGeofence, &p.PeriodicStatus, &p.AlarmLowBattery, &p.AlarmFlood, &p.LowPowerMode,
		&p.BaseLat, &latDir, &p.BaseLon, &lonDir, &p.RadiusMeters,
		&p.BatteryLevelTrig, &p.InputVoltageTrig, &p.FloodSensorTrig,
	)
	switch {
	case err == sql.ErrNoRows:
		log.Info().Msg("No stored parameters, seeding defaults")
		return s.seedDefaults()
	case err != nil:
		return model.Params{}, fmt.Errorf("failed to load params: %w", err)
	}

	if version != SchemaVersion {
		log.Warn().
			Int("stored_version", version).
			Int("expected_version", SchemaVersion).
			Msg("Stored parameter schema mismatch, restoring defaults")
		return s.seedDefaults()
	}
	if !p.Initialized {
		log.Warn().Msg("Stored parameters not marked initialized, restoring defaults")
		return s.seedDefaults()
	}

	if len(latDir) == 1 {
		p.BaseLatDir = latDir[0]
	}
	if len(lonDir) == 1 {
		p.BaseLonDir = lonDir[0]
	}
	return p, nil
}

func (s *Store) seedDefaults() (model.Params, error) {
	p := model.DefaultParams()
	if err := s.Save(p); err != nil {
		return model.Params{}, fmt.Errorf("failed to seed default params: %w", err)
	}
	return p, nil
}

// Save validates and durably writes the full record in one transaction.
func (s *Store) Save(p model.Params) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid params: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	_, err = tx.Exec(`INSERT OR REPLACE INTO params (
		id, schema_version, initialized, sms_secret, phone_number,
		alarm_geofence, periodic_status, alarm_low_battery, alarm_flood, low_power_mode,
		base_lat, base_lat_dir, base_lon, base_lon_dir, radius_meters,
		battery_level_trig, input_voltage_trig, flood_sensor_trig
	) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		SchemaVersion, p.Initialized, p.SMSSecret, p.PhoneNumber,
		p.AlarmGeofence, p.PeriodicStatus, p.AlarmLowBattery, p.AlarmFlood, p.LowPowerMode,
		p.BaseLat, string(p.BaseLatDir), p.BaseLon, string(p.BaseLonDir), p.RadiusMeters,
		p.BatteryLevelTrig, p.InputVoltageTrig, p.FloodSensorTrig)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("write params: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit params: %w", err)
	}
	return nil
}

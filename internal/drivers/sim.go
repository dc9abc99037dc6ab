// Package drivers contains the bench-rig driver set: file-backed stand-ins
// for the modem, GPS and ADC peripherals, used for development and soak
// testing without the radio hardware attached. Real drivers implement the
// same controller interfaces on top of the AT/NMEA/ADC plumbing.
package drivers

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/minbiocabanon/pepettebox/internal/model"
	"github.com/minbiocabanon/pepettebox/internal/sms"
)

// SimGPS always reports a fix at a fixed position.
type SimGPS struct {
	fix model.GPSFix
}

func NewSimGPS(lat float64, latDir byte, lon float64, lonDir byte) *SimGPS {
	return &SimGPS{fix: model.GPSFix{
		Latitude:     lat,
		LatitudeDir:  latDir,
		Longitude:    lon,
		LongitudeDir: lonDir,
		Satellites:   7,
		Quality:      model.FixGPS,
	}}
}

func (g *SimGPS) Fix() (model.GPSFix, error) {
	now := time.Now().UTC()
	f := g.fix
	f.Hour, f.Minute, f.Second = now.Hour(), now.Minute(), now.Second()
	return f, nil
}

// SimModem reads inbound messages from a spool file (one "from|body" line
// per message, consumed on read) and appends outbound messages to a log
// file.
type SimModem struct {
	InboundSpool string
	OutboundLog  string

	queue []sms.Inbound
}

func NewSimModem(inboundSpool, outboundLog string) *SimModem {
	return &SimModem{InboundSpool: inboundSpool, OutboundLog: outboundLog}
}

func (m *SimModem) SendSMS(to, body string) error {
	line := fmt.Sprintf("[%s] to %s: %s\n", time.Now().Format(time.RFC3339), to, strings.ReplaceAll(body, "\n", " / "))
	if m.OutboundLog == "" {
		log.Info().Str("to", to).Str("body", body).Msg("sim modem outbound")
		return nil
	}
	f, err := os.OpenFile(m.OutboundLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open outbound log: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}

func (m *SimModem) ReceiveSMS() (*sms.Inbound, error) {
	if len(m.queue) == 0 {
		if err := m.drainSpool(); err != nil {
			return nil, err
		}
	}
	if len(m.queue) == 0 {
		return nil, nil
	}
	in := m.queue[0]
	m.queue = m.queue[1:]
	return &in, nil
}

func (m *SimModem) drainSpool() error {
	if m.InboundSpool == "" {
		return nil
	}
	data, err := os.ReadFile(m.InboundSpool)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read inbound spool: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	// Consume the spool so each message is delivered once.
	if err := os.Truncate(m.InboundSpool, 0); err != nil {
		return fmt.Errorf("truncate inbound spool: %w", err)
	}

	now := time.Now()
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		from, body, found := strings.Cut(line, "|")
		if !found {
			log.Warn().Str("line", line).Msg("Malformed spool line, expected from|body")
			continue
		}
		m.queue = append(m.queue, sms.Inbound{From: from, Body: body, ReceivedAt: now})
	}
	return nil
}

func (m *SimModem) BatteryStatus() (model.Battery, error) {
	return model.Battery{Level: 100, Charging: true}, nil
}

// SimADC reports a healthy 12V supply and a dry flood sensor.
type SimADC struct {
	SupplyVolts float64
	FloodRaw    float64
}

func NewSimADC() *SimADC {
	return &SimADC{SupplyVolts: 12.5, FloodRaw: 5}
}

func (a *SimADC) ReadSupply() (model.SupplyReading, error) {
	return model.SupplyReading{
		Raw:           a.SupplyVolts / 10.54123 / 4.97 * 1023,
		AnalogVoltage: a.SupplyVolts / 10.54123,
		InputVoltage:  a.SupplyVolts,
	}, nil
}

func (a *SimADC) ReadFlood() (model.FloodReading, error) {
	return model.FloodReading{
		Raw:           a.FloodRaw,
		AnalogVoltage: a.FloodRaw / 1023 * 4.97,
	}, nil
}

// SimUpdater only logs; the bench rig has no OTA path.
type SimUpdater struct{}

func (SimUpdater) CheckAndApply(force bool) error {
	log.Info().Bool("forced", force).Msg("sim updater: no firmware channel on the bench")
	return nil
}

// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/rajeshgoli/office-automation/pkg/eventbus"
)

// ThresholdsConfig holds the tunables of the decision pipeline. Durations
// are in the units their names state. Zero values are replaced with
// defaults by LoadFile.
type ThresholdsConfig struct {
	// occupancy
	DoorOpenModeSeconds        int `json:"door_open_mode_seconds"`
	DepartureVerifySeconds     int `json:"departure_verify_seconds"`
	DoorOpenAwaySeconds        int `json:"door_open_away_seconds"`
	EvaluationIntervalSeconds  int `json:"evaluation_interval_seconds"`

	// CO2 ventilation
	CO2OnPPM       float64 `json:"co2_on_ppm"`
	CO2OffPPM      float64 `json:"co2_off_ppm"`
	CO2FloorPPM    float64 `json:"co2_floor_ppm"`
	AwayRampMins   int     `json:"away_ramp_minutes"`
	PlateauRatePPM float64 `json:"plateau_rate_ppm_per_min"`
	PlateauMins    int     `json:"plateau_minutes"`
	RateTurboPPM   float64 `json:"rate_turbo_ppm_per_min"`
	RateMediumPPM  float64 `json:"rate_medium_ppm_per_min"`
	RateWindowMins int     `json:"rate_window_minutes"`

	// tVOC spike detection
	VOCAbsoluteIndex    float64 `json:"voc_absolute_index"`
	SpikeWindowSize     int     `json:"spike_window_size"`
	SpikeBaselineSize   int     `json:"spike_baseline_size"`
	SpikeBaselineDelta  float64 `json:"spike_baseline_delta"`
	SpikeMinTrigger     float64 `json:"spike_min_trigger"`
	SpikeMinPeak        float64 `json:"spike_min_peak"`
	SpikeClearTarget    float64 `json:"spike_clear_target"`
	SpikeCooldownMins   int     `json:"spike_cooldown_minutes"`

	// stale-air flush while away
	StaleFlushAfterHours int `json:"stale_flush_after_hours"`
	StaleFlushMins       int `json:"stale_flush_minutes"`

	// manual overrides
	OverrideTTLMins int `json:"override_ttl_minutes"`
}

type HeatingConfig struct {
	CriticalFloorTempC  float64 `json:"critical_floor_temp_c"`
	MinHeatSuspendTempC float64 `json:"min_heat_suspend_temp_c"`
	SetpointC           float64 `json:"setpoint_c"`
	BandC               float64 `json:"band_c"`
	OccupancyStartHour  int     `json:"occupancy_start_hour"`
	OccupancyEndHour    int     `json:"occupancy_end_hour"`
}

type AirMonitorConfig struct {
	BrokerAddr string `json:"broker_addr"`
	ClientID   string `json:"client_id"`
	MAC        string `json:"mac"`
}

type ERVConfig struct {
	// Path to the modbus register-map yaml. Empty means log-only mode.
	ModbusConfig string `json:"modbus_config"`
}

type HVACConfig struct {
	// HTTP bridge address for the heat relay. Empty means log-only mode.
	BridgeAddr string `json:"bridge_addr"`
}

type HistoryConfig struct {
	DBPath string `json:"db_path"`
}

type Config struct {
	ListenAddr string           `json:"listen_addr"`
	Thresholds ThresholdsConfig `json:"thresholds"`
	Heating    HeatingConfig    `json:"heating"`
	AirMonitor AirMonitorConfig `json:"air_monitor"`
	ERV        ERVConfig        `json:"erv"`
	HVAC       HVACConfig       `json:"hvac"`
	History    HistoryConfig    `json:"history"`

	// not loaded from file, but added here to
	// pass to all services alongside config
	EventBus *eventbus.Bus
	RootDir  string
}

func LoadFile(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("open config: %v", err)
	}
	defer f.Close()
	var c Config
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		log.Fatalf("decode config: %v", err)
	}
	applyDefaults(&c)
	return &c
}

// Default returns a config with all defaults applied, for tests and for
// running without a config file.
func Default() *Config {
	var c Config
	applyDefaults(&c)
	return &c
}

func applyDefaults(c *Config) {
	t := &c.Thresholds
	if c.ListenAddr == "" {
		c.ListenAddr = ":80"
	}
	if t.DoorOpenModeSeconds == 0 {
		t.DoorOpenModeSeconds = 300
	}
	if t.DepartureVerifySeconds == 0 {
		t.DepartureVerifySeconds = 10
	}
	if t.DoorOpenAwaySeconds == 0 {
		t.DoorOpenAwaySeconds = 300
	}
	if t.EvaluationIntervalSeconds == 0 {
		t.EvaluationIntervalSeconds = 60
	}
	if t.CO2OnPPM == 0 {
		t.CO2OnPPM = 2000
	}
	if t.CO2OffPPM == 0 {
		t.CO2OffPPM = 1800
	}
	if t.CO2FloorPPM == 0 {
		t.CO2FloorPPM = 600
	}
	if t.AwayRampMins == 0 {
		t.AwayRampMins = 30
	}
	if t.PlateauRatePPM == 0 {
		t.PlateauRatePPM = 0.5
	}
	if t.PlateauMins == 0 {
		t.PlateauMins = 10
	}
	if t.RateTurboPPM == 0 {
		t.RateTurboPPM = 8
	}
	if t.RateMediumPPM == 0 {
		t.RateMediumPPM = 2
	}
	if t.RateWindowMins == 0 {
		t.RateWindowMins = 15
	}
	if t.VOCAbsoluteIndex == 0 {
		t.VOCAbsoluteIndex = 250
	}
	if t.SpikeWindowSize == 0 {
		t.SpikeWindowSize = 15
	}
	if t.SpikeBaselineSize == 0 {
		t.SpikeBaselineSize = 5
	}
	if t.SpikeBaselineDelta == 0 {
		t.SpikeBaselineDelta = 60
	}
	if t.SpikeMinTrigger == 0 {
		t.SpikeMinTrigger = 150
	}
	if t.SpikeMinPeak == 0 {
		t.SpikeMinPeak = 200
	}
	if t.SpikeClearTarget == 0 {
		t.SpikeClearTarget = 130
	}
	if t.SpikeCooldownMins == 0 {
		t.SpikeCooldownMins = 120
	}
	if t.StaleFlushAfterHours == 0 {
		t.StaleFlushAfterHours = 8
	}
	if t.StaleFlushMins == 0 {
		t.StaleFlushMins = 30
	}
	if t.OverrideTTLMins == 0 {
		t.OverrideTTLMins = 30
	}

	h := &c.Heating
	if h.CriticalFloorTempC == 0 {
		h.CriticalFloorTempC = 15
	}
	if h.MinHeatSuspendTempC == 0 {
		h.MinHeatSuspendTempC = 18
	}
	if h.SetpointC == 0 {
		h.SetpointC = 21
	}
	if h.BandC == 0 {
		h.BandC = 0.5
	}
	if h.OccupancyStartHour == 0 {
		h.OccupancyStartHour = 7
	}
	if h.OccupancyEndHour == 0 {
		h.OccupancyEndHour = 19
	}

	if c.History.DBPath == "" {
		c.History.DBPath = "var/cache/climate.db"
	}
}

// Durations derived from the integer config fields.

func (t ThresholdsConfig) DoorOpenMode() time.Duration {
	return time.Duration(t.DoorOpenModeSeconds) * time.Second
}

func (t ThresholdsConfig) DepartureVerify() time.Duration {
	return time.Duration(t.DepartureVerifySeconds) * time.Second
}

func (t ThresholdsConfig) DoorOpenAway() time.Duration {
	return time.Duration(t.DoorOpenAwaySeconds) * time.Second
}

func (t ThresholdsConfig) EvaluationInterval() time.Duration {
	return time.Duration(t.EvaluationIntervalSeconds) * time.Second
}

func (t ThresholdsConfig) AwayRamp() time.Duration {
	return time.Duration(t.AwayRampMins) * time.Minute
}

func (t ThresholdsConfig) Plateau() time.Duration {
	return time.Duration(t.PlateauMins) * time.Minute
}

func (t ThresholdsConfig) RateWindow() time.Duration {
	return time.Duration(t.RateWindowMins) * time.Minute
}

func (t ThresholdsConfig) SpikeCooldown() time.Duration {
	return time.Duration(t.SpikeCooldownMins) * time.Minute
}

func (t ThresholdsConfig) StaleFlushAfter() time.Duration {
	return time.Duration(t.StaleFlushAfterHours) * time.Hour
}

func (t ThresholdsConfig) StaleFlush() time.Duration {
	return time.Duration(t.StaleFlushMins) * time.Minute
}

func (t ThresholdsConfig) OverrideTTL() time.Duration {
	return time.Duration(t.OverrideTTLMins) * time.Minute
}

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

package events

import (
	"time"

	"github.com/rajeshgoli/office-automation/pkg/eventbus"
)

var (
	TopicDoor        eventbus.Topic = "door"
	TopicWindow      eventbus.Topic = "window"
	TopicMotion      eventbus.Topic = "motion"
	TopicActivity    eventbus.Topic = "activity"
	TopicAirQuality  eventbus.Topic = "air_quality"
	TopicOverride    eventbus.Topic = "override"
	TopicOccupancy   eventbus.Topic = "occupancy"
	TopicVentilation eventbus.Topic = "ventilation"
	TopicHeating     eventbus.Topic = "heating"
	TopicStatus      eventbus.Topic = "status"
)

// State is the room occupancy state.
type State string

const (
	Present State = "present"
	Away    State = "away"
)

// FanSpeed is an ERV speed preset.
type FanSpeed string

const (
	FanOff    FanSpeed = "off"
	FanQuiet  FanSpeed = "quiet"
	FanMedium FanSpeed = "medium"
	FanTurbo  FanSpeed = "turbo"
)

// Rank orders fan speeds for comparison: off < quiet < medium < turbo.
func (f FanSpeed) Rank() int {
	switch f {
	case FanQuiet:
		return 1
	case FanMedium:
		return 2
	case FanTurbo:
		return 3
	default:
		return 0
	}
}

type DoorUpdate struct {
	Open bool
	Time time.Time
}

type WindowUpdate struct {
	Open bool
	Time time.Time
}

type MotionUpdate struct {
	Time time.Time
}

// ActivityUpdate carries workstation activity reported by the desktop
// agent: the last time the machine saw input, and whether an external
// monitor is attached (a docked laptop means someone is at the desk).
type ActivityUpdate struct {
	LastActive      time.Time
	ExternalMonitor bool
	Time            time.Time
}

// AirQualityUpdate is a sensor report. Fields are pointers because the
// monitor does not include every metric in every report.
type AirQualityUpdate struct {
	CO2PPM    *float64
	TVOCIndex *float64
	TempC     *float64
	Humidity  *float64
	Time      time.Time
}

// OverrideCommand is a manual command from the dashboard. Target is
// "erv" or "hvac". For "erv" Value is a fan speed name, for "hvac" it is
// "suspend" or "resume". TTL bounds how long the override holds.
type OverrideCommand struct {
	Target string
	Value  string
	TTL    time.Duration
	Time   time.Time
}

type OccupancyChanged struct {
	From State
	To   State
	Time time.Time
}

// VentilationDecision is published whenever the target ERV speed changes.
type VentilationDecision struct {
	Speed     FanSpeed
	Reason    string
	ExpiresAt *time.Time
	Time      time.Time
}

// HeatingDecision is published whenever heat-suspend state changes.
type HeatingDecision struct {
	Suspended bool
	Reason    string
	Time      time.Time
}

// StatusUpdate is the dashboard snapshot, refreshed by the decision
// pipeline after each processed event.
type StatusUpdate struct {
	Occupancy       State     `json:"occupancy"`
	DoorOpen        bool      `json:"door_open"`
	WindowOpen      bool      `json:"window_open"`
	DoorOpenMode    bool      `json:"door_open_mode"`
	CO2PPM          *float64  `json:"co2_ppm,omitempty"`
	TVOCIndex       *float64  `json:"tvoc_index,omitempty"`
	TempC           *float64  `json:"temp_c,omitempty"`
	Humidity        *float64  `json:"humidity,omitempty"`
	FanSpeed        FanSpeed  `json:"fan_speed"`
	FanReason       string    `json:"fan_reason"`
	HeatSuspended   bool      `json:"heat_suspended"`
	HeatReason      string    `json:"heat_reason"`
	SpikeActive     bool      `json:"spike_active"`
	OverrideActive  bool      `json:"override_active"`
	MotionLastSeen  time.Time `json:"motion_last_seen"`
	ActivityLastAt  time.Time `json:"activity_last_at"`
	ExternalMonitor bool      `json:"external_monitor"`
	Time            time.Time `json:"time"`
}

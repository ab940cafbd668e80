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

package heating

import (
	"time"

	"github.com/rajeshgoli/office-automation/internal/config"
	"github.com/rajeshgoli/office-automation/internal/events"
	"github.com/rajeshgoli/office-automation/pkg/logger"
)

type Input struct {
	Now       time.Time
	State     events.State
	VentSpeed events.FanSpeed
	TempC     *float64

	// Active manual HVAC override, nil if none or expired.
	Override *Override
}

type Override struct {
	Suspend   bool
	ExpiresAt time.Time
}

// Coordinator decides when to suspend heating. The core case: the room
// is empty and the ERV is exhausting air, so heating that air is waste.
// An absolute temperature floor outranks everything, overrides included,
// to protect pipes and equipment.
type Coordinator struct {
	log  *logger.Logger
	conf config.HeatingConfig

	suspended bool
	reason    string
}

func New(conf config.HeatingConfig) *Coordinator {
	return &Coordinator{
		log:    logger.New("Heating"),
		conf:   conf,
		reason: "startup",
	}
}

func (c *Coordinator) Suspended() bool { return c.suspended }
func (c *Coordinator) Reason() string  { return c.reason }

// Decide re-evaluates suspend state. Returns a decision only on change;
// the commands downstream are idempotent but there is no point repeating
// them on every sensor tick.
func (c *Coordinator) Decide(in Input) *events.HeatingDecision {
	want, reason := c.evaluate(in)
	if want == c.suspended {
		return nil
	}
	c.suspended = want
	c.reason = reason
	c.log.Info("heating suspended=%v (%s)", want, reason)
	return &events.HeatingDecision{Suspended: want, Reason: reason, Time: in.Now}
}

func (c *Coordinator) evaluate(in Input) (bool, string) {

	// temperature floor always heats
	if in.TempC != nil && *in.TempC < c.conf.CriticalFloorTempC {
		return false, "below critical floor temp"
	}

	if in.Override != nil {
		if in.Override.Suspend {
			return true, "manual override"
		}
		return false, "manual override"
	}

	if in.State == events.Away && in.VentSpeed != events.FanOff {
		if in.TempC == nil {
			c.log.Warn("no temperature reading, not suspending heat")
			return c.suspended, c.reason
		}
		if *in.TempC > c.conf.MinHeatSuspendTempC {
			return true, "ventilating while away"
		}
		return c.suspended, c.reason
	}

	if in.State == events.Present {
		return false, "occupied"
	}

	if in.VentSpeed == events.FanOff && c.withinOccupancyHours(in.Now) {
		return false, "ventilation stopped"
	}

	return c.suspended, c.reason
}

func (c *Coordinator) withinOccupancyHours(now time.Time) bool {
	h := now.Hour()
	return h >= c.conf.OccupancyStartHour && h < c.conf.OccupancyEndHour
}

// BandCmd is a heat-band command for the relay executor.
type BandCmd int

const (
	BandHold BandCmd = iota
	BandHeatOn
	BandHeatOff
)

// BandAction is the setpoint hysteresis band for the heat relay: heat on
// below setpoint-band, off above setpoint+band, hold in between. A
// suspended coordinator forces the relay off regardless of temperature.
func BandAction(tempC, setpointC, bandC float64, suspended bool) BandCmd {
	if suspended {
		return BandHeatOff
	}
	if tempC <= setpointC-bandC {
		return BandHeatOn
	}
	if tempC >= setpointC+bandC {
		return BandHeatOff
	}
	return BandHold
}

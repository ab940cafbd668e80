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

package vent

import (
	"fmt"
	"time"

	"github.com/rajeshgoli/office-automation/internal/config"
	"github.com/rajeshgoli/office-automation/internal/events"
	"github.com/rajeshgoli/office-automation/pkg/logger"
)

// Input is the snapshot the engine decides from. CO2 and VOC are nil
// when no reading is available; the engine skips those rules rather
// than reusing stale values.
type Input struct {
	Now        time.Time
	State      events.State
	DoorOpen   bool
	WindowOpen bool
	CO2        *float64
	VOC        *float64

	SpikeClearing bool
	SpikePeak     float64

	// Active manual ERV override, nil if none or expired.
	Override *Override
}

type Override struct {
	Speed     events.FanSpeed
	ExpiresAt time.Time
}

type co2Sample struct {
	at  time.Time
	ppm float64
}

// awayState exists only while the room is AWAY. It tracks the forced
// purge start, the trailing CO2 history the fall rate is computed from,
// and plateau progress.
type awayState struct {
	enteredAt      time.Time
	history        []co2Sample
	plateauSince   time.Time // zero when rate is above the plateau band
	plateauReached bool
}

// Engine turns (occupancy, air readings, spike state, override) into an
// ERV speed. Rules are strictly ordered; the first match wins. The
// window/door interlock outranks everything, manual override included:
// running the ERV against an open window short-circuits the air path.
type Engine struct {
	log  *logger.Logger
	conf config.ThresholdsConfig

	speed  events.FanSpeed
	reason string

	// hysteresis memory for the PRESENT CO2 rule
	co2VentOn bool

	away *awayState

	// stale-air flush bookkeeping
	roomClosedSince time.Time
	nextFlushAt     time.Time
}

func New(conf config.ThresholdsConfig) *Engine {
	return &Engine{
		log:    logger.New("Ventilation"),
		conf:   conf,
		speed:  events.FanOff,
		reason: "startup",
	}
}

func (e *Engine) Speed() events.FanSpeed { return e.speed }
func (e *Engine) Reason() string         { return e.reason }

// EnterAway starts the away two-phase ramp. Hysteresis memory from the
// occupied period is discarded so a later PRESENT starts clean.
func (e *Engine) EnterAway(now time.Time) {
	e.co2VentOn = false
	e.away = &awayState{enteredAt: now}
}

// EnterPresent discards the away ramp state.
func (e *Engine) EnterPresent() {
	e.away = nil
	e.co2VentOn = false
}

// Decide evaluates the rule chain and returns the decision. changed is
// true only when the target speed differs from the previous decision.
// Reasons embed live readings, so reason churn at a steady speed is
// logged rather than republished.
func (e *Engine) Decide(in Input) (events.VentilationDecision, bool) {
	e.trackRoomClosed(in)
	if in.State == events.Away && in.CO2 != nil {
		e.recordCO2(in.Now, *in.CO2)
	}

	speed, reason, expires := e.evaluate(in)

	changed := speed != e.speed
	if changed {
		e.log.Info("erv %s (%s)", speed, reason)
	} else if reason != e.reason {
		e.log.Debug("erv %s (%s)", speed, reason)
	}
	e.speed = speed
	e.reason = reason

	return events.VentilationDecision{
		Speed:     speed,
		Reason:    reason,
		ExpiresAt: expires,
		Time:      in.Now,
	}, changed
}

func (e *Engine) evaluate(in Input) (events.FanSpeed, string, *time.Time) {

	// 1. safety interlock beats everything, override included
	if in.DoorOpen || in.WindowOpen {
		return events.FanOff, "interlock", nil
	}

	// 2. manual override
	if in.Override != nil {
		exp := in.Override.ExpiresAt
		return in.Override.Speed, "manual override", &exp
	}

	// 3. spike clearing holds medium until the index falls back under
	// the clear target, regardless of the absolute threshold rule
	if in.SpikeClearing {
		return events.FanMedium, fmt.Sprintf("voc spike clearing (peak %.0f)", in.SpikePeak), nil
	}

	// 4. absolute VOC threshold
	if in.VOC == nil {
		e.log.Warn("no voc reading, skipping voc threshold rule")
	} else if *in.VOC >= e.conf.VOCAbsoluteIndex {
		return events.FanMedium, fmt.Sprintf("voc %.0f above threshold", *in.VOC), nil
	}

	if in.State == events.Present {
		return e.evaluatePresent(in)
	}
	return e.evaluateAway(in)
}

// evaluatePresent is the occupied CO2 hysteresis band: on at CO2OnPPM,
// off below CO2OffPPM, hold in between. The band prevents chatter when
// readings oscillate near the boundary.
func (e *Engine) evaluatePresent(in Input) (events.FanSpeed, string, *time.Time) {
	if in.CO2 == nil {
		e.log.Warn("no co2 reading while present, holding ventilation off")
		e.co2VentOn = false
		return events.FanOff, "no co2 data", nil
	}

	co2 := *in.CO2
	if e.co2VentOn {
		if co2 < e.conf.CO2OffPPM {
			e.co2VentOn = false
		}
	} else {
		if co2 >= e.conf.CO2OnPPM {
			e.co2VentOn = true
		}
	}

	if e.co2VentOn {
		return events.FanQuiet, fmt.Sprintf("co2 %.0f in hysteresis band", co2), nil
	}
	return events.FanOff, "co2 nominal", nil
}

// evaluateAway is the two-phase ramp: a forced purge right after
// departure, then speed mapped from the CO2 fall rate, ending in a
// plateau stop once extra ventilation yields nothing.
func (e *Engine) evaluateAway(in Input) (events.FanSpeed, string, *time.Time) {
	if e.away == nil {
		// restored into AWAY at startup without a transition
		e.away = &awayState{enteredAt: in.Now}
	}
	aw := e.away

	if aw.plateauReached {
		return e.maybeStaleFlush(in, events.FanOff, "baseline reached")
	}

	// phase 1: forced purge
	if in.Now.Sub(aw.enteredAt) < e.conf.AwayRamp() {
		return events.FanTurbo, "away purge", nil
	}

	// phase 2: adaptive, driven by the CO2 fall rate
	rate, ok := e.fallRate()
	if !ok {
		e.log.Warn("co2 fall rate unknown, holding purge")
		return events.FanTurbo, "away purge (rate unknown)", nil
	}

	switch {
	case rate > e.conf.RateTurboPPM:
		aw.plateauSince = time.Time{}
		return events.FanTurbo, fmt.Sprintf("co2 falling %.1f ppm/min", rate), nil

	case rate >= e.conf.RateMediumPPM:
		aw.plateauSince = time.Time{}
		return events.FanMedium, fmt.Sprintf("co2 falling %.1f ppm/min", rate), nil

	case rate >= e.conf.PlateauRatePPM:
		aw.plateauSince = time.Time{}
		return events.FanQuiet, fmt.Sprintf("co2 falling %.1f ppm/min", rate), nil
	}

	// below the plateau rate: start or continue the confirmation window
	if aw.plateauSince.IsZero() {
		aw.plateauSince = in.Now
	}
	if in.Now.Sub(aw.plateauSince) < e.conf.Plateau() {
		return events.FanQuiet, "approaching baseline", nil
	}

	aw.plateauReached = true
	if in.CO2 != nil && *in.CO2 < e.conf.CO2FloorPPM {
		// A flatline under outdoor-ambient level means the sensor is
		// suspect. The stop still happens; flag it.
		e.log.Warn("plateau at %.0f ppm, below plausible ambient floor %.0f", *in.CO2, e.conf.CO2FloorPPM)
	}
	return e.maybeStaleFlush(in, events.FanOff, "baseline reached")
}

// maybeStaleFlush lifts an OFF decision to a medium flush when the room
// has been sealed long enough for the air to go stale. It only ever
// upgrades OFF; any stronger speed stands.
func (e *Engine) maybeStaleFlush(in Input, speed events.FanSpeed, reason string) (events.FanSpeed, string, *time.Time) {
	if speed.Rank() > events.FanOff.Rank() {
		return speed, reason, nil
	}
	if e.roomClosedSince.IsZero() {
		return speed, reason, nil
	}
	if in.Now.Sub(e.roomClosedSince) < e.conf.StaleFlushAfter() {
		return speed, reason, nil
	}

	if e.nextFlushAt.IsZero() {
		e.nextFlushAt = e.roomClosedSince.Add(e.conf.StaleFlushAfter())
	}
	// advance past windows we slept through
	for in.Now.Sub(e.nextFlushAt) >= e.conf.StaleFlush() {
		e.nextFlushAt = e.nextFlushAt.Add(e.conf.StaleFlushAfter())
	}

	if !in.Now.Before(e.nextFlushAt) && in.Now.Sub(e.nextFlushAt) < e.conf.StaleFlush() {
		return events.FanMedium, "stale air flush", nil
	}
	return speed, reason, nil
}

// trackRoomClosed maintains the continuously-closed-since stamp the
// stale flush keys off. Opening the door or window resets the cycle.
func (e *Engine) trackRoomClosed(in Input) {
	if in.DoorOpen || in.WindowOpen {
		e.roomClosedSince = time.Time{}
		e.nextFlushAt = time.Time{}
		return
	}
	if e.roomClosedSince.IsZero() {
		e.roomClosedSince = in.Now
	}
}

// recordCO2 appends to the trailing history and prunes it to the rate
// window.
func (e *Engine) recordCO2(now time.Time, ppm float64) {
	if e.away == nil {
		return
	}
	aw := e.away
	aw.history = append(aw.history, co2Sample{at: now, ppm: ppm})

	cutoff := now.Add(-e.conf.RateWindow())
	i := 0
	for i < len(aw.history) && aw.history[i].at.Before(cutoff) {
		i++
	}
	aw.history = aw.history[i:]
}

// fallRate computes the CO2 fall rate in ppm/min over the trailing
// history. ok is false with fewer than two samples.
func (e *Engine) fallRate() (float64, bool) {
	if e.away == nil || len(e.away.history) < 2 {
		return 0, false
	}
	h := e.away.history
	first, last := h[0], h[len(h)-1]
	mins := last.at.Sub(first.at).Minutes()
	if mins <= 0 {
		return 0, false
	}
	return (first.ppm - last.ppm) / mins, true
}

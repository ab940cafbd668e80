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

package pipeline

import (
	"context"
	"time"

	"github.com/rajeshgoli/office-automation/internal/config"
	"github.com/rajeshgoli/office-automation/internal/events"
	"github.com/rajeshgoli/office-automation/internal/heating"
	"github.com/rajeshgoli/office-automation/internal/occupancy"
	"github.com/rajeshgoli/office-automation/internal/spike"
	"github.com/rajeshgoli/office-automation/internal/vent"
	"github.com/rajeshgoli/office-automation/pkg/logger"
	"github.com/rajeshgoli/office-automation/pkg/timers"
)

// Timer keys owned by the pipeline itself.
const (
	KeyEvalTick     timers.Key = "evaluation_tick"
	KeyERVOverride  timers.Key = "erv_override_expiry"
	KeyHVACOverride timers.Key = "hvac_override_expiry"
)

// RestoreState seeds the pipeline from persisted history at startup.
type RestoreState struct {
	State   events.State
	Reading *events.AirQualityUpdate
}

// Pipeline is the single owner of all decision state. Every input,
// whether a sensor report, a manual command, or a timer fire, is
// serialized through one goroutine, so the tracker, detector, and
// engines need no locks. Downstream consumers hear about results on the
// bus; nothing reaches into the pipeline's state directly.
type Pipeline struct {
	conf *config.Config
	log  *logger.Logger

	clock  timers.Clock
	timer  *timers.Service
	fireCh chan timers.Key

	tracker  *occupancy.Tracker
	detector *spike.Detector
	vent     *vent.Engine
	heat     *heating.Coordinator

	// cached readings, nil until the first report carries them
	co2      *float64
	voc      *float64
	temp     *float64
	humidity *float64
	airAt    time.Time

	ervOverride  *vent.Override
	hvacOverride *heating.Override

	lastVent events.VentilationDecision
}

func New(conf *config.Config, clock timers.Clock, restore RestoreState) *Pipeline {
	p := &Pipeline{
		conf:   conf,
		log:    logger.New("Pipeline"),
		clock:  clock,
		fireCh: make(chan timers.Key, 64),
	}
	p.timer = timers.New(clock, func(k timers.Key) {
		select {
		case p.fireCh <- k:
		default:
			// the fire queue backing up means the loop is wedged;
			// dropping a fire here would silently lose a verification
			// window, which has no safe recovery
			p.log.Fatal("timer fire queue full, dropping %s", k)
		}
	})

	p.tracker = occupancy.New(conf.Thresholds, p.timer, restore.State)
	p.detector = spike.New(conf.Thresholds)
	p.vent = vent.New(conf.Thresholds)
	p.heat = heating.New(conf.Heating)

	if restore.State == events.Away {
		p.vent.EnterAway(clock.Now())
	}
	if restore.Reading != nil {
		p.applyReading(*restore.Reading, false)
	}
	return p
}

func (p *Pipeline) Run(ctx context.Context) {
	p.log.Info("Running...")
	defer p.log.Info("Stopped")

	bus := p.conf.EventBus
	doorCh, _ := bus.SubscribeQueue(ctx, events.TopicDoor, 16)
	windowCh, _ := bus.SubscribeQueue(ctx, events.TopicWindow, 16)
	motionCh, _ := bus.SubscribeQueue(ctx, events.TopicMotion, 16)
	activityCh, _ := bus.SubscribeQueue(ctx, events.TopicActivity, 16)
	airCh, _ := bus.SubscribeQueue(ctx, events.TopicAirQuality, 16)
	overrideCh, _ := bus.SubscribeQueue(ctx, events.TopicOverride, 16)

	p.timer.Schedule(KeyEvalTick, p.conf.Thresholds.EvaluationInterval())
	p.evaluate()

	for {
		select {
		case ev := <-doorCh:
			p.handleOccupancyChange(p.tracker.OnDoor(ev.(events.DoorUpdate)))
			p.evaluate()

		case ev := <-windowCh:
			p.tracker.OnWindow(ev.(events.WindowUpdate))
			p.evaluate()

		case ev := <-motionCh:
			p.handleOccupancyChange(p.tracker.OnMotion(ev.(events.MotionUpdate)))
			p.evaluate()

		case ev := <-activityCh:
			p.handleOccupancyChange(p.tracker.OnActivity(ev.(events.ActivityUpdate)))
			p.evaluate()

		case ev := <-airCh:
			p.applyReading(ev.(events.AirQualityUpdate), true)
			p.evaluate()

		case ev := <-overrideCh:
			p.applyOverride(ev.(events.OverrideCommand))
			p.evaluate()

		case key := <-p.fireCh:
			p.handleTimerFire(key)
			p.evaluate()

		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) handleTimerFire(key timers.Key) {
	now := p.clock.Now()
	switch key {

	case occupancy.KeyDoorOpenMode, occupancy.KeyDepartureVerify, occupancy.KeyDoorOpenAway:
		p.handleOccupancyChange(p.tracker.OnTimerFire(key, now))

	case KeyEvalTick:
		p.timer.Schedule(KeyEvalTick, p.conf.Thresholds.EvaluationInterval())

	case KeyERVOverride:
		if p.ervOverride != nil && !now.Before(p.ervOverride.ExpiresAt) {
			p.log.Info("erv override expired")
			p.ervOverride = nil
		}

	case KeyHVACOverride:
		if p.hvacOverride != nil && !now.Before(p.hvacOverride.ExpiresAt) {
			p.log.Info("hvac override expired")
			p.hvacOverride = nil
		}
	}
}

func (p *Pipeline) handleOccupancyChange(ch *events.OccupancyChanged) {
	if ch == nil {
		return
	}
	if ch.To == events.Away {
		// the pre-departure VOC baseline does not describe the empty
		// room; the away ramp starts a fresh CO2 history
		p.detector.Reset()
		p.vent.EnterAway(p.clock.Now())
	} else {
		p.vent.EnterPresent()
	}
	p.conf.EventBus.Publish(events.TopicOccupancy, *ch)
}

// applyReading updates the cached readings and, when live, feeds the
// VOC index to the spike detector. Restored readings skip the detector:
// they are old air.
func (p *Pipeline) applyReading(ev events.AirQualityUpdate, live bool) {
	if ev.Time.Before(p.airAt) {
		p.log.Debug("dropping out-of-order air reading: %v < %v", ev.Time, p.airAt)
		return
	}
	p.airAt = ev.Time

	if ev.CO2PPM != nil {
		p.co2 = ev.CO2PPM
	}
	if ev.TVOCIndex != nil {
		p.voc = ev.TVOCIndex
		if live {
			if sp := p.detector.Observe(*ev.TVOCIndex, ev.Time); sp != nil {
				p.log.Debug("spike event: kind=%d value=%.0f peak=%.0f", sp.Kind, sp.Value, sp.Peak)
			}
		}
	}
	if ev.TempC != nil {
		p.temp = ev.TempC
	}
	if ev.Humidity != nil {
		p.humidity = ev.Humidity
	}
}

func (p *Pipeline) applyOverride(cmd events.OverrideCommand) {
	now := p.clock.Now()
	ttl := cmd.TTL
	if ttl <= 0 {
		ttl = p.conf.Thresholds.OverrideTTL()
	}
	expires := now.Add(ttl)

	switch cmd.Target {
	case "erv":
		speed := events.FanSpeed(cmd.Value)
		switch speed {
		case events.FanOff, events.FanQuiet, events.FanMedium, events.FanTurbo:
		default:
			p.log.Error("rejecting erv override with value %q", cmd.Value)
			return
		}
		p.ervOverride = &vent.Override{Speed: speed, ExpiresAt: expires}
		p.timer.Schedule(KeyERVOverride, ttl)
		p.log.Info("erv override: %s for %v", speed, ttl)

	case "hvac":
		switch cmd.Value {
		case "suspend":
			p.hvacOverride = &heating.Override{Suspend: true, ExpiresAt: expires}
		case "resume":
			p.hvacOverride = &heating.Override{Suspend: false, ExpiresAt: expires}
		default:
			p.log.Error("rejecting hvac override with value %q", cmd.Value)
			return
		}
		p.timer.Schedule(KeyHVACOverride, ttl)
		p.log.Info("hvac override: %s for %v", cmd.Value, ttl)

	default:
		p.log.Error("rejecting override with target %q", cmd.Target)
	}
}

// evaluate runs the decision chain against current state and publishes
// whatever changed, plus a fresh status snapshot.
func (p *Pipeline) evaluate() {
	now := p.clock.Now()
	sensors := p.tracker.Sensors()

	// expired overrides are dropped lazily as well as by timer
	if p.ervOverride != nil && !now.Before(p.ervOverride.ExpiresAt) {
		p.ervOverride = nil
	}
	if p.hvacOverride != nil && !now.Before(p.hvacOverride.ExpiresAt) {
		p.hvacOverride = nil
	}

	decision, changed := p.vent.Decide(vent.Input{
		Now:           now,
		State:         p.tracker.State(),
		DoorOpen:      sensors.DoorOpen,
		WindowOpen:    sensors.WindowOpen,
		CO2:           p.co2,
		VOC:           p.voc,
		SpikeClearing: p.detector.Clearing(),
		SpikePeak:     p.detector.Peak(),
		Override:      p.ervOverride,
	})
	if changed {
		p.conf.EventBus.Publish(events.TopicVentilation, decision)
	}
	p.lastVent = decision

	if hd := p.heat.Decide(heating.Input{
		Now:       now,
		State:     p.tracker.State(),
		VentSpeed: decision.Speed,
		TempC:     p.temp,
		Override:  p.hvacOverride,
	}); hd != nil {
		p.conf.EventBus.Publish(events.TopicHeating, *hd)
	}

	p.conf.EventBus.Publish(events.TopicStatus, p.status(now))
}

func (p *Pipeline) status(now time.Time) events.StatusUpdate {
	sensors := p.tracker.Sensors()
	return events.StatusUpdate{
		Occupancy:       p.tracker.State(),
		DoorOpen:        sensors.DoorOpen,
		WindowOpen:      sensors.WindowOpen,
		DoorOpenMode:    p.tracker.DoorOpenMode(),
		CO2PPM:          p.co2,
		TVOCIndex:       p.voc,
		TempC:           p.temp,
		Humidity:        p.humidity,
		FanSpeed:        p.lastVent.Speed,
		FanReason:       p.lastVent.Reason,
		HeatSuspended:   p.heat.Suspended(),
		HeatReason:      p.heat.Reason(),
		SpikeActive:     p.detector.Active() || p.detector.Clearing(),
		OverrideActive:  p.ervOverride != nil || p.hvacOverride != nil,
		MotionLastSeen:  sensors.MotionLastSeen,
		ActivityLastAt:  sensors.MacLastActive,
		ExternalMonitor: sensors.ExternalMonitor,
		Time:            now,
	}
}

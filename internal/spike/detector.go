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

package spike

import (
	"time"

	"github.com/rajeshgoli/office-automation/internal/config"
	"github.com/rajeshgoli/office-automation/pkg/logger"
)

// Phase of the detector. A spike arms on a large delta over the trailing
// baseline, tracks its peak, and once confirmed declining becomes
// "clearing" until the index falls back under the clear target. Clearing
// is what drives ventilation: it means the odor peaked and active air
// exchange will flush it.
type Phase int

const (
	Idle Phase = iota
	Active
	Clearing
)

type EventKind int

const (
	Triggered EventKind = iota
	Resolved            // decline confirmed, clearing begins
	Cleared             // index back under clear target
	Abandoned           // declined before reaching a real peak, false alarm
)

type Event struct {
	Kind     EventKind
	Value    float64
	Baseline float64
	Peak     float64
	Time     time.Time
}

// Detector flags transient VOC events whose absolute level may never
// cross the hard ventilation threshold but whose rise over the recent
// baseline is large (cooking, cleaning products). It is delta-based on
// purpose: the absolute-threshold rule lives in the ventilation engine.
type Detector struct {
	log  *logger.Logger
	conf config.ThresholdsConfig

	window        []float64 // trailing readings, oldest first
	phase         Phase
	peak          float64
	declineCount  int
	cooldownUntil time.Time
}

func New(conf config.ThresholdsConfig) *Detector {
	return &Detector{
		log:  logger.New("SpikeDetect"),
		conf: conf,
	}
}

func (d *Detector) Clearing() bool { return d.phase == Clearing }
func (d *Detector) Active() bool   { return d.phase == Active }
func (d *Detector) Peak() float64  { return d.peak }

// Baseline is the mean of the oldest buffered samples, i.e. the level
// before the current rise. Returns false until enough samples exist.
func (d *Detector) Baseline() (float64, bool) {
	if len(d.window) < d.conf.SpikeBaselineSize {
		return 0, false
	}
	var sum float64
	for _, v := range d.window[:d.conf.SpikeBaselineSize] {
		sum += v
	}
	return sum / float64(d.conf.SpikeBaselineSize), true
}

// Observe feeds one VOC reading. Returns a phase-change event or nil.
func (d *Detector) Observe(v float64, now time.Time) *Event {
	baseline, haveBaseline := d.Baseline()

	d.window = append(d.window, v)
	if len(d.window) > d.conf.SpikeWindowSize {
		d.window = d.window[1:]
	}

	switch d.phase {

	case Idle:
		if !haveBaseline {
			return nil
		}
		if now.Before(d.cooldownUntil) {
			if v-baseline >= d.conf.SpikeBaselineDelta && v >= d.conf.SpikeMinTrigger {
				d.log.Debug("spike suppressed by cooldown until %v", d.cooldownUntil)
			}
			return nil
		}
		if v-baseline >= d.conf.SpikeBaselineDelta && v >= d.conf.SpikeMinTrigger {
			d.phase = Active
			d.peak = v
			d.declineCount = 0
			d.log.Info("voc spike armed: value=%.0f baseline=%.0f", v, baseline)
			return &Event{Kind: Triggered, Value: v, Baseline: baseline, Time: now}
		}

	case Active:
		if v > d.peak {
			d.peak = v
			d.declineCount = 0
			return nil
		}
		d.declineCount++
		if d.declineCount < 2 {
			return nil
		}
		if d.peak >= d.conf.SpikeMinPeak {
			d.phase = Clearing
			d.cooldownUntil = now.Add(d.conf.SpikeCooldown())
			d.log.Info("voc spike resolved: peak=%.0f, clearing", d.peak)
			return &Event{Kind: Resolved, Value: v, Baseline: baseline, Peak: d.peak, Time: now}
		}
		// Never reached a real peak: a filter blip, not an odor event.
		// No cooldown so a genuine spike right after still triggers.
		d.phase = Idle
		peak := d.peak
		d.peak = 0
		d.declineCount = 0
		d.log.Debug("voc spike abandoned: peak=%.0f below min", peak)
		return &Event{Kind: Abandoned, Value: v, Baseline: baseline, Peak: peak, Time: now}

	case Clearing:
		if v < d.conf.SpikeClearTarget {
			d.phase = Idle
			peak := d.peak
			d.peak = 0
			d.declineCount = 0
			d.log.Info("voc spike cleared: value=%.0f", v)
			return &Event{Kind: Cleared, Value: v, Peak: peak, Time: now}
		}
	}
	return nil
}

// Reset drops the window and any in-flight spike. Called when the room
// empties: the pre-departure baseline does not describe the empty room.
// The cooldown stamp survives the reset.
func (d *Detector) Reset() {
	d.window = d.window[:0]
	d.phase = Idle
	d.peak = 0
	d.declineCount = 0
}

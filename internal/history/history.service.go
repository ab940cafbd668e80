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

package history

import (
	"context"
	"time"

	"github.com/rajeshgoli/office-automation/internal/config"
	"github.com/rajeshgoli/office-automation/internal/events"
	"github.com/rajeshgoli/office-automation/pkg/logger"
)

const readingRetention = 90 * 24 * time.Hour

// Service drains bus topics into the store. Inserts are best-effort: a
// failed write is logged and dropped, the decision pipeline never waits
// on the database.
type Service struct {
	conf  *config.Config
	store *Store
	log   *logger.Logger
}

func New(conf *config.Config, store *Store) *Service {
	return &Service{
		conf:  conf,
		store: store,
		log:   logger.New("History"),
	}
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	defer s.log.Info("Stopped")

	bus := s.conf.EventBus
	airCh, unsub1 := bus.SubscribeQueue(ctx, events.TopicAirQuality, 64)
	occCh, unsub2 := bus.SubscribeQueue(ctx, events.TopicOccupancy, 16)
	doorCh, unsub3 := bus.SubscribeQueue(ctx, events.TopicDoor, 16)
	windowCh, unsub4 := bus.SubscribeQueue(ctx, events.TopicWindow, 16)
	motionCh, unsub5 := bus.SubscribeQueue(ctx, events.TopicMotion, 16)
	ventCh, unsub6 := bus.SubscribeQueue(ctx, events.TopicVentilation, 16)
	heatCh, unsub7 := bus.SubscribeQueue(ctx, events.TopicHeating, 16)
	defer func() {
		unsub1()
		unsub2()
		unsub3()
		unsub4()
		unsub5()
		unsub6()
		unsub7()
	}()

	prune := time.NewTicker(24 * time.Hour)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-airCh:
			s.insert(s.store.InsertReading(ev.(events.AirQualityUpdate)))

		case ev := <-occCh:
			s.insert(s.store.InsertOccupancy(ev.(events.OccupancyChanged)))

		case ev := <-doorCh:
			upd := ev.(events.DoorUpdate)
			s.insert(s.store.InsertDeviceEvent("door", contactEvent(upd.Open), upd.Time))

		case ev := <-windowCh:
			upd := ev.(events.WindowUpdate)
			s.insert(s.store.InsertDeviceEvent("window", contactEvent(upd.Open), upd.Time))

		case ev := <-motionCh:
			upd := ev.(events.MotionUpdate)
			s.insert(s.store.InsertDeviceEvent("motion", "detected", upd.Time))

		case ev := <-ventCh:
			d := ev.(events.VentilationDecision)
			s.insert(s.store.InsertAction("erv", string(d.Speed), d.Reason, d.Time))

		case ev := <-heatCh:
			d := ev.(events.HeatingDecision)
			action := "resume"
			if d.Suspended {
				action = "suspend"
			}
			s.insert(s.store.InsertAction("hvac", action, d.Reason, d.Time))

		case <-prune.C:
			if err := s.store.Prune(time.Now().Add(-readingRetention)); err != nil {
				s.log.Error("prune: %v", err)
			}
		}
	}
}

func (s *Service) insert(err error) {
	if err != nil {
		s.log.Error("insert: %v", err)
	}
}

func contactEvent(open bool) string {
	if open {
		return "open"
	}
	return "close"
}

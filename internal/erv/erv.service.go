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

package erv

import (
	"context"

	"github.com/rajeshgoli/office-automation/internal/config"
	"github.com/rajeshgoli/office-automation/internal/events"
	"github.com/rajeshgoli/office-automation/pkg/logger"
)

// Backend applies a fan speed to the physical ERV.
type Backend interface {
	SetSpeed(speed events.FanSpeed) error
}

// Service is the ERV executor: it listens for ventilation decisions and
// applies them to the device. Decisions are latest-wins; if several
// arrive while a modbus write is in flight, only the newest matters.
type Service struct {
	conf    *config.Config
	log     *logger.Logger
	backend Backend
}

func New(conf *config.Config, backend Backend) *Service {
	if backend == nil {
		backend = logBackend{log: logger.New("ERV")}
	}
	return &Service{
		conf:    conf,
		log:     logger.New("ERV"),
		backend: backend,
	}
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	defer s.log.Info("Stopped")

	decisions, _ := s.conf.EventBus.Subscribe(ctx, events.TopicVentilation, true)

	for {
		select {
		case ev, ok := <-decisions:
			if !ok {
				return
			}
			d := ev.(events.VentilationDecision)
			if err := s.backend.SetSpeed(d.Speed); err != nil {
				s.log.Error("set speed %s: %v", d.Speed, err)
				continue
			}
			s.log.Info("speed %s (%s)", d.Speed, d.Reason)

		case <-ctx.Done():
			return
		}
	}
}

// logBackend is used when no modbus device is configured: decisions are
// logged and otherwise dropped.
type logBackend struct {
	log *logger.Logger
}

func (b logBackend) SetSpeed(speed events.FanSpeed) error {
	b.log.Info("(dry run) speed -> %s", speed)
	return nil
}

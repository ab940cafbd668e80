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

package hvac

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rajeshgoli/office-automation/internal/config"
	"github.com/rajeshgoli/office-automation/internal/events"
	"github.com/rajeshgoli/office-automation/internal/heating"
	"github.com/rajeshgoli/office-automation/pkg/logger"
)

type relayRequest struct {
	Name        string `json:"name"`
	TargetState bool   `json:"target_state"`
}

// Service is the heat-relay executor. It combines the coordinator's
// suspend decisions with the setpoint band on the indoor temperature
// and drives the relay through an HTTP bridge. With no bridge
// configured it runs dry and only logs.
type Service struct {
	conf *config.Config
	log  *logger.Logger

	suspended bool
	tempC     *float64
	relayOn   bool
	relaySet  bool // false until the first command is sent
}

func New(conf *config.Config) *Service {
	return &Service{
		conf: conf,
		log:  logger.New("HVAC"),
	}
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	defer s.log.Info("Stopped")

	heatCh, _ := s.conf.EventBus.Subscribe(ctx, events.TopicHeating, true)
	airCh, _ := s.conf.EventBus.Subscribe(ctx, events.TopicAirQuality, true)

	for {
		select {
		case ev, ok := <-heatCh:
			if !ok {
				return
			}
			d := ev.(events.HeatingDecision)
			s.suspended = d.Suspended
			s.log.Info("suspend=%v (%s)", d.Suspended, d.Reason)
			s.apply()

		case ev, ok := <-airCh:
			if !ok {
				return
			}
			up := ev.(events.AirQualityUpdate)
			if up.TempC != nil {
				s.tempC = up.TempC
			}
			s.apply()

		case <-ctx.Done():
			return
		}
	}
}

// apply recomputes the relay state from suspend + temperature band and
// pushes it to the bridge when it changes.
func (s *Service) apply() {
	if s.tempC == nil {
		return
	}
	h := s.conf.Heating

	var want bool
	switch heating.BandAction(*s.tempC, h.SetpointC, h.BandC, s.suspended) {
	case heating.BandHeatOn:
		want = true
	case heating.BandHeatOff:
		want = false
	case heating.BandHold:
		if !s.relaySet {
			return
		}
		want = s.relayOn
	}

	if s.relaySet && want == s.relayOn {
		return
	}

	if err := s.setRelay(want); err != nil {
		s.log.Error("set relay: %v", err)
		return
	}
	s.relayOn = want
	s.relaySet = true
}

func (s *Service) setRelay(on bool) error {
	if s.conf.HVAC.BridgeAddr == "" {
		s.log.Info("(dry run) heat relay -> %v", on)
		return nil
	}
	return postJSON(fmt.Sprintf("%s/relay", s.conf.HVAC.BridgeAddr), relayRequest{
		Name:        "heat",
		TargetState: on,
	})
}

func postJSON(url string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("HTTP POST failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

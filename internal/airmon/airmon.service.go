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

package airmon

import (
	"context"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/rajeshgoli/office-automation/internal/config"
	"github.com/rajeshgoli/office-automation/internal/events"
	"github.com/rajeshgoli/office-automation/pkg/logger"
)

// Service bridges a Qingping air monitor into the event bus. The
// monitor is configured for private access and reports via a local MQTT
// broker on qingping/{MAC}/up; message type 17 is a sensor report.
type Service struct {
	conf *config.Config
	log  *logger.Logger
	mac  string
}

func New(conf *config.Config) *Service {
	mac := strings.ToUpper(strings.ReplaceAll(conf.AirMonitor.MAC, ":", ""))
	return &Service{
		conf: conf,
		log:  logger.New("AirMonitor"),
		mac:  mac,
	}
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	defer s.log.Info("Stopped")

	if s.conf.AirMonitor.BrokerAddr == "" {
		s.log.Info("no broker configured, air monitor disabled")
		<-ctx.Done()
		return
	}

	clientID := s.conf.AirMonitor.ClientID
	if clientID == "" {
		clientID = "office-automation"
	}

	topic := fmt.Sprintf("qingping/%s/up", s.mac)

	opts := paho.NewClientOptions().
		AddBroker(s.conf.AirMonitor.BrokerAddr).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c paho.Client) {
			s.log.Info("connected, subscribing to %s", topic)
			c.Subscribe(topic, 0, s.onMessage)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			s.log.Error("connection lost: %v", err)
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		s.log.Error("broker connection timeout, retrying in background")
	} else if err := token.Error(); err != nil {
		s.log.Error("broker connect: %v", err)
	}

	<-ctx.Done()
	client.Disconnect(1000)
}

func (s *Service) onMessage(_ paho.Client, msg paho.Message) {
	update, err := ParseReport(msg.Payload())
	if err != nil {
		s.log.Debug("ignoring message on %s: %v", msg.Topic(), err)
		return
	}
	s.conf.EventBus.Publish(events.TopicAirQuality, *update)
}

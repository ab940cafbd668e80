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

package dashboard

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rajeshgoli/office-automation/internal/config"
	"github.com/rajeshgoli/office-automation/internal/events"
	"github.com/rajeshgoli/office-automation/pkg/logger"
)

type ClientSync struct {
	clients map[*websocket.Conn]bool
	mutex   sync.Mutex
}

func (c *ClientSync) broadcast(pm *websocket.PreparedMessage, log *logger.Logger) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		if err := ws.WritePreparedMessage(pm); err != nil {
			log.Error("failed to write message: %v", err)
			ws.Close()
			delete(c.clients, ws)
		}
	}
}

func (c *ClientSync) add(ws *websocket.Conn) {
	c.mutex.Lock()
	c.clients[ws] = true
	c.mutex.Unlock()
}

func (c *ClientSync) remove(ws *websocket.Conn) {
	c.mutex.Lock()
	delete(c.clients, ws)
	c.mutex.Unlock()
}

func (c *ClientSync) closeAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		ws.Close()
		delete(c.clients, ws)
	}
}

// Service is the web surface: the sensor ingestion endpoints the agents
// POST to, the status API, the manual override endpoint, and a
// websocket that streams status snapshots to connected dashboards.
type Service struct {
	conf    *config.Config
	log     *logger.Logger
	clients ClientSync
}

func New(conf *config.Config) *Service {
	return &Service{
		conf: conf,
		log:  logger.New("Dashboard"),
		clients: ClientSync{
			clients: make(map[*websocket.Conn]bool),
		},
	}
}

// Run broadcasts every status snapshot to connected websocket clients.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	defer s.log.Info("Stopped")
	defer s.clients.closeAll()

	statusCh, _ := s.conf.EventBus.Subscribe(ctx, events.TopicStatus, true)

	for {
		select {
		case ev, ok := <-statusCh:
			if !ok {
				return
			}
			s.broadcastStatus(ev.(events.StatusUpdate))

		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) broadcastStatus(st events.StatusUpdate) {
	data, err := json.Marshal(st)
	if err != nil {
		s.log.Error("failed to marshal broadcast: %v", err)
		return
	}
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		s.log.Error("failed to prepare message: %v", err)
		return
	}
	s.clients.broadcast(pm, s.log)
}

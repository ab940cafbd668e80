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
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rajeshgoli/office-automation/internal/events"
)

// activityRequest is the desktop agent's report.
type activityRequest struct {
	LastActiveTimestamp float64 `json:"last_active_timestamp"`
	ExternalMonitor     bool    `json:"external_monitor"`
}

// deviceEventRequest covers the contact and motion sensors.
type deviceEventRequest struct {
	DeviceType string  `json:"device_type"` // door | window | motion
	Event      string  `json:"event"`       // open | close | detected
	Timestamp  float64 `json:"timestamp"`
}

type overrideRequest struct {
	Target     string `json:"target"` // erv | hvac
	Value      string `json:"value"`
	TTLSeconds int    `json:"ttl_seconds"`
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/status", "":
		s.handleStatus(w, r)
	case "/occupancy":
		s.handleActivity(w, r)
	case "/event":
		s.handleDeviceEvent(w, r)
	case "/override":
		s.handleOverride(w, r)
	case "/ws":
		s.handleWebSocket(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := s.conf.EventBus.GetLast(events.TopicStatus)
	if !ok {
		http.Error(w, "no status yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

func (s *Service) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.LastActiveTimestamp <= 0 {
		http.Error(w, "missing last_active_timestamp", http.StatusBadRequest)
		return
	}

	s.conf.EventBus.Publish(events.TopicActivity, events.ActivityUpdate{
		LastActive:      epochToTime(req.LastActiveTimestamp),
		ExternalMonitor: req.ExternalMonitor,
		Time:            time.Now(),
	})
	w.WriteHeader(http.StatusAccepted)
}

func (s *Service) handleDeviceEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req deviceEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	at := time.Now()
	if req.Timestamp > 0 {
		at = epochToTime(req.Timestamp)
	}

	switch req.DeviceType {
	case "door":
		open, err := contactState(req.Event)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.conf.EventBus.Publish(events.TopicDoor, events.DoorUpdate{Open: open, Time: at})

	case "window":
		open, err := contactState(req.Event)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.conf.EventBus.Publish(events.TopicWindow, events.WindowUpdate{Open: open, Time: at})

	case "motion":
		if req.Event != "detected" {
			http.Error(w, "motion event must be 'detected'", http.StatusBadRequest)
			return
		}
		s.conf.EventBus.Publish(events.TopicMotion, events.MotionUpdate{Time: at})

	default:
		http.Error(w, "unknown device_type", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleOverride validates synchronously: a bad command is rejected here
// with a 400 and never reaches the pipeline.
func (s *Service) handleOverride(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	switch req.Target {
	case "erv":
		switch events.FanSpeed(req.Value) {
		case events.FanOff, events.FanQuiet, events.FanMedium, events.FanTurbo:
		default:
			http.Error(w, "invalid erv value", http.StatusBadRequest)
			return
		}
	case "hvac":
		if req.Value != "suspend" && req.Value != "resume" {
			http.Error(w, "invalid hvac value", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "invalid target", http.StatusBadRequest)
		return
	}

	s.conf.EventBus.Publish(events.TopicOverride, events.OverrideCommand{
		Target: req.Target,
		Value:  req.Value,
		TTL:    time.Duration(req.TTLSeconds) * time.Second,
		Time:   time.Now(),
	})
	s.log.Info("override accepted: %s=%s ttl=%ds", req.Target, req.Value, req.TTLSeconds)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Service) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return false
			}
			if strings.Contains(origin, "localhost") {
				return true
			}
			return strings.Contains(origin, r.Host)
		},
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade websocket: %v", err)
		return
	}
	s.clients.add(ws)
	defer func() {
		s.clients.remove(ws)
		ws.Close()
	}()

	// send the current snapshot right away
	if st, ok := s.conf.EventBus.GetLast(events.TopicStatus); ok {
		if data, err := json.Marshal(st); err == nil {
			ws.WriteMessage(websocket.TextMessage, data)
		}
	}

	// the dashboard socket is read-only; drain until the client leaves
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("ws closed: %v", err)
			}
			return
		}
	}
}

func contactState(event string) (bool, error) {
	switch event {
	case "open":
		return true, nil
	case "close":
		return false, nil
	}
	return false, errBadContactEvent
}

var errBadContactEvent = &badRequestError{"contact event must be 'open' or 'close'"}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func epochToTime(sec float64) time.Time {
	return time.Unix(int64(sec), int64((sec-float64(int64(sec)))*1e9))
}

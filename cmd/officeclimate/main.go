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

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rajeshgoli/office-automation/internal/airmon"
	"github.com/rajeshgoli/office-automation/internal/config"
	"github.com/rajeshgoli/office-automation/internal/dashboard"
	"github.com/rajeshgoli/office-automation/internal/erv"
	"github.com/rajeshgoli/office-automation/internal/events"
	"github.com/rajeshgoli/office-automation/internal/history"
	"github.com/rajeshgoli/office-automation/internal/hvac"
	"github.com/rajeshgoli/office-automation/internal/pipeline"
	"github.com/rajeshgoli/office-automation/pkg/appctx"
	"github.com/rajeshgoli/office-automation/pkg/eventbus"
	"github.com/rajeshgoli/office-automation/pkg/logger"
	"github.com/rajeshgoli/office-automation/pkg/modbus"
	"github.com/rajeshgoli/office-automation/pkg/rootserv"
	"github.com/rajeshgoli/office-automation/pkg/service"
	"github.com/rajeshgoli/office-automation/pkg/sysmon"
	"github.com/rajeshgoli/office-automation/pkg/timers"
)

func main() {

	rootdir := os.Getenv("PROJECT_ROOT")
	if rootdir == "" {
		rootdir = "."
	}

	logger.Init(filepath.Join(rootdir, "var/logs/officeclimate.log"))

	appConf := config.LoadFile(filepath.Join(rootdir, "var/config/office.json"))

	fmt.Println(filepath.Join(rootdir, "var/logs/officeclimate.log"))
	fmt.Println(filepath.Join(rootdir, "var/config/office.json"))

	// use conf to pass eventbus to whoever needs it
	appConf.EventBus = eventbus.New()
	appConf.RootDir = rootdir

	ctx, ctxCancel := appctx.New()

	store, err := history.Open(filepath.Join(rootdir, appConf.History.DBPath))
	if err != nil {
		logger.New("Main").Fatal("open history store: %v", err)
	}
	defer store.Close()
	restore := restoreFromStore(store)

	// ERV runs against modbus when a register map is configured,
	// otherwise it logs the decisions it would have applied
	var ervBackend erv.Backend
	if appConf.ERV.ModbusConfig != "" {
		modbusConf := modbus.LoadConfig(filepath.Join(rootdir, appConf.ERV.ModbusConfig))
		ervBackend = erv.NewModbusBackend(modbus.NewClient(ctx, modbusConf))
	}

	// init services
	server := rootserv.New(appConf.ListenAddr)
	sysMonitorService := sysmon.New()
	airMonitorService := airmon.New(appConf)
	pipelineService := pipeline.New(appConf, timers.SystemClock{}, restore)
	ervService := erv.New(appConf, ervBackend)
	hvacService := hvac.New(appConf)
	dashboardService := dashboard.New(appConf)
	historyService := history.New(appConf, store)

	// attach web handler enabled services
	server.Attach("/logger", "Logger", logger.WebService())
	server.Attach("/monitor", "System Monitor", sysMonitorService)
	server.Attach("/dashboard", "Office Climate Dashboard", dashboardService)

	// start runnable services
	exitCh := service.Start(ctx, ctxCancel, []service.Runnable{
		airMonitorService,
		pipelineService,
		ervService,
		hvacService,
		dashboardService,
		historyService,
		server,
	})

	// waits for all services to stop
	os.Exit(<-exitCh)
}

// restoreFromStore seeds the pipeline with the last persisted occupancy
// state and sensor reading. A fresh or unreadable store starts present:
// the worst a wrong guess costs is one evaluation cycle.
func restoreFromStore(store *history.Store) pipeline.RestoreState {
	log := logger.New("Main")
	restore := pipeline.RestoreState{State: events.Present}

	state, ok, err := store.LastOccupancy()
	if err != nil {
		log.Error("restore occupancy: %v", err)
	} else if ok {
		restore.State = state
		log.Info("restored occupancy state: %s", state)
	}

	reading, err := store.LastReading()
	if err != nil {
		log.Error("restore reading: %v", err)
	} else if reading != nil {
		restore.Reading = reading
	}
	return restore
}

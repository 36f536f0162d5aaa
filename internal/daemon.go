package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/tachmon/internal/api"
	"github.com/markusressel/tachmon/internal/configuration"
	"github.com/markusressel/tachmon/internal/hwmon"
	"github.com/markusressel/tachmon/internal/inventory"
	"github.com/markusressel/tachmon/internal/monitor"
	"github.com/markusressel/tachmon/internal/power"
	"github.com/markusressel/tachmon/internal/statistics"
	"github.com/markusressel/tachmon/internal/ui"
	"github.com/markusressel/tachmon/internal/util"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RunDaemon() {
	inv := inventory.NewInventory(configuration.CurrentConfig.DbPath)
	if err := inv.Init(); err != nil {
		ui.Fatal("Unable to initialize inventory: %v", err)
	}

	// the power state file gates all fault decisions, refuse to act on
	// one that other users can tamper with
	if fileConfig := configuration.CurrentConfig.Power.File; fileConfig != nil {
		if ok, err := util.CheckFilePermissionsForExecution(fileConfig.Path); !ok {
			ui.Warning("Unsafe permissions on power state file %s: %v", fileConfig.Path, err)
		}
	}

	loop := monitor.NewLoop()
	powerSource := power.NewSource(configuration.CurrentConfig.Power)
	system := monitor.NewSystem(loop, inv, powerSource)

	ctx, cancel := context.WithCancel(context.Background())

	var g run.Group
	{
		// === monitor event loop
		g.Add(func() error {
			return loop.Run(ctx)
		}, func(err error) {
			cancel()
		})
	}

	InitializeObjects(system)

	{
		// === tach polling
		pollingRate := configuration.CurrentConfig.TachPollingRate
		g.Add(func() error {
			ticker := time.NewTicker(pollingRate)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					loop.Post(system.PollTachs)
				}
			}
		}, func(err error) {
			cancel()
		})
	}
	{
		// === power polling
		pollingRate := configuration.CurrentConfig.PowerPollingRate
		g.Add(func() error {
			ticker := time.NewTicker(pollingRate)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					loop.Post(system.PollPower)
				}
			}
		}, func(err error) {
			cancel()
		})
	}
	{
		// === inventory event pump
		events := inv.Subscribe()
		g.Add(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case event := <-events:
					loop.Post(func() {
						system.InventoryEvent(event)
					})
				}
			}
		}, func(err error) {
			cancel()
		})
	}
	{
		enabled := configuration.CurrentConfig.Statistics.Enabled
		if enabled {
			// === Prometheus Exporter
			g.Add(func() error {
				port := configuration.CurrentConfig.Statistics.Port
				if port <= 0 || port >= 65535 {
					port = 9000
				}
				endpoint := "/metrics"
				addr := fmt.Sprintf(":%d", port)
				handler := promhttp.Handler()
				http.Handle(endpoint, handler)
				server := &http.Server{Addr: addr, Handler: handler}
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					ui.Error("Cannot start prometheus metrics endpoint (%s)", err.Error())
				}

				<-ctx.Done()
				ui.Info("Stopping statistics server...")
				timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer timeoutCancel()
				return server.Shutdown(timeoutCtx)
			}, func(err error) {
				if err != nil {
					ui.Warning("Error stopping statistics server: " + err.Error())
				} else {
					ui.Info("Statistics server stopped.")
				}
			})
		}
	}
	{
		enabled := configuration.CurrentConfig.Api.Enabled
		if enabled {
			// === REST Api
			restServer := api.CreateRestService(loop, system, powerSource)
			g.Add(func() error {
				host := configuration.CurrentConfig.Api.Host
				port := configuration.CurrentConfig.Api.Port
				addr := fmt.Sprintf("%s:%d", host, port)
				if err := restServer.Start(addr); err != nil && err != http.ErrServerClosed {
					ui.Error("Cannot start REST api endpoint (%s)", err.Error())
				}
				return nil
			}, func(err error) {
				stopRestServer(restServer)
			})
		}
	}
	{
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

		g.Add(func() error {
			<-sig
			ui.Info("Received SIGTERM signal, exiting...")
			return nil
		}, func(err error) {
			defer close(sig)
			cancel()
		})
	}

	runErr := g.Run()

	snapshotPath := configuration.CurrentConfig.SnapshotPath
	if len(snapshotPath) > 0 {
		if err := inv.ExportSnapshot(snapshotPath); err != nil {
			ui.Warning("Unable to export inventory snapshot: %v", err)
		} else {
			ui.Info("Inventory snapshot written to: %s", snapshotPath)
		}
	}

	if runErr != nil {
		_, _ = fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	} else {
		ui.Info("Done.")
		os.Exit(0)
	}
}

func stopRestServer(server *echo.Echo) {
	ui.Info("Stopping REST api server...")
	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()
	if err := server.Shutdown(timeoutCtx); err != nil {
		ui.Warning("Error stopping REST api server: %v", err)
	}
}

// InitializeObjects resolves hwmon sensor configurations to concrete
// sysfs paths and constructs the monitored system.
func InitializeObjects(system *monitor.System) {
	controllers := hwmon.GetChips()

	for fanIdx := range configuration.CurrentConfig.Fans {
		fanConfig := &configuration.CurrentConfig.Fans[fanIdx]
		for sensorIdx := range fanConfig.Sensors {
			sensorConfig := &fanConfig.Sensors[sensorIdx]
			if sensorConfig.HwMon == nil {
				continue
			}

			found := false
			for _, c := range controllers {
				matched, err := regexp.MatchString("(?i)"+sensorConfig.HwMon.Platform, c.Platform)
				if err != nil {
					ui.Fatal("Failed to match platform regex of %s (%s) against controller platform %s", sensorConfig.ID, sensorConfig.HwMon.Platform, c.Platform)
				}
				if matched {
					index := sensorConfig.HwMon.Index - 1
					if len(c.Fans) > index {
						channel := c.Fans[index]
						sensorConfig.HwMon.RpmInput = channel.RpmInput
						sensorConfig.HwMon.RpmTarget = channel.RpmTarget
						found = true
					}
					break
				}
			}
			if !found {
				ui.Fatal("Couldn't find hwmon device with platform '%s' for sensor: %s. Run 'tachmon detect' again and correct any mistake.", sensorConfig.HwMon.Platform, sensorConfig.ID)
			}
		}
	}

	// the loop is not running yet, timers armed during construction are
	// queued and delivered once it starts
	if err := system.Init(configuration.CurrentConfig); err != nil {
		ui.Fatal("Unable to initialize fan monitoring: %v", err)
	}

	if len(system.Fans()) == 0 {
		ui.Fatal("No valid fan configurations, exiting.")
	}

	var fanList []statistics.FanStat
	var sensorList []statistics.SensorStat
	for _, fan := range system.Fans() {
		fanList = append(fanList, fan)
		for _, sensor := range fan.Sensors() {
			sensorList = append(sensorList, sensor)
		}
	}

	statistics.Register(statistics.NewFanCollector(fanList))
	statistics.Register(statistics.NewSensorCollector(sensorList))
}

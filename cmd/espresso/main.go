// Command espresso runs the brew controller of a vibratory-pump espresso
// machine and publishes its attribute surface over MQTT, BLE and HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/espresso/internal/bleserial"
	"github.com/sweeney/espresso/internal/brew"
	"github.com/sweeney/espresso/internal/config"
	"github.com/sweeney/espresso/internal/dispatch"
	"github.com/sweeney/espresso/internal/espresso"
	"github.com/sweeney/espresso/internal/logic"
	"github.com/sweeney/espresso/internal/mqtt"
	"github.com/sweeney/espresso/internal/registry"
	"github.com/sweeney/espresso/internal/status"
	"github.com/sweeney/espresso/internal/web"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Configuration file")
	tick := flag.Duration("tick", 0, "Control tick (overrides config)")
	broker := flag.String("broker", "", `MQTT broker address (overrides config, "off" disables)`)
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	blePort := flag.String("ble-port", "", "Serial port of the BLE-UART bridge (overrides config)")
	heartbeat := flag.Duration("heartbeat", 0, "Heartbeat interval (overrides config)")
	simulate := flag.Bool("simulate", false, "Run against the plant model instead of hardware")
	printState := flag.Bool("print-state", false, "Print sensor readings and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "tick":
			cfg.Control.Tick = *tick
		case "broker":
			cfg.MQTT.Broker = offToEmpty(*broker)
		case "http":
			cfg.HTTP.Addr = offToEmpty(*httpAddr)
		case "ble-port":
			cfg.BLE.Port = *blePort
		case "heartbeat":
			cfg.Control.Heartbeat = *heartbeat
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg, *simulate, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func offToEmpty(s string) string {
	if s == "off" {
		return ""
	}
	return s
}

func run(cfg *config.Config, simulate, printState bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		p   *peripherals
		err error
	)
	if simulate {
		p, err = openSimulation(ctx, cfg)
	} else {
		p, err = openHardware(cfg)
	}
	if err != nil {
		return err
	}
	defer p.Close()

	if printState {
		return printReadings(ctx, p)
	}

	reg, err := registry.Init(cfg.Shot, cfg.Machine)
	if err != nil {
		return fmt.Errorf("init registry: %w", err)
	}
	history := espresso.NewHistory(cfg.Control.HistorySize)
	queue := brew.NewQueue(brew.DefaultQueueSize)
	disp := dispatch.New(reg, queue, history)

	var surface mqtt.Surface
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		s, err := mqtt.NewRealSurface(mqtt.Options{
			Broker:    cfg.MQTT.Broker,
			ClientID:  cfg.MQTT.ClientID,
			Prefix:    cfg.MQTT.Prefix,
			OnConnect: disp.NotifyAll,
		}, disp)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer s.Close()
		disp.Attach(s)
		surface, mqttStatus = s, s
	}
	var publisher systemPublisher = logPublisher{}
	if surface != nil {
		publisher = surface
	}

	if cfg.BLE.Port != "" {
		bridge, err := bleserial.Open(cfg.BLE.Port, cfg.BLE.BaudRate, disp)
		if err != nil {
			// The machine brews without a phone; carry on.
			log.Printf("ble bridge disabled: %v", err)
		} else {
			defer bridge.Close()
			disp.Attach(bridge)
			go func() {
				if err := bridge.Serve(); err != nil {
					log.Printf("ble bridge error: %v", err)
				}
			}()
			log.Printf("ble bridge on %s at %d baud", cfg.BLE.Port, cfg.BLE.BaudRate)
		}
	}

	startTime := time.Now()
	ctrl := brew.New(brew.Config{
		Hardware:          p.hw,
		Actuator:          p.actuator,
		Builder:           espresso.NewBuilder(p.sources, history, time.Now),
		Registry:          reg,
		Machine:           logic.NewMachine(startTime),
		Notifier:          disp,
		Commands:          queue,
		IdleSnapshotEvery: cfg.Control.IdleSnapshots,
	})
	defer ctrl.Shutdown()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(startTime, status.Config{
		TickMs:      cfg.Control.Tick.Milliseconds(),
		WindowMs:    cfg.Control.CPSWindow.Milliseconds(),
		HeartbeatMs: cfg.Control.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		Prefix:      cfg.MQTT.Prefix,
		HTTPPort:    cfg.HTTP.Addr,
		BLEPort:     cfg.BLE.Port,
		WSBroker:    resolveWSBroker(cfg.MQTT.WSBroker, cfg.MQTT.Broker),
		Simulated:   simulate,
	})
	tracker.SetConfig(reg.Shot(), reg.Machine())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, history, disp)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: tick=%v cps_window=%v broker=%q heartbeat=%v simulate=%v",
		cfg.Control.Tick, cfg.Control.CPSWindow, cfg.MQTT.Broker, cfg.Control.Heartbeat, simulate)

	ticker := time.NewTicker(cfg.Control.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctx, ctrl, reg, publisher, mqttStatus, tracker, cfg.Control.Heartbeat, time.Now, ticker.C, sigCh)
}

// systemPublisher sends system lifecycle events.
type systemPublisher interface {
	PublishSystem(event mqtt.SystemEvent) error
}

// logPublisher stands in when MQTT is disabled.
type logPublisher struct{}

func (logPublisher) PublishSystem(event mqtt.SystemEvent) error {
	log.Printf("system event: %s %s", event.Event, event.Reason)
	return nil
}

func runLoop(ctx context.Context, ctrl *brew.Controller, reg *registry.Registry, publisher systemPublisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	machine := ctrl.Machine()

	refresh := func() {
		if tracker == nil {
			return
		}
		tracker.Update(machine.State(), machine.ShotStart(), machine.Counts())
		if s := ctrl.Latest(); !s.Time.IsZero() {
			tracker.SetSnapshot(s)
		}
		tracker.SetConfig(reg.Shot(), reg.Machine())
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}

			// Leave the machine safe before anything touches the network.
			ctrl.Shutdown()

			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				refresh()
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			ctrl.Tick(ctx, t)

			if hbData := machine.CheckHeartbeat(t, heartbeat); hbData != nil {
				log.Printf("heartbeat: uptime=%v started=%d released=%d completed=%d failsafe=%d",
					hbData.Uptime, hbData.Counts.Started, hbData.Counts.Released, hbData.Counts.Completed, hbData.Counts.FailSafe)

				hbEvent := mqtt.SystemEvent{
					Timestamp: hbData.Timestamp,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					refresh()
					snap := tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			refresh()
		}
	}
}

// printReadings takes one reading of every sensor.
func printReadings(ctx context.Context, p *peripherals) error {
	trigger, err := p.hw.Trigger.Read()
	if err != nil {
		return fmt.Errorf("read trigger: %w", err)
	}
	fmt.Printf("Trigger: %s\n", stateString(trigger))

	if bar, err := p.sources.Pressure.ReadPressure(); err != nil {
		fmt.Printf("Pressure: error: %v\n", err)
	} else {
		fmt.Printf("Pressure: %.2f bar\n", bar)
	}
	if c, err := p.sources.Temperature.ReadTemperature(); err != nil {
		fmt.Printf("Boiler: error: %v\n", err)
	} else {
		fmt.Printf("Boiler: %.1f °C\n", c)
	}
	fmt.Printf("CPS: %d\n", p.sources.Clicks.CPS(ctx))
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// resolveWSBroker converts the ws_broker setting into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; empty or
// "off" disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" || ws == "" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	if broker == "" {
		return ""
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws_broker: cannot parse broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}

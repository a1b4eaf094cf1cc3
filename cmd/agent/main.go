// Telemetry Agent - runs the sensor manager and pushes readings into storage
//
// This is the sensor-side process: it owns the system, ATC, and MiFlora
// sensors, fans their readings through the Collector, and persists them via
// the SQLite storage engine.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/asree/homelab-telemetry/internal/collector"
	"github.com/asree/homelab-telemetry/internal/config"
	"github.com/asree/homelab-telemetry/internal/sensor"
	"github.com/asree/homelab-telemetry/internal/sensor/atc"
	"github.com/asree/homelab-telemetry/internal/sensor/miflora"
	"github.com/asree/homelab-telemetry/internal/sensor/system"
	"github.com/asree/homelab-telemetry/internal/storage"
)

func main() {
	logger := log.New(os.Stdout, "[AGENT] ", log.LstdFlags|log.Lmicroseconds)

	cfg := config.DefaultAgentConfig()
	logger.Printf("Starting Telemetry Agent...")
	logger.Printf("  Instance ID: %s", cfg.InstanceID)
	logger.Printf("  Storage Path: %s", cfg.StoragePath)

	engine, err := storage.Open(cfg.StoragePath, log.New(os.Stdout, "[STORAGE] ", log.LstdFlags))
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer engine.Close()
	logger.Printf("Storage ready at %s", cfg.StoragePath)

	events := collector.NewEventLog()
	defer events.Close()
	coll := collector.New(engine, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := sensor.NewManager()

	systemSensor := system.Start(ctx, coll, system.Config{Interval: cfg.SystemSensorInterval}, log.New(os.Stdout, "[SENSOR:system] ", log.LstdFlags))
	manager.Register(systemSensor)

	adapter := bluetooth.DefaultAdapter
	atcSensor, err := atc.Start(ctx, adapter, coll, atc.Config{CacheCapacity: cfg.ATCCacheCapacity}, log.New(os.Stdout, "[SENSOR:atc] ", log.LstdFlags))
	if err != nil {
		logger.Printf("ATC sensor disabled: %v", err)
	} else {
		manager.Register(atcSensor)
	}

	mifloraSensor, err := miflora.Start(ctx, adapter, coll, miflora.Config{
		SyncInterval: cfg.MiFloraSyncInterval,
		Heartbeat:    cfg.MiFloraHeartbeat,
		CommandQueue: 8,
	}, log.New(os.Stdout, "[SENSOR:miflora] ", log.LstdFlags))
	if err != nil {
		logger.Printf("MiFlora sensor disabled: %v", err)
	} else {
		manager.Register(mifloraSensor)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	healthTicker := time.NewTicker(30 * time.Second)
	defer healthTicker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-healthTicker.C:
			if err := manager.Healthcheck(); err != nil {
				logger.Printf("Healthcheck failed: %v", err)
			}
		}
	}

	if err := manager.Wait(); err != nil {
		logger.Printf("Agent stopped with errors: %v", err)
		os.Exit(1)
	}
	logger.Println("Agent stopped")
}

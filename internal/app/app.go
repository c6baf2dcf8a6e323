// Package app wires the device, its storage backends and controllers
// together and runs the tick loop.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ambience-earth/ambience/internal/controllers/restserver"
	"github.com/ambience-earth/ambience/internal/device"
	"github.com/ambience-earth/ambience/internal/eventlog"
	"github.com/ambience-earth/ambience/internal/hardware"
	"github.com/ambience-earth/ambience/internal/hardware/serialhub"
	"github.com/ambience-earth/ambience/internal/log"
	"github.com/ambience-earth/ambience/internal/managers"
	"github.com/ambience-earth/ambience/internal/metrics"
	"github.com/ambience-earth/ambience/internal/region"
	"github.com/ambience-earth/ambience/internal/settings"
	"github.com/ambience-earth/ambience/internal/storage"
	"github.com/ambience-earth/ambience/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	loc, err := cfg.Device.Location()
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	tick, err := cfg.Device.Tick()
	if err != nil {
		return err
	}

	settingsRegion, err := region.OpenFile(cfg.Device.SettingsPath, config.DefaultSettingsSize)
	if err != nil {
		return err
	}
	defer closeRegion(settingsRegion, "settings")

	logRegion, err := region.OpenFile(cfg.Device.LogPath, cfg.Device.LogSize)
	if err != nil {
		return err
	}
	defer closeRegion(logRegion, "event log")

	st, err := settings.Open(settingsRegion)
	if err != nil {
		return err
	}
	if reason := st.Restored(); reason != nil {
		log.Warnf("settings restored to defaults: %v", reason)
	}

	store, err := eventlog.Open(logRegion)
	if err != nil {
		return fmt.Errorf("could not open event log: %w", err)
	}

	hw := a.hardware(ctx, &wg, cfg.Device, loc)

	// Initialize the metrics registry; the sink counts events like any
	// other storage engine
	reg := metrics.NewRegistry()
	sink := metrics.NewSink(reg)

	// Initialize the storage manager
	storageManager, err := managers.NewStorageManager(ctx, &wg, cfg.Storage, map[string]storage.StorageEngineInterface{
		"metrics": sink,
	})
	if err != nil {
		return err
	}

	dev := device.New(hw, store, st, device.Options{
		ID:       cfg.Device.ID,
		Location: loc,
		Events:   storageManager.EventDistributor,
	}, a.logger)
	reg.MustRegister(metrics.NewDeviceCollector(dev))

	deps := restserver.Deps{Device: dev, Metrics: metrics.Handler(reg)}
	if archive := storageManager.Archive(); archive != nil {
		deps.Archive = archive
	}

	// Initialize the controller manager
	cm, err := managers.NewControllerManager(ctx, &wg, cfg.Controllers, deps, a.logger)
	if err != nil {
		dev.Shutdown()
		return err
	}
	if err := cm.StartControllers(); err != nil {
		dev.Shutdown()
		return err
	}

	tickCtx, stopTicks := context.WithCancel(ctx)
	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		runTicks(tickCtx, dev, tick)
	}()

	log.Infof("Application started successfully (device %s, tick %v)", dev.ID(), tick)

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// The pump is closed before anything else stops
	stopTicks()
	<-tickDone
	dev.Shutdown()

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}

// hardware connects the sensor board, or falls back to a bench setup whose
// sensors never report ready.
func (a *App) hardware(ctx context.Context, wg *sync.WaitGroup, d config.DeviceData, loc *time.Location) hardware.Set {
	if d.SerialDevice == "" {
		log.Warn("no serial device configured; running without sensors")
		hw, _ := hardware.NewBenchSet()
		hw.RTC = hardware.SystemRTC{Location: loc}
		return hw
	}

	hub := serialhub.New(serialhub.Config{Device: d.SerialDevice, Baud: d.Baud}, hardware.SystemClock{}, a.logger)
	hub.Start(ctx, wg)
	return hub.Set()
}

// runTicks advances the device every interval until ctx is done.
func runTicks(ctx context.Context, dev *device.Device, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			dev.Tick()
		case <-ctx.Done():
			return
		}
	}
}

func closeRegion(r *region.File, name string) {
	if err := r.Sync(); err != nil {
		log.Errorf("could not sync %s region: %v", name, err)
	}
	if err := r.Close(); err != nil {
		log.Errorf("could not close %s region: %v", name, err)
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/averros/drover/internal/archive"
	"github.com/averros/drover/internal/bus"
	"github.com/averros/drover/internal/config"
	"github.com/averros/drover/internal/controlplane"
	"github.com/averros/drover/internal/driver/bridge"
	"github.com/averros/drover/internal/jobs"
	"github.com/averros/drover/internal/metrics"
	"github.com/averros/drover/internal/scheduler"
	"github.com/spf13/cobra"
)

var (
	listenAddr string
	configPath string
	dbPath     string
	bridgeBin  string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the drover daemon",
	Long:  `Starts the drover daemon which provides the HTTP API, the per-device lane scheduler and the live event stream.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&configPath, "config", "", "Path to config file (default ~/.drover/config.yaml)")
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to archive SQLite database (overrides config)")
	daemonCmd.Flags().StringVar(&bridgeBin, "bridge", "", "Device bridge binary (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log.Println("Starting drover daemon...")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
	} else {
		cfg, err = config.LoadConfigFromHome()
	}
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if bridgeBin != "" {
		cfg.Bridge.Binary = bridgeBin
	}

	// Archive is optional; the scheduler must not depend on it.
	var arc *archive.Archive
	if cfg.DBPath != "" {
		arc, err = archive.New(cfg.DBPath)
		if err != nil {
			log.Printf("Warning: archive disabled: %v", err)
			arc = nil
		}
	}

	busOpts := bus.Options{
		MaxEvents:      cfg.MaxEvents,
		HeartbeatEvery: cfg.Heartbeat(),
	}
	if arc != nil {
		busOpts.Sink = arc
	}
	eventBus := bus.New(busOpts)
	defer eventBus.Close()

	reg := metrics.NewRegistry()
	store := jobs.NewStore(eventBus, cfg.MaxJobs)

	exec := bridge.New(bridge.Config{
		Binary:       cfg.Bridge.Binary,
		SerialFlag:   cfg.Bridge.SerialFlag,
		Timeout:      cfg.BridgeTimeout(),
		WorkflowsDir: cfg.Bridge.WorkflowsDir,
	})

	var rec scheduler.Recorder
	if arc != nil {
		rec = arc
	}
	sched := scheduler.New(store, eventBus, reg, exec, rec)
	store.SetWake(sched.Kick)

	service := controlplane.NewService(store, eventBus, reg)
	var pinger controlplane.Pinger
	if arc != nil {
		pinger = arc
	}
	server := controlplane.NewServer(service, pinger, cfg.Listen)

	sched.Start()
	defer sched.Stop()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			if arc != nil {
				arc.Close()
			}
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if arc != nil {
		log.Println("Closing archive...")
		if err := arc.Close(); err != nil {
			log.Printf("Archive close error: %v", err)
		}
	}

	log.Println("Shutdown complete")
	return nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/srg/mguard/internal/gatt/goble"
	"github.com/srg/mguard/internal/groutine"
	"github.com/srg/mguard/internal/wshub"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <device-address> [device-address...]",
	Short: "Connect to mouthguards and stream telemetry",
	Long: `Connects to one or more mouthguards, discovers and persists their sensor
topology, subscribes to every sensor characteristic, and serves live readings,
alerts, and device status over websocket.

Runs until interrupted. Connected links are closed on exit; persisted
topologies are kept so a later process can restore.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().String("listen", "", "Websocket listen address (overrides config)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	listen := cfg.ListenAddr
	if flagListen, _ := cmd.Flags().GetString("listen"); flagListen != "" {
		listen = flagListen
	}

	mgr, cleanup, err := buildManager(cfg, goble.NewCentral(logger), logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := mgr.RequestPermissions(cmd.Context()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connected := 0
	for _, addr := range args {
		if _, err := mgr.Connect(ctx, addr, cfg.ConnectTimeout); err != nil {
			logger.WithError(err).WithField("device", addr).Error("Connect failed")
			continue
		}
		connected++
	}
	if connected == 0 {
		return fmt.Errorf("could not connect to any of the %d requested devices", len(args))
	}
	defer mgr.Shutdown()

	hub := wshub.New(mgr, logger)
	groutine.Go(ctx, "wshub", hub.Run)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	server := &http.Server{Addr: listen, Handler: mux}
	groutine.Go(ctx, "http", func(_ context.Context) {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Websocket server failed")
		}
	})

	logger.WithField("listen", listen).Info("Monitoring; press Ctrl+C to stop")
	<-ctx.Done()

	_ = server.Close()
	return nil
}

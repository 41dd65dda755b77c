package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/mguard/internal/groutine"
	"github.com/srg/mguard/internal/simulator"
	"github.com/srg/mguard/internal/wshub"
)

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the monitor against simulated mouthguards",
	Long: `Runs the full telemetry pipeline against in-process simulated
mouthguards: synthetic sensor frames are decoded, evaluated against the
thresholds, and served over websocket exactly as with real hardware. Useful
for dashboard development and demos.`,
	RunE: runSimulate,
}

var (
	simulateDevices  int
	simulateInterval time.Duration
)

func init() {
	simulateCmd.Flags().IntVarP(&simulateDevices, "devices", "n", 2, "Number of simulated mouthguards")
	simulateCmd.Flags().DurationVar(&simulateInterval, "interval", 200*time.Millisecond, "Telemetry frame interval")
	simulateCmd.Flags().String("listen", "", "Websocket listen address (overrides config)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
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

	central := simulator.NewCentral()
	peripherals := make([]*simulator.Peripheral, 0, simulateDevices)
	for i := 0; i < simulateDevices; i++ {
		id := fmt.Sprintf("SIM-%02d", i+1)
		p := simulator.NewPeripheral(id, "MGUARD-SIM").WithMouthguardProfile()
		central.Add(p)
		peripherals = append(peripherals, p)
	}

	mgr, cleanup, err := buildManager(cfg, central, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, p := range peripherals {
		if _, err := mgr.Connect(ctx, p.ID, cfg.ConnectTimeout); err != nil {
			return err
		}
	}
	defer mgr.Shutdown()

	opts := simulator.DefaultFeedOptions()
	opts.Interval = simulateInterval
	for _, p := range peripherals {
		peripheral := p
		groutine.Go(ctx, "feed-"+peripheral.ID, func(ctx context.Context) {
			peripheral.Feed(ctx, opts)
		})
	}

	// Echo alerts to the terminal alongside the websocket stream.
	alertSub := mgr.Events().Alerts.Subscribe(0)
	defer alertSub.Cancel()
	groutine.Go(ctx, "alert-echo", func(ctx context.Context) {
		red := color.New(color.FgRed, color.Bold)
		for {
			select {
			case <-ctx.Done():
				return
			case alert := <-alertSub.C():
				_, _ = red.Printf("ALERT [%s] device=%s magnitude=%.1f %s\n",
					alert.Severity, alert.DeviceID, alert.Magnitude, alert.Notes)
			}
		}
	})

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

	logger.WithField("listen", listen).Info("Simulating; press Ctrl+C to stop")
	<-ctx.Done()

	_ = server.Close()
	return nil
}

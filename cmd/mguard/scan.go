package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/mguard/internal/gatt"
	"github.com/srg/mguard/internal/gatt/goble"
	"github.com/srg/mguard/internal/monitor"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for mouthguards",
	Long: `Scan for nearby mouthguards and display their addresses, names, and
signal strength. By default only devices advertising the mouthguard sensor
services are shown; use --all to list every BLE device in range.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanAll      bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (0 uses the configured default)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Show all BLE devices, not just mouthguards")
}

// mouthguardFilter accepts devices advertising any of the vendor sensor
// services.
func mouthguardFilter(adv gatt.Advertisement) bool {
	vendor := map[string]bool{
		gatt.NormalizeUUID(gatt.ServiceIMU):           true,
		gatt.NormalizeUUID(gatt.ServiceAccelerometer): true,
		gatt.NormalizeUUID(gatt.ServiceTemperature):   true,
		gatt.NormalizeUUID(gatt.ServiceForce):         true,
	}
	for _, svc := range adv.Services() {
		if vendor[gatt.NormalizeUUID(svc)] {
			return true
		}
	}
	return false
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format %q: must be table or json", scanFormat)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	mgr, cleanup, err := buildManager(cfg, goble.NewCentral(logger), logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := mgr.RequestPermissions(cmd.Context()); err != nil {
		return err
	}

	opts := gatt.DefaultScanOptions()
	opts.Timeout = cfg.ScanTimeout
	if scanDuration > 0 {
		opts.Timeout = scanDuration
	}
	if !scanAll {
		opts.Filter = mouthguardFilter
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	devices, err := mgr.Scan(ctx, opts)
	if err != nil {
		return err
	}

	return printDiscovered(devices)
}

func printDiscovered(devices []monitor.Discovered) error {
	if scanFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found")
		return nil
	}

	bold := color.New(color.Bold)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = bold.Fprintln(w, "ADDRESS\tNAME\tRSSI\tCONNECTABLE")
	for _, d := range devices {
		name := d.Name
		if strings.TrimSpace(name) == "" {
			name = "(unknown)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\n", d.ID, name, d.RSSI, d.Connectable)
	}
	return w.Flush()
}

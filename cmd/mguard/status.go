package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/srg/mguard/internal/registry"
	"github.com/srg/mguard/internal/wshub"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show device status from a running monitor",
	Long: `Connects to a running monitor's websocket endpoint and prints device
status updates. The initial snapshot lists every known device; further lines
follow as statuses change. Use --once to print the snapshot and exit.`,
	RunE: runStatus,
}

var (
	statusURL  string
	statusOnce bool
)

func init() {
	statusCmd.Flags().StringVar(&statusURL, "url", "ws://localhost:8433/ws", "Websocket URL of the running monitor")
	statusCmd.Flags().BoolVar(&statusOnce, "once", false, "Print the initial snapshot and exit")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if _, err := configureLogger(cmd, cfg.LogLevel); err != nil {
		return err
	}
	cmd.SilenceUsage = true

	conn, _, err := websocket.DefaultDialer.Dial(statusURL, nil)
	if err != nil {
		return fmt.Errorf("connect to monitor at %s: %w", statusURL, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	// The snapshot arrives immediately; when --once, stop at the first lull.
	if statusOnce {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	}

	for {
		var env wshub.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if statusOnce || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read from monitor: %w", err)
		}
		if env.Type != wshub.TypeDeviceStatus {
			continue
		}

		raw, err := json.Marshal(env.Payload)
		if err != nil {
			continue
		}
		var st registry.DeviceStatus
		if err := json.Unmarshal(raw, &st); err != nil {
			continue
		}
		printStatus(st)
	}
}

func printStatus(st registry.DeviceStatus) {
	state := color.RedString("disconnected")
	if st.Connected {
		state = color.GreenString("connected")
	}
	battery := "-"
	if st.BatteryLevel != nil {
		battery = fmt.Sprintf("%d%%", *st.BatteryLevel)
	}
	operator := "-"
	if st.AssignedOperator != nil {
		operator = st.AssignedOperator.Name
	}
	fmt.Printf("%-20s %-12s battery=%-5s lastSeen=%s operator=%s\n",
		st.ID, state, battery, st.LastSeen.Format(time.RFC3339), operator)
}

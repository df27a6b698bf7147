package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/accstream/internal/device"
	"github.com/srg/accstream/internal/session"
	"golang.org/x/term"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Movesense sensors",
	Long: `Scans for connectable Bluetooth Low Energy devices for one scan window and
prints them in discovery order. Devices whose name carries the vendor marker
are flagged as sensors; only those can be streamed from.

Examples:
  accstream scan
  accstream scan --duration 10s --format json
  accstream scan --dedup id`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanDedup    string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan window (default from config, 5s)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringVar(&scanDedup, "dedup", "", "Collapse repeated advertisements by 'name' or 'id' (default from config)")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	if scanDuration > 0 {
		cfg.ScanDuration = scanDuration
	}
	if scanDedup != "" {
		cfg.DedupKey = scanDedup
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	a, err := openAppWith(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open BLE session: %w", err)
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	progress := NewCountdownProgressPrinter(out, "Scanning for sensors", "Scanning", cfg.ScanDuration)
	if showProgress(out) {
		progress.Start()
	}
	defer progress.Stop()

	if err := a.session.StartScan(ctx); err != nil {
		return err
	}

	snap, err := a.await(ctx, func(s session.Snapshot) bool { return !s.Scanning })
	if errors.Is(err, context.Canceled) {
		progress.Stop()
		fmt.Fprintln(out, "\nCtrl+C pressed, cancelling scan...")

		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		if err := a.session.StopScan(stopCtx); err != nil {
			return err
		}
		snap, err = a.session.Snapshot(stopCtx)
	}
	if err != nil {
		return err
	}

	progress.Stop()
	return displayDevices(out, snap.Devices, scanFormat, cfg.VendorMarker)
}

func displayDevices(out io.Writer, devices []device.Device, format, marker string) error {
	if format == "json" {
		if devices == nil {
			devices = []device.Device{}
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(devices)
	}

	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSENSOR")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, d := range devices {
		name := truncateName(d.DisplayName(), 24)
		sensor := "no"
		if strings.Contains(d.Name, marker) {
			sensor = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, d.ID, d.RSSI, sensor)
	}
	return w.Flush()
}

// truncateName shortens name to at most limit runes, marking the cut with "...".
func truncateName(name string, limit int) string {
	runes := []rune(name)
	if len(runes) <= limit {
		return name
	}
	return string(runes[:limit-3]) + "..."
}

// isTerminal reports whether out is an interactive terminal.
func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

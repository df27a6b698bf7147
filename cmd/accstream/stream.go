package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/accstream/internal/accel"
	"github.com/srg/accstream/internal/device"
	"github.com/srg/accstream/internal/session"
)

// streamCmd represents the stream command
var streamCmd = &cobra.Command{
	Use:   "stream <name-or-address>",
	Short: "Stream accelerometer samples from a sensor",
	Long: fmt.Sprintf(`Scans for the given sensor, connects to it, starts the accelerometer stream
and prints every decoded (x, y, z) sample until Ctrl+C or --count samples.
The sensor is stopped and disconnected on the way out.

Supported sample rates (Hz): %v

Examples:
  accstream stream "Movesense 123"
  accstream stream aa:bb:cc:dd:ee:01 --rate 52 --count 100
  accstream stream "Movesense 123" --json`, accel.SampleRates()),
	Args: cobra.ExactArgs(1),
	RunE: runStream,
}

var (
	streamRate    int
	streamCount   int
	streamJSON    bool
	streamNoColor bool
)

func init() {
	streamCmd.Flags().IntVarP(&streamRate, "rate", "r", 0, "Sample rate in Hz (default from config, 26)")
	streamCmd.Flags().IntVarP(&streamCount, "count", "n", 0, "Stop after this many samples (0 streams until Ctrl+C)")
	streamCmd.Flags().BoolVar(&streamJSON, "json", false, "Print samples as JSON lines")
	streamCmd.Flags().BoolVar(&streamNoColor, "no-color", false, "Disable colored output")
}

func runStream(cmd *cobra.Command, args []string) error {
	key := args[0]

	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	if streamRate != 0 {
		cfg.SampleRate = streamRate
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if streamCount < 0 {
		return fmt.Errorf("invalid count %d: must not be negative", streamCount)
	}

	cmd.SilenceUsage = true

	a, err := openAppWith(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open BLE session: %w", err)
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	printer := newSamplePrinter(out, streamJSON, streamNoColor || !isTerminal(out))

	fmt.Fprintf(out, "Looking for %s...\n", key)
	progress := NewProgressPrinter(out, fmt.Sprintf("Streaming from %s", key), "Scanning")
	if showProgress(out) {
		progress.Start()
	}
	defer progress.Stop()

	dev, err := connectSensor(ctx, a, key, progress)
	if err != nil {
		return err
	}

	progress.SetPhase("Subscribing")
	if err := a.session.StartStream(ctx); err != nil {
		return err
	}
	if _, err := a.await(ctx, func(s session.Snapshot) bool { return s.State == session.Streaming }); err != nil {
		return err
	}

	progress.Stop()
	fmt.Fprintf(out, "Connected to %s (%s)\n", dev.DisplayName(), dev.ID)
	fmt.Fprintf(out, "Streaming at %d Hz (Ctrl+C to stop)\n", cfg.SampleRate)

	received := 0
	for {
		select {
		case smp, ok := <-a.session.Samples():
			if !ok {
				return session.ErrClosed
			}
			if err := printer.Print(smp); err != nil {
				return err
			}
			received++
			if streamCount > 0 && received >= streamCount {
				return nil
			}
		case err := <-a.session.Errors():
			return classifyAsyncError(err)
		case <-ctx.Done():
			fmt.Fprintf(out, "\nReceived %d samples\n", received)
			return nil
		}
	}
}

// connectSensor scans until key shows up, selects it and connects.
// It returns the connected device.
func connectSensor(ctx context.Context, a *app, key string, progress *ProgressPrinter) (device.Device, error) {
	if err := a.session.StartScan(ctx); err != nil {
		return device.Device{}, err
	}

	snap, err := a.await(ctx, func(s session.Snapshot) bool {
		return !s.Scanning || hasDevice(s.Devices, key)
	})
	if err != nil {
		return device.Device{}, err
	}
	if !hasDevice(snap.Devices, key) {
		return device.Device{}, fmt.Errorf("%w: %s did not advertise within %s", ErrDeviceNotFound, key, a.cfg.ScanDuration)
	}

	if err := a.session.SelectDevice(ctx, key); err != nil {
		return device.Device{}, err
	}
	if err := a.session.StopScan(ctx); err != nil {
		return device.Device{}, err
	}

	progress.SetPhase("Connecting")
	if err := a.session.Connect(ctx); err != nil {
		return device.Device{}, err
	}
	snap, err = a.await(ctx, func(s session.Snapshot) bool { return s.State == session.Connected })
	if err != nil {
		return device.Device{}, err
	}
	return *snap.Selected, nil
}

func hasDevice(devices []device.Device, key string) bool {
	for _, d := range devices {
		if d.ID == key || d.Name == key {
			return true
		}
	}
	return false
}

// samplePrinter renders samples as aligned, colored columns or JSON lines.
type samplePrinter struct {
	out     io.Writer
	json    bool
	x, y, z func(format string, a ...interface{}) string
}

func newSamplePrinter(out io.Writer, asJSON, noColor bool) *samplePrinter {
	p := &samplePrinter{out: out, json: asJSON}
	colors := []*color.Color{color.New(color.FgRed), color.New(color.FgGreen), color.New(color.FgBlue)}
	for _, c := range colors {
		if noColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
	}
	p.x, p.y, p.z = colors[0].SprintfFunc(), colors[1].SprintfFunc(), colors[2].SprintfFunc()
	return p
}

func (p *samplePrinter) Print(s accel.Sample) error {
	if p.json {
		data, err := json.Marshal(jsonSample{X: jsonComponent(s.X), Y: jsonComponent(s.Y), Z: jsonComponent(s.Z)})
		if err != nil {
			return fmt.Errorf("failed to encode sample: %w", err)
		}
		_, err = fmt.Fprintln(p.out, string(data))
		return err
	}
	_, err := fmt.Fprintf(p.out, "x=%s  y=%s  z=%s\n",
		p.x("%9.4f", s.X), p.y("%9.4f", s.Y), p.z("%9.4f", s.Z))
	return err
}

type jsonSample struct {
	X jsonComponent `json:"x"`
	Y jsonComponent `json:"y"`
	Z jsonComponent `json:"z"`
}

// jsonComponent writes NaN and infinities as the strings "NaN", "+Inf"
// and "-Inf", which JSON numbers cannot represent.
type jsonComponent float32

func (c jsonComponent) MarshalJSON() ([]byte, error) {
	v := float64(c)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(float32(c))
}

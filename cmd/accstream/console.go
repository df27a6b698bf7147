package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/srg/accstream/internal/groutine"
	"github.com/srg/accstream/internal/session"
)

// consoleCmd represents the console command
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Drive a sensor session interactively",
	Long: `Opens an interactive console that issues session intents one at a time:
scan, select, connect, start and stop the stream, disconnect. State changes
and errors are printed as they happen. Type 'help' for the command list.`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

func runConsole(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "accstream> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	// Keep log lines from tearing the prompt.
	logger.SetOutput(rl.Stderr())

	a, err := openAppWith(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open BLE session: %w", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	c := newConsole(a, rl.Stdout())
	c.printHelp()
	groutine.Go(ctx, "console-events", c.printEvents)

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			return nil
		}
		if c.Execute(ctx, line) {
			fmt.Fprintln(c.out, "Exiting...")
			return nil
		}
	}
}

// Console maps console lines onto session intents.
type Console struct {
	app   *app
	out   io.Writer
	watch atomic.Bool
}

func newConsole(a *app, out io.Writer) *Console {
	return &Console{app: a, out: out}
}

// Execute runs one console line. It reports whether the console should exit.
func (c *Console) Execute(ctx context.Context, line string) (quit bool) {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	name := strings.ToLower(parts[0])
	args := parts[1:]
	sess := c.app.session

	var err error
	switch name {
	case "help", "?":
		c.printHelp()
	case "scan", "s":
		err = sess.StartScan(ctx)
	case "stop-scan":
		err = sess.StopScan(ctx)
	case "devices", "ls":
		err = c.cmdDevices(ctx)
	case "select", "sel":
		if len(args) == 0 {
			fmt.Fprintln(c.out, "Usage: select <name-or-address>")
			return false
		}
		// Sensor names contain spaces ("Movesense 123").
		err = sess.SelectDevice(ctx, strings.Join(args, " "))
	case "connect", "c":
		err = sess.Connect(ctx)
	case "start":
		err = sess.StartStream(ctx)
	case "stop":
		err = sess.StopStream(ctx)
	case "disconnect", "d":
		err = sess.Disconnect(ctx)
	case "status":
		err = c.cmdStatus(ctx)
	case "watch":
		c.cmdWatch(args)
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", name)
	}

	if err != nil {
		fmt.Fprintf(c.out, "Error: %s\n", FormatUserError(err))
	}
	return false
}

func (c *Console) cmdDevices(ctx context.Context) error {
	snap, err := c.app.session.Snapshot(ctx)
	if err != nil {
		return err
	}
	return displayDevices(c.out, snap.Devices, "table", c.app.cfg.VendorMarker)
}

func (c *Console) cmdStatus(ctx context.Context) error {
	snap, err := c.app.session.Snapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "State:      %s\n", snap.State)
	if snap.Selected != nil {
		fmt.Fprintf(c.out, "Selected:   %s (%s)\n", snap.Selected.DisplayName(), snap.Selected.ID)
	} else {
		fmt.Fprintln(c.out, "Selected:   -")
	}
	fmt.Fprintf(c.out, "Subscribed: %t\n", snap.Subscribed)
	fmt.Fprintf(c.out, "Scanning:   %t\n", snap.Scanning)
	fmt.Fprintf(c.out, "Devices:    %d\n", len(snap.Devices))
	if snap.Sample != nil {
		fmt.Fprintf(c.out, "Sample:     x=%.4f y=%.4f z=%.4f\n", snap.Sample.X, snap.Sample.Y, snap.Sample.Z)
	}
	return nil
}

func (c *Console) cmdWatch(args []string) {
	on := !c.watch.Load()
	if len(args) > 0 {
		on = args[0] == "on"
	}
	c.watch.Store(on)
	fmt.Fprintf(c.out, "Sample output %s\n", map[bool]string{true: "on", false: "off"}[on])
}

// printEvents reports state changes, errors and (when watching) samples
// until the session shuts down.
func (c *Console) printEvents(ctx context.Context) {
	sess := c.app.session
	printer := newSamplePrinter(c.out, false, !isTerminal(c.out))
	last := session.Idle

	for {
		select {
		case snap, ok := <-sess.Snapshots():
			if !ok {
				return
			}
			if snap.State != last {
				fmt.Fprintf(c.out, "[%s -> %s]\n", last, snap.State)
				last = snap.State
			}
		case err, ok := <-sess.Errors():
			if !ok {
				return
			}
			fmt.Fprintf(c.out, "Error: %s\n", FormatUserError(classifyAsyncError(err)))
		case smp, ok := <-sess.Samples():
			if !ok {
				return
			}
			if c.watch.Load() {
				if err := printer.Print(smp); err != nil {
					fmt.Fprintf(c.out, "Error: %s\n", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
accstream console commands:
  Discovery:
    scan               - Start a scan window (clears the device list)
    stop-scan          - End the scan early
    devices            - List discovered devices
    select <key>       - Select a sensor by name or address

  Session:
    connect            - Connect to the selected sensor
    start              - Start the accelerometer stream
    stop               - Stop the accelerometer stream
    disconnect         - Stop, disconnect and drop the selection
    status             - Show the session state and latest sample
    watch [on|off]     - Toggle printing every sample

    help               - Show this help
    quit               - Disconnect and exit`)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blesense/internal/devconfig"
	"github.com/srg/blesense/internal/eventloop"
	"github.com/srg/blesense/internal/groutine"
	"github.com/srg/blesense/internal/peripheral"
	"github.com/srg/blesense/internal/platform/sim"
	"github.com/srg/blesense/internal/ptyio"
	"github.com/srg/blesense/internal/radio"
	"github.com/srg/blesense/pkg/config"
	"golang.org/x/term"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sensor peripheral",
		Long: `Run the sensor peripheral until interrupted.

The radio is left alone for the settle delay, then the config record is
loaded. Without a valid record the peripheral stays passive and the command
exits cleanly. Otherwise the service is registered after the register delay,
advertising starts and the sensors are sampled every update interval.

With the simulated platform a console accepts press, move, battery, temp,
leds, history and status commands on stdin or on a pseudo-terminal.`,
		Args: cobra.NoArgs,
		RunE: runPeripheral,
	}
	cmd.Flags().String("platform", "", "Platform (sim, periph)")
	cmd.Flags().String("radio", "", "Radio backend (go-ble, tinygo, log)")
	cmd.Flags().Duration("settle-delay", 0, "Delay before the config record is loaded")
	cmd.Flags().Duration("register-delay", 0, "Delay between loading the config and registering the service")
	cmd.Flags().String("sim-script", "", "Lua script with battery() and temperature() for the simulator")
	cmd.Flags().String("console", "", "Simulator console (stdin, pty, none)")
	return cmd
}

// applyRunFlags overrides settings with the flags given on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	overrides := map[string]*string{
		"platform":   &cfg.Platform.Kind,
		"radio":      &cfg.Radio.Backend,
		"sim-script": &cfg.Platform.Sim.Script,
		"console":    &cfg.Platform.Sim.Console,
	}
	for name, field := range overrides {
		if cmd.Flags().Changed(name) {
			*field, _ = cmd.Flags().GetString(name)
		}
	}
	if cmd.Flags().Changed("settle-delay") {
		cfg.SettleDelay, _ = cmd.Flags().GetDuration("settle-delay")
	}
	if cmd.Flags().Changed("register-delay") {
		cfg.RegisterDelay, _ = cmd.Flags().GetDuration("register-delay")
	}
	return cfg.Validate()
}

func runPeripheral(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runSession(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
	switch {
	case errors.Is(err, devconfig.ErrNotConfigured):
		logger.WithError(err).Warn("Peripheral stays passive")
		fmt.Fprintln(cmd.OutOrStdout(), "Device is not configured; radio left inactive. Run 'blesense provision' first.")
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}

// runSession wires one peripheral session and runs its loop until ctx is
// done or a component fails.
func runSession(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, logger *logrus.Logger) error {
	gate, store, err := openGate(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := radio.NewLazyRegistry(func() (radio.Registry, error) {
		return registryFactory(cfg, logger)
	}, logger)
	defer func() {
		if err := registry.Close(); err != nil {
			logger.WithError(err).Debug("Registry close failed")
		}
	}()

	plat, simPlat, err := platformFactory(cfg, logger)
	if err != nil {
		return err
	}
	defer plat.Close()

	serviceUUID, err := cfg.ServiceUUID()
	if err != nil {
		return err
	}

	loop := eventloop.New(eventloop.RealClock{}, logger, nil)
	pub := radio.NewPublisher(registry, &radio.Options{
		ServiceUUID:      serviceUUID,
		ManufacturerID:   cfg.Radio.ManufacturerID,
		ManufacturerData: []byte(cfg.Radio.ManufacturerData),
		HistorySize:      cfg.Radio.HistorySize,
		OnFatal:          loop.Fail,
	}, logger)
	defer pub.Stop()

	seq := peripheral.New(loop, gate, pub, plat, peripheral.Options{
		SettleDelay:    cfg.SettleDelay,
		RegisterDelay:  cfg.RegisterDelay,
		ConfigName:     cfg.Store.ConfigName,
		AdvertisedName: cfg.Radio.Name,
		ServiceUUID:    serviceUUID,
	}, logger)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	consoleMode := sim.ConsoleNone
	if simPlat != nil {
		consoleMode = sim.ConsoleMode(cfg.Platform.Sim.Console)
		console := sim.NewConsole(simPlat, pub.DrainHistory, statusFunc(loop, seq), logger)
		if err := startConsole(sessionCtx, consoleMode, console, in, out, logger); err != nil {
			return err
		}
	}

	if consoleMode != sim.ConsoleStdin && cfg.SettleDelay > 0 && isTerminal(out) {
		countdown := NewCountdown(out, "Starting", "settling", cfg.SettleDelay)
		countdown.Start()
		defer countdown.Stop()
		loop.AfterFunc(cfg.SettleDelay, "settle-progress", countdown.Stop)
	}

	seq.Start(sessionCtx)
	err = loop.Run(sessionCtx)
	seq.Stop()

	logger.WithFields(logrus.Fields{
		"phase":     seq.Phase(),
		"busy":      pub.BusyCount(),
		"published": pub.Published(),
	}).Info("Peripheral stopped")
	return err
}

// statusFunc answers the console's status command from the loop goroutine.
func statusFunc(loop *eventloop.Loop, seq *peripheral.Sequencer) func() string {
	return func() string {
		ch := make(chan string, 1)
		loop.Post("console-status", func() {
			line := fmt.Sprintf("phase=%s button=%d motion=%s", seq.Phase(), seq.ButtonPayload(), seq.Motion())
			if cfg := seq.Config(); cfg != nil {
				line += fmt.Sprintf(" id=%s interval=%s", cfg.ID, cfg.UpdateInterval())
			}
			ch <- line
		})
		select {
		case line := <-ch:
			return line
		case <-time.After(time.Second):
			return "peripheral is busy"
		}
	}
}

func startConsole(ctx context.Context, mode sim.ConsoleMode, console *sim.Console, in io.Reader, out io.Writer, logger *logrus.Logger) error {
	switch mode {
	case sim.ConsoleNone:
		return nil
	case sim.ConsoleStdin:
		groutine.Go(ctx, "sim-console", func(ctx context.Context) {
			if err := console.ServeLines(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Warn("Console stopped")
			}
		})
		return nil
	case sim.ConsolePTY:
		p, err := ptyio.New(&ptyio.Options{Logger: logger})
		if err != nil {
			return fmt.Errorf("failed to open console pty: %w", err)
		}
		fmt.Fprintf(out, "Simulator console on %s\n", p.TTYName())
		groutine.Go(ctx, "sim-console", func(ctx context.Context) {
			defer p.Close()
			if err := console.Serve(ctx, p); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Warn("Console stopped")
			}
		})
		return nil
	default:
		return fmt.Errorf("unknown console mode %q", mode)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

package sim

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/characteristic"
	"github.com/srg/blesense/internal/platform"
	"github.com/srg/blesense/internal/radio"
	"golang.org/x/term"
)

const prompt = "blesense> "

// ConsoleMode selects where the console reads commands from.
type ConsoleMode string

const (
	ConsoleStdin ConsoleMode = "stdin"
	ConsolePTY   ConsoleMode = "pty"
	ConsoleNone  ConsoleMode = "none"
)

// Console drives the simulated platform from typed commands.
type Console struct {
	sim     *Platform
	history func() []radio.Batch
	status  func() string
	logger  *logrus.Logger
}

// NewConsole builds a console. history and status may be nil.
func NewConsole(sim *Platform, history func() []radio.Batch, status func() string, logger *logrus.Logger) *Console {
	if logger == nil {
		logger = logrus.New()
	}
	return &Console{sim: sim, history: history, status: status, logger: logger}
}

const helpText = `commands:
  press            press the button
  move [n]         deliver n motion samples (default 1)
  battery <pct>    set the static battery reading
  temp <celsius>   set the static temperature reading
  leds             show LED states
  history          print and clear the publish journal
  status           show the peripheral state
  help             show this text`

// Exec runs one command line and returns its output.
func (c *Console) Exec(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}

	switch cmd, args := strings.ToLower(fields[0]), fields[1:]; cmd {
	case "press":
		if c.sim.Press() {
			return "button pressed"
		}
		return "button not armed"
	case "move":
		n := 1
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 1 {
				return fmt.Sprintf("invalid sample count %q", args[0])
			}
			n = v
		}
		c.sim.Move(n)
		return fmt.Sprintf("%d motion sample(s) delivered", n)
	case "battery", "temp":
		if len(args) != 1 {
			return fmt.Sprintf("usage: %s <value>", cmd)
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Sprintf("invalid value %q", args[0])
		}
		if cmd == "battery" {
			c.sim.SetBattery(v)
		} else {
			c.sim.SetTemperature(v)
		}
		return fmt.Sprintf("%s = %g (published on the next sampling pass)", cmd, v)
	case "leds":
		return c.leds()
	case "history":
		return c.formatHistory()
	case "status":
		if c.status == nil {
			return "status unavailable"
		}
		return c.status()
	case "help", "?":
		return helpText
	default:
		return fmt.Sprintf("unknown command %q, try help", cmd)
	}
}

func (c *Console) leds() string {
	on := color.New(color.FgGreen, color.Bold).SprintFunc()
	off := color.New(color.Faint).SprintFunc()

	parts := make([]string, 0, 3)
	for _, led := range []platform.LED{platform.LED1, platform.LED2, platform.LED3} {
		if c.sim.LED(led) {
			parts = append(parts, on(led.String()+" on"))
		} else {
			parts = append(parts, off(led.String()+" off"))
		}
	}
	return strings.Join(parts, "  ")
}

func (c *Console) formatHistory() string {
	if c.history == nil {
		return "history unavailable"
	}
	batches := c.history()
	if len(batches) == 0 {
		return "no publishes since last drain"
	}

	var b strings.Builder
	for i, batch := range batches {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %-10s", batch.At.Format("15:04:05"), batch.Kind)
		for _, e := range batch.Entries {
			fmt.Fprintf(&b, " %s=%s", e.ID, formatValue(e.Value))
		}
	}
	return b.String()
}

func formatValue(v []byte) string {
	if characteristic.IsFiller(v) {
		return "-"
	}
	if len(v) > 8 {
		return hex.EncodeToString(v[:8]) + "…"
	}
	return hex.EncodeToString(v)
}

// Serve runs an interactive session with line editing on rw until it
// reaches EOF or ctx is done.
func (c *Console) Serve(ctx context.Context, rw io.ReadWriter) error {
	t := term.NewTerminal(rw, prompt)
	fmt.Fprintln(t, "type help for commands")
	for ctx.Err() == nil {
		line, err := t.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("console read: %w", err)
		}
		if out := c.Exec(line); out != "" {
			fmt.Fprintln(t, out)
		}
	}
	return nil
}

// ServeLines reads one command per line from r, for piped or plain stdin.
func (c *Console) ServeLines(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for ctx.Err() == nil && scanner.Scan() {
		if out := c.Exec(scanner.Text()); out != "" {
			fmt.Fprintln(w, out)
		}
	}
	return scanner.Err()
}

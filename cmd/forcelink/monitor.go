package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Cfabcher22/forcelink/internal/ble"
	"github.com/Cfabcher22/forcelink/internal/ble/goble"
	"github.com/Cfabcher22/forcelink/internal/link"
	"github.com/Cfabcher22/forcelink/internal/motor"
	"github.com/Cfabcher22/forcelink/internal/pipeline"
	"github.com/Cfabcher22/forcelink/internal/ringchan"
	"github.com/Cfabcher22/forcelink/internal/sched"
	"github.com/Cfabcher22/forcelink/internal/serialpty"
	"github.com/Cfabcher22/forcelink/internal/status"
	"github.com/Cfabcher22/forcelink/internal/wirefmt"
	"github.com/Cfabcher22/forcelink/pkg/config"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream upstream readings to a serial PTY",
	Long: `Subscribes to the configured upstream node and streams each validated
reading to a local pseudo-terminal as "ms,pounds" CSV rows, the same rows
the rig's wired boards print. Any serial reader on the PC can open the
slave device; plotting and logging tools work unchanged.

With --motor-char, lines typed into the PTY (UP, DOWN, STOP, optionally
with a step rate) are forwarded to the peer's motor command channel.

Example:
  forcelink monitor --peer GIGA_BLE_UART
  forcelink monitor --tty-symlink /tmp/forcelink-tty`,
	RunE: runMonitor,
}

var (
	monitorPeerName  string
	monitorSymlink   string
	monitorCSV       bool
	monitorMotorChar string
)

func init() {
	monitorCmd.Flags().StringVar(&monitorPeerName, "peer", "", "Upstream peer name to hunt for (overrides config)")
	monitorCmd.Flags().StringVar(&monitorSymlink, "tty-symlink", "", "Create a symlink to the PTY device (e.g., /tmp/forcelink-tty)")
	monitorCmd.Flags().BoolVar(&monitorCSV, "csv", false, "Echo the CSV rows to stdout as well")
	monitorCmd.Flags().StringVar(&monitorMotorChar, "motor-char", "", "Peer characteristic for typed motor commands (overrides config)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	cfg, err := loadNodeConfig(cmd, config.RoleMonitor)
	if err != nil {
		return err
	}
	if monitorPeerName != "" {
		cfg.Peer.Name = monitorPeerName
	}
	if monitorSymlink != "" {
		cfg.Serial.Symlink = monitorSymlink
	}
	if monitorMotorChar != "" {
		cfg.Peer.MotorCharUUID = monitorMotorChar
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	central, err := goble.NewCentral(logger)
	if err != nil {
		return err
	}
	defer central.Close()

	port, err := serialpty.Open(serialpty.DefaultBufferSize, logger)
	if err != nil {
		return err
	}
	defer port.Close()

	if cfg.Serial.Symlink != "" {
		if err := port.Symlink(cfg.Serial.Symlink); err != nil {
			return err
		}
	}
	fmt.Printf("Serial output on %s\n", port.TTYName())

	var echo io.Writer
	if monitorCSV {
		echo = os.Stdout
	}

	tasks, err := buildMonitorTasks(cfg, logger, central, port, echo, os.Stdout)
	if err != nil {
		return err
	}
	return runNode(cfg, logger, tasks...)
}

// buildMonitorTasks assembles a monitor node: an upstream central link whose
// validated payloads are rendered as CSV rows on the serial port, and echoed
// to echo when non-nil. Force and BASE reports both carry a pounds figure;
// the elapsed-ms column is zero for BASE rows, which have no timebase of
// their own. When the peer's motor channel is configured, lines typed into
// the PTY are parsed as motor commands and written upstream.
func buildMonitorTasks(cfg *config.Config, logger *logrus.Logger, central ble.Central, port *serialpty.Port, echo, out io.Writer) ([]sched.Task, error) {
	up := link.NewCentral(central, link.CentralConfig{
		PeerName:         cfg.Peer.Name,
		ServiceUUID:      cfg.Peer.ServiceUUID,
		CharUUID:         cfg.Peer.CharUUID,
		NegotiateTimeout: cfg.NegotiateTimeout(),
	}, logger)

	pipe := pipeline.New(pipeline.Options{
		Mode:           pipeline.ModeMonitor,
		Upstream:       up,
		NotifyInterval: cfg.NotifyInterval(),
		Logger:         logger,
		Sink: func(payload []byte) {
			var ms uint32
			var pounds float64
			if report, err := wirefmt.ParseForceReport(payload); err == nil {
				ms, pounds = report.ElapsedMs, report.Pounds
			} else if report, err := wirefmt.ParseBaseReport(payload); err == nil {
				pounds = report.Pounds
			} else {
				return
			}
			port.WriteRow(ms, pounds)
			if echo != nil {
				fmt.Fprintf(echo, "%d,%.1f\n", ms, pounds)
			}
		},
	})

	ind := status.NewIndicator(out)
	up.OnTransition(ind.Observer("upstream"))

	tasks := []sched.Task{sched.TaskFunc(pipe.Tick)}

	if cfg.Peer.MotorCharUUID != "" {
		motorChar := cfg.Peer.MotorCharUUID
		lines := ringchan.New[string](8)
		port.SetLineCallback(func(line string) { lines.ForceSend(line) })
		tasks = append(tasks, sched.TaskFunc(func(ctx context.Context, now time.Time) {
			for {
				line, ok := lines.TryReceive()
				if !ok {
					return
				}
				cmd := strings.TrimSpace(line)
				if cmd == "" {
					continue
				}
				if _, err := motor.ParseCommand([]byte(cmd)); err != nil {
					logger.WithField("line", cmd).Debug("Ignoring unrecognized serial input")
					continue
				}
				for _, chunk := range wirefmt.Chunk([]byte(cmd), wirefmt.MaxNotificationLen) {
					if err := up.Write(ctx, motorChar, chunk); err != nil {
						logger.WithError(err).Debug("Motor command not delivered")
						break
					}
				}
			}
		}))
	}

	return tasks, nil
}

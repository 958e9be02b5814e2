package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Cfabcher22/forcelink/internal/ble/blesim"
	"github.com/Cfabcher22/forcelink/internal/loadcell"
	"github.com/Cfabcher22/forcelink/internal/sched"
	"github.com/Cfabcher22/forcelink/internal/serialpty"
	"github.com/Cfabcher22/forcelink/pkg/config"
)

// Downstream attributes advertised by the simulated hub, distinct from the
// sensor's so the monitor never latches onto the sensor directly.
const (
	simHubName        = "SIM_HUB"
	simHubServiceUUID = "19B20000-E8F2-537E-4F6C-D104768A1214"
	simHubCharUUID    = "19B20001-E8F2-537E-4F6C-D104768A1214"
)

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a sensor, bridge and monitor in-process",
	Long: `Runs the whole chain over a simulated medium: a sensor node with a
synthetic load, a bridge republishing its reports, and a monitor streaming
CSV rows to a real pseudo-terminal. No BLE adapter is needed.

With --drop-every the sensor's connections are severed periodically,
exercising the recovery path: every link re-enters discovery and the chain
re-forms without intervention.

Example:
  forcelink simulate --load 25
  forcelink simulate --base --drop-every 10s
  forcelink simulate --duration 30s --tty-symlink /tmp/forcelink-sim`,
	RunE: runSimulate,
}

var (
	simulateLoad      float64
	simulateBase      bool
	simulateDropEvery time.Duration
	simulateDuration  time.Duration
	simulateSymlink   string
)

func init() {
	simulateCmd.Flags().Float64Var(&simulateLoad, "load", 25.0, "Synthetic load in pounds")
	simulateCmd.Flags().BoolVar(&simulateBase, "base", false, "Bridge re-encodes reports as BASE reports")
	simulateCmd.Flags().DurationVar(&simulateDropEvery, "drop-every", 0, "Sever sensor connections at this interval (0 to disable)")
	simulateCmd.Flags().DurationVar(&simulateDuration, "duration", 0, "Stop after this long (0 to run until Ctrl+C)")
	simulateCmd.Flags().StringVar(&simulateSymlink, "tty-symlink", "", "Create a symlink to the monitor's PTY device")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	air := blesim.NewAir(logger)

	sensorCfg := config.Default()
	sensorCfg.Role = config.RoleSensor

	bridgeCfg := config.Default()
	bridgeCfg.Role = config.RoleBridge
	bridgeCfg.Peer.Name = sensorCfg.Advertise.Name
	bridgeCfg.Advertise.Name = simHubName
	bridgeCfg.Advertise.ServiceUUID = simHubServiceUUID
	bridgeCfg.Advertise.CharUUID = simHubCharUUID

	monitorCfg := config.Default()
	monitorCfg.Role = config.RoleMonitor
	monitorCfg.Peer.Name = simHubName
	monitorCfg.Peer.ServiceUUID = simHubServiceUUID
	monitorCfg.Peer.CharUUID = simHubCharUUID
	monitorCfg.Serial.Symlink = simulateSymlink

	for _, cfg := range []*config.Config{sensorCfg, bridgeCfg, monitorCfg} {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	sensorPeripheral := air.NewPeripheral("aa:00:00:00:00:01")

	sensorTasks, err := buildSensorTasks(sensorCfg, logger, sensorPeripheral, loadcell.NewSimSampler(), simulateLoad, os.Stdout)
	if err != nil {
		return err
	}

	bridgeTasks, err := buildBridgeTasks(bridgeCfg, logger,
		air.NewCentral("cc:00:00:00:00:01"),
		air.NewPeripheral("aa:00:00:00:00:02"),
		simulateBase, os.Stdout)
	if err != nil {
		return err
	}

	port, err := serialpty.Open(serialpty.DefaultBufferSize, logger)
	if err != nil {
		return err
	}
	defer port.Close()
	if monitorCfg.Serial.Symlink != "" {
		if err := port.Symlink(monitorCfg.Serial.Symlink); err != nil {
			return err
		}
	}
	fmt.Printf("Serial output on %s\n", port.TTYName())

	monitorTasks, err := buildMonitorTasks(monitorCfg, logger, air.NewCentral("cc:00:00:00:00:02"), port, nil, os.Stdout)
	if err != nil {
		return err
	}

	var tasks []sched.Task
	tasks = append(tasks, sensorTasks...)
	tasks = append(tasks, bridgeTasks...)
	tasks = append(tasks, monitorTasks...)

	if simulateDropEvery > 0 {
		tasks = append(tasks, sched.Every(simulateDropEvery, sched.TaskFunc(func(ctx context.Context, now time.Time) {
			logger.Info("Fault injection: severing sensor connections")
			sensorPeripheral.DropConnections()
		})))
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if simulateDuration > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), simulateDuration)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		logger.Info("Received interrupt signal, shutting down...")
		cancel()
	}()

	loop := sched.New(sensorCfg.TickInterval(), logger)
	loop.Add(tasks...)

	err = loop.Run(ctx)
	// A deadline expiring is the requested run length, not a failure.
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

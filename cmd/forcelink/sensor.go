package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Cfabcher22/forcelink/internal/ble"
	"github.com/Cfabcher22/forcelink/internal/ble/goble"
	"github.com/Cfabcher22/forcelink/internal/link"
	"github.com/Cfabcher22/forcelink/internal/loadcell"
	"github.com/Cfabcher22/forcelink/internal/motor"
	"github.com/Cfabcher22/forcelink/internal/pipeline"
	"github.com/Cfabcher22/forcelink/internal/ringchan"
	"github.com/Cfabcher22/forcelink/internal/sched"
	"github.com/Cfabcher22/forcelink/internal/status"
	"github.com/Cfabcher22/forcelink/pkg/config"
)

// sensorCmd represents the sensor command
var sensorCmd = &cobra.Command{
	Use:   "sensor",
	Short: "Run a load-cell sensor node",
	Long: `Samples the load cell, conditions the reading (baseline tracking with
a dead zone), and publishes force reports over BLE to whichever central
subscribes. If a motor command characteristic is configured, writes to it
drive the stepper state.

Without load-cell hardware attached, --sim-load generates a synthetic
load profile so the rest of the chain can be exercised.

Example:
  forcelink sensor
  forcelink sensor --name LEFT_CELL --sim-load 25.0`,
	RunE: runSensor,
}

var (
	sensorName    string
	sensorSimLoad float64
)

func init() {
	sensorCmd.Flags().StringVar(&sensorName, "name", "", "Advertised device name (overrides config)")
	sensorCmd.Flags().Float64Var(&sensorSimLoad, "sim-load", 0, "Synthetic load in pounds for the simulated cell")
}

func runSensor(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	cfg, err := loadNodeConfig(cmd, config.RoleSensor)
	if err != nil {
		return err
	}
	if sensorName != "" {
		cfg.Advertise.Name = sensorName
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	peripheral, err := goble.NewPeripheral(logger)
	if err != nil {
		return err
	}
	defer peripheral.Close()

	tasks, err := buildSensorTasks(cfg, logger, peripheral, loadcell.NewSimSampler(), sensorSimLoad, os.Stdout)
	if err != nil {
		return err
	}
	return runNode(cfg, logger, tasks...)
}

// buildSensorTasks assembles a sensor node over any stack side around the
// given cell and returns its scheduler tasks. The simulate command reuses it
// with the in-memory medium.
func buildSensorTasks(cfg *config.Config, logger *logrus.Logger, peripheral ble.Peripheral, sim *loadcell.SimSampler, simLoad float64, out io.Writer) ([]sched.Task, error) {
	identity, err := cfg.AdvertiseIdentity()
	if err != nil {
		return nil, err
	}

	down := link.NewPeripheral(peripheral, identity, cfg.Advertise.CharUUID, logger)

	sampler := loadcell.NewScaledSampler(sim, cfg.Signal.Scale)
	// Zero the cell against its power-up offset before any load lands, so
	// the baseline tracks from a true zero.
	if err := sampler.Tare(context.Background()); err != nil {
		return nil, fmt.Errorf("boot tare failed: %w", err)
	}
	sim.SetLoad(simLoad)
	cond := loadcell.NewConditioner(cfg.Signal.DeadZone, cfg.Signal.Alpha)

	pipe := pipeline.New(pipeline.Options{
		Mode:           pipeline.ModeSensor,
		Downstream:     down,
		Sampler:        sampler,
		Conditioner:    cond,
		SampleInterval: cfg.SampleInterval(),
		NotifyInterval: cfg.NotifyInterval(),
		Logger:         logger,
	})

	ind := status.NewIndicator(out)
	down.OnTransition(ind.Observer(identity.Name))

	tasks := []sched.Task{sched.TaskFunc(pipe.Tick)}

	if cfg.Advertise.MotorCharUUID != "" {
		ctrl := motor.NewController()
		cmds := ringchan.New[[]byte](8)
		down.OnWrite(cfg.Advertise.MotorCharUUID, func(payload []byte) {
			cmds.ForceSend(append([]byte(nil), payload...))
		})
		tasks = append(tasks, sched.TaskFunc(func(ctx context.Context, now time.Time) {
			for {
				payload, ok := cmds.TryReceive()
				if !ok {
					return
				}
				if err := ctrl.HandleWrite(payload); err != nil {
					if errors.Is(err, motor.ErrUnknownCommand) {
						logger.WithField("payload", string(payload)).
							Debug("Ignoring unknown motor command")
						continue
					}
					logger.WithError(err).Warn("Motor command failed")
					continue
				}
				logger.WithFields(logrus.Fields{
					"direction": ctrl.Direction().String(),
					"sps":       ctrl.StepsPerSec(),
					"running":   ctrl.Running(),
				}).Info("Motor state changed")
			}
		}))
	}

	return tasks, nil
}

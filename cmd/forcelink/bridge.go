package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Cfabcher22/forcelink/internal/ble"
	"github.com/Cfabcher22/forcelink/internal/ble/goble"
	"github.com/Cfabcher22/forcelink/internal/link"
	"github.com/Cfabcher22/forcelink/internal/pipeline"
	"github.com/Cfabcher22/forcelink/internal/sched"
	"github.com/Cfabcher22/forcelink/internal/status"
	"github.com/Cfabcher22/forcelink/pkg/config"
)

// bridgeCmd represents the bridge command
var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run a dual-role bridge node",
	Long: `Hunts for the configured upstream peer as a central, subscribes to its
force reports, and republishes them downstream as a peripheral. Both links
recover on their own: a lost upstream re-enters scanning, a lost downstream
subscriber is simply waited for, and traffic with nowhere to go is dropped,
never queued.

By default reports are forwarded byte-for-byte. With --base the bridge acts
as the base station and re-encodes each force report as a BASE report.

Example:
  forcelink bridge --peer GIGA_BLE_UART --name HUB_01
  forcelink bridge --base`,
	RunE: runBridge,
}

var (
	bridgePeerName string
	bridgeName     string
	bridgeBase     bool
)

func init() {
	bridgeCmd.Flags().StringVar(&bridgePeerName, "peer", "", "Upstream peer name to hunt for (overrides config)")
	bridgeCmd.Flags().StringVar(&bridgeName, "name", "", "Advertised device name (overrides config)")
	bridgeCmd.Flags().BoolVar(&bridgeBase, "base", false, "Re-encode force reports as BASE reports")
}

func runBridge(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	// A config file may pin the base role; the flag can also force it.
	if cfg.Role == config.RoleBase {
		bridgeBase = true
	}
	cfg.Role = config.RoleBridge
	if bridgePeerName != "" {
		cfg.Peer.Name = bridgePeerName
	}
	if bridgeName != "" {
		cfg.Advertise.Name = bridgeName
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	central, err := goble.NewCentral(logger)
	if err != nil {
		return err
	}
	defer central.Close()

	peripheral, err := goble.NewPeripheral(logger)
	if err != nil {
		return err
	}
	defer peripheral.Close()

	tasks, err := buildBridgeTasks(cfg, logger, central, peripheral, bridgeBase, os.Stdout)
	if err != nil {
		return err
	}
	return runNode(cfg, logger, tasks...)
}

// buildBridgeTasks assembles a bridge node over any stack sides.
func buildBridgeTasks(cfg *config.Config, logger *logrus.Logger, central ble.Central, peripheral ble.Peripheral, base bool, out io.Writer) ([]sched.Task, error) {
	identity, err := cfg.AdvertiseIdentity()
	if err != nil {
		return nil, err
	}

	up := link.NewCentral(central, link.CentralConfig{
		PeerName:         cfg.Peer.Name,
		ServiceUUID:      cfg.Peer.ServiceUUID,
		CharUUID:         cfg.Peer.CharUUID,
		NegotiateTimeout: cfg.NegotiateTimeout(),
	}, logger)
	down := link.NewPeripheral(peripheral, identity, cfg.Advertise.CharUUID, logger)

	mode := pipeline.ModeRelay
	if base {
		mode = pipeline.ModeBase
	}

	pipe := pipeline.New(pipeline.Options{
		Mode:           mode,
		Upstream:       up,
		Downstream:     down,
		NotifyInterval: cfg.NotifyInterval(),
		Logger:         logger,
	})

	ind := status.NewIndicator(out)
	up.OnTransition(ind.Observer("upstream"))
	down.OnTransition(ind.Observer(identity.Name))

	return []sched.Task{sched.TaskFunc(pipe.Tick)}, nil
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Cfabcher22/forcelink/internal/sched"
	"github.com/Cfabcher22/forcelink/pkg/config"
)

// loadNodeConfig reads the optional --config file, forces the role the
// subcommand implies, and validates the result.
func loadNodeConfig(cmd *cobra.Command, role string) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.Role = role
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runNode drives the cooperative loop until Ctrl+C or SIGTERM. A clean
// interrupt is reported as context.Canceled, which main() treats as a
// normal exit.
func runNode(cfg *config.Config, logger *logrus.Logger, tasks ...sched.Task) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		logger.Info("Received interrupt signal, shutting down...")
		cancel()
	}()

	loop := sched.New(cfg.TickInterval(), logger)
	loop.Add(tasks...)

	err := loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

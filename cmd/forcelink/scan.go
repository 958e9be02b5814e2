package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Cfabcher22/forcelink/internal/ble"
	"github.com/Cfabcher22/forcelink/internal/ble/goble"
	"github.com/Cfabcher22/forcelink/internal/bleid"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for rig nodes",
	Long: `Scans for advertising BLE devices and lists them, so sensor and hub
names can be confirmed before wiring a bridge or monitor to them.

By default only devices advertising the configured service are shown;
--all lists everything in range.

Example:
  forcelink scan
  forcelink scan --all --duration 5s --format json`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanAll      bool
	scanService  string
)

// scanEntry is one discovered device, newest advertisement wins.
type scanEntry struct {
	Name     string   `json:"name,omitempty"`
	Addr     string   `json:"address"`
	RSSI     int      `json:"rssi"`
	Services []string `json:"services,omitempty"`
}

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "List every device, not just rig nodes")
	scanCmd.Flags().StringVar(&scanService, "service", "19B10000-E8F2-537E-4F6C-D104768A1214", "Service UUID identifying rig nodes")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format %q: must be table or json", scanFormat)
	}

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	var filter string
	if !scanAll {
		uuids, err := bleid.ValidateUUID(scanService)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
		filter = uuids[0]
	}

	central, err := goble.NewCentral(logger)
	if err != nil {
		return err
	}
	defer central.Close()

	var mu sync.Mutex
	seen := make(map[string]scanEntry)

	err = central.StartScan(func(adv ble.Advertisement) {
		if filter != "" && !advertisesService(adv, filter) {
			return
		}
		mu.Lock()
		seen[adv.Addr()] = scanEntry{
			Name:     adv.LocalName(),
			Addr:     adv.Addr(),
			RSSI:     adv.RSSI(),
			Services: adv.ServiceUUIDs(),
		}
		mu.Unlock()
	})
	if err != nil {
		return err
	}

	time.Sleep(scanDuration)
	if err := central.StopScan(); err != nil {
		logger.WithError(err).Warn("Failed to stop scan")
	}

	mu.Lock()
	entries := make([]scanEntry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	mu.Unlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].RSSI > entries[j].RSSI })

	return printScanResults(entries, scanFormat)
}

func advertisesService(adv ble.Advertisement, uuid string) bool {
	for _, u := range adv.ServiceUUIDs() {
		if bleid.Equal(u, uuid) {
			return true
		}
	}
	return false
}

func printScanResults(entries []scanEntry, format string) error {
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES")
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = "(unknown)"
		}
		services := make([]string, 0, len(e.Services))
		for _, s := range e.Services {
			services = append(services, bleid.ShortenUUID(s))
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", name, e.Addr, e.RSSI, strings.Join(services, ","))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nFound %d device(s)\n", len(entries))
	return nil
}

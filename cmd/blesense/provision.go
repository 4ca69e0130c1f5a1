package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blesense/internal/devconfig"
)

func newProvisionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the device config record",
		Long: `Create the device config record read by the peripheral at startup.

The record is written only when no record with the same name exists; an
existing record is never overwritten. Use 'blesense config erase' first to
provision the device again.`,
		Example: `  blesense provision --endpoint https://collector.example/api/v1/ingest --interval 6
  blesense provision --id dev-1 --endpoint https://collector.example/ingest --store sqlite --store-path ./dev.db`,
		Args: cobra.NoArgs,
		RunE: runProvision,
	}
	cmd.Flags().String("id", "", "Device id (default: random UUID)")
	cmd.Flags().String("endpoint", "", "Collector endpoint URL")
	cmd.Flags().Int("interval", 1, "Sampling interval in hours")
	cmd.Flags().String("name", "", "Record name (default from settings)")
	_ = cmd.MarkFlagRequired("endpoint")
	return cmd
}

func runProvision(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		id = uuid.NewString()
	}
	endpoint, _ := cmd.Flags().GetString("endpoint")
	interval, _ := cmd.Flags().GetInt("interval")
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = cfg.Store.ConfigName
	}

	gate, store, err := openGate(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	record := devconfig.DeviceConfig{ID: id, Endpoint: endpoint, UpdateIntervalHours: interval}
	written, err := gate.Write(name, record)
	if err != nil {
		return err
	}
	if !written {
		return fmt.Errorf("%w: record %q exists", ErrAlreadyProvisioned, name)
	}

	logger.WithFields(logrus.Fields{"record": name, "store": cfg.Store.Kind}).Debug("Provisioned")
	fmt.Fprintf(cmd.OutOrStdout(), "Provisioned %s\n  id:       %s\n  endpoint: %s\n  interval: %dh\n", name, id, endpoint, interval)
	return nil
}

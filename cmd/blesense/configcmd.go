package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/blesense/internal/devconfig"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or erase the device config record",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Load the config record through the startup gate and print it",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
	show.Flags().StringP("format", "f", "table", "Output format (table, json)")

	erase := &cobra.Command{
		Use:   "erase",
		Short: "Remove the config record so the device can be provisioned again",
		Args:  cobra.NoArgs,
		RunE:  runConfigErase,
	}

	cmd.AddCommand(show, erase)
	return cmd
}

func validateFormat(format string) error {
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := validateFormat(format); err != nil {
		return err
	}

	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	gate, store, err := openGate(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	record, err := gate.Load(cfg.Store.ConfigName)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}
	printRecord(out, cfg.Store.ConfigName, record)
	return nil
}

func printRecord(out io.Writer, name string, record *devconfig.DeviceConfig) {
	key := color.New(color.FgCyan).SprintFunc()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", key("record"), name)
	fmt.Fprintf(w, "%s\t%s\n", key("id"), record.ID)
	fmt.Fprintf(w, "%s\t%s\n", key("endpoint"), record.Endpoint)
	fmt.Fprintf(w, "%s\t%s\n", key("interval"), record.UpdateInterval())
	fmt.Fprintf(w, "%s\t%s\n", key("published"), color.GreenString(record.Blob()))
	_ = w.Flush()
}

func runConfigErase(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	gate, store, err := openGate(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := gate.Erase(cfg.Store.ConfigName); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Erased %s\n", cfg.Store.ConfigName)
	return nil
}

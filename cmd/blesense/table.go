package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/blesense/internal/characteristic"
	"github.com/srg/blesense/internal/peripheral"
)

func newTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Print the characteristic table the peripheral would publish",
		Long: `Load the config record and build the characteristic table exactly as
startup does before registering the service. Nothing is sent over the radio.`,
		Args: cobra.NoArgs,
		RunE: runTable,
	}
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	return cmd
}

func runTable(cmd *cobra.Command, _ []string) error {
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
	serviceUUID, err := cfg.ServiceUUID()
	if err != nil {
		return err
	}

	table := characteristic.NewTable(logger)
	if err := peripheral.Populate(table, serviceUUID, record); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(table.Snapshot())
	}
	printTable(out, table.Snapshot())
	return nil
}

func printTable(out io.Writer, entries []characteristic.Entry) {
	header := color.New(color.Bold).SprintFunc()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", header("UUID"), header("PROPERTIES"), header("VALUE"), header("DESCRIPTION"))
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, properties(e.Record), formatValue(e.Value), e.Description)
	}
	_ = w.Flush()
}

func properties(rec characteristic.Record) string {
	props := ""
	for _, p := range []struct {
		on   bool
		name string
	}{{rec.Readable, "R"}, {rec.Writable, "W"}, {rec.Notify, "N"}} {
		if p.on {
			props += p.name
		}
	}
	return props
}

func formatValue(v []byte) string {
	if characteristic.IsFiller(v) {
		return "-"
	}
	if isPrintable(v) {
		return fmt.Sprintf("%q", v)
	}
	return fmt.Sprintf("%x", v)
}

func isPrintable(v []byte) bool {
	for _, b := range v {
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return len(v) > 0
}

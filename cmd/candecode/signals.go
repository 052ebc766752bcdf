package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mscrnt/candecode/pkg/signaldb"
)

func signalsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "signals [file.dbc]",
		Short: "List messages and signals of a DBC file",
		Long: `List the messages and signals defined in a DBC file.

Examples:
  # Human readable listing
  candecode signals vehicle.dbc

  # Machine readable
  candecode signals vehicle.dbc --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := signaldb.LoadFile(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(database.Messages())
			}

			for _, msg := range database.Messages() {
				sender := msg.Sender
				if sender == "" {
					sender = "-"
				}
				fmt.Fprintf(out, "0x%03X %s (%d bytes, sender %s)\n", msg.ID, msg.Name, msg.Size, sender)

				for _, sig := range msg.Signals {
					fmt.Fprintf(out, "  %-24s %s %-8s x%s %+g [%g, %g] %s\n",
						sig.Name,
						sig.Layout(),
						multiplexing(sig),
						strconv.FormatFloat(sig.Factor, 'g', -1, 64),
						sig.Offset,
						sig.Minimum,
						sig.Maximum,
						sig.Unit,
					)
					for _, raw := range sig.ChoiceValues() {
						fmt.Fprintf(out, "      %d = %s\n", raw, sig.Choices[raw])
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}

func multiplexing(sig *signaldb.Signal) string {
	switch {
	case sig.IsMultiplexer:
		return "M"
	case sig.Multiplexed:
		return "m" + strconv.FormatUint(sig.MuxValue, 10)
	default:
		return ""
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/tmplay/examples"
	"pkt.systems/tmplay/schema"
)

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples [NAME]",
		Short: "List bundled example programs or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				_, source, err := examples.Get(schema.ExampleName(args[0]))
				if err != nil {
					return fmt.Errorf("example %q: %w", args[0], err)
				}
				_, err = fmt.Fprint(out, source)
				return err
			}
			list := examples.List()
			nameWidth, tapeWidth := len("NAME"), len("TAPE")
			for _, info := range list {
				nameWidth = max(nameWidth, len(info.Name))
				tapeWidth = max(tapeWidth, len(info.Tape))
			}
			if _, err := fmt.Fprintf(out, "%-*s  %-*s  %s\n", nameWidth, "NAME", tapeWidth, "TAPE", "TITLE"); err != nil {
				return err
			}
			for _, info := range list {
				marker := ""
				if info.Name == examples.DefaultName {
					marker = " (default)"
				}
				if _, err := fmt.Fprintf(out, "%-*s  %-*s  %s%s\n", nameWidth, info.Name, tapeWidth, info.Tape, info.Title, marker); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

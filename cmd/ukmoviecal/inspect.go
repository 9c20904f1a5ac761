package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ukmoviecal/internal/ics"
)

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.ics>",
		Short: "List the events of a generated calendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			n, err := ics.Inspect(cmd.OutOrStdout(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d events\n", n)
			return nil
		},
	}
}

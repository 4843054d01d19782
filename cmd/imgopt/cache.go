package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newCacheCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the optimization cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print key counts and estimated size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.close()

			st, err := a.cache.Stats(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear [pattern]",
		Short: "Delete cached entries matching a glob pattern (default img_*)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pattern string
			if len(args) == 1 {
				pattern = args[0]
			}

			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.cache.Clear(cmd.Context(), pattern)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "deleted %d keys\n", n)
			return nil
		},
	})

	return cmd
}

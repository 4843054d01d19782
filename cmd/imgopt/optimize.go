package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"imgopt-gateway/internal/optimizer"
	"imgopt-gateway/internal/transform"
)

func newOptimizeCmd(c *cli) *cobra.Command {
	var (
		format      string
		quality     int
		thumbnail   bool
		reference   bool
		withPayload bool
	)

	cmd := &cobra.Command{
		Use:   "optimize <url>...",
		Short: "Optimize images and print the batch result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optimizer.Options{
				Quality:         quality,
				IsThumbnail:     thumbnail,
				ReturnReference: reference,
			}
			if format != "" {
				codec, err := transform.ParseCodec(format)
				if err != nil {
					return err
				}
				opts.Format = codec
			}

			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.close()

			out, err := a.optimizer.OptimizeBatch(cmd.Context(), args, opts)
			if err != nil {
				return err
			}
			if !withPayload {
				for _, r := range out.Results {
					r.OptimizedBase64 = ""
					r.OptimizedURLOrBase64 = r.OptimizedURL
				}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: WEBP, JPEG, AVIF or PNG")
	cmd.Flags().IntVarP(&quality, "quality", "q", 0, "encoder quality 1-100 (default per format)")
	cmd.Flags().BoolVar(&thumbnail, "thumbnail", false, "fit into the thumbnail box")
	cmd.Flags().BoolVar(&reference, "reference", false, "return /optimized/ references instead of base64")
	cmd.Flags().BoolVar(&withPayload, "payload", false, "include the base64 payload in the output")
	return cmd
}

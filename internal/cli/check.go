package cli

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/onnxport/internal/export"
)

func (c *CLI) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check model.onnx...",
		Short: "Check that ONNX files are well formed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				data, err := os.ReadFile(path) //nolint:gosec // G304: paths come from the command line
				if err == nil {
					err = export.CheckSerialized(data)
				}
				if err != nil {
					c.printError("%s: %v", path, err)
					failed++
					continue
				}
				c.printSuccess("%s", path)
			}
			if failed > 0 {
				return errors.Errorf("%d of %d models failed the check", failed, len(args))
			}
			return nil
		},
	}
}

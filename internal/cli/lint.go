package cli

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/onnxport/internal/export"
	"github.com/born-ml/onnxport/internal/loader"
)

func (c *CLI) lintCommand() *cobra.Command {
	var (
		policy string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "lint model.yaml",
		Short: "Validate a graph description and report missing provenance",
		Long: `Validate a graph description against an operator export type and report
nodes without a source range or scope. The graph is not exported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := export.ParseOperatorExportType(policy)
			if err != nil {
				return err
			}
			loaded, err := loader.LoadGraphFile(args[0])
			if err != nil {
				return err
			}
			if err := export.Validate(loaded.Graph, p); err != nil {
				c.printError("%v", err)
				return errors.Errorf("%s cannot be exported with policy %s", args[0], p)
			}
			c.printSuccess("%s exports with policy %s", args[0], p)

			r := export.Lint(loaded.Graph)
			c.printField("nodes", r.Nodes)
			c.printField("no source", r.MissingSourceRange)
			c.printDetail("%d of them constants", r.MissingSourceRangeConstants)
			c.printField("no scope", r.MissingScope)
			c.printDetail("%d of them constants", r.MissingScopeConstants)
			if r.Clean() {
				return nil
			}
			c.printWarning("nodes missing provenance: %v", r.Ops)
			if strict {
				return errors.New("graph has nodes without provenance")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&policy, "policy", export.PolicyONNX.String(), "operator export type to validate against")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any node lacks a source range or scope")
	return cmd
}

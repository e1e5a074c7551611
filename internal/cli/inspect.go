package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxport/internal/onnx"
)

func (c *CLI) inspectCommand() *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "inspect model.onnx",
		Short: "Summarize an ONNX model",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			m, err := onnx.ParseFile(args[0])
			if err != nil {
				return err
			}
			if dump {
				fmt.Fprint(c.out, onnx.Format(m))
				return nil
			}
			c.printInfo(args[0], m)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "print the whole model as text")
	return cmd
}

func (c *CLI) printInfo(path string, m *onnx.ModelProto) {
	info := onnx.Info(m)
	c.printTitle(path)
	c.printField("ir version", info.IRVersion)
	c.printField("opset", info.OpsetVersion)
	c.printField("domains", info.Domains)
	c.printField("producer", info.ProducerName+" "+info.ProducerVersion)
	c.printField("inputs", info.InputNames)
	c.printField("outputs", info.OutputNames)
	c.printField("nodes", info.NodeCount)
	c.printField("weights", info.WeightCount)
	if info.ExternalCount > 0 {
		c.printField("external", info.ExternalCount)
	}
	if info.FunctionCount > 0 {
		c.printField("functions", info.FunctionCount)
	}

	hist := onnx.OpHistogram(m)
	if len(hist) == 0 {
		return
	}
	c.printTitle("operators")
	for _, op := range onnx.SortedKeys(hist) {
		c.printField(op, hist[op])
	}
}

// Package cli implements the onnxport command-line interface.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/onnxport/internal/export"
)

const appName = "onnxport"

// CLI holds state shared by all commands.
type CLI struct {
	out io.Writer
}

// New returns a CLI printing to out.
func New(out io.Writer) *CLI {
	return &CLI{out: out}
}

// RootCommand creates the root command with every subcommand registered.
// klog's flags (-v, --logtostderr, ...) are persistent flags of the root.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Serialize computation graphs as ONNX models",
		Long: `onnxport turns a computation graph described in YAML, together with its
weights, into an ONNX model. Large weights can be stored next to the model,
in a SafeTensors file or in Google Cloud Storage.`,
		Version:       export.ProducerVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger := klog.Background().WithName(cmd.Name())
			cmd.SetContext(klog.NewContext(cmd.Context(), logger))
		},
	}
	root.SetOut(c.out)

	klogFlags := flag.NewFlagSet(appName, flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)

	root.AddCommand(c.exportCommand())
	root.AddCommand(c.checkCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.lintCommand())
	root.AddCommand(c.versionCommand())
	return root
}

// Execute runs the command line args against a fresh root command.
func Execute(ctx context.Context, args []string) error {
	defer klog.Flush()
	root := New(os.Stdout).RootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(c.out, "%s %s (default opset %d, IR version %d)\n",
				appName, export.ProducerVersion, export.DefaultOpsetVersion, export.DefaultIRVersion)
		},
	}
}

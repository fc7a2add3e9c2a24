package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alantheprice/svgmap/pkg/session"
)

var (
	generateOutput string
	generateLegend bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [description]",
	Short: "Plan and draw a new map from a description",
	Long: `Plan and draw a new map from a natural-language description.

The model first splits the scene into layers (background first), then draws
each layer in order. Progress is printed to stderr. If a layer fails, the map
drawn so far is still written and the command exits with an error.

Examples:
  svgmap generate "A small island with a sandy beach and a few palm trees"
  svgmap generate -o valley.svg --legend "A river valley between two mountains"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "write the SVG to this file (default stdout)")
	generateCmd.Flags().BoolVar(&generateLegend, "legend", false, "print the legend to stderr")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	sess, stop, err := newSession(cfg, getLogger(), keyRequired)
	if err != nil {
		return err
	}
	defer stop()

	sess.SetDescription(strings.Join(args, " "))
	runErr := sess.Generate(cmd.Context())

	if doc := sess.Document(); doc != "" {
		if err := writeOutput(generateOutput, doc); err != nil {
			return err
		}
	}
	if generateLegend {
		printLegend(cmd.ErrOrStderr(), sess.Legend())
	}
	return runErr
}

func printLegend(w io.Writer, legend []session.LegendItem) {
	fmt.Fprintln(w, "Legend")
	for _, item := range legend {
		fmt.Fprintf(w, "  %s: %s\n", item.Title, item.Description)
	}
}

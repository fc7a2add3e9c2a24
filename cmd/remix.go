package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alantheprice/svgmap/pkg/events"
)

var (
	remixInput  string
	remixOutput string
)

var remixCmd = &cobra.Command{
	Use:   "remix <instruction>",
	Short: "Revise an existing map with a free-text instruction",
	Long: `Send a whole SVG map and an instruction to the model and write back the
revised map. The result replaces the input wholesale; layers are not kept.

Examples:
  svgmap remix -i island.svg -o night.svg "Make it night time with a full moon"
  svgmap remix -i island.svg "Add a small wooden pier on the east side"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemix,
}

func init() {
	remixCmd.Flags().StringVarP(&remixInput, "input", "i", "", "SVG file to revise (required)")
	remixCmd.Flags().StringVarP(&remixOutput, "output", "o", "", "write the SVG to this file (default stdout)")
	remixCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(remixCmd)
}

func runRemix(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(remixInput)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", remixInput, err)
	}

	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	sess, stop, err := newSession(cfg, getLogger(), keyRequired)
	if err != nil {
		return err
	}
	defer stop()
	if err := sess.SetDocument(string(data)); err != nil {
		return err
	}

	bus := sess.Events()
	progress := bus.Subscribe("cli")
	defer bus.Unsubscribe("cli")

	if err := sess.Remix(cmd.Context(), strings.Join(args, " ")); err != nil {
		return err
	}

	for done := false; !done; {
		select {
		case ev := <-progress:
			if ev.Type != events.EventTypeRemixCompleted {
				continue
			}
			if stats, ok := ev.Data.(map[string]interface{}); ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "Remixed: +%v -%v characters\n", stats["additions"], stats["deletions"])
			}
		default:
			done = true
		}
	}

	return writeOutput(remixOutput, sess.Document())
}

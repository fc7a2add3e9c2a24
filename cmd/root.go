package cmd

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "svgmap",
	Short: "Draw layered SVG maps from a text description",
	Long: `svgmap turns a natural-language description of a landscape into a layered
SVG map. A chat model first plans the scene as an ordered list of layers, then
draws each layer in turn while seeing everything drawn so far.

Available commands:
  generate - Plan and draw a new map
  init     - Write a configuration file
  remix    - Revise an existing map with a free-text instruction
  serve    - Run the local HTTP and websocket API
  version  - Print version information

The API key is read from --api-key, the OPENAI_API_KEY environment variable,
or an interactive prompt.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.apiKey, "api-key", "", "API key for the chat endpoint (default $OPENAI_API_KEY)")
	flags.StringVar(&opts.provider, "provider", "", "chat provider: openai or ollama (default from config)")
	flags.StringVar(&opts.model, "model", "", "model name (default from config)")
	flags.StringVar(&opts.endpoint, "endpoint", "", "chat endpoint URL (default from config)")
	flags.BoolVar(&opts.jsonLogs, "json-logs", false, "write JSON lines to the log file")
	flags.StringVar(&opts.runLog, "run-log", "", "journal every pipeline event to this JSONL file")
}

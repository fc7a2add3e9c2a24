package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alantheprice/svgmap/pkg/webui"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP and websocket API",
	Long: `Run a local API for a browser front end or script.

Routes:
  POST /api/credential   {"api_key": "..."}
  POST /api/description  {"description": "..."}
  POST /api/generate     start a generation (409 while busy)
  POST /api/remix        {"instruction": "...", "document": "<svg...>"}
  POST /api/reorder      {"order": ["layer", ...]}
  GET  /api/document     current map as image/svg+xml
  GET  /api/legend       current legend
  GET  /api/state        busy flag, inputs and display
  GET  /ws               websocket progress events

The API key is optional here; it can be posted to /api/credential.
If the port is taken the next free one is used.

Examples:
  svgmap serve
  svgmap serve --port 8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.ServePort = servePort
	}

	log := getLogger()
	// The key may arrive later through /api/credential.
	sess, stop, err := newSession(cfg, log, keyOptional)
	if err != nil {
		return err
	}
	defer stop()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	port := cfg.ServePort
	if !webui.CheckPortAvailable(port) {
		port = webui.FindAvailablePort(port)
		log.Logf("Port %d is in use, using %d", cfg.ServePort, port)
	}

	server := webui.NewWebServer(sess, port, log)
	if err := server.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "svgmap API available at http://localhost:%d\n", server.GetPort())

	<-ctx.Done()
	server.Shutdown()
	server.Wait()
	return nil
}

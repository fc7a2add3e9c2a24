package cmd

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/alantheprice/svgmap/pkg/chat"
	"github.com/alantheprice/svgmap/pkg/configuration"
	"github.com/alantheprice/svgmap/pkg/events"
	"github.com/alantheprice/svgmap/pkg/session"
	"github.com/alantheprice/svgmap/pkg/utils"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	apiKey   string
	provider string
	model    string
	endpoint string
	jsonLogs bool
	runLog   string
}

var opts globalOptions

// Swapped in tests.
var (
	getLogger  = utils.GetLogger
	loadConfig = configuration.Load
)

// resolveConfig loads the config file and applies command-line overrides.
func resolveConfig() (*configuration.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if opts.provider != "" {
		cfg.Provider = opts.provider
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.endpoint != "" {
		cfg.Endpoint = opts.endpoint
	}
	if opts.jsonLogs {
		cfg.JSONLogs = true
	}
	return cfg, nil
}

// keySource decides how newSession finds the API key.
type keySource int

const (
	// keyRequired falls back to a terminal prompt and fails when no key
	// is found.
	keyRequired keySource = iota
	// keyOptional takes the flag or environment key and allows it to be
	// empty; the user can supply it later.
	keyOptional
)

// newSession builds a session with its credential resolved according to
// keys. The prompt is only offered when stdin is a terminal. The returned
// function flushes the run log and must be called once the command is done.
func newSession(cfg *configuration.Config, log *utils.Logger, keys keySource) (*session.Session, func(), error) {
	transport, err := chat.NewTransport(cfg.ChatConfig())
	if err != nil {
		return nil, nil, err
	}

	key := configuration.LookupAPIKey(opts.apiKey)
	if keys == keyRequired {
		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		if key, err = configuration.ResolveAPIKey(cfg.Provider, opts.apiKey, interactive); err != nil {
			return nil, nil, err
		}
	}

	log.SetJSONMode(cfg.JSONLogs)
	sess := session.New(session.Config{
		Transport: transport,
		Model:     cfg.Model,
		Logger:    log,
	})
	sess.SetCredential(key)

	stop, err := startRunLog(sess, key)
	if err != nil {
		return nil, nil, err
	}
	return sess, stop, nil
}

// startRunLog journals every event of sess to --run-log until the returned
// function is called. The journal is written on the publishing goroutine so
// no event is dropped.
func startRunLog(sess *session.Session, credential string) (func(), error) {
	if opts.runLog == "" {
		return func() {}, nil
	}
	rl, err := utils.NewRunLogger(opts.runLog)
	if err != nil {
		return nil, err
	}
	rl.Redact(credential)

	bus := sess.Events()
	bus.SubscribeFunc("runlog", func(ev events.UIEvent) {
		rl.LogEvent(ev.Type, ev.Data)
	})

	return func() {
		bus.Unsubscribe("runlog")
		rl.Close()
	}, nil
}

// writeOutput writes data to path, or to stdout when path is empty or "-".
func writeOutput(path, data string) error {
	if path == "" || path == "-" {
		_, err := fmt.Fprintln(os.Stdout, data)
		return err
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

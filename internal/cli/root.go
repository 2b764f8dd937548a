// Package cli provides the command-line interface for podbulk.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bhtools/podbulk/internal/config"
	podhttp "github.com/bhtools/podbulk/internal/http"
	"github.com/bhtools/podbulk/internal/logging"
	"github.com/bhtools/podbulk/internal/session"
	"github.com/bhtools/podbulk/internal/version"
)

var (
	// Global flags
	cfgFile    string
	apiKey     string
	tokenFile  string // Path to file containing the platform key
	apiBaseURL string
	verbose    bool
	debug      bool

	// Transport and polling overrides
	proxyMode     string
	pollInterval  string
	failurePolicy string

	// Set by commands that upload
	pruneSuperseded bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "podbulk",
		Short: "podbulk - bulk print-on-demand product creation",
		Long: `podbulk ` + version.Version + ` - Built: ` + version.BuildTime + `

Creates many print-on-demand products from a set of design images through
the bulk listing service: validate keys, pick a store and an example
product, upload images, then start and follow the creation job.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLogger(nil)
			logger.SetOutput(cmd.ErrOrStderr())
			logging.SetGlobalLevel(logging.LevelFor(verbose, debug))
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Printify API key (overrides all other sources)")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "Path to file containing the Printify API key")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-url", "", "Listing service base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&proxyMode, "proxy-mode", "", "Proxy mode: no-proxy, system, basic, ntlm")
	rootCmd.PersistentFlags().StringVar(&pollInterval, "poll-interval", "", "Interval between progress queries (e.g. 1s)")
	rootCmd.PersistentFlags().StringVar(&failurePolicy, "poll-failure", "", "Failed progress query policy: continue or terminate")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, stopping...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)
	cancelFunc()

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newStoresCmd())
	rootCmd.AddCommand(newProductsCmd())
	rootCmd.AddCommand(newModelsCmd())
	rootCmd.AddCommand(newFilesCmd())
	rootCmd.AddCommand(newCreateCmd())
	rootCmd.AddCommand(newProgressCmd())
	rootCmd.AddCommand(newCancelCmd())
	rootCmd.AddCommand(newKeysCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// loadConfig resolves the configuration from file, environment, keystore
// and global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if err := config.NewKeystore(config.DefaultKeystorePath()).Fill(cfg); err != nil {
		GetLogger().Warn().Err(err).Msg("keystore not readable, using configured provider keys")
	}

	o := config.Overrides{
		APIURL:        apiBaseURL,
		ProxyMode:     proxyMode,
		FailurePolicy: failurePolicy,
	}
	if pollInterval != "" {
		d, err := time.ParseDuration(pollInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid --poll-interval: %w", err)
		}
		o.PollInterval = d
	}
	if pruneSuperseded {
		o.PruneSuperseded = &pruneSuperseded
	}
	cfg.Apply(o)

	key, source := config.ResolveAPIKeySource(apiKey, tokenFile, cfg)
	cfg.APIKey = key
	if source != "" {
		GetLogger().Debug().Str("source", source).Msg("platform key resolved")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newSession loads the configuration and builds a session on it.
func newSession() (*session.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if podhttp.NeedsProxyPassword(cfg) {
		in := newInput(os.Stdin)
		if in.file == nil {
			GetLogger().Warn().Str("user", cfg.Proxy.User).Msg("proxy password not set, continuing without proxy auth")
		} else {
			pw, err := in.secret(os.Stderr, fmt.Sprintf("Proxy password for %s: ", cfg.Proxy.User))
			if err != nil {
				return nil, err
			}
			cfg.Proxy.Password = pw
		}
	}
	return session.New(cfg, GetLogger())
}

package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bhtools/podbulk/internal/config"
	"github.com/bhtools/podbulk/internal/constants"
	"github.com/bhtools/podbulk/internal/models"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage podbulk configuration",
		Long: `Configuration management commands for podbulk.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file paths`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for podbulk.

Settings are saved to config.toml in the configuration directory and the
Printify key to the token file next to it. Use --force to overwrite an
existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.ErrOrStderr()
			configPath := cfgFile
			if configPath == "" {
				configPath = config.DefaultConfigPath()
			}

			if !force {
				if _, err := os.Stat(configPath); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Configuration already exists at: %s\n", configPath)
					fmt.Fprintln(cmd.OutOrStdout(), "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg := config.Default()
			in := newInput(cmd.InOrStdin())
			ask := func(prompt, def string) string {
				fmt.Fprintf(out, "%s [%s]: ", prompt, def)
				v, err := in.line()
				if err != nil || v == "" {
					return def
				}
				return v
			}

			fmt.Fprintln(out, "podbulk Configuration Setup")
			fmt.Fprintln(out, "===========================")

			cfg.APIURL = ask("Service URL", cfg.APIURL)

			key, err := in.secret(out, "Printify API key (Enter to skip): ")
			if err != nil {
				return err
			}

			cfg.Job.Provider = ask("AI provider (openai, gemini, ollama)", cfg.Job.Provider)
			cfg.Poll.FailurePolicy = ask("On failed progress query (continue, terminate)", cfg.Poll.FailurePolicy)
			cfg.PruneSuperseded = strings.HasPrefix(strings.ToLower(ask("Delete superseded uploads from the service? (y/n)", "n")), "y")

			if v := ask("Proxy mode (no-proxy, system, basic, ntlm)", cfg.Proxy.Mode); v != cfg.Proxy.Mode {
				cfg.Proxy.Mode = v
				if v == "basic" || v == "ntlm" {
					cfg.Proxy.Host = ask("Proxy host", "")
					if port, err := strconv.Atoi(ask("Proxy port", "8080")); err == nil {
						cfg.Proxy.Port = port
					}
					cfg.Proxy.User = ask("Proxy user", "")
				}
			}

			cfg.Apply(config.Overrides{})
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(configPath); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Configuration saved to %s", configPath)

			if key != "" {
				if err := config.WriteTokenFile(config.DefaultTokenPath(), key); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Printify key saved to %s", config.DefaultTokenPath())
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, source := config.ResolveAPIKeySource(apiKey, tokenFile, cfg)
			if source == "" {
				source = "not set"
			}

			out := cmd.OutOrStdout()
			row := func(k string, v any) { fmt.Fprintf(out, "  %-22s %v\n", k, v) }

			fmt.Fprintln(out, headerStyle.Render("Service"))
			row("api_url", cfg.APIURL)
			row("printify key", mask(cfg.APIKey)+" ("+source+")")
			row(models.KindOpenAI.DisplayName(), mask(cfg.OpenAIKey))
			row(models.KindGemini.DisplayName(), mask(cfg.GeminiKey))

			fmt.Fprintln(out, headerStyle.Render("Transport"))
			row("proxy.mode", cfg.Proxy.Mode)
			if cfg.Proxy.Host != "" {
				row("proxy.host", fmt.Sprintf("%s:%d", cfg.Proxy.Host, cfg.Proxy.Port))
			}
			row("http.max_retries", cfg.HTTP.MaxRetries)
			row("http.requests_per_second", cfg.HTTP.RequestsPerSecond)
			row("http.timeout", cfg.HTTP.Timeout)

			fmt.Fprintln(out, headerStyle.Render("Jobs"))
			row("poll.interval", cfg.Poll.Interval)
			row("poll.failure_policy", cfg.Poll.FailurePolicy)
			row("job.provider", cfg.Job.Provider)
			row("job.ollama_model", cfg.Job.OllamaModel)
			row("job.placement_mode", cfg.Job.PlacementMode)
			row("prune_superseded", cfg.PruneSuperseded)
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file paths",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config:    %s\n", config.DefaultConfigPath())
			fmt.Fprintf(out, "token:     %s\n", config.DefaultTokenPath())
			fmt.Fprintf(out, "keystore:  %s\n", config.DefaultKeystorePath())
			fmt.Fprintf(out, "assets:    %s\n", config.DefaultSelectionPath())
			fmt.Fprintf(out, "env:       %s* variables, .env in the working directory\n", constants.EnvPrefix)
		},
	}
}

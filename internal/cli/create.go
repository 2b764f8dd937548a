package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bhtools/podbulk/internal/events"
	"github.com/bhtools/podbulk/internal/job"
	"github.com/bhtools/podbulk/internal/models"
	"github.com/bhtools/podbulk/internal/pathutil"
	"github.com/bhtools/podbulk/internal/progress"
	"github.com/bhtools/podbulk/internal/session"
)

func newCreateCmd() *cobra.Command {
	var (
		storeID   string
		productID string
		placement string
		provider  string
		model     string
		rulesFile string
		ruleArgs  []string
		assumeYes bool
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "create [image]...",
		Short: "Create one product per uploaded image",
		Long: `Start a bulk creation job.

Images given as arguments are uploaded first and replace the recorded
selection; without arguments the recorded selection is used. The job is
sent after confirmation and, with --watch, followed until it ends. Ctrl+C
while watching asks the service to cancel the job.

Rules are passed to the service as a JSON object, read from --rules-file
and extended with --rule key=value.`,
		Example: `  podbulk create designs/*.png --store 123 --product 64f0c --watch
  podbulk create --store 123 --product 64f0c --provider ollama --model llama3 \
      --rule title_source=ai --rule max_ai_tags=10 --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := loadRules(rulesFile, ruleArgs)
			if err != nil {
				return err
			}

			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := GetContext()

			restoreSelection(s)
			if len(args) > 0 {
				if _, err := uploadSelection(cmd, s, args); err != nil {
					return err
				}
			}

			if storeID != "" {
				if err := connectPlatform(cmd, s); err != nil {
					return err
				}
				if err := s.SelectCatalog(ctx, storeID); err != nil {
					return fmt.Errorf("store %s: %w", storeID, err)
				}
			}
			if productID != "" {
				if err := s.Catalog.SelectTemplate(productID); err != nil {
					return fmt.Errorf("product %s: %w", productID, err)
				}
			}

			if provider != "" {
				kind, err := models.ParseCredentialKind(provider)
				if err != nil {
					return err
				}
				_, err = s.SelectProvider(ctx, kind)
				printCredential(cmd.ErrOrStderr(), s.Credentials.Status(kind))
				if err != nil {
					return err
				}
			}
			if model != "" {
				if err := s.Catalog.SelectModel(model); err != nil {
					return fmt.Errorf("model %s: %w", model, err)
				}
			}
			if placement != "" {
				s.Config.Job.PlacementMode = placement
			}

			ack, err := s.Submit(ctx, rules, confirmer(cmd.InOrStdin(), cmd.ErrOrStderr(), assumeYes))
			if errors.Is(err, job.ErrNotConfirmed) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Aborted.")
				return nil
			}
			if ack == nil {
				return err
			}
			if err != nil {
				// answered with an error; the job state comes from progress
				printFailure(cmd.ErrOrStderr(), "%s", ack.Message)
			} else {
				printSuccess(cmd.OutOrStdout(), "%s", ack.Message)
			}

			if !watch {
				s.Jobs.Stop()
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Follow with: podbulk progress --watch"))
				return nil
			}
			return followJob(cmd, s)
		},
	}

	cmd.Flags().StringVar(&storeID, "store", "", "Store ID")
	cmd.Flags().StringVar(&productID, "product", "", "Example product ID")
	cmd.Flags().StringVar(&placement, "placement", "", "Placement mode (default from config, \"replace\")")
	cmd.Flags().StringVar(&provider, "provider", "", "AI provider: openai, gemini or ollama (default from config)")
	cmd.Flags().StringVar(&model, "model", "", "Ollama model (default: first listed)")
	cmd.Flags().StringVar(&rulesFile, "rules-file", "", "JSON file with generation rules")
	cmd.Flags().StringArrayVar(&ruleArgs, "rule", nil, "Rule as key=value (repeatable)")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow progress until the job ends")
	addPruneFlag(cmd)
	return cmd
}

// loadRules merges the rules file with key=value overrides.
func loadRules(path string, pairs []string) (map[string]any, error) {
	rules := make(map[string]any)
	if path != "" {
		abs, err := pathutil.Expand(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to read rules file: %w", err)
		}
		if err := json.Unmarshal(data, &rules); err != nil {
			return nil, fmt.Errorf("rules file must hold a JSON object: %w", err)
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --rule %q, expected key=value", p)
		}
		rules[strings.TrimSpace(k)] = v
	}
	if len(rules) == 0 {
		return nil, nil
	}
	return rules, nil
}

// followJob renders progress until polling ends. An interrupt while
// following sends a cancel request once.
func followJob(cmd *cobra.Command, s *session.Session) error {
	bar := progress.NewJobBar()
	updates := s.Events.Subscribe(events.EventProgress)
	defer s.Events.Unsubscribe(events.EventProgress, updates)

	finished := make(chan models.JobProgress, 1)
	go func() {
		p, _ := s.Jobs.Wait(context.Background())
		finished <- p
	}()

	interrupt := GetContext().Done()
	for {
		select {
		case ev := <-updates:
			if pe, ok := ev.(*events.ProgressEvent); ok {
				bar.Update(pe.Progress)
			}
		case <-interrupt:
			interrupt = nil
			if !s.Jobs.CancelAvailable() {
				continue
			}
			ack, err := s.Jobs.Cancel(context.Background())
			if err != nil {
				printFailure(cmd.ErrOrStderr(), "Cancel failed: %s", err)
				s.Jobs.Stop()
				continue
			}
			fmt.Fprintln(cmd.ErrOrStderr(), ack.Message)
		case p := <-finished:
			bar.Finish(p)
			return reportFinal(cmd, p)
		}
	}
}

func reportFinal(cmd *cobra.Command, p models.JobProgress) error {
	line := progress.Line(p)
	switch p.Status {
	case models.JobCompleted:
		printSuccess(cmd.OutOrStdout(), "%s", line)
	case models.JobError:
		printFailure(cmd.OutOrStdout(), "%s", line)
		return fmt.Errorf("job failed: %s", p.Message)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bhtools/podbulk/internal/config"
	"github.com/bhtools/podbulk/internal/models"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Save and show API keys on the service",
	}
	cmd.AddCommand(newKeysSetCmd())
	cmd.AddCommand(newKeysShowCmd())
	return cmd
}

func newKeysSetCmd() *cobra.Command {
	var printify, openai, gemini, local bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Prompt for keys and save them on the service",
		Long: `Prompt for the selected keys (input hidden on a terminal) and save them
with the service. With --local the keys are also kept on this machine: the
Printify key in the token file, AI keys in the owner-only keystore.

An empty answer leaves that key unchanged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !printify && !openai && !gemini {
				printify, openai, gemini = true, true, true
			}

			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			in := newInput(cmd.InOrStdin())
			var update models.KeyUpdate
			entered := map[models.CredentialKind]string{}
			ask := func(enabled bool, kind models.CredentialKind, field **string) error {
				if !enabled {
					return nil
				}
				v, err := in.secret(cmd.ErrOrStderr(), kind.DisplayName()+": ")
				if err != nil {
					return err
				}
				if v != "" {
					*field = &v
					entered[kind] = v
				}
				return nil
			}
			if err := ask(printify, models.KindPlatform, &update.PrintifyKey); err != nil {
				return err
			}
			if err := ask(openai, models.KindOpenAI, &update.OpenAIKey); err != nil {
				return err
			}
			if err := ask(gemini, models.KindGemini, &update.GeminiKey); err != nil {
				return err
			}
			if len(entered) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No keys entered, nothing saved.")
				return nil
			}

			ack, err := s.Client.SetKeys(GetContext(), update)
			if err != nil {
				return fmt.Errorf("failed to save keys: %w", err)
			}
			printSuccess(cmd.OutOrStdout(), "%s", ack.Message)

			if local {
				if err := saveLocalKeys(entered); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Keys stored in %s", config.ConfigDir())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&printify, "printify", false, "Set the Printify key")
	cmd.Flags().BoolVar(&openai, "openai", false, "Set the OpenAI key")
	cmd.Flags().BoolVar(&gemini, "gemini", false, "Set the Gemini key")
	cmd.Flags().BoolVar(&local, "local", false, "Also store the keys on this machine")
	return cmd
}

func saveLocalKeys(entered map[models.CredentialKind]string) error {
	ks := config.NewKeystore(config.DefaultKeystorePath())
	for kind, secret := range entered {
		var err error
		if kind == models.KindPlatform {
			err = config.WriteTokenFile(config.DefaultTokenPath(), secret)
		} else {
			err = ks.Set(kind, secret)
		}
		if err != nil {
			return fmt.Errorf("failed to store %s: %w", kind.DisplayName(), err)
		}
	}
	return nil
}

func newKeysShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show which keys the service has saved",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			saved, err := s.Client.GetKeys(GetContext())
			if err != nil {
				return fmt.Errorf("failed to read saved keys: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headerStyle.Render("Saved on the service"))
			row := func(kind models.CredentialKind, set bool, key string) {
				if !set {
					key = ""
				}
				fmt.Fprintf(out, "  %-18s %s\n", kind.DisplayName()+":", mask(key))
			}
			row(models.KindPlatform, saved.PrintifyKeySet, saved.PrintifyKey)
			row(models.KindOpenAI, saved.OpenAIKeySet, saved.OpenAIKey)
			row(models.KindGemini, saved.GeminiKeySet, saved.GeminiKey)

			fmt.Fprintln(out, headerStyle.Render("Used by this client"))
			for _, kind := range []models.CredentialKind{models.KindPlatform, models.KindOpenAI, models.KindGemini} {
				fmt.Fprintf(out, "  %-18s %s\n", kind.DisplayName()+":", mask(s.Key(kind)))
			}
			return nil
		},
	}
}

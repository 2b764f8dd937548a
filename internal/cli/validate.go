package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bhtools/podbulk/internal/credentials"
	"github.com/bhtools/podbulk/internal/models"
	"github.com/bhtools/podbulk/internal/session"
)

// errNoPlatformKey is returned by commands that need the platform key.
var errNoPlatformKey = errors.New("no Printify API key: use --api-key, --token-file, PODBULK_API_KEY or 'podbulk config init'")

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [printify|openai|gemini|ollama]...",
		Short: "Check API keys against the service",
		Long: `Validate credentials against the listing service.

With no arguments the Printify key and the configured AI provider are checked.
A blank key is reported as not set and nothing is sent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			kinds := []models.CredentialKind{models.KindPlatform, s.Provider()}
			if len(args) > 0 {
				kinds = kinds[:0]
				for _, a := range args {
					k, err := models.ParseCredentialKind(a)
					if err != nil {
						return err
					}
					kinds = append(kinds, k)
				}
			}

			invalid := validateKinds(cmd, s, kinds)
			if invalid > 0 {
				return fmt.Errorf("%d credential(s) failed validation", invalid)
			}
			return nil
		},
	}
	return cmd
}

// validateKinds validates each kind with the session's key, prints the
// resulting status and returns how many were rejected.
func validateKinds(cmd *cobra.Command, s *session.Session, kinds []models.CredentialKind) int {
	invalid := 0
	for _, k := range kinds {
		var out credentials.Outcome
		if k.IsAIProvider() {
			out, _ = s.SelectProvider(GetContext(), k)
		} else {
			out = s.SetKey(GetContext(), k, s.Key(k))
		}
		if out.Result == credentials.ResultInvalid {
			invalid++
		}
		printCredential(cmd.OutOrStdout(), s.Credentials.Status(k))
	}
	return invalid
}

package cli

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/bhtools/podbulk/internal/config"
	"github.com/bhtools/podbulk/internal/pathutil"
	"github.com/bhtools/podbulk/internal/progress"
	"github.com/bhtools/podbulk/internal/session"
	"github.com/bhtools/podbulk/internal/state"
)

func newFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Upload and delete design images on the service",
	}
	cmd.AddCommand(newFilesUploadCmd())
	cmd.AddCommand(newFilesDeleteCmd())
	cmd.AddCommand(newFilesListCmd())
	return cmd
}

// restoreSelection seeds the file set with the selection recorded by the
// previous upload.
func restoreSelection(s *session.Session) {
	r, err := state.LoadRecord(config.DefaultSelectionPath())
	if err != nil {
		GetLogger().Warn().Err(err).Msg("ignoring asset record")
		return
	}
	s.Files.Restore(r.Names)
}

func saveSelection(s *session.Session) {
	if err := state.SaveRecord(config.DefaultSelectionPath(), s.Files); err != nil {
		GetLogger().Warn().Err(err).Msg("failed to record uploaded assets")
	}
}

func addPruneFlag(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&pruneSuperseded, "prune", false, "Delete previously uploaded images that are not part of the new selection")
}

func newFilesUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <image>...",
		Short: "Upload images (png, jpg, jpeg, gif) in one request",
		Long: `Upload images to the service in one request.

The uploaded set replaces the recorded selection. Images from the previous
selection stay on the service unless --prune (or prune_superseded) is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			restoreSelection(s)
			res, err := uploadSelection(cmd, s, args)
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Uploaded %d of %d file(s)", len(res.Uploaded), len(res.Requested))
			return nil
		},
	}
	addPruneFlag(cmd)
	return cmd
}

// uploadSelection replaces the session's selection with paths, shows
// upload bars and waits for the service to acknowledge.
func uploadSelection(cmd *cobra.Command, s *session.Session, paths []string) (state.UploadResult, error) {
	paths, err := pathutil.ExpandAll(paths)
	if err != nil {
		return state.UploadResult{}, err
	}
	accepted := lo.CountBy(paths, func(p string) bool { return state.AllowedImage(p) })
	ui := progress.NewUploadUI(accepted)
	s.Files.SetProgress(ui)

	for _, r := range s.Files.ReplaceSelection(GetContext(), paths) {
		printFailure(cmd.ErrOrStderr(), "skipped %s: %s", r.Path, r.Reason)
	}

	res, err := s.Files.WaitUpload(GetContext())
	if err != nil {
		return res, err
	}
	ui.Finish(res.Requested, res.Uploaded, res.Err)
	if res.Err != nil {
		return res, fmt.Errorf("upload failed: %w", res.Err)
	}
	saveSelection(s)
	return res, nil
}

func newFilesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>...",
		Short: "Delete uploaded images by file name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			restoreSelection(s)
			defer saveSelection(s)

			failed := 0
			for _, name := range args {
				if err := s.Files.DeleteAsset(GetContext(), name); err != nil {
					printFailure(cmd.ErrOrStderr(), "Error deleting file: %s", err)
					failed++
					continue
				}
				printSuccess(cmd.OutOrStdout(), "File %s deleted.", name)
			}
			if failed > 0 {
				return fmt.Errorf("%d file(s) not deleted", failed)
			}
			return nil
		},
	}
}

func newFilesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the recorded selection of uploaded images",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := state.LoadRecord(config.DefaultSelectionPath())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(r.Names) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No uploaded images recorded."))
				return nil
			}
			fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Uploaded images (%d)", len(r.Names))))
			for _, n := range r.Names {
				fmt.Fprintf(out, "  %s\n", n)
			}
			return nil
		},
	}
}

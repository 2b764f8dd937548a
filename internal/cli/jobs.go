package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bhtools/podbulk/internal/models"
	"github.com/bhtools/podbulk/internal/progress"
)

func newProgressCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show the progress of the service's current job",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			p, err := s.Client.GetProgress(GetContext())
			if err != nil {
				return err
			}
			if !watch || p.Status == models.JobIdle || p.Status.IsTerminal() {
				fmt.Fprintln(cmd.OutOrStdout(), progress.Line(*p))
				return nil
			}

			if err := s.Jobs.Watch(GetContext()); err != nil {
				return err
			}
			return followJob(cmd, s)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until the job ends; Ctrl+C cancels the job")
	return cmd
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the service's current job",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			ack, err := s.Jobs.Cancel(GetContext())
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "%s", ack.Message)
			return nil
		},
	}
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chronicle/editor/internal/auth"
)

func newTokenCmd(c *cli) *cobra.Command {
	var (
		docID string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an embed token for the scope.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}
			scope, err := c.scope()
			if err != nil {
				return err
			}
			token, err := auth.IssueToken([]byte(c.cfg.TokenSecret), auth.Claims{
				DocID:    docID,
				JobID:    scope.JobID,
				FolderID: scope.FolderID,
				Perms:    c.perms,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&docID, "doc", "", "page to open first")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

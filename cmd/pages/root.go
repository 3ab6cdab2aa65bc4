package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"chronicle/editor/internal/autosave"
	"chronicle/editor/internal/config"
	"chronicle/editor/internal/doc"
	"chronicle/editor/internal/rbac"
	"chronicle/editor/internal/workspace"
)

type cli struct {
	cfgFile string
	perms   string
	cfg     config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "pages",
		Short: "Edit hierarchical instruction pages backed by a document store.",
		Long: `Work with the page tree of a job or folder scope.

  pages serve                      run the embed HTTP API
  pages tree --job job-1           print the page tree
  pages edit p-abc --file page.html  autosave a local file into a page
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.NewViper(c.cfgFile)
			if err != nil {
				return err
			}
			flags := cmd.Root().PersistentFlags()
			if err := v.BindPFlag("job_id", flags.Lookup("job")); err != nil {
				return err
			}
			if err := v.BindPFlag("folder_id", flags.Lookup("folder")); err != nil {
				return err
			}
			c.cfg = config.Load(v)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is ./pages.yaml)")
	flags.String("job", "", "job id of the scope")
	flags.String("folder", "", "folder id of the scope, overrides --job")
	flags.StringVar(&c.perms, "perms", string(rbac.PermReadWrite), "permission for local commands (rw or ro)")

	root.AddCommand(
		newServeCmd(c),
		newTreeCmd(c),
		newCreateCmd(c),
		newRenameCmd(c),
		newMoveCmd(c),
		newDeleteCmd(c),
		newSearchCmd(c),
		newHistoryCmd(c),
		newEditCmd(c),
		newMigrateCmd(c),
		newTokenCmd(c),
	)
	return root
}

func (c *cli) scope() (doc.Scope, error) {
	scope := doc.Scope{JobID: c.cfg.JobID, FolderID: c.cfg.FolderID}
	if !scope.Valid() {
		return doc.Scope{}, fmt.Errorf("a scope is required: pass --job or --folder")
	}
	return scope, nil
}

// openSession connects the backends and loads the configured scope. The
// returned cleanup flushes pending saves and releases the backends.
func (c *cli) openSession(ctx context.Context, docID string, editor workspace.Editor, onStatus func(autosave.State)) (*workspace.Session, *backends, func(), error) {
	scope, err := c.scope()
	if err != nil {
		return nil, nil, nil, err
	}
	b, err := openBackends(ctx, c.cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	session, err := b.newSession(scope, rbac.Normalize(c.perms), docID, editor, onStatus)
	if err != nil {
		b.Close()
		return nil, nil, nil, err
	}
	if err := session.Refresh(ctx); err != nil {
		b.Close()
		return nil, nil, nil, err
	}
	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		session.Close(closeCtx)
		b.Close()
	}
	return session, b, cleanup, nil
}

func optionalID(value string) *string {
	if value == "" {
		return nil
	}
	return doc.Ref(value)
}

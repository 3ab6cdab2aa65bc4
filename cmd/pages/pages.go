package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"chronicle/editor/internal/search"
	"chronicle/editor/internal/workspace"
)

func newTreeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the page tree of the scope.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _, cleanup, err := c.openSession(cmd.Context(), "", nil, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			view := session.View()
			out := cmd.OutOrStdout()
			if len(view.Tree) == 0 {
				fmt.Fprintln(out, "No pages yet.")
				return nil
			}
			printTree(out, view.Tree)
			if len(view.Healed) > 0 {
				fmt.Fprintf(out, "\nRe-parented under the root: %s\n", strings.Join(view.Healed, ", "))
			}
			return nil
		},
	}
}

func printTree(out io.Writer, nodes []workspace.Node) {
	for _, node := range nodes {
		fmt.Fprintf(out, "%s- %s  (%s)\n", strings.Repeat("  ", node.Depth), node.Title, node.ID)
		printTree(out, node.Children)
	}
}

func newCreateCmd(c *cli) *cobra.Command {
	var parentID string

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a page, under the root unless --parent is set.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, cleanup, err := c.openSession(cmd.Context(), "", nil, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			page, err := session.Create(cmd.Context(), optionalID(parentID), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), page.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "parent page id")
	return cmd
}

func newRenameCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a page.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, cleanup, err := c.openSession(cmd.Context(), "", nil, nil)
			if err != nil {
				return err
			}
			defer cleanup()
			return session.Rename(cmd.Context(), args[0], args[1])
		},
	}
}

func newMoveCmd(c *cli) *cobra.Command {
	var (
		parentID string
		index    int
	)

	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Move a page to --index among the children of --parent.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, cleanup, err := c.openSession(cmd.Context(), "", nil, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			parent := optionalID(parentID)
			if index < 0 {
				return session.MoveToSlot(cmd.Context(), args[0], parent, session.AppendSlot(parent))
			}
			return session.Move(cmd.Context(), args[0], parent, index)
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "target parent id (default is the root)")
	cmd.Flags().IntVar(&index, "index", -1, "final position among the siblings (default is last)")
	return cmd
}

func newDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a page and everything under it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, cleanup, err := c.openSession(cmd.Context(), "", nil, nil)
			if err != nil {
				return err
			}
			defer cleanup()
			return session.Delete(cmd.Context(), args[0])
		},
	}
}

func newSearchCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search page titles in the scope.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, b, cleanup, err := c.openSession(cmd.Context(), "", nil, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			resp := b.search.Search(search.Query{
				Text:    args[0],
				ScopeID: session.Scope().ID(),
				Limit:   limit,
			}, session.Pages())
			out := cmd.OutOrStdout()
			for _, result := range resp.Results {
				fmt.Fprintf(out, "%s\t%s\n", result.ID, result.Title)
			}
			fmt.Fprintf(out, "%d result(s) from %s\n", resp.Total, resp.Source)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of results")
	return cmd
}

func newHistoryCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <id> [hash]",
		Short: "List saved versions of a page, or print one of them.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackends(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer b.Close()
			if b.history == nil {
				return fmt.Errorf("history_dir is not configured")
			}

			out := cmd.OutOrStdout()
			if len(args) == 2 {
				content, err := b.history.Snapshot(args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, content)
				return nil
			}
			commits, err := b.history.History(args[0], limit)
			if err != nil {
				return err
			}
			for _, commit := range commits {
				fmt.Fprintf(out, "%s  %s  %s  %s\n", commit.Hash, commit.CreatedAt.Format("2006-01-02 15:04:05"), commit.Author, commit.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of versions")
	return cmd
}

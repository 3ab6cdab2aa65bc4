package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chronicle/editor/internal/workspace"
)

func newEditCmd(c *cli) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Mirror a page into a local file and autosave changes to it.",
		Long: `Loads the page body into --file, then saves every change written to the
file back to the page after the autosave delay. Interrupt to flush and exit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = args[0] + ".html"
			}
			editor, err := workspace.NewFileEditor(file)
			if err != nil {
				return err
			}
			defer editor.Close()

			session, _, cleanup, err := c.openSession(cmd.Context(), args[0], editor, statusPrinter(args[0]))
			if err != nil {
				return err
			}
			defer cleanup()

			if session.ActiveID() != args[0] {
				if err := session.Open(cmd.Context(), args[0]); err != nil {
					return err
				}
			}
			if !session.Writable() {
				log.Printf("%s is read-only, changes to %s are not saved", args[0], editor.Path())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Editing %s in %s, press Ctrl+C to stop.\n", args[0], editor.Path())

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-sigCh:
			case <-cmd.Context().Done():
			}
			<-session.Flush()
			if state := session.Status(); state.Err != nil {
				return fmt.Errorf("last save failed: %w", state.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "local file to edit (default is <id>.html)")
	return cmd
}

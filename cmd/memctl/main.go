// memctl is the maintenance CLI for the memory service: rebuilding
// files_index.json from the markdown tree and forcing a reconcile sweep
// against the index store, for use alongside or instead of the running
// MCP server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "memctl",
		Short:         "Maintenance CLI for the markdown memory service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newRebuildIndexCommand(),
		newSyncCommand(),
		newResetCommand(),
	)
	return cmd
}

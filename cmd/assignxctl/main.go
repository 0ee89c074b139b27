package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assignxctl",
		Short: "AssignX operator tools",
		Long: `assignxctl talks to the same configuration and database as the API.
- quote: price a project and show how the quote is split.
- sweep: run one auto approval pass for delivered projects past their window.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().Bool("json", false, "output JSON")
	root.AddCommand(quoteCmd(), sweepCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

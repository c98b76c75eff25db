// Command journeyctl inspects onboarding journeys offline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var jsonOutput bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "journeyctl",
		Short: "Inspect onboarding journeys and step tables",
		Long: `journeyctl classifies stored journey documents without a running server.

Examples:
  journeyctl classify journey.json      # State and progress of a document
  journeyctl classify - < journey.json  # Read the document from stdin
  journeyctl steps broker               # Step table of one persona
  journeyctl token <user-id>            # Mint a development access token`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	root.AddCommand(newClassifyCmd(), newStepsCmd(), newTokenCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

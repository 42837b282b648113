package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	policyFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "intent",
	Short: "Signal collection & intent scoring engine",
	Long: `Intent Unified CLI

Collects buying signals about companies from public sources
(repositories, community, job postings, news, tech stack)
and turns them into a decayed, weighted intent score.

Usage:
  go run ./cmd/intent [command]

Examples:
  go run ./cmd/intent companies add acme.com --name Acme
  go run ./cmd/intent collect acme.com
  go run ./cmd/intent score acme.com
  go run ./cmd/intent start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&policyFile, "policy", "", "policy YAML (default: INTENT_POLICY_PATH or the embedded policy)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
	token     string
)

var rootCmd = &cobra.Command{
	Use:   "preplinectl",
	Short: "CLI for the prepline version lineage registry",
	Long: `preplinectl inspects and drives dataset transformation lineage.

Versions form a forest per task: root versions are original uploads, and
every derived version records the transformation method and parent it was
produced from. The process command submits a transformation to a remote
processor and polls the registry until the version reaches a terminal
status.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Registry server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Session bearer token (default: from PREPLINE_TOKEN env)")

	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(processCmd)
}

// resolvedToken returns the effective session token.
// Priority: --token flag > PREPLINE_TOKEN env var.
func resolvedToken() string {
	if token != "" {
		return token
	}
	return os.Getenv("PREPLINE_TOKEN")
}

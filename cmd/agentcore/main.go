// Command agentcore runs the agent orchestration core: a population of
// AI agents with mailboxes, sleep/wake scheduling, and channel-routed
// output, driven from a YAML configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var Version = "dev"

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "agentcore",
		Short: "Agent orchestration core",
		Long: `agentcore coordinates a population of AI agents that run concurrently,
exchange mail, sleep and wake on schedule, and decide turn by turn
whether a multi-step task is finished.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", envOr("CONFIG_FILE", "config/agents.yaml"), "configuration file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newReplCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Printf("agentcore %s\n", Version)
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

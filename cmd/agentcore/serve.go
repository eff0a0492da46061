package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/agentcore-dev/agentcore"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration core until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log.Printf("Starting agentcore v%s (config: %s)", Version, configFile)
			return agentcore.Run(configFile)
		},
	}
}

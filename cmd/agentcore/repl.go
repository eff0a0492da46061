package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/agentcore-dev/agentcore"
	"github.com/agentcore-dev/agentcore/internal/channel"
	"github.com/agentcore-dev/agentcore/pkg/config"
)

const replSession = "repl"

func newReplCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive session against a single agent",
		Long: `Starts one agent and reads prompts from the terminal. Without
credentials, use --provider mock to echo prompts through the full
routing pipeline.

Commands inside the repl:
  /history          show the session's channel history
  /analysis on|off  toggle analysis channel visibility
  /quit             exit`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRepl(provider)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "mock", "collaborator provider (mock, openai, vertexai)")
	return cmd
}

func runRepl(provider string) error {
	cfg, err := config.Parse([]byte("{}"))
	if err != nil {
		return err
	}
	cfg.Provider = provider
	cfg.Agents = []config.AgentDef{{ID: "repl-agent"}}

	sys, err := agentcore.NewSystem(cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sys.Shutdown(ctx)
	}()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := filepath.Join(os.TempDir(), ".agentcore_repl_history")
	if f, err := os.Open(historyPath); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(historyPath); err == nil {
			_, _ = line.WriteHistory(f)
			_ = f.Close()
		}
	}()

	fmt.Printf("agentcore repl (%s provider). /quit to exit.\n", provider)
	ctx := context.Background()

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			// liner returns ErrPromptAborted on Ctrl-C and io.EOF on Ctrl-D.
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := replCommand(ctx, sys, input); quit {
				return nil
			}
			continue
		}

		result, err := sys.Orchestrator.SendTask(ctx, "repl-agent", replSession, input)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		for _, msg := range result.Messages {
			fmt.Printf("[%s] %s\n", msg.Channel, msg.Content)
		}
	}
}

func replCommand(ctx context.Context, sys *agentcore.System, input string) (quit bool) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/history":
		msgs, err := sys.Router.History(ctx, replSession, channel.HistoryQuery{})
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		for _, msg := range msgs {
			fmt.Printf("%4d [%s] %s\n", msg.Metadata.Sequence, msg.Channel, msg.Content)
		}

	case "/analysis":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			fmt.Println("usage: /analysis on|off")
			return false
		}
		vis, err := sys.Router.Visibility(ctx, replSession)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		vis.ShowAnalysis = fields[1] == "on"
		if err := sys.Router.SetVisibility(ctx, replSession, vis); err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Printf("analysis channel %s\n", fields[1])

	default:
		fmt.Printf("unknown command %s\n", fields[0])
	}
	return false
}

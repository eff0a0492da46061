package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/agentcore-dev/agentcore/internal/channel"
	"github.com/agentcore-dev/agentcore/internal/continuation"
	"github.com/agentcore-dev/agentcore/internal/mailbox"
	"github.com/agentcore-dev/agentcore/pkg/llm"
	"github.com/agentcore-dev/agentcore/pkg/observability"
)

// ToolExecutor runs a tool call requested by the model and returns its
// textual result. Tool dispatch itself lives outside this package.
type ToolExecutor interface {
	Execute(ctx context.Context, call llm.ToolCall) (string, error)
}

// TaskResult is the structured outcome of one task.
type TaskResult struct {
	AgentID   string
	SessionID string

	// Text is the final-channel output of the last iteration.
	Text string

	// Iterations is how many collaborator invocations the loop made.
	Iterations int

	// History records each iteration's continuation outcome.
	History []continuation.Record

	// Messages are the channel messages that passed the session's
	// visibility filter, across all iterations, in sequence order.
	Messages []*channel.Message

	// Err is set when the collaborator failed; the loop stops at that
	// iteration and the partial result is still returned.
	Err error
}

// Runtime drives agent continuation loops. One Runtime serves all agents;
// per-agent state lives on the Agent itself.
type Runtime struct {
	router *channel.Router
	eval   *continuation.Evaluator
	tools  ToolExecutor
}

// NewRuntime creates a runtime. tools may be nil, in which case tool
// calls are acknowledged without execution.
func NewRuntime(router *channel.Router, eval *continuation.Evaluator, tools ToolExecutor) *Runtime {
	return &Runtime{router: router, eval: eval, tools: tools}
}

// RunTask drives the continuation loop for one prompt: invoke the
// collaborator, route the response into channels, evaluate the
// continuation signal, and repeat until the evaluator says stop or the
// iteration cap forces termination.
//
// Collaborator failures stop the loop and are surfaced on the result; the
// runtime never retries.
func (r *Runtime) RunTask(ctx context.Context, ag *Agent, sessionID, prompt string) (*TaskResult, error) {
	if err := ag.beginTask(); err != nil {
		return nil, err
	}
	defer ag.endTask()

	return r.runLoop(ctx, ag, sessionID, prompt)
}

// runLoop is the continuation loop body. The caller holds the agent's
// task slot.
func (r *Runtime) runLoop(ctx context.Context, ag *Agent, sessionID, prompt string) (*TaskResult, error) {
	ctx, span := observability.StartSpan(ctx, "agent.task", map[string]any{
		"agent_id":   ag.ID(),
		"session_id": sessionID,
	})
	defer span.End()

	result := &TaskResult{AgentID: ag.ID(), SessionID: sessionID}
	hist := &continuation.History{}

	turns := []llm.TurnMessage{{Role: llm.RoleUser, Content: prompt}}

	for iteration := 1; ; iteration++ {
		invokeCtx, invokeSpan := observability.StartSpan(ctx, "collaborator.invoke", map[string]any{
			"agent_id":  ag.ID(),
			"iteration": iteration,
		})
		resp, err := ag.Collaborator().Invoke(invokeCtx, turns)
		invokeSpan.End()
		if err != nil {
			result.Err = err
			result.History = hist.Records()
			return result, err
		}
		result.Iterations = iteration

		visible, err := r.router.Route(ctx, channel.RouteInput{
			SessionID:         sessionID,
			AgentID:           ag.ID(),
			Raw:               resp.Text,
			ToolCalls:         resp.ToolNames(),
			ContinuationDepth: iteration,
		})
		if err != nil {
			result.Err = fmt.Errorf("routing response: %w", err)
			result.History = hist.Records()
			return result, result.Err
		}
		result.Messages = append(result.Messages, visible...)
		if text := finalText(visible); text != "" {
			result.Text = text
		}

		sig := continuation.Extract(resp.Continuation)
		hist.Add(iteration, sig)

		if !r.eval.ShouldContinue(sig, iteration) {
			break
		}

		turns = append(turns, llm.TurnMessage{Role: llm.RoleAssistant, Content: resp.Text})
		turns = append(turns, r.toolTurns(ctx, resp.ToolCalls)...)
	}

	result.History = hist.Records()
	return result, nil
}

// ProcessMail drains the agent's mailbox and runs one task per message.
// Sync-switch messages produce a reply carrying the task's final text;
// async messages produce none. Replies are returned for the caller (the
// orchestrator) to deliver; this runtime never reaches into another
// agent's mailbox.
//
// The mailbox is drained only once the agent's task slot is held: if the
// agent is busy or asleep, ProcessMail returns ErrAgentBusy or
// ErrAgentSleeping with every message still queued, and the agent's idle
// hook re-triggers processing when the slot frees up. Mail that arrives
// while a batch runs is picked up before the slot is released.
func (r *Runtime) ProcessMail(ctx context.Context, ag *Agent, sessionID string) ([]*mailbox.Message, error) {
	if err := ag.beginTask(); err != nil {
		return nil, err
	}
	defer ag.endTask()

	var (
		replies []*mailbox.Message
		errs    []error
	)
	for {
		batch := ag.Mailbox().Drain()
		if len(batch) == 0 {
			break
		}
		for _, msg := range batch {
			result, err := r.runLoop(ctx, ag, sessionID, mailPrompt(msg))
			msg.Status = mailbox.StatusProcessed
			if err != nil {
				errs = append(errs, fmt.Errorf("processing %s: %w", msg, err))
				continue
			}
			if msg.Mode == mailbox.ModeSyncSwitch {
				replies = append(replies, msg.Reply("Re: "+msg.Subject, result.Text))
			}
		}
	}
	return replies, errors.Join(errs...)
}

// toolTurns executes the requested tool calls in order and returns their
// result turns. Without an executor, each call gets an acknowledgement so
// the conversation stays well-formed.
func (r *Runtime) toolTurns(ctx context.Context, calls []llm.ToolCall) []llm.TurnMessage {
	turns := make([]llm.TurnMessage, 0, len(calls))
	for _, call := range calls {
		content := "tool executed"
		if r.tools != nil {
			out, err := r.tools.Execute(ctx, call)
			if err != nil {
				log.Printf("tool %s failed: %v", call.Name, err)
				content = fmt.Sprintf("tool error: %v", err)
			} else {
				content = out
			}
		}
		turns = append(turns, llm.TurnMessage{
			Role:       llm.RoleTool,
			Content:    content,
			ToolCallID: call.ID,
		})
	}
	return turns
}

func finalText(msgs []*channel.Message) string {
	var parts []string
	for _, m := range msgs {
		if m.Channel == channel.Final {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

func mailPrompt(msg *mailbox.Message) string {
	return fmt.Sprintf("Mail from %s\nSubject: %s\n\n%s", msg.From, msg.Subject, msg.Body)
}

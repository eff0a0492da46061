package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore-dev/agentcore/internal/agent"
	"github.com/agentcore-dev/agentcore/internal/channel"
	"github.com/agentcore-dev/agentcore/internal/continuation"
	"github.com/agentcore-dev/agentcore/pkg/llm"
)

// eventRecorder collects emitted events for order assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// slowCollaborator answers only after a delay, to exercise timeouts and
// busy recipients.
type slowCollaborator struct {
	delay time.Duration
	calls atomic.Int32
}

func (s *slowCollaborator) Model() string { return "slow" }

func (s *slowCollaborator) Invoke(ctx context.Context, _ []llm.TurnMessage) (*llm.Response, error) {
	s.calls.Add(1)
	select {
	case <-time.After(s.delay):
		return &llm.Response{Text: "<final>late answer</final>"}, nil
	case <-ctx.Done():
		return nil, llm.NewCollaboratorError("slow", ctx.Err())
	}
}

func terminateSignal(reason string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"status": "TERMINATE", "reason": reason})
	return raw
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *eventRecorder) {
	t.Helper()
	rt := agent.NewRuntime(
		channel.NewRouter(channel.NewMemoryStore(100)),
		continuation.NewEvaluator(continuation.Policy{RequireExplicit: true}),
		nil,
	)
	o := New(rt, Options{})
	rec := &eventRecorder{}
	o.Subscribe(rec)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o, rec
}

func TestCreateAgentDuplicate(t *testing.T) {
	o, rec := newTestOrchestrator(t)

	_, err := o.CreateAgent("alice", llm.Config{Provider: "mock"})
	require.NoError(t, err)

	_, err = o.CreateAgent("alice", llm.Config{Provider: "mock"})
	assert.ErrorIs(t, err, ErrAgentAlreadyExists)

	created := rec.ofType(EventAgentCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "alice", created[0].AgentID)
}

func TestCreateAgentUnknownProvider(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.CreateAgent("alice", llm.Config{Provider: "does-not-exist"})
	assert.Error(t, err)
}

func TestStopAgent(t *testing.T) {
	o, rec := newTestOrchestrator(t)

	_, err := o.CreateAgent("alice", llm.Config{Provider: "mock"})
	require.NoError(t, err)

	require.NoError(t, o.StopAgent("alice"))
	assert.Empty(t, o.ListAgents())
	assert.ErrorIs(t, o.StopAgent("alice"), ErrAgentNotFound)

	stopped := rec.ofType(EventAgentStopped)
	require.Len(t, stopped, 1)
}

func TestListAgentsSorted(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	for _, id := range []string{"carol", "alice", "bob"} {
		_, err := o.CreateAgent(id, llm.Config{Provider: "mock"})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, o.ListAgents())
	assert.Equal(t, 3, o.AgentCount())
}

func TestGetState(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	_, err := o.GetState("ghost")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	_, err = o.CreateAgent("alice", llm.Config{Provider: "mock"})
	require.NoError(t, err)

	snap, err := o.GetState("alice")
	require.NoError(t, err)
	assert.Equal(t, agent.StateIdle, snap.State)
	assert.Equal(t, 0, snap.QueuedMail)
}

func TestSendTaskEmitsEvents(t *testing.T) {
	o, rec := newTestOrchestrator(t)

	mock := llm.NewMockCollaborator("m").Script(&llm.Response{
		Text:         "<final>done</final>",
		Continuation: terminateSignal("finished"),
	})
	_, err := o.CreateAgentWith("alice", mock)
	require.NoError(t, err)

	result, err := o.SendTask(context.Background(), "alice", "sess", "work")
	require.NoError(t, err)
	assert.Equal(t, "done", result.Text)

	require.Len(t, rec.ofType(EventTaskStarted), 1)
	completed := rec.ofType(EventTaskCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, 1, completed[0].Detail["iterations"])
}

func TestSendTaskErrorEvent(t *testing.T) {
	o, rec := newTestOrchestrator(t)

	mock := llm.NewMockCollaborator("m").ScriptError(assert.AnError)
	_, err := o.CreateAgentWith("alice", mock)
	require.NoError(t, err)

	_, err = o.SendTask(context.Background(), "alice", "sess", "work")
	require.Error(t, err)

	errs := rec.ofType(EventTaskError)
	require.Len(t, errs, 1)
	assert.Equal(t, "ai_collaborator", errs[0].ErrorKind)

	_, err = o.SendTask(context.Background(), "ghost", "sess", "work")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestSleepWakeScenario(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.CreateAgent("alice", llm.Config{Provider: "mock"})
	require.NoError(t, err)

	assert.ErrorIs(t, o.Sleep("ghost", time.Second, nil), ErrAgentNotFound)
	assert.ErrorIs(t, o.Sleep("alice", -time.Second, nil), agent.ErrInvalidDuration)

	require.NoError(t, o.Sleep("alice", 100*time.Millisecond, nil))
	snap, err := o.GetState("alice")
	require.NoError(t, err)
	assert.Equal(t, agent.StateSleeping, snap.State)
	assert.NotNil(t, snap.WakeAt)

	// After the timer fires the agent is no longer sleeping.
	assert.Eventually(t, func() bool {
		snap, err := o.GetState("alice")
		return err == nil && snap.State != agent.StateSleeping
	}, time.Second, 10*time.Millisecond)

	// Explicit wake beats the timer and is idempotent once awake.
	require.NoError(t, o.Sleep("alice", time.Hour, nil))
	require.NoError(t, o.Wake("alice", "manual"))
	require.NoError(t, o.Wake("alice", "manual"))
	snap, err = o.GetState("alice")
	require.NoError(t, err)
	assert.Equal(t, agent.StateIdle, snap.State)
}

func TestSendMailFireAndForget(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	_, err := o.CreateAgent("alice", llm.Config{Provider: "mock"})
	require.NoError(t, err)
	bobMock := llm.NewMockCollaborator("m").Script(&llm.Response{
		Text:         "<final>read it</final>",
		Continuation: terminateSignal("done"),
	})
	_, err = o.CreateAgentWith("bob", bobMock)
	require.NoError(t, err)

	assert.ErrorIs(t, o.SendMail("alice", "ghost", "s", "b"), ErrAgentNotFound)
	assert.ErrorIs(t, o.SendMail("ghost", "bob", "s", "b"), ErrAgentNotFound)

	require.NoError(t, o.SendMail("alice", "bob", "Hello", "just saying hi"))

	// The recipient processes its mailbox in the background.
	assert.Eventually(t, func() bool {
		snap, err := o.GetState("bob")
		return err == nil && snap.QueuedMail == 0 && len(bobMock.Calls()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSendMailWakesSleepingRecipient(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	_, err := o.CreateAgent("alice", llm.Config{Provider: "mock"})
	require.NoError(t, err)
	_, err = o.CreateAgent("bob", llm.Config{Provider: "mock"})
	require.NoError(t, err)

	require.NoError(t, o.Sleep("bob", time.Hour, []string{WakeEventMailArrived}))
	require.NoError(t, o.SendMail("alice", "bob", "Wake up", "mail for you"))

	assert.Eventually(t, func() bool {
		snap, err := o.GetState("bob")
		return err == nil && snap.State != agent.StateSleeping
	}, time.Second, 10*time.Millisecond)
}

func TestSendMailWithSwitch(t *testing.T) {
	o, rec := newTestOrchestrator(t)

	_, err := o.CreateAgent("alice", llm.Config{Provider: "mock"})
	require.NoError(t, err)
	bobMock := llm.NewMockCollaborator("m").Script(&llm.Response{
		Text:         "<final>all systems nominal</final>",
		Continuation: terminateSignal("health reported"),
	})
	_, err = o.CreateAgentWith("bob", bobMock)
	require.NoError(t, err)

	reply, err := o.SendMailWithSwitch(context.Background(), "alice", "bob", "Health Check", "status?", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "all systems nominal", reply)

	// Exactly switched(alice->bob) then switched(bob->alice).
	switched := rec.ofType(EventAgentSwitched)
	require.Len(t, switched, 2)
	assert.Equal(t, "alice", switched[0].From)
	assert.Equal(t, "bob", switched[0].To)
	assert.Equal(t, "bob", switched[1].From)
	assert.Equal(t, "alice", switched[1].To)
}

func TestSendMailWithSwitchTimeout(t *testing.T) {
	o, rec := newTestOrchestrator(t)

	_, err := o.CreateAgent("alice", llm.Config{Provider: "mock"})
	require.NoError(t, err)
	_, err = o.CreateAgentWith("bob", &slowCollaborator{delay: 300 * time.Millisecond})
	require.NoError(t, err)

	_, err = o.SendMailWithSwitch(context.Background(), "alice", "bob", "Health Check", "status?", 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrMailTimeout)

	// The timeout is mirrored as a task error for observers.
	errs := rec.ofType(EventTaskError)
	require.NotEmpty(t, errs)
	assert.Equal(t, "mail_timeout", errs[0].ErrorKind)

	// Bob's late reply is discarded: even after it finishes processing,
	// no switched(bob->alice) event ever appears.
	time.Sleep(400 * time.Millisecond)
	switched := rec.ofType(EventAgentSwitched)
	require.Len(t, switched, 1)
	assert.Equal(t, "alice", switched[0].From)
}

func TestSendMailWithSwitchWakesRecipient(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	_, err := o.CreateAgent("alice", llm.Config{Provider: "mock"})
	require.NoError(t, err)
	bobMock := llm.NewMockCollaborator("m").Script(&llm.Response{
		Text:         "<final>awake now</final>",
		Continuation: terminateSignal("woken"),
	})
	_, err = o.CreateAgentWith("bob", bobMock)
	require.NoError(t, err)

	// Bob sleeps with no wake events registered; the switch still wakes him.
	require.NoError(t, o.Sleep("bob", time.Hour, nil))

	reply, err := o.SendMailWithSwitch(context.Background(), "alice", "bob", "Urgent", "wake up", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "awake now", reply)
}

func TestSendMailWithSwitchToBusyRecipient(t *testing.T) {
	o, rec := newTestOrchestrator(t)

	_, err := o.CreateAgent("alice", llm.Config{Provider: "mock"})
	require.NoError(t, err)
	slow := &slowCollaborator{delay: 150 * time.Millisecond}
	_, err = o.CreateAgentWith("bob", slow)
	require.NoError(t, err)

	// Occupy bob with a task, then switch to him mid-task. The switch
	// mail must wait in his mailbox and get its reply once the task ends,
	// well before the timeout.
	taskDone := make(chan struct{})
	go func() {
		defer close(taskDone)
		_, _ = o.SendTask(context.Background(), "bob", "sess", "long job")
	}()
	require.Eventually(t, func() bool {
		snap, err := o.GetState("bob")
		return err == nil && snap.State == agent.StateProcessing
	}, time.Second, 5*time.Millisecond)

	reply, err := o.SendMailWithSwitch(context.Background(), "alice", "bob", "Health Check", "status?", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late answer", reply)
	<-taskDone

	switched := rec.ofType(EventAgentSwitched)
	require.Len(t, switched, 2)
	assert.Equal(t, "bob", switched[1].From)
	assert.Equal(t, "alice", switched[1].To)
}

func TestSendMailToBusyRecipientProcessedAfterTask(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	_, err := o.CreateAgent("alice", llm.Config{Provider: "mock"})
	require.NoError(t, err)
	slow := &slowCollaborator{delay: 100 * time.Millisecond}
	_, err = o.CreateAgentWith("bob", slow)
	require.NoError(t, err)

	go func() { _, _ = o.SendTask(context.Background(), "bob", "sess", "long job") }()
	require.Eventually(t, func() bool {
		snap, err := o.GetState("bob")
		return err == nil && snap.State == agent.StateProcessing
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, o.SendMail("alice", "bob", "FYI", "while you were busy"))

	// An empty queue alone is not enough; the collaborator must actually
	// have been invoked for the mail, not just for the task.
	assert.Eventually(t, func() bool {
		snap, err := o.GetState("bob")
		return err == nil && snap.QueuedMail == 0 &&
			snap.State == agent.StateIdle && slow.calls.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrAgentNotFound, "agent_not_found"},
		{ErrAgentAlreadyExists, "agent_already_exists"},
		{ErrMailTimeout, "mail_timeout"},
		{agent.ErrInvalidDuration, "invalid_duration"},
		{agent.ErrAgentStopped, "agent_stopped"},
		{llm.NewCollaboratorError("mock", assert.AnError), "ai_collaborator"},
		{assert.AnError, "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorKind(tt.err), "for %v", tt.err)
	}
}

func TestShutdownStopsAgents(t *testing.T) {
	rt := agent.NewRuntime(
		channel.NewRouter(channel.NewMemoryStore(100)),
		continuation.NewEvaluator(continuation.Policy{RequireExplicit: true}),
		nil,
	)
	o := New(rt, Options{})

	for _, id := range []string{"a", "b"} {
		_, err := o.CreateAgent(id, llm.Config{Provider: "mock"})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))
	assert.Empty(t, o.ListAgents())
}

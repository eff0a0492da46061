package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore-dev/agentcore/internal/mailbox"
	"github.com/agentcore-dev/agentcore/pkg/llm"
)

func newTestAgent(id string) *Agent {
	return New(id, llm.NewMockCollaborator("mock-model"), 0)
}

func TestAgentInitialState(t *testing.T) {
	ag := newTestAgent("a1")
	assert.Equal(t, StateIdle, ag.State())

	snap := ag.Snapshot()
	assert.Equal(t, "a1", snap.ID)
	assert.Equal(t, "idle", snap.StateName)
	assert.Nil(t, snap.WakeAt)
	assert.Equal(t, 0, snap.QueuedMail)
}

func TestAgentSleepInvalidDuration(t *testing.T) {
	ag := newTestAgent("a1")

	assert.ErrorIs(t, ag.Sleep(-time.Second, nil), ErrInvalidDuration)
	assert.ErrorIs(t, ag.Sleep(0, nil), ErrInvalidDuration)
	assert.Equal(t, StateIdle, ag.State())
}

func TestAgentSleepTimerWakes(t *testing.T) {
	ag := newTestAgent("a1")

	require.NoError(t, ag.Sleep(50*time.Millisecond, nil))
	assert.Equal(t, StateSleeping, ag.State())

	snap := ag.Snapshot()
	require.NotNil(t, snap.WakeAt)
	assert.WithinDuration(t, time.Now().UTC().Add(50*time.Millisecond), *snap.WakeAt, 30*time.Millisecond)

	assert.Eventually(t, func() bool {
		return ag.State() == StateIdle
	}, time.Second, 10*time.Millisecond)
	assert.Nil(t, ag.Snapshot().WakeAt)
}

func TestAgentExplicitWakeIdempotent(t *testing.T) {
	ag := newTestAgent("a1")

	require.NoError(t, ag.Sleep(time.Hour, nil))
	ag.Wake("manual")
	assert.Equal(t, StateIdle, ag.State())

	// Waking an awake agent is a no-op.
	ag.Wake("manual")
	assert.Equal(t, StateIdle, ag.State())
}

func TestAgentEventOnlySleep(t *testing.T) {
	ag := newTestAgent("a1")

	require.NoError(t, ag.Sleep(0, []string{"mail_arrived"}))
	assert.Equal(t, StateSleeping, ag.State())
	assert.Nil(t, ag.Snapshot().WakeAt)

	// Unregistered events do not wake.
	assert.False(t, ag.RaiseEvent("urgent"))
	assert.Equal(t, StateSleeping, ag.State())

	assert.True(t, ag.RaiseEvent("mail_arrived"))
	assert.Equal(t, StateIdle, ag.State())

	// Raising an event on an awake agent reports no wake.
	assert.False(t, ag.RaiseEvent("mail_arrived"))
}

func TestAgentStopIsTerminal(t *testing.T) {
	ag := newTestAgent("a1")
	require.NoError(t, ag.Mailbox().Enqueue(
		mailbox.NewMessage("x", "a1", "s", "b", mailbox.ModeAsync)))

	require.NoError(t, ag.Sleep(time.Hour, nil))
	ag.Stop()

	assert.Equal(t, StateStopped, ag.State())
	assert.Equal(t, 0, ag.Mailbox().Len())

	// No further transitions.
	ag.Wake("manual")
	assert.Equal(t, StateStopped, ag.State())
	assert.ErrorIs(t, ag.Sleep(time.Second, nil), ErrAgentStopped)
	assert.False(t, ag.RaiseEvent("mail_arrived"))

	ag.Stop() // stopping twice is fine
	assert.Equal(t, StateStopped, ag.State())
}

func TestAgentIdleHookFiresWithQueuedMail(t *testing.T) {
	ag := newTestAgent("a1")
	fired := make(chan struct{}, 4)
	ag.SetIdleHook(func() { fired <- struct{}{} })

	// Mail arriving mid-task is picked up when the task ends.
	require.NoError(t, ag.beginTask())
	require.NoError(t, ag.Mailbox().Enqueue(
		mailbox.NewMessage("x", "a1", "s", "b", mailbox.ModeAsync)))
	ag.endTask()
	select {
	case <-fired:
	default:
		t.Fatal("idle hook did not fire when a task ended with queued mail")
	}

	// Waking with queued mail fires it too.
	require.NoError(t, ag.Sleep(time.Hour, nil))
	ag.Wake("manual")
	select {
	case <-fired:
	default:
		t.Fatal("idle hook did not fire on wake with queued mail")
	}

	// An empty mailbox keeps the hook quiet.
	ag.Mailbox().Drain()
	require.NoError(t, ag.beginTask())
	ag.endTask()
	select {
	case <-fired:
		t.Fatal("idle hook fired without queued mail")
	default:
	}
}

func TestAgentStopRacesFiredTimer(t *testing.T) {
	ag := newTestAgent("a1")

	require.NoError(t, ag.Sleep(time.Millisecond, nil))
	time.Sleep(20 * time.Millisecond)
	ag.Stop()

	// Whatever order the timer and the stop resolved in, stop is final.
	assert.Equal(t, StateStopped, ag.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "processing", StateProcessing.String())
	assert.Equal(t, "sleeping", StateSleeping.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(99).String())
}
